package gumble

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckTextEnforcesMessageLength(t *testing.T) {
	t.Parallel()

	m := &MessageLimits{}
	m.SetMaxMessageLength(128)

	if err := m.CheckText(strings.Repeat("a", 128)); err != nil {
		t.Fatalf("CheckText at the limit: %v", err)
	}

	err := m.CheckText(strings.Repeat("a", 200))
	if err == nil {
		t.Fatal("expected error for a 200-char message with a 128 cap")
	}
	var ge *Error
	if !errors.As(err, &ge) || ge.Kind != KindTextTooLong {
		t.Fatalf("error kind = %v, want text_too_long", err)
	}
}

func TestCheckTextUsesImageLimitForEmbeddedImages(t *testing.T) {
	t.Parallel()

	m := &MessageLimits{}
	m.SetMaxMessageLength(128)
	m.SetMaxImageLength(1 << 20)

	// Over the text cap but within the image cap: must pass, since a
	// message carrying both "<img" and "src" is checked against the
	// image limit instead.
	msg := `<img src="data:image/png;base64,` + strings.Repeat("A", 180) + `">`
	if err := m.CheckText(msg); err != nil {
		t.Fatalf("CheckText on an embedded image within the image cap: %v", err)
	}

	m.SetMaxImageLength(64)
	err := m.CheckText(msg)
	if err == nil {
		t.Fatal("expected error once the image cap shrinks below the message")
	}
	var ge *Error
	if !errors.As(err, &ge) || ge.Kind != KindImageTooBig {
		t.Fatalf("error kind = %v, want image_too_big", err)
	}
}

func TestCheckTextUnlimitedWhenUnset(t *testing.T) {
	t.Parallel()

	m := &MessageLimits{}
	if err := m.CheckText(strings.Repeat("a", 1<<16)); err != nil {
		t.Fatalf("CheckText with no advertised limits: %v", err)
	}
}
