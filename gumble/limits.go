package gumble

import (
	"strings"
	"sync/atomic"
)

// MessageLimits tracks the server-advertised text/image length caps
// from ServerConfig. A limit of 0 means unbounded.
type MessageLimits struct {
	maxMessage atomic.Uint32
	maxImage   atomic.Uint32
}

// SetMaxMessageLength updates the plain-text length cap.
func (m *MessageLimits) SetMaxMessageLength(n uint32) { m.maxMessage.Store(n) }

// SetMaxImageLength updates the embedded-image length cap.
func (m *MessageLimits) SetMaxImageLength(n uint32) { m.maxImage.Store(n) }

// MaxMessageLength returns the current plain-text length cap.
func (m *MessageLimits) MaxMessageLength() uint32 { return m.maxMessage.Load() }

// MaxImageLength returns the current embedded-image length cap.
func (m *MessageLimits) MaxImageLength() uint32 { return m.maxImage.Load() }

// isEmbeddedImage treats a message as an image if it contains both an
// "<img" tag and a "src" attribute.
func isEmbeddedImage(message string) bool {
	return strings.Contains(message, "<img") && strings.Contains(message, "src")
}

// CheckText enforces the server's length limits: image-bearing
// messages are checked against MaxImageLength, everything else against
// MaxMessageLength.
func (m *MessageLimits) CheckText(message string) error {
	if isEmbeddedImage(message) {
		if limit := m.maxImage.Load(); limit != 0 && uint32(len(message)) > limit {
			return errImageTooBig(int(limit))
		}
		return nil
	}
	if limit := m.maxMessage.Load(); limit != 0 && uint32(len(message)) > limit {
		return errTextTooLong(int(limit))
	}
	return nil
}
