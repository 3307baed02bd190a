package gumble

import (
	"context"
	"sync"
	"testing"
	"time"
)

func silencePCM(d time.Duration) []byte {
	return make([]byte, int(d*SampleRate*2/time.Second))
}

func TestOutboundAudioWritePacesFrames(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var sent [][]byte
	send := func(p []byte) error {
		mu.Lock()
		defer mu.Unlock()
		cp := append([]byte(nil), p...)
		sent = append(sent, cp)
		return nil
	}

	o, err := NewOutboundAudio(send, 0, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewOutboundAudio: %v", err)
	}

	if err := o.Write(silencePCM(10 * time.Millisecond)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go o.Run(ctx)

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(sent)
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sent) < 1 {
		t.Fatalf("expected at least one frame sent, got %d", len(sent))
	}
}

func TestOutboundAudioTargetField(t *testing.T) {
	t.Parallel()

	o, err := NewOutboundAudio(func([]byte) error { return nil }, 0, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewOutboundAudio: %v", err)
	}
	o.SetTarget(5)
	if o.Target() != 5 {
		t.Fatalf("Target() = %d, want 5", o.Target())
	}
	o.SetTarget(0xFF) // must be masked to 5 bits
	if o.Target() != 0x1F {
		t.Fatalf("Target() = %#x, want 0x1f", o.Target())
	}
}

func TestOutboundAudioOverflowSetsLagged(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	send := func([]byte) error {
		<-blocked // never unblocks during this test; queue backs up
		return nil
	}

	o, err := NewOutboundAudio(send, 0, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewOutboundAudio: %v", err)
	}
	o.maxQueue = 2

	frame := silencePCM(10 * time.Millisecond)
	for i := 0; i < 5; i++ {
		if err := o.Write(frame); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if !o.Lagged() {
		t.Fatal("expected Lagged() to be true after overflow")
	}
	close(blocked)
}

func TestOutboundAudioEndBurstFlagsFinalFrame(t *testing.T) {
	t.Parallel()

	o, err := NewOutboundAudio(func([]byte) error { return nil }, 0, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewOutboundAudio: %v", err)
	}

	// Half a frame of PCM: EndBurst must pad it into one terminal frame.
	if err := o.Write(silencePCM(5 * time.Millisecond)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := o.EndBurst(); err != nil {
		t.Fatalf("EndBurst: %v", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) != 1 {
		t.Fatalf("queued %d frames, want 1", len(o.queue))
	}
	if !o.queue[0].end {
		t.Fatal("final frame is not flagged as the burst's end")
	}
	if o.sequence.Load() != 0 {
		t.Fatalf("sequence after EndBurst = %d, want 0 (restarts per burst)", o.sequence.Load())
	}
}

func TestOutboundAudioFlushResetsSequence(t *testing.T) {
	t.Parallel()

	o, err := NewOutboundAudio(func([]byte) error { return nil }, 0, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewOutboundAudio: %v", err)
	}
	frame := silencePCM(10 * time.Millisecond)
	if err := o.Write(frame); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if o.sequence.Load() == 0 {
		t.Fatal("expected sequence to have advanced")
	}
	o.Flush()
	if o.sequence.Load() != 0 {
		t.Fatalf("sequence after Flush = %d, want 0", o.sequence.Load())
	}
}
