package gumble

import (
	"testing"
	"time"
)

func encodedOpusSilence(t *testing.T) []byte {
	t.Helper()
	codec, err := newOpusCodec(0)
	if err != nil {
		t.Fatalf("newOpusCodec: %v", err)
	}
	pcm := make([]byte, int(FrameDuration.Seconds()*SampleRate)*2)
	out, err := codec.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return out
}

func TestInboundQueueOrdersByPlayoutTime(t *testing.T) {
	t.Parallel()

	q, err := NewInboundQueue(nil)
	if err != nil {
		t.Fatalf("NewInboundQueue: %v", err)
	}
	frame := encodedOpusSilence(t)

	q.Add(frame, 1, CodecOpus, 0, false)
	q.Add(frame, 2, CodecOpus, 0, false)
	q.Add(frame, 3, CodecOpus, 0, false)

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}

	first := q.FirstSound()
	if first == nil || first.Sequence != 1 {
		t.Fatalf("FirstSound().Sequence = %v, want 1", first)
	}
}

func TestInboundQueueNewBurstOnSequenceReset(t *testing.T) {
	t.Parallel()

	q, err := NewInboundQueue(nil)
	if err != nil {
		t.Fatalf("NewInboundQueue: %v", err)
	}
	frame := encodedOpusSilence(t)

	first := q.Add(frame, 10, CodecOpus, 0, false)
	second := q.Add(frame, 1, CodecOpus, 0, false) // sequence <= startSequence: new burst

	if !second.PlayoutTime.After(first.PlayoutTime.Add(-time.Millisecond)) {
		t.Fatalf("expected new burst to reset playout anchor near now")
	}
}

func TestInboundQueueReordersOutOfOrderFrames(t *testing.T) {
	t.Parallel()

	q, err := NewInboundQueue(nil)
	if err != nil {
		t.Fatalf("NewInboundQueue: %v", err)
	}
	frame := encodedOpusSilence(t)

	q.Add(frame, 100, CodecOpus, 0, false)
	q.Add(frame, 102, CodecOpus, 0, false)
	q.Add(frame, 101, CodecOpus, 0, false)

	var got []int64
	for {
		chunk := q.GetSound(0)
		if chunk == nil {
			break
		}
		got = append(got, chunk.Sequence)
	}
	want := []int64{100, 101, 102}
	if len(got) != len(want) {
		t.Fatalf("dequeued %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dequeue order = %v, want %v", got, want)
		}
	}
}

func TestInboundQueueGetSoundDequeuesOldest(t *testing.T) {
	t.Parallel()

	q, err := NewInboundQueue(nil)
	if err != nil {
		t.Fatalf("NewInboundQueue: %v", err)
	}
	frame := encodedOpusSilence(t)
	q.Add(frame, 1, CodecOpus, 0, false)
	q.Add(frame, 2, CodecOpus, 0, false)

	got := q.GetSound(0)
	if got == nil || got.Sequence != 1 {
		t.Fatalf("GetSound().Sequence = %v, want 1", got)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestInboundQueueGetSoundSplitsPartialDuration(t *testing.T) {
	t.Parallel()

	q, err := NewInboundQueue(nil)
	if err != nil {
		t.Fatalf("NewInboundQueue: %v", err)
	}
	frame := encodedOpusSilence(t)
	chunk := q.Add(frame, 1, CodecOpus, 0, false)
	fullDuration := chunk.Duration()

	half := fullDuration / 2
	part := q.GetSound(half)
	if part == nil {
		t.Fatal("GetSound returned nil")
	}
	if part.Duration() > fullDuration {
		t.Fatalf("split part duration %v exceeds original %v", part.Duration(), fullDuration)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (remainder still queued)", q.Len())
	}
}

func TestInboundQueueDropsWhenReceiveSoundDisabled(t *testing.T) {
	t.Parallel()

	q, err := NewInboundQueue(nil)
	if err != nil {
		t.Fatalf("NewInboundQueue: %v", err)
	}
	q.SetReceiveSound(false)

	frame := encodedOpusSilence(t)
	if got := q.Add(frame, 1, CodecOpus, 0, false); got != nil {
		t.Fatalf("Add returned %v, want nil when disabled", got)
	}
}

func TestInboundQueueUnknownCodecIsDropped(t *testing.T) {
	t.Parallel()

	q, err := NewInboundQueue(nil)
	if err != nil {
		t.Fatalf("NewInboundQueue: %v", err)
	}
	if got := q.Add([]byte{0x01}, 1, CodecCELTAlpha, 0, false); got != nil {
		t.Fatalf("Add returned %v, want nil for unsupported codec", got)
	}
}
