package gumble

import "time"

// SampleRate is the fixed Mumble voice sample rate (mono, s16le).
const SampleRate = 48000

// FrameDuration is the fixed duration of one inbound jitter-queue frame.
const FrameDuration = 10 * time.Millisecond

// SoundChunk is the atomic playout unit produced by an InboundQueue and
// consumed by the host or by Session.AddSound for echo/relay use cases.
type SoundChunk struct {
	// PCM holds signed 16-bit little-endian mono samples at SampleRate.
	PCM []byte
	// Sequence is the packet sequence this chunk (or the frame it was
	// split from) arrived with.
	Sequence int64
	// Type is the codec id the chunk was decoded from.
	Type AudioCodecID
	// Target is the voice routing target (0 normal, 1..30 whisper, 31 loopback).
	Target uint8
	// End marks the final chunk of a sender's talk burst.
	End bool
	// ReceiveTime is the wallclock time the frame arrived.
	ReceiveTime time.Time
	// PlayoutTime is the derived logical playout time.
	PlayoutTime time.Time
}

// Size returns the chunk's PCM length in bytes.
func (c *SoundChunk) Size() int {
	return len(c.PCM)
}

// Duration returns len(PCM)/2/SampleRate seconds.
func (c *SoundChunk) Duration() time.Duration {
	samples := len(c.PCM) / 2
	return time.Duration(samples) * time.Second / SampleRate
}

// Split extracts the first `d` of audio from c, returning a new chunk
// holding that prefix and mutating c in place to hold the remainder
// with PlayoutTime advanced by d. d must be in (0, c.Duration()).
//
// Conservation invariant: split(c,d) = (a, c'); then
// a.PCM ++ c'.PCM == original c.PCM, a.Duration()+c'.Duration() ==
// original c.Duration(), and c'.PlayoutTime == original
// c.PlayoutTime + d.
func (c *SoundChunk) Split(d time.Duration) *SoundChunk {
	samples := int(d * SampleRate / time.Second)
	size := samples * 2
	if size > len(c.PCM) {
		size = len(c.PCM)
	}

	// The remainder keeps the burst-end marker; the extracted prefix is
	// never the last audio of the burst.
	head := &SoundChunk{
		PCM:         c.PCM[:size:size],
		Sequence:    c.Sequence,
		Type:        c.Type,
		Target:      c.Target,
		ReceiveTime: c.ReceiveTime,
		PlayoutTime: c.PlayoutTime,
	}

	c.PCM = c.PCM[size:]
	c.PlayoutTime = c.PlayoutTime.Add(d)

	return head
}
