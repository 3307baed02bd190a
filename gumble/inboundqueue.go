package gumble

import (
	"log/slog"
	"sync"
	"time"
)

// InboundQueue is the per-user jitter-ordered decode queue:
// inbound frames are decoded immediately on Add, ordered by a
// calculated playout time derived from the packet sequence number, and
// drained oldest-first by GetSound. A single lock guards both the
// queue and the talk-burst anchor.
type InboundQueue struct {
	mu sync.Mutex

	// items is kept sorted ascending by PlayoutTime: items[0] is the
	// tail (soonest to play, minimum time), items[len-1] is the head
	// (most recently enqueued before sorting, maximum time).
	items []*SoundChunk

	startSequence int64
	startTime     time.Time
	haveBurst     bool

	receiveSound bool
	codecs       map[AudioCodecID]*opusCodec

	logger *slog.Logger
}

// NewInboundQueue creates a queue that decodes Opus by default, ready
// to receive audio.
func NewInboundQueue(logger *slog.Logger) (*InboundQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opus, err := newOpusCodec(0)
	if err != nil {
		return nil, err
	}
	return &InboundQueue{
		receiveSound: true,
		codecs:       map[AudioCodecID]*opusCodec{CodecOpus: opus},
		logger:       logger,
	}, nil
}

// SetReceiveSound enables or disables decoding and buffering for this
// user without tearing down the queue's decoder state.
func (q *InboundQueue) SetReceiveSound(v bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.receiveSound = v
}

// Add decodes one inbound voice frame and inserts it into the queue
// at its calculated playout position; end marks the frame as the last
// of its talk burst. It returns the inserted chunk, or nil if sound
// reception is disabled, the codec is unknown, or decoding failed
// (both failures are logged and the frame is dropped without
// disturbing the burst anchor).
func (q *InboundQueue) Add(payload []byte, sequence int64, typ AudioCodecID, target uint8, end bool) *SoundChunk {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.receiveSound {
		return nil
	}

	codec, ok := q.codecs[typ]
	if !ok {
		q.logger.Error("gumble: dropping inbound frame", "sequence", sequence, "error", errUnknownCodec(typ.String()))
		return nil
	}

	pcm, err := codec.Decode(payload)
	if err != nil {
		q.logger.Error("gumble: failed to decode inbound audio", "sequence", sequence, "codec", typ, "error", err)
		return nil
	}

	var playout time.Time
	if !q.haveBurst || sequence <= q.startSequence {
		q.startTime = time.Now()
		q.startSequence = sequence
		q.haveBurst = true
		playout = q.startTime
	} else {
		offset := time.Duration(sequence-q.startSequence) * FrameDuration
		playout = q.startTime.Add(offset)
	}

	chunk := &SoundChunk{
		PCM:         pcm,
		Sequence:    sequence,
		Type:        typ,
		Target:      target,
		End:         end,
		ReceiveTime: time.Now(),
		PlayoutTime: playout,
	}

	q.items = append(q.items, chunk)
	i := len(q.items) - 1
	for i > 0 && q.items[i].PlayoutTime.Before(q.items[i-1].PlayoutTime) {
		q.items[i], q.items[i-1] = q.items[i-1], q.items[i]
		i--
	}

	return chunk
}

// FirstSound returns the tail chunk (soonest playout time) without
// removing it, or nil if the queue is empty.
func (q *InboundQueue) FirstSound() *SoundChunk {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// GetSound pops the tail chunk. If duration is non-zero and shorter
// than the tail's own duration, the tail is split: the caller receives
// the first duration of PCM and the remainder stays queued with its
// PlayoutTime advanced.
func (q *InboundQueue) GetSound(duration time.Duration) *SoundChunk {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	head := q.items[0]
	if duration <= 0 || head.Duration() <= duration {
		q.items = q.items[1:]
		return head
	}

	return head.Split(duration)
}

// Len reports the number of buffered chunks.
func (q *InboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
