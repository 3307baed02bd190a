package gumble

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// defaultOutboundQueueCap bounds how many encoded frames may sit
// waiting for their pacing slot before the oldest is dropped and the
// lagged flag is raised.
const defaultOutboundQueueCap = 50

// OutboundAudio partitions a continuous PCM stream from the host into
// fixed-duration frames, encodes each through Opus, and paces delivery
// to Transport at one frame per FrameDuration.
type OutboundAudio struct {
	frameDuration time.Duration
	frameBytes    int
	codec         *opusCodec
	send          func([]byte) error
	logger        *slog.Logger

	limiter *rate.Limiter

	mu       sync.Mutex
	cond     *sync.Cond
	buf      []byte
	queue    []pacedFrame
	maxQueue int

	sequence atomic.Int64
	target   atomic.Int32
	lagged   atomic.Bool
}

// NewOutboundAudio constructs a pacer that sends already-Opus-encoded
// voice packets via send. frameDuration must be 10, 20, or 40ms;
// bitrate <= 0 uses the codec default.
func NewOutboundAudio(send func([]byte) error, bitrate int, frameDuration time.Duration, logger *slog.Logger) (*OutboundAudio, error) {
	if logger == nil {
		logger = slog.Default()
	}
	codec, err := newOpusCodec(bitrate)
	if err != nil {
		return nil, err
	}
	frameBytes := int(frameDuration * SampleRate * 2 / time.Second)

	o := &OutboundAudio{
		frameDuration: frameDuration,
		frameBytes:    frameBytes,
		codec:         codec,
		send:          send,
		logger:        logger,
		limiter:       rate.NewLimiter(rate.Every(frameDuration), 1),
		maxQueue:      defaultOutboundQueueCap,
	}
	o.cond = sync.NewCond(&o.mu)
	return o, nil
}

// pacedFrame is one encoded frame waiting for its pacing slot. The
// wire packet is built at send time so the burst-end flag can still be
// set on a frame after it has been queued.
type pacedFrame struct {
	opus     []byte
	sequence int64
	end      bool
}

// SetTarget selects the 5-bit voice target field applied to subsequent
// frames (0 normal talk, 1..30 whisper slot, 31 server loopback).
func (o *OutboundAudio) SetTarget(target uint8) {
	o.target.Store(int32(target & 0x1F))
}

// Target returns the currently selected voice target.
func (o *OutboundAudio) Target() uint8 {
	return uint8(o.target.Load())
}

// Lagged reports whether the pacer has dropped at least one frame
// since the last call to ClearLagged.
func (o *OutboundAudio) Lagged() bool {
	return o.lagged.Load()
}

// ClearLagged resets the lagged flag.
func (o *OutboundAudio) ClearLagged() {
	o.lagged.Store(false)
}

// Write appends PCM (s16le, 48kHz mono) to the outbound stream,
// slicing off and encoding every complete frame it now contains.
func (o *OutboundAudio) Write(pcm []byte) error {
	o.mu.Lock()
	o.buf = append(o.buf, pcm...)
	var frames [][]byte
	for len(o.buf) >= o.frameBytes {
		frames = append(frames, o.buf[:o.frameBytes:o.frameBytes])
		o.buf = o.buf[o.frameBytes:]
	}
	o.mu.Unlock()

	for _, frame := range frames {
		if err := o.enqueueFrame(frame, false); err != nil {
			return err
		}
	}
	return nil
}

func (o *OutboundAudio) enqueueFrame(pcm []byte, end bool) error {
	encoded, err := o.codec.Encode(pcm)
	if err != nil {
		return err
	}
	seq := o.sequence.Add(1) - 1

	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) >= o.maxQueue {
		o.queue = o.queue[1:]
		o.lagged.Store(true)
		o.logger.Warn("gumble: outbound audio queue overflow, dropping oldest frame")
	}
	o.queue = append(o.queue, pacedFrame{opus: encoded, sequence: seq, end: end})
	o.cond.Signal()
	return nil
}

// EndBurst closes the current talk burst: any partial buffered PCM is
// padded with silence into one final frame, the last queued frame is
// flagged with the end-of-transmission bit, and sequence numbering
// restarts for the next burst. If every frame has already reached the
// wire, the burst ends implicitly when the next one starts at
// sequence 0.
func (o *OutboundAudio) EndBurst() error {
	o.mu.Lock()
	buf := o.buf
	o.buf = nil
	o.mu.Unlock()

	if len(buf) > 0 {
		padded := append(buf, make([]byte, o.frameBytes-len(buf))...)
		if err := o.enqueueFrame(padded, true); err != nil {
			return err
		}
	} else {
		o.mu.Lock()
		if n := len(o.queue); n > 0 {
			o.queue[n-1].end = true
		}
		o.mu.Unlock()
	}

	o.sequence.Store(0)
	return nil
}

// Flush discards any buffered PCM and queued frames and restarts the
// sequence counter, as an idle transition does.
func (o *OutboundAudio) Flush() {
	o.mu.Lock()
	o.buf = nil
	o.queue = nil
	o.mu.Unlock()
	o.sequence.Store(0)
}

// Drain blocks until the pacing queue is empty or timeout elapses,
// giving buffered frames a chance to reach the wire before shutdown.
func (o *OutboundAudio) Drain(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for {
		o.mu.Lock()
		empty := len(o.queue) == 0
		o.mu.Unlock()
		if empty || time.Now().After(deadline) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// Run drains the pacing queue, sending at most one frame per
// frameDuration, until ctx is cancelled. It is meant to be supervised
// alongside the transport's I/O worker.
func (o *OutboundAudio) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			o.mu.Lock()
			o.cond.Broadcast()
			o.mu.Unlock()
		case <-stop:
		}
	}()

	for {
		o.mu.Lock()
		for len(o.queue) == 0 {
			if ctx.Err() != nil {
				o.mu.Unlock()
				return ctx.Err()
			}
			o.cond.Wait()
		}
		frame := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()
		packet := EncodeVoicePacket(CodecOpus, o.Target(), frame.sequence, frame.opus, frame.end)

		reservation := o.limiter.Reserve()
		if !reservation.OK() {
			continue
		}
		if delay := reservation.Delay(); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				reservation.Cancel()
				return ctx.Err()
			}
		}

		if err := o.send(packet); err != nil {
			return err
		}
	}
}
