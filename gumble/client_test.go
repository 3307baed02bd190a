package gumble

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tikki/gumble/gumble/mumbleproto"
)

// TestEchoRoundTrip drives the receive side and the send side of the
// audio path back to back, the way an echo bot would: one inbound
// 20ms Opus frame fires the sound callback exactly once with 960
// samples of PCM, and feeding that PCM back twice and ending the burst
// produces two outbound voice packets with target 0, consecutive
// sequence numbers, and the terminator bit only on the second.
func TestEchoRoundTrip(t *testing.T) {
	t.Parallel()

	const frameDur = 20 * time.Millisecond
	const samples = SampleRate / 1000 * 20 // 960

	codec, err := newOpusCodec(0)
	if err != nil {
		t.Fatalf("newOpusCodec: %v", err)
	}
	frame, err := codec.Encode(make([]byte, samples*2))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	users := newTestUsers(t)
	name := "Echo"
	sender, err := users.Upsert(&mumbleproto.UserState{Session: uint32Ptr(9), Name: &name})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var received []*SoundChunk
	sender.OnSoundReceived(func(c *SoundChunk) { received = append(received, c) })

	users.RouteVoice(&VoicePacket{
		Sender:   9,
		Type:     CodecOpus,
		Sequence: 1,
		Inbound:  true,
		End:      true,
		Frames:   [][]byte{frame},
	})

	if len(received) != 1 {
		t.Fatalf("sound callback fired %d times, want exactly 1", len(received))
	}
	if got := len(received[0].PCM) / 2; got != samples {
		t.Fatalf("decoded %d samples, want %d", got, samples)
	}
	if !received[0].End {
		t.Fatal("chunk End = false, want true for the burst's final frame")
	}

	var mu sync.Mutex
	var sent [][]byte
	out, err := NewOutboundAudio(func(p []byte) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, append([]byte(nil), p...))
		return nil
	}, 0, frameDur, nil)
	if err != nil {
		t.Fatalf("NewOutboundAudio: %v", err)
	}
	if err := out.Write(received[0].PCM); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := out.Write(received[0].PCM); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if err := out.EndBurst(); err != nil {
		t.Fatalf("EndBurst: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go out.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(sent)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for outbound packets")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	first, last := sent[0], sent[1]
	mu.Unlock()

	if typ := AudioCodecID(first[0] >> 5 & 0x07); typ != CodecOpus {
		t.Fatalf("outbound codec type = %v, want opus", typ)
	}
	if target := first[0] & 0x1F; target != 0 {
		t.Fatalf("outbound target = %d, want 0", target)
	}
	seq, n, err := DecodeVarint(first[1:])
	if err != nil {
		t.Fatalf("DecodeVarint: %v", err)
	}
	if seq != 0 {
		t.Fatalf("first sequence = %d, want 0", seq)
	}
	length, _, err := DecodeVarint(first[1+n:])
	if err != nil {
		t.Fatalf("DecodeVarint: %v", err)
	}
	if length&voiceTerminator != 0 {
		t.Fatal("first frame carries the terminator bit, want it only on the last")
	}

	seq2, n2, err := DecodeVarint(last[1:])
	if err != nil {
		t.Fatalf("DecodeVarint: %v", err)
	}
	if seq2 != seq+1 {
		t.Fatalf("second sequence = %d, want %d", seq2, seq+1)
	}
	length2, _, err := DecodeVarint(last[1+n2:])
	if err != nil {
		t.Fatalf("DecodeVarint: %v", err)
	}
	if length2&voiceTerminator == 0 {
		t.Fatal("burst's final frame is missing the terminator bit")
	}
}

func TestUserUpsertDiffIsMinimal(t *testing.T) {
	t.Parallel()

	users := newTestUsers(t)
	var diffs []map[string]bool
	users.listeners.Attach(recordingListener{onUser: func(e *UserChangeEvent) {
		diffs = append(diffs, e.Diff)
	}})

	name := "Alice"
	if _, err := users.Upsert(&mumbleproto.UserState{Session: uint32Ptr(1), Name: &name}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(diffs) != 1 || !diffs[0]["name"] {
		t.Fatalf("create diff = %v, want name changed", diffs)
	}

	// Re-sending the identical state must not fire the update callback.
	if _, err := users.Upsert(&mumbleproto.UserState{Session: uint32Ptr(1), Name: &name}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(diffs) != 1 {
		t.Fatalf("identical upsert fired an update with diff %v", diffs[len(diffs)-1])
	}
}

// recordingListener captures user change events and ignores the rest.
type recordingListener struct {
	onUser func(*UserChangeEvent)
}

func (r recordingListener) OnConnect(*ConnectEvent) {}
func (r recordingListener) OnDisconnect(*DisconnectEvent) {}
func (r recordingListener) OnChannelCreated(*ChannelChangeEvent) {}
func (r recordingListener) OnChannelUpdated(*ChannelChangeEvent) {}
func (r recordingListener) OnChannelRemoved(*ChannelChangeEvent) {}
func (r recordingListener) OnUserCreated(e *UserChangeEvent) { r.onUser(e) }
func (r recordingListener) OnUserUpdated(e *UserChangeEvent) { r.onUser(e) }
func (r recordingListener) OnUserRemoved(*UserChangeEvent) {}
func (r recordingListener) OnSoundReceived(*SoundEvent) {}
func (r recordingListener) OnTextMessage(*TextMessageEvent) {}
func (r recordingListener) OnContextAction(*RawEvent) {}
func (r recordingListener) OnPermissionDenied(*RawEvent) {}
func (r recordingListener) OnACLReceived(*RawEvent) {}
func (r recordingListener) OnRawControl(*RawEvent) {}
