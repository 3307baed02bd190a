package gumble

import (
	"bytes"
	"testing"
)

func TestVoicePacketEncodeDecodeOpus(t *testing.T) {
	frame := []byte{1, 2, 3, 4, 5}
	raw := EncodeVoicePacket(CodecOpus, 0, 42, frame, false)

	// Encoded outbound packets have no sender session field (only
	// inbound packets do); prepend one to exercise the inbound decoder.
	withSender := append([]byte{raw[0]}, append(EncodeVarint(7), raw[1:]...)...)

	pkt, err := DecodeVoicePacket(withSender)
	if err != nil {
		t.Fatalf("DecodeVoicePacket: %v", err)
	}
	if pkt.Type != CodecOpus {
		t.Fatalf("Type = %v, want opus", pkt.Type)
	}
	if pkt.Target != 0 {
		t.Fatalf("Target = %d, want 0", pkt.Target)
	}
	if pkt.Sender != 7 {
		t.Fatalf("Sender = %d, want 7", pkt.Sender)
	}
	if pkt.Sequence != 42 {
		t.Fatalf("Sequence = %d, want 42", pkt.Sequence)
	}
	if len(pkt.Frames) != 1 || !bytes.Equal(pkt.Frames[0], frame) {
		t.Fatalf("Frames = %v, want [%v]", pkt.Frames, frame)
	}
	if pkt.End {
		t.Fatal("End = true, want false for a mid-burst frame")
	}
}

func TestVoicePacketEndFlagRoundTrip(t *testing.T) {
	frame := []byte{9, 8, 7}
	raw := EncodeVoicePacket(CodecOpus, 0, 3, frame, true)
	withSender := append([]byte{raw[0]}, append(EncodeVarint(4), raw[1:]...)...)

	pkt, err := DecodeVoicePacket(withSender)
	if err != nil {
		t.Fatalf("DecodeVoicePacket: %v", err)
	}
	if !pkt.End {
		t.Fatal("End = false, want true for the burst's final frame")
	}
	if len(pkt.Frames) != 1 || !bytes.Equal(pkt.Frames[0], frame) {
		t.Fatalf("Frames = %v, want [%v]", pkt.Frames, frame)
	}
}

func TestVoicePacketTargetField(t *testing.T) {
	raw := EncodeVoicePacket(CodecOpus, 5, 1, []byte{0xAA}, false)
	withSender := append([]byte{raw[0]}, append(EncodeVarint(1), raw[1:]...)...)

	pkt, err := DecodeVoicePacket(withSender)
	if err != nil {
		t.Fatalf("DecodeVoicePacket: %v", err)
	}
	if pkt.Target != 5 {
		t.Fatalf("Target = %d, want 5", pkt.Target)
	}
}

func TestVoicePacketTruncated(t *testing.T) {
	if _, err := DecodeVoicePacket(nil); err == nil {
		t.Fatal("expected error on empty input")
	}
}
