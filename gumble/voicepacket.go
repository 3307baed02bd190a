package gumble

import (
	"encoding/binary"
	"math"
)

// VoicePacket is the decoded form of one UDPTunnel payload:
//
//	[header byte: 3 bits type | 5 bits target]
//	[varint sender_session]     (only on inbound)
//	[varint sequence]
//	  repeat:
//	    [varint payload_length | terminator bit]
//	    [payload bytes]
//	  until terminator bit set or packet end
//	[optional 3*float32 positional audio at tail]
type VoicePacket struct {
	Type        AudioCodecID
	Target      uint8
	Sender      uint32 // only meaningful when Inbound is true
	Inbound     bool
	Sequence    int64
	Frames      [][]byte
	End         bool // last frame of the sender's talk burst
	Position    [3]float32
	HasPosition bool
}

// voiceTerminator is the bit set on a frame's length varint to mark
// the final frame of a talk burst.
const voiceTerminator = 0x2000

// EncodeVoicePacket serialises an outbound voice packet. Only Opus is
// supported for encoding, and Opus carries exactly one length-prefixed
// payload per packet. end sets the terminator bit on the payload
// length, marking the frame as the last of its talk burst.
func EncodeVoicePacket(typ AudioCodecID, target uint8, sequence int64, frame []byte, end bool) []byte {
	out := make([]byte, 0, len(frame)+16)
	out = append(out, byte(typ&0x07)<<5|(target&0x1F))
	out = append(out, EncodeVarint(sequence)...)

	length := int64(len(frame))
	if end {
		length |= voiceTerminator
	}
	out = append(out, EncodeVarint(length)...)
	out = append(out, frame...)

	return out
}

// DecodeVoicePacket parses an inbound UDPTunnel payload. header's type
// field determines whether multiple continuation-encoded frames may
// follow (legacy CELT/Speex) or exactly one length-prefixed payload is
// present (Opus).
func DecodeVoicePacket(data []byte) (*VoicePacket, error) {
	if len(data) < 1 {
		return nil, errProtocol("empty voice packet", nil)
	}

	header := data[0]
	pkt := &VoicePacket{
		Type:    AudioCodecID((header >> 5) & 0x07),
		Target:  header & 0x1F,
		Inbound: true,
	}
	off := 1

	sender, n, err := DecodeVarint(data[off:])
	if err != nil {
		return nil, errVarint("decode sender session: " + err.Error())
	}
	pkt.Sender = uint32(sender)
	off += n

	sequence, n, err := DecodeVarint(data[off:])
	if err != nil {
		return nil, errVarint("decode sequence: " + err.Error())
	}
	pkt.Sequence = sequence
	off += n

	if pkt.Type == CodecOpus {
		length, n, err := DecodeVarint(data[off:])
		if err != nil {
			return nil, errVarint("decode opus length: " + err.Error())
		}
		off += n

		pkt.End = length&voiceTerminator != 0
		size := int(length &^ voiceTerminator)
		if off+size > len(data) {
			return nil, errProtocol("opus payload exceeds packet", nil)
		}
		pkt.Frames = append(pkt.Frames, data[off:off+size])
		off += size
	} else {
		// Legacy codecs: a length-prefixed frame repeats until the
		// terminator bit is set or the packet ends.
		for off < len(data) {
			length, n, err := DecodeVarint(data[off:])
			if err != nil {
				return nil, errVarint("decode legacy frame length: " + err.Error())
			}
			off += n

			terminated := length&voiceTerminator != 0
			size := int(length &^ voiceTerminator)
			if size < 0 || off+size > len(data) {
				return nil, errProtocol("legacy frame exceeds packet", nil)
			}
			pkt.Frames = append(pkt.Frames, data[off:off+size])
			off += size

			if terminated {
				break
			}
		}
	}

	if off+12 <= len(data) {
		pkt.HasPosition = true
		for i := 0; i < 3; i++ {
			pkt.Position[i] = math.Float32frombits(binary.BigEndian.Uint32(data[off : off+4]))
			off += 4
		}
	}

	return pkt, nil
}
