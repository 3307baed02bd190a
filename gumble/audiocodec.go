package gumble

import (
	"fmt"

	"layeh.com/gopus"
)

// AudioCodecID identifies the codec used for a voice frame's payload,
// per the wire header's 3-bit type field.
type AudioCodecID uint8

const (
	CodecCELTAlpha AudioCodecID = 0
	CodecPing      AudioCodecID = 1
	CodecSpeex     AudioCodecID = 2
	CodecCELTBeta  AudioCodecID = 3
	CodecOpus      AudioCodecID = 4
)

func (c AudioCodecID) String() string {
	switch c {
	case CodecCELTAlpha:
		return "celt-alpha"
	case CodecPing:
		return "ping"
	case CodecSpeex:
		return "speex"
	case CodecCELTBeta:
		return "celt-beta"
	case CodecOpus:
		return "opus"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// maxFrameSamples bounds the largest frame gopus is asked to decode
// into (60ms at 48kHz mono).
const maxFrameSamples = SampleRate * 60 / 1000

// opusCodec wraps a single-channel gopus encoder/decoder pair. Mumble
// voice is always mono at 48kHz, unlike Discord-style stereo codecs.
type opusCodec struct {
	decoder *gopus.Decoder
	encoder *gopus.Encoder
}

func newOpusCodec(bitrate int) (*opusCodec, error) {
	dec, err := gopus.NewDecoder(SampleRate, 1)
	if err != nil {
		return nil, errCodec("create opus decoder", err)
	}
	enc, err := gopus.NewEncoder(SampleRate, 1, gopus.Voip)
	if err != nil {
		return nil, errCodec("create opus encoder", err)
	}
	if bitrate > 0 {
		enc.SetBitrate(bitrate)
	}
	return &opusCodec{decoder: dec, encoder: enc}, nil
}

// Decode decodes a single Opus payload into s16le mono PCM bytes.
func (c *opusCodec) Decode(payload []byte) ([]byte, error) {
	samples, err := c.decoder.Decode(payload, maxFrameSamples, false)
	if err != nil {
		return nil, errCodec("opus decode", err)
	}
	return int16sToBytes(samples), nil
}

// Encode encodes s16le mono PCM bytes into a single Opus payload. The
// number of PCM samples must match a supported Opus frame size
// (10/20/40/60ms at 48kHz).
func (c *opusCodec) Encode(pcm []byte) ([]byte, error) {
	samples := bytesToInt16s(pcm)
	out, err := c.encoder.Encode(samples, len(samples), len(pcm))
	if err != nil {
		return nil, errCodec("opus encode", err)
	}
	return out, nil
}

func int16sToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

func bytesToInt16s(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
	}
	return out
}
