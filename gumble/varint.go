package gumble

import "encoding/binary"

// EncodeVarint encodes value using Mumble's non-standard varint
// scheme, always choosing the shortest representation.
func EncodeVarint(value int64) []byte {
	if value >= 0 {
		return encodeVarintMagnitude(uint64(value))
	}

	// magnitude via two's complement negation; for value == math.MinInt64
	// this wraps back to MinInt64 whose uint64 reinterpretation is exactly
	// the correct unsigned magnitude (2^63).
	magnitude := uint64(-value)

	if value >= -4 {
		// Short negative form: 111111xx, where xx encodes the magnitude
		// (1..4) mod 4 — magnitude 4 maps to xx=00 since the 0xFC prefix
		// already has that bit set.
		low := byte(magnitude % 4)
		return []byte{0xFC | low}
	}

	out := []byte{0xF8}
	return append(out, encodeVarintMagnitude(magnitude)...)
}

func encodeVarintMagnitude(value uint64) []byte {
	switch {
	case value <= 0x7F:
		return []byte{byte(value)}
	case value <= 0x3FFF:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(0x8000|value))
		return buf
	case value <= 0x1FFFFF:
		buf := make([]byte, 3)
		buf[0] = byte(0xC0 | (value >> 16))
		binary.BigEndian.PutUint16(buf[1:], uint16(value&0xFFFF))
		return buf
	case value <= 0xFFFFFFF:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(0xE0000000|value))
		return buf
	case value <= 0xFFFFFFFF:
		buf := make([]byte, 5)
		buf[0] = 0xF0
		binary.BigEndian.PutUint32(buf[1:], uint32(value))
		return buf
	default:
		buf := make([]byte, 9)
		buf[0] = 0xF4
		binary.BigEndian.PutUint64(buf[1:], value)
		return buf
	}
}

// DecodeVarint decodes a varint at the start of data, returning the
// value and the number of bytes consumed. It returns a *Error of
// KindVarint on truncated or malformed input.
func DecodeVarint(data []byte) (int64, int, error) {
	if len(data) == 0 {
		return 0, 0, errVarint("empty input")
	}

	first := data[0]

	if first&0xFC == 0xF8 {
		// negate-next-varint prefix.
		if len(data) < 2 {
			return 0, 0, errVarint("truncated negated varint")
		}
		inner, n, err := DecodeVarint(data[1:])
		if err != nil {
			return 0, 0, err
		}
		return -inner, 1 + n, nil
	}

	if first&0xFC == 0xFC {
		low := first & 0x03
		magnitude := int64(low)
		if magnitude == 0 {
			magnitude = 4
		}
		return -magnitude, 1, nil
	}

	if first&0x80 == 0x00 {
		return int64(first), 1, nil
	}

	if first&0xC0 == 0x80 {
		if len(data) < 2 {
			return 0, 0, errVarint("truncated 2-byte varint")
		}
		v := binary.BigEndian.Uint16(data[:2])
		return int64(v & 0x3FFF), 2, nil
	}

	if first&0xE0 == 0xC0 {
		if len(data) < 3 {
			return 0, 0, errVarint("truncated 3-byte varint")
		}
		top := int64(data[0] & 0x1F)
		low := int64(binary.BigEndian.Uint16(data[1:3]))
		return (top << 16) | low, 3, nil
	}

	if first&0xF0 == 0xE0 {
		if len(data) < 4 {
			return 0, 0, errVarint("truncated 4-byte varint")
		}
		v := binary.BigEndian.Uint32(data[:4])
		return int64(v & 0x0FFFFFFF), 4, nil
	}

	if first&0xFC == 0xF0 {
		if len(data) < 5 {
			return 0, 0, errVarint("truncated 5-byte varint")
		}
		v := binary.BigEndian.Uint32(data[1:5])
		return int64(v), 5, nil
	}

	if first&0xFC == 0xF4 {
		if len(data) < 9 {
			return 0, 0, errVarint("truncated 9-byte varint")
		}
		v := binary.BigEndian.Uint64(data[1:9])
		return int64(v), 9, nil
	}

	return 0, 0, errVarint("unrecognised varint prefix")
}
