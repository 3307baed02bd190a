// Package mumbleproto provides hand-written wire encode/decode for the
// Mumble control-message vocabulary, built directly against
// google.golang.org/protobuf/encoding/protowire rather than full
// descriptor-based reflection, since only a fixed, known message
// vocabulary needs to round-trip.
package mumbleproto

import "google.golang.org/protobuf/encoding/protowire"

func appendVarint(buf []byte, num protowire.Number, v uint64) []byte {
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, v)
}

func appendBool(buf []byte, num protowire.Number, v bool) []byte {
	var x uint64
	if v {
		x = 1
	}
	return appendVarint(buf, num, x)
}

func appendBytes(buf []byte, num protowire.Number, v []byte) []byte {
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	return protowire.AppendBytes(buf, v)
}

func appendString(buf []byte, num protowire.Number, v string) []byte {
	return appendBytes(buf, num, []byte(v))
}

func appendFixed32(buf []byte, num protowire.Number, v uint32) []byte {
	buf = protowire.AppendTag(buf, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(buf, v)
}

// forEachField walks every top-level field in data, invoking fn with
// the field number, wire type, and a decoder positioned right after
// the tag. fn must consume exactly one value and return the remaining
// bytes.
func forEachField(data []byte, fn func(num protowire.Number, typ protowire.Type, rest []byte) ([]byte, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		rest, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		data = rest
	}
	return nil
}

func consumeVarint(data []byte) (uint64, []byte, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, nil, protowire.ParseError(n)
	}
	return v, data[n:], nil
}

func consumeBytes(data []byte) ([]byte, []byte, error) {
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, nil, protowire.ParseError(n)
	}
	// protowire.ConsumeBytes aliases into data; copy out since data may
	// be reused by the caller.
	out := make([]byte, len(v))
	copy(out, v)
	return out, data[n:], nil
}

func consumeFixed32(data []byte) (uint32, []byte, error) {
	v, n := protowire.ConsumeFixed32(data)
	if n < 0 {
		return 0, nil, protowire.ParseError(n)
	}
	return v, data[n:], nil
}

func skipField(num protowire.Number, typ protowire.Type, data []byte) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, data)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return data[n:], nil
}

func u32(v uint64) uint32        { return uint32(v) }
func ptrU32(v uint32) *uint32    { return &v }
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }

// UnknownFields preserves the raw wire value of any field number a
// message struct does not model, keyed by field number.
type UnknownFields map[int32][]byte

func keepUnknown(dst *UnknownFields, num protowire.Number, typ protowire.Type, data []byte) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, data)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	if *dst == nil {
		*dst = make(UnknownFields)
	}
	raw := make([]byte, n)
	copy(raw, data[:n])
	(*dst)[int32(num)] = raw
	return data[n:], nil
}
