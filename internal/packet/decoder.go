// Package packet turns raw controller frames into named, typed values
// according to a validated widget schema.
//
// Decoding is a pure function of (schema, frame): no I/O, no hidden
// state, no mutation of the input. One Decoder may serve any number of
// goroutines concurrently.
package packet

import (
	"errors"
	"fmt"

	"github.com/tg0-data/etee-link/internal/schema"
)

// ErrFrameLength marks a raw frame whose length does not match the
// schema's frame length. The frame is rejected whole; no partial
// decode is ever returned.
var ErrFrameLength = errors.New("packet: frame length mismatch")

// LengthError carries the expected and observed lengths of a rejected
// frame. Use errors.Is(err, ErrFrameLength) to test for the class.
type LengthError struct {
	Want int
	Got  int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%v: want %d bytes, got %d", ErrFrameLength, e.Want, e.Got)
}

func (e *LengthError) Unwrap() error { return ErrFrameLength }

// Decoder applies one immutable schema to raw frames.
type Decoder struct {
	schema *schema.PacketSchema
}

// NewDecoder returns a decoder bound to a validated schema.
func NewDecoder(s *schema.PacketSchema) *Decoder {
	return &Decoder{schema: s}
}

// Schema returns the schema the decoder was built with.
func (d *Decoder) Schema() *schema.PacketSchema { return d.schema }

// Decode converts one raw frame into a Frame of named values. The raw
// slice must be exactly the schema's frame length and is never written
// to; the caller keeps ownership. Identical input yields identical
// output.
func (d *Decoder) Decode(raw []byte) (Frame, error) {
	if len(raw) != d.schema.FrameLength() {
		return nil, &LengthError{Want: d.schema.FrameLength(), Got: len(raw)}
	}

	fields := d.schema.Fields()
	out := make(Frame, len(fields))
	for _, f := range fields {
		out[f.Name] = decodeField(raw, f)
	}
	return out, nil
}

// decodeField dispatches on the field's encoding. The schema guarantees
// every index is in bounds, so no per-field error path exists.
func decodeField(raw []byte, f schema.FieldSpec) Value {
	switch f.Encoding {
	case schema.SingleBit:
		return BoolValue(readBit(raw, f.ByteIndex*8+f.BitOffset) == 1)

	case schema.MultiBitInteger:
		return UintValue(readBits(raw, f.BitIndices))

	case schema.MultiByteInteger:
		// First listed index is the low byte: little-endian assembly,
		// matching the wire format of the IMU channels.
		u := uint16(raw[f.ByteIndices[0]]) | uint16(raw[f.ByteIndices[1]])<<8
		if f.Signed {
			return IntValue(int64(int16(u)))
		}
		return UintValue(uint64(u))

	default:
		// Unreachable for schemas produced by schema.Load.
		panic(fmt.Sprintf("packet: unknown encoding %v for widget %q", f.Encoding, f.Name))
	}
}
