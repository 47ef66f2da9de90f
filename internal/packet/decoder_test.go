package packet

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tg0-data/etee-link/internal/schema"
)

func mustSchema(t *testing.T, doc string) *schema.PacketSchema {
	t.Helper()
	s, err := schema.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("schema.Parse failed: %v", err)
	}
	return s
}

func TestDecodeZeroFrame(t *testing.T) {
	d := NewDecoder(schema.MustDefault())
	raw := make([]byte, d.Schema().FrameLength())

	frame, err := d.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(frame) != d.Schema().NumFields() {
		t.Fatalf("decoded %d widgets, want %d", len(frame), d.Schema().NumFields())
	}

	for name, v := range frame {
		switch v.Kind() {
		case KindBool:
			if v.Bool() {
				t.Errorf("%s = true on zero frame", name)
			}
		case KindUint:
			if v.Uint() != 0 {
				t.Errorf("%s = %d on zero frame", name, v.Uint())
			}
		case KindInt:
			if v.Int() != 0 {
				t.Errorf("%s = %d on zero frame", name, v.Int())
			}
		}
	}
}

func TestDecodeDeterministic(t *testing.T) {
	d := NewDecoder(schema.MustDefault())

	raw := make([]byte, d.Schema().FrameLength())
	for i := range raw {
		raw[i] = byte(i*37 + 11)
	}
	raw[len(raw)-2], raw[len(raw)-1] = 0xFF, 0xFF

	first, err := d.Decode(raw)
	if err != nil {
		t.Fatalf("first decode failed: %v", err)
	}
	second, err := d.Decode(raw)
	if err != nil {
		t.Fatalf("second decode failed: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated decode differs (-first +second):\n%s", diff)
	}
}

func TestDecodeDoesNotMutateInput(t *testing.T) {
	d := NewDecoder(schema.MustDefault())

	raw := make([]byte, d.Schema().FrameLength())
	for i := range raw {
		raw[i] = byte(i)
	}
	want := append([]byte(nil), raw...)

	if _, err := d.Decode(raw); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(want, raw); diff != "" {
		t.Errorf("Decode mutated input:\n%s", diff)
	}
}

// TestDecodeBitOrder pins the bit-assembly convention: the first listed
// index is the most significant bit of the result.
func TestDecodeBitOrder(t *testing.T) {
	s := mustSchema(t, `
total_bytes:
  data_bytes: 8
  end_bytes: 0
widgets:
  level:
    bit: [47, 46, 45, 44, 43, 42, 41]
`)
	d := NewDecoder(s)

	raw := make([]byte, 8)
	// Pattern 1011001, MSB first over indices 47..41.
	for i, bit := range []int{47, 46, 45, 44, 43, 42, 41} {
		if "1011001"[i] == '1' {
			raw[bit/8] |= 1 << (bit % 8)
		}
	}

	frame, err := d.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := frame["level"].Uint(); got != 89 {
		t.Errorf("level = %d, want 89 (0b1011001)", got)
	}
}

func TestDecodeSingleBit(t *testing.T) {
	s := mustSchema(t, `
total_bytes:
  data_bytes: 2
  end_bytes: 0
widgets:
  low:
    byte: 1
    bit: 0
  high:
    byte: 1
    bit: 7
`)
	d := NewDecoder(s)

	frame, err := d.Decode([]byte{0x00, 0x81})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !frame["low"].Bool() {
		t.Error("low bit should be set")
	}
	if !frame["high"].Bool() {
		t.Error("high bit should be set")
	}

	frame, err = d.Decode([]byte{0xFF, 0x7E})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if frame["low"].Bool() || frame["high"].Bool() {
		t.Errorf("bits should be clear: low=%v high=%v", frame["low"], frame["high"])
	}
}

func TestDecodeSignedAssembly(t *testing.T) {
	s := mustSchema(t, `
total_bytes:
  data_bytes: 2
  end_bytes: 0
widgets:
  axis:
    byte: [0, 1]
    single_value: true
    signed: true
`)
	d := NewDecoder(s)

	cases := []struct {
		lo, hi byte
		want   int64
	}{
		{0xFF, 0xFF, -1},
		{0x00, 0x80, -32768},
		{0xFF, 0x7F, 32767},
		{0x00, 0x00, 0},
		{0x01, 0x00, 1},
	}
	for _, tc := range cases {
		frame, err := d.Decode([]byte{tc.lo, tc.hi})
		if err != nil {
			t.Fatalf("Decode(%#x %#x) failed: %v", tc.lo, tc.hi, err)
		}
		v := frame["axis"]
		if v.Kind() != KindInt {
			t.Fatalf("axis kind = %v, want int", v.Kind())
		}
		if v.Int() != tc.want {
			t.Errorf("axis(%#02x %#02x) = %d, want %d", tc.lo, tc.hi, v.Int(), tc.want)
		}
	}
}

func TestDecodeUnsignedAssembly(t *testing.T) {
	s := mustSchema(t, `
total_bytes:
  data_bytes: 3
  end_bytes: 0
widgets:
  axis:
    byte: [2, 0]
    single_value: true
`)
	d := NewDecoder(s)

	// First listed byte index is the low byte even when indices are not
	// adjacent or ascending.
	frame, err := d.Decode([]byte{0xAB, 0x00, 0xCD})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	v := frame["axis"]
	if v.Kind() != KindUint {
		t.Fatalf("axis kind = %v, want uint", v.Kind())
	}
	if got := v.Uint(); got != 0xABCD {
		t.Errorf("axis = %#04x, want 0xabcd", got)
	}
}

func TestDecodeLengthMismatch(t *testing.T) {
	d := NewDecoder(schema.MustDefault())
	frameLen := d.Schema().FrameLength()

	for _, n := range []int{frameLen - 1, frameLen + 1, 0} {
		frame, err := d.Decode(make([]byte, n))
		if !errors.Is(err, ErrFrameLength) {
			t.Errorf("Decode(len=%d) err = %v, want ErrFrameLength", n, err)
		}
		if frame != nil {
			t.Errorf("Decode(len=%d) returned partial frame", n)
		}
		var le *LengthError
		if !errors.As(err, &le) || le.Want != frameLen || le.Got != n {
			t.Errorf("Decode(len=%d) LengthError = %+v", n, le)
		}
	}
}

func TestReadBitPanicsOutOfBounds(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("readBit should panic on out-of-range index")
		}
	}()
	readBit(make([]byte, 2), 16)
}

func TestValueAccessors(t *testing.T) {
	b := BoolValue(true)
	if b.Kind() != KindBool || !b.Bool() || b.Uint() != 0 || b.Int() != 0 {
		t.Errorf("BoolValue accessors wrong: %v", b)
	}
	u := UintValue(126)
	if u.Kind() != KindUint || u.Uint() != 126 || u.Bool() {
		t.Errorf("UintValue accessors wrong: %v", u)
	}
	i := IntValue(-5)
	if i.Kind() != KindInt || i.Int() != -5 || i.Uint() != 0 {
		t.Errorf("IntValue accessors wrong: %v", i)
	}
	if !u.Equal(UintValue(126)) || u.Equal(IntValue(126)) {
		t.Error("Equal should compare kind and payload")
	}
}
