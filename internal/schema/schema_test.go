package schema

import (
	"errors"
	"strings"
	"testing"
)

func mustParse(t *testing.T, doc string) *PacketSchema {
	t.Helper()
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return s
}

func TestParseMinimalSchema(t *testing.T) {
	s := mustParse(t, `
total_bytes:
  data_bytes: 4
  end_bytes: 2
widgets:
  flag:
    byte: 0
    bit: 3
  level:
    bit: [14, 13, 12]
  axis:
    byte: [1, 2]
    single_value: true
    signed: true
`)

	if got := s.FrameLength(); got != 6 {
		t.Errorf("FrameLength = %d, want 6", got)
	}
	if got := s.NumFields(); got != 3 {
		t.Errorf("NumFields = %d, want 3", got)
	}

	flag, ok := s.Lookup("flag")
	if !ok || flag.Encoding != SingleBit || flag.ByteIndex != 0 || flag.BitOffset != 3 {
		t.Errorf("flag spec wrong: %+v ok=%t", flag, ok)
	}

	level, ok := s.Lookup("level")
	if !ok || level.Encoding != MultiBitInteger {
		t.Fatalf("level spec wrong: %+v ok=%t", level, ok)
	}
	if len(level.BitIndices) != 3 || level.BitIndices[0] != 14 {
		t.Errorf("level bit indices = %v, want [14 13 12]", level.BitIndices)
	}

	axis, ok := s.Lookup("axis")
	if !ok || axis.Encoding != MultiByteInteger || !axis.Signed {
		t.Fatalf("axis spec wrong: %+v ok=%t", axis, ok)
	}
	if axis.ByteIndices != [2]int{1, 2} {
		t.Errorf("axis byte indices = %v, want [1 2]", axis.ByteIndices)
	}
}

func TestParsePreservesDefinitionOrder(t *testing.T) {
	s := mustParse(t, `
total_bytes:
  data_bytes: 2
  end_bytes: 0
widgets:
  b:
    byte: 0
    bit: 1
  a:
    byte: 0
    bit: 0
  c:
    byte: 1
    bit: 2
`)
	fields := s.Fields()
	want := []string{"b", "a", "c"}
	for i, name := range want {
		if fields[i].Name != name {
			t.Errorf("fields[%d] = %q, want %q", i, fields[i].Name, name)
		}
	}
}

func TestParseDuplicateField(t *testing.T) {
	_, err := Parse([]byte(`
total_bytes:
  data_bytes: 4
  end_bytes: 0
widgets:
  flag:
    byte: 0
    bit: 0
  flag:
    byte: 1
    bit: 1
`))
	if !errors.Is(err, ErrDuplicateField) {
		t.Fatalf("err = %v, want ErrDuplicateField", err)
	}
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != "flag" {
		t.Errorf("expected FieldError naming flag, got %v", err)
	}
}

func TestParseOutOfRange(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{
			"bit index at frame_length*8",
			`
total_bytes:
  data_bytes: 4
  end_bytes: 0
widgets:
  level:
    bit: [32, 31, 30]
`,
		},
		{
			"single bit byte past frame end",
			`
total_bytes:
  data_bytes: 2
  end_bytes: 1
widgets:
  flag:
    byte: 3
    bit: 0
`,
		},
		{
			"16-bit widget byte past frame end",
			`
total_bytes:
  data_bytes: 2
  end_bytes: 0
widgets:
  axis:
    byte: [1, 2]
    single_value: true
`,
		},
		{
			"negative bit index",
			`
total_bytes:
  data_bytes: 2
  end_bytes: 0
widgets:
  level:
    bit: [-1]
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("err = %v, want ErrOutOfRange", err)
			}
		})
	}
}

func TestParseMalformedSpec(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{
			"byte list without single_value",
			`
total_bytes:
  data_bytes: 4
  end_bytes: 0
widgets:
  axis:
    byte: [0, 1]
`,
		},
		{
			"byte list with three entries",
			`
total_bytes:
  data_bytes: 4
  end_bytes: 0
widgets:
  axis:
    byte: [0, 1, 2]
    single_value: true
`,
		},
		{
			"byte list with repeated index",
			`
total_bytes:
  data_bytes: 4
  end_bytes: 0
widgets:
  axis:
    byte: [1, 1]
    single_value: true
`,
		},
		{
			"scalar byte without bit offset",
			`
total_bytes:
  data_bytes: 4
  end_bytes: 0
widgets:
  flag:
    byte: 0
`,
		},
		{
			"bit offset outside a byte",
			`
total_bytes:
  data_bytes: 4
  end_bytes: 0
widgets:
  flag:
    byte: 0
    bit: 8
`,
		},
		{
			"scalar bit without byte",
			`
total_bytes:
  data_bytes: 4
  end_bytes: 0
widgets:
  level:
    bit: 3
`,
		},
		{
			"empty bit list",
			`
total_bytes:
  data_bytes: 4
  end_bytes: 0
widgets:
  level:
    bit: []
`,
		},
		{
			"entry with no location keys",
			`
total_bytes:
  data_bytes: 4
  end_bytes: 0
widgets:
  ghost:
    signed: true
`,
		},
		{
			"missing widgets section",
			`
total_bytes:
  data_bytes: 4
  end_bytes: 0
`,
		},
		{
			"zero data bytes",
			`
total_bytes:
  data_bytes: 0
  end_bytes: 2
widgets:
  flag:
    byte: 0
    bit: 0
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if !errors.Is(err, ErrMalformedSpec) {
				t.Fatalf("err = %v, want ErrMalformedSpec", err)
			}
		})
	}
}

func TestLoadReader(t *testing.T) {
	s, err := Load(strings.NewReader(`
total_bytes:
  data_bytes: 1
  end_bytes: 0
widgets:
  flag:
    byte: 0
    bit: 0
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.FrameLength() != 1 {
		t.Errorf("FrameLength = %d, want 1", s.FrameLength())
	}
}

func TestLoadFileRejectsWrongExtension(t *testing.T) {
	_, err := LoadFile("layout.json")
	if err == nil || !strings.Contains(err.Error(), ".yaml") {
		t.Fatalf("expected extension error, got %v", err)
	}
}

func TestDefaultSchema(t *testing.T) {
	s := MustDefault()

	if got := s.FrameLength(); got != 44 {
		t.Errorf("stock frame length = %d, want 44", got)
	}
	if got := s.DataBytes(); got != 42 {
		t.Errorf("stock data bytes = %d, want 42", got)
	}

	// Spot-check one widget of each encoding.
	hand, ok := s.Lookup("hand")
	if !ok || hand.Encoding != SingleBit {
		t.Errorf("hand spec wrong: %+v ok=%t", hand, ok)
	}
	pull, ok := s.Lookup("thumb_pull")
	if !ok || pull.Encoding != MultiBitInteger || len(pull.BitIndices) != 7 {
		t.Errorf("thumb_pull spec wrong: %+v ok=%t", pull, ok)
	}
	ax, ok := s.Lookup("accel_x")
	if !ok || ax.Encoding != MultiByteInteger || !ax.Signed {
		t.Errorf("accel_x spec wrong: %+v ok=%t", ax, ok)
	}

	// Default is cached and shared.
	again := MustDefault()
	if again != s {
		t.Error("Default should return the same schema instance")
	}
}
