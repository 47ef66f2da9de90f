// Package schema loads and validates the widget layout that describes
// where each named value lives inside a controller data frame.
//
// The layout is consumed once at startup from a YAML document (see
// etee_controller.yaml for the stock layout). Every entry is resolved to
// exactly one of three encodings at load time, and all byte/bit indices
// are bounds-checked against the frame length. Decoding never re-checks
// bounds, so a PacketSchema that came out of Load is the single source
// of truth for frame geometry.
package schema

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Encoding identifies how a widget's value is reconstructed from the
// raw frame. The set is closed: Load maps every YAML entry to exactly
// one of these or fails.
type Encoding int

const (
	// SingleBit is one boolean stored at a fixed bit of a fixed byte.
	SingleBit Encoding = iota
	// MultiBitInteger is an unsigned integer assembled from an ordered
	// list of global bit indices, first entry most significant.
	MultiBitInteger
	// MultiByteInteger is a 16-bit value assembled from two byte
	// indices, first entry the low byte, optionally two's-complement.
	MultiByteInteger
)

func (e Encoding) String() string {
	switch e {
	case SingleBit:
		return "single_bit"
	case MultiBitInteger:
		return "multi_bit_integer"
	case MultiByteInteger:
		return "multi_byte_integer"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// FieldSpec is one validated widget entry. Only the location fields
// relevant to its Encoding are meaningful.
type FieldSpec struct {
	Name     string
	Encoding Encoding

	// SingleBit location.
	ByteIndex int
	BitOffset int // 0..7, LSB first within the byte

	// MultiBitInteger location: global bit indices, MSB first.
	BitIndices []int

	// MultiByteInteger location: low byte index then high byte index.
	ByteIndices [2]int
	Signed      bool
}

// PacketSchema is the immutable result of a successful Load. It is safe
// to share across goroutines without synchronization.
type PacketSchema struct {
	dataBytes int
	endBytes  int
	fields    []FieldSpec
	index     map[string]int
}

// FrameLength returns the exact byte length of one raw frame,
// data bytes plus trailing end-marker bytes.
func (s *PacketSchema) FrameLength() int { return s.dataBytes + s.endBytes }

// DataBytes returns the payload byte count of one frame.
func (s *PacketSchema) DataBytes() int { return s.dataBytes }

// EndBytes returns the trailing marker byte count of one frame.
func (s *PacketSchema) EndBytes() int { return s.endBytes }

// Fields returns the widget specs in their order of definition. The
// returned slice is a copy; the schema itself never changes after Load.
func (s *PacketSchema) Fields() []FieldSpec {
	out := make([]FieldSpec, len(s.fields))
	copy(out, s.fields)
	return out
}

// NumFields returns the number of widgets in the schema.
func (s *PacketSchema) NumFields() int { return len(s.fields) }

// Lookup returns the spec for a widget name.
func (s *PacketSchema) Lookup(name string) (FieldSpec, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[i], true
}

// wireConfig mirrors the YAML document shape. Widgets stay a raw node so
// duplicate keys and per-entry shapes can be checked explicitly rather
// than trusting the decoder's map semantics.
type wireConfig struct {
	TotalBytes struct {
		DataBytes int `yaml:"data_bytes"`
		EndBytes  int `yaml:"end_bytes"`
	} `yaml:"total_bytes"`
	Widgets yaml.Node `yaml:"widgets"`
}

// wireWidget is one loosely-typed widget entry. byte and bit may each be
// a scalar or a sequence; single_value and signed are presence flags.
type wireWidget struct {
	Byte        yaml.Node `yaml:"byte"`
	Bit         yaml.Node `yaml:"bit"`
	SingleValue yaml.Node `yaml:"single_value"`
	Signed      yaml.Node `yaml:"signed"`
}

// Load parses and validates a widget layout from r. Validation is
// exhaustive: the first malformed entry, duplicate name, or
// out-of-bounds index aborts the load with no partial result.
func Load(r io.Reader) (*PacketSchema, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("schema: read: %w", err)
	}
	return Parse(raw)
}

// LoadFile loads a widget layout from a YAML file on disk.
func LoadFile(path string) (*PacketSchema, error) {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("schema: config file must have .yaml extension, got %q", ext)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", clean, err)
	}
	return Parse(data)
}

// Parse builds a PacketSchema from YAML bytes.
func Parse(data []byte) (*PacketSchema, error) {
	var cfg wireConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("schema: parse yaml: %w", err)
	}
	if cfg.TotalBytes.DataBytes <= 0 {
		return nil, fmt.Errorf("%w: total_bytes.data_bytes must be positive, got %d",
			ErrMalformedSpec, cfg.TotalBytes.DataBytes)
	}
	if cfg.TotalBytes.EndBytes < 0 {
		return nil, fmt.Errorf("%w: total_bytes.end_bytes must be non-negative, got %d",
			ErrMalformedSpec, cfg.TotalBytes.EndBytes)
	}

	s := &PacketSchema{
		dataBytes: cfg.TotalBytes.DataBytes,
		endBytes:  cfg.TotalBytes.EndBytes,
		index:     make(map[string]int),
	}

	if cfg.Widgets.Kind == 0 || cfg.Widgets.IsZero() {
		return nil, fmt.Errorf("%w: missing widgets section", ErrMalformedSpec)
	}
	if cfg.Widgets.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: widgets must be a mapping", ErrMalformedSpec)
	}

	// Mapping nodes store key/value pairs flattened into Content. Walking
	// them directly lets duplicate widget names surface as errors instead
	// of silently overwriting.
	for i := 0; i+1 < len(cfg.Widgets.Content); i += 2 {
		keyNode, valNode := cfg.Widgets.Content[i], cfg.Widgets.Content[i+1]
		name := keyNode.Value

		if _, exists := s.index[name]; exists {
			return nil, fieldErr(name, ErrDuplicateField, "defined twice")
		}

		var w wireWidget
		if err := valNode.Decode(&w); err != nil {
			return nil, fieldErr(name, ErrMalformedSpec, "decode: %v", err)
		}

		spec, err := resolveWidget(name, &w)
		if err != nil {
			return nil, err
		}
		if err := s.checkBounds(spec); err != nil {
			return nil, err
		}

		s.index[name] = len(s.fields)
		s.fields = append(s.fields, spec)
	}

	if len(s.fields) == 0 {
		return nil, fmt.Errorf("%w: widgets section is empty", ErrMalformedSpec)
	}
	return s, nil
}

// resolveWidget picks the encoding for one entry from the keys it
// carries and checks the shape of its location data.
//
//	byte scalar + bit scalar            -> SingleBit
//	bit sequence, no byte               -> MultiBitInteger
//	byte sequence + single_value flag   -> MultiByteInteger
//
// Every other combination is malformed.
func resolveWidget(name string, w *wireWidget) (FieldSpec, error) {
	hasByte := !w.Byte.IsZero()
	hasBit := !w.Bit.IsZero()
	singleValue := !w.SingleValue.IsZero()
	signed := !w.Signed.IsZero()

	switch {
	case hasByte && w.Byte.Kind == yaml.ScalarNode:
		if !hasBit || w.Bit.Kind != yaml.ScalarNode {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec,
				"scalar byte requires a scalar bit offset")
		}
		var byteIdx, bitOff int
		if err := w.Byte.Decode(&byteIdx); err != nil {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec, "byte: %v", err)
		}
		if err := w.Bit.Decode(&bitOff); err != nil {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec, "bit: %v", err)
		}
		if bitOff < 0 || bitOff > 7 {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec,
				"bit offset %d outside 0..7", bitOff)
		}
		return FieldSpec{
			Name:      name,
			Encoding:  SingleBit,
			ByteIndex: byteIdx,
			BitOffset: bitOff,
		}, nil

	case hasByte && w.Byte.Kind == yaml.SequenceNode:
		if !singleValue {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec,
				"byte list without single_value flag")
		}
		if hasBit {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec,
				"byte list cannot be combined with bit")
		}
		var idxs []int
		if err := w.Byte.Decode(&idxs); err != nil {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec, "byte: %v", err)
		}
		if len(idxs) != 2 {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec,
				"16-bit widget needs exactly 2 byte indices, got %d", len(idxs))
		}
		if idxs[0] == idxs[1] {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec,
				"16-bit widget byte indices must be distinct")
		}
		return FieldSpec{
			Name:        name,
			Encoding:    MultiByteInteger,
			ByteIndices: [2]int{idxs[0], idxs[1]},
			Signed:      signed,
		}, nil

	case !hasByte && hasBit:
		if w.Bit.Kind != yaml.SequenceNode {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec,
				"bit without byte must be a list of global bit indices")
		}
		var idxs []int
		if err := w.Bit.Decode(&idxs); err != nil {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec, "bit: %v", err)
		}
		if len(idxs) == 0 {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec, "empty bit list")
		}
		if len(idxs) > 64 {
			return FieldSpec{}, fieldErr(name, ErrMalformedSpec,
				"bit list longer than 64 entries")
		}
		return FieldSpec{
			Name:       name,
			Encoding:   MultiBitInteger,
			BitIndices: idxs,
		}, nil

	default:
		return FieldSpec{}, fieldErr(name, ErrMalformedSpec,
			"entry has neither a usable byte nor bit location")
	}
}

// checkBounds verifies every index a spec references fits inside the
// frame. This is the only place bounds are enforced; the decoder trusts
// the schema afterwards.
func (s *PacketSchema) checkBounds(spec FieldSpec) error {
	frameLen := s.FrameLength()
	switch spec.Encoding {
	case SingleBit:
		if spec.ByteIndex < 0 || spec.ByteIndex >= frameLen {
			return fieldErr(spec.Name, ErrOutOfRange,
				"byte index %d outside frame of %d bytes", spec.ByteIndex, frameLen)
		}
	case MultiBitInteger:
		limit := frameLen * 8
		for _, b := range spec.BitIndices {
			if b < 0 || b >= limit {
				return fieldErr(spec.Name, ErrOutOfRange,
					"bit index %d outside frame of %d bits", b, limit)
			}
		}
	case MultiByteInteger:
		for _, b := range spec.ByteIndices {
			if b < 0 || b >= frameLen {
				return fieldErr(spec.Name, ErrOutOfRange,
					"byte index %d outside frame of %d bytes", b, frameLen)
			}
		}
	}
	return nil
}
