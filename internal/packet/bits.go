package packet

import "fmt"

// Bit numbering convention, used consistently end to end: a global bit
// index counts from the start of the frame, and within each byte bit 0
// is the least-significant bit. Global bit i therefore lives at
// frame[i/8] >> (i%8).
//
// Bounds are a schema-load responsibility; these primitives do not
// re-validate per call. The explicit panic below is a defensive
// assertion against a decoder bug, not an input check.

// readBit returns global bit idx of the frame as 0 or 1.
func readBit(frame []byte, idx int) byte {
	if idx < 0 || idx >= len(frame)*8 {
		panic(fmt.Sprintf("packet: bit index %d outside %d-byte frame", idx, len(frame)))
	}
	return (frame[idx>>3] >> (idx & 7)) & 1
}

// readBits folds the listed global bit indices into an unsigned
// integer, first index most significant. The result width equals
// len(idxs); schemas list indices in descending numeric order so the
// highest physical bit lands in the highest result bit.
func readBits(frame []byte, idxs []int) uint64 {
	var v uint64
	for _, idx := range idxs {
		v = v<<1 | uint64(readBit(frame, idx))
	}
	return v
}
