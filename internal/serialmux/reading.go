package serialmux

import (
	"bytes"
	"fmt"
)

// ReadingKind classifies one token from the dongle stream.
type ReadingKind int

const (
	// ReadingData is a complete sensor data frame, end marker included.
	ReadingData ReadingKind = iota
	// ReadingPrint is a CRLF-terminated status or command-response line.
	ReadingPrint
	// ReadingJunk is a delimiter-terminated chunk of unexpected length,
	// typically the tail of a frame cut short by an embedded CRLF. The
	// stream re-syncs at the next delimiter.
	ReadingJunk
)

func (k ReadingKind) String() string {
	switch k {
	case ReadingData:
		return "data"
	case ReadingPrint:
		return "print"
	case ReadingJunk:
		return "junk"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reading is one classified token from the serial stream. For
// ReadingData, Frame holds the full raw frame including the trailing
// end-marker bytes. For ReadingPrint, Text holds the line including its
// CRLF terminator, matching what the dongle emits.
type Reading struct {
	Kind  ReadingKind
	Frame []byte
	Text  string
}

var (
	frameEnd = []byte{0xFF, 0xFF}
	crlf     = []byte("\r\n")
)

// classify turns a delimiter-terminated token into a Reading. Data
// frames are recognized by the 0xFFFF trailer and an exact length
// match; anything CRLF-terminated is a print message.
func classify(token []byte, frameLen int) Reading {
	if bytes.HasSuffix(token, frameEnd) {
		if len(token) == frameLen {
			frame := make([]byte, len(token))
			copy(frame, token)
			return Reading{Kind: ReadingData, Frame: frame}
		}
		return Reading{Kind: ReadingJunk, Frame: append([]byte(nil), token...)}
	}
	if bytes.HasSuffix(token, crlf) {
		return Reading{Kind: ReadingPrint, Text: string(token)}
	}
	return Reading{Kind: ReadingJunk, Frame: append([]byte(nil), token...)}
}
