package serialmux

import (
	"bufio"
	"bytes"
	"io"
)

// newStreamSplitter returns a bufio.SplitFunc for the dongle's mixed
// stream. The dongle interleaves two token types on one wire: binary
// data frames terminated by 0xFF 0xFF and textual print messages
// terminated by CRLF. Tokens end at whichever delimiter appears first,
// delimiter included; classification by length happens afterwards in
// classify.
//
// A data frame whose payload happens to contain a CRLF byte pair is cut
// short here, the same way the reference firmware protocol behaves; the
// resulting wrong-length chunks are classified as junk and the stream
// re-syncs at the next genuine delimiter.
func newStreamSplitter() bufio.SplitFunc {
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if len(data) == 0 {
			return 0, nil, nil
		}

		iFrame := bytes.Index(data, frameEnd)
		iLine := bytes.Index(data, crlf)

		cut := -1
		switch {
		case iFrame >= 0 && (iLine < 0 || iFrame < iLine):
			cut = iFrame
		case iLine >= 0:
			cut = iLine
		}
		if cut >= 0 {
			end := cut + 2 // both delimiters are two bytes
			return end, data[:end], nil
		}

		if atEOF {
			// Trailing partial token with no delimiter: drop it.
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
}

// Scan splits a captured dongle byte stream and calls fn for each
// reading, in order. fn returning false stops the scan early.
func Scan(r io.Reader, frameLen int, fn func(Reading) bool) error {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 4096), 64*1024)
	scan.Split(newStreamSplitter())
	for scan.Scan() {
		if !fn(classify(scan.Bytes(), frameLen)) {
			return nil
		}
	}
	return scan.Err()
}
