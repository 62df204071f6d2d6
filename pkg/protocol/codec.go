// Package protocol implements the terminator-delimited framing used on every
// connection: payloads are Latin-1 text followed by the literal "finished".
//
// The scheme has no length prefix. A body that itself ends in the terminator
// is cut short on receive, and two frames that arrive in a single read are
// delivered as one. Neither case is detected; payloads that are not plain
// text should not rely on this framing.
package protocol

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding/charmap"
)

// Terminator marks the end of every tagged frame on the wire.
const Terminator = "finished"

const (
	// DefaultPacketSize is the number of bytes moved per socket read or write.
	DefaultPacketSize = 512

	// DefaultMaxFrameSize bounds the receive accumulator.
	DefaultMaxFrameSize = 8 * 1024 * 1024
)

var terminator = []byte(Terminator)

// Encode converts msg to Latin-1 and appends the terminator.
func Encode(msg string) ([]byte, error) {
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(msg))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnencodable, err)
	}
	return append(b, terminator...), nil
}

// EncodeRaw returns b unchanged, with the terminator appended when tag is set.
// The input slice is never modified.
func EncodeRaw(b []byte, tag bool) []byte {
	out := make([]byte, 0, len(b)+len(terminator))
	out = append(out, b...)
	if tag {
		out = append(out, terminator...)
	}
	return out
}

// Decode converts Latin-1 bytes to a string. Every byte maps to one rune.
func Decode(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		// ISO-8859-1 decoding is total.
		return string(b)
	}
	return string(s)
}

// WriteChunked writes b to w in successive packetSize slices. The final
// partial slice is written whole.
func WriteChunked(w io.Writer, b []byte, packetSize int) error {
	if packetSize <= 0 {
		packetSize = DefaultPacketSize
	}
	for len(b) > packetSize {
		if _, err := w.Write(b[:packetSize]); err != nil {
			return Classify(err)
		}
		b = b[packetSize:]
	}
	if len(b) == 0 {
		return nil
	}
	if _, err := w.Write(b); err != nil {
		return Classify(err)
	}
	return nil
}
