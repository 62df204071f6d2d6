package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// Decoder reassembles frames from a byte stream.
type Decoder struct {
	r          io.Reader
	packetSize int
	maxFrame   int
	raw        bool

	buf []byte
	acc bytes.Buffer
}

// NewDecoder returns a Decoder reading at most packetSize bytes per call
// from r. A maxFrame of zero or less leaves the accumulator unbounded.
func NewDecoder(r io.Reader, packetSize, maxFrame int) *Decoder {
	if packetSize <= 0 {
		packetSize = DefaultPacketSize
	}
	return &Decoder{
		r:          r,
		packetSize: packetSize,
		maxFrame:   maxFrame,
		buf:        make([]byte, packetSize),
	}
}

// NewRawDecoder returns a Decoder that yields every non-blank read as its
// own message, without looking for a terminator. Peers that do not speak
// the framing (HTTP user agents) are read this way.
func NewRawDecoder(r io.Reader, packetSize int) *Decoder {
	d := NewDecoder(r, packetSize, 0)
	d.raw = true
	return d
}

// Next blocks until a complete frame is available and returns it with the
// terminator stripped. Blank frames are skipped. Once the reader fails Next
// returns the classified error; bytes of an unfinished frame are dropped.
func (d *Decoder) Next() (string, error) {
	for {
		n, err := d.r.Read(d.buf)
		if n > 0 {
			chunk := d.buf[:n]
			if d.raw {
				if !isBlank(chunk) {
					return Decode(chunk), nil
				}
			} else if frame, ok, ferr := d.feed(chunk); ferr != nil {
				return "", ferr
			} else if ok {
				return frame, nil
			}
		}
		if err != nil {
			d.acc.Reset()
			return "", Classify(err)
		}
		if n == 0 {
			// A zero-byte read without an error still means the peer is gone.
			d.acc.Reset()
			return "", fmt.Errorf("%w: empty read", ErrClosed)
		}
	}
}

// feed appends chunk to the accumulator and reports a completed frame.
func (d *Decoder) feed(chunk []byte) (string, bool, error) {
	if d.acc.Len() == 0 && isBlank(chunk) {
		return "", false, nil
	}
	d.acc.Write(chunk)
	if d.maxFrame > 0 && d.acc.Len() > d.maxFrame+len(terminator) {
		d.acc.Reset()
		return "", false, fmt.Errorf("%w: more than %d bytes without terminator", ErrFrameTooLarge, d.maxFrame)
	}
	if !bytes.HasSuffix(d.acc.Bytes(), terminator) {
		return "", false, nil
	}

	body := d.acc.Bytes()[:d.acc.Len()-len(terminator)]
	frame := Decode(body)
	blank := isBlank(body)
	d.acc.Reset()
	if blank {
		return "", false, nil
	}
	return frame, true, nil
}

func isBlank(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0
}
