package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	ErrClosed        = errors.New("protocol: connection closed")
	ErrReset         = errors.New("protocol: connection reset")
	ErrTimeout       = errors.New("protocol: i/o timeout")
	ErrProtocol      = errors.New("protocol: violation")
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrProtocol)
	ErrUnencodable   = fmt.Errorf("%w: message not representable in latin-1", ErrProtocol)
)

// Classify maps a transport error onto the package taxonomy. The returned
// error wraps both the category and the original cause. Errors that are
// already classified, and nil, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrReset) ||
		errors.Is(err, ErrTimeout) || errors.Is(err, ErrProtocol) {
		return err
	}

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNABORTED), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", ErrReset, err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrReset, err)
}

// IsGraceful reports whether err describes an orderly close by either side.
func IsGraceful(err error) bool {
	return err == nil || errors.Is(err, ErrClosed)
}
