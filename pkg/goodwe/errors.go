package goodwe

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/simonvetter/modbus"
)

// ErrBackoffActive is returned for writes attempted while the reconnect
// backoff window is still open. It counts as non-fatal for the caller.
var ErrBackoffActive = errors.New("goodwe: reconnect backoff active")

// IsTransient reports whether an error is a transport-level fault worth a
// reconnect. Protocol-level rejections (illegal address/value/function) mean
// the connection is fine and the request was wrong, so they are not
// reconnect-worthy.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, modbus.ErrRequestTimedOut),
		errors.Is(err, modbus.ErrProtocolError),
		errors.Is(err, modbus.ErrShortFrame),
		errors.Is(err, modbus.ErrBadCRC),
		errors.Is(err, modbus.ErrGWTargetFailedToRespond):
		return true
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, os.ErrDeadlineExceeded):
		return true
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ETIMEDOUT):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
