package c2prog

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds reported by the package. Use errors.Is to test for them.
var (
	// ErrBusTimeout signals that a polling loop (WAIT field, busy or ready
	// wait) ran out of retries.
	ErrBusTimeout = errors.New("bus timeout")
	// ErrProtocolRejected signals that the programming interface answered
	// with something other than the command OK code.
	ErrProtocolRejected = errors.New("command rejected")
	// ErrUnsupportedDevice signals that no family matches the device ID.
	ErrUnsupportedDevice = errors.New("unsupported device")
	// ErrStorageIO signals a failure reading or writing a file.
	ErrStorageIO = errors.New("storage i/o")
	// ErrOutOfRange signals a flash request outside the device address space.
	ErrOutOfRange = errors.New("address out of range")
	// ErrLine signals that one of the digital lines could not be driven or read.
	ErrLine = errors.New("line i/o")
)

// Programming interface response codes.
const (
	ResponseInvalidCommand = 0x00
	ResponseCommandFailed  = 0x02
	ResponseCommandOK      = 0x0D
)

// GetResponseCodeString returns the string representation of a PI response code.
func GetResponseCodeString(code byte) string {
	switch code {
	case ResponseInvalidCommand:
		return "invalid command"
	case ResponseCommandFailed:
		return "command failed"
	case ResponseCommandOK:
		return "command ok"
	default:
		return "invalid response code"
	}
}

// ResponseError is returned when a PI command is answered with anything but
// ResponseCommandOK.
type ResponseError struct {
	Command byte
	Code    byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("command %02X returned %02X: %v", e.Command, e.Code, GetResponseCodeString(e.Code))
}

// Is reports ResponseError as ErrProtocolRejected.
func (e *ResponseError) Is(target error) bool { return target == ErrProtocolRejected }

// FlashError records the flash address an operation failed at.
type FlashError struct {
	Address uint32
	Err     error
}

func (e *FlashError) Error() string {
	return fmt.Sprintf("error at %04X: %v", e.Address, e.Err)
}

func (e *FlashError) Unwrap() error { return e.Err }

// MismatchError is returned by verification when flash differs from the
// expected data.
type MismatchError struct {
	Address  uint32
	Expected byte
	Read     byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("mismatch at %04X, expected %02X read %02X", e.Address, e.Expected, e.Read)
}

// Kind returns a short name for the kind of failure err represents.
func Kind(err error) string {
	var mismatch *MismatchError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrBusTimeout):
		return "bus timeout"
	case errors.Is(err, ErrProtocolRejected):
		return "protocol rejected"
	case errors.Is(err, ErrUnsupportedDevice):
		return "unsupported device"
	case errors.Is(err, ErrStorageIO):
		return "storage i/o"
	case errors.Is(err, ErrOutOfRange):
		return "out of range"
	case errors.Is(err, ErrLine):
		return "line i/o"
	case errors.As(err, &mismatch):
		return "verify mismatch"
	default:
		return "failure"
	}
}
