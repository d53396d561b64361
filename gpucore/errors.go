package gpucore

import (
	"github.com/cockroachdb/errors"
)

// Error classes. Errors returned by a [Device] are marked with one of these
// so callers can classify them with errors.Is regardless of wrapping.
var (
	// ErrDeviceLost marks a removed or reset device, or a fence wait that
	// timed out. Recovery is full teardown and recreation.
	ErrDeviceLost = errors.New("gpucore: device lost")

	// ErrFatal marks initialization failures that are not retried.
	ErrFatal = errors.New("gpucore: fatal initialization failure")

	// ErrNoAdapter is returned when no adapter supports the required
	// feature level.
	ErrNoAdapter = errors.New("gpucore: no capable adapter")

	// ErrInvalidState is returned for command lists or resources used out
	// of their lifecycle (recording into a closed list, mapping a
	// device-local buffer, mismatched barriers).
	ErrInvalidState = errors.New("gpucore: invalid resource state")

	// ErrUnknownResource is returned for IDs the device does not own.
	ErrUnknownResource = errors.New("gpucore: unknown resource")
)

// DeviceError reports a failed driver call.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return "gpucore: " + e.Op + ": " + e.Err.Error()
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Wrap returns a DeviceError for op. It returns nil if err is nil.
// Marks on err are preserved.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Op: op, Err: err}
}

// DeviceLost marks err as a device-lost condition.
func DeviceLost(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrDeviceLost)
}

// Fatal marks err as a fatal initialization failure.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrFatal)
}

// IsDeviceLost reports whether err was marked device-lost.
func IsDeviceLost(err error) bool {
	return errors.Is(err, ErrDeviceLost)
}

// IsFatal reports whether err was marked fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
