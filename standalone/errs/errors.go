// Package errs defines the closed taxonomy of error sentinels the firmware
// core returns. Every operation that can fail returns one of these values
// (or wraps one with fmt.Errorf's %w) rather than panicking or unwinding.
package errs

import "errors"

var (
	// ErrBadArgument is returned when a public operation receives an
	// out-of-range or otherwise invalid parameter. The operation returns
	// without side effects.
	ErrBadArgument = errors.New("bad argument")

	// ErrUnknownCommand is returned when a dispatched opcode is not in the
	// supported command table.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrOutOfBounds is returned when a requested motion endpoint violates
	// a configured soft limit. The move is rejected whole.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrQueueFull is returned when the move pool or lookahead ring is
	// saturated and a flush pass could not free space.
	ErrQueueFull = errors.New("queue full")

	// ErrHomingFailed is returned when a homing episode times out without
	// an endstop assertion.
	ErrHomingFailed = errors.New("homing failed")

	// ErrSensorInvalid is returned when an ADC read yields the error
	// sentinel value for a thermistor channel.
	ErrSensorInvalid = errors.New("sensor invalid")

	// ErrPoolExhausted is returned by a fixed-size pool (move,
	// stepper-kinematics, trapq) when no free slot remains. This is a
	// design-time budget violation, not a transient condition.
	ErrPoolExhausted = errors.New("pool exhausted")
)

// Is reports whether err is, or wraps, target — a thin re-export of
// errors.Is so callers need only import this package when matching on the
// taxonomy above.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
