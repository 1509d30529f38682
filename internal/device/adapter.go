package device

import (
	"context"
	"fmt"
)

// Mode selects the HVAC direction for a setpoint command.
type Mode string

const (
	ModeCool Mode = "cool"
	ModeHeat Mode = "heat"
)

// FailureKind classifies adapter failures for retry decisions.
type FailureKind string

const (
	// FailureTransient covers network errors and timeouts; worth retrying.
	FailureTransient FailureKind = "transient"
	// FailureInvalid means the device rejected the command itself, e.g. a
	// setpoint outside its supported range. Retrying cannot help.
	FailureInvalid FailureKind = "invalid"
	// FailureOffline means the device is known unreachable.
	FailureOffline FailureKind = "offline"
)

// AdapterError is the error type every adapter returns from SetTemperature.
type AdapterError struct {
	Kind FailureKind
	Msg  string
	Err  error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *AdapterError) Unwrap() error { return e.Err }

func transientErr(msg string, err error) *AdapterError {
	return &AdapterError{Kind: FailureTransient, Msg: msg, Err: err}
}

func invalidErr(msg string) *AdapterError {
	return &AdapterError{Kind: FailureInvalid, Msg: msg}
}

// Adapter is the fixed capability set every vendor integration exposes.
// Implementations are stateless per call and safe for concurrent use.
type Adapter interface {
	// IsOnline reports device connectivity as the vendor cloud sees it.
	IsOnline(ctx context.Context) (bool, error)
	// SetTemperature commands a setpoint. Failures are always *AdapterError.
	SetTemperature(ctx context.Context, value float64, mode Mode) error
}
