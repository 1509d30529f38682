package dispatch

import "time"

// Error kinds recorded on failed temperature log rows.
const (
	ErrKindDeviceOffline     = "DEVICE_OFFLINE"
	ErrKindDispatchExhausted = "DISPATCH_EXHAUSTED"
	ErrKindInvalidCommand    = "INVALID_COMMAND"
	ErrKindInternal          = "INTERNAL"
)

// Result is the outcome of dispatching one setpoint command, including every
// retry attempt made for it.
type Result struct {
	ThermostatID         int64
	AttemptedTemperature float64
	Succeeded            bool
	ErrorKind            string
	AttemptCount         int
	DispatchedAt         time.Time
}
