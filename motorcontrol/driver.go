package motorcontrol

import "context"

// Driver is the hardware collaborator that owns the half bridge and PWM registers.
// Callers must not interleave calls from several goroutines; Controller serializes them.
type Driver interface {
	// ConfigureHalfBridge sets one half bridge output level, its PWM source and freewheeling.
	ConfigureHalfBridge(ctx context.Context, hb HalfBridge, level Level, ch PWMChannel, freeWheeling bool) error
	// ConfigurePWM runs a generator at its fixed frequency with the given duty cycle.
	ConfigurePWM(ctx context.Context, ch PWMChannel, dutyCycle uint8) error
	// Diagnosis returns the latched system diagnosis bitmask. Zero means all clear.
	Diagnosis(ctx context.Context) (Diagnosis, error)
	// ClearErrors resets the latched error flags.
	ClearErrors(ctx context.Context) error
	// Close powers the driver down.
	Close(ctx context.Context) error
}

// Diagnosis is the system diagnosis bitmask. A set bit is an active fault.
type Diagnosis uint8

// Diagnosis bits, laid out as the TLE94112 SYS_DIAG1 register with the power on reset flag
// normalized to active high.
const (
	DiagOK           Diagnosis = 0x00
	DiagTempWarning  Diagnosis = 0x02
	DiagTempShutdown Diagnosis = 0x04
	DiagPowerOnReset Diagnosis = 0x08
	DiagOverVoltage  Diagnosis = 0x10
	DiagUnderVoltage Diagnosis = 0x20
	DiagOpenLoad     Diagnosis = 0x40
	DiagSPIError     Diagnosis = 0x80
)

// Has reports whether every bit of flag is set in d.
func (d Diagnosis) Has(flag Diagnosis) bool {
	return flag != 0 && d&flag == flag
}
