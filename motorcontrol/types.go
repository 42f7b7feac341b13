// Package motorcontrol models the motors and shared PWM channels of a twelve half-bridge DC
// motor controller and drives them through an opaque hardware Driver.
package motorcontrol

import (
	"strings"

	"github.com/pkg/errors"
)

// Board limits.
const (
	NumHalfBridges = 12
	NumPWMChannels = 3

	DefaultMinDutyCycle = uint8(50)
	DefaultMaxDutyCycle = uint8(255)
)

// Precondition errors.
var (
	ErrMotorIndex      = errors.New("motor index out of range")
	ErrChannel         = errors.New("unknown PWM channel")
	ErrDutyCycleBounds = errors.New("min duty cycle must not exceed max duty cycle")
)

// Direction is the rotation direction of a motor.
type Direction int

// Directions.
const (
	CW Direction = iota
	CCW
)

func (d Direction) String() string {
	if d == CCW {
		return "ccw"
	}
	return "cw"
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == CW {
		return CCW
	}
	return CW
}

// ParseDirection accepts "cw" or "ccw".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "cw":
		return CW, nil
	case "ccw":
		return CCW, nil
	default:
		return CW, errors.Errorf("unknown direction %q, expected cw or ccw", s)
	}
}

// FreeWheeling selects coasting (Active) or braking (Passive) while the driving half bridge is off.
type FreeWheeling int

// Freewheeling modes.
const (
	FreeWheelingActive FreeWheeling = iota
	FreeWheelingPassive
)

func (f FreeWheeling) String() string {
	if f == FreeWheelingPassive {
		return "passive"
	}
	return "active"
}

// Active is the flag forwarded to the driver.
func (f FreeWheeling) Active() bool {
	return f == FreeWheelingActive
}

// ParseFreeWheeling accepts "active" or "passive".
func ParseFreeWheeling(s string) (FreeWheeling, error) {
	switch strings.ToLower(s) {
	case "active":
		return FreeWheelingActive, nil
	case "passive":
		return FreeWheelingPassive, nil
	default:
		return FreeWheelingActive, errors.Errorf("unknown free wheeling mode %q, expected active or passive", s)
	}
}

// PWMChannel is one of the shared PWM generators, each with a fixed frequency.
type PWMChannel int

// PWM channels. The numeric value of a real channel is its 1-based hardware number.
const (
	NoPWM PWMChannel = iota
	PWM80Hz
	PWM100Hz
	PWM200Hz
)

// Channels lists the real PWM channels in hardware order.
var Channels = [NumPWMChannels]PWMChannel{PWM80Hz, PWM100Hz, PWM200Hz}

// Valid reports whether c is a real channel (not NoPWM).
func (c PWMChannel) Valid() bool {
	return c >= PWM80Hz && c <= PWM200Hz
}

// Frequency returns the generator frequency in Hz, 0 for NoPWM.
func (c PWMChannel) Frequency() int {
	switch c {
	case PWM80Hz:
		return 80
	case PWM100Hz:
		return 100
	case PWM200Hz:
		return 200
	default:
		return 0
	}
}

func (c PWMChannel) String() string {
	switch c {
	case PWM80Hz:
		return "80"
	case PWM100Hz:
		return "100"
	case PWM200Hz:
		return "200"
	default:
		return "noPWM"
	}
}

func (c PWMChannel) index() int {
	return int(c) - 1
}

// ParsePWMChannel accepts "80", "100", "200" (optionally suffixed with "hz") or "none"/"noPWM".
func ParsePWMChannel(s string) (PWMChannel, error) {
	switch strings.TrimSuffix(strings.ToLower(s), "hz") {
	case "", "none", "nopwm":
		return NoPWM, nil
	case "80":
		return PWM80Hz, nil
	case "100":
		return PWM100Hz, nil
	case "200":
		return PWM200Hz, nil
	default:
		return NoPWM, errors.Wrapf(ErrChannel, "%q", s)
	}
}

// Level is the output state of one half bridge.
type Level int

// Half bridge levels.
const (
	Floating Level = iota
	Low
	High
)

func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return "floating"
	}
}

// HalfBridge is a 1-based half bridge number in [1, NumHalfBridges].
type HalfBridge int

// CurrentMode fixes how many half bridges drive each motor pole.
type CurrentMode int

// Current modes.
const (
	NormalCurrent CurrentMode = iota
	HighCurrent
)

func (m CurrentMode) String() string {
	if m == HighCurrent {
		return "high_current"
	}
	return "normal"
}

// BridgesPerPole is 1 in normal mode and 2 in high current mode.
func (m CurrentMode) BridgesPerPole() int {
	if m == HighCurrent {
		return 2
	}
	return 1
}

// MaxMotors is the number of motors the board can host in this mode.
func (m CurrentMode) MaxMotors() int {
	return NumHalfBridges / (2 * m.BridgesPerPole())
}
