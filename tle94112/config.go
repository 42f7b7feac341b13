//go:build linux

package tle94112

import (
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/resource"

	"github.com/viam-modules/infineon/motorcontrol"
)

// Defaults for optional attributes.
const (
	defaultManualFullScale = 1023
	defaultMaxRPM          = 100
)

// MotorSettings is the initial state of one motor, applied when the board is built.
type MotorSettings struct {
	Motor        int    `json:"motor"`
	Enabled      bool   `json:"enabled,omitempty"`
	Direction    string `json:"direction,omitempty"`
	Ramp         bool   `json:"ramp,omitempty"`
	FreeWheeling string `json:"free_wheeling,omitempty"`
	PWM          string `json:"pwm,omitempty"`
}

// ChannelSettings are the initial bounds of one PWM channel.
type ChannelSettings struct {
	Channel      string `json:"channel"`
	MinDutyCycle *int   `json:"min_duty_cycle,omitempty"`
	MaxDutyCycle *int   `json:"max_duty_cycle,omitempty"`
	Manual       bool   `json:"manual,omitempty"`
}

// Config describes the configuration of a TLE94112 board.
type Config struct {
	SPIBus           string            `json:"spi_bus"`
	ChipSelect       string            `json:"chip_select"`
	BoardName        string            `json:"board,omitempty"` // used for enable_pin and manual_analog
	EnablePin        string            `json:"enable_pin,omitempty"`
	HighCurrent      bool              `json:"high_current,omitempty"`
	SuppressOpenLoad *bool             `json:"suppress_open_load,omitempty"`
	StepDelayMS      int               `json:"step_delay_ms,omitempty"`
	ReverseDelayMS   int               `json:"reverse_delay_ms,omitempty"`
	ManualAnalog     string            `json:"manual_analog,omitempty"`
	ManualFullScale  int               `json:"manual_full_scale,omitempty"`
	Motors           []MotorSettings   `json:"motors,omitempty"`
	PWMChannels      []ChannelSettings `json:"pwm_channels,omitempty"`
}

func (conf *Config) mode() motorcontrol.CurrentMode {
	if conf.HighCurrent {
		return motorcontrol.HighCurrent
	}
	return motorcontrol.NormalCurrent
}

func (conf *Config) suppressOpenLoad() bool {
	return conf.SuppressOpenLoad == nil || *conf.SuppressOpenLoad
}

func (conf *Config) stepDelay() time.Duration {
	return time.Duration(conf.StepDelayMS) * time.Millisecond
}

func (conf *Config) reverseDelay() time.Duration {
	return time.Duration(conf.ReverseDelayMS) * time.Millisecond
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) ([]string, []string, error) {
	var deps []string
	if conf.EnablePin != "" || conf.ManualAnalog != "" {
		if conf.BoardName == "" {
			return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "board")
		}
		deps = append(deps, conf.BoardName)
	}
	if conf.SPIBus == "" {
		return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "spi_bus")
	}
	if conf.ChipSelect == "" {
		return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "chip_select")
	}
	if conf.StepDelayMS < 0 || conf.ReverseDelayMS < 0 {
		return nil, nil, errors.New("step_delay_ms and reverse_delay_ms must not be negative")
	}
	if conf.ManualFullScale < 0 {
		return nil, nil, errors.New("manual_full_scale must not be negative")
	}

	maxMotors := conf.mode().MaxMotors()
	for i, m := range conf.Motors {
		if m.Motor < 1 || m.Motor > maxMotors {
			return nil, nil, errors.Errorf("%s: motors[%d]: motor must be between 1 and %d, got %d",
				path, i, maxMotors, m.Motor)
		}
		if _, err := m.parse(); err != nil {
			return nil, nil, errors.Wrapf(err, "%s: motors[%d]", path, i)
		}
	}
	for i, c := range conf.PWMChannels {
		if _, _, err := c.parse(); err != nil {
			return nil, nil, errors.Wrapf(err, "%s: pwm_channels[%d]", path, i)
		}
	}
	return deps, nil, nil
}

// motorState is a parsed MotorSettings.
type motorState struct {
	dir motorcontrol.Direction
	fw  motorcontrol.FreeWheeling
	pwm motorcontrol.PWMChannel
}

func (m MotorSettings) parse() (motorState, error) {
	st := motorState{dir: motorcontrol.CW, fw: motorcontrol.FreeWheelingActive}
	var err error
	if m.Direction != "" {
		if st.dir, err = motorcontrol.ParseDirection(m.Direction); err != nil {
			return st, err
		}
	}
	if m.FreeWheeling != "" {
		if st.fw, err = motorcontrol.ParseFreeWheeling(m.FreeWheeling); err != nil {
			return st, err
		}
	}
	st.pwm, err = motorcontrol.ParsePWMChannel(m.PWM)
	return st, err
}

func (c ChannelSettings) parse() (motorcontrol.PWMChannel, motorcontrol.PWMSettings, error) {
	p := motorcontrol.PWMSettings{
		MinDutyCycle: motorcontrol.DefaultMinDutyCycle,
		MaxDutyCycle: motorcontrol.DefaultMaxDutyCycle,
		Manual:       c.Manual,
	}
	ch, err := motorcontrol.ParsePWMChannel(c.Channel)
	if err != nil {
		return ch, p, err
	}
	if !ch.Valid() {
		return ch, p, errors.Wrap(motorcontrol.ErrChannel, "channel is required")
	}
	for _, b := range []struct {
		name string
		v    *int
		dst  *uint8
	}{
		{"min_duty_cycle", c.MinDutyCycle, &p.MinDutyCycle},
		{"max_duty_cycle", c.MaxDutyCycle, &p.MaxDutyCycle},
	} {
		if b.v == nil {
			continue
		}
		if *b.v < 0 || *b.v > 255 {
			return ch, p, errors.Errorf("%s must be between 0 and 255, got %d", b.name, *b.v)
		}
		*b.dst = uint8(*b.v)
	}
	if p.MinDutyCycle > p.MaxDutyCycle {
		return ch, p, errors.Wrapf(motorcontrol.ErrDutyCycleBounds, "%v Hz channel", ch)
	}
	return ch, p, nil
}

// DCMotorConfig describes one motor of a TLE94112 board.
type DCMotorConfig struct {
	Board  string  `json:"board"`
	Motor  int     `json:"motor"`
	MaxRPM float64 `json:"max_rpm,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *DCMotorConfig) Validate(path string) ([]string, []string, error) {
	if conf.Board == "" {
		return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "board")
	}
	if conf.Motor <= 0 {
		return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "motor")
	}
	if conf.Motor > motorcontrol.NormalCurrent.MaxMotors() {
		return nil, nil, errors.Errorf("tle94112 motor should be between 1 and %d", motorcontrol.NormalCurrent.MaxMotors())
	}
	if conf.MaxRPM < 0 {
		return nil, nil, errors.New("max_rpm must not be negative")
	}
	return []string{conf.Board}, nil, nil
}
