package motorcontrol

import (
	"fmt"

	"github.com/pkg/errors"
)

// Motor is the configured state of one logical motor.
type Motor struct {
	Enabled      bool
	Direction    Direction
	UseRamp      bool
	FreeWheeling FreeWheeling
	PWM          PWMChannel
	// Running is the last observed run state; it never drives hardware by itself.
	Running bool
}

// PWMSettings are the duty cycle bounds shared by every motor assigned to a channel.
type PWMSettings struct {
	MinDutyCycle uint8
	MaxDutyCycle uint8
	// Manual sources the regime duty cycle from an external reader instead of MaxDutyCycle.
	Manual bool
}

// Target selects one motor or every motor for a store mutation.
type Target struct {
	all   bool
	index int
}

// AllMotors targets every motor.
func AllMotors() Target { return Target{all: true} }

// OneMotor targets the 0-based motor index.
func OneMotor(index int) Target { return Target{index: index} }

// All reports whether the target is a broadcast.
func (t Target) All() bool { return t.all }

// Index is the motor index of a single motor target.
func (t Target) Index() int { return t.index }

func (t Target) String() string {
	if t.all {
		return "all"
	}
	return fmt.Sprintf("m%d", t.index+1)
}

// ChannelTarget selects one PWM channel or every channel.
type ChannelTarget struct {
	all bool
	ch  PWMChannel
}

// AllChannels targets every PWM channel.
func AllChannels() ChannelTarget { return ChannelTarget{all: true} }

// OneChannel targets a single PWM channel.
func OneChannel(ch PWMChannel) ChannelTarget { return ChannelTarget{ch: ch} }

func (t ChannelTarget) String() string {
	if t.all {
		return "all"
	}
	return t.ch.String()
}

// Store is the in-memory record of every motor and PWM channel. It has no locking of its own.
type Store struct {
	mode     CurrentMode
	motors   []Motor
	channels [NumPWMChannels]PWMSettings
}

// NewStore returns a store sized for the current mode, reset to defaults.
func NewStore(mode CurrentMode) *Store {
	s := &Store{mode: mode, motors: make([]Motor, mode.MaxMotors())}
	s.Reset()
	return s
}

// Reset restores the power on defaults for every motor and channel.
func (s *Store) Reset() {
	for i := range s.motors {
		s.motors[i] = Motor{
			Direction:    CW,
			FreeWheeling: FreeWheelingActive,
			PWM:          NoPWM,
		}
	}
	for i := range s.channels {
		s.channels[i] = PWMSettings{
			MinDutyCycle: DefaultMinDutyCycle,
			MaxDutyCycle: DefaultMaxDutyCycle,
		}
	}
}

// Mode returns the fixed current mode.
func (s *Store) Mode() CurrentMode { return s.mode }

// NumMotors returns how many motors the board hosts.
func (s *Store) NumMotors() int { return len(s.motors) }

// Motor returns a copy of the motor at index.
func (s *Store) Motor(index int) (Motor, error) {
	if index < 0 || index >= len(s.motors) {
		return Motor{}, errors.Wrapf(ErrMotorIndex, "motor %d", index+1)
	}
	return s.motors[index], nil
}

// Motors returns a copy of every motor.
func (s *Store) Motors() []Motor {
	out := make([]Motor, len(s.motors))
	copy(out, s.motors)
	return out
}

// Channel returns a copy of the settings of a real PWM channel.
func (s *Store) Channel(ch PWMChannel) (PWMSettings, error) {
	if !ch.Valid() {
		return PWMSettings{}, errors.Wrapf(ErrChannel, "channel %v", ch)
	}
	return s.channels[ch.index()], nil
}

// Indices expands a target to motor indices.
func (s *Store) Indices(t Target) ([]int, error) {
	if !t.all {
		if t.index < 0 || t.index >= len(s.motors) {
			return nil, errors.Wrapf(ErrMotorIndex, "motor %d (board hosts %d)", t.index+1, len(s.motors))
		}
		return []int{t.index}, nil
	}
	out := make([]int, len(s.motors))
	for i := range out {
		out[i] = i
	}
	return out, nil
}

func (s *Store) channelIndices(t ChannelTarget) ([]int, error) {
	if !t.all {
		if !t.ch.Valid() {
			return nil, errors.Wrapf(ErrChannel, "channel %v", t.ch)
		}
		return []int{t.ch.index()}, nil
	}
	return []int{0, 1, 2}, nil
}

func (s *Store) updateMotors(t Target, fn func(m *Motor)) error {
	idx, err := s.Indices(t)
	if err != nil {
		return err
	}
	for _, i := range idx {
		fn(&s.motors[i])
	}
	return nil
}

// SetEnabled enables or disables the targeted motors.
func (s *Store) SetEnabled(t Target, enabled bool) error {
	return s.updateMotors(t, func(m *Motor) { m.Enabled = enabled })
}

// SetDirection sets the rotation direction of the targeted motors.
func (s *Store) SetDirection(t Target, dir Direction) error {
	return s.updateMotors(t, func(m *Motor) { m.Direction = dir })
}

// SetRamp sets whether starting the targeted motors accelerates through a ramp.
func (s *Store) SetRamp(t Target, useRamp bool) error {
	return s.updateMotors(t, func(m *Motor) { m.UseRamp = useRamp })
}

// SetFreeWheeling sets the freewheeling mode of the targeted motors.
func (s *Store) SetFreeWheeling(t Target, fw FreeWheeling) error {
	return s.updateMotors(t, func(m *Motor) { m.FreeWheeling = fw })
}

// SetPWMChannel assigns a PWM channel (or NoPWM) to the targeted motors.
func (s *Store) SetPWMChannel(t Target, ch PWMChannel) error {
	if ch != NoPWM && !ch.Valid() {
		return errors.Wrapf(ErrChannel, "channel %d", int(ch))
	}
	return s.updateMotors(t, func(m *Motor) { m.PWM = ch })
}

// SetRunning records the observed run state of the targeted motors.
func (s *Store) SetRunning(t Target, running bool) error {
	return s.updateMotors(t, func(m *Motor) { m.Running = running })
}

// SetMinDutyCycle sets the lower duty cycle bound. A value above the current max of any
// targeted channel is rejected and no channel changes.
func (s *Store) SetMinDutyCycle(t ChannelTarget, dc uint8) error {
	return s.updateChannels(t, func(p *PWMSettings) { p.MinDutyCycle = dc })
}

// SetMaxDutyCycle sets the upper duty cycle bound. A value below the current min of any
// targeted channel is rejected and no channel changes.
func (s *Store) SetMaxDutyCycle(t ChannelTarget, dc uint8) error {
	return s.updateChannels(t, func(p *PWMSettings) { p.MaxDutyCycle = dc })
}

// SetDutyCycleBounds sets both bounds at once.
func (s *Store) SetDutyCycleBounds(t ChannelTarget, minDC, maxDC uint8) error {
	return s.updateChannels(t, func(p *PWMSettings) {
		p.MinDutyCycle = minDC
		p.MaxDutyCycle = maxDC
	})
}

// SetManual sets the manual duty cycle flag of the targeted channels.
func (s *Store) SetManual(t ChannelTarget, manual bool) error {
	return s.updateChannels(t, func(p *PWMSettings) { p.Manual = manual })
}

func (s *Store) updateChannels(t ChannelTarget, fn func(p *PWMSettings)) error {
	idx, err := s.channelIndices(t)
	if err != nil {
		return err
	}
	next := s.channels
	for _, i := range idx {
		fn(&next[i])
		if next[i].MinDutyCycle > next[i].MaxDutyCycle {
			return errors.Wrapf(ErrDutyCycleBounds, "channel %v: min %d, max %d",
				Channels[i], next[i].MinDutyCycle, next[i].MaxDutyCycle)
		}
	}
	s.channels = next
	return nil
}
