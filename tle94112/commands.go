//go:build linux

package tle94112

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/viam-modules/infineon/motorcontrol"
)

// DoCommand() related constants.
const (
	Command = "command"

	Enable         = "enable"
	Disable        = "disable"
	SetDirection   = "direction"
	SetRamp        = "ramp"
	SetFreeWheel   = "free_wheeling"
	SetPWM         = "pwm"
	SetDutyCycle   = "duty_cycle"
	Start          = "start"
	Stop           = "stop"
	Run            = "run"
	StartRamped    = "start_ramped"
	Reset          = "reset"
	GetStatus      = "status"
	Diagnose       = "diagnose"
	Feed           = "feed"
	Load           = "load"
	FeedContinuous = "feed_continuous"
	LoadContinuous = "load_continuous"
)

// DoCommand() argument keys. A missing motor or channel targets all of them.
const (
	MotorKey      = "motor"
	ChannelKey    = "channel"
	DirectionKey  = "direction"
	ValueKey      = "value"
	ModeKey       = "mode"
	MinKey        = "min"
	MaxKey        = "max"
	ManualKey     = "manual"
	StepMSKey     = "step_ms"
	HoldMSKey     = "hold_ms"
	DurationMSKey = "duration_ms"
)

// Filament directions of the feed and load helpers.
const (
	feedDirection = motorcontrol.CW
	loadDirection = motorcontrol.CCW
)

// DoCommand executes the motor controller commands.
func (b *Board) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, ok := cmd[Command]
	if !ok {
		return nil, errors.Errorf("missing %s value", Command)
	}

	switch name {
	case GetStatus:
		return statusResponse(b.ctrl.Status()), nil
	case Diagnose:
		faults, err := b.ctrl.Diagnose(ctx)
		names := make([]interface{}, len(faults))
		for i, f := range faults {
			names[i] = f.String()
		}
		return map[string]interface{}{"faults": names}, err
	case Reset:
		return nil, b.ctrl.Reset(ctx)
	case SetDutyCycle:
		return nil, b.setDutyCycle(cmd)
	}

	t, err := parseTarget(cmd)
	if err != nil {
		return nil, err
	}
	switch name {
	case Enable, Disable:
		return nil, b.ctrl.SetEnabled(t, name == Enable)
	case SetDirection:
		dir, err := requireDirection(cmd)
		if err != nil {
			return nil, err
		}
		return nil, b.ctrl.SetDirection(ctx, t, dir)
	case SetRamp:
		v, err := requireBool(cmd, ValueKey)
		if err != nil {
			return nil, err
		}
		return nil, b.ctrl.SetRamp(t, v)
	case SetFreeWheel:
		s, err := requireString(cmd, ModeKey)
		if err != nil {
			return nil, err
		}
		fw, err := motorcontrol.ParseFreeWheeling(s)
		if err != nil {
			return nil, err
		}
		return nil, b.ctrl.SetFreeWheeling(t, fw)
	case SetPWM:
		raw, ok := cmd[ChannelKey]
		if !ok {
			return nil, errors.Errorf("need %s value for %s", ChannelKey, SetPWM)
		}
		ch, err := motorcontrol.ParsePWMChannel(fmt.Sprint(raw))
		if err != nil {
			return nil, err
		}
		return nil, b.ctrl.SetPWMChannel(t, ch)
	case Start:
		return nil, b.ctrl.Start(ctx, t)
	case Stop:
		return nil, b.ctrl.Stop(ctx, t)
	case Run, StartRamped:
		dir, err := requireDirection(cmd)
		if err != nil {
			return nil, err
		}
		holdKey := HoldMSKey
		if name == StartRamped {
			holdKey = ""
		}
		p, err := b.rampParams(t, cmd, holdKey)
		if err != nil {
			return nil, err
		}
		if name == Run {
			return nil, b.ctrl.RampedRun(ctx, t, p, dir)
		}
		return nil, b.ctrl.RampedStart(ctx, t, p, dir)
	case Feed, Load:
		p, err := b.rampParams(t, cmd, DurationMSKey)
		if err != nil {
			return nil, err
		}
		dir := feedDirection
		if name == Load {
			dir = loadDirection
		}
		return nil, b.ctrl.RampedRun(ctx, t, p, dir)
	case FeedContinuous, LoadContinuous:
		p, err := b.rampParams(t, cmd, "")
		if err != nil {
			return nil, err
		}
		dir := feedDirection
		if name == LoadContinuous {
			dir = loadDirection
		}
		return nil, b.ctrl.RampedStart(ctx, t, p, dir)
	default:
		return nil, errors.Errorf("no such command: %s", name)
	}
}

func (b *Board) setDutyCycle(cmd map[string]interface{}) error {
	t, err := parseChannelTarget(cmd)
	if err != nil {
		return err
	}
	minDC, hasMin, err := getDutyCycle(cmd, MinKey)
	if err != nil {
		return err
	}
	maxDC, hasMax, err := getDutyCycle(cmd, MaxKey)
	if err != nil {
		return err
	}
	switch {
	case hasMin && hasMax:
		err = b.ctrl.SetDutyCycleBounds(t, minDC, maxDC)
	case hasMin:
		err = b.ctrl.SetMinDutyCycle(t, minDC)
	case hasMax:
		err = b.ctrl.SetMaxDutyCycle(t, maxDC)
	}
	if err != nil {
		return err
	}
	if raw, ok := cmd[ManualKey]; ok {
		manual, ok := raw.(bool)
		if !ok {
			return errors.Errorf("%s value must be a bool", ManualKey)
		}
		return b.ctrl.SetManual(t, manual)
	}
	return nil
}

// rampParams starts from the bounds of the channel the target runs on and applies the
// min, max and step_ms overrides. A non empty holdKey makes that duration required.
func (b *Board) rampParams(t motorcontrol.Target, cmd map[string]interface{}, holdKey string,
) (motorcontrol.RampParams, error) {
	bounds := b.bounds(t)
	p := motorcontrol.RampParams{
		Min:       bounds.MinDutyCycle,
		Max:       bounds.MaxDutyCycle,
		StepDelay: b.stepDelay,
	}
	if v, ok, err := getDutyCycle(cmd, MinKey); err != nil {
		return p, err
	} else if ok {
		p.Min = v
	}
	if v, ok, err := getDutyCycle(cmd, MaxKey); err != nil {
		return p, err
	} else if ok {
		p.Max = v
	}
	if d, ok, err := getMillis(cmd, StepMSKey); err != nil {
		return p, err
	} else if ok {
		p.StepDelay = d
	}
	if holdKey != "" {
		d, ok, err := getMillis(cmd, holdKey)
		if err != nil {
			return p, err
		}
		if !ok {
			return p, errors.Errorf("need %s value", holdKey)
		}
		p.Hold = d
	}
	return p, p.Validate()
}

// bounds are the duty cycle bounds of the first enabled targeted motor with a PWM channel.
func (b *Board) bounds(t motorcontrol.Target) motorcontrol.PWMSettings {
	idx := []int{t.Index()}
	if t.All() {
		idx = idx[:0]
		for i := 0; i < b.ctrl.NumMotors(); i++ {
			idx = append(idx, i)
		}
	}
	for _, i := range idx {
		m, err := b.ctrl.Motor(i)
		if err != nil || !m.Enabled || !m.PWM.Valid() {
			continue
		}
		if p, err := b.ctrl.Channel(m.PWM); err == nil {
			return p
		}
	}
	return motorcontrol.PWMSettings{
		MinDutyCycle: motorcontrol.DefaultMinDutyCycle,
		MaxDutyCycle: motorcontrol.DefaultMaxDutyCycle,
	}
}

func motorStatus(index int, m motorcontrol.Motor) map[string]interface{} {
	return map[string]interface{}{
		"motor":         index + 1,
		"enabled":       m.Enabled,
		"ramp":          m.UseRamp,
		"free_wheeling": m.FreeWheeling.String(),
		"direction":     m.Direction.String(),
		"pwm":           m.PWM.String(),
		"running":       m.Running,
	}
}

func statusResponse(st motorcontrol.Status) map[string]interface{} {
	motors := make([]interface{}, len(st.Motors))
	for i, m := range st.Motors {
		motors[i] = motorStatus(i, m)
	}
	channels := make([]interface{}, len(st.Channels))
	for i, p := range st.Channels {
		channels[i] = map[string]interface{}{
			"channel":        motorcontrol.Channels[i].String(),
			"min_duty_cycle": int(p.MinDutyCycle),
			"max_duty_cycle": int(p.MaxDutyCycle),
			"manual":         p.Manual,
		}
	}
	faults := map[string]interface{}{}
	for f, n := range st.Faults {
		faults[f.String()] = n
	}
	return map[string]interface{}{
		"mode":     st.Mode.String(),
		"motors":   motors,
		"channels": channels,
		"faults":   faults,
		"table":    st.Table(),
	}
}

// parseTarget reads the motor key: a 1-based number, "m1".."m6" or "all".
func parseTarget(cmd map[string]interface{}) (motorcontrol.Target, error) {
	raw, ok := cmd[MotorKey]
	if !ok {
		return motorcontrol.AllMotors(), nil
	}
	var n int
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return motorcontrol.Target{}, errors.Errorf("%s must be an integer, got %v", MotorKey, v)
		}
		n = int(v)
	case int:
		n = v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "all" {
			return motorcontrol.AllMotors(), nil
		}
		var err error
		if n, err = strconv.Atoi(strings.TrimPrefix(s, "m")); err != nil {
			return motorcontrol.Target{}, errors.Errorf("unknown %s %q", MotorKey, v)
		}
	default:
		return motorcontrol.Target{}, errors.Errorf("unknown %s %v", MotorKey, raw)
	}
	return motorcontrol.OneMotor(n - 1), nil
}

// parseChannelTarget reads the channel key: a frequency or "all".
func parseChannelTarget(cmd map[string]interface{}) (motorcontrol.ChannelTarget, error) {
	raw, ok := cmd[ChannelKey]
	if !ok || raw == "all" {
		return motorcontrol.AllChannels(), nil
	}
	ch, err := motorcontrol.ParsePWMChannel(fmt.Sprint(raw))
	if err != nil {
		return motorcontrol.ChannelTarget{}, err
	}
	if !ch.Valid() {
		return motorcontrol.ChannelTarget{}, errors.Wrapf(motorcontrol.ErrChannel, "%v", raw)
	}
	return motorcontrol.OneChannel(ch), nil
}

func requireString(cmd map[string]interface{}, key string) (string, error) {
	raw, ok := cmd[key]
	if !ok {
		return "", errors.Errorf("need %s value", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", errors.Errorf("%s value must be a string", key)
	}
	return s, nil
}

func requireBool(cmd map[string]interface{}, key string) (bool, error) {
	raw, ok := cmd[key]
	if !ok {
		return false, errors.Errorf("need %s value", key)
	}
	v, ok := raw.(bool)
	if !ok {
		return false, errors.Errorf("%s value must be a bool", key)
	}
	return v, nil
}

// requireDirection defaults to cw when the direction key is missing.
func requireDirection(cmd map[string]interface{}) (motorcontrol.Direction, error) {
	if _, ok := cmd[DirectionKey]; !ok {
		return motorcontrol.CW, nil
	}
	s, err := requireString(cmd, DirectionKey)
	if err != nil {
		return motorcontrol.CW, err
	}
	return motorcontrol.ParseDirection(s)
}

func getNumber(cmd map[string]interface{}, key string) (float64, bool, error) {
	raw, ok := cmd[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	default:
		return 0, false, errors.Errorf("%s value must be a number", key)
	}
}

func getDutyCycle(cmd map[string]interface{}, key string) (uint8, bool, error) {
	v, ok, err := getNumber(cmd, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if v < 0 || v > 255 || v != math.Trunc(v) {
		return 0, false, errors.Errorf("%s must be an integer between 0 and 255, got %v", key, v)
	}
	return uint8(v), true, nil
}

func getMillis(cmd map[string]interface{}, key string) (time.Duration, bool, error) {
	v, ok, err := getNumber(cmd, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if v < 0 {
		return 0, false, errors.Errorf("%s must not be negative, got %v", key, v)
	}
	if v*float64(time.Millisecond) >= math.MaxInt64 {
		return 0, false, errors.Errorf("%s is too large, got %v", key, v)
	}
	return time.Duration(v * float64(time.Millisecond)), true, nil
}
