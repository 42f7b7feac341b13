//go:build linux

package tle94112

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/components/motor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"github.com/viam-modules/infineon/motorcontrol"
)

// MotorModel for one DC motor wired to an infineon tle94112 board.
var MotorModel = resource.NewModel("viam", "infineon", "tle94112-motor")

func init() {
	resource.RegisterComponent(motor.API, MotorModel, resource.Registration[motor.Motor, *DCMotorConfig]{
		Constructor: newDCMotor,
	})
}

// DCMotor is one logical motor of a TLE94112 board. Speed is open loop: power maps to a duty
// cycle inside the bounds of the motor's PWM channel.
type DCMotor struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable
	board     *Board
	index     int
	maxRPM    float64
	logger    logging.Logger
	motorName string

	mu       sync.Mutex
	powerPct float64
}

func newDCMotor(ctx context.Context, deps resource.Dependencies, c resource.Config, logger logging.Logger,
) (motor.Motor, error) {
	conf, err := resource.NativeConfig[*DCMotorConfig](c)
	if err != nil {
		return nil, err
	}
	b, err := boardFromDependencies(deps, conf.Board)
	if err != nil {
		return nil, err
	}
	m, err := makeDCMotor(ctx, b, *conf, c.ResourceName(), logger)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func boardFromDependencies(deps resource.Dependencies, name string) (*Board, error) {
	if res, ok := deps[generic.Named(name)]; ok {
		if b, ok := res.(*Board); ok {
			return b, nil
		}
	}
	if b, ok := lookupBoard(name); ok {
		return b, nil
	}
	return nil, errors.Errorf("%q is not a tle94112 board", name)
}

func makeDCMotor(ctx context.Context, b *Board, c DCMotorConfig, name resource.Name, logger logging.Logger,
) (*DCMotor, error) {
	if c.Motor < 1 || c.Motor > b.ctrl.NumMotors() {
		return nil, errors.Wrapf(motorcontrol.ErrMotorIndex, "motor %d on a board with %d motors",
			c.Motor, b.ctrl.NumMotors())
	}
	if c.MaxRPM == 0 {
		logger.CWarnf(ctx, "max_rpm not set, setting to %d rpm", defaultMaxRPM)
		c.MaxRPM = defaultMaxRPM
	}
	if err := b.ctrl.SetEnabled(motorcontrol.OneMotor(c.Motor-1), true); err != nil {
		return nil, err
	}
	return &DCMotor{
		Named:     name.AsNamed(),
		board:     b,
		index:     c.Motor - 1,
		maxRPM:    c.MaxRPM,
		logger:    logger,
		motorName: name.ShortName(),
	}, nil
}

func (m *DCMotor) target() motorcontrol.Target {
	return motorcontrol.OneMotor(m.index)
}

// dutyCycle maps a fraction of full power to a duty cycle. Clamping into the channel bounds
// is left to the controller.
func dutyCycle(frac float64) uint8 {
	return uint8(math.Round(math.Min(math.Abs(frac), 1) * 255))
}

func direction(sign float64) motorcontrol.Direction {
	if sign < 0 {
		return motorcontrol.CCW
	}
	return motorcontrol.CW
}

func (m *DCMotor) setPowerPct(pct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerPct = pct
}

// SetPower runs the motor at a fraction of full duty cycle, between -1 and 1.
// Zero brakes the motor.
func (m *DCMotor) SetPower(ctx context.Context, powerPct float64, extra map[string]interface{}) error {
	if math.Abs(powerPct) < 0.001 {
		return m.Stop(ctx, extra)
	}
	powerPct = math.Max(-1, math.Min(1, powerPct))
	m.setPowerPct(powerPct)
	err := m.board.ctrl.Drive(ctx, m.index, direction(powerPct), dutyCycle(powerPct))
	if err != nil {
		return errors.Wrapf(err, "error in SetPower from motor (%s)", m.motorName)
	}
	return nil
}

// SetRPM runs the motor at rpm / max_rpm of full power.
func (m *DCMotor) SetRPM(ctx context.Context, rpm float64, extra map[string]interface{}) error {
	warning, err := motor.CheckSpeed(rpm, m.maxRPM)
	if warning != "" {
		m.logger.CWarn(ctx, warning)
	}
	if err != nil {
		m.logger.CError(ctx, err)
		return m.Stop(ctx, extra)
	}
	return m.SetPower(ctx, rpm/m.maxRPM, extra)
}

// GoFor turns the motor through a ramped run: accelerate to the duty cycle of rpm, hold for
// the time the given revolutions take at that rpm, decelerate and brake. Without position
// feedback the revolutions are an estimate.
// Both the RPM and the revolutions can be assigned negative values to move in a backwards direction.
// Note: if both are negative the motor will spin in the forward direction.
func (m *DCMotor) GoFor(ctx context.Context, rpm, revolutions float64, extra map[string]interface{}) error {
	warning, err := motor.CheckSpeed(rpm, m.maxRPM)
	if warning != "" {
		m.logger.CWarn(ctx, warning)
	}
	if err != nil {
		return err
	}
	if err := motor.CheckRevolutions(revolutions); err != nil {
		return err
	}
	hold := math.Abs(revolutions/rpm) * float64(time.Minute)
	if hold >= math.MaxInt64 {
		return errors.Errorf("motor (%s) cannot turn %v revolutions at %v rpm", m.motorName, revolutions, rpm)
	}

	mot, err := m.board.ctrl.Motor(m.index)
	if err != nil {
		return err
	}
	bounds := motorcontrol.PWMSettings{
		MinDutyCycle: motorcontrol.DefaultMinDutyCycle,
		MaxDutyCycle: motorcontrol.DefaultMaxDutyCycle,
	}
	if mot.PWM.Valid() {
		if bounds, err = m.board.ctrl.Channel(mot.PWM); err != nil {
			return err
		}
	}
	dc := dutyCycle(rpm / m.maxRPM)
	if dc < bounds.MinDutyCycle {
		dc = bounds.MinDutyCycle
	}
	if dc > bounds.MaxDutyCycle {
		dc = bounds.MaxDutyCycle
	}

	dir := direction(rpm * revolutions)

	m.setPowerPct(float64(dc) / 255)
	defer m.setPowerPct(0)
	err = m.board.ctrl.RampedRun(ctx, m.target(), motorcontrol.RampParams{
		Min:       bounds.MinDutyCycle,
		Max:       dc,
		StepDelay: m.board.stepDelay,
		Hold:      time.Duration(hold),
	}, dir)
	if err != nil {
		return errors.Wrapf(err, "error in GoFor from motor (%s)", m.motorName)
	}
	return nil
}

// GoTo is not supported: the motor has no position feedback.
func (m *DCMotor) GoTo(ctx context.Context, rpm, positionRevolutions float64, extra map[string]interface{}) error {
	return errors.Errorf("motor (%s) does not support GoTo without position reporting", m.motorName)
}

// ResetZeroPosition is not supported: the motor has no position feedback.
func (m *DCMotor) ResetZeroPosition(ctx context.Context, offset float64, extra map[string]interface{}) error {
	return motor.NewResetZeroPositionUnsupportedError(m.motorName)
}

// Position always reports zero.
func (m *DCMotor) Position(ctx context.Context, extra map[string]interface{}) (float64, error) {
	return 0, nil
}

// Properties returns the status of optional properties on the motor.
func (m *DCMotor) Properties(ctx context.Context, extra map[string]interface{}) (motor.Properties, error) {
	return motor.Properties{
		PositionReporting: false,
	}, nil
}

// Stop brakes the motor.
func (m *DCMotor) Stop(ctx context.Context, extra map[string]interface{}) error {
	m.setPowerPct(0)
	return m.board.ctrl.Stop(ctx, m.target())
}

// IsPowered returns true if the motor is currently running.
func (m *DCMotor) IsPowered(ctx context.Context, extra map[string]interface{}) (bool, float64, error) {
	mot, err := m.board.ctrl.Motor(m.index)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		return false, m.powerPct, errors.Wrapf(err, "error in IsPowered from motor (%s)", m.motorName)
	}
	return mot.Running, m.powerPct, nil
}

// IsMoving returns true if the motor is currently running.
func (m *DCMotor) IsMoving(ctx context.Context) (bool, error) {
	on, _, err := m.IsPowered(ctx, nil)
	return on, err
}

// DoCommand runs board commands against this motor only.
func (m *DCMotor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if name, ok := cmd[Command]; ok && name == GetStatus {
		mot, err := m.board.ctrl.Motor(m.index)
		if err != nil {
			return nil, err
		}
		return motorStatus(m.index, mot), nil
	}
	scoped := make(map[string]interface{}, len(cmd)+1)
	for k, v := range cmd {
		scoped[k] = v
	}
	scoped[MotorKey] = float64(m.index + 1)
	return m.board.DoCommand(ctx, scoped)
}
