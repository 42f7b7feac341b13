package motorcontrol

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
)

// Controller defaults.
const (
	DefaultStepDelay    = 5 * time.Millisecond
	DefaultReverseDelay = 300 * time.Millisecond
)

// DutyCycleReader supplies the regime duty cycle of channels in manual mode, usually from a
// potentiometer on an analog input.
type DutyCycleReader interface {
	ReadDutyCycle(ctx context.Context) (uint8, error)
}

// Options configures a Controller. The zero value is normal current wiring with open load
// faults reported and the default delays.
type Options struct {
	Mode             CurrentMode
	SuppressOpenLoad bool
	// StepDelay is the pause between ramp steps when starting ramped motors.
	StepDelay time.Duration
	// ReverseDelay is the pause between braking and restarting a running motor whose
	// direction is inverted.
	ReverseDelay time.Duration
	Clock        Sleeper
	Manual       DutyCycleReader
}

// Controller is the command facing entry point. Every store mutation and every driver call
// goes through its mutex, so ramps and configuration sequences never interleave.
type Controller struct {
	mu           sync.Mutex
	drv          Driver
	logger       logging.Logger
	store        *Store
	diag         *Diagnostics
	cfg          *Configurator
	ramp         *Ramper
	clock        Sleeper
	manual       DutyCycleReader
	stepDelay    time.Duration
	reverseDelay time.Duration
}

// NewController builds the store for the wiring mode and resets the board.
func NewController(ctx context.Context, drv Driver, logger logging.Logger, opts Options) (*Controller, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.StepDelay <= 0 {
		opts.StepDelay = DefaultStepDelay
	}
	if opts.ReverseDelay <= 0 {
		opts.ReverseDelay = DefaultReverseDelay
	}
	store := NewStore(opts.Mode)
	diag := NewDiagnostics(drv, logger, opts.SuppressOpenLoad)
	c := &Controller{
		drv:          drv,
		logger:       logger,
		store:        store,
		diag:         diag,
		cfg:          NewConfigurator(drv, store, diag),
		ramp:         NewRamper(opts.Clock, diag.Check),
		clock:        opts.Clock,
		manual:       opts.Manual,
		stepDelay:    opts.StepDelay,
		reverseDelay: opts.ReverseDelay,
	}
	c.ramp.OnPhase = func(p Phase) { logger.Debugf("ramp phase %s", p) }
	if err := c.Reset(ctx); err != nil {
		return nil, errors.Wrap(err, "resetting motor controller")
	}
	return c, nil
}

// Reset restores the defaults of every motor and channel and floats every half bridge.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Reset()
	c.diag.ResetCounts()
	return c.cfg.Float(ctx)
}

// End powers the driver down. The controller must not be used afterwards.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drv.Close(ctx)
}

// Mode returns the wiring mode.
func (c *Controller) Mode() CurrentMode { return c.store.Mode() }

// NumMotors returns how many motors the board hosts.
func (c *Controller) NumMotors() int { return c.store.NumMotors() }

// Motor returns a snapshot of one motor.
func (c *Controller) Motor(index int) (Motor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Motor(index)
}

// Channel returns a snapshot of one PWM channel.
func (c *Controller) Channel(ch PWMChannel) (PWMSettings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Channel(ch)
}

// SetEnabled enables or disables motors.
func (c *Controller) SetEnabled(t Target, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.SetEnabled(t, enabled)
}

// SetRamp selects ramped or instantaneous starts.
func (c *Controller) SetRamp(t Target, useRamp bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.SetRamp(t, useRamp)
}

// SetFreeWheeling sets the freewheeling mode used on the next configuration.
func (c *Controller) SetFreeWheeling(t Target, fw FreeWheeling) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.SetFreeWheeling(t, fw)
}

// SetPWMChannel assigns a PWM channel to motors.
func (c *Controller) SetPWMChannel(t Target, ch PWMChannel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.SetPWMChannel(t, ch)
}

// SetMinDutyCycle sets the lower bound of channels. See Store.SetMinDutyCycle.
func (c *Controller) SetMinDutyCycle(t ChannelTarget, dc uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.SetMinDutyCycle(t, dc)
}

// SetMaxDutyCycle sets the upper bound of channels. See Store.SetMaxDutyCycle.
func (c *Controller) SetMaxDutyCycle(t ChannelTarget, dc uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.SetMaxDutyCycle(t, dc)
}

// SetDutyCycleBounds sets both bounds of channels.
func (c *Controller) SetDutyCycleBounds(t ChannelTarget, minDC, maxDC uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.SetDutyCycleBounds(t, minDC, maxDC)
}

// SetManual sets the manual duty cycle flag of channels.
func (c *Controller) SetManual(t ChannelTarget, manual bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.SetManual(t, manual)
}

// SetDirection changes the direction of motors. Running motors whose direction flips are
// braked, given ReverseDelay to settle and started again the other way.
func (c *Controller) SetDirection(ctx context.Context, t Target, dir Direction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.store.Indices(t)
	if err != nil {
		return err
	}
	var reversing []int
	for _, i := range idx {
		m, _ := c.store.Motor(i)
		if m.Running && m.Enabled && m.Direction != dir {
			reversing = append(reversing, i)
		}
	}
	for _, i := range reversing {
		err = multierr.Append(err, c.cfg.Brake(ctx, OneMotor(i)))
	}
	if len(reversing) > 0 {
		c.logger.CDebugf(ctx, "reversing %d motor(s), waiting %v", len(reversing), c.reverseDelay)
		c.clock.Sleep(c.reverseDelay)
	}
	if serr := c.store.SetDirection(t, dir); serr != nil {
		return multierr.Append(err, serr)
	}
	if len(reversing) > 0 {
		err = multierr.Append(err, c.start(ctx, reversing))
	}
	return err
}

// Start configures the half bridges of the enabled targeted motors and brings their channels
// to the regime duty cycle, through a ramp when any motor on the channel asks for one.
func (c *Controller) Start(ctx context.Context, t Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, err := c.store.Indices(t)
	if err != nil {
		return err
	}
	return c.start(ctx, idx)
}

func (c *Controller) start(ctx context.Context, idx []int) error {
	enabled := c.enabledOf(idx)
	if len(enabled) == 0 {
		return nil
	}
	var err error
	for _, i := range enabled {
		err = multierr.Append(err, c.cfg.Apply(ctx, i))
	}

	ramped := map[PWMChannel]bool{}
	var chans []PWMChannel
	for _, i := range enabled {
		m, _ := c.store.Motor(i)
		if !m.PWM.Valid() {
			continue
		}
		if _, seen := ramped[m.PWM]; !seen {
			chans = append(chans, m.PWM)
		}
		ramped[m.PWM] = ramped[m.PWM] || m.UseRamp
	}

	for _, ch := range chans {
		p, _ := c.store.Channel(ch)
		target, rerr := c.regime(ctx, ch, p)
		err = multierr.Append(err, rerr)
		if ramped[ch] {
			c.logger.CDebugf(ctx, "ramping %v Hz channel from %d to %d", ch, p.MinDutyCycle, target)
			err = multierr.Append(err, c.ramp.Start(ctx, c.pwmStep(ch), RampParams{
				Min:       p.MinDutyCycle,
				Max:       target,
				StepDelay: c.stepDelay,
			}))
			continue
		}
		err = multierr.Append(err, c.drv.ConfigurePWM(ctx, ch, target))
		err = multierr.Append(err, c.diag.Check(ctx))
	}

	for _, i := range enabled {
		err = multierr.Append(err, c.store.SetRunning(OneMotor(i), true))
	}
	return err
}

// regime is the duty cycle a started channel settles at.
func (c *Controller) regime(ctx context.Context, ch PWMChannel, p PWMSettings) (uint8, error) {
	if !p.Manual || c.manual == nil {
		return p.MaxDutyCycle, nil
	}
	dc, err := c.manual.ReadDutyCycle(ctx)
	if err != nil {
		return p.MaxDutyCycle, errors.Wrapf(err, "reading manual duty cycle for %v Hz channel", ch)
	}
	return clamp(dc, p.MinDutyCycle, p.MaxDutyCycle), nil
}

// Drive runs one motor in dir with its channel at dutyCycle, clamped into the channel bounds.
// The motor is enabled if it was not. Motors without a PWM channel run at full level.
func (c *Controller) Drive(ctx context.Context, index int, dir Direction, dutyCycle uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.store.Motor(index)
	if err != nil {
		return err
	}
	if m.Running && m.Direction != dir {
		err = c.cfg.Brake(ctx, OneMotor(index))
		c.clock.Sleep(c.reverseDelay)
	}
	err = multierr.Combine(err,
		c.store.SetEnabled(OneMotor(index), true),
		c.store.SetDirection(OneMotor(index), dir),
	)
	wasRunning := m.Running && m.Direction == dir
	err = multierr.Append(err, c.cfg.Apply(ctx, index))

	if m.PWM.Valid() {
		p, _ := c.store.Channel(m.PWM)
		dc := clamp(dutyCycle, p.MinDutyCycle, p.MaxDutyCycle)
		if m.UseRamp && !wasRunning {
			err = multierr.Append(err, c.ramp.Start(ctx, c.pwmStep(m.PWM), RampParams{
				Min:       p.MinDutyCycle,
				Max:       dc,
				StepDelay: c.stepDelay,
			}))
		} else {
			err = multierr.Append(err, c.drv.ConfigurePWM(ctx, m.PWM, dc))
			err = multierr.Append(err, c.diag.Check(ctx))
		}
	}
	return multierr.Append(err, c.store.SetRunning(OneMotor(index), true))
}

// Stop brakes the targeted motors.
func (c *Controller) Stop(ctx context.Context, t Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.store.Indices(t); err != nil {
		return err
	}
	err := c.cfg.Brake(ctx, t)
	if t.All() {
		c.logger.CDebug(ctx, "braking all motors")
	}
	return multierr.Append(err, c.store.SetRunning(t, false))
}

// RampedRun turns the enabled targeted motors in dir: every channel they use accelerates from
// p.Min to p.Max, holds for p.Hold and decelerates back to p.Min, then the motors are braked.
// The call blocks for the whole run.
func (c *Controller) RampedRun(ctx context.Context, t Target, p RampParams, dir Direction) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	chans, err := c.prepare(ctx, t, dir)
	if err != nil {
		return err
	}
	if len(chans) > 0 {
		err = multierr.Append(err, c.ramp.Run(ctx, c.pwmStep(chans...), p))
	} else {
		c.clock.Sleep(p.Hold)
	}
	err = multierr.Append(err, c.cfg.Brake(ctx, t))
	return multierr.Append(err, c.store.SetRunning(t, false))
}

// RampedStart is RampedRun without hold, deceleration and brake: the motors keep running at
// p.Max until stopped.
func (c *Controller) RampedStart(ctx context.Context, t Target, p RampParams, dir Direction) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	chans, err := c.prepare(ctx, t, dir)
	if err != nil {
		return err
	}
	if len(chans) > 0 {
		err = multierr.Append(err, c.ramp.Start(ctx, c.pwmStep(chans...), p))
	}
	return err
}

// prepare sets the direction of the targeted motors, configures the enabled ones, marks them
// running and returns the distinct channels they use.
func (c *Controller) prepare(ctx context.Context, t Target, dir Direction) ([]PWMChannel, error) {
	idx, err := c.store.Indices(t)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetDirection(t, dir); err != nil {
		return nil, err
	}
	seen := map[PWMChannel]bool{}
	var chans []PWMChannel
	for _, i := range c.enabledOf(idx) {
		err = multierr.Append(err, c.cfg.Apply(ctx, i))
		err = multierr.Append(err, c.store.SetRunning(OneMotor(i), true))
		m, _ := c.store.Motor(i)
		if m.PWM.Valid() && !seen[m.PWM] {
			seen[m.PWM] = true
			chans = append(chans, m.PWM)
		}
	}
	return chans, err
}

func (c *Controller) enabledOf(idx []int) []int {
	var out []int
	for _, i := range idx {
		if m, err := c.store.Motor(i); err == nil && m.Enabled {
			out = append(out, i)
		}
	}
	return out
}

// pwmStep writes the same duty cycle to every channel.
func (c *Controller) pwmStep(chans ...PWMChannel) StepFunc {
	return func(ctx context.Context, dc uint8) error {
		var err error
		for _, ch := range chans {
			err = multierr.Append(err, c.drv.ConfigurePWM(ctx, ch, dc))
		}
		return err
	}
}

// Diagnose reads, reports and clears the driver diagnosis on demand.
func (c *Controller) Diagnose(ctx context.Context) ([]Fault, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diag.ReportAndClear(ctx)
}

// Status returns a snapshot of every motor, channel and fault counter.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		Mode:   c.store.Mode(),
		Motors: c.store.Motors(),
		Faults: c.diag.Counts(),
	}
	for i, ch := range Channels {
		st.Channels[i], _ = c.store.Channel(ch)
	}
	return st
}
