package motorcontrol

import (
	"context"

	"go.uber.org/multierr"
)

type poleRole int

const (
	roleDrive poleRole = iota
	roleReturn
)

// poleRoles says which pole sources current in each direction. CW and CCW are mirror images.
var poleRoles = map[Direction]struct{ a, b poleRole }{
	CW:  {a: roleDrive, b: roleReturn},
	CCW: {a: roleReturn, b: roleDrive},
}

// bridgeSetting is the driver call for every bridge of a pole.
type bridgeSetting struct {
	level Level
	pwm   PWMChannel
}

func settingFor(role poleRole, ch PWMChannel) bridgeSetting {
	if role == roleDrive {
		return bridgeSetting{level: High, pwm: ch}
	}
	return bridgeSetting{level: Low, pwm: NoPWM}
}

// Configurator pushes the state of a motor onto its half bridges.
type Configurator struct {
	drv   Driver
	store *Store
	diag  *Diagnostics
}

// NewConfigurator returns a configurator writing through drv and checking diag after each call.
func NewConfigurator(drv Driver, store *Store, diag *Diagnostics) *Configurator {
	return &Configurator{drv: drv, store: store, diag: diag}
}

// configure writes one setting to every bridge of a pole, in order, followed by a diagnosis
// check. Errors are collected so the rest of the pole is still configured.
func (c *Configurator) configure(ctx context.Context, pole []HalfBridge, set bridgeSetting, fw bool) error {
	var err error
	for _, hb := range pole {
		err = multierr.Append(err, c.drv.ConfigureHalfBridge(ctx, hb, set.level, set.pwm, fw))
		err = multierr.Append(err, c.diag.Check(ctx))
	}
	return err
}

func (c *Configurator) apply(ctx context.Context, index int, dir Direction) error {
	m, err := c.store.Motor(index)
	if err != nil {
		return err
	}
	if !m.Enabled {
		return nil
	}
	pair, err := Resolve(c.store.Mode(), index)
	if err != nil {
		return err
	}
	roles := poleRoles[dir]
	fw := m.FreeWheeling.Active()
	// The return pole goes low before the drive pole goes high.
	if roles.a == roleReturn {
		return multierr.Combine(
			c.configure(ctx, pair.A, settingFor(roleReturn, m.PWM), fw),
			c.configure(ctx, pair.B, settingFor(roleDrive, m.PWM), fw),
		)
	}
	return multierr.Combine(
		c.configure(ctx, pair.B, settingFor(roleReturn, m.PWM), fw),
		c.configure(ctx, pair.A, settingFor(roleDrive, m.PWM), fw),
	)
}

// ApplyClockwise configures an enabled motor to turn clockwise. Disabled motors are left alone.
func (c *Configurator) ApplyClockwise(ctx context.Context, index int) error {
	return c.apply(ctx, index, CW)
}

// ApplyCounterClockwise configures an enabled motor to turn counterclockwise.
func (c *Configurator) ApplyCounterClockwise(ctx context.Context, index int) error {
	return c.apply(ctx, index, CCW)
}

// Apply configures an enabled motor for its stored direction.
func (c *Configurator) Apply(ctx context.Context, index int) error {
	m, err := c.store.Motor(index)
	if err != nil {
		return err
	}
	return c.apply(ctx, index, m.Direction)
}

// ApplyTarget configures every enabled motor of the target for its stored direction.
func (c *Configurator) ApplyTarget(ctx context.Context, t Target) error {
	idx, err := c.store.Indices(t)
	if err != nil {
		return err
	}
	for _, i := range idx {
		err = multierr.Append(err, c.Apply(ctx, i))
	}
	return err
}

// ApplyAll configures every enabled motor.
func (c *Configurator) ApplyAll(ctx context.Context) error {
	return c.ApplyTarget(ctx, AllMotors())
}

// Brake drives both poles of the targeted motors high without PWM, whatever their direction
// or enable flag.
func (c *Configurator) Brake(ctx context.Context, t Target) error {
	idx, err := c.store.Indices(t)
	if err != nil {
		return err
	}
	brake := bridgeSetting{level: High, pwm: NoPWM}
	for _, i := range idx {
		m, _ := c.store.Motor(i)
		pair, rerr := Resolve(c.store.Mode(), i)
		if rerr != nil {
			err = multierr.Append(err, rerr)
			continue
		}
		err = multierr.Append(err, c.configure(ctx, pair.Bridges(), brake, m.FreeWheeling.Active()))
	}
	return err
}

// BrakeAll brakes every motor on the board.
func (c *Configurator) BrakeAll(ctx context.Context) error {
	return c.Brake(ctx, AllMotors())
}

// Float disconnects every half bridge of the board.
func (c *Configurator) Float(ctx context.Context) error {
	var err error
	for hb := HalfBridge(1); hb <= NumHalfBridges; hb++ {
		err = multierr.Append(err, c.drv.ConfigureHalfBridge(ctx, hb, Floating, NoPWM, true))
	}
	return multierr.Append(err, c.diag.Check(ctx))
}
