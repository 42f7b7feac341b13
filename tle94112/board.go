//go:build linux

package tle94112

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/board"
	"go.viam.com/rdk/components/board/genericlinux/buses"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"github.com/viam-modules/infineon/motorcontrol"
)

// Model for the infineon tle94112 motor controller board.
var Model = resource.NewModel("viam", "infineon", "tle94112")

func init() {
	resource.RegisterComponent(generic.API, Model, resource.Registration[resource.Resource, *Config]{
		Constructor: newBoard,
	})
}

// Board is one TLE94112 chip and the motors wired to it.
type Board struct {
	resource.Named
	resource.AlwaysRebuild
	logger    logging.Logger
	ctrl      *motorcontrol.Controller
	stepDelay time.Duration
}

// boards lets motors in the same process find their board when the dependency handed to them
// is not the *Board itself.
var boards = struct {
	sync.Mutex
	byName map[string]*Board
}{byName: map[string]*Board{}}

func lookupBoard(name string) (*Board, bool) {
	boards.Lock()
	defer boards.Unlock()
	b, ok := boards.byName[name]
	return b, ok
}

func newBoard(ctx context.Context, deps resource.Dependencies, c resource.Config, logger logging.Logger,
) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](c)
	if err != nil {
		return nil, err
	}
	bus := buses.NewSpiBus(conf.SPIBus)
	b, err := makeBoard(ctx, deps, *conf, c.ResourceName(), logger, bus, nil)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// makeBoard is separate from newBoard so tests can inject a mock SPI bus and clock.
func makeBoard(ctx context.Context, deps resource.Dependencies, conf Config, name resource.Name,
	logger logging.Logger, bus buses.SPI, clk motorcontrol.Sleeper,
) (*Board, error) {
	if conf.StepDelayMS == 0 {
		logger.CWarnf(ctx, "step_delay_ms not set, defaulting to %v", motorcontrol.DefaultStepDelay)
	}
	if conf.ReverseDelayMS == 0 {
		logger.CDebugf(ctx, "reverse_delay_ms not set, defaulting to %v", motorcontrol.DefaultReverseDelay)
	}
	if conf.ManualFullScale == 0 {
		conf.ManualFullScale = defaultManualFullScale
	}

	var enable board.GPIOPin
	var manual motorcontrol.DutyCycleReader
	if conf.EnablePin != "" || conf.ManualAnalog != "" {
		b, err := board.FromDependencies(deps, conf.BoardName)
		if err != nil {
			return nil, errors.Errorf("%q is not a board", conf.BoardName)
		}
		if conf.EnablePin != "" {
			if enable, err = b.GPIOPinByName(conf.EnablePin); err != nil {
				return nil, err
			}
		}
		if conf.ManualAnalog != "" {
			analog, err := b.AnalogByName(conf.ManualAnalog)
			if err != nil {
				return nil, err
			}
			manual = &analogSource{analog: analog, fullScale: conf.ManualFullScale}
		}
	}

	drv, err := NewDriver(ctx, bus, conf.ChipSelect, enable, logger)
	if err != nil {
		return nil, err
	}
	ctrl, err := motorcontrol.NewController(ctx, drv, logger, motorcontrol.Options{
		Mode:             conf.mode(),
		SuppressOpenLoad: conf.suppressOpenLoad(),
		StepDelay:        conf.stepDelay(),
		ReverseDelay:     conf.reverseDelay(),
		Clock:            clk,
		Manual:           manual,
	})
	if err != nil {
		return nil, multierr.Combine(err, drv.Close(ctx))
	}
	if err := applySettings(ctx, ctrl, conf); err != nil {
		return nil, multierr.Combine(err, ctrl.End(ctx))
	}

	stepDelay := conf.stepDelay()
	if stepDelay == 0 {
		stepDelay = motorcontrol.DefaultStepDelay
	}
	b := &Board{
		Named:     name.AsNamed(),
		logger:    logger,
		ctrl:      ctrl,
		stepDelay: stepDelay,
	}
	boards.Lock()
	boards.byName[name.ShortName()] = b
	boards.Unlock()
	return b, nil
}

func applySettings(ctx context.Context, ctrl *motorcontrol.Controller, conf Config) error {
	var err error
	for _, m := range conf.Motors {
		st, perr := m.parse()
		if perr != nil {
			err = multierr.Append(err, errors.Wrapf(perr, "motor %d", m.Motor))
			continue
		}
		t := motorcontrol.OneMotor(m.Motor - 1)
		err = multierr.Combine(err,
			ctrl.SetEnabled(t, m.Enabled),
			ctrl.SetDirection(ctx, t, st.dir),
			ctrl.SetRamp(t, m.Ramp),
			ctrl.SetFreeWheeling(t, st.fw),
			ctrl.SetPWMChannel(t, st.pwm),
		)
	}
	for _, c := range conf.PWMChannels {
		ch, p, perr := c.parse()
		if perr != nil {
			err = multierr.Append(err, perr)
			continue
		}
		t := motorcontrol.OneChannel(ch)
		err = multierr.Combine(err,
			ctrl.SetDutyCycleBounds(t, p.MinDutyCycle, p.MaxDutyCycle),
			ctrl.SetManual(t, p.Manual),
		)
	}
	return err
}

// Controller returns the motor controller of the board.
func (b *Board) Controller() *motorcontrol.Controller {
	return b.ctrl
}

// Close floats every bridge and powers the chip down.
func (b *Board) Close(ctx context.Context) error {
	boards.Lock()
	if boards.byName[b.Name().ShortName()] == b {
		delete(boards.byName, b.Name().ShortName())
	}
	boards.Unlock()
	return b.ctrl.End(ctx)
}

// analogReader is the part of board.Analog the manual duty cycle needs.
type analogReader interface {
	Read(ctx context.Context, extra map[string]interface{}) (board.AnalogValue, error)
}

// analogSource scales an analog input, typically a potentiometer, to a duty cycle.
type analogSource struct {
	analog    analogReader
	fullScale int
}

func (a *analogSource) ReadDutyCycle(ctx context.Context) (uint8, error) {
	v, err := a.analog.Read(ctx, nil)
	if err != nil {
		return 0, err
	}
	switch {
	case v.Value <= 0:
		return 0, nil
	case v.Value >= a.fullScale:
		return 255, nil
	default:
		return uint8(v.Value * 255 / a.fullScale), nil
	}
}
