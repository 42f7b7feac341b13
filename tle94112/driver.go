//go:build linux

// Package tle94112 drives an Infineon TLE94112 12 half bridge DC motor controller over SPI
// and exposes it as a board model and a motor model.
package tle94112

import (
	"context"
	"math/bits"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/board"
	"go.viam.com/rdk/components/board/genericlinux/buses"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/infineon/motorcontrol"
)

// SPI settings of the TLE94112: mode 1, up to 5 MHz. The chip shifts LSB first.
const (
	spiBaud = 1000000
	spiMode = 1
)

// Driver is a register level TLE94112 session. It keeps a shadow copy of every control
// register so bridge and channel updates are read-modify-write without reading the chip.
type Driver struct {
	bus    buses.SPI
	csPin  string
	enable board.GPIOPin
	logger logging.Logger

	mu   sync.Mutex
	regs map[uint8]uint8
}

var _ motorcontrol.Driver = (*Driver)(nil)

// NewDriver opens a session: the enable pin, when given, is pulled high, every control
// register is zeroed and the status registers are cleared.
func NewDriver(ctx context.Context, bus buses.SPI, csPin string, enable board.GPIOPin, logger logging.Logger,
) (*Driver, error) {
	d := &Driver{
		bus:    bus,
		csPin:  csPin,
		enable: enable,
		logger: logger,
		regs:   map[uint8]uint8{},
	}
	if enable != nil {
		if err := enable.Set(ctx, true, nil); err != nil {
			return nil, errors.Wrap(err, "setting TLE94112 enable pin")
		}
	}
	var err error
	for _, addr := range controlRegs {
		err = multierr.Append(err, d.writeReg(ctx, addr, 0))
	}
	err = multierr.Append(err, d.ClearErrors(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "initializing TLE94112")
	}
	return d, nil
}

func (d *Driver) xfer(ctx context.Context, tx [2]byte) (byte, error) {
	handle, err := d.bus.OpenHandle()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			d.logger.CError(ctx, err)
		}
	}()

	frame := []byte{bits.Reverse8(tx[0]), bits.Reverse8(tx[1])}
	rx, err := handle.Xfer(ctx, spiBaud, d.csPin, spiMode, frame)
	if err != nil {
		return 0, err
	}
	if len(rx) < 2 {
		return 0, errors.Errorf("short SPI response: %d bytes", len(rx))
	}
	return bits.Reverse8(rx[1]), nil
}

// writeReg must be called with mu held or before the driver is shared.
func (d *Driver) writeReg(ctx context.Context, addr, value uint8) error {
	d.logger.Debugf("Write to 0x%x: 0x%02x", addr, value)
	if _, err := d.xfer(ctx, [2]byte{addr | writeFlag, value}); err != nil {
		return errors.Wrapf(err, "writing TLE94112 register 0x%x", addr)
	}
	d.regs[addr] = value
	return nil
}

func (d *Driver) readReg(ctx context.Context, addr uint8) (uint8, error) {
	value, err := d.xfer(ctx, [2]byte{addr, 0})
	if err != nil {
		return 0, errors.Wrapf(err, "reading TLE94112 register 0x%x", addr)
	}
	d.logger.Debugf("Read from 0x%x: 0x%02x", addr, value)
	return value, nil
}

func (d *Driver) writeField(ctx context.Context, f field, value uint8) error {
	return d.writeReg(ctx, f.addr, f.set(d.regs[f.addr], value))
}

// ConfigureHalfBridge selects the PWM source and freewheeling of a bridge, then switches its
// output level.
func (d *Driver) ConfigureHalfBridge(ctx context.Context, hb motorcontrol.HalfBridge, level motorcontrol.Level,
	ch motorcontrol.PWMChannel, freeWheeling bool,
) error {
	if hb < 1 || hb > motorcontrol.NumHalfBridges {
		return errors.Errorf("half bridge %d out of range 1..%d", hb, motorcontrol.NumHalfBridges)
	}
	var fw uint8
	if freeWheeling {
		fw = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return multierr.Combine(
		d.writeField(ctx, modeField(hb), pwmBits(ch)),
		d.writeField(ctx, fwField(hb), fw),
		d.writeField(ctx, actField(hb), levelBits(level)),
	)
}

// ConfigurePWM sets the duty cycle of a channel. The channel frequency is written the first
// time the channel is used.
func (d *Driver) ConfigurePWM(ctx context.Context, ch motorcontrol.PWMChannel, dutyCycle uint8) error {
	dc, ok := dcRegs[ch]
	if !ok {
		return errors.Wrapf(motorcontrol.ErrChannel, "channel %v", ch)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	f := freqField(ch)
	if freq := f.set(d.regs[f.addr], freqBits(ch)); freq != d.regs[f.addr] {
		err = d.writeReg(ctx, f.addr, freq)
	}
	return multierr.Append(err, d.writeReg(ctx, dc, dutyCycle))
}

// Diagnosis reads SYS_DIAG1. The NPOR bit is inverted so that a set bit always means a fault.
func (d *Driver) Diagnosis(ctx context.Context) (motorcontrol.Diagnosis, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	raw, err := d.readReg(ctx, sysDiag1)
	if err != nil {
		return motorcontrol.DiagOK, err
	}
	return motorcontrol.Diagnosis((raw ^ nporBit) &^ diagReserved), nil
}

// ClearErrors clears every status register.
func (d *Driver) ClearErrors(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	for _, addr := range statusRegs {
		if _, xerr := d.xfer(ctx, [2]byte{addr | writeFlag, 0}); xerr != nil {
			err = multierr.Append(err, errors.Wrapf(xerr, "clearing TLE94112 register 0x%x", addr))
		}
	}
	return err
}

// Close floats every bridge and pulls the enable pin low.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	for _, addr := range actRegs {
		err = multierr.Append(err, d.writeReg(ctx, addr, 0))
	}
	if d.enable != nil {
		err = multierr.Append(err, d.enable.Set(ctx, false, nil))
	}
	return err
}
