package motorcontrol

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/exp/constraints"
)

// Phase is a state of the ramp state machine.
type Phase int

// Ramp phases. A bounded run goes Accel, Hold, Decel, Done; a continuous start goes Accel, Run.
const (
	PhaseAccel Phase = iota
	PhaseHold
	PhaseDecel
	PhaseDone
	PhaseRun
)

func (p Phase) String() string {
	switch p {
	case PhaseAccel:
		return "accel"
	case PhaseHold:
		return "hold"
	case PhaseDecel:
		return "decel"
	case PhaseRun:
		return "run"
	default:
		return "done"
	}
}

// Sleeper pauses the calling goroutine. clock.Clock satisfies it.
type Sleeper interface {
	Sleep(d time.Duration)
}

// StepFunc writes one duty cycle value to the hardware.
type StepFunc func(ctx context.Context, dutyCycle uint8) error

// RampParams describes one ramp.
type RampParams struct {
	Min, Max  uint8
	StepDelay time.Duration
	// Hold is the time spent at Max in a bounded run.
	Hold time.Duration
}

// Validate checks Min <= Max.
func (p RampParams) Validate() error {
	if p.Min > p.Max {
		return errors.Wrapf(ErrDutyCycleBounds, "ramp from %d to %d", p.Min, p.Max)
	}
	return nil
}

// Ramper sweeps a duty cycle through unit steps. It blocks until the sweep completes and is
// not cancellable: the driver session belongs to the ramp until it returns.
type Ramper struct {
	clock Sleeper
	check func(ctx context.Context) error
	// OnPhase, when set, is called on every phase transition.
	OnPhase func(Phase)
}

// NewRamper returns a ramper pausing on clk and calling check after every step.
func NewRamper(clk Sleeper, check func(ctx context.Context) error) *Ramper {
	return &Ramper{clock: clk, check: check}
}

func (r *Ramper) enter(p Phase) {
	if r.OnPhase != nil {
		r.OnPhase(p)
	}
}

func (r *Ramper) step(ctx context.Context, set StepFunc, dc uint8, delay time.Duration) error {
	err := set(ctx, dc)
	if r.check != nil {
		err = multierr.Append(err, r.check(ctx))
	}
	r.clock.Sleep(delay)
	return err
}

func (r *Ramper) accelerate(ctx context.Context, set StepFunc, p RampParams) error {
	r.enter(PhaseAccel)
	var err error
	for dc := int(p.Min); dc <= int(p.Max); dc++ {
		err = multierr.Append(err, r.step(ctx, set, uint8(dc), p.StepDelay))
	}
	return err
}

// Run accelerates from Min to Max, holds Max for Hold, then decelerates back to Min.
// Braking afterwards is up to the caller.
func (r *Ramper) Run(ctx context.Context, set StepFunc, p RampParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	err := r.accelerate(ctx, set, p)

	r.enter(PhaseHold)
	r.clock.Sleep(p.Hold)

	r.enter(PhaseDecel)
	for dc := int(p.Max) - 1; dc >= int(p.Min); dc-- {
		err = multierr.Append(err, r.step(ctx, set, uint8(dc), p.StepDelay))
	}
	r.enter(PhaseDone)
	return err
}

// Start accelerates from Min to Max and leaves the duty cycle parked at Max.
func (r *Ramper) Start(ctx context.Context, set StepFunc, p RampParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	err := r.accelerate(ctx, set, p)
	r.enter(PhaseRun)
	return err
}

func clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
