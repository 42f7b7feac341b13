package motorcontrol

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

type hbCall struct {
	hb    HalfBridge
	level Level
	pwm   PWMChannel
	fw    bool
}

type pwmCall struct {
	ch PWMChannel
	dc uint8
	at time.Time
}

// fakeDriver records every call and keeps the last setting of each half bridge.
type fakeDriver struct {
	clk        *clock.Mock
	hbCalls    []hbCall
	pwmCalls   []pwmCall
	bridges    map[HalfBridge]hbCall
	diag       Diagnosis
	diagReads  int
	clears     int
	closed     bool
	configErr  error
	onConfigHB func()
}

func newFakeDriver(clk *clock.Mock) *fakeDriver {
	return &fakeDriver{clk: clk, bridges: map[HalfBridge]hbCall{}}
}

func (f *fakeDriver) ConfigureHalfBridge(ctx context.Context, hb HalfBridge, level Level, ch PWMChannel, fw bool) error {
	call := hbCall{hb: hb, level: level, pwm: ch, fw: fw}
	f.hbCalls = append(f.hbCalls, call)
	f.bridges[hb] = call
	if f.onConfigHB != nil {
		f.onConfigHB()
	}
	return f.configErr
}

func (f *fakeDriver) ConfigurePWM(ctx context.Context, ch PWMChannel, dc uint8) error {
	call := pwmCall{ch: ch, dc: dc}
	if f.clk != nil {
		call.at = f.clk.Now()
	}
	f.pwmCalls = append(f.pwmCalls, call)
	return nil
}

func (f *fakeDriver) Diagnosis(ctx context.Context) (Diagnosis, error) {
	f.diagReads++
	return f.diag, nil
}

func (f *fakeDriver) ClearErrors(ctx context.Context) error {
	f.clears++
	f.diag = DiagOK
	return nil
}

func (f *fakeDriver) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func (f *fakeDriver) reset() {
	f.hbCalls = nil
	f.pwmCalls = nil
	f.diagReads = 0
	f.clears = 0
}

func (f *fakeDriver) dutyCycles() []uint8 {
	out := make([]uint8, len(f.pwmCalls))
	for i, c := range f.pwmCalls {
		out[i] = c.dc
	}
	return out
}

// mockSleeper advances the mock clock instead of sleeping.
type mockSleeper struct {
	*clock.Mock
}

func (m mockSleeper) Sleep(d time.Duration) {
	m.Add(d)
}
