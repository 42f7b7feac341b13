package motorcontrol

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"
)

type fixedReader struct {
	dc  uint8
	err error
}

func (r *fixedReader) ReadDutyCycle(ctx context.Context) (uint8, error) {
	return r.dc, r.err
}

func newTestController(t *testing.T, opts Options) (*Controller, *fakeDriver, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	drv := newFakeDriver(clk)
	opts.Clock = mockSleeper{clk}
	c, err := NewController(context.Background(), drv, logging.NewTestLogger(t), opts)
	test.That(t, err, test.ShouldBeNil)
	return c, drv, clk
}

func TestControllerReset(t *testing.T) {
	ctx := context.Background()
	c, drv, _ := newTestController(t, Options{Mode: HighCurrent})
	test.That(t, c.NumMotors(), test.ShouldEqual, 3)
	test.That(t, c.Mode(), test.ShouldEqual, HighCurrent)
	test.That(t, len(drv.hbCalls), test.ShouldEqual, NumHalfBridges)
	for hb := HalfBridge(1); hb <= NumHalfBridges; hb++ {
		test.That(t, drv.bridges[hb], test.ShouldResemble, hbCall{hb: hb, level: Floating, pwm: NoPWM, fw: true})
	}

	test.That(t, c.SetEnabled(AllMotors(), true), test.ShouldBeNil)
	test.That(t, c.SetMaxDutyCycle(AllChannels(), 90), test.ShouldBeNil)
	test.That(t, c.Reset(ctx), test.ShouldBeNil)
	m, err := c.Motor(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Enabled, test.ShouldBeFalse)
	p, err := c.Channel(PWM200Hz)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.MaxDutyCycle, test.ShouldEqual, DefaultMaxDutyCycle)

	test.That(t, c.End(ctx), test.ShouldBeNil)
	test.That(t, drv.closed, test.ShouldBeTrue)
}

func TestControllerStartStop(t *testing.T) {
	ctx := context.Background()

	t.Run("instant start sets the regime duty cycle once", func(t *testing.T) {
		c, drv, _ := newTestController(t, Options{})
		test.That(t, c.SetEnabled(OneMotor(0), true), test.ShouldBeNil)
		test.That(t, c.SetPWMChannel(OneMotor(0), PWM100Hz), test.ShouldBeNil)
		drv.reset()

		test.That(t, c.Start(ctx, AllMotors()), test.ShouldBeNil)
		test.That(t, drv.hbCalls, test.ShouldResemble, []hbCall{
			{hb: 2, level: Low, pwm: NoPWM, fw: true},
			{hb: 1, level: High, pwm: PWM100Hz, fw: true},
		})
		test.That(t, len(drv.pwmCalls), test.ShouldEqual, 1)
		test.That(t, drv.pwmCalls[0].ch, test.ShouldEqual, PWM100Hz)
		test.That(t, drv.pwmCalls[0].dc, test.ShouldEqual, 255)

		st := c.Status()
		test.That(t, st.Motors[0].Running, test.ShouldBeTrue)
		test.That(t, st.Motors[1].Running, test.ShouldBeFalse)

		drv.reset()
		test.That(t, c.Stop(ctx, AllMotors()), test.ShouldBeNil)
		test.That(t, len(drv.hbCalls), test.ShouldEqual, NumHalfBridges)
		for hb := HalfBridge(1); hb <= NumHalfBridges; hb++ {
			test.That(t, drv.bridges[hb].level, test.ShouldEqual, High)
		}
		m, _ := c.Motor(0)
		test.That(t, m.Running, test.ShouldBeFalse)
	})

	t.Run("ramped start sweeps the channel bounds", func(t *testing.T) {
		c, drv, clk := newTestController(t, Options{StepDelay: 2 * time.Millisecond})
		test.That(t, c.SetEnabled(OneMotor(3), true), test.ShouldBeNil)
		test.That(t, c.SetPWMChannel(OneMotor(3), PWM100Hz), test.ShouldBeNil)
		test.That(t, c.SetRamp(OneMotor(3), true), test.ShouldBeNil)
		test.That(t, c.SetDutyCycleBounds(OneChannel(PWM100Hz), 250, 253), test.ShouldBeNil)
		drv.reset()

		start := clk.Now()
		test.That(t, c.Start(ctx, OneMotor(3)), test.ShouldBeNil)
		test.That(t, drv.dutyCycles(), test.ShouldResemble, []uint8{250, 251, 252, 253})
		test.That(t, clk.Now().Sub(start), test.ShouldEqual, 8*time.Millisecond)
	})

	t.Run("manual channels read the external source", func(t *testing.T) {
		reader := &fixedReader{dc: 120}
		c, drv, _ := newTestController(t, Options{Manual: reader})
		test.That(t, c.SetEnabled(OneMotor(1), true), test.ShouldBeNil)
		test.That(t, c.SetPWMChannel(OneMotor(1), PWM200Hz), test.ShouldBeNil)
		test.That(t, c.SetManual(OneChannel(PWM200Hz), true), test.ShouldBeNil)
		drv.reset()

		test.That(t, c.Start(ctx, AllMotors()), test.ShouldBeNil)
		test.That(t, drv.dutyCycles(), test.ShouldResemble, []uint8{120})

		reader.dc = 10
		drv.reset()
		test.That(t, c.Start(ctx, AllMotors()), test.ShouldBeNil)
		test.That(t, drv.dutyCycles(), test.ShouldResemble, []uint8{DefaultMinDutyCycle})

		reader.err = errors.New("adc busy")
		drv.reset()
		err := c.Start(ctx, AllMotors())
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "adc busy")
		test.That(t, drv.dutyCycles(), test.ShouldResemble, []uint8{DefaultMaxDutyCycle})
	})

	t.Run("nothing enabled means nothing happens", func(t *testing.T) {
		c, drv, _ := newTestController(t, Options{})
		drv.reset()
		test.That(t, c.Start(ctx, AllMotors()), test.ShouldBeNil)
		test.That(t, drv.hbCalls, test.ShouldBeEmpty)
		test.That(t, drv.pwmCalls, test.ShouldBeEmpty)
		test.That(t, errors.Is(c.Start(ctx, OneMotor(7)), ErrMotorIndex), test.ShouldBeTrue)
		test.That(t, errors.Is(c.Stop(ctx, OneMotor(7)), ErrMotorIndex), test.ShouldBeTrue)
	})
}

func TestControllerReverse(t *testing.T) {
	ctx := context.Background()
	c, drv, clk := newTestController(t, Options{})
	test.That(t, c.SetEnabled(OneMotor(0), true), test.ShouldBeNil)
	test.That(t, c.SetPWMChannel(OneMotor(0), PWM80Hz), test.ShouldBeNil)

	t.Run("idle motors only change the store", func(t *testing.T) {
		drv.reset()
		test.That(t, c.SetDirection(ctx, AllMotors(), CCW), test.ShouldBeNil)
		test.That(t, drv.hbCalls, test.ShouldBeEmpty)
		test.That(t, c.SetDirection(ctx, AllMotors(), CW), test.ShouldBeNil)
	})

	t.Run("running motors brake, settle and restart", func(t *testing.T) {
		test.That(t, c.Start(ctx, OneMotor(0)), test.ShouldBeNil)
		drv.reset()
		before := clk.Now()

		test.That(t, c.SetDirection(ctx, OneMotor(0), CCW), test.ShouldBeNil)
		test.That(t, clk.Now().Sub(before), test.ShouldEqual, DefaultReverseDelay)
		test.That(t, drv.hbCalls, test.ShouldResemble, []hbCall{
			{hb: 1, level: High, pwm: NoPWM, fw: true},
			{hb: 2, level: High, pwm: NoPWM, fw: true},
			{hb: 1, level: Low, pwm: NoPWM, fw: true},
			{hb: 2, level: High, pwm: PWM80Hz, fw: true},
		})
		test.That(t, drv.dutyCycles(), test.ShouldResemble, []uint8{DefaultMaxDutyCycle})
		m, _ := c.Motor(0)
		test.That(t, m.Direction, test.ShouldEqual, CCW)
		test.That(t, m.Running, test.ShouldBeTrue)
	})
}

func TestControllerDrive(t *testing.T) {
	ctx := context.Background()
	c, drv, _ := newTestController(t, Options{})
	test.That(t, c.SetPWMChannel(OneMotor(2), PWM80Hz), test.ShouldBeNil)
	drv.reset()

	test.That(t, c.Drive(ctx, 2, CCW, 30), test.ShouldBeNil)
	test.That(t, drv.hbCalls, test.ShouldResemble, []hbCall{
		{hb: 5, level: Low, pwm: NoPWM, fw: true},
		{hb: 6, level: High, pwm: PWM80Hz, fw: true},
	})
	test.That(t, drv.dutyCycles(), test.ShouldResemble, []uint8{DefaultMinDutyCycle})
	m, _ := c.Motor(2)
	test.That(t, m.Enabled, test.ShouldBeTrue)
	test.That(t, m.Running, test.ShouldBeTrue)

	t.Run("ramped drive sweeps up to the request", func(t *testing.T) {
		test.That(t, c.Stop(ctx, OneMotor(2)), test.ShouldBeNil)
		test.That(t, c.SetRamp(OneMotor(2), true), test.ShouldBeNil)
		drv.reset()
		test.That(t, c.Drive(ctx, 2, CCW, 53), test.ShouldBeNil)
		test.That(t, drv.dutyCycles(), test.ShouldResemble, []uint8{50, 51, 52, 53})

		// already running the same way: jump straight to the new value
		drv.reset()
		test.That(t, c.Drive(ctx, 2, CCW, 200), test.ShouldBeNil)
		test.That(t, drv.dutyCycles(), test.ShouldResemble, []uint8{200})
	})

	test.That(t, errors.Is(c.Drive(ctx, 6, CW, 10), ErrMotorIndex), test.ShouldBeTrue)
}

func TestStatusTable(t *testing.T) {
	ctx := context.Background()
	c, drv, _ := newTestController(t, Options{SuppressOpenLoad: true})
	test.That(t, c.SetEnabled(OneMotor(0), true), test.ShouldBeNil)
	test.That(t, c.SetPWMChannel(OneMotor(0), PWM200Hz), test.ShouldBeNil)
	test.That(t, c.SetDutyCycleBounds(OneChannel(PWM100Hz), 60, 180), test.ShouldBeNil)

	drv.diag = DiagOpenLoad | DiagTempWarning
	report, err := c.Diagnose(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report, test.ShouldResemble, []Fault{TempWarning})

	table := c.Status().Table()
	test.That(t, table, test.ShouldContainSubstring, "wiring: normal")
	test.That(t, table, test.ShouldContainSubstring, "MOTOR")
	test.That(t, table, test.ShouldContainSubstring, "m6")
	test.That(t, table, test.ShouldContainSubstring, "100Hz  60")
	test.That(t, table, test.ShouldContainSubstring, "faults: Open=1 Warn high temp=1")
}
