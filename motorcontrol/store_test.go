package motorcontrol

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestStoreDefaults(t *testing.T) {
	s := NewStore(NormalCurrent)
	test.That(t, s.NumMotors(), test.ShouldEqual, 6)
	test.That(t, NewStore(HighCurrent).NumMotors(), test.ShouldEqual, 3)

	for _, m := range s.Motors() {
		test.That(t, m, test.ShouldResemble, Motor{
			Direction:    CW,
			FreeWheeling: FreeWheelingActive,
			PWM:          NoPWM,
		})
	}
	for _, ch := range Channels {
		p, err := s.Channel(ch)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p, test.ShouldResemble, PWMSettings{
			MinDutyCycle: DefaultMinDutyCycle,
			MaxDutyCycle: DefaultMaxDutyCycle,
		})
	}
}

func TestStoreBroadcast(t *testing.T) {
	s := NewStore(NormalCurrent)
	all := AllMotors()
	test.That(t, s.SetEnabled(all, true), test.ShouldBeNil)
	test.That(t, s.SetDirection(all, CCW), test.ShouldBeNil)
	test.That(t, s.SetRamp(all, true), test.ShouldBeNil)
	test.That(t, s.SetFreeWheeling(all, FreeWheelingPassive), test.ShouldBeNil)
	test.That(t, s.SetPWMChannel(all, PWM100Hz), test.ShouldBeNil)

	for i := 0; i < s.NumMotors(); i++ {
		m, err := s.Motor(i)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, m, test.ShouldResemble, Motor{
			Enabled:      true,
			Direction:    CCW,
			UseRamp:      true,
			FreeWheeling: FreeWheelingPassive,
			PWM:          PWM100Hz,
		})
	}

	test.That(t, s.SetDutyCycleBounds(AllChannels(), 70, 200), test.ShouldBeNil)
	test.That(t, s.SetManual(AllChannels(), true), test.ShouldBeNil)
	for _, ch := range Channels {
		p, err := s.Channel(ch)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p, test.ShouldResemble, PWMSettings{MinDutyCycle: 70, MaxDutyCycle: 200, Manual: true})
	}

	s.Reset()
	m, err := s.Motor(3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Enabled, test.ShouldBeFalse)
	test.That(t, m.PWM, test.ShouldEqual, NoPWM)
}

func TestStoreSingleTarget(t *testing.T) {
	s := NewStore(NormalCurrent)
	test.That(t, s.SetEnabled(OneMotor(2), true), test.ShouldBeNil)
	test.That(t, s.SetPWMChannel(OneMotor(2), PWM200Hz), test.ShouldBeNil)
	test.That(t, s.SetMaxDutyCycle(OneChannel(PWM80Hz), 180), test.ShouldBeNil)

	for i, m := range s.Motors() {
		test.That(t, m.Enabled, test.ShouldEqual, i == 2)
		if i == 2 {
			test.That(t, m.PWM, test.ShouldEqual, PWM200Hz)
		} else {
			test.That(t, m.PWM, test.ShouldEqual, NoPWM)
		}
	}
	p80, _ := s.Channel(PWM80Hz)
	p100, _ := s.Channel(PWM100Hz)
	test.That(t, p80.MaxDutyCycle, test.ShouldEqual, 180)
	test.That(t, p100.MaxDutyCycle, test.ShouldEqual, DefaultMaxDutyCycle)

	t.Run("bad targets", func(t *testing.T) {
		err := s.SetEnabled(OneMotor(6), true)
		test.That(t, errors.Is(err, ErrMotorIndex), test.ShouldBeTrue)
		_, err = s.Motor(-1)
		test.That(t, errors.Is(err, ErrMotorIndex), test.ShouldBeTrue)
		err = s.SetPWMChannel(OneMotor(0), PWMChannel(9))
		test.That(t, errors.Is(err, ErrChannel), test.ShouldBeTrue)
		err = s.SetManual(OneChannel(NoPWM), true)
		test.That(t, errors.Is(err, ErrChannel), test.ShouldBeTrue)
		test.That(t, NewStore(HighCurrent).SetRamp(OneMotor(3), true), test.ShouldNotBeNil)
	})
}

func TestStoreDutyCycleBounds(t *testing.T) {
	s := NewStore(NormalCurrent)
	boundsHold := func() {
		for _, ch := range Channels {
			p, _ := s.Channel(ch)
			test.That(t, p.MinDutyCycle, test.ShouldBeLessThanOrEqualTo, p.MaxDutyCycle)
		}
	}

	t.Run("min above max is rejected", func(t *testing.T) {
		test.That(t, s.SetMaxDutyCycle(OneChannel(PWM80Hz), 100), test.ShouldBeNil)
		err := s.SetMinDutyCycle(OneChannel(PWM80Hz), 101)
		test.That(t, errors.Is(err, ErrDutyCycleBounds), test.ShouldBeTrue)
		p, _ := s.Channel(PWM80Hz)
		test.That(t, p.MinDutyCycle, test.ShouldEqual, DefaultMinDutyCycle)
		test.That(t, p.MaxDutyCycle, test.ShouldEqual, 100)
		boundsHold()
	})

	t.Run("max below min is rejected", func(t *testing.T) {
		err := s.SetMaxDutyCycle(OneChannel(PWM100Hz), DefaultMinDutyCycle-1)
		test.That(t, errors.Is(err, ErrDutyCycleBounds), test.ShouldBeTrue)
		p, _ := s.Channel(PWM100Hz)
		test.That(t, p.MaxDutyCycle, test.ShouldEqual, DefaultMaxDutyCycle)
		boundsHold()
	})

	t.Run("equal bounds are accepted", func(t *testing.T) {
		test.That(t, s.SetMinDutyCycle(OneChannel(PWM80Hz), 100), test.ShouldBeNil)
		p, _ := s.Channel(PWM80Hz)
		test.That(t, p.MinDutyCycle, test.ShouldEqual, 100)
		boundsHold()
	})

	t.Run("broadcast is all or nothing", func(t *testing.T) {
		// 80 Hz has max 100, the others 255: min 150 fits two channels but not all three.
		err := s.SetMinDutyCycle(AllChannels(), 150)
		test.That(t, errors.Is(err, ErrDutyCycleBounds), test.ShouldBeTrue)
		for _, ch := range []PWMChannel{PWM100Hz, PWM200Hz} {
			p, _ := s.Channel(ch)
			test.That(t, p.MinDutyCycle, test.ShouldEqual, DefaultMinDutyCycle)
		}
		boundsHold()

		err = s.SetDutyCycleBounds(AllChannels(), 120, 110)
		test.That(t, errors.Is(err, ErrDutyCycleBounds), test.ShouldBeTrue)
		boundsHold()
	})
}
