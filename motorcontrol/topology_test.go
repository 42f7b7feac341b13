package motorcontrol

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestResolve(t *testing.T) {
	t.Run("normal wiring uses one bridge per pole", func(t *testing.T) {
		pair, err := Resolve(NormalCurrent, 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pair.A, test.ShouldResemble, []HalfBridge{1})
		test.That(t, pair.B, test.ShouldResemble, []HalfBridge{2})

		pair, err = Resolve(NormalCurrent, 5)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pair.Bridges(), test.ShouldResemble, []HalfBridge{11, 12})
	})

	t.Run("high current wiring ties two bridges per pole", func(t *testing.T) {
		pair, err := Resolve(HighCurrent, 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pair.A, test.ShouldResemble, []HalfBridge{1, 2})
		test.That(t, pair.B, test.ShouldResemble, []HalfBridge{3, 4})

		pair, err = Resolve(HighCurrent, 2)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pair.A, test.ShouldResemble, []HalfBridge{9, 10})
		test.That(t, pair.B, test.ShouldResemble, []HalfBridge{11, 12})
	})

	t.Run("out of range motors are rejected", func(t *testing.T) {
		_, err := Resolve(NormalCurrent, 6)
		test.That(t, errors.Is(err, ErrMotorIndex), test.ShouldBeTrue)
		_, err = Resolve(HighCurrent, 3)
		test.That(t, errors.Is(err, ErrMotorIndex), test.ShouldBeTrue)
		_, err = Resolve(NormalCurrent, -1)
		test.That(t, errors.Is(err, ErrMotorIndex), test.ShouldBeTrue)
	})

	for _, mode := range []CurrentMode{NormalCurrent, HighCurrent} {
		t.Run("no two motors share a bridge with "+mode.String()+" wiring", func(t *testing.T) {
			owner := map[HalfBridge]int{}
			for i := 0; i < mode.MaxMotors(); i++ {
				pair, err := Resolve(mode, i)
				test.That(t, err, test.ShouldBeNil)
				test.That(t, len(pair.A), test.ShouldEqual, mode.BridgesPerPole())
				test.That(t, len(pair.B), test.ShouldEqual, mode.BridgesPerPole())
				for _, hb := range pair.Bridges() {
					_, taken := owner[hb]
					test.That(t, taken, test.ShouldBeFalse)
					test.That(t, int(hb), test.ShouldBeBetweenOrEqual, 1, NumHalfBridges)
					owner[hb] = i
				}
			}
			test.That(t, len(owner), test.ShouldEqual, NumHalfBridges)
		})
	}
}
