package motorcontrol

import "github.com/pkg/errors"

// PolePair holds the half bridges wired to the two terminals of one motor. Each pole has one
// bridge in normal mode and two bridges tied together in high current mode.
type PolePair struct {
	A []HalfBridge
	B []HalfBridge
}

// Bridges returns every half bridge of the pair, pole A first.
func (p PolePair) Bridges() []HalfBridge {
	out := make([]HalfBridge, 0, len(p.A)+len(p.B))
	out = append(out, p.A...)
	return append(out, p.B...)
}

// Resolve returns the half bridges owned by the 0-based motor index in the given current mode.
// Normal mode: motor i owns 2i+1 (A) and 2i+2 (B).
// High current mode: motor i owns 4i+1, 4i+2 (A) and 4i+3, 4i+4 (B).
func Resolve(mode CurrentMode, motor int) (PolePair, error) {
	if motor < 0 || motor >= mode.MaxMotors() {
		return PolePair{}, errors.Wrapf(ErrMotorIndex, "motor %d with %s wiring (max %d motors)",
			motor+1, mode, mode.MaxMotors())
	}
	per := mode.BridgesPerPole()
	first := HalfBridge(2*per*motor + 1)

	pair := PolePair{A: make([]HalfBridge, per), B: make([]HalfBridge, per)}
	for i := 0; i < per; i++ {
		pair.A[i] = first + HalfBridge(i)
		pair.B[i] = first + HalfBridge(per+i)
	}
	return pair, nil
}
