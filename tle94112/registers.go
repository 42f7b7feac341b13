//go:build linux

package tle94112

import "github.com/viam-modules/infineon/motorcontrol"

// TLE94112 control registers. Every half bridge uses a 2 bit field in one HB_ACT register
// (output level) and one HB_MODE register (PWM source), four bridges per register.
const (
	hbAct1Ctrl    = 0x03
	hbAct2Ctrl    = 0x43
	hbAct3Ctrl    = 0x23
	hbMode1Ctrl   = 0x63
	hbMode2Ctrl   = 0x13
	hbMode3Ctrl   = 0x53
	pwmChFreqCtrl = 0x33
	pwm1DCCtrl    = 0x73
	pwm2DCCtrl    = 0x0B
	pwm3DCCtrl    = 0x4B
	fwOLCtrl      = 0x2B // freewheeling of HB7..HB12 in bits 2..7
	fwCtrl        = 0x6B // freewheeling of HB1..HB6 in bits 0..5
)

// TLE94112 status registers. A write frame clears them.
const (
	sysDiag1 = 0x1B
	sysDiag2 = 0x5B
	sysDiag3 = 0x3B
	sysDiag4 = 0x7B
	sysDiag5 = 0x07
	sysDiag6 = 0x47
	sysDiag7 = 0x27
)

// Frame layout: first byte is the address with the write flag, second byte the data.
const (
	writeFlag = 0x80

	// SYS_DIAG1 reports a power on reset as a cleared NPOR bit; bit 0 is reserved.
	nporBit      = 0x08
	diagReserved = 0x01
)

var (
	controlRegs = []uint8{
		hbAct1Ctrl, hbAct2Ctrl, hbAct3Ctrl,
		hbMode1Ctrl, hbMode2Ctrl, hbMode3Ctrl,
		pwmChFreqCtrl, pwm1DCCtrl, pwm2DCCtrl, pwm3DCCtrl,
		fwOLCtrl, fwCtrl,
	}
	statusRegs = []uint8{sysDiag1, sysDiag2, sysDiag3, sysDiag4, sysDiag5, sysDiag6, sysDiag7}

	actRegs  = [3]uint8{hbAct1Ctrl, hbAct2Ctrl, hbAct3Ctrl}
	modeRegs = [3]uint8{hbMode1Ctrl, hbMode2Ctrl, hbMode3Ctrl}
	dcRegs   = map[motorcontrol.PWMChannel]uint8{
		motorcontrol.PWM80Hz:  pwm1DCCtrl,
		motorcontrol.PWM100Hz: pwm2DCCtrl,
		motorcontrol.PWM200Hz: pwm3DCCtrl,
	}
)

// field locates a bit field inside a register.
type field struct {
	addr  uint8
	shift uint
	mask  uint8
}

func (f field) set(reg, value uint8) uint8 {
	return reg&^(f.mask<<f.shift) | (value&f.mask)<<f.shift
}

func actField(hb motorcontrol.HalfBridge) field {
	i := int(hb) - 1
	return field{addr: actRegs[i/4], shift: uint(i%4) * 2, mask: 0x03}
}

func modeField(hb motorcontrol.HalfBridge) field {
	i := int(hb) - 1
	return field{addr: modeRegs[i/4], shift: uint(i%4) * 2, mask: 0x03}
}

func fwField(hb motorcontrol.HalfBridge) field {
	i := int(hb) - 1
	if i < 6 {
		return field{addr: fwCtrl, shift: uint(i), mask: 0x01}
	}
	return field{addr: fwOLCtrl, shift: uint(i-6) + 2, mask: 0x01}
}

func freqField(ch motorcontrol.PWMChannel) field {
	return field{addr: pwmChFreqCtrl, shift: uint(int(ch)-1) * 2, mask: 0x03}
}

// levelBits encodes the HB_ACT field: low side on is 01, high side on is 10.
func levelBits(l motorcontrol.Level) uint8 {
	switch l {
	case motorcontrol.Low:
		return 0x01
	case motorcontrol.High:
		return 0x02
	default:
		return 0x00
	}
}

// pwmBits encodes the HB_MODE field: 0 is no PWM, 1..3 select PWM1..PWM3.
func pwmBits(ch motorcontrol.PWMChannel) uint8 {
	if !ch.Valid() {
		return 0
	}
	return uint8(ch)
}

// freqBits encodes the PWM_CH_FREQ_CTRL field: 01 is 80 Hz, 10 is 100 Hz, 11 is 200 Hz.
func freqBits(ch motorcontrol.PWMChannel) uint8 {
	switch ch.Frequency() {
	case 80:
		return 0x01
	case 100:
		return 0x02
	case 200:
		return 0x03
	default:
		return 0x00
	}
}
