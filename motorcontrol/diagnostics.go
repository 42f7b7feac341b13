package motorcontrol

import (
	"context"
	"strings"

	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
)

// FaultTitle heads every reported fault line.
const FaultTitle = "TLE94112 Error"

// Fault is one category of the system diagnosis.
type Fault int

// Fault categories, in report order.
const (
	NoError Fault = iota
	OpenLoad
	SPIError
	UnderVoltage
	OverVoltage
	PowerOnReset
	TempShutdown
	TempWarning
)

var faultBits = []struct {
	fault Fault
	bit   Diagnosis
}{
	{OpenLoad, DiagOpenLoad},
	{SPIError, DiagSPIError},
	{UnderVoltage, DiagUnderVoltage},
	{OverVoltage, DiagOverVoltage},
	{PowerOnReset, DiagPowerOnReset},
	{TempShutdown, DiagTempShutdown},
	{TempWarning, DiagTempWarning},
}

func (f Fault) String() string {
	switch f {
	case OpenLoad:
		return "Open"
	case SPIError:
		return "SPI"
	case UnderVoltage:
		return "Under V"
	case OverVoltage:
		return "Over V"
	case PowerOnReset:
		return "Pwr rst"
	case TempShutdown:
		return "Temp shutdown"
	case TempWarning:
		return "Warn high temp"
	default:
		return "No Error"
	}
}

// Classify splits a diagnosis into its fault categories. An all clear diagnosis yields NoError.
func Classify(d Diagnosis) []Fault {
	if d == DiagOK {
		return []Fault{NoError}
	}
	var out []Fault
	for _, fb := range faultBits {
		if d.Has(fb.bit) {
			out = append(out, fb.fault)
		}
	}
	return out
}

// Diagnostics polls the driver diagnosis and turns it into logged fault reports.
// Faults are never fatal: they are reported, counted and cleared.
type Diagnostics struct {
	drv              Driver
	logger           logging.Logger
	suppressOpenLoad bool
	counts           map[Fault]int
}

// NewDiagnostics returns a translator over drv. With suppressOpenLoad set, open load faults,
// which fire while a pole draws almost no current early in a ramp, are cleared silently.
func NewDiagnostics(drv Driver, logger logging.Logger, suppressOpenLoad bool) *Diagnostics {
	return &Diagnostics{
		drv:              drv,
		logger:           logger,
		suppressOpenLoad: suppressOpenLoad,
		counts:           map[Fault]int{},
	}
}

// HasFault reports whether the diagnosis register is anything but all clear.
func (d *Diagnostics) HasFault(ctx context.Context) (bool, error) {
	diag, err := d.drv.Diagnosis(ctx)
	if err != nil {
		return false, err
	}
	return diag != DiagOK, nil
}

// ReportAndClear reads the diagnosis again, logs every reportable category, clears the
// driver latch and returns the reported faults. Suppressed and NoError results return empty.
func (d *Diagnostics) ReportAndClear(ctx context.Context) ([]Fault, error) {
	diag, err := d.drv.Diagnosis(ctx)
	if err != nil {
		return nil, multierr.Combine(err, d.drv.ClearErrors(ctx))
	}

	var report []Fault
	for _, f := range Classify(diag) {
		if f == NoError {
			continue
		}
		d.counts[f]++
		if f == OpenLoad && d.suppressOpenLoad {
			continue
		}
		report = append(report, f)
	}

	if len(report) > 0 {
		names := make([]string, len(report))
		for i, f := range report {
			names[i] = f.String()
		}
		d.logger.CWarnf(ctx, "%s: %s", FaultTitle, strings.Join(names, ", "))
	} else {
		d.logger.Debugf("diagnosis 0x%02x: %s", uint8(diag), NoError)
	}

	return report, d.drv.ClearErrors(ctx)
}

// Check runs ReportAndClear only when HasFault says there is something to report.
func (d *Diagnostics) Check(ctx context.Context) error {
	fault, err := d.HasFault(ctx)
	if err != nil || !fault {
		return err
	}
	_, err = d.ReportAndClear(ctx)
	return err
}

// Counts returns how many times each category was seen, suppressed ones included.
func (d *Diagnostics) Counts() map[Fault]int {
	out := make(map[Fault]int, len(d.counts))
	for f, n := range d.counts {
		out[f] = n
	}
	return out
}

// ResetCounts forgets every counted fault.
func (d *Diagnostics) ResetCounts() {
	d.counts = map[Fault]int{}
}
