package motorcontrol

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
)

// Status is a point in time copy of the controller state.
type Status struct {
	Mode     CurrentMode
	Motors   []Motor
	Channels [NumPWMChannels]PWMSettings
	Faults   map[Fault]int
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Table renders the status as plain text tables, one row per motor and one per PWM channel.
func (s Status) Table() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "wiring: %s\n", s.Mode)

	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MOTOR\tENABLED\tRAMP\tFREEWHEELING\tDIRECTION\tPWM\tRUNNING")
	for i, m := range s.Motors {
		fmt.Fprintf(w, "m%d\t%s\t%s\t%s\t%s\t%s\t%s\n", i+1, yesNo(m.Enabled), yesNo(m.UseRamp),
			m.FreeWheeling, m.Direction, m.PWM, yesNo(m.Running))
	}
	w.Flush()

	sb.WriteString("\n")
	w = tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PWM\tMIN DC\tMAX DC\tMANUAL")
	for i, p := range s.Channels {
		fmt.Fprintf(w, "%sHz\t%d\t%d\t%s\n", Channels[i], p.MinDutyCycle, p.MaxDutyCycle, yesNo(p.Manual))
	}
	w.Flush()

	if len(s.Faults) > 0 {
		faults := make([]Fault, 0, len(s.Faults))
		for f := range s.Faults {
			faults = append(faults, f)
		}
		sort.Slice(faults, func(i, j int) bool { return faults[i] < faults[j] })
		sb.WriteString("\nfaults:")
		for _, f := range faults {
			fmt.Fprintf(&sb, " %s=%d", f, s.Faults[f])
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
