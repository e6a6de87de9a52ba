package stats

import (
	"fmt"
	"sort"

	"glyphscore/domain/core"
)

// LookupBreakpoint maps "statistic above Critical" to a coarse p-value bound
type LookupBreakpoint struct {
	Critical float64 `yaml:"critical"`
	PValue   float64 `yaml:"p_value"`
}

// LookupTable is the coarse critical-value approximation of a p-value used by
// many of the legacy analyses. It reports the tightest bound whose critical
// value the statistic exceeds, and Ceiling otherwise.
type LookupTable struct {
	Breakpoints []LookupBreakpoint `yaml:"breakpoints"`
	Ceiling     float64            `yaml:"ceiling"`
}

// DefaultChiSquareLookup returns the 1-degree-of-freedom χ² critical values
// for p = 0.05, 0.01 and 0.001
func DefaultChiSquareLookup() LookupTable {
	return LookupTable{
		Breakpoints: []LookupBreakpoint{
			{Critical: 3.841, PValue: 0.05},
			{Critical: 6.635, PValue: 0.01},
			{Critical: 10.828, PValue: 0.001},
		},
		Ceiling: 1.0,
	}
}

// Validate checks that breakpoints tighten monotonically
func (t LookupTable) Validate() error {
	if len(t.Breakpoints) == 0 {
		return core.NewConfigError("lookup", "at least one breakpoint is required")
	}
	sorted := t.sorted()
	for i, bp := range sorted {
		if bp.PValue <= 0 || bp.PValue > 1 {
			return core.NewConfigError("lookup", fmt.Sprintf("breakpoint p-value %v out of (0,1]", bp.PValue))
		}
		if i > 0 && bp.PValue > sorted[i-1].PValue {
			return core.NewConfigError("lookup", "p-values must shrink as critical values grow")
		}
	}
	if t.Ceiling <= 0 || t.Ceiling > 1 {
		return core.NewConfigError("lookup", fmt.Sprintf("ceiling %v out of (0,1]", t.Ceiling))
	}
	return nil
}

// PValue returns the coarse p-value bound for a statistic
func (t LookupTable) PValue(statistic float64) float64 {
	p := t.Ceiling
	for _, bp := range t.sorted() {
		if statistic > bp.Critical {
			p = bp.PValue
		}
	}
	return p
}

func (t LookupTable) sorted() []LookupBreakpoint {
	out := make([]LookupBreakpoint, len(t.Breakpoints))
	copy(out, t.Breakpoints)
	sort.Slice(out, func(i, j int) bool { return out[i].Critical < out[j].Critical })
	return out
}
