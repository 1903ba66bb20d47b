// Package socgauge estimates battery state of charge from a measured
// voltage using a fixed discharge curve and linear interpolation.
package socgauge

import "fmt"

// Breakpoint pairs a measured battery voltage with a known charge
// percentage on the discharge curve.
type Breakpoint struct {
	Millivolts int
	Percent    int
}

// DischargeCurve is an ordered list of breakpoints, ascending by voltage.
// Curves are built once and never mutated.
type DischargeCurve []Breakpoint

// LiIon is the discharge curve of a single LiIon cell.
var LiIon = DischargeCurve{
	{3434, 0}, {3457, 4}, {3487, 8}, {3520, 12}, {3545, 15}, {3577, 19}, {3595, 23},
	{3609, 27}, {3618, 31}, {3625, 35}, {3633, 38}, {3643, 42}, {3656, 46}, {3672, 50},
	{3696, 54}, {3733, 58}, {3767, 62}, {3796, 65}, {3825, 69}, {3862, 73}, {3899, 77},
	{3936, 81}, {3976, 85}, {4023, 88}, {4068, 92}, {4120, 96}, {4177, 100},
}

// Estimate converts a battery voltage in millivolts to a charge percentage.
// Voltages at or above the top of the curve read as fully charged. Voltages
// below the bottom of the curve find no bracket and read as 0.
func (c DischargeCurve) Estimate(mv int) int {
	if len(c) == 0 {
		return 0
	}

	// Above the top of the curve, assume fully charged.
	if mv >= c[len(c)-1].Millivolts {
		return 100
	}

	percent := 0
	for i := 0; i < len(c)-1; i++ {
		lo, hi := c[i], c[i+1]
		if lo.Millivolts <= mv && mv <= hi.Millivolts {
			span := hi.Millivolts - lo.Millivolts
			if span == 0 {
				percent = lo.Percent
				break
			}
			slope := float64(hi.Percent-lo.Percent) / float64(span)
			percent = int(float64(lo.Percent) + slope*float64(mv-lo.Millivolts))
			break
		}
	}
	return percent
}

// Validate checks the curve ordering invariant. Estimate never calls this;
// it is for rejecting user-supplied curves at load time.
func (c DischargeCurve) Validate() error {
	if len(c) < 2 {
		return fmt.Errorf("discharge curve needs at least 2 breakpoints, got %d", len(c))
	}
	for i, b := range c {
		if b.Percent < 0 || b.Percent > 100 {
			return fmt.Errorf("breakpoint %d: percent %d out of range", i, b.Percent)
		}
		if i == 0 {
			continue
		}
		if b.Millivolts <= c[i-1].Millivolts {
			return fmt.Errorf("breakpoint %d: voltage %dmV not above previous %dmV", i, b.Millivolts, c[i-1].Millivolts)
		}
		if b.Percent < c[i-1].Percent {
			return fmt.Errorf("breakpoint %d: percent %d below previous %d", i, b.Percent, c[i-1].Percent)
		}
	}
	return nil
}

// CurveFromSlices builds a curve from parallel millivolt and percent lists,
// as supplied by the config file.
func CurveFromSlices(millivolts, percents []int) (DischargeCurve, error) {
	if len(millivolts) != len(percents) {
		return nil, fmt.Errorf("curve lists differ in length: %d voltages, %d percents", len(millivolts), len(percents))
	}
	curve := make(DischargeCurve, len(millivolts))
	for i := range millivolts {
		curve[i] = Breakpoint{Millivolts: millivolts[i], Percent: percents[i]}
	}
	if err := curve.Validate(); err != nil {
		return nil, err
	}
	return curve, nil
}
