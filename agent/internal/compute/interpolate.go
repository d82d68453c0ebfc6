package compute

import "fmt"

// SubIndex is the interpolated score of a single pollutant.
type SubIndex struct {
	Pollutant Pollutant

	// Concentration is the value that was scored: ppm for gases, the 24-hour
	// moving average in µg/m³ for particulates.
	Concentration float64

	// Bracket is the breakpoint bracket (0..3) used for interpolation.
	Bracket int

	Score float64
	Level Level
}

// Interpolate scores concentration c (already in the pollutant's unit) by
// linear interpolation inside its breakpoint bracket:
//
//	Ip = (Ihigh-Ilow)/(BPhigh-BPlow) * (C-BPlow) + Ilow
//
// Concentrations above the top bracket are extrapolated along bracket 3.
// Negative concentrations score as zero.
func Interpolate(c float64, p Pollutant) (SubIndex, error) {
	table, ok := breakpoints[p]
	if !ok {
		return SubIndex{}, fmt.Errorf("interpolate %q: %w", p, ErrInvalidPollutant)
	}
	if c < 0 {
		c = 0
	}

	x := bracketIndex(table, c)
	bp, ir := table[x], scoreRanges[x]
	score := (ir.high-ir.low)/(bp.high-bp.low)*(c-bp.low) + ir.low

	return SubIndex{
		Pollutant:     p,
		Concentration: c,
		Bracket:       x,
		Score:         score,
		Level:         LevelFor(score),
	}, nil
}
