package compute

import "fmt"

// ppbDivisor converts µg/m³ to ppb for each gas at standard conditions.
var ppbDivisor = map[Pollutant]float64{
	SO2: 2.62,
	CO:  1.15,
	O3:  1.96,
	NO2: 1.88,
}

// ToPPM converts a gas concentration from µg/m³ to ppm.
// Particulates and unknown kinds fail with ErrInvalidPollutant.
func ToPPM(ugm3 float64, p Pollutant) (float64, error) {
	div, ok := ppbDivisor[p]
	if !ok {
		return 0, fmt.Errorf("to ppm %q: %w", p, ErrInvalidPollutant)
	}
	return ugm3 / div / 1000, nil
}
