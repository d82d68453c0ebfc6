package compute

import "fmt"

// Multi-pollutant penalties added to the worst sub-index.
const (
	penaltyTwoBad   = 50.0
	penaltyThreeBad = 75.0
)

// Input holds one snapshot of raw readings, all in µg/m³.
type Input struct {
	// Instantaneous gas concentrations.
	SO2 float64
	CO  float64
	O3  float64
	NO2 float64

	// Hourly particulate readings, oldest first. At least 12 are required.
	PM10 []float64
	PM25 []float64
}

// Output is the result of the CAI calculation.
type Output struct {
	// CAI is the worst sub-index plus the multi-pollutant penalty.
	CAI float64

	// Level is the tier CAI falls into. Anything above 500 is Poor.
	Level Level

	// BadPollutants counts sub-indices at LevelNorm or worse.
	BadPollutants int

	// Worst is the pollutant with the highest sub-index (first seen on ties).
	Worst Pollutant

	// SubIndices holds all six scores in evaluation order.
	SubIndices []SubIndex
}

// Compute calculates the CAI from one snapshot of readings.
//
// Pollutants are evaluated in the fixed order so2, co, o3, no2, pm10, pm2.5.
// It fails only when a particulate series is shorter than 12 hours
// (ErrInsufficientData, wrapped with the pollutant name).
func Compute(in Input) (Output, error) {
	subs := make([]SubIndex, 0, len(Pollutants))
	for _, p := range Pollutants {
		c, err := concentrationOf(in, p)
		if err != nil {
			return Output{}, fmt.Errorf("compute %s: %w", p, err)
		}
		si, err := Interpolate(c, p)
		if err != nil {
			return Output{}, err
		}
		subs = append(subs, si)
	}
	return aggregate(subs), nil
}

// aggregate combines ordered sub-indices into the composite score.
func aggregate(subs []SubIndex) Output {
	var bad, worst int
	for i, si := range subs {
		if si.Level >= badLevel {
			bad++
		}
		if si.Score > subs[worst].Score {
			worst = i
		}
	}

	cai := subs[worst].Score
	switch {
	case bad >= 3:
		cai += penaltyThreeBad
	case bad == 2:
		cai += penaltyTwoBad
	}

	return Output{
		CAI:           cai,
		Level:         LevelFor(cai),
		BadPollutants: bad,
		Worst:         subs[worst].Pollutant,
		SubIndices:    subs,
	}
}

// concentrationOf returns the scoring concentration for p: ppm for gases,
// the 24-hour moving average for particulates.
func concentrationOf(in Input, p Pollutant) (float64, error) {
	switch p {
	case SO2:
		return ToPPM(in.SO2, p)
	case CO:
		return ToPPM(in.CO, p)
	case O3:
		return ToPPM(in.O3, p)
	case NO2:
		return ToPPM(in.NO2, p)
	case PM10:
		return MovingAverage24h(in.PM10, true)
	case PM25:
		return MovingAverage24h(in.PM25, false)
	default:
		return 0, ErrInvalidPollutant
	}
}
