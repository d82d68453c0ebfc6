package compute

import "errors"

// Pollutant identifies one of the six pollutants scored by the CAI.
type Pollutant string

const (
	SO2  Pollutant = "so2"
	CO   Pollutant = "co"
	O3   Pollutant = "o3"
	NO2  Pollutant = "no2"
	PM10 Pollutant = "pm10"
	PM25 Pollutant = "pm2_5"
)

// Pollutants is the evaluation order. Worst-pollutant tie-breaking depends on it.
var Pollutants = [...]Pollutant{SO2, CO, O3, NO2, PM10, PM25}

// IsGas reports whether p is scored in ppm (as opposed to µg/m³).
func (p Pollutant) IsGas() bool {
	switch p {
	case SO2, CO, O3, NO2:
		return true
	}
	return false
}

var (
	// ErrInvalidPollutant is returned when an operation is asked for a
	// pollutant kind it does not support.
	ErrInvalidPollutant = errors.New("compute: invalid pollutant")

	// ErrInsufficientData is returned when fewer than 12 hourly particulate
	// readings are available. It is never reported as a zero average.
	ErrInsufficientData = errors.New("compute: insufficient data")

	// ErrStaleData is returned when the newest sample is too old to describe
	// the evaluation hour.
	ErrStaleData = errors.New("compute: stale data")

	// ErrGap is returned when the readings behind the moving average are not
	// consecutive hours.
	ErrGap = errors.New("compute: gap in hourly readings")
)

// bracket is one inclusive (low, high) range of a breakpoint table.
type bracket struct {
	low, high float64
}

// scoreRanges is the index-score scale shared by every pollutant.
var scoreRanges = [4]bracket{{0, 50}, {51, 100}, {101, 250}, {251, 500}}

// breakpoints maps each pollutant to its concentration brackets.
// Gases are in ppm, particulates in µg/m³.
var breakpoints = map[Pollutant][4]bracket{
	SO2:  {{0, 0.02}, {0.021, 0.05}, {0.051, 0.15}, {0.151, 1}},
	CO:   {{0, 2}, {2.1, 9}, {9.1, 15}, {15.1, 50}},
	O3:   {{0, 0.03}, {0.031, 0.09}, {0.091, 0.15}, {0.151, 0.6}},
	NO2:  {{0, 0.03}, {0.031, 0.06}, {0.061, 0.2}, {0.201, 2}},
	PM10: {{0, 30}, {31, 80}, {81, 150}, {151, 600}},
	PM25: {{0, 15}, {16, 35}, {36, 75}, {76, 500}},
}

// bracketIndex returns the first bracket whose upper bound is >= v, or the
// last bracket when v exceeds every bound.
func bracketIndex(table [4]bracket, v float64) int {
	for i, b := range table {
		if v <= b.high {
			return i
		}
	}
	return len(table) - 1
}

// Level is the position of a score on the four-tier scale.
type Level int

const (
	LevelGood Level = iota
	LevelFair
	LevelNorm
	LevelPoor
)

// badLevel is the lowest level counted towards the multi-pollutant penalty.
const badLevel = LevelNorm

func (l Level) String() string {
	switch l {
	case LevelGood:
		return "good"
	case LevelFair:
		return "fair"
	case LevelNorm:
		return "norm"
	case LevelPoor:
		return "poor"
	default:
		return "unknown"
	}
}

// LevelFor maps a score onto the four-tier scale. Scores above 500 are Poor.
func LevelFor(score float64) Level {
	return Level(bracketIndex(scoreRanges, score))
}
