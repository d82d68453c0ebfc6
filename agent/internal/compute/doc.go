// Package compute derives the Composite Air-quality Index (CAI) from raw
// pollutant readings.
//
// convert.go, average.go and interpolate.go hold the three pure building
// blocks: µg/m³ to ppm conversion for gases, the blended 24-hour moving
// average for particulates, and breakpoint interpolation of a sub-index.
//
// cai.go provides the pure Compute(Input) function that scores the six
// pollutants in the fixed order so2, co, o3, no2, pm10, pm2.5, picks the worst
// sub-index and adds the multi-pollutant penalty (+75 for three or more "bad"
// pollutants, +50 for exactly two).
//
// engine.go provides the stateful Engine that keeps a rolling window of hourly
// samples per location and evaluates the CAI at any hour inside it.
// Engine.Evaluate accepts an explicit time.Time so tests are deterministic.
//
// Levels: Good 0–50, Fair 51–100, Norm 101–250, Poor 251–500.
package compute
