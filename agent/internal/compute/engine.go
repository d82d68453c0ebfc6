package compute

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/caiwatch/caiwatch/pkg/types"
)

// sampleWindow is the maximum number of hourly samples kept per location:
// one day of history plus the four-day forecast horizon, with headroom.
const sampleWindow = 24 * 6

// averageSpan bounds how far back samples may feed an evaluation.
const averageSpan = 24 * time.Hour

// maxSampleAge is how far the newest sample may trail the evaluation hour.
const maxSampleAge = time.Hour

// StateUnknown marks a Result for which no CAI could be computed.
const StateUnknown = "unknown"

// Sample is one hourly set of readings for a location, all in µg/m³.
type Sample struct {
	Time     time.Time
	SO2      float64
	CO       float64
	O3       float64
	NO2      float64
	PM10     float64
	PM25     float64
	Forecast bool // true when the sample comes from a forecast, not a measurement
}

// Result is the CAI evaluation for one location at one hour.
type Result struct {
	LocationID    string
	Timestamp     time.Time
	State         string // Level.String() or StateUnknown
	CAI           float64
	Level         Level
	BadPollutants int
	Worst         Pollutant
	SubIndices    []SubIndex
	Samples       int  // samples at or before Timestamp that fed the calculation
	Forecast      bool // the latest sample used was a forecast
	ErrorMessage  string
}

// Engine keeps a rolling window of hourly samples per location and evaluates
// the CAI at any hour inside it.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	states map[string]*locationState
}

// NewEngine returns a ready-to-use Engine.
func NewEngine() *Engine {
	return &Engine{states: make(map[string]*locationState)}
}

// Observe merges samples into the location's window. A sample for an hour
// already present replaces it, so measurements overwrite earlier forecasts.
func (e *Engine) Observe(locationID string, samples []Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateFor(locationID)
	for _, s := range samples {
		st.merge(s)
	}
	st.sortAndTrim()
}

// Evaluate computes the CAI at `at` from the samples in (at-24h, at]. Gases use
// the latest such sample; particulates use the series, whose last 12 readings
// must be consecutive hours. The newest sample may trail the hour of `at` by
// at most one hour.
//
// Evaluate always returns a Result. When the CAI cannot be computed, State is
// "unknown" and ErrorMessage says why.
func (e *Engine) Evaluate(locationID string, at time.Time) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(locationID, at)
}

// Timeline evaluates every sampled hour in [from, to], oldest first.
func (e *Engine) Timeline(locationID string, from, to time.Time) []*Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[locationID]
	if !ok {
		return nil
	}
	var out []*Result
	for _, s := range st.samples {
		if s.Time.Before(from) || s.Time.After(to) {
			continue
		}
		out = append(out, e.evaluateLocked(locationID, s.Time))
	}
	return out
}

// Len returns the number of samples held for locationID.
func (e *Engine) Len(locationID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[locationID]; ok {
		return len(st.samples)
	}
	return 0
}

func (e *Engine) evaluateLocked(locationID string, at time.Time) *Result {
	out := &Result{
		LocationID: locationID,
		Timestamp:  at,
		State:      StateUnknown,
	}

	var window []Sample
	if st, ok := e.states[locationID]; ok {
		window = st.between(at.Add(-averageSpan), at)
	}
	out.Samples = len(window)
	if len(window) == 0 {
		out.ErrorMessage = fmt.Sprintf("no samples in the 24h before %s", at.UTC().Format(time.RFC3339))
		return out
	}

	latest := window[len(window)-1]
	out.Forecast = latest.Forecast
	if err := checkWindow(window, at); err != nil {
		slog.Debug("compute: cannot evaluate, marking unknown",
			"location", locationID, "at", at, "samples", len(window), "err", err)
		out.ErrorMessage = err.Error()
		return out
	}

	in := Input{
		SO2:  latest.SO2,
		CO:   latest.CO,
		O3:   latest.O3,
		NO2:  latest.NO2,
		PM10: make([]float64, 0, len(window)),
		PM25: make([]float64, 0, len(window)),
	}
	for _, s := range window {
		in.PM10 = append(in.PM10, s.PM10)
		in.PM25 = append(in.PM25, s.PM25)
	}

	res, err := Compute(in)
	if err != nil {
		slog.Debug("compute: cannot evaluate, marking unknown",
			"location", locationID, "at", at, "samples", len(window), "err", err)
		out.ErrorMessage = err.Error()
		return out
	}

	out.State = res.Level.String()
	out.CAI = res.CAI
	out.Level = res.Level
	out.BadPollutants = res.BadPollutants
	out.Worst = res.Worst
	out.SubIndices = res.SubIndices
	return out
}

// Snapshot converts r to its shared JSON representation.
func (r *Result) Snapshot() *types.Snapshot {
	snap := &types.Snapshot{
		LocationID:    r.LocationID,
		Timestamp:     r.Timestamp,
		State:         r.State,
		CAI:           r.CAI,
		Level:         int(r.Level),
		BadPollutants: r.BadPollutants,
		Worst:         string(r.Worst),
		Forecast:      r.Forecast,
		ErrorMessage:  r.ErrorMessage,
		SubIndices:    make([]types.SubIndex, 0, len(r.SubIndices)),
	}
	if r.State == StateUnknown {
		snap.Level = -1
	}
	for _, si := range r.SubIndices {
		snap.SubIndices = append(snap.SubIndices, types.SubIndex{
			Pollutant:     string(si.Pollutant),
			Concentration: si.Concentration,
			Score:         si.Score,
			Level:         int(si.Level),
		})
	}
	return snap
}

// locationState holds the sorted sample window for one location.
type locationState struct {
	samples []Sample // sorted by Time, oldest first
}

func (e *Engine) stateFor(id string) *locationState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &locationState{}
	e.states[id] = st
	return st
}

func (st *locationState) merge(s Sample) {
	s.Time = s.Time.UTC().Truncate(time.Hour)
	for i := range st.samples {
		if st.samples[i].Time.Equal(s.Time) {
			// A forecast never replaces a measurement for the same hour.
			if s.Forecast && !st.samples[i].Forecast {
				return
			}
			st.samples[i] = s
			return
		}
	}
	st.samples = append(st.samples, s)
}

func (st *locationState) sortAndTrim() {
	sort.Slice(st.samples, func(i, j int) bool {
		return st.samples[i].Time.Before(st.samples[j].Time)
	})
	if len(st.samples) > sampleWindow {
		st.samples = st.samples[len(st.samples)-sampleWindow:]
	}
}

// between returns the samples in (from, to].
func (st *locationState) between(from, to time.Time) []Sample {
	lo := sort.Search(len(st.samples), func(i int) bool {
		return st.samples[i].Time.After(from)
	})
	hi := sort.Search(len(st.samples), func(i int) bool {
		return st.samples[i].Time.After(to)
	})
	if lo > hi {
		return nil
	}
	return st.samples[lo:hi]
}

// checkWindow rejects a window whose newest sample is stale relative to at,
// or whose last MinHourlyReadings samples skip an hour. A short window is left
// for Compute to reject.
func checkWindow(window []Sample, at time.Time) error {
	latest := window[len(window)-1].Time
	if age := at.UTC().Truncate(time.Hour).Sub(latest); age > maxSampleAge {
		return fmt.Errorf("%w: newest sample %s is %s before %s", ErrStaleData,
			latest.Format(time.RFC3339), age, at.UTC().Format(time.RFC3339))
	}
	if len(window) < MinHourlyReadings {
		return nil
	}
	tail := window[len(window)-MinHourlyReadings:]
	for i := 1; i < len(tail); i++ {
		if step := tail[i].Time.Sub(tail[i-1].Time); step != time.Hour {
			return fmt.Errorf("%w: %s between %s and %s", ErrGap, step,
				tail[i-1].Time.Format(time.RFC3339), tail[i].Time.Format(time.RFC3339))
		}
	}
	return nil
}
