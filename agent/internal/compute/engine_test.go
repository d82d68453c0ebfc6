package compute

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// baseTime is a fixed reference point so all test timings are deterministic.
var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// hour returns baseTime advanced by n hours.
func hour(n int) time.Time {
	return baseTime.Add(time.Duration(n) * time.Hour)
}

// hourly builds n consecutive samples starting at hour(start).
func hourly(start, n int, pm10, pm25 float64) []Sample {
	out := make([]Sample, n)
	for i := range out {
		out[i] = Sample{Time: hour(start + i), PM10: pm10, PM25: pm25}
	}
	return out
}

// --- Insufficient history ---

func TestEngine_TooFewSamples_ReturnsUnknown(t *testing.T) {
	e := NewEngine()
	e.Observe("home", hourly(0, 11, 20, 10))

	out := e.Evaluate("home", hour(10))
	if out.State != StateUnknown {
		t.Errorf("State = %q, want %q", out.State, StateUnknown)
	}
	if !strings.Contains(out.ErrorMessage, "insufficient data") {
		t.Errorf("ErrorMessage = %q, want it to mention insufficient data", out.ErrorMessage)
	}
	if out.Samples != 11 {
		t.Errorf("Samples = %d, want 11", out.Samples)
	}
}

func TestEngine_UnknownLocation(t *testing.T) {
	e := NewEngine()
	out := e.Evaluate("nowhere", hour(0))
	if out.State != StateUnknown || out.ErrorMessage == "" {
		t.Errorf("got State=%q ErrorMessage=%q, want unknown with a message", out.State, out.ErrorMessage)
	}
	if got := e.Timeline("nowhere", hour(0), hour(24)); len(got) != 0 {
		t.Errorf("Timeline len = %d, want 0", len(got))
	}
	if len(e.states) != 0 {
		t.Errorf("states len = %d after reads, want 0", len(e.states))
	}
}

// --- Stale and gapped windows ---

func TestEngine_StaleWindow_ReturnsUnknown(t *testing.T) {
	e := NewEngine()
	e.Observe("home", hourly(0, 12, 200, 10))

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"a week later", hour(24 * 7), "no samples"},
		{"three hours later", hour(14), "stale data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Evaluate("home", tt.at)
			if out.State != StateUnknown {
				t.Errorf("State = %q CAI = %.2f, want unknown", out.State, out.CAI)
			}
			if !strings.Contains(out.ErrorMessage, tt.want) {
				t.Errorf("ErrorMessage = %q, want it to mention %q", out.ErrorMessage, tt.want)
			}
		})
	}
}

func TestEngine_LatestHourMayLag(t *testing.T) {
	e := NewEngine()
	e.Observe("home", hourly(0, 12, 200, 10))

	// The current hour is often not published yet.
	for _, at := range []time.Time{hour(12), hour(12).Add(40 * time.Minute)} {
		if out := e.Evaluate("home", at); out.State != "poor" {
			t.Errorf("Evaluate(%s) State = %q (%s), want poor", at.Format(time.RFC3339), out.State, out.ErrorMessage)
		}
	}
}

func TestEngine_GapInHours_ReturnsUnknown(t *testing.T) {
	e := NewEngine()
	e.Observe("home", hourly(0, 6, 200, 10))
	e.Observe("home", hourly(10, 6, 200, 10))

	out := e.Evaluate("home", hour(15))
	if out.State != StateUnknown {
		t.Fatalf("State = %q CAI = %.2f, want unknown", out.State, out.CAI)
	}
	if !strings.Contains(out.ErrorMessage, "gap") {
		t.Errorf("ErrorMessage = %q, want it to mention the gap", out.ErrorMessage)
	}
}

func TestEngine_OnlyLastDayFeedsAverage(t *testing.T) {
	e := NewEngine()
	e.Observe("home", hourly(0, 12, 400, 300))
	e.Observe("home", hourly(30, 12, 20, 9))

	out := e.Evaluate("home", hour(41))
	if out.State != "good" {
		t.Errorf("State = %q (%s), want good", out.State, out.ErrorMessage)
	}
	if out.Samples != 12 {
		t.Errorf("Samples = %d, want 12 (older than 24h excluded)", out.Samples)
	}
}

func TestCheckWindow(t *testing.T) {
	err := checkWindow(hourly(0, 12, 20, 9), hour(20))
	if !errors.Is(err, ErrStaleData) {
		t.Errorf("stale: err = %v, want ErrStaleData", err)
	}

	gapped := append(hourly(0, 6, 20, 9), hourly(7, 6, 20, 9)...)
	if err := checkWindow(gapped, hour(12)); !errors.Is(err, ErrGap) {
		t.Errorf("gapped: err = %v, want ErrGap", err)
	}

	// Gaps before the last 12 readings do not matter.
	early := append(hourly(0, 2, 20, 9), hourly(5, 12, 20, 9)...)
	if err := checkWindow(early, hour(16)); err != nil {
		t.Errorf("early gap: err = %v, want nil", err)
	}
}

// --- Evaluation ---

func TestEngine_Evaluate_UsesLatestGasesAndWholeSeries(t *testing.T) {
	e := NewEngine()
	samples := hourly(0, 12, 20, 9)
	samples[0].SO2 = ppmToUgm3(0.5, SO2) // old spike, must be ignored
	samples[11].SO2 = ppmToUgm3(0.01, SO2)
	e.Observe("home", samples)

	out := e.Evaluate("home", hour(11))
	if out.State != "good" {
		t.Fatalf("State = %q (%s), want good", out.State, out.ErrorMessage)
	}
	if !almostEqual(out.SubIndices[0].Score, 25, 1e-6) {
		t.Errorf("so2 score = %.4f, want 25 (latest sample only)", out.SubIndices[0].Score)
	}
	if out.Worst != PM10 {
		t.Errorf("Worst = %s, want pm10", out.Worst)
	}
}

func TestEngine_Evaluate_IgnoresFutureSamples(t *testing.T) {
	e := NewEngine()
	e.Observe("home", hourly(0, 12, 20, 9))
	e.Observe("home", hourly(12, 12, 400, 300)) // later hours

	out := e.Evaluate("home", hour(11))
	if out.State != "good" {
		t.Errorf("State = %q, want good; samples after the evaluation time leaked in", out.State)
	}
	if out.Samples != 12 {
		t.Errorf("Samples = %d, want 12", out.Samples)
	}
}

func TestEngine_MeasurementReplacesForecast(t *testing.T) {
	e := NewEngine()

	forecast := hourly(0, 12, 500, 400)
	for i := range forecast {
		forecast[i].Forecast = true
	}
	e.Observe("home", forecast)
	e.Observe("home", hourly(0, 12, 20, 9))

	out := e.Evaluate("home", hour(11))
	if out.State != "good" || out.Forecast {
		t.Errorf("State = %q Forecast = %v, want good measurement", out.State, out.Forecast)
	}

	// A later forecast for the same hours must not overwrite measurements.
	e.Observe("home", forecast)
	out = e.Evaluate("home", hour(11))
	if out.State != "good" {
		t.Errorf("State after re-forecast = %q, want good", out.State)
	}
	if e.Len("home") != 12 {
		t.Errorf("Len = %d, want 12 (duplicates merged)", e.Len("home"))
	}
}

func TestEngine_TruncatesToHour(t *testing.T) {
	e := NewEngine()
	samples := hourly(0, 12, 20, 9)
	samples[5].Time = samples[5].Time.Add(17 * time.Minute)
	e.Observe("home", samples)
	e.Observe("home", []Sample{{Time: hour(5).Add(42 * time.Minute), PM10: 20, PM25: 9}})

	if e.Len("home") != 12 {
		t.Errorf("Len = %d, want 12", e.Len("home"))
	}
}

func TestEngine_WindowIsBounded(t *testing.T) {
	e := NewEngine()
	e.Observe("home", hourly(0, sampleWindow+40, 20, 9))
	if got := e.Len("home"); got != sampleWindow {
		t.Errorf("Len = %d, want %d", got, sampleWindow)
	}
}

func TestEngine_Timeline(t *testing.T) {
	e := NewEngine()
	e.Observe("home", hourly(0, 24, 20, 9))

	results := e.Timeline("home", hour(6), hour(15))
	if len(results) != 10 {
		t.Fatalf("Timeline len = %d, want 10", len(results))
	}
	// Hours 6..10 have fewer than 12 samples behind them.
	for i, r := range results {
		wantUnknown := i < 5
		if (r.State == StateUnknown) != wantUnknown {
			t.Errorf("results[%d] at %s: State = %q", i, r.Timestamp.Format(time.RFC3339), r.State)
		}
	}
	if !results[0].Timestamp.Equal(hour(6)) {
		t.Errorf("first Timestamp = %v, want %v", results[0].Timestamp, hour(6))
	}
}

func TestEngine_ConcurrentUse(t *testing.T) {
	e := NewEngine()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.Observe("home", hourly(i*3, 12, 20, 9))
			_ = e.Evaluate("home", hour(30))
		}(i)
	}
	wg.Wait()
	if e.Len("home") != 33 {
		t.Errorf("Len = %d, want 33", e.Len("home"))
	}
}

// --- Conversion ---

func TestResult_Snapshot(t *testing.T) {
	e := NewEngine()
	e.Observe("home", hourly(0, 12, 200, 10))

	snap := e.Evaluate("home", hour(11)).Snapshot()
	if snap.LocationID != "home" {
		t.Errorf("LocationID = %q", snap.LocationID)
	}
	if len(snap.SubIndices) != 6 {
		t.Fatalf("SubIndices len = %d, want 6", len(snap.SubIndices))
	}
	if snap.Worst != "pm10" || snap.State != "poor" || snap.Level != int(LevelPoor) {
		t.Errorf("Worst=%q State=%q Level=%d, want pm10/poor/3", snap.Worst, snap.State, snap.Level)
	}
	if si, ok := snap.SubIndexFor("pm10"); !ok || si.Concentration != 175 {
		t.Errorf("pm10 sub-index = %+v, %v; want concentration 175", si, ok)
	}

	unknown := e.Evaluate("home", hour(3)).Snapshot()
	if unknown.Level != -1 || unknown.ErrorMessage == "" {
		t.Errorf("unknown snapshot Level=%d ErrorMessage=%q, want -1 with message", unknown.Level, unknown.ErrorMessage)
	}
}
