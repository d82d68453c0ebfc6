package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caiwatch/caiwatch/agent/internal/alerts"
	"github.com/caiwatch/caiwatch/agent/internal/compute"
	"github.com/caiwatch/caiwatch/agent/internal/config"
	"github.com/caiwatch/caiwatch/agent/internal/openweather"
)

// fakeLoader serves testBundle, optionally failing refreshes.
type fakeLoader struct {
	mu          sync.Mutex
	failRefresh bool
	calls       []bool // refresh flag per call
}

func (f *fakeLoader) Load(_ context.Context, loc config.Location, refresh bool) (*openweather.Bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, refresh)
	if refresh && f.failRefresh {
		return nil, errors.New("upstream down")
	}
	b := testBundle(loc)
	b.Cached = !refresh
	return b, nil
}

func watchConfig(t *testing.T, locs ...config.Location) *config.Config {
	return &config.Config{
		Agent: config.AgentConfig{
			RefreshInterval: 10 * time.Minute,
			CacheDir:        t.TempDir(),
			SnapshotTTL:     30 * time.Minute,
			TextfilePath:    filepath.Join(t.TempDir(), "caiwatch.prom"),
		},
		OpenWeather: config.OpenWeatherConfig{BaseURL: "https://api.openweathermap.org", Units: "metric"},
		Locations:   locs,
		Alerts: config.AlertsConfig{Rules: []config.AlertRule{
			{Name: "fair-or-worse", Condition: "level >= 1"},
		}},
	}
}

func newTestRunner(t *testing.T, cfg *config.Config, l loader) *runner {
	t.Helper()
	r, err := newRunner(cfg, l, compute.NewEngine(), false)
	require.NoError(t, err)
	r.now = func() time.Time { return testAt.Add(5 * time.Minute) }
	return r
}

var (
	home = config.Location{ID: "home", Lat: 36.1, Lon: 129.4}
	away = config.Location{ID: "away", Lat: 37.5, Lon: 127.0}
)

func TestRunner_Cycle(t *testing.T) {
	cfg := watchConfig(t, home, away)
	fl := &fakeLoader{}
	r := newTestRunner(t, cfg, fl)

	r.cycle(context.Background())

	snaps := r.store.Snapshots()
	require.Len(t, snaps, 2)
	for _, s := range snaps {
		assert.Equal(t, "fair", s.State)
		assert.Equal(t, "pm2_5", s.Worst)
		assert.Equal(t, testAt, s.Timestamp)
		assert.False(t, s.Forecast)
	}

	active := r.alerts.Active()
	require.Len(t, active, 2)
	assert.Equal(t, alerts.StateFiring, active[0].State)

	_, err := os.Stat(cfg.Agent.TextfilePath)
	assert.NoError(t, err)
	assert.Equal(t, []bool{true, true}, fl.calls)
}

func TestRunner_CycleFallsBackToCache(t *testing.T) {
	fl := &fakeLoader{failRefresh: true}
	r := newTestRunner(t, watchConfig(t, home), fl)

	r.cycle(context.Background())

	assert.Equal(t, []bool{true, false}, fl.calls)
	e, ok := r.store.Get("home")
	require.True(t, ok)
	assert.Equal(t, "fair", e.Snapshot.State)
}

func TestRunner_CycleStopsOnCancel(t *testing.T) {
	fl := &fakeLoader{}
	r := newTestRunner(t, watchConfig(t, home, away), fl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.cycle(ctx)
	assert.Empty(t, fl.calls)
}

func TestRunner_Reload(t *testing.T) {
	cfg := watchConfig(t, home, away)
	r := newTestRunner(t, cfg, &fakeLoader{})
	r.cycle(context.Background())
	require.Equal(t, 2, r.store.Count())

	updated := watchConfig(t, home)
	updated.Agent.RefreshInterval = time.Minute
	r.reload(updated)

	assert.Equal(t, 1, r.store.Count(), "removed location dropped from store")
	select {
	case d := <-r.reset:
		assert.Equal(t, time.Minute, d)
	default:
		t.Fatal("interval change not signalled")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Same(t, updated, r.cfg)
	_, isOpenWeather := r.loader.(*openweather.Loader)
	assert.True(t, isOpenWeather, "reload rebuilds the loader from config")
}

func TestRunner_ReloadRejectsBadRules(t *testing.T) {
	cfg := watchConfig(t, home)
	fl := &fakeLoader{}
	r := newTestRunner(t, cfg, fl)

	bad := watchConfig(t, home)
	bad.Alerts.Rules = []config.AlertRule{{Name: "broken", Condition: "humidity > 80"}}
	r.reload(bad)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Same(t, cfg, r.cfg)
	assert.Same(t, fl, r.loader)
}
