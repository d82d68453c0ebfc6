package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caiwatch/caiwatch/agent/internal/config"
	"github.com/caiwatch/caiwatch/agent/internal/openweather"
)

// testAt is the evaluation hour used across the command tests.
var testAt = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// entry builds an air pollution entry with fair-level particulates:
// pm10 40 scores 60 and pm2.5 20 scores about 61, gases are clean.
func entry(t time.Time) openweather.AirEntry {
	e := openweather.AirEntry{Dt: t.Unix()}
	e.Main.AQI = 2
	e.Components = openweather.Components{
		CO:   200,
		NO2:  10,
		O3:   40,
		SO2:  2,
		PM10: 40,
		PM25: 20,
	}
	return e
}

// testBundle returns 24 hours of history ending at testAt and three forecast
// hours after it.
func testBundle(loc config.Location) *openweather.Bundle {
	history := &openweather.AirPollution{}
	for i := 23; i >= 0; i-- {
		history.List = append(history.List, entry(testAt.Add(-time.Duration(i)*time.Hour)))
	}
	forecast := &openweather.AirPollution{}
	for i := 1; i <= 3; i++ {
		forecast.List = append(forecast.List, entry(testAt.Add(time.Duration(i)*time.Hour)))
	}
	oc := &openweather.OneCall{
		Lat: loc.Lat, Lon: loc.Lon,
		Timezone: "Asia/Seoul", TimezoneOffset: 9 * 3600,
		Current: openweather.Current{
			Dt: testAt.Unix(), Temp: 14.5, FeelsLike: 13.2, Humidity: 40, WindSpeed: 3.1,
			Weather: []openweather.Condition{{ID: 800, Main: "Clear", Description: "clear sky"}},
		},
	}
	return &openweather.Bundle{Location: loc, OneCall: oc, Forecast: forecast, History: history}
}

// writeCache stores b's responses the way a refresh would.
func writeCache(t *testing.T, dir string, b *openweather.Bundle) {
	t.Helper()
	locDir := filepath.Join(dir, b.Location.ID)
	if err := os.MkdirAll(locDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, v := range map[string]any{
		"onecall.json":     b.OneCall,
		"air.json":         b.Forecast,
		"air_history.json": b.History,
	} {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(locDir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}
