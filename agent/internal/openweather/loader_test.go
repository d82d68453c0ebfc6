package openweather

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caiwatch/caiwatch/agent/internal/config"
)

const (
	oneCallBody = `{
  "lat": 36.1015, "lon": 129.3905,
  "timezone": "Asia/Seoul", "timezone_offset": 32400,
  "current": {"dt": 1767229200, "temp": 3.2, "feels_like": -1.0, "humidity": 45,
              "wind_speed": 5.1, "weather": [{"id": 800, "main": "Clear", "description": "맑음", "icon": "01d"}]},
  "hourly": [{"dt": 1767229200, "temp": 3.2, "pop": 0.1, "weather": []}]
}`
	historyBody = `{"coord":{"lon":129.3905,"lat":36.1015},"list":[
  {"dt":1767222000,"main":{"aqi":1},"components":{"co":200.3,"no":0,"no2":5.1,"o3":60,"so2":2.1,"pm2_5":8,"pm10":15,"nh3":0.4}},
  {"dt":1767225600,"main":{"aqi":2},"components":{"co":210.0,"no":0,"no2":5.5,"o3":58,"so2":2.3,"pm2_5":9,"pm10":17,"nh3":0.4}}
]}`
	forecastBody = `{"coord":{"lon":129.3905,"lat":36.1015},"list":[
  {"dt":1767229200,"main":{"aqi":2},"components":{"co":220.0,"no":0,"no2":6,"o3":55,"so2":2.4,"pm2_5":10,"pm10":19,"nh3":0.5}}
]}`
)

// fakeFetcher returns canned bodies and records history ranges.
type fakeFetcher struct {
	err        error
	calls      int
	start, end time.Time
}

func (f *fakeFetcher) OneCall(context.Context, float64, float64) ([]byte, error) {
	f.calls++
	return []byte(oneCallBody), nil
}

func (f *fakeFetcher) AirForecast(context.Context, float64, float64) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(forecastBody), nil
}

func (f *fakeFetcher) AirHistory(_ context.Context, _, _ float64, start, end time.Time) ([]byte, error) {
	f.start, f.end = start, end
	return []byte(historyBody), nil
}

var testNow = time.Date(2026, 1, 1, 1, 30, 0, 0, time.UTC)

func newTestLoader(t *testing.T, f fetcher, compress bool) *Loader {
	t.Helper()
	return &Loader{
		client:   f,
		cacheDir: t.TempDir(),
		compress: compress,
		now:      func() time.Time { return testNow },
	}
}

var home = config.Location{ID: "home", Lat: 36.1015, Lon: 129.3905}

func TestLoader_RefreshThenCached(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "zstd"}[compress], func(t *testing.T) {
			f := &fakeFetcher{}
			l := newTestLoader(t, f, compress)

			b, err := l.Load(context.Background(), home, true)
			require.NoError(t, err)
			assert.False(t, b.Cached)
			assert.Equal(t, 32400, b.OneCall.TimezoneOffset)
			assert.Equal(t, "맑음", b.OneCall.Current.Summary())
			require.Len(t, b.History.List, 2)
			require.Len(t, b.Forecast.List, 1)

			assert.Equal(t, testNow, f.end)
			assert.Equal(t, testNow.Add(-historyWindow), f.start)

			cached, err := l.Load(context.Background(), home, false)
			require.NoError(t, err)
			assert.True(t, cached.Cached)
			assert.Equal(t, b.Forecast, cached.Forecast)
			assert.Equal(t, 1, f.calls, "cached load must not fetch")

			name := fileAir
			if compress {
				name += zstdSuffix
			}
			_, err = os.Stat(filepath.Join(l.cacheDir, "home", name))
			assert.NoError(t, err)
		})
	}
}

func TestLoader_NoCache(t *testing.T) {
	l := newTestLoader(t, &fakeFetcher{}, false)
	_, err := l.Load(context.Background(), home, false)
	assert.ErrorIs(t, err, ErrNoCache)
}

func TestLoader_FailedRefreshKeepsPreviousCache(t *testing.T) {
	f := &fakeFetcher{}
	l := newTestLoader(t, f, false)
	_, err := l.Load(context.Background(), home, true)
	require.NoError(t, err)

	f.err = errors.New("boom")
	_, err = l.Load(context.Background(), home, true)
	require.Error(t, err)

	b, err := l.Load(context.Background(), home, false)
	require.NoError(t, err)
	assert.Len(t, b.Forecast.List, 1)
}

func TestLoader_MissingHistoryTolerated(t *testing.T) {
	l := newTestLoader(t, &fakeFetcher{}, false)
	c := l.cacheFor(home)
	require.NoError(t, c.writeAll([]file{
		{fileOneCall, []byte(oneCallBody)},
		{fileAir, []byte(forecastBody)},
	}))

	b, err := l.Load(context.Background(), home, false)
	require.NoError(t, err)
	assert.Nil(t, b.History)
	assert.Len(t, b.Samples(), 1)
}

func TestLoader_CorruptCache(t *testing.T) {
	l := newTestLoader(t, &fakeFetcher{}, false)
	c := l.cacheFor(home)
	require.NoError(t, c.writeAll([]file{
		{fileOneCall, []byte("{not json")},
		{fileAir, []byte(forecastBody)},
	}))

	_, err := l.Load(context.Background(), home, false)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCache)
}

func TestCache_WriteAllStagesBeforeReplacing(t *testing.T) {
	for _, compress := range []bool{false, true} {
		c := cache{dir: t.TempDir(), compress: compress}
		require.NoError(t, c.writeAll([]file{
			{fileOneCall, []byte("old onecall")},
			{fileAir, []byte("old air")},
		}))

		// The second name cannot be staged, so neither file may change.
		err := c.writeAll([]file{
			{fileOneCall, []byte("new onecall")},
			{"bad/" + fileAir, []byte("new air")},
		})
		require.Error(t, err)

		got, err := c.read(fileOneCall)
		require.NoError(t, err)
		assert.Equal(t, "old onecall", string(got))

		entries, err := os.ReadDir(c.dir)
		require.NoError(t, err)
		assert.Len(t, entries, 2, "temp files left behind")
	}
}

func TestBundle_Samples(t *testing.T) {
	l := newTestLoader(t, &fakeFetcher{}, false)
	b, err := l.Load(context.Background(), home, true)
	require.NoError(t, err)

	samples := b.Samples()
	require.Len(t, samples, 3)

	assert.False(t, samples[0].Forecast)
	assert.False(t, samples[1].Forecast)
	assert.True(t, samples[2].Forecast)

	assert.Equal(t, time.Unix(1767222000, 0).UTC(), samples[0].Time)
	assert.Equal(t, 15.0, samples[0].PM10)
	assert.Equal(t, 8.0, samples[0].PM25)
	assert.Equal(t, 2.1, samples[0].SO2)
	assert.Equal(t, 200.3, samples[0].CO)
	assert.Equal(t, 60.0, samples[0].O3)
	assert.Equal(t, 5.1, samples[0].NO2)
}

func TestOneCall_LocalTime(t *testing.T) {
	oc := &OneCall{Timezone: "Asia/Seoul", TimezoneOffset: 9 * 3600}
	got := oc.LocalTime(1767229200) // 2026-01-01T01:00Z
	assert.Equal(t, 10, got.Hour())
	_, offset := got.Zone()
	assert.Equal(t, 32400, offset)
}

func TestAQILabel(t *testing.T) {
	assert.Equal(t, "Good", AQILabel(1))
	assert.Equal(t, "Very Poor", AQILabel(5))
	assert.Equal(t, "Unknown", AQILabel(0))
}
