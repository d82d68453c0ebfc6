package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caiwatch/caiwatch/agent/internal/compute"
	"github.com/caiwatch/caiwatch/agent/internal/config"
)

// historyWindow is how far back measurements are requested: enough for the
// 12-hour particulate window ending at the current hour, with slack.
const historyWindow = 25 * time.Hour

// fetcher is the subset of Client used by Loader; tests substitute it.
type fetcher interface {
	OneCall(ctx context.Context, lat, lon float64) ([]byte, error)
	AirForecast(ctx context.Context, lat, lon float64) ([]byte, error)
	AirHistory(ctx context.Context, lat, lon float64, start, end time.Time) ([]byte, error)
}

// Bundle is everything known about one location after a load.
type Bundle struct {
	Location config.Location
	OneCall  *OneCall
	Forecast *AirPollution
	History  *AirPollution
	Cached   bool // loaded from disk rather than fetched
}

// Samples returns history entries as measurements followed by forecast
// entries, ready for compute.Engine.Observe.
func (b *Bundle) Samples() []compute.Sample {
	var out []compute.Sample
	if b.History != nil {
		for _, e := range b.History.List {
			out = append(out, e.Sample(false))
		}
	}
	if b.Forecast != nil {
		for _, e := range b.Forecast.List {
			out = append(out, e.Sample(true))
		}
	}
	return out
}

// Loader implements fetch-or-load for each configured location.
type Loader struct {
	client   fetcher
	cacheDir string
	compress bool
	now      func() time.Time // injectable for deterministic tests
}

// NewLoader returns a Loader that fetches with client and caches under
// cfg.CacheDir/<location id>.
func NewLoader(client *Client, cfg config.AgentConfig) *Loader {
	return &Loader{
		client:   client,
		cacheDir: cfg.CacheDir,
		compress: cfg.CompressCache,
		now:      time.Now,
	}
}

func (l *Loader) cacheFor(loc config.Location) cache {
	return cache{dir: filepath.Join(l.cacheDir, loc.ID), compress: l.compress}
}

// Load returns the bundle for loc. With refresh it fetches from the API and
// rewrites the cache; otherwise it reads the last cached responses.
func (l *Loader) Load(ctx context.Context, loc config.Location, refresh bool) (*Bundle, error) {
	if refresh {
		if err := l.refresh(ctx, loc); err != nil {
			return nil, err
		}
	}
	b, err := l.decode(loc)
	if err != nil {
		return nil, err
	}
	b.Cached = !refresh
	return b, nil
}

// refresh fetches all three endpoints concurrently and caches the bodies.
// Nothing is written unless every fetch succeeds, and the bodies are staged
// together before any cached file is replaced.
func (l *Loader) refresh(ctx context.Context, loc config.Location) error {
	end := l.now().UTC()
	start := end.Add(-historyWindow)

	var oneCall, forecast, history []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		oneCall, err = l.client.OneCall(gctx, loc.Lat, loc.Lon)
		return err
	})
	g.Go(func() (err error) {
		forecast, err = l.client.AirForecast(gctx, loc.Lat, loc.Lon)
		return err
	})
	g.Go(func() (err error) {
		history, err = l.client.AirHistory(gctx, loc.Lat, loc.Lon, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh %q: %w", loc.ID, err)
	}

	err := l.cacheFor(loc).writeAll([]file{
		{fileOneCall, oneCall},
		{fileAir, forecast},
		{fileAirHistory, history},
	})
	if err != nil {
		return fmt.Errorf("refresh %q: cache: %w", loc.ID, err)
	}

	slog.Debug("openweather: refreshed",
		"location", loc.ID,
		"onecall_bytes", len(oneCall),
		"forecast_bytes", len(forecast),
		"history_bytes", len(history),
	)
	return nil
}

// decode reads and parses the cached responses for loc. A missing history
// file is tolerated (older caches only had onecall.json and air.json).
func (l *Loader) decode(loc config.Location) (*Bundle, error) {
	c := l.cacheFor(loc)
	b := &Bundle{Location: loc, OneCall: &OneCall{}, Forecast: &AirPollution{}}

	if err := readJSON(c, fileOneCall, b.OneCall); err != nil {
		return nil, fmt.Errorf("load %q: %w", loc.ID, err)
	}
	if err := readJSON(c, fileAir, b.Forecast); err != nil {
		return nil, fmt.Errorf("load %q: %w", loc.ID, err)
	}

	history := &AirPollution{}
	switch err := readJSON(c, fileAirHistory, history); {
	case err == nil:
		b.History = history
	case isNoCache(err):
		slog.Debug("openweather: no cached history", "location", loc.ID)
	default:
		return nil, fmt.Errorf("load %q: %w", loc.ID, err)
	}
	return b, nil
}

func readJSON(c cache, name string, v any) error {
	data, err := c.read(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
