package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caiwatch/caiwatch/agent/internal/alerts"
	"github.com/caiwatch/caiwatch/agent/internal/api"
	"github.com/caiwatch/caiwatch/agent/internal/compute"
	"github.com/caiwatch/caiwatch/agent/internal/config"
	"github.com/caiwatch/caiwatch/agent/internal/exporter"
	"github.com/caiwatch/caiwatch/agent/internal/logging"
	"github.com/caiwatch/caiwatch/agent/internal/openweather"
	"github.com/caiwatch/caiwatch/agent/internal/store"
	"github.com/caiwatch/caiwatch/agent/internal/ws"
)

const (
	shutdownTimeout = 5 * time.Second

	// streamInterval re-sends the snapshot to stream clients between cycles.
	streamInterval = time.Minute
)

// loader is the part of openweather.Loader the runner needs.
type loader interface {
	Load(ctx context.Context, loc config.Location, refresh bool) (*openweather.Bundle, error)
}

// runner drives the watch-mode refresh cycle. cfg and loader are swapped on
// config reload.
type runner struct {
	mu      sync.Mutex
	cfg     *config.Config
	loader  loader
	verbose bool

	engine *compute.Engine
	store  *store.Store
	alerts *alerts.Engine
	hub    *ws.Hub // nil when the HTTP server is disabled
	now    func() time.Time
	reset  chan time.Duration // new refresh interval after a reload
}

func newRunner(cfg *config.Config, l loader, engine *compute.Engine, verbose bool) (*runner, error) {
	al, err := alerts.New(cfg.Alerts)
	if err != nil {
		return nil, err
	}
	return &runner{
		cfg:     cfg,
		loader:  l,
		verbose: verbose,
		engine:  engine,
		store:   store.New(cfg.Agent.SnapshotTTL),
		alerts:  al,
		now:     time.Now,
		reset:   make(chan time.Duration, 1),
	}, nil
}

// runWatch runs the refresh loop, the store eviction loop and the config
// watcher until ctx is cancelled. When agent.http_port is set it also serves
// the status API and the snapshot stream at /ws/stream.
func runWatch(ctx context.Context, configPath string, cfg *config.Config, l *openweather.Loader, engine *compute.Engine, verbose bool) error {
	r, err := newRunner(cfg, l, engine, verbose)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.store.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := config.Watch(gctx, configPath, r.reload); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
		return nil
	})
	if port := cfg.Agent.HTTPPort; port > 0 {
		r.hub = ws.New(r.store, streamInterval)
		mux := http.NewServeMux()
		mux.Handle("/ws/stream", r.hub)
		mux.Handle("/", api.New(r.store, r.alerts))

		g.Go(func() error {
			r.hub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return serve(gctx, fmt.Sprintf(":%d", port), mux)
		})
	}
	g.Go(func() error {
		r.loop(gctx, cfg.Agent.RefreshInterval)
		return nil
	})

	err = g.Wait()
	r.alerts.Wait()
	return err
}

// loop runs a cycle immediately and then every interval.
func (r *runner) loop(ctx context.Context, interval time.Duration) {
	r.cycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-r.reset:
			ticker.Reset(d)
			slog.Info("refresh interval changed", "interval", d)
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

// cycle refreshes and evaluates every location once. A failed refresh falls
// back to the cached responses so the window keeps its history.
func (r *runner) cycle(ctx context.Context) {
	r.mu.Lock()
	cfg, l := r.cfg, r.loader
	r.mu.Unlock()

	at := r.now().UTC().Truncate(time.Hour)
	for _, loc := range cfg.Locations {
		if ctx.Err() != nil {
			return
		}
		b, err := l.Load(ctx, loc, true)
		if err != nil {
			slog.Warn("refresh failed, using cache", "location", loc.ID, "err", err)
			if b, err = l.Load(ctx, loc, false); err != nil {
				slog.Error("no data for location", "location", loc.ID, "err", err)
				continue
			}
		}
		if r.verbose {
			dumpBundle(os.Stderr, b)
		}

		r.engine.Observe(loc.ID, b.Samples())
		snap := r.engine.Evaluate(loc.ID, at).Snapshot()
		r.store.Put(snap)
		r.alerts.Evaluate(snap)

		slog.Info("location evaluated",
			"location", loc.ID,
			"state", snap.State,
			"cai", snap.CAI,
			"worst", snap.Worst,
			"bad_pollutants", snap.BadPollutants,
			"cached", b.Cached,
		)
	}

	if path := cfg.Agent.TextfilePath; path != "" {
		if err := exporter.WriteTextfile(path, r.store.Snapshots()); err != nil {
			slog.Error("textfile export failed", "path", path, "err", err)
		}
	}
	if r.hub != nil {
		r.hub.Broadcast()
	}
}

// reload applies a new config. The HTTP port is fixed at startup.
func (r *runner) reload(cfg *config.Config) {
	if err := r.alerts.Update(cfg.Alerts); err != nil {
		slog.Error("reload: alert rules rejected, keeping previous config", "err", err)
		return
	}
	client, err := openweather.New(cfg.OpenWeather)
	if err != nil {
		slog.Error("reload: openweather client rejected, keeping previous config", "err", err)
		return
	}

	r.mu.Lock()
	prev := r.cfg
	r.cfg = cfg
	r.loader = openweather.NewLoader(client, cfg.Agent)
	r.mu.Unlock()

	slog.SetDefault(logging.New(os.Stderr, cfg.Agent, r.verbose))

	ids := make([]string, len(cfg.Locations))
	for i, loc := range cfg.Locations {
		ids[i] = loc.ID
	}
	if n := r.store.Retain(ids); n > 0 {
		slog.Info("reload: dropped removed locations", "count", n)
	}
	if cfg.Agent.HTTPPort != prev.Agent.HTTPPort {
		slog.Warn("reload: http_port change takes effect after restart",
			"current", prev.Agent.HTTPPort, "configured", cfg.Agent.HTTPPort)
	}
	if cfg.Agent.RefreshInterval != prev.Agent.RefreshInterval {
		select {
		case r.reset <- cfg.Agent.RefreshInterval:
		default:
		}
	}
}

// serve runs the status API until ctx is cancelled.
func serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown", "err", err)
		}
	}()

	slog.Info("status api listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
