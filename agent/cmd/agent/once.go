package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/caiwatch/caiwatch/agent/internal/compute"
	"github.com/caiwatch/caiwatch/agent/internal/config"
	"github.com/caiwatch/caiwatch/agent/internal/exporter"
	"github.com/caiwatch/caiwatch/agent/internal/openweather"
	"github.com/caiwatch/caiwatch/pkg/types"
)

// forecastHours is how far ahead the one-shot report tabulates.
const forecastHours = 24

type options struct {
	refresh bool
	verbose bool
	now     time.Time
}

// runOnce loads every location, prints its report to w, and writes the
// textfile when configured. A failing location does not stop the others;
// all failures are returned joined.
func runOnce(ctx context.Context, w io.Writer, cfg *config.Config, loader *openweather.Loader, engine *compute.Engine, opts options) error {
	at := opts.now.UTC().Truncate(time.Hour)

	var (
		errs  []error
		snaps []*types.Snapshot
	)
	for _, loc := range cfg.Locations {
		b, err := loader.Load(ctx, loc, opts.refresh)
		if err != nil {
			if errors.Is(err, openweather.ErrNoCache) {
				err = fmt.Errorf("%w (run with -r to fetch)", err)
			}
			slog.Error("location failed", "location", loc.ID, "err", err)
			errs = append(errs, err)
			continue
		}
		if opts.verbose {
			dumpBundle(os.Stderr, b)
		}

		engine.Observe(loc.ID, b.Samples())
		cur := engine.Evaluate(loc.ID, at)
		timeline := engine.Timeline(loc.ID, at.Add(time.Hour), at.Add(forecastHours*time.Hour))
		slog.Debug("location evaluated",
			"location", loc.ID,
			"samples", engine.Len(loc.ID),
			"state", cur.State,
			"cai", cur.CAI,
			"cached", b.Cached,
		)

		writeReport(w, cfg.OpenWeather.Units, b, cur, timeline)
		snaps = append(snaps, cur.Snapshot())
	}

	if path := cfg.Agent.TextfilePath; path != "" && len(snaps) > 0 {
		if err := exporter.WriteTextfile(path, snaps); err != nil {
			errs = append(errs, err)
		} else {
			slog.Debug("textfile written", "path", path, "locations", len(snaps))
		}
	}
	return errors.Join(errs...)
}

// dumpBundle prints the decoded responses, for -verbose.
func dumpBundle(w io.Writer, b *openweather.Bundle) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		slog.Warn("could not dump responses", "location", b.Location.ID, "err", err)
	}
}
