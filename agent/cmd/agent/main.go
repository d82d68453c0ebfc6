// Command agent computes the Comprehensive Air-quality Index for the
// configured locations from OpenWeather data.
//
// Without -watch it prints a one-shot report per location, reading the last
// cached responses unless -r is given. With -watch it refreshes every
// agent.refresh_interval, evaluates alert rules, exports metrics, and serves
// the status API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caiwatch/caiwatch/agent/internal/compute"
	"github.com/caiwatch/caiwatch/agent/internal/config"
	"github.com/caiwatch/caiwatch/agent/internal/logging"
	"github.com/caiwatch/caiwatch/agent/internal/openweather"
)

func main() {
	var (
		configPath string
		refresh    bool
		verbose    bool
		watch      bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file")
	flag.BoolVar(&refresh, "r", false, "fetch fresh data from OpenWeather instead of reading the cache")
	flag.BoolVar(&refresh, "refresh", false, "same as -r")
	flag.BoolVar(&verbose, "v", false, "debug logging and dump the decoded responses")
	flag.BoolVar(&verbose, "verbose", false, "same as -v")
	flag.BoolVar(&watch, "watch", false, "keep running: refresh periodically, evaluate alerts, serve the status API")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Agent, verbose))

	slog.Info("caiwatch-agent starting",
		"config", configPath,
		"locations", len(cfg.Locations),
		"watch", watch,
		"refresh", refresh || watch,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := openweather.New(cfg.OpenWeather)
	if err != nil {
		slog.Error("failed to build openweather client", "err", err)
		os.Exit(1)
	}
	loader := openweather.NewLoader(client, cfg.Agent)
	engine := compute.NewEngine()

	if watch {
		err = runWatch(ctx, configPath, cfg, loader, engine, verbose)
	} else {
		err = runOnce(ctx, os.Stdout, cfg, loader, engine, options{
			refresh: refresh,
			verbose: verbose,
			now:     time.Now(),
		})
	}
	if err != nil {
		slog.Error("caiwatch-agent failed", "err", err)
		os.Exit(1)
	}
	slog.Info("caiwatch-agent done")
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [-config path] [-r|-refresh] [-v|-verbose] [-watch]\n\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintln(out, "\nWithout -r the last cached responses are used; run once with -r to populate the cache.")
}
