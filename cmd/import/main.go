// Command import backfills historical daily fill snapshots over an explicit
// date range. It reuses the per-date resync path, so the sync cursor is left
// untouched and re-imported days are idempotent.
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

	"github.com/hyperscope/fillsync/internal/app"
	"github.com/hyperscope/fillsync/internal/config"
)

const dateLayout = "2006-01-02"

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	fromStr := flag.String("from", "", "first date to import (YYYY-MM-DD)")
	toStr := flag.String("to", "", "last date to import (YYYY-MM-DD, inclusive)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	from, err := time.Parse(dateLayout, *fromStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -from date %q: %v\n", *fromStr, err)
		os.Exit(2)
	}
	to, err := time.Parse(dateLayout, *toStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -to date %q: %v\n", *toStr, err)
		os.Exit(2)
	}
	if to.Before(from) {
		fmt.Fprintf(os.Stderr, "-to %s is before -from %s\n", *toStr, *fromStr)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := app.Wire(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire dependencies", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cleanup()

	logger.Info("import starting",
		slog.String("from", *fromStr),
		slog.String("to", *toStr),
	)

	var total, failed int
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			logger.Warn("import interrupted", slog.String("next_date", d.Format(dateLayout)))
			break
		}
		dateStr := d.Format(dateLayout)
		n, err := deps.Runner.ResyncDate(ctx, dateStr)
		if err != nil {
			failed++
			logger.Error("date import failed",
				slog.String("date", dateStr),
				slog.String("error", err.Error()),
			)
			continue
		}
		total += n
		logger.Info("date imported",
			slog.String("date", dateStr),
			slog.Int("fills", n),
		)
	}

	logger.Info("import finished",
		slog.Int("total_fills", total),
		slog.Int("failed_dates", failed),
	)
	if failed > 0 {
		os.Exit(1)
	}
}
