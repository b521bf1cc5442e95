package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyperscope/fillsync/internal/domain"
	"github.com/hyperscope/fillsync/internal/server"
	"github.com/hyperscope/fillsync/internal/server/handler"
)

// shutdownTimeout bounds graceful HTTP shutdown on exit.
const shutdownTimeout = 15 * time.Second

// SyncMode performs a single sync run and exits. Intended for cron or
// one-off invocations.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	result, err := deps.Runner.Run(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "sync already in progress, nothing to do")
			return nil
		}
		return err
	}

	a.logger.InfoContext(ctx, "sync run finished",
		slog.Int("dates_processed", result.ProcessedDates),
		slog.Int("fills_upserted", result.TotalFills),
		slog.Int("errors", len(result.Errors)),
	)
	return nil
}

// ServeMode runs the HTTP API without the background scheduler. Syncs only
// happen when the trigger or resync endpoints are called.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// FullMode runs the scheduler and the HTTP API together. The trigger
// endpoint gains async support by waking the scheduler.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Scheduler.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps, deps.Scheduler.Trigger)

	return g.Wait()
}

// startHTTPServer builds the handler set and runs the server under the
// errgroup, shutting it down when the group context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, trigger func()) {
	if !a.cfg.Server.Enabled {
		a.logger.Info("http server disabled by configuration")
		return
	}

	syncHandler := handler.NewSyncHandler(deps.Runner, deps.Status, a.logger)
	if trigger != nil {
		syncHandler = syncHandler.WithTrigger(trigger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		CronSecret:  a.cfg.Server.CronSecret,
	}, server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Sync:   syncHandler,
		Stats:  handler.NewStatsHandler(deps.FillStore, deps.Aggregator, a.logger),
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
