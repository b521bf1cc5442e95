package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperscope/fillsync/internal/analytics"
	s3blob "github.com/hyperscope/fillsync/internal/blob/s3"
	"github.com/hyperscope/fillsync/internal/cache/redis"
	"github.com/hyperscope/fillsync/internal/config"
	"github.com/hyperscope/fillsync/internal/domain"
	"github.com/hyperscope/fillsync/internal/feed"
	"github.com/hyperscope/fillsync/internal/notify"
	"github.com/hyperscope/fillsync/internal/store/postgres"
	syncpkg "github.com/hyperscope/fillsync/internal/sync"
)

// Dependencies holds every wired component. All modes share the same graph:
// serve mode still needs the runner because the trigger and resync endpoints
// execute syncs synchronously.
type Dependencies struct {
	FillStore  domain.FillStore
	Status     domain.SyncStatusStore
	Lock       domain.LockManager
	Runner     *syncpkg.Runner
	Scheduler  *syncpkg.Scheduler
	Aggregator *analytics.Aggregator
}

// Wire builds the full dependency graph from the configuration. The returned
// cleanup function closes everything in reverse construction order and is
// safe to call exactly once.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: postgres: %w", err))
	}
	closers = append(closers, pg.Close)

	if cfg.Database.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			return fail(fmt.Errorf("wire: migrations: %w", err))
		}
	}

	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: redis: %w", err))
	}
	closers = append(closers, func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("closing redis client", slog.Any("error", err))
		}
	})

	var blobWriter domain.BlobWriter
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		blobWriter = s3blob.NewWriter(s3Client)
	}

	fillStore := postgres.NewFillStore(pg.Pool())
	statusStore := postgres.NewSyncStatusStore(pg.Pool())
	lock := redis.NewLockManager(redisClient)

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	feedClient := feed.NewClient(feed.ClientConfig{
		BaseURL:        cfg.Feed.BaseURL,
		BuilderAddress: cfg.Feed.BuilderAddress,
		DateLayout:     cfg.Feed.DateLayout,
		RequestTimeout: cfg.Feed.RequestTimeout.Duration,
	}, logger)

	upserter := syncpkg.NewUpserter(fillStore, cfg.Sync.BatchSize, cfg.Sync.DedupeMode, logger)

	runner := syncpkg.NewRunner(syncpkg.RunnerOptions{
		Feed:           feedClient,
		Parse:          feed.ParseFills,
		Upserter:       upserter,
		Status:         statusStore,
		Lock:           lock,
		Blob:           blobWriter,
		Notifier:       notifier,
		BuilderAddress: cfg.Feed.BuilderAddress,
		LockTTL:        cfg.Sync.LockTTL.Duration,
		MaxSeqWarn:     cfg.Sync.MaxSequenceWarn,
		Logger:         logger,
	})

	scheduler := syncpkg.NewScheduler(runner, cfg.Sync.Interval.Duration, logger)
	aggregator := analytics.NewAggregator(fillStore, 0)

	return &Dependencies{
		FillStore:  fillStore,
		Status:     statusStore,
		Lock:       lock,
		Runner:     runner,
		Scheduler:  scheduler,
		Aggregator: aggregator,
	}, cleanup, nil
}
