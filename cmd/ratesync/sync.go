package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"restakeRates/internal/chain"
	"restakeRates/internal/config"
	"restakeRates/internal/ledger"
	"restakeRates/internal/lock"
	"restakeRates/internal/ratesync"
	"restakeRates/internal/storage"
	"restakeRates/internal/storage/postgres"
	"restakeRates/internal/subgraph"
)

// syncApp owns the connections behind an Engine.
type syncApp struct {
	engine  *ratesync.Engine
	store   *postgres.Store
	closers []func()
}

func (a *syncApp) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadSyncConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func buildSyncApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*syncApp, error) {
	app := &syncApp{}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	app.closers = append(app.closers, chainClient.Close)

	oracle, err := subgraph.NewClient(subgraph.Config{
		URL:          cfg.SubgraphURL,
		Timeout:      cfg.IndexerTimeout,
		Interval:     cfg.IndexerInterval,
		MaxRetries:   cfg.IndexerRetries,
		RetryBackoff: cfg.IndexerBackoff,
	}, logger.Named("subgraph"))
	if err != nil {
		return nil, err
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	app.store = store
	app.closers = append(app.closers, store.Close)

	var sink ledger.Sink
	if cfg.AuditLog != "" {
		sink = storage.NewJsonlStorage(cfg.AuditLog)
	}

	var locker lock.Locker = store.Leases()
	if cfg.RedisURL != "" {
		redisLocker, err := lock.NewRedisLocker(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		app.closers = append(app.closers, func() { _ = redisLocker.Close() })
		locker = redisLocker
	}

	var now func() time.Time
	if !cfg.Now.IsZero() {
		pinned := cfg.Now
		now = func() time.Time { return pinned }
	}

	app.engine = ratesync.NewEngine(ratesync.Config{
		ChainID:     cfg.ChainID,
		Asset:       cfg.AssetSymbol,
		Tokens:      cfg.Tokens,
		Step:        cfg.Step,
		AlignOffset: cfg.AlignOffset,
		MinDeposit:  cfg.MinDeposit,
		LockTTL:     cfg.LockTTL,
		Now:         now,
	}, ratesync.Deps{
		Ledger:   ledger.NewRepository(store, sink, logger.Named("ledger")),
		Supply:   store,
		Oracle:   oracle,
		Protocol: chain.NewProtocolReader(chainClient),
		Locker:   locker,
	}, logger.Named("ratesync"))

	ok = true
	return app, nil
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadSyncConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildSyncApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("sync start",
		zap.Uint64("chain_id", cfg.ChainID),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Strings("tokens", cfg.Tokens),
		zap.Duration("step", cfg.Step),
		zap.Bool("redis_locks", cfg.RedisURL != ""),
	)

	runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	summary, err := app.engine.Run(runCtx)
	if err != nil {
		return err
	}
	if failed := summary.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d tokens failed", len(failed), len(summary.Results))
	}
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("migrations applied", zap.String("pg_dsn", redactDSN(cfg.PGDSN)))
	return nil
}
