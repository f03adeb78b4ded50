package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "ratesync",
		Short:        "Liquid restaking token exchange-rate sync",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync pass over every restaking token",
		RunE:  runSync,
	}
	addSyncFlags(runCmd.Flags())
	root.AddCommand(runCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run sync passes on a schedule and serve health and metrics",
		RunE:  runServe,
	}
	addSyncFlags(serveCmd.Flags())
	serveCmd.Flags().String("schedule", "0 5 * * * *", "cron schedule with seconds field")
	serveCmd.Flags().String("metrics-addr", ":9102", "health and metrics listen address")
	serveCmd.Flags().Bool("run-on-start", true, "run one sync pass immediately on start")
	root.AddCommand(serveCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(migrateCmd)

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest restaking token mints and burns for supply estimation",
		RunE:  runIngest,
	}
	ingestCmd.Flags().String("rpc", "", "RPC URL")
	ingestCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	ingestCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	ingestCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	ingestCmd.Flags().StringSlice("address", nil, "restaking token addresses (comma-separated)")
	ingestCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	ingestCmd.Flags().String("state-name", "", "checkpoint name, defaults to one per chain")
	ingestCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	ingestCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	ingestCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(ingestCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSyncFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "RPC URL")
	flags.String("subgraph-url", "", "indexing service GraphQL endpoint")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("redis-url", "", "Redis URL for per-token locks, Postgres leases are used when empty")
	flags.Uint64("chain-id", 1, "chain id recorded on every entry")
	flags.String("asset-symbol", "ETH", "underlying asset symbol")
	flags.StringSlice("tokens", nil, "only sync these token symbols (comma-separated)")
	flags.Duration("step", time.Hour, "backfill sampling step, a whole number of hours")
	flags.Duration("align-offset", 5*time.Minute, "offset past the hour for backfill samples")
	flags.String("min-deposit", "0.001", "ignore deposits smaller than this amount")
	flags.Duration("indexer-interval", 900*time.Millisecond, "minimum spacing between indexing service requests")
	flags.Int("indexer-retries", 3, "indexing service retry attempts")
	flags.Duration("indexer-backoff", time.Second, "initial indexing service retry backoff")
	flags.Duration("indexer-timeout", 15*time.Second, "indexing service request timeout")
	flags.Duration("lock-ttl", time.Hour, "per-token lock lifetime, at least run-timeout")
	flags.Duration("run-timeout", 50*time.Minute, "upper bound for one sync pass")
	flags.String("audit-log", "", "optional JSONL file receiving a copy of every written entry")
	flags.String("now", "", "pin the current time (unix seconds or RFC3339)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
