package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "RATESYNC"

// Config holds settings of the sync commands (run and serve).
type Config struct {
	RPCURL          string
	SubgraphURL     string
	PGDSN           string
	RedisURL        string
	ChainID         uint64
	AssetSymbol     string
	Tokens          []string
	Step            time.Duration
	AlignOffset     time.Duration
	MinDeposit      decimal.Decimal
	IndexerInterval time.Duration
	IndexerRetries  int
	IndexerBackoff  time.Duration
	IndexerTimeout  time.Duration
	LockTTL         time.Duration
	RunTimeout      time.Duration
	Schedule        string
	MetricsAddr     string
	AuditLog        string
	Now             time.Time
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"chain-id":         uint64(1),
		"asset-symbol":     "ETH",
		"step":             time.Hour,
		"align-offset":     5 * time.Minute,
		"min-deposit":      "0.001",
		"indexer-interval": 900 * time.Millisecond,
		"indexer-retries":  3,
		"indexer-backoff":  time.Second,
		"indexer-timeout":  15 * time.Second,
		"lock-ttl":         time.Hour,
		"run-timeout":      50 * time.Minute,
		"schedule":         "0 5 * * * *",
		"metrics-addr":     ":9102",
		"log-level":        "info",
	})
	if err != nil {
		return Config{}, err
	}

	minDeposit, err := decimal.NewFromString(strings.TrimSpace(v.GetString("min-deposit")))
	if err != nil {
		return Config{}, fmt.Errorf("invalid min-deposit: %w", err)
	}

	var now time.Time
	if raw := v.GetString("now"); raw != "" {
		ts, err := ParseTimestamp(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid now: %w", err)
		}
		now = time.Unix(int64(ts), 0).UTC()
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		SubgraphURL:     v.GetString("subgraph-url"),
		PGDSN:           v.GetString("pg-dsn"),
		RedisURL:        v.GetString("redis-url"),
		ChainID:         v.GetUint64("chain-id"),
		AssetSymbol:     v.GetString("asset-symbol"),
		Tokens:          getStringSlice(v, "tokens"),
		Step:            v.GetDuration("step"),
		AlignOffset:     v.GetDuration("align-offset"),
		MinDeposit:      minDeposit,
		IndexerInterval: v.GetDuration("indexer-interval"),
		IndexerRetries:  v.GetInt("indexer-retries"),
		IndexerBackoff:  v.GetDuration("indexer-backoff"),
		IndexerTimeout:  v.GetDuration("indexer-timeout"),
		LockTTL:         v.GetDuration("lock-ttl"),
		RunTimeout:      v.GetDuration("run-timeout"),
		Schedule:        v.GetString("schedule"),
		MetricsAddr:     v.GetString("metrics-addr"),
		AuditLog:        v.GetString("audit-log"),
		Now:             now,
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings every sync command needs.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.SubgraphURL == "" {
		return fmt.Errorf("subgraph url is required")
	}
	if c.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if c.Step <= 0 || c.Step%time.Hour != 0 {
		return fmt.Errorf("step must be a positive multiple of one hour: %s", c.Step)
	}
	if c.AlignOffset < 0 || c.AlignOffset >= time.Hour {
		return fmt.Errorf("align offset must be within the hour")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run timeout must be positive")
	}
	if c.LockTTL < c.RunTimeout {
		return fmt.Errorf("lock ttl %s must not be shorter than run timeout %s", c.LockTTL, c.RunTimeout)
	}
	if c.MinDeposit.IsNegative() {
		return fmt.Errorf("min deposit must not be negative")
	}
	return nil
}

// newViper builds a viper instance over defaults, env, flags and an optional
// config file.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
