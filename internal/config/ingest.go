package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// IngestConfig holds configuration for transfer ingestion.
type IngestConfig struct {
	RPCURL       string
	PGDSN        string
	FromBlock    uint64
	ToBlock      uint64
	Addresses    []string
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	StateName    string
	LogLevel     string
}

// LoadIngest merges config file, environment variables, and flags into IngestConfig.
func LoadIngest(cfgFile string, flags *pflag.FlagSet) (IngestConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":    uint64(2000),
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return IngestConfig{}, err
	}

	cfg := IngestConfig{
		RPCURL:       v.GetString("rpc"),
		PGDSN:        v.GetString("pg-dsn"),
		FromBlock:    v.GetUint64("from"),
		ToBlock:      v.GetUint64("to"),
		Addresses:    getStringSlice(v, "address"),
		BatchSize:    v.GetUint64("batch-size"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		StateName:    v.GetString("state-name"),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
