package ratesync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"restakeRates/internal/amount"
	"restakeRates/internal/metrics"
	"restakeRates/internal/model"
)

// BackfillStats counts what a backfill pass did.
type BackfillStats struct {
	Written int
	Skipped int
}

// Backfiller fills hourly gaps in a token's history from deposit samples.
type Backfiller struct {
	cfg      Config
	ledger   Ledger
	supply   SupplyEstimator
	deposits DepositOracle
	logger   *zap.Logger
}

// NewBackfiller builds a Backfiller. A step that is not a whole number of
// hours is replaced by DefaultStep.
func NewBackfiller(cfg Config, ledger Ledger, supply SupplyEstimator, deposits DepositOracle, logger *zap.Logger) *Backfiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfiller{
		cfg:      cfg.withDefaults(),
		ledger:   ledger,
		supply:   supply,
		deposits: deposits,
		logger:   logger,
	}
}

// Backfill writes one entry per sample instant after last up to until, skipping
// instants with no usable deposit. It returns the newest entry written, or last
// when nothing was written. On error the entry returned is the newest one that
// made it into the ledger.
func (b *Backfiller) Backfill(ctx context.Context, token model.LiquidRestakingToken, last model.RateEntry, until time.Time) (model.RateEntry, BackfillStats, error) {
	var stats BackfillStats

	times, err := SampleTimes(last.Timestamp, until, b.cfg.Step, b.cfg.AlignOffset)
	if err != nil {
		return last, stats, err
	}
	if len(times) == 0 {
		return last, stats, nil
	}

	b.logger.Info("backfill start",
		zap.String("token", token.Symbol),
		zap.Time("from", times[0]),
		zap.Time("until", until),
		zap.Int("hours", len(times)),
	)

	for _, ts := range times {
		if err := ctx.Err(); err != nil {
			return last, stats, err
		}

		candidate, ok, err := b.sampleAt(ctx, token, ts)
		if err != nil {
			return last, stats, err
		}
		if !ok {
			stats.Skipped++
			metrics.HoursSkipped.WithLabelValues(token.Symbol).Inc()
			b.logger.Debug("no deposit sample, skipping hour", zap.String("token", token.Symbol), zap.Time("timestamp", ts))
			continue
		}

		stored, err := b.ledger.Insert(ctx, candidate.Baseline(last))
		if err != nil {
			return last, stats, err
		}
		last = stored
		stats.Written++
		metrics.EntriesWritten.WithLabelValues(token.Symbol, StageBackfill).Inc()
	}

	b.logger.Info("backfill complete",
		zap.String("token", token.Symbol),
		zap.Int("written", stats.Written),
		zap.Int("skipped", stats.Skipped),
	)
	return last, stats, nil
}

// sampleAt prices a single instant. ok is false when no deposit can price it.
func (b *Backfiller) sampleAt(ctx context.Context, token model.LiquidRestakingToken, ts time.Time) (model.RateCandidate, bool, error) {
	supply, hasSupply, err := b.supply.SupplyAsOf(ctx, b.cfg.ChainID, token.Address, ts)
	if err != nil {
		return model.RateCandidate{}, false, fmt.Errorf("supply as of %s: %w", ts.Format(time.RFC3339), err)
	}

	sample, ok, err := b.deposits.ClosestDeposit(ctx, token, ts, b.cfg.MinDeposit)
	if err != nil {
		return model.RateCandidate{}, false, fmt.Errorf("closest deposit at %s: %w", ts.Format(time.RFC3339), err)
	}
	if !ok || sample.AmountOut.Sign() <= 0 {
		return model.RateCandidate{}, false, nil
	}

	rate, err := amount.Ratio(sample.AmountIn, sample.AmountOut, amount.SampleScale)
	if err != nil {
		return model.RateCandidate{}, false, err
	}
	if !hasSupply || supply.Sign() <= 0 {
		supply = sample.AmountOut
	}

	return model.RateCandidate{
		ChainID:              b.cfg.ChainID,
		Asset:                b.cfg.Asset,
		RestakingToken:       token.Symbol,
		AssetBalance:         supply.Mul(rate),
		RestakingTokenSupply: supply,
		BlockNumber:          sample.BlockNumber,
		Timestamp:            ts,
	}, true, nil
}
