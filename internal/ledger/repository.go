package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"restakeRates/internal/amount"
	"restakeRates/internal/model"
)

// ErrWrite marks failures to persist a ledger row.
var ErrWrite = errors.New("ledger write failed")

// Store is the persistence layer behind the ledger.
type Store interface {
	LatestRate(ctx context.Context, chainID uint64, token string) (model.RateEntry, bool, error)
	InsertRate(ctx context.Context, entry model.RateEntry) (model.RateEntry, error)
}

// Sink receives a copy of every row written.
type Sink interface {
	PutRateEntries(entries []model.RateEntry) error
}

// Repository reads and appends exchange-rate history.
type Repository struct {
	store  Store
	sink   Sink
	logger *zap.Logger
}

// NewRepository builds a Repository. sink may be nil.
func NewRepository(store Store, sink Sink, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{store: store, sink: sink, logger: logger}
}

// Latest returns the most recent entry for a token, if any.
func (r *Repository) Latest(ctx context.Context, chainID uint64, token string) (model.RateEntry, bool, error) {
	entry, ok, err := r.store.LatestRate(ctx, chainID, token)
	if err != nil {
		return model.RateEntry{}, false, fmt.Errorf("latest rate %s: %w", token, err)
	}
	return entry, ok, nil
}

// Insert derives the rates of a candidate and appends it.
func (r *Repository) Insert(ctx context.Context, candidate model.RateCandidate) (model.RateEntry, error) {
	entry, err := BuildEntry(candidate)
	if err != nil {
		return model.RateEntry{}, err
	}

	stored, err := r.store.InsertRate(ctx, entry)
	if err != nil {
		return model.RateEntry{}, fmt.Errorf("%w: %s at %s: %w", ErrWrite, entry.RestakingToken, entry.Timestamp.Format(time.RFC3339), err)
	}

	if r.sink != nil {
		if err := r.sink.PutRateEntries([]model.RateEntry{stored}); err != nil {
			r.logger.Warn("audit sink write failed", zap.String("token", stored.RestakingToken), zap.Error(err))
		}
	}
	return stored, nil
}

// BuildEntry converts a candidate into a ledger row. The exchange rate is
// derived from the wei amounts that will be stored, so the two never drift.
func BuildEntry(c model.RateCandidate) (model.RateEntry, error) {
	balance := amount.ToWei(c.AssetBalance)
	supply := amount.ToWei(c.RestakingTokenSupply)
	if supply.Sign() <= 0 {
		return model.RateEntry{}, fmt.Errorf("restaking token supply must be positive: %s", c.RestakingTokenSupply)
	}
	if balance.Sign() < 0 {
		return model.RateEntry{}, fmt.Errorf("asset balance must not be negative: %s", c.AssetBalance)
	}

	rate, err := amount.WeiRatio(balance, supply, amount.RateScale)
	if err != nil {
		return model.RateEntry{}, err
	}

	ts := c.Timestamp.UTC().Truncate(time.Second)
	return model.RateEntry{
		ChainID:              c.ChainID,
		Asset:                c.Asset,
		AssetBalance:         balance,
		RestakingToken:       c.RestakingToken,
		RestakingTokenSupply: supply,
		ExchangeRate:         rate,
		RatePerSecond:        RatePerSecond(rate, c.PreviousExchangeRate, ts, c.PreviousTimestamp),
		BlockNumber:          c.BlockNumber,
		Timestamp:            ts,
	}, nil
}

// RatePerSecond is the first difference of the rate over elapsed whole seconds.
func RatePerSecond(rate, previous decimal.Decimal, at time.Time, previousAt *time.Time) decimal.Decimal {
	if previousAt == nil {
		return decimal.Zero
	}
	seconds := int64(at.Sub(previousAt.UTC().Truncate(time.Second)) / time.Second)
	if seconds <= 0 {
		return decimal.Zero
	}
	return rate.Sub(previous).DivRound(decimal.NewFromInt(seconds), amount.RateScale)
}

// SeedCandidate is the synthetic first row of a token's history.
func SeedCandidate(chainID uint64, asset string, token model.LiquidRestakingToken) model.RateCandidate {
	return model.RateCandidate{
		ChainID:              chainID,
		Asset:                asset,
		RestakingToken:       token.Symbol,
		AssetBalance:         amount.One,
		RestakingTokenSupply: amount.One,
		BlockNumber:          0,
		Timestamp:            token.CreatedTimestamp,
		PreviousExchangeRate: amount.One,
	}
}
