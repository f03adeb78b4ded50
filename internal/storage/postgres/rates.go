package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"restakeRates/internal/amount"
	"restakeRates/internal/model"
)

const rateColumns = `id, chain_id, asset, asset_balance::text, restaking_token, restaking_token_supply::text,
	exchange_rate::text, rate_per_second::text, block_number, timestamp, created_at`

// LatestRate returns the most recent ledger row of a token.
func (s *Store) LatestRate(ctx context.Context, chainID uint64, token string) (model.RateEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+rateColumns+`
		FROM lrt_exchange_rates
		WHERE chain_id = $1 AND restaking_token = $2
		ORDER BY timestamp DESC
		LIMIT 1
	`, int64(chainID), token)

	entry, err := scanRate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RateEntry{}, false, nil
		}
		return model.RateEntry{}, false, err
	}
	return entry, true, nil
}

// InsertRate appends a ledger row. A row already stored for the same token and
// timestamp is kept and returned unchanged.
func (s *Store) InsertRate(ctx context.Context, entry model.RateEntry) (model.RateEntry, error) {
	if entry.AssetBalance == nil || entry.RestakingTokenSupply == nil {
		return model.RateEntry{}, fmt.Errorf("rate entry amounts are required")
	}
	row := s.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO lrt_exchange_rates (
				chain_id, asset, asset_balance, restaking_token, restaking_token_supply,
				exchange_rate, rate_per_second, block_number, timestamp, created_at
			) VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, now())
			ON CONFLICT (chain_id, restaking_token, timestamp) DO NOTHING
			RETURNING `+rateColumns+`
		)
		SELECT * FROM inserted
		UNION ALL
		SELECT `+rateColumns+`
		FROM lrt_exchange_rates
		WHERE chain_id = $1 AND restaking_token = $4 AND timestamp = $9
		LIMIT 1
	`,
		int64(entry.ChainID),
		entry.Asset,
		entry.AssetBalance.String(),
		entry.RestakingToken,
		entry.RestakingTokenSupply.String(),
		entry.ExchangeRate.String(),
		entry.RatePerSecond.String(),
		int64(entry.BlockNumber),
		entry.Timestamp.UTC(),
	)
	return scanRate(row)
}

func scanRate(row pgx.Row) (model.RateEntry, error) {
	var (
		entry                                model.RateEntry
		chainID, block                       int64
		balance, supply, rate, ratePerSecond string
	)
	if err := row.Scan(
		&entry.ID,
		&chainID,
		&entry.Asset,
		&balance,
		&entry.RestakingToken,
		&supply,
		&rate,
		&ratePerSecond,
		&block,
		&entry.Timestamp,
		&entry.CreatedAt,
	); err != nil {
		return model.RateEntry{}, err
	}

	var err error
	entry.ChainID = uint64(chainID)
	entry.BlockNumber = uint64(block)
	entry.Timestamp = entry.Timestamp.UTC()
	entry.CreatedAt = entry.CreatedAt.UTC()
	if entry.AssetBalance, err = amount.ParseWei(balance); err != nil {
		return model.RateEntry{}, fmt.Errorf("asset balance: %w", err)
	}
	if entry.RestakingTokenSupply, err = amount.ParseWei(supply); err != nil {
		return model.RateEntry{}, fmt.Errorf("restaking token supply: %w", err)
	}
	if entry.ExchangeRate, err = decimal.NewFromString(rate); err != nil {
		return model.RateEntry{}, fmt.Errorf("exchange rate: %w", err)
	}
	if entry.RatePerSecond, err = decimal.NewFromString(ratePerSecond); err != nil {
		return model.RateEntry{}, fmt.Errorf("rate per second: %w", err)
	}
	return entry, nil
}
