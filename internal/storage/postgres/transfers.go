package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"restakeRates/internal/amount"
	"restakeRates/internal/model"
)

// UpsertTransfers stores mint and burn transfers. Replayed logs are ignored.
func (s *Store) UpsertTransfers(ctx context.Context, transfers []model.TransferRecord) error {
	if len(transfers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range transfers {
		if t.Value == nil {
			return fmt.Errorf("transfer %s:%d has no value", t.TxHash, t.LogIndex)
		}
		batch.Queue(`
			INSERT INTO lrt_transfers (
				chain_id, token_address, tx_hash, log_index, from_address, to_address, value, block_number, timestamp
			) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)
			ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING
		`,
			int64(t.ChainID),
			strings.ToLower(t.Token),
			strings.ToLower(t.TxHash),
			int64(t.LogIndex),
			strings.ToLower(t.From),
			strings.ToLower(t.To),
			t.Value.String(),
			int64(t.BlockNumber),
			t.Timestamp.UTC(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range transfers {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// SupplyAsOf sums minted minus burned value of a token up to and including at,
// in human units. ok is false when the token has no recorded transfers yet.
func (s *Store) SupplyAsOf(ctx context.Context, chainID uint64, tokenAddress string, at time.Time) (decimal.Decimal, bool, error) {
	var net string
	row := s.pool.QueryRow(ctx, `
		SELECT (
			COALESCE(SUM(CASE WHEN from_address = $3 THEN value ELSE 0 END), 0)
			- COALESCE(SUM(CASE WHEN to_address = $3 THEN value ELSE 0 END), 0)
		)::text
		FROM lrt_transfers
		WHERE chain_id = $1
			AND token_address = $2
			AND timestamp <= $4
			AND (from_address = $3 OR to_address = $3)
		HAVING COUNT(*) > 0
	`, int64(chainID), strings.ToLower(tokenAddress), model.ZeroAddress, at.UTC())
	if err := row.Scan(&net); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("supply as of: %w", err)
	}

	wei, err := amount.ParseWei(net)
	if err != nil {
		return decimal.Zero, false, err
	}
	return amount.FromWei(wei), true, nil
}
