package model

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// RateEntry is one row of the exchange-rate ledger.
type RateEntry struct {
	ID                   int64           `json:"id"`
	ChainID              uint64          `json:"chain_id"`
	Asset                string          `json:"asset"`
	AssetBalance         *big.Int        `json:"asset_balance"`
	RestakingToken       string          `json:"restaking_token"`
	RestakingTokenSupply *big.Int        `json:"restaking_token_supply"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`
	RatePerSecond        decimal.Decimal `json:"rate_per_second"`
	BlockNumber          uint64          `json:"block_number"`
	Timestamp            time.Time       `json:"timestamp"`
	CreatedAt            time.Time       `json:"created_at"`
}

type rateEntryJSON struct {
	ID                   int64           `json:"id"`
	ChainID              uint64          `json:"chain_id"`
	Asset                string          `json:"asset"`
	AssetBalance         string          `json:"asset_balance"`
	RestakingToken       string          `json:"restaking_token"`
	RestakingTokenSupply string          `json:"restaking_token_supply"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`
	RatePerSecond        decimal.Decimal `json:"rate_per_second"`
	BlockNumber          uint64          `json:"block_number"`
	Timestamp            time.Time       `json:"timestamp"`
	CreatedAt            time.Time       `json:"created_at"`
}

// MarshalJSON encodes wei amounts as base-10 strings.
func (e RateEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(rateEntryJSON{
		ID:                   e.ID,
		ChainID:              e.ChainID,
		Asset:                e.Asset,
		AssetBalance:         bigString(e.AssetBalance),
		RestakingToken:       e.RestakingToken,
		RestakingTokenSupply: bigString(e.RestakingTokenSupply),
		ExchangeRate:         e.ExchangeRate,
		RatePerSecond:        e.RatePerSecond,
		BlockNumber:          e.BlockNumber,
		Timestamp:            e.Timestamp,
		CreatedAt:            e.CreatedAt,
	})
}

// UnmarshalJSON decodes a RateEntry written by MarshalJSON.
func (e *RateEntry) UnmarshalJSON(data []byte) error {
	var raw rateEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	balance, ok := new(big.Int).SetString(raw.AssetBalance, 10)
	if !ok {
		balance = new(big.Int)
	}
	supply, ok := new(big.Int).SetString(raw.RestakingTokenSupply, 10)
	if !ok {
		supply = new(big.Int)
	}
	*e = RateEntry{
		ID:                   raw.ID,
		ChainID:              raw.ChainID,
		Asset:                raw.Asset,
		AssetBalance:         balance,
		RestakingToken:       raw.RestakingToken,
		RestakingTokenSupply: supply,
		ExchangeRate:         raw.ExchangeRate,
		RatePerSecond:        raw.RatePerSecond,
		BlockNumber:          raw.BlockNumber,
		Timestamp:            raw.Timestamp,
		CreatedAt:            raw.CreatedAt,
	}
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
