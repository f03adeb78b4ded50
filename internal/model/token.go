package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deployment lists the accounting contracts of a restaking token.
type Deployment struct {
	AssetRegistry   string `json:"asset_registry"`
	Coordinator     string `json:"coordinator"`
	WithdrawalQueue string `json:"withdrawal_queue"`
}

// LiquidRestakingToken is a token known to the indexing service.
type LiquidRestakingToken struct {
	ID               string          `json:"id"`
	Symbol           string          `json:"symbol"`
	Address          string          `json:"address"`
	Deployment       Deployment      `json:"deployment"`
	CreatedTimestamp time.Time       `json:"created_timestamp"`
	TotalValueETH    decimal.Decimal `json:"total_value_eth"`
	TotalSupply      decimal.Decimal `json:"total_supply"`
}
