package subgraph

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"restakeRates/internal/amount"
	"restakeRates/internal/model"
)

const listTokensQuery = `query LiquidRestakingTokens($first: Int!) {
  liquidRestakingTokens(first: $first, orderBy: createdTimestamp, orderDirection: asc) {
    id
    symbol
    address
    createdTimestamp
    totalValueETH
    totalSupply
    deployment {
      assetRegistry
      coordinator
      withdrawalQueue
    }
  }
}`

const closestDepositQuery = `query ClosestDeposit($timestamp: BigInt!, $restakingToken: String!, $minAmountIn: BigDecimal!) {
  deposits(
    first: 1
    where: {timestamp_lte: $timestamp, restakingToken: $restakingToken, amountIn_gt: $minAmountIn}
    orderBy: timestamp
    orderDirection: desc
  ) {
    amountIn
    amountOut
    blockNumber
    timestamp
  }
}`

const maxTokens = 1000

type tokenDTO struct {
	ID               string `json:"id"`
	Symbol           string `json:"symbol"`
	Address          string `json:"address"`
	CreatedTimestamp string `json:"createdTimestamp"`
	TotalValueETH    string `json:"totalValueETH"`
	TotalSupply      string `json:"totalSupply"`
	Deployment       struct {
		AssetRegistry   string `json:"assetRegistry"`
		Coordinator     string `json:"coordinator"`
		WithdrawalQueue string `json:"withdrawalQueue"`
	} `json:"deployment"`
}

type depositDTO struct {
	AmountIn    string `json:"amountIn"`
	AmountOut   string `json:"amountOut"`
	BlockNumber string `json:"blockNumber"`
	Timestamp   string `json:"timestamp"`
}

// ListLiquidRestakingTokens returns every token known to the indexing service.
// Tokens the service reports in a malformed state are logged and left out.
func (c *Client) ListLiquidRestakingTokens(ctx context.Context) ([]model.LiquidRestakingToken, error) {
	var out struct {
		Tokens []tokenDTO `json:"liquidRestakingTokens"`
	}
	if err := c.query(ctx, "list_tokens", listTokensQuery, map[string]interface{}{"first": maxTokens}, &out); err != nil {
		return nil, fmt.Errorf("list restaking tokens: %w", err)
	}

	tokens := make([]model.LiquidRestakingToken, 0, len(out.Tokens))
	for _, dto := range out.Tokens {
		token, err := dto.toModel()
		if err != nil {
			c.logger.Warn("skip malformed restaking token",
				zap.String("id", dto.ID),
				zap.String("token", dto.Symbol),
				zap.Error(err),
			)
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// ClosestDeposit returns the most recent deposit at or before at whose
// amountIn exceeds minAmountIn. ok is false when no deposit matches.
func (c *Client) ClosestDeposit(ctx context.Context, token model.LiquidRestakingToken, at time.Time, minAmountIn decimal.Decimal) (model.DepositSample, bool, error) {
	var out struct {
		Deposits []depositDTO `json:"deposits"`
	}
	vars := map[string]interface{}{
		"timestamp":      strconv.FormatInt(at.Unix(), 10),
		"restakingToken": TokenKey(token),
		"minAmountIn":    minAmountIn.String(),
	}
	if err := c.query(ctx, "closest_deposit", closestDepositQuery, vars, &out); err != nil {
		return model.DepositSample{}, false, fmt.Errorf("closest deposit %s at %d: %w", token.Symbol, at.Unix(), err)
	}
	if len(out.Deposits) == 0 {
		return model.DepositSample{}, false, nil
	}

	sample, err := out.Deposits[0].toModel()
	if err != nil {
		return model.DepositSample{}, false, fmt.Errorf("deposit %s: %w", token.Symbol, err)
	}
	return sample, true, nil
}

// TokenKey is the identifier the indexing service uses for a token.
func TokenKey(token model.LiquidRestakingToken) string {
	if token.ID != "" {
		return token.ID
	}
	return strings.ToLower(token.Address)
}

func (d tokenDTO) toModel() (model.LiquidRestakingToken, error) {
	if !common.IsHexAddress(d.Address) {
		return model.LiquidRestakingToken{}, fmt.Errorf("invalid address: %s", d.Address)
	}
	created, err := parseUnix(d.CreatedTimestamp)
	if err != nil {
		return model.LiquidRestakingToken{}, fmt.Errorf("created timestamp: %w", err)
	}
	tvl, err := amount.Parse(d.TotalValueETH)
	if err != nil {
		return model.LiquidRestakingToken{}, fmt.Errorf("total value: %w", err)
	}
	supply, err := amount.Parse(d.TotalSupply)
	if err != nil {
		return model.LiquidRestakingToken{}, fmt.Errorf("total supply: %w", err)
	}

	return model.LiquidRestakingToken{
		ID:      d.ID,
		Symbol:  d.Symbol,
		Address: common.HexToAddress(d.Address).Hex(),
		Deployment: model.Deployment{
			AssetRegistry:   d.Deployment.AssetRegistry,
			Coordinator:     d.Deployment.Coordinator,
			WithdrawalQueue: d.Deployment.WithdrawalQueue,
		},
		CreatedTimestamp: created,
		TotalValueETH:    tvl,
		TotalSupply:      supply,
	}, nil
}

func (d depositDTO) toModel() (model.DepositSample, error) {
	in, err := amount.Parse(d.AmountIn)
	if err != nil {
		return model.DepositSample{}, fmt.Errorf("amount in: %w", err)
	}
	out, err := amount.Parse(d.AmountOut)
	if err != nil {
		return model.DepositSample{}, fmt.Errorf("amount out: %w", err)
	}
	block, err := strconv.ParseUint(strings.TrimSpace(d.BlockNumber), 10, 64)
	if err != nil {
		return model.DepositSample{}, fmt.Errorf("block number: %w", err)
	}
	ts, err := parseUnix(d.Timestamp)
	if err != nil {
		return model.DepositSample{}, fmt.Errorf("timestamp: %w", err)
	}
	return model.DepositSample{AmountIn: in, AmountOut: out, BlockNumber: block, Timestamp: ts}, nil
}

func parseUnix(value string) (time.Time, error) {
	sec, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
