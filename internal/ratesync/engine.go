// Package ratesync keeps the exchange-rate ledger of every restaking token
// up to date: seed, backfill of missing hours, then the current entry.
package ratesync

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"restakeRates/internal/amount"
	"restakeRates/internal/ledger"
	"restakeRates/internal/lock"
	"restakeRates/internal/metrics"
	"restakeRates/internal/model"
)

// Stage names used in logs, metrics and token results.
const (
	StageLock     = "lock"
	StageSeed     = "seed"
	StageBackfill = "backfill"
	StageCurrent  = "current"
	StageDone     = "done"
)

// DefaultLockTTL outlives the default run timeout so a lease never expires
// under a running backfill.
const DefaultLockTTL = time.Hour

// Ledger is the exchange-rate history.
type Ledger interface {
	Latest(ctx context.Context, chainID uint64, token string) (model.RateEntry, bool, error)
	Insert(ctx context.Context, candidate model.RateCandidate) (model.RateEntry, error)
}

// SupplyEstimator estimates circulating supply from recorded mints and burns.
type SupplyEstimator interface {
	SupplyAsOf(ctx context.Context, chainID uint64, tokenAddress string, at time.Time) (decimal.Decimal, bool, error)
}

// DepositOracle lists tokens and historical deposits.
type DepositOracle interface {
	ListLiquidRestakingTokens(ctx context.Context) ([]model.LiquidRestakingToken, error)
	ClosestDeposit(ctx context.Context, token model.LiquidRestakingToken, at time.Time, minAmountIn decimal.Decimal) (model.DepositSample, bool, error)
}

// ProtocolReader reads live on-chain state.
type ProtocolReader interface {
	CurrentBlock(ctx context.Context) (uint64, error)
	TVL(ctx context.Context, assetRegistry string) (*big.Int, error)
	TotalSupply(ctx context.Context, token string) (*big.Int, error)
}

// Config holds engine settings.
type Config struct {
	ChainID     uint64
	Asset       string
	Tokens      []string
	Step        time.Duration
	AlignOffset time.Duration
	MinDeposit  decimal.Decimal
	LockTTL     time.Duration
	Now         func() time.Time
}

func (c Config) withDefaults() Config {
	if !ValidStep(c.Step) {
		c.Step = DefaultStep
	}
	if c.AlignOffset < 0 {
		c.AlignOffset = DefaultAlignOffset
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Deps are the collaborators of an Engine. Locker may be nil.
type Deps struct {
	Ledger   Ledger
	Supply   SupplyEstimator
	Oracle   DepositOracle
	Protocol ProtocolReader
	Locker   lock.Locker
}

// TokenResult is the outcome of one token within a run.
type TokenResult struct {
	Symbol         string
	Stage          string
	Seeded         bool
	Locked         bool
	Backfill       BackfillStats
	CurrentWritten bool
	Latest         model.RateEntry
	Err            error
}

// RunSummary collects the per-token results of a run.
type RunSummary struct {
	StartedAt time.Time
	Duration  time.Duration
	Results   []TokenResult
}

// Failed returns the results that ended in an error.
func (s RunSummary) Failed() []TokenResult {
	failed := make([]TokenResult, 0)
	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Engine runs the per-token sync pipeline.
type Engine struct {
	cfg        Config
	deps       Deps
	backfiller *Backfiller
	logger     *zap.Logger
}

// NewEngine builds an Engine with its dependencies.
func NewEngine(cfg Config, deps Deps, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Step != 0 && !ValidStep(cfg.Step) {
		logger.Warn("step is not a whole number of hours, using default", zap.Duration("step", cfg.Step), zap.Duration("default", DefaultStep))
	}
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:        cfg,
		deps:       deps,
		backfiller: NewBackfiller(cfg, deps.Ledger, deps.Supply, deps.Oracle, logger),
		logger:     logger,
	}
}

// Run syncs every known token once. Tokens are processed one after another and
// a failing token does not stop the others; only listing tokens and ledger
// write failures abort the run.
func (e *Engine) Run(ctx context.Context) (RunSummary, error) {
	if err := e.validate(); err != nil {
		return RunSummary{}, err
	}

	start := time.Now()
	summary := RunSummary{StartedAt: e.cfg.Now().UTC()}
	defer func() {
		metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	tokens, err := e.deps.Oracle.ListLiquidRestakingTokens(ctx)
	if err != nil {
		return summary, fmt.Errorf("list tokens: %w", err)
	}
	tokens = e.selectTokens(tokens)
	e.logger.Info("sync run start", zap.Int("tokens", len(tokens)))

	pool := pond.NewPool(3)
	defer pool.StopAndWait()

	for _, token := range tokens {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result := e.syncTokenSafe(ctx, pool, token)
		summary.Results = append(summary.Results, result)

		if result.Err != nil {
			metrics.TokenFailures.WithLabelValues(token.Symbol).Inc()
			e.logger.Error("token sync failed",
				zap.String("token", token.Symbol),
				zap.String("stage", result.Stage),
				zap.Error(result.Err),
			)
			if errors.Is(result.Err, ledger.ErrWrite) {
				return summary, result.Err
			}
		}
	}

	summary.Duration = time.Since(start)
	e.logger.Info("sync run complete",
		zap.Int("tokens", len(summary.Results)),
		zap.Int("failed", len(summary.Failed())),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (e *Engine) validate() error {
	if e.deps.Ledger == nil {
		return fmt.Errorf("ledger is nil")
	}
	if e.deps.Oracle == nil {
		return fmt.Errorf("deposit oracle is nil")
	}
	if e.deps.Protocol == nil {
		return fmt.Errorf("protocol reader is nil")
	}
	if e.deps.Supply == nil {
		return fmt.Errorf("supply estimator is nil")
	}
	return nil
}

func (e *Engine) selectTokens(tokens []model.LiquidRestakingToken) []model.LiquidRestakingToken {
	if len(e.cfg.Tokens) == 0 {
		return tokens
	}
	allowed := make(map[string]struct{}, len(e.cfg.Tokens))
	for _, symbol := range e.cfg.Tokens {
		allowed[strings.ToLower(strings.TrimSpace(symbol))] = struct{}{}
	}
	selected := make([]model.LiquidRestakingToken, 0, len(tokens))
	for _, token := range tokens {
		if _, ok := allowed[strings.ToLower(token.Symbol)]; ok {
			selected = append(selected, token)
		}
	}
	return selected
}

// syncTokenSafe turns a panic in one token's pipeline into a failed result.
func (e *Engine) syncTokenSafe(ctx context.Context, pool pond.Pool, token model.LiquidRestakingToken) (result TokenResult) {
	result = TokenResult{Symbol: token.Symbol, Stage: StageLock}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("token sync panicked", zap.String("token", token.Symbol), zap.Any("panic", r), zap.Stack("stack"))
			result.Err = fmt.Errorf("panic in stage %s: %v", result.Stage, r)
		}
	}()

	result.Err = e.syncToken(ctx, pool, token, &result)
	return result
}

func (e *Engine) syncToken(ctx context.Context, pool pond.Pool, token model.LiquidRestakingToken, result *TokenResult) error {
	if e.deps.Locker != nil {
		lease, err := e.deps.Locker.Acquire(ctx, lock.TokenKey(e.cfg.ChainID, token.Symbol), e.cfg.LockTTL)
		if errors.Is(err, lock.ErrNotAcquired) {
			result.Locked = true
			result.Stage = StageDone
			e.logger.Info("token locked by another run, skipping", zap.String("token", token.Symbol))
			return nil
		}
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		defer e.release(lease, token.Symbol)
	}

	now := e.cfg.Now().UTC().Truncate(time.Second)

	liveCtx, cancelLive := context.WithCancel(ctx)
	defer cancelLive()
	live := startLiveReads(liveCtx, pool, e.deps.Protocol, token)

	result.Stage = StageSeed
	last, ok, err := e.deps.Ledger.Latest(ctx, e.cfg.ChainID, token.Symbol)
	if err != nil {
		return err
	}
	if !ok {
		last, err = e.deps.Ledger.Insert(ctx, ledger.SeedCandidate(e.cfg.ChainID, e.cfg.Asset, token))
		if err != nil {
			return fmt.Errorf("insert seed: %w", err)
		}
		result.Seeded = true
		metrics.EntriesWritten.WithLabelValues(token.Symbol, StageSeed).Inc()
		e.logger.Info("seeded token history", zap.String("token", token.Symbol), zap.Time("timestamp", last.Timestamp))
	}
	result.Latest = last

	result.Stage = StageBackfill
	last, result.Backfill, err = e.backfiller.Backfill(ctx, token, last, now.Add(-e.cfg.Step))
	result.Latest = last
	if err != nil {
		return err
	}

	result.Stage = StageCurrent
	if !now.After(last.Timestamp) || SameHour(last.Timestamp, now) {
		result.Stage = StageDone
		e.logger.Info("current hour already recorded", zap.String("token", token.Symbol), zap.Time("latest", last.Timestamp))
		return nil
	}

	state, err := live.wait()
	if err != nil {
		return err
	}

	stored, err := e.deps.Ledger.Insert(ctx, e.currentCandidate(token, state, now).Baseline(last))
	if err != nil {
		return fmt.Errorf("insert current entry: %w", err)
	}
	result.Latest = stored
	result.CurrentWritten = true
	result.Stage = StageDone
	metrics.EntriesWritten.WithLabelValues(token.Symbol, StageCurrent).Inc()
	metrics.LastExchangeRate.WithLabelValues(token.Symbol).Set(stored.ExchangeRate.InexactFloat64())

	e.logger.Info("current entry written",
		zap.String("token", token.Symbol),
		zap.Uint64("block", stored.BlockNumber),
		zap.String("exchange_rate", stored.ExchangeRate.String()),
	)
	return nil
}

func (e *Engine) release(lease lock.Lease, symbol string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		e.logger.Warn("release lock failed", zap.String("token", symbol), zap.Error(err))
	}
}

// currentCandidate prices the present from live state. A zero live reading
// falls back to the indexing service totals, and if either side is still
// zero the entry is written at 1:1.
func (e *Engine) currentCandidate(token model.LiquidRestakingToken, state liveState, now time.Time) model.RateCandidate {
	balance := amount.FromWei(state.tvl)
	supply := amount.FromWei(state.supply)

	if balance.Sign() <= 0 {
		balance = token.TotalValueETH
	}
	if supply.Sign() <= 0 {
		supply = token.TotalSupply
	}
	if supply.Sign() <= 0 || balance.Sign() <= 0 {
		if supply.Sign() <= 0 {
			supply = amount.One
		}
		balance = supply
		e.logger.Warn("zero tvl or supply, using 1:1 rate", zap.String("token", token.Symbol))
	}

	return model.RateCandidate{
		ChainID:              e.cfg.ChainID,
		Asset:                e.cfg.Asset,
		RestakingToken:       token.Symbol,
		AssetBalance:         balance,
		RestakingTokenSupply: supply,
		BlockNumber:          state.block,
		Timestamp:            now,
	}
}
