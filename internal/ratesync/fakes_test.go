package ratesync

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restakeRates/internal/amount"
	"restakeRates/internal/ledger"
	"restakeRates/internal/lock"
	"restakeRates/internal/model"
)

// memStore mirrors the Postgres store: rows are unique per token and timestamp.
type memStore struct {
	mu        sync.Mutex
	rows      []model.RateEntry
	insertErr error
}

func (s *memStore) LatestRate(_ context.Context, chainID uint64, token string) (model.RateEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		latest model.RateEntry
		found  bool
	)
	for _, row := range s.rows {
		if row.ChainID != chainID || row.RestakingToken != token {
			continue
		}
		if !found || row.Timestamp.After(latest.Timestamp) {
			latest, found = row, true
		}
	}
	return latest, found, nil
}

func (s *memStore) InsertRate(_ context.Context, entry model.RateEntry) (model.RateEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return model.RateEntry{}, s.insertErr
	}
	for _, row := range s.rows {
		if row.ChainID == entry.ChainID && row.RestakingToken == entry.RestakingToken && row.Timestamp.Equal(entry.Timestamp) {
			return row, nil
		}
	}
	entry.ID = int64(len(s.rows) + 1)
	entry.CreatedAt = time.Now().UTC()
	s.rows = append(s.rows, entry)
	return entry, nil
}

func (s *memStore) history(token string) []model.RateEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.RateEntry, 0)
	for _, row := range s.rows {
		if row.RestakingToken == token {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

type fakeSupply struct {
	values map[string]decimal.Decimal
	err    error
}

func (f *fakeSupply) SupplyAsOf(_ context.Context, _ uint64, tokenAddress string, _ time.Time) (decimal.Decimal, bool, error) {
	if f.err != nil {
		return decimal.Zero, false, f.err
	}
	v, ok := f.values[tokenAddress]
	return v, ok, nil
}

type depositFunc func(token model.LiquidRestakingToken, at time.Time) (model.DepositSample, bool, error)

type fakeOracle struct {
	tokens   []model.LiquidRestakingToken
	listErr  error
	deposits depositFunc

	mu    sync.Mutex
	calls []time.Time
}

func (f *fakeOracle) ListLiquidRestakingTokens(context.Context) ([]model.LiquidRestakingToken, error) {
	return f.tokens, f.listErr
}

func (f *fakeOracle) ClosestDeposit(_ context.Context, token model.LiquidRestakingToken, at time.Time, _ decimal.Decimal) (model.DepositSample, bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, at)
	f.mu.Unlock()
	if f.deposits == nil {
		return model.DepositSample{}, false, nil
	}
	return f.deposits(token, at)
}

// everyHour returns a sample at the requested instant with fixed amounts.
func everyHour(in, out string) depositFunc {
	return func(_ model.LiquidRestakingToken, at time.Time) (model.DepositSample, bool, error) {
		return model.DepositSample{
			AmountIn:    decimal.RequireFromString(in),
			AmountOut:   decimal.RequireFromString(out),
			BlockNumber: uint64(at.Unix() / 12),
			Timestamp:   at,
		}, true, nil
	}
}

type fakeProtocol struct {
	block     uint64
	tvl       map[string]*big.Int
	supply    map[string]*big.Int
	tvlErr    map[string]error
	panicOnTV string
}

func (f *fakeProtocol) CurrentBlock(context.Context) (uint64, error) {
	return f.block, nil
}

func (f *fakeProtocol) TVL(_ context.Context, registry string) (*big.Int, error) {
	if registry == f.panicOnTV {
		panic("registry exploded")
	}
	if err := f.tvlErr[registry]; err != nil {
		return nil, err
	}
	if v, ok := f.tvl[registry]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeProtocol) TotalSupply(_ context.Context, token string) (*big.Int, error) {
	if v, ok := f.supply[token]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

type fakeLocker struct {
	held map[string]bool
}

type fakeLease struct {
	locker *fakeLocker
	key    string
}

func (l *fakeLease) Release(context.Context) error {
	delete(l.locker.held, l.key)
	return nil
}

func (f *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (lock.Lease, error) {
	if f.held[key] {
		return nil, lock.ErrNotAcquired
	}
	f.held[key] = true
	return &fakeLease{locker: f, key: key}, nil
}

func wei(human string) *big.Int {
	return amount.ToWei(decimal.RequireFromString(human))
}

func testToken(symbol, addr, registry string, created int64) model.LiquidRestakingToken {
	return model.LiquidRestakingToken{
		ID:               addr,
		Symbol:           symbol,
		Address:          addr,
		Deployment:       model.Deployment{AssetRegistry: registry},
		CreatedTimestamp: time.Unix(created, 0).UTC(),
	}
}

func testConfig(now int64) Config {
	return Config{
		ChainID:     1,
		Asset:       "ETH",
		Step:        DefaultStep,
		AlignOffset: DefaultAlignOffset,
		MinDeposit:  decimal.RequireFromString("0.001"),
		Now:         func() time.Time { return time.Unix(now, 0).UTC() },
	}
}

// assertLedgerInvariants checks ordering, rate consistency and rate of change
// over a token's full history.
func assertLedgerInvariants(t *testing.T, history []model.RateEntry) {
	t.Helper()
	for i, entry := range history {
		want, err := amount.WeiRatio(entry.AssetBalance, entry.RestakingTokenSupply, amount.RateScale)
		require.NoError(t, err)
		assert.True(t, entry.ExchangeRate.Equal(want), "entry %d rate %s != %s", i, entry.ExchangeRate, want)

		if i == 0 {
			continue
		}
		prev := history[i-1]
		require.True(t, entry.Timestamp.After(prev.Timestamp), "entry %d not after previous", i)
		require.Greater(t, entry.ID, prev.ID, "entry %d written before an earlier timestamp", i)

		prevTs := prev.Timestamp
		rps := ledger.RatePerSecond(entry.ExchangeRate, prev.ExchangeRate, entry.Timestamp, &prevTs)
		assert.True(t, entry.RatePerSecond.Equal(rps), "entry %d rate per second %s != %s", i, entry.RatePerSecond, rps)
	}
}

var errUpstream = errors.New("upstream unavailable")
