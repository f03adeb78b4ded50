package postgres

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"restakeRates/internal/lock"
	"restakeRates/internal/model"
)

// setupStore starts a PostgreSQL container and applies the migrations.
func setupStore(t *testing.T) *Store {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	store, err := NewStore(ctx, dsn)
	require.NoError(t, err, "failed to create store")
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx))
	return store
}

func weiOf(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

func rateEntry(ts int64, rate string) model.RateEntry {
	return model.RateEntry{
		ChainID:              1,
		Asset:                "ETH",
		AssetBalance:         weiOf("1020408163265306122448"),
		RestakingToken:       "reETH",
		RestakingTokenSupply: weiOf("1000000000000000000000"),
		ExchangeRate:         decimal.RequireFromString(rate),
		RatePerSecond:        decimal.RequireFromString("-0.000000000000000000000001"),
		BlockNumber:          19_000_000,
		Timestamp:            time.Unix(ts, 0).UTC(),
	}
}

func TestStoreRates(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, ok, err := store.LatestRate(ctx, 1, "reETH")
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := store.InsertRate(ctx, rateEntry(1_001_100, "1.020408163265306122448"))
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second, err := store.InsertRate(ctx, rateEntry(1_004_700, "1.03"))
	require.NoError(t, err)

	latest, ok, err := store.LatestRate(ctx, 1, "reETH")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, time.Unix(1_004_700, 0).UTC(), latest.Timestamp)
	assert.Equal(t, "1020408163265306122448", latest.AssetBalance.String())
	assert.True(t, latest.ExchangeRate.Equal(decimal.RequireFromString("1.03")))
	assert.True(t, latest.RatePerSecond.Equal(decimal.RequireFromString("-0.000000000000000000000001")))

	_, ok, err = store.LatestRate(ctx, 2, "reETH")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreInsertRateConflictReturnsExisting(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first, err := store.InsertRate(ctx, rateEntry(1_001_100, "1.02"))
	require.NoError(t, err)

	again, err := store.InsertRate(ctx, rateEntry(1_001_100, "1.5"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.ExchangeRate.Equal(decimal.RequireFromString("1.02")))
}

func TestStoreSupplyAsOf(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	token := "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

	_, ok, err := store.SupplyAsOf(ctx, 1, token, time.Unix(2_000_000, 0))
	require.NoError(t, err)
	assert.False(t, ok)

	transfers := []model.TransferRecord{
		{ChainID: 1, Token: token, TxHash: "0x01", LogIndex: 0, From: model.ZeroAddress, To: "0xbeef", Value: weiOf("5000000000000000000"), BlockNumber: 10, Timestamp: time.Unix(1_000_000, 0)},
		{ChainID: 1, Token: token, TxHash: "0x02", LogIndex: 1, From: "0xbeef", To: model.ZeroAddress, Value: weiOf("1500000000000000000"), BlockNumber: 11, Timestamp: time.Unix(1_000_100, 0)},
		{ChainID: 1, Token: token, TxHash: "0x03", LogIndex: 0, From: model.ZeroAddress, To: "0xbeef", Value: weiOf("2000000000000000000"), BlockNumber: 20, Timestamp: time.Unix(1_010_000, 0)},
	}
	require.NoError(t, store.UpsertTransfers(ctx, transfers))
	require.NoError(t, store.UpsertTransfers(ctx, transfers[:1]))

	supply, ok, err := store.SupplyAsOf(ctx, 1, token, time.Unix(1_000_100, 0))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, supply.Equal(decimal.RequireFromString("3.5")), "got %s", supply)

	supply, ok, err = store.SupplyAsOf(ctx, 1, token, time.Unix(1_020_000, 0))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, supply.Equal(decimal.RequireFromString("5.5")), "got %s", supply)

	_, ok, err = store.SupplyAsOf(ctx, 1, token, time.Unix(999_999, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreState(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, ok, err := store.LoadState(ctx, "transfers:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveState(ctx, "transfers:1", 100))
	require.NoError(t, store.SaveState(ctx, "transfers:1", 250))

	block, ok, err := store.LoadState(ctx, "transfers:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(250), block)
}

func TestLeaseLocker(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	locker := store.Leases()
	key := lock.TokenKey(1, "reETH")

	held, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	require.NoError(t, held.Release(ctx))

	expiring, err := locker.Acquire(ctx, key, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	taken, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err, "expired lease must be taken over")

	require.NoError(t, expiring.Release(ctx))
	_, err = locker.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, lock.ErrNotAcquired, "stale owner must not release the new lease")

	require.NoError(t, taken.Release(ctx))
}
