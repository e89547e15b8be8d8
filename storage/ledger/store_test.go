package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"credo/native/lending"
	"credo/storage"
)

func newPool(t *testing.T, store lending.Store, clock func() time.Time) *lending.Pool {
	t.Helper()
	registry := lending.NewRegistry()
	for _, cfg := range []lending.RiskConfig{
		{Asset: lending.Asset{Symbol: "USDC", Decimals: 6, Active: true}, LTVBps: 7500, LiquidationThresholdBps: 8000, LiquidationBonusBps: 10500, ReserveFactorBps: 1000},
		{Asset: lending.Asset{Symbol: "BTC", Decimals: 8, Active: true}, LTVBps: 7500, LiquidationThresholdBps: 8000, LiquidationBonusBps: 10500, ReserveFactorBps: 1000},
	} {
		require.NoError(t, registry.Set(cfg))
	}
	oracle := lending.NewStaticOracle()
	require.NoError(t, oracle.SetPrice("USDC", uint256.NewInt(100_000_000)))
	require.NoError(t, oracle.SetPrice("BTC", uint256.NewInt(5_000_000_000_000)))
	pool := lending.NewPool(registry, oracle, nil)
	pool.SetClock(clock)
	pool.SetStore(store)
	require.NoError(t, pool.Load(context.Background()))
	return pool
}

func drive(t *testing.T, pool *lending.Pool, advance func()) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, pool.ListReserve(ctx, "USDC"))
	require.NoError(t, pool.ListReserve(ctx, "BTC"))
	_, err := pool.Deposit(ctx, "lender", "USDC", uint256.NewInt(10_000_000_000))
	require.NoError(t, err)
	_, err = pool.Deposit(ctx, "borrower", "BTC", uint256.NewInt(2_000_000))
	require.NoError(t, err)
	_, err = pool.Borrow(ctx, "borrower", "USDC", uint256.NewInt(700_000_000))
	require.NoError(t, err)
	advance()
	_, err = pool.Repay(ctx, "borrower", "USDC", uint256.NewInt(100_000_000))
	require.NoError(t, err)
}

func TestStoreRoundTripsPoolState(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	db := storage.NewMemDB()
	store := New(db)
	pool := newPool(t, store, clock)
	drive(t, pool, func() { now = now.Add(45 * 24 * time.Hour) })

	reloaded := newPool(t, New(db), clock)
	require.Equal(t, pool.Snapshot(), reloaded.Snapshot())

	want, err := pool.HealthFactor(context.Background(), "borrower")
	require.NoError(t, err)
	got, err := reloaded.HealthFactor(context.Background(), "borrower")
	require.NoError(t, err)
	require.True(t, want.Eq(got), "health factor %s != %s", got, want)
}

func TestStoreKeepsFullPrecision(t *testing.T) {
	db := storage.NewMemDB()
	store := New(db)
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 250)
	huge.AddUint64(huge, 12345)
	reserve := lending.NewReserve("ETH", 99)
	reserve.LiquidityIndex = huge
	require.NoError(t, store.Commit(context.Background(), &lending.Snapshot{Reserves: []*lending.Reserve{reserve}}))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded.Reserves, 1)
	require.True(t, loaded.Reserves[0].LiquidityIndex.Eq(huge))
	require.Equal(t, uint64(99), loaded.Reserves[0].LastUpdate)
	require.Equal(t, "ETH", loaded.Reserves[0].Asset)
}

func TestDigestMatchesAcrossBackends(t *testing.T) {
	run := func(db storage.Database) [32]byte {
		now := time.Unix(1_700_000_000, 0)
		store := New(db)
		pool := newPool(t, store, func() time.Time { return now })
		drive(t, pool, func() { now = now.Add(time.Hour) })
		digest, err := store.Digest()
		require.NoError(t, err)
		return digest
	}
	level, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	defer level.Close()

	require.Equal(t, run(storage.NewMemDB()), run(level))

	empty, err := New(storage.NewMemDB()).Digest()
	require.NoError(t, err)
	require.NotEqual(t, empty, run(storage.NewMemDB()))
}

func TestKeys(t *testing.T) {
	require.Equal(t, "lending/reserve/USDC", string(ReserveKey("usdc")))
	require.Equal(t, "lending/position/alice/BTC", string(PositionKey("alice", "btc")))
}
