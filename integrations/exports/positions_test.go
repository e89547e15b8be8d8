package exports

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"credo/native/lending"
)

func seededPool(t *testing.T) (*lending.Pool, *lending.Registry) {
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
	pool.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })

	ctx := context.Background()
	require.NoError(t, pool.ListReserve(ctx, "USDC"))
	require.NoError(t, pool.ListReserve(ctx, "BTC"))
	_, err := pool.Deposit(ctx, "lender", "USDC", uint256.NewInt(10_000_000_000))
	require.NoError(t, err)
	_, err = pool.Deposit(ctx, "borrower", "BTC", uint256.NewInt(2_000_000))
	require.NoError(t, err)
	_, err = pool.Borrow(ctx, "borrower", "USDC", uint256.NewInt(700_000_000))
	require.NoError(t, err)
	return pool, registry
}

func TestCollectPositions(t *testing.T) {
	pool, registry := seededPool(t)
	rows, err := CollectPositions(context.Background(), pool, registry)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Equal(t, "borrower", rows[0].User)
	require.Equal(t, "BTC", rows[0].Asset)
	require.Equal(t, uint8(8), rows[0].Decimals)
	require.Equal(t, "borrower", rows[1].User)
	require.Equal(t, "USDC", rows[1].Asset)
	require.True(t, rows[1].Debt.Eq(uint256.NewInt(700_000_000)))
	require.Equal(t, "lender", rows[2].User)
	require.True(t, rows[2].HealthFactor.Eq(lending.MaxHealthFactor))
}

func TestPositionsCSVAndJSONL(t *testing.T) {
	pool, registry := seededPool(t)
	rows, err := CollectPositions(context.Background(), pool, registry)
	require.NoError(t, err)

	data, checksum, err := PositionsCSV(rows)
	require.NoError(t, err)
	require.Len(t, checksum, 64)
	output := string(data)
	require.True(t, strings.HasPrefix(output, strings.Join(csvHeader, ",")+"\n"))
	require.Contains(t, output, "borrower,USDC,0,0,700000000,700,0,700,1.142857142857142857")
	require.Contains(t, output, ",inf\n")

	lines, sum, err := PositionsJSONL(rows)
	require.NoError(t, err)
	require.NotEqual(t, checksum, sum)
	require.Equal(t, len(rows), strings.Count(string(lines), "\n"))
	require.Contains(t, string(lines), `"collateralUsd":"1000"`)
}

func TestWriteReportRoundTripsParquet(t *testing.T) {
	pool, registry := seededPool(t)
	rows, err := CollectPositions(context.Background(), pool, registry)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "reports")
	csvPath, parquetPath, err := WriteReport(dir, "positions", rows)
	require.NoError(t, err)
	require.FileExists(t, csvPath)
	info, err := os.Stat(parquetPath)
	require.NoError(t, err)
	require.Positive(t, info.Size())

	fr, err := local.NewLocalFileReader(parquetPath)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(len(rows)), pr.GetNumRows())
	got := make([]parquetRow, len(rows))
	require.NoError(t, pr.Read(&got))
	require.Equal(t, "borrower", got[1].User)
	require.Equal(t, "700000000", got[1].Debt)
	require.Equal(t, int32(6), got[1].Decimals)
}
