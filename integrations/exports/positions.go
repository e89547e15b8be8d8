// Package exports renders position reports from a loaded ledger.
package exports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/holiman/uint256"

	"credo/native/lending"
)

// Source is the ledger view needed to build a report. *lending.Pool
// satisfies it.
type Source interface {
	Snapshot() *lending.Snapshot
	AccountData(ctx context.Context, user string) (*lending.AccountData, error)
}

// Row is one user's balance in one asset, valued at current oracle prices.
type Row struct {
	User          string
	Asset         string
	Decimals      uint8
	Collateral    *uint256.Int
	Debt          *uint256.Int
	CollateralUSD *uint256.Int
	DebtUSD       *uint256.Int
	HealthFactor  *uint256.Int
}

// CollectPositions walks every user with a persisted position and returns a
// row per non-empty balance, ordered by user then asset.
func CollectPositions(ctx context.Context, src Source, registry lending.RiskRegistry) ([]Row, error) {
	snap := src.Snapshot()
	seen := make(map[string]struct{})
	users := make([]string, 0)
	for _, pos := range snap.Positions {
		if pos.Empty() {
			continue
		}
		if _, ok := seen[pos.User]; ok {
			continue
		}
		seen[pos.User] = struct{}{}
		users = append(users, pos.User)
	}
	sort.Strings(users)

	rows := make([]Row, 0, len(users))
	for _, user := range users {
		data, err := src.AccountData(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("exports: account %s: %w", user, err)
		}
		for _, bal := range data.Balances {
			if isZero(bal.Collateral) && isZero(bal.Debt) {
				continue
			}
			var decimals uint8
			if cfg, ok := registry.Lookup(bal.Asset); ok {
				decimals = cfg.Decimals
			}
			rows = append(rows, Row{
				User:          user,
				Asset:         bal.Asset,
				Decimals:      decimals,
				Collateral:    bal.Collateral,
				Debt:          bal.Debt,
				CollateralUSD: bal.CollateralUSD,
				DebtUSD:       bal.DebtUSD,
				HealthFactor:  data.HealthFactor,
			})
		}
	}
	return rows, nil
}

// WriteReport writes name.csv and name.parquet under dir and returns both
// paths.
func WriteReport(dir, name string, rows []Row) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("exports: create %s: %w", dir, err)
	}
	data, _, err := PositionsCSV(rows)
	if err != nil {
		return "", "", err
	}
	csvPath := filepath.Join(dir, name+".csv")
	if err := os.WriteFile(csvPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("exports: write csv: %w", err)
	}
	parquetPath := filepath.Join(dir, name+".parquet")
	if err := WritePositionsParquet(parquetPath, rows); err != nil {
		return "", "", err
	}
	return csvPath, parquetPath, nil
}

func isZero(v *uint256.Int) bool { return v == nil || v.IsZero() }

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
