package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"credo/native/lending"
	"credo/observability"
)

type reserveSource interface {
	Listed() []string
	ReserveData(ctx context.Context, asset string) (*lending.ReserveData, error)
}

// recordReserves pushes every listed reserve into the gauges.
func recordReserves(ctx context.Context, src reserveSource, m *observability.LendingMetrics, logger *slog.Logger) {
	for _, asset := range src.Listed() {
		data, err := src.ReserveData(ctx, asset)
		if err != nil {
			logger.Warn("reserve gauge refresh failed", slog.String("asset", asset), slog.Any("error", err))
			continue
		}
		m.RecordReserve(asset,
			toFloat(data.Utilization, 27),
			toFloat(data.TotalSupplied, data.Decimals),
			toFloat(data.TotalBorrowed, data.Decimals))
	}
}

func toFloat(v *uint256.Int, decimals uint8) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v.ToBig(), -int32(decimals)).InexactFloat64()
}

// refreshReserves records reserve gauges every interval until ctx ends.
func refreshReserves(ctx context.Context, interval time.Duration, src reserveSource, m *observability.LendingMetrics, logger *slog.Logger) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	recordReserves(ctx, src, m, logger)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			recordReserves(ctx, src, m, logger)
		}
	}
}
