package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"credo/native/lending"
)

// Market is the runtime risk setup derived from the asset list.
type Market struct {
	Registry *lending.Registry
	Oracle   *lending.StaticOracle
	Model    *lending.InterestModel
	// Assets in configuration order, normalised.
	Assets []string
}

// Market builds the registry, seeds the oracle and constructs the rate model.
func (cfg *Config) Market() (*Market, error) {
	model := cfg.interestModel()
	if err := model.Validate(); err != nil {
		return nil, err
	}
	market := &Market{
		Registry: lending.NewRegistry(),
		Oracle:   lending.NewStaticOracle(),
		Model:    model,
	}
	if cfg.OracleMaxAge > 0 {
		market.Oracle.SetMaxAge(cfg.OracleMaxAge)
	}
	for _, asset := range cfg.Assets {
		risk := asset.riskConfig()
		if err := market.Registry.Set(risk); err != nil {
			return nil, fmt.Errorf("asset %s: %w", asset.Symbol, err)
		}
		symbol := lending.NormalizeAsset(asset.Symbol)
		market.Assets = append(market.Assets, symbol)
		price, err := asset.seedPrice()
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", symbol, err)
		}
		if price == nil {
			continue
		}
		if err := market.Oracle.SetPrice(symbol, price); err != nil {
			return nil, fmt.Errorf("asset %s: %w", symbol, err)
		}
	}
	return market, nil
}

func (cfg *Config) interestModel() *lending.InterestModel {
	m := cfg.InterestModel
	return lending.NewInterestModelBps(m.BaseBps, m.Slope1Bps, m.Slope2Bps, m.OptimalBps)
}

func (a Asset) riskConfig() lending.RiskConfig {
	return lending.RiskConfig{
		Asset: lending.Asset{
			Symbol:   lending.NormalizeAsset(a.Symbol),
			Decimals: a.Decimals,
			Active:   a.IsActive(),
		},
		LTVBps:                  a.LTVBps,
		LiquidationThresholdBps: a.LiquidationThresholdBps,
		LiquidationBonusBps:     a.LiquidationBonusBps,
		ReserveFactorBps:        a.ReserveFactorBps,
	}
}

// seedPrice returns nil when no price is configured.
func (a Asset) seedPrice() (*uint256.Int, error) {
	raw := strings.TrimSpace(a.Price)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("price %q: %w", raw, err)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("price %q must be positive", raw)
	}
	return lending.ParsePrice(d.String())
}
