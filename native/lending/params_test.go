package lending

import (
	"errors"
	"reflect"
	"testing"
)

func TestRiskConfigValidate(t *testing.T) {
	valid := riskConfig("usdc", 6)
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	mutate := func(fn func(*RiskConfig)) RiskConfig {
		cfg := valid
		fn(&cfg)
		return cfg
	}
	cases := map[string]RiskConfig{
		"empty symbol":        mutate(func(c *RiskConfig) { c.Symbol = " " }),
		"zero ltv":            mutate(func(c *RiskConfig) { c.LTVBps = 0 }),
		"ltv at threshold":    mutate(func(c *RiskConfig) { c.LTVBps = c.LiquidationThresholdBps }),
		"threshold above one": mutate(func(c *RiskConfig) { c.LTVBps = 9000; c.LiquidationThresholdBps = 10_001 }),
		"bonus below one":     mutate(func(c *RiskConfig) { c.LiquidationBonusBps = 9_999 }),
		"bonus too large":     mutate(func(c *RiskConfig) { c.LiquidationBonusBps = 12_600 }),
		"reserve factor":      mutate(func(c *RiskConfig) { c.ReserveFactorBps = 10_001 }),
		"decimals":            mutate(func(c *RiskConfig) { c.Decimals = 37 }),
		"slash in symbol":     mutate(func(c *RiskConfig) { c.Symbol = "B/C" }),
		"nul in symbol":       mutate(func(c *RiskConfig) { c.Symbol = "B\x00C" }),
		"space in symbol":     mutate(func(c *RiskConfig) { c.Symbol = "US DC" }),
	}
	for _, symbol := range []string{"wBTC.e", "USDC_E", "ST-ETH"} {
		if err := mutate(func(c *RiskConfig) { c.Symbol = symbol }).Validate(); err != nil {
			t.Fatalf("%s rejected: %v", symbol, err)
		}
	}
	for name, cfg := range cases {
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidRiskConfig) {
			t.Fatalf("%s: expected ErrInvalidRiskConfig, got %v", name, err)
		}
	}
}

func TestRegistryConfigAndLookup(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Set(riskConfig(" btc ", 8)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := registry.Set(riskConfig("usdc", 6)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := registry.Assets(); !reflect.DeepEqual(got, []string{"BTC", "USDC"}) {
		t.Fatalf("assets: %v", got)
	}
	if _, err := registry.Config("Btc"); err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := registry.SetActive("BTC", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := registry.Config("BTC"); !errors.Is(err, ErrAssetNotSupported) {
		t.Fatalf("expected inactive asset rejected, got %v", err)
	}
	if cfg, ok := registry.Lookup("BTC"); !ok || cfg.Active {
		t.Fatalf("lookup should return the inactive config: %+v %v", cfg, ok)
	}
	if err := registry.SetActive("DOGE", true); !errors.Is(err, ErrAssetNotSupported) {
		t.Fatalf("expected unknown asset error, got %v", err)
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("default options invalid: %v", err)
	}
	bad := []Options{
		{CloseFactorBps: 0, BorrowGate: BorrowGateThreshold},
		{CloseFactorBps: 10_001, BorrowGate: BorrowGateThreshold},
		{CloseFactorBps: 5_000, BorrowGate: "loose"},
		{CloseFactorBps: 5_000, BorrowGate: BorrowGateLTV, FlashLoanFeeBps: 10_001},
	}
	for i, opts := range bad {
		if err := opts.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
