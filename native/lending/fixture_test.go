package lending

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"credo/core/events"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recorder struct {
	events []events.Event
}

func (r *recorder) Emit(e events.Event) { r.events = append(r.events, e) }

func (r *recorder) types() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool {
	if s.modules == nil {
		return false
	}
	return s.modules[module]
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	pool     *Pool
	registry *Registry
	oracle   *StaticOracle
	clock    *testClock
	store    *MemoryStore
	events   *recorder
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func usdc(whole uint64) *uint256.Int { return uint256.NewInt(whole * 1_000_000) }

func usdPrice(whole uint64) *uint256.Int { return uint256.NewInt(whole * 100_000_000) }

func riskConfig(symbol string, decimals uint8) RiskConfig {
	return RiskConfig{
		Asset:                   Asset{Symbol: symbol, Decimals: decimals, Active: true},
		LTVBps:                  7500,
		LiquidationThresholdBps: 8000,
		LiquidationBonusBps:     10500,
		ReserveFactorBps:        1000,
	}
}

// newFixture lists USDC (6 decimals, $1) and BTC (8 decimals, $50,000) on a
// pool with a frozen clock.
func newFixture(t *testing.T, model RateModel) *fixture {
	t.Helper()
	registry := NewRegistry()
	for _, cfg := range []RiskConfig{riskConfig("USDC", 6), riskConfig("BTC", 8)} {
		if err := registry.Set(cfg); err != nil {
			t.Fatalf("register %s: %v", cfg.Symbol, err)
		}
	}
	oracle := NewStaticOracle()
	if err := oracle.SetPrice("USDC", usdPrice(1)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if err := oracle.SetPrice("BTC", usdPrice(50_000)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore()
	rec := &recorder{}
	pool := NewPool(registry, oracle, model)
	pool.SetClock(clock.Now)
	pool.SetStore(store)
	pool.SetEmitter(rec)
	pool.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		pool:     pool,
		registry: registry,
		oracle:   oracle,
		clock:    clock,
		store:    store,
		events:   rec,
	}
	for _, asset := range []string{"USDC", "BTC"} {
		if err := pool.ListReserve(f.ctx, asset); err != nil {
			t.Fatalf("list %s: %v", asset, err)
		}
	}
	return f
}

func (f *fixture) deposit(user, asset string, amount *uint256.Int) *Receipt {
	f.t.Helper()
	receipt, err := f.pool.Deposit(f.ctx, user, asset, amount)
	if err != nil {
		f.t.Fatalf("deposit %s %s %s: %v", user, amount, asset, err)
	}
	return receipt
}

func (f *fixture) borrow(user, asset string, amount *uint256.Int) *Receipt {
	f.t.Helper()
	receipt, err := f.pool.Borrow(f.ctx, user, asset, amount)
	if err != nil {
		f.t.Fatalf("borrow %s %s %s: %v", user, amount, asset, err)
	}
	return receipt
}

func (f *fixture) setPrice(asset string, price *uint256.Int) {
	f.t.Helper()
	if err := f.oracle.SetPrice(asset, price); err != nil {
		f.t.Fatalf("set price %s: %v", asset, err)
	}
}

func (f *fixture) healthFactor(user string) *uint256.Int {
	f.t.Helper()
	hf, err := f.pool.HealthFactor(f.ctx, user)
	if err != nil {
		f.t.Fatalf("health factor %s: %v", user, err)
	}
	return hf
}

func (f *fixture) reserve(asset string) *Reserve {
	f.t.Helper()
	f.pool.mu.Lock()
	defer f.pool.mu.Unlock()
	r, ok := f.pool.reserves[asset]
	if !ok {
		f.t.Fatalf("reserve %s not listed", asset)
	}
	return r.Clone()
}

// scenarioBorrower seeds the lender with 10,000 USDC and the borrower with
// 0.02 BTC collateral and 700 USDC of debt.
func (f *fixture) scenarioBorrower() {
	f.t.Helper()
	f.deposit("lender", "USDC", usdc(10_000))
	f.deposit("borrower", "BTC", u(2_000_000))
	f.borrow("borrower", "USDC", usdc(700))
}

func mustDecimal(t *testing.T, v string) *uint256.Int {
	t.Helper()
	out, err := uint256.FromDecimal(v)
	if err != nil {
		t.Fatalf("decimal %s: %v", v, err)
	}
	return out
}
