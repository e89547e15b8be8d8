package lending

import (
	"errors"
	"testing"
)

func TestLiquidationImprovesHealth(t *testing.T) {
	f := newFixture(t, nil)
	f.scenarioBorrower()
	f.setPrice("BTC", usdPrice(42_000))

	before := f.healthFactor("borrower")
	if want := mustDecimal(t, "960000000000000000"); !before.Eq(want) {
		t.Fatalf("health factor before: got %s want %s", before, want)
	}
	receipt, err := f.pool.Liquidate(f.ctx, "liquidator", "BTC", "USDC", "borrower", usdc(100))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if !receipt.CollateralSeized.Eq(u(250_000)) {
		t.Fatalf("seized: got %s want 250000", receipt.CollateralSeized)
	}
	if receipt.HealthFactorAfter.Cmp(receipt.HealthFactorBefore) <= 0 {
		t.Fatalf("health factor did not improve: %s -> %s", receipt.HealthFactorBefore, receipt.HealthFactorAfter)
	}
	if want := mustDecimal(t, "980000000000000000"); !receipt.HealthFactorAfter.Eq(want) {
		t.Fatalf("health factor after: got %s want %s", receipt.HealthFactorAfter, want)
	}
	assertConserved(t, f)
}

func TestLiquidationCloseFactorRejectsByDefault(t *testing.T) {
	f := newFixture(t, nil)
	f.scenarioBorrower()
	f.setPrice("BTC", usdPrice(42_000))

	if _, err := f.pool.Liquidate(f.ctx, "liquidator", "BTC", "USDC", "borrower", usdc(351)); !errors.Is(err, ErrCloseFactorExceeded) {
		t.Fatalf("expected ErrCloseFactorExceeded, got %v", err)
	}
	if debt := f.pool.Position("borrower", "USDC").DebtScaled; !debt.Eq(usdc(700)) {
		t.Fatalf("rejected liquidation mutated debt: %s", debt)
	}
}

func TestLiquidationCloseFactorClampOptIn(t *testing.T) {
	f := newFixture(t, nil)
	opts := DefaultOptions()
	opts.ClampCloseFactor = true
	if err := f.pool.SetOptions(opts); err != nil {
		t.Fatalf("set options: %v", err)
	}
	f.scenarioBorrower()
	f.setPrice("BTC", usdPrice(42_000))

	receipt, err := f.pool.Liquidate(f.ctx, "liquidator", "BTC", "USDC", "borrower", usdc(700))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if !receipt.DebtCovered.Eq(usdc(350)) {
		t.Fatalf("debt covered: got %s want 350 USDC", receipt.DebtCovered)
	}
	if !receipt.CollateralSeized.Eq(u(875_000)) {
		t.Fatalf("seized: got %s want 875000", receipt.CollateralSeized)
	}
	if receipt.HealthFactorAfter.Cmp(receipt.HealthFactorBefore) <= 0 {
		t.Fatalf("health factor did not improve")
	}
}

func TestLiquidationClampsSeizeToCollateral(t *testing.T) {
	f := newFixture(t, nil)
	f.deposit("lender", "USDC", usdc(10_000))
	f.deposit("borrower", "BTC", u(2_000_000))
	f.deposit("borrower", "USDC", usdc(100))
	f.borrow("borrower", "USDC", usdc(700))
	f.setPrice("BTC", usdPrice(30_000))

	receipt, err := f.pool.Liquidate(f.ctx, "liquidator", "USDC", "USDC", "borrower", usdc(200))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if !receipt.CollateralSeized.Eq(usdc(100)) {
		t.Fatalf("seized: got %s want all 100 USDC", receipt.CollateralSeized)
	}
	// 100 USDC of collateral at a 5% bonus buys 95.238096 USDC of debt.
	if !receipt.DebtCovered.Eq(u(95_238_096)) {
		t.Fatalf("debt covered: got %s want 95238096", receipt.DebtCovered)
	}
	if !receipt.BorrowerCollateralScaled.IsZero() {
		t.Fatalf("expected USDC collateral exhausted, got %s", receipt.BorrowerCollateralScaled)
	}
	if !receipt.BorrowerDebtScaled.Eq(u(604_761_904)) {
		t.Fatalf("remaining debt: got %s", receipt.BorrowerDebtScaled)
	}
	assertConserved(t, f)
}

func TestLiquidationGuards(t *testing.T) {
	f := newFixture(t, nil)
	f.scenarioBorrower()

	if _, err := f.pool.Liquidate(f.ctx, "liquidator", "BTC", "USDC", "borrower", usdc(100)); !errors.Is(err, ErrBorrowerNotLiquidatable) {
		t.Fatalf("expected ErrBorrowerNotLiquidatable, got %v", err)
	}
	f.setPrice("BTC", usdPrice(35_000))
	if _, err := f.pool.Liquidate(f.ctx, "borrower", "BTC", "USDC", "borrower", usdc(100)); !errors.Is(err, ErrSelfLiquidation) {
		t.Fatalf("expected ErrSelfLiquidation, got %v", err)
	}
	if _, err := f.pool.Liquidate(f.ctx, "liquidator", "BTC", "BTC", "borrower", u(1)); !errors.Is(err, ErrNoDebtToRepay) {
		t.Fatalf("expected ErrNoDebtToRepay, got %v", err)
	}
	if _, err := f.pool.Liquidate(f.ctx, "liquidator", "DOGE", "USDC", "borrower", usdc(1)); !errors.Is(err, ErrAssetNotSupported) {
		t.Fatalf("expected ErrAssetNotSupported, got %v", err)
	}
	if _, err := f.pool.Liquidate(f.ctx, "liquidator", "USDC", "USDC", "borrower", usdc(1)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral without collateral in asset, got %v", err)
	}
}

func TestRepayOnBehalfRecordsPayer(t *testing.T) {
	f := newFixture(t, nil)
	f.scenarioBorrower()
	receipt, err := f.pool.RepayOnBehalf(f.ctx, "friend", "borrower", "USDC", usdc(200))
	if err != nil {
		t.Fatalf("repay on behalf: %v", err)
	}
	if receipt.User != "borrower" || !receipt.DebtScaled.Eq(usdc(500)) {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	last := f.events.events[len(f.events.events)-1]
	if got := last.EventType(); got != "lending.repay" {
		t.Fatalf("unexpected event %s", got)
	}
}
