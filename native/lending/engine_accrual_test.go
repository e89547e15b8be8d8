package lending

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/holiman/uint256"
)

const year = SecondsPerYear * time.Second

func TestAccrualOverOneYear(t *testing.T) {
	f := newFixture(t, nil)
	f.deposit("lender", "USDC", usdc(10_000))
	f.deposit("borrower", "BTC", u(100_000_000))
	f.borrow("borrower", "USDC", usdc(5_000))

	f.clock.Advance(year)
	data, err := f.pool.ReserveData(f.ctx, "USDC")
	if err != nil {
		t.Fatalf("reserve data: %v", err)
	}
	upper := mustDecimal(t, "1025000000000000000000000000")
	lower := mustDecimal(t, "1024999999999999999900000000")
	if data.BorrowIndex.Cmp(upper) > 0 || data.BorrowIndex.Cmp(lower) < 0 {
		t.Fatalf("borrow index out of range: %s", data.BorrowIndex)
	}
	supplyUpper := mustDecimal(t, "1011250000000000000000000000")
	supplyLower := mustDecimal(t, "1011249999999999999900000000")
	if data.LiquidityIndex.Cmp(supplyUpper) > 0 || data.LiquidityIndex.Cmp(supplyLower) < 0 {
		t.Fatalf("liquidity index out of range: %s", data.LiquidityIndex)
	}
	if !data.TotalBorrowed.Eq(usdc(5_125)) {
		t.Fatalf("total borrowed: got %s want 5125 USDC", data.TotalBorrowed)
	}
	if !data.AccruedToTreasury.Eq(u(12_500_000)) {
		t.Fatalf("treasury accrual: got %s want 12.5 USDC", data.AccruedToTreasury)
	}

	// ReserveData is a projection and must not persist the accrual.
	if committed := f.reserve("USDC"); !committed.BorrowIndex.Eq(Ray) {
		t.Fatalf("view mutated committed reserve: %s", committed.BorrowIndex)
	}

	receipt, err := f.pool.Repay(f.ctx, "borrower", "USDC", usdc(100_000))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if !receipt.Amount.Eq(usdc(5_125)) {
		t.Fatalf("repaid amount: got %s want 5125 USDC", receipt.Amount)
	}
	if committed := f.reserve("USDC"); !committed.BorrowIndex.Eq(data.BorrowIndex) {
		t.Fatalf("repay did not commit accrual: %s", committed.BorrowIndex)
	}
}

func TestAccrueIsIdempotent(t *testing.T) {
	r := NewReserve("USDC", 100)
	r.TotalSuppliedScaled = usdc(1_000)
	r.TotalBorrowedScaled = usdc(800)
	model := DefaultInterestModel()

	r.Accrue(3_600, model, 1000)
	first := r.Clone()
	r.Accrue(3_600, model, 1000)
	if !r.BorrowIndex.Eq(first.BorrowIndex) || !r.LiquidityIndex.Eq(first.LiquidityIndex) {
		t.Fatalf("second accrual at the same timestamp changed indices")
	}
	if !r.AccruedToTreasury.Eq(first.AccruedToTreasury) {
		t.Fatalf("second accrual changed treasury")
	}

	r.Accrue(1_000, model, 1000)
	if r.LastUpdate != 3_600 || !r.BorrowIndex.Eq(first.BorrowIndex) {
		t.Fatalf("clock regression moved the reserve: last update %d", r.LastUpdate)
	}
}

func TestAccrueWithoutBorrowsOnlyAdvancesTimestamp(t *testing.T) {
	r := NewReserve("USDC", 10)
	r.TotalSuppliedScaled = usdc(1_000)
	r.Accrue(1_000_000, DefaultInterestModel(), 0)
	if r.LastUpdate != 1_000_000 {
		t.Fatalf("expected timestamp advance, got %d", r.LastUpdate)
	}
	if !r.LiquidityIndex.Eq(Ray) || !r.BorrowIndex.Eq(Ray) {
		t.Fatalf("indices moved without borrows")
	}
}

// TestIndicesMonotonicAndConserved drives a random operation sequence and
// checks index monotonicity and scaled-balance conservation after every step.
func TestIndicesMonotonicAndConserved(t *testing.T) {
	f := newFixture(t, nil)
	users := []string{"alice", "bob", "carol", "dave"}
	for _, user := range users {
		f.deposit(user, "USDC", usdc(5_000))
		f.deposit(user, "BTC", u(10_000_000))
	}
	rng := rand.New(rand.NewSource(7))
	prev := map[string]*Reserve{"USDC": f.reserve("USDC"), "BTC": f.reserve("BTC")}

	for step := 0; step < 400; step++ {
		f.clock.Advance(time.Duration(rng.Intn(86_400)) * time.Second)
		user := users[rng.Intn(len(users))]
		asset := []string{"USDC", "BTC"}[rng.Intn(2)]
		var amount *uint256.Int
		if asset == "USDC" {
			amount = usdc(uint64(1 + rng.Intn(2_000)))
		} else {
			amount = u(uint64(1 + rng.Intn(5_000_000)))
		}
		var err error
		switch rng.Intn(4) {
		case 0:
			_, err = f.pool.Deposit(f.ctx, user, asset, amount)
		case 1:
			_, err = f.pool.Withdraw(f.ctx, user, asset, amount)
		case 2:
			_, err = f.pool.Borrow(f.ctx, user, asset, amount)
		case 3:
			_, err = f.pool.Repay(f.ctx, user, asset, amount)
		}
		if err != nil && IsFatal(err) {
			t.Fatalf("step %d: fatal error %v", step, err)
		}

		for asset, before := range prev {
			now := f.reserve(asset)
			if now.LiquidityIndex.Cmp(before.LiquidityIndex) < 0 || now.BorrowIndex.Cmp(before.BorrowIndex) < 0 {
				t.Fatalf("step %d: %s index decreased", step, asset)
			}
			prev[asset] = now
		}
		assertConserved(t, f)
	}
}

func assertConserved(t *testing.T, f *fixture) {
	t.Helper()
	snapshot := f.pool.Snapshot()
	for _, r := range snapshot.Reserves {
		collateral, debt := zero(), zero()
		collateralReal, debtReal := zero(), zero()
		holders := uint64(0)
		for _, pos := range snapshot.Positions {
			if pos.Asset != r.Asset {
				continue
			}
			holders++
			collateral = add(collateral, pos.CollateralScaled)
			debt = add(debt, pos.DebtScaled)
			collateralReal = add(collateralReal, rayMul(pos.CollateralScaled, r.LiquidityIndex))
			debtReal = add(debtReal, rayMulUp(pos.DebtScaled, r.BorrowIndex))
		}
		if !collateral.Eq(r.TotalSuppliedScaled) || !debt.Eq(r.TotalBorrowedScaled) {
			t.Fatalf("%s scaled totals diverge: collateral %s/%s debt %s/%s",
				r.Asset, collateral, r.TotalSuppliedScaled, debt, r.TotalBorrowedScaled)
		}
		if diff := subFloor(r.TotalSupplied(), collateralReal); diff.Cmp(uint256.NewInt(holders)) > 0 {
			t.Fatalf("%s real collateral drift %s exceeds rounding", r.Asset, diff)
		}
		if diff := subFloor(debtReal, r.TotalBorrowed()); diff.Cmp(uint256.NewInt(holders)) > 0 {
			t.Fatalf("%s real debt drift %s exceeds rounding", r.Asset, diff)
		}
	}
}

func TestRejectedOperationLeavesNoAccrual(t *testing.T) {
	f := newFixture(t, nil)
	f.scenarioBorrower()
	before := f.reserve("USDC")
	f.clock.Advance(24 * time.Hour)
	if _, err := f.pool.Borrow(f.ctx, "borrower", "USDC", usdc(5_000)); !errors.Is(err, ErrHealthFactorTooLow) {
		t.Fatalf("expected ErrHealthFactorTooLow, got %v", err)
	}
	after := f.reserve("USDC")
	if after.LastUpdate != before.LastUpdate || !after.BorrowIndex.Eq(before.BorrowIndex) {
		t.Fatalf("rejected borrow committed accrual")
	}
}
