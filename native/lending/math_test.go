package lending

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func expectOverflow(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		err, ok := recover().(error)
		if !ok || !errors.Is(err, ErrArithmeticOverflow) {
			t.Fatalf("expected arithmetic overflow panic, got %v", err)
		}
	}()
	fn()
}

func TestCheckedArithmeticPanics(t *testing.T) {
	maxInt := new(uint256.Int).SetAllOne()
	expectOverflow(t, func() { add(maxInt, uint256.NewInt(1)) })
	expectOverflow(t, func() { sub(uint256.NewInt(1), uint256.NewInt(2)) })
	expectOverflow(t, func() { mul(maxInt, uint256.NewInt(2)) })
	expectOverflow(t, func() { mulDiv(maxInt, maxInt, uint256.NewInt(1)) })
	expectOverflow(t, func() { mulDiv(uint256.NewInt(1), uint256.NewInt(1), zero()) })
}

func TestMulDivRounding(t *testing.T) {
	if got := mulDiv(uint256.NewInt(10), uint256.NewInt(1), uint256.NewInt(3)); !got.Eq(uint256.NewInt(3)) {
		t.Fatalf("mulDiv floor: %s", got)
	}
	if got := mulDivUp(uint256.NewInt(10), uint256.NewInt(1), uint256.NewInt(3)); !got.Eq(uint256.NewInt(4)) {
		t.Fatalf("mulDivUp ceil: %s", got)
	}
	if got := mulDivUp(uint256.NewInt(9), uint256.NewInt(1), uint256.NewInt(3)); !got.Eq(uint256.NewInt(3)) {
		t.Fatalf("mulDivUp exact: %s", got)
	}
	// The intermediate product exceeds 256 bits but the quotient fits.
	big := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	if got := mulDiv(big, big, big); !got.Eq(big) {
		t.Fatalf("wide mulDiv: %s", got)
	}
}

func TestUSDValueRounding(t *testing.T) {
	price := uint256.NewInt(333_333_333) // $3.33333333
	amount := uint256.NewInt(1)          // one base unit of a 6-decimal asset
	if got := usdValue(amount, price, 6); !got.Eq(uint256.NewInt(333)) {
		t.Fatalf("collateral value rounds down: %s", got)
	}
	if got := usdValueUp(amount, price, 6); !got.Eq(uint256.NewInt(334)) {
		t.Fatalf("debt value rounds up: %s", got)
	}
}

func TestRecoverArithmeticRepanicsOthers(t *testing.T) {
	defer func() {
		if r := recover(); r != "boom" {
			t.Fatalf("expected foreign panic to propagate, got %v", r)
		}
	}()
	_ = recoverArithmetic("boom")
}
