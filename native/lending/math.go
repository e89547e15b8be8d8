package lending

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrArithmeticOverflow is the fatal error class raised when fixed-point math
// overflows or underflows. It indicates corrupted accounting state and is never
// clamped.
var ErrArithmeticOverflow = errors.New("lending: arithmetic overflow")

// ArithmeticError identifies the operation that overflowed.
type ArithmeticError struct {
	Op string
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("lending: arithmetic overflow in %s", e.Op)
}

func (e *ArithmeticError) Unwrap() error { return ErrArithmeticOverflow }

const (
	bpsDenominator = 10_000
	priceDecimals  = 8
	// SecondsPerYear converts annual rates into per-second rates.
	SecondsPerYear = 31_536_000
)

var (
	// Ray is the 1e27 fixed-point unit used for indices and rates.
	Ray = uint256.MustFromDecimal("1000000000000000000000000000")
	// Wad is the 1e18 fixed-point unit used for health factors.
	Wad = uint256.MustFromDecimal("1000000000000000000")
	// MaxHealthFactor is reported for accounts without debt.
	MaxHealthFactor = new(uint256.Int).SetAllOne()

	basisPoints = uint256.NewInt(bpsDenominator)
	pow10Table  = buildPow10()
)

func buildPow10() [78]*uint256.Int {
	var table [78]*uint256.Int
	table[0] = uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := 1; i < len(table); i++ {
		table[i] = new(uint256.Int).Mul(table[i-1], ten)
	}
	return table
}

func pow10(exp uint8) *uint256.Int {
	if int(exp) >= len(pow10Table) {
		panic(&ArithmeticError{Op: "pow10"})
	}
	return pow10Table[exp]
}

func zero() *uint256.Int { return new(uint256.Int) }

func clone(x *uint256.Int) *uint256.Int {
	if x == nil {
		return zero()
	}
	return new(uint256.Int).Set(x)
}

func isZero(x *uint256.Int) bool { return x == nil || x.IsZero() }

func minOf(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return clone(a)
	}
	return clone(b)
}

func add(a, b *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		panic(&ArithmeticError{Op: "add"})
	}
	return z
}

func sub(a, b *uint256.Int) *uint256.Int {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		panic(&ArithmeticError{Op: "sub"})
	}
	return z
}

// subFloor returns a-b, or zero when b exceeds a.
func subFloor(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return zero()
	}
	return new(uint256.Int).Sub(a, b)
}

func mul(a, b *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		panic(&ArithmeticError{Op: "mul"})
	}
	return z
}

// mulDiv returns floor(a*b/d) with a 512-bit intermediate product.
func mulDiv(a, b, d *uint256.Int) *uint256.Int {
	if d.IsZero() {
		panic(&ArithmeticError{Op: "div"})
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		panic(&ArithmeticError{Op: "muldiv"})
	}
	return z
}

// mulDivUp returns ceil(a*b/d).
func mulDivUp(a, b, d *uint256.Int) *uint256.Int {
	z := mulDiv(a, b, d)
	if !new(uint256.Int).MulMod(a, b, d).IsZero() {
		z = add(z, uint256.NewInt(1))
	}
	return z
}

func rayMul(a, b *uint256.Int) *uint256.Int   { return mulDiv(a, b, Ray) }
func rayMulUp(a, b *uint256.Int) *uint256.Int { return mulDivUp(a, b, Ray) }
func rayDiv(a, b *uint256.Int) *uint256.Int   { return mulDiv(a, Ray, b) }
func rayDivUp(a, b *uint256.Int) *uint256.Int { return mulDivUp(a, Ray, b) }

func percentMul(a *uint256.Int, bps uint64) *uint256.Int {
	return mulDiv(a, uint256.NewInt(bps), basisPoints)
}

func bpsToRay(bps uint64) *uint256.Int {
	return mulDiv(uint256.NewInt(bps), Ray, basisPoints)
}

// usdValue converts an asset amount into 8-decimal USD using an 8-decimal price.
func usdValue(amount, price *uint256.Int, decimals uint8) *uint256.Int {
	return mulDiv(amount, price, pow10(decimals))
}

func usdValueUp(amount, price *uint256.Int, decimals uint8) *uint256.Int {
	return mulDivUp(amount, price, pow10(decimals))
}

// recoverArithmetic converts an ArithmeticError panic into an error and re-panics
// anything else.
func recoverArithmetic(recovered any) error {
	if recovered == nil {
		return nil
	}
	if err, ok := recovered.(error); ok {
		var arith *ArithmeticError
		if errors.As(err, &arith) {
			return arith
		}
	}
	panic(recovered)
}
