package lending

import (
	"fmt"

	"github.com/holiman/uint256"
)

// RateModel maps reserve utilisation to per-second borrow and supply rates.
// Utilisation and both returned rates are ray fixed-point values.
type RateModel interface {
	Rates(utilization *uint256.Int, reserveFactorBps uint64) (borrowRate, supplyRate *uint256.Int)
}

// InterestModel is the two-slope curve used by default. All parameters are
// annual rates expressed in ray.
type InterestModel struct {
	// BaseRate is the borrow APR at zero utilisation.
	BaseRate *uint256.Int
	// Slope1 is the APR added between zero and optimal utilisation.
	Slope1 *uint256.Int
	// Slope2 is the APR added between optimal and full utilisation.
	Slope2 *uint256.Int
	// OptimalUtilization is the kink point, strictly between 0 and 1.
	OptimalUtilization *uint256.Int
}

// NewInterestModelBps builds a model from basis point parameters, e.g. a 4%
// slope is 400 and an 80% kink is 8000.
func NewInterestModelBps(baseBps, slope1Bps, slope2Bps, optimalBps uint64) *InterestModel {
	return &InterestModel{
		BaseRate:           bpsToRay(baseBps),
		Slope1:             bpsToRay(slope1Bps),
		Slope2:             bpsToRay(slope2Bps),
		OptimalUtilization: bpsToRay(optimalBps),
	}
}

// DefaultInterestModel returns base 0%, slope1 4%, slope2 75%, optimal 80%.
func DefaultInterestModel() *InterestModel {
	return NewInterestModelBps(0, 400, 7500, 8000)
}

// Clone returns a deep copy of the interest model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	return &InterestModel{
		BaseRate:           clone(m.BaseRate),
		Slope1:             clone(m.Slope1),
		Slope2:             clone(m.Slope2),
		OptimalUtilization: clone(m.OptimalUtilization),
	}
}

// Validate ensures the kink lies strictly inside (0, 1).
func (m *InterestModel) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil model", ErrInvalidInterestModel)
	}
	if isZero(m.OptimalUtilization) || m.OptimalUtilization.Cmp(Ray) >= 0 {
		return fmt.Errorf("%w: optimal utilization must be between 0 and 1", ErrInvalidInterestModel)
	}
	return nil
}

// BorrowAPR returns the annual borrow rate for the given ray utilisation.
func (m *InterestModel) BorrowAPR(utilization *uint256.Int) *uint256.Int {
	u := clampUtilization(utilization)
	base := clone(m.BaseRate)
	if u.Cmp(m.OptimalUtilization) <= 0 {
		return add(base, mulDiv(m.Slope1, u, m.OptimalUtilization))
	}
	excess := sub(u, m.OptimalUtilization)
	span := sub(Ray, m.OptimalUtilization)
	return add(add(base, m.Slope1), mulDiv(m.Slope2, excess, span))
}

// SupplyAPR returns borrow APR × U × (1 − reserve factor).
func (m *InterestModel) SupplyAPR(utilization *uint256.Int, reserveFactorBps uint64) *uint256.Int {
	u := clampUtilization(utilization)
	gross := rayMul(m.BorrowAPR(u), u)
	if reserveFactorBps >= bpsDenominator {
		return zero()
	}
	return percentMul(gross, bpsDenominator-reserveFactorBps)
}

// Rates implements RateModel by converting the annual curve to per-second rates.
func (m *InterestModel) Rates(utilization *uint256.Int, reserveFactorBps uint64) (*uint256.Int, *uint256.Int) {
	year := uint256.NewInt(SecondsPerYear)
	borrow := new(uint256.Int).Div(m.BorrowAPR(utilization), year)
	supply := new(uint256.Int).Div(m.SupplyAPR(utilization, reserveFactorBps), year)
	return borrow, supply
}

// Utilization computes borrowed / supplied in ray, clamped to [0, 1]. No
// supply means zero utilisation.
func Utilization(borrowed, supplied *uint256.Int) *uint256.Int {
	if isZero(borrowed) || isZero(supplied) {
		return zero()
	}
	return clampUtilization(rayDiv(borrowed, supplied))
}

func clampUtilization(u *uint256.Int) *uint256.Int {
	if u == nil {
		return zero()
	}
	if u.Cmp(Ray) > 0 {
		return clone(Ray)
	}
	return clone(u)
}
