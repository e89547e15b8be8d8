package lending

import "github.com/holiman/uint256"

// Reserve captures the accounting state of one listed asset. Totals are kept
// as index-scaled principal; real balances are scaled × index.
type Reserve struct {
	Asset               string
	TotalSuppliedScaled *uint256.Int
	TotalBorrowedScaled *uint256.Int
	// LiquidityIndex grows supplier balances. Starts at one ray, never decreases.
	LiquidityIndex *uint256.Int
	// BorrowIndex grows borrower debt. Starts at one ray, never decreases.
	BorrowIndex *uint256.Int
	// LastUpdate is the unix second of the latest accrual.
	LastUpdate uint64
	// AccruedToTreasury is the reserve factor share of interest, in underlying units.
	AccruedToTreasury *uint256.Int
}

// NewReserve returns an empty reserve with unit indices.
func NewReserve(asset string, now uint64) *Reserve {
	return &Reserve{
		Asset:               NormalizeAsset(asset),
		TotalSuppliedScaled: zero(),
		TotalBorrowedScaled: zero(),
		LiquidityIndex:      clone(Ray),
		BorrowIndex:         clone(Ray),
		LastUpdate:          now,
		AccruedToTreasury:   zero(),
	}
}

// Clone returns a deep copy of the reserve.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	return &Reserve{
		Asset:               r.Asset,
		TotalSuppliedScaled: clone(r.TotalSuppliedScaled),
		TotalBorrowedScaled: clone(r.TotalBorrowedScaled),
		LiquidityIndex:      clone(r.LiquidityIndex),
		BorrowIndex:         clone(r.BorrowIndex),
		LastUpdate:          r.LastUpdate,
		AccruedToTreasury:   clone(r.AccruedToTreasury),
	}
}

// ensureDefaults fills nil fields so records decoded from storage are usable.
func (r *Reserve) ensureDefaults() {
	if r.TotalSuppliedScaled == nil {
		r.TotalSuppliedScaled = zero()
	}
	if r.TotalBorrowedScaled == nil {
		r.TotalBorrowedScaled = zero()
	}
	if isZero(r.LiquidityIndex) {
		r.LiquidityIndex = clone(Ray)
	}
	if isZero(r.BorrowIndex) {
		r.BorrowIndex = clone(Ray)
	}
	if r.AccruedToTreasury == nil {
		r.AccruedToTreasury = zero()
	}
}

// TotalSupplied returns the real supplied balance, rounded down.
func (r *Reserve) TotalSupplied() *uint256.Int {
	return rayMul(r.TotalSuppliedScaled, r.LiquidityIndex)
}

// TotalBorrowed returns the real borrowed balance, rounded up.
func (r *Reserve) TotalBorrowed() *uint256.Int {
	return rayMulUp(r.TotalBorrowedScaled, r.BorrowIndex)
}

// Utilization returns borrowed / supplied in ray, clamped to [0, 1].
func (r *Reserve) Utilization() *uint256.Int {
	return Utilization(r.TotalBorrowed(), r.TotalSupplied())
}

// AvailableLiquidity is the real supplied balance not lent out, floored at zero.
func (r *Reserve) AvailableLiquidity() *uint256.Int {
	return subFloor(r.TotalSupplied(), r.TotalBorrowed())
}

// Accrue advances both indices to now using simple interest over the elapsed
// period. Calls with now at or before LastUpdate are no-ops.
func (r *Reserve) Accrue(now uint64, model RateModel, reserveFactorBps uint64) {
	if now <= r.LastUpdate {
		return
	}
	dt := uint256.NewInt(now - r.LastUpdate)
	r.LastUpdate = now
	if model == nil || r.TotalBorrowedScaled.IsZero() {
		return
	}
	borrowedBefore := r.TotalBorrowed()
	borrowRate, supplyRate := model.Rates(r.Utilization(), reserveFactorBps)
	if !isZero(borrowRate) {
		r.BorrowIndex = rayMul(r.BorrowIndex, add(Ray, mul(borrowRate, dt)))
	}
	if !isZero(supplyRate) {
		r.LiquidityIndex = rayMul(r.LiquidityIndex, add(Ray, mul(supplyRate, dt)))
	}
	if reserveFactorBps > 0 {
		growth := subFloor(r.TotalBorrowed(), borrowedBefore)
		r.AccruedToTreasury = add(r.AccruedToTreasury, percentMul(growth, reserveFactorBps))
	}
}

// Projected returns a copy accrued to now, leaving the receiver untouched.
func (r *Reserve) Projected(now uint64, model RateModel, reserveFactorBps uint64) *Reserve {
	out := r.Clone()
	out.Accrue(now, model, reserveFactorBps)
	return out
}
