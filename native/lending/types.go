package lending

import "github.com/holiman/uint256"

// Position is one user's balance in one asset, held as index-scaled principal.
type Position struct {
	User             string
	Asset            string
	CollateralScaled *uint256.Int
	DebtScaled       *uint256.Int
}

func newPosition(user, asset string) *Position {
	return &Position{User: user, Asset: asset, CollateralScaled: zero(), DebtScaled: zero()}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	return &Position{
		User:             p.User,
		Asset:            p.Asset,
		CollateralScaled: clone(p.CollateralScaled),
		DebtScaled:       clone(p.DebtScaled),
	}
}

// Empty reports whether the position holds neither collateral nor debt.
func (p *Position) Empty() bool {
	return p == nil || (isZero(p.CollateralScaled) && isZero(p.DebtScaled))
}

func (p *Position) ensureDefaults() {
	if p.CollateralScaled == nil {
		p.CollateralScaled = zero()
	}
	if p.DebtScaled == nil {
		p.DebtScaled = zero()
	}
}

// Receipt reports the outcome of a single-asset pool operation.
type Receipt struct {
	ID     string
	Action string
	User   string
	Asset  string
	// Amount is the underlying amount actually moved.
	Amount *uint256.Int
	// ScaledDelta is the scaled principal minted or burned.
	ScaledDelta      *uint256.Int
	CollateralScaled *uint256.Int
	DebtScaled       *uint256.Int
	HealthFactor     *uint256.Int
	Timestamp        uint64
}

// LiquidationReceipt reports the amounts actually settled by a liquidation.
type LiquidationReceipt struct {
	ID                       string
	Liquidator               string
	Borrower                 string
	CollateralAsset          string
	DebtAsset                string
	DebtCovered              *uint256.Int
	CollateralSeized         *uint256.Int
	BorrowerDebtScaled       *uint256.Int
	BorrowerCollateralScaled *uint256.Int
	HealthFactorBefore       *uint256.Int
	HealthFactorAfter        *uint256.Int
	Timestamp                uint64
}

// FlashLoanReceipt reports a completed flash loan.
type FlashLoanReceipt struct {
	ID        string
	Receiver  string
	Asset     string
	Amount    *uint256.Int
	Fee       *uint256.Int
	Timestamp uint64
}

// ReserveData is a read-only view of a reserve accrued to the query time.
type ReserveData struct {
	Asset              string
	Decimals           uint8
	Active             bool
	TotalSupplied      *uint256.Int
	TotalBorrowed      *uint256.Int
	AvailableLiquidity *uint256.Int
	Utilization        *uint256.Int
	BorrowRate         *uint256.Int
	SupplyRate         *uint256.Int
	BorrowAPR          *uint256.Int
	SupplyAPR          *uint256.Int
	LiquidityIndex     *uint256.Int
	BorrowIndex        *uint256.Int
	AccruedToTreasury  *uint256.Int
	LastUpdate         uint64
}

// AssetBalance is the real balance of one asset within AccountData.
type AssetBalance struct {
	Asset         string
	Collateral    *uint256.Int
	Debt          *uint256.Int
	CollateralUSD *uint256.Int
	DebtUSD       *uint256.Int
}

// AccountData summarises a user's exposure. USD values carry 8 decimals.
type AccountData struct {
	User               string
	Balances           []AssetBalance
	TotalCollateralUSD *uint256.Int
	TotalDebtUSD       *uint256.Int
	// AvailableBorrowsUSD is the LTV-weighted collateral not yet drawn as debt.
	AvailableBorrowsUSD *uint256.Int
	// WeightedThresholdUSD is collateral weighted by liquidation threshold.
	WeightedThresholdUSD *uint256.Int
	HealthFactor         *uint256.Int
}

// Snapshot is a set of reserve and position records, used both for loading
// state and for committing changes.
type Snapshot struct {
	Reserves  []*Reserve
	Positions []*Position
}

// Empty reports whether the snapshot carries no records.
func (s *Snapshot) Empty() bool {
	return s == nil || (len(s.Reserves) == 0 && len(s.Positions) == 0)
}
