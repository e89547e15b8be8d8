package events

import (
	"github.com/holiman/uint256"

	"credo/core/types"
)

const (
	TypeLendingDeposit     = "lending.deposit"
	TypeLendingWithdraw    = "lending.withdraw"
	TypeLendingBorrow      = "lending.borrow"
	TypeLendingRepay       = "lending.repay"
	TypeLendingLiquidation = "lending.liquidation"
	TypeLendingFlashLoan   = "lending.flash_loan"
	TypeLendingPrice       = "lending.price"
)

// LendingPosition carries the fields shared by the single-asset position events.
// Scaled is the resulting index-scaled principal of the touched balance.
type LendingPosition struct {
	ID        string
	User      string
	Asset     string
	Amount    *uint256.Int
	Scaled    *uint256.Int
	Timestamp uint64
}

func (p LendingPosition) attrs() map[string]string {
	attrs := map[string]string{}
	setIfPresent(attrs, "id", p.ID)
	setIfPresent(attrs, "user", p.User)
	if asset := normalizeAsset(p.Asset); asset != "" {
		attrs["asset"] = asset
	}
	attrs["amount"] = formatAmount(p.Amount)
	attrs["scaled"] = formatAmount(p.Scaled)
	attrs["timestamp"] = formatTimestamp(p.Timestamp)
	return attrs
}

type LendingDeposit struct{ LendingPosition }

func (LendingDeposit) EventType() string { return TypeLendingDeposit }

func (e LendingDeposit) Event() *types.Event {
	return &types.Event{Type: TypeLendingDeposit, Attributes: e.attrs()}
}

type LendingWithdraw struct{ LendingPosition }

func (LendingWithdraw) EventType() string { return TypeLendingWithdraw }

func (e LendingWithdraw) Event() *types.Event {
	return &types.Event{Type: TypeLendingWithdraw, Attributes: e.attrs()}
}

type LendingBorrow struct{ LendingPosition }

func (LendingBorrow) EventType() string { return TypeLendingBorrow }

func (e LendingBorrow) Event() *types.Event {
	return &types.Event{Type: TypeLendingBorrow, Attributes: e.attrs()}
}

// LendingRepay records a debt repayment. Payer differs from User when debt is
// repaid on behalf of another account.
type LendingRepay struct {
	LendingPosition
	Payer string
}

func (LendingRepay) EventType() string { return TypeLendingRepay }

func (e LendingRepay) Event() *types.Event {
	attrs := e.attrs()
	setIfPresent(attrs, "payer", e.Payer)
	return &types.Event{Type: TypeLendingRepay, Attributes: attrs}
}

// LendingLiquidation records a liquidation. The embedded position describes the
// borrower's debt balance after the call.
type LendingLiquidation struct {
	LendingPosition
	Liquidator       string
	CollateralAsset  string
	Seized           *uint256.Int
	CollateralScaled *uint256.Int
}

func (LendingLiquidation) EventType() string { return TypeLendingLiquidation }

func (e LendingLiquidation) Event() *types.Event {
	attrs := e.attrs()
	setIfPresent(attrs, "liquidator", e.Liquidator)
	setIfPresent(attrs, "borrower", e.User)
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["debtAsset"] = asset
	}
	if asset := normalizeAsset(e.CollateralAsset); asset != "" {
		attrs["collateralAsset"] = asset
	}
	attrs["seized"] = formatAmount(e.Seized)
	attrs["collateralScaled"] = formatAmount(e.CollateralScaled)
	return &types.Event{Type: TypeLendingLiquidation, Attributes: attrs}
}

type LendingFlashLoan struct {
	ID        string
	Receiver  string
	Asset     string
	Amount    *uint256.Int
	Fee       *uint256.Int
	Timestamp uint64
}

func (LendingFlashLoan) EventType() string { return TypeLendingFlashLoan }

func (e LendingFlashLoan) Event() *types.Event {
	attrs := map[string]string{}
	setIfPresent(attrs, "id", e.ID)
	setIfPresent(attrs, "receiver", e.Receiver)
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	attrs["amount"] = formatAmount(e.Amount)
	attrs["fee"] = formatAmount(e.Fee)
	attrs["timestamp"] = formatTimestamp(e.Timestamp)
	return &types.Event{Type: TypeLendingFlashLoan, Attributes: attrs}
}

// LendingPrice records an oracle price update applied through the admin API.
type LendingPrice struct {
	Asset     string
	Price     *uint256.Int
	Timestamp uint64
}

func (LendingPrice) EventType() string { return TypeLendingPrice }

func (e LendingPrice) Event() *types.Event {
	attrs := map[string]string{"price": formatAmount(e.Price), "timestamp": formatTimestamp(e.Timestamp)}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	return &types.Event{Type: TypeLendingPrice, Attributes: attrs}
}
