package lending

import "fmt"

// BorrowGate selects the collateral weighting used to accept new borrows.
type BorrowGate string

const (
	// BorrowGateThreshold accepts a borrow while the liquidation-threshold
	// health factor stays at or above one.
	BorrowGateThreshold BorrowGate = "threshold"
	// BorrowGateLTV accepts a borrow while LTV-weighted collateral covers all debt.
	BorrowGateLTV BorrowGate = "ltv"
)

const (
	DefaultCloseFactorBps  = 5_000
	DefaultFlashLoanFeeBps = 9
)

// Options captures the pool-wide policy knobs.
type Options struct {
	// CloseFactorBps caps the share of a borrower's debt repaid per liquidation.
	CloseFactorBps uint64 `toml:"CloseFactorBps" yaml:"closeFactorBps"`
	// ClampCloseFactor reduces oversize liquidations instead of rejecting them.
	ClampCloseFactor bool         `toml:"ClampCloseFactor" yaml:"clampCloseFactor"`
	BorrowGate       BorrowGate   `toml:"BorrowGate" yaml:"borrowGate"`
	FlashLoanFeeBps  uint64       `toml:"FlashLoanFeeBps" yaml:"flashLoanFeeBps"`
	Pauses           ActionPauses `toml:"Pauses" yaml:"pauses"`
}

// DefaultOptions returns a 50% close factor that rejects oversize
// liquidations, the threshold borrow gate and a 9 bps flash loan fee.
func DefaultOptions() Options {
	return Options{
		CloseFactorBps:  DefaultCloseFactorBps,
		BorrowGate:      BorrowGateThreshold,
		FlashLoanFeeBps: DefaultFlashLoanFeeBps,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.CloseFactorBps == 0 || o.CloseFactorBps > bpsDenominator {
		return fmt.Errorf("lending: close factor %d bps out of range", o.CloseFactorBps)
	}
	if o.FlashLoanFeeBps > bpsDenominator {
		return fmt.Errorf("lending: flash loan fee %d bps out of range", o.FlashLoanFeeBps)
	}
	switch o.BorrowGate {
	case BorrowGateThreshold, BorrowGateLTV:
	default:
		return fmt.Errorf("lending: unknown borrow gate %q", o.BorrowGate)
	}
	return nil
}
