package lending

import (
	"errors"

	nativecommon "credo/native/common"
)

var (
	ErrAssetNotSupported       = errors.New("lending: asset not supported")
	ErrZeroAmount              = errors.New("lending: amount must be positive")
	ErrInsufficientCollateral  = errors.New("lending: insufficient collateral")
	ErrInsufficientLiquidity   = errors.New("lending: insufficient liquidity")
	ErrHealthFactorTooLow      = errors.New("lending: health factor below 1")
	ErrNoDebtToRepay           = errors.New("lending: no outstanding debt to repay")
	ErrBorrowerNotLiquidatable = errors.New("lending: borrower not eligible for liquidation")
	ErrPriceUnavailable        = errors.New("lending: price unavailable")
	ErrCloseFactorExceeded     = errors.New("lending: repay amount exceeds close factor")
	ErrSelfLiquidation         = errors.New("lending: liquidator cannot be the borrower")
	ErrFlashLoanNotRepaid      = errors.New("lending: flash loan not repaid with fee")
	ErrReserveNotListed        = errors.New("lending: reserve not listed")
	ErrReserveAlreadyListed    = errors.New("lending: reserve already listed")
	ErrInvalidRiskConfig       = errors.New("lending: invalid risk configuration")
	ErrInvalidInterestModel    = errors.New("lending: invalid interest model")
	ErrInvalidUser             = errors.New("lending: user identifier required")

	// ErrModulePaused is returned when the pause switch for the lending module is engaged.
	ErrModulePaused = nativecommon.ErrModulePaused
)

// IsFatal reports whether err belongs to the arithmetic corruption class.
func IsFatal(err error) bool {
	return errors.Is(err, ErrArithmeticOverflow)
}
