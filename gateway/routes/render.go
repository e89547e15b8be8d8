package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	"credo/native/lending"
)

// Amount pairs exact base units with a human-readable rendering.
type Amount struct {
	Value   string `json:"value"`
	Display string `json:"display"`
}

func amountOf(v *uint256.Int, decimals uint8) Amount {
	value := "0"
	if v != nil {
		value = v.Dec()
	}
	return Amount{Value: value, Display: lending.FormatUnits(v, decimals)}
}

func usdOf(v *uint256.Int) Amount {
	return amountOf(v, 8)
}

type healthFactorJSON struct {
	Value   string `json:"value"`
	Display string `json:"display"`
}

func healthOf(v *uint256.Int) *healthFactorJSON {
	if v == nil {
		return nil
	}
	return &healthFactorJSON{Value: v.Dec(), Display: lending.FormatWad(v)}
}

type receiptJSON struct {
	ID               string            `json:"id"`
	Action           string            `json:"action"`
	User             string            `json:"user"`
	Asset            string            `json:"asset"`
	Amount           Amount            `json:"amount"`
	ScaledDelta      string            `json:"scaledDelta"`
	CollateralScaled string            `json:"collateralScaled"`
	DebtScaled       string            `json:"debtScaled"`
	HealthFactor     *healthFactorJSON `json:"healthFactor,omitempty"`
	Timestamp        uint64            `json:"timestamp"`
}

func receiptOf(r *lending.Receipt, decimals uint8) receiptJSON {
	return receiptJSON{
		ID:               r.ID,
		Action:           r.Action,
		User:             r.User,
		Asset:            r.Asset,
		Amount:           amountOf(r.Amount, decimals),
		ScaledDelta:      decString(r.ScaledDelta),
		CollateralScaled: decString(r.CollateralScaled),
		DebtScaled:       decString(r.DebtScaled),
		HealthFactor:     healthOf(r.HealthFactor),
		Timestamp:        r.Timestamp,
	}
}

type liquidationJSON struct {
	ID                 string            `json:"id"`
	Liquidator         string            `json:"liquidator"`
	Borrower           string            `json:"borrower"`
	CollateralAsset    string            `json:"collateralAsset"`
	DebtAsset          string            `json:"debtAsset"`
	DebtCovered        Amount            `json:"debtCovered"`
	CollateralSeized   Amount            `json:"collateralSeized"`
	HealthFactorBefore *healthFactorJSON `json:"healthFactorBefore"`
	HealthFactorAfter  *healthFactorJSON `json:"healthFactorAfter"`
	Timestamp          uint64            `json:"timestamp"`
}

type reserveJSON struct {
	Asset              string `json:"asset"`
	Decimals           uint8  `json:"decimals"`
	Active             bool   `json:"active"`
	TotalSupplied      Amount `json:"totalSupplied"`
	TotalBorrowed      Amount `json:"totalBorrowed"`
	AvailableLiquidity Amount `json:"availableLiquidity"`
	UtilizationPct     string `json:"utilizationPct"`
	BorrowAPRPct       string `json:"borrowAprPct"`
	SupplyAPRPct       string `json:"supplyAprPct"`
	LiquidityIndex     string `json:"liquidityIndex"`
	BorrowIndex        string `json:"borrowIndex"`
	AccruedToTreasury  Amount `json:"accruedToTreasury"`
	LastUpdate         uint64 `json:"lastUpdate"`
}

func reserveOf(r *lending.ReserveData) reserveJSON {
	return reserveJSON{
		Asset:              r.Asset,
		Decimals:           r.Decimals,
		Active:             r.Active,
		TotalSupplied:      amountOf(r.TotalSupplied, r.Decimals),
		TotalBorrowed:      amountOf(r.TotalBorrowed, r.Decimals),
		AvailableLiquidity: amountOf(r.AvailableLiquidity, r.Decimals),
		UtilizationPct:     lending.FormatRayPercent(r.Utilization),
		BorrowAPRPct:       lending.FormatRayPercent(r.BorrowAPR),
		SupplyAPRPct:       lending.FormatRayPercent(r.SupplyAPR),
		LiquidityIndex:     decString(r.LiquidityIndex),
		BorrowIndex:        decString(r.BorrowIndex),
		AccruedToTreasury:  amountOf(r.AccruedToTreasury, r.Decimals),
		LastUpdate:         r.LastUpdate,
	}
}

type balanceJSON struct {
	Asset         string `json:"asset"`
	Collateral    Amount `json:"collateral"`
	Debt          Amount `json:"debt"`
	CollateralUSD Amount `json:"collateralUsd"`
	DebtUSD       Amount `json:"debtUsd"`
}

type accountJSON struct {
	User                string            `json:"user"`
	Balances            []balanceJSON     `json:"balances"`
	TotalCollateralUSD  Amount            `json:"totalCollateralUsd"`
	TotalDebtUSD        Amount            `json:"totalDebtUsd"`
	AvailableBorrowsUSD Amount            `json:"availableBorrowsUsd"`
	HealthFactor        *healthFactorJSON `json:"healthFactor"`
}

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

type errorJSON struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// errorClass maps ledger errors to an HTTP status and a stable code.
type errorClass struct {
	err    error
	status int
	code   string
}

var errorClasses = []errorClass{
	{lending.ErrZeroAmount, http.StatusBadRequest, "zero_amount"},
	{lending.ErrInvalidUser, http.StatusBadRequest, "invalid_user"},
	{lending.ErrSelfLiquidation, http.StatusBadRequest, "self_liquidation"},
	{lending.ErrAssetNotSupported, http.StatusBadRequest, "asset_not_supported"},
	{lending.ErrReserveNotListed, http.StatusBadRequest, "reserve_not_listed"},
	{lending.ErrInsufficientLiquidity, http.StatusConflict, "insufficient_liquidity"},
	{lending.ErrNoDebtToRepay, http.StatusConflict, "no_debt"},
	{lending.ErrBorrowerNotLiquidatable, http.StatusConflict, "not_liquidatable"},
	{lending.ErrCloseFactorExceeded, http.StatusConflict, "close_factor_exceeded"},
	{lending.ErrReserveAlreadyListed, http.StatusConflict, "already_listed"},
	{lending.ErrHealthFactorTooLow, http.StatusUnprocessableEntity, "health_factor_too_low"},
	{lending.ErrInsufficientCollateral, http.StatusUnprocessableEntity, "insufficient_collateral"},
	{lending.ErrFlashLoanNotRepaid, http.StatusUnprocessableEntity, "flash_loan_not_repaid"},
	{lending.ErrModulePaused, http.StatusServiceUnavailable, "paused"},
	{lending.ErrPriceUnavailable, http.StatusServiceUnavailable, "price_unavailable"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	{context.Canceled, http.StatusServiceUnavailable, "canceled"},
	{lending.ErrArithmeticOverflow, http.StatusInternalServerError, "internal"},
}

func classify(err error) (int, string) {
	for _, class := range errorClasses {
		if errors.Is(err, class.err) {
			return class.status, class.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorJSON{Code: code, Error: message})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "bad_request", err.Error())
}

// writeLedgerError renders err. Internal faults never leak their message.
func writeLedgerError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeError(w, status, code, message)
}
