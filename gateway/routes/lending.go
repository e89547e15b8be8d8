package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"credo/core/events"
	"credo/gateway/middleware"
	nativecommon "credo/native/common"
	"credo/native/lending"
	"credo/observability"
	"credo/storage/journal"
)

const ledgerRequestLimit = 1 << 16 // 64 KiB

// Ledger is the pool surface served over HTTP. *lending.Pool satisfies it.
type Ledger interface {
	Deposit(ctx context.Context, user, asset string, amount *uint256.Int) (*lending.Receipt, error)
	Withdraw(ctx context.Context, user, asset string, amount *uint256.Int) (*lending.Receipt, error)
	Borrow(ctx context.Context, user, asset string, amount *uint256.Int) (*lending.Receipt, error)
	Repay(ctx context.Context, user, asset string, amount *uint256.Int) (*lending.Receipt, error)
	Liquidate(ctx context.Context, liquidator, collateralAsset, debtAsset, borrower string, debtToCover *uint256.Int) (*lending.LiquidationReceipt, error)
	AccountData(ctx context.Context, user string) (*lending.AccountData, error)
	ReserveData(ctx context.Context, asset string) (*lending.ReserveData, error)
	Listed() []string
}

// PriceFeed accepts administrative price updates.
type PriceFeed interface {
	SetPrice(asset string, price *uint256.Int) error
}

// EventLog serves journaled events.
type EventLog interface {
	List(ctx context.Context, q journal.Query) ([]journal.Entry, error)
}

type api struct {
	ledger         Ledger
	registry       lending.RiskRegistry
	prices         PriceFeed
	emitter        events.Emitter
	journal        EventLog
	hub            *Hub
	pauses         *nativecommon.Switch
	metrics        *observability.LendingMetrics
	logger         *slog.Logger
	now            func() time.Time
	timeout        time.Duration
	originPatterns []string
}

func (a *api) context(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := a.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

func (a *api) decimals(asset string) uint8 {
	if cfg, ok := a.registry.Lookup(asset); ok {
		return cfg.Decimals
	}
	return 0
}

type amountRequest struct {
	Asset string `json:"asset"`
	// Amount is in base units. Value is a human decimal converted with the
	// asset's precision. Exactly one must be set.
	Amount string `json:"amount,omitempty"`
	Value  string `json:"value,omitempty"`
}

type liquidateRequest struct {
	amountRequest
	CollateralAsset string `json:"collateralAsset"`
	DebtAsset       string `json:"debtAsset"`
	Borrower        string `json:"borrower"`
}

type priceRequest struct {
	Price string `json:"price"`
}

func decodeBody(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, ledgerRequestLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// parseAmount resolves the request amount in base units of asset.
func (a *api) parseAmount(req amountRequest, asset string) (*uint256.Int, error) {
	amount, value := strings.TrimSpace(req.Amount), strings.TrimSpace(req.Value)
	switch {
	case amount != "" && value != "":
		return nil, errors.New("set either amount or value, not both")
	case amount != "":
		out, err := uint256.FromDecimal(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		return out, nil
	case value != "":
		cfg, ok := a.registry.Lookup(asset)
		if !ok {
			return nil, lending.ErrAssetNotSupported
		}
		return lending.ParseUnits(value, cfg.Decimals)
	default:
		return nil, errors.New("amount required")
	}
}

func (a *api) subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := middleware.Subject(r.Context())
	if user == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "caller identity required")
		return "", false
	}
	return user, true
}

type positionOp func(ctx context.Context, user, asset string, amount *uint256.Int) (*lending.Receipt, error)

// recordOutcome counts a ledger call as "ok" or by its error code.
func (a *api) recordOutcome(action string, err error) {
	outcome := "ok"
	if err != nil {
		_, outcome = classify(err)
	}
	a.metrics.RecordOperation(action, outcome)
}

func (a *api) positionHandler(action string, op positionOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := a.subject(w, r)
		if !ok {
			return
		}
		var req amountRequest
		if err := decodeBody(r, &req); err != nil {
			writeBadRequest(w, err)
			return
		}
		amount, err := a.parseAmount(req, req.Asset)
		if err != nil {
			if errors.Is(err, lending.ErrAssetNotSupported) {
				writeLedgerError(w, err)
				return
			}
			writeBadRequest(w, err)
			return
		}
		ctx, cancel := a.context(r.Context())
		defer cancel()
		receipt, err := op(ctx, user, req.Asset, amount)
		a.recordOutcome(action, err)
		if err != nil {
			a.logFailure(r, err)
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, receiptOf(receipt, a.decimals(receipt.Asset)))
	}
}

func (a *api) liquidate(w http.ResponseWriter, r *http.Request) {
	liquidator, ok := a.subject(w, r)
	if !ok {
		return
	}
	var req liquidateRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := a.parseAmount(req.amountRequest, req.DebtAsset)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := a.context(r.Context())
	defer cancel()
	receipt, err := a.ledger.Liquidate(ctx, liquidator, req.CollateralAsset, req.DebtAsset, req.Borrower, amount)
	a.recordOutcome("liquidate", err)
	if err != nil {
		a.logFailure(r, err)
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidationJSON{
		ID:                 receipt.ID,
		Liquidator:         receipt.Liquidator,
		Borrower:           receipt.Borrower,
		CollateralAsset:    receipt.CollateralAsset,
		DebtAsset:          receipt.DebtAsset,
		DebtCovered:        amountOf(receipt.DebtCovered, a.decimals(receipt.DebtAsset)),
		CollateralSeized:   amountOf(receipt.CollateralSeized, a.decimals(receipt.CollateralAsset)),
		HealthFactorBefore: healthOf(receipt.HealthFactorBefore),
		HealthFactorAfter:  healthOf(receipt.HealthFactorAfter),
		Timestamp:          receipt.Timestamp,
	})
}

func (a *api) listReserves(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.context(r.Context())
	defer cancel()
	out := make([]reserveJSON, 0)
	for _, asset := range a.ledger.Listed() {
		data, err := a.ledger.ReserveData(ctx, asset)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		out = append(out, reserveOf(data))
	}
	writeJSON(w, http.StatusOK, map[string]any{"reserves": out})
}

func (a *api) getReserve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.context(r.Context())
	defer cancel()
	data, err := a.ledger.ReserveData(ctx, chi.URLParam(r, "asset"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reserveOf(data))
}

func (a *api) getAccount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.context(r.Context())
	defer cancel()
	data, err := a.ledger.AccountData(ctx, chi.URLParam(r, "user"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	out := accountJSON{
		User:                data.User,
		Balances:            make([]balanceJSON, 0, len(data.Balances)),
		TotalCollateralUSD:  usdOf(data.TotalCollateralUSD),
		TotalDebtUSD:        usdOf(data.TotalDebtUSD),
		AvailableBorrowsUSD: usdOf(data.AvailableBorrowsUSD),
		HealthFactor:        healthOf(data.HealthFactor),
	}
	for _, bal := range data.Balances {
		decimals := a.decimals(bal.Asset)
		out.Balances = append(out.Balances, balanceJSON{
			Asset:         bal.Asset,
			Collateral:    amountOf(bal.Collateral, decimals),
			Debt:          amountOf(bal.Debt, decimals),
			CollateralUSD: usdOf(bal.CollateralUSD),
			DebtUSD:       usdOf(bal.DebtUSD),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) setPrice(w http.ResponseWriter, r *http.Request) {
	if a.prices == nil {
		writeError(w, http.StatusServiceUnavailable, "prices_unavailable", "price updates disabled")
		return
	}
	asset := lending.NormalizeAsset(chi.URLParam(r, "asset"))
	if _, ok := a.registry.Lookup(asset); !ok {
		writeLedgerError(w, lending.ErrAssetNotSupported)
		return
	}
	var req priceRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	price, err := lending.ParsePrice(strings.TrimSpace(req.Price))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if price.IsZero() {
		writeBadRequest(w, errors.New("price must be positive"))
		return
	}
	if err := a.prices.SetPrice(asset, price); err != nil {
		writeLedgerError(w, err)
		return
	}
	a.emitter.Emit(events.LendingPrice{Asset: asset, Price: price, Timestamp: uint64(a.now().Unix())})
	a.logger.Info("price updated", slog.String("asset", asset), slog.String("price", lending.FormatUSD(price)))
	writeJSON(w, http.StatusOK, map[string]any{"asset": asset, "price": usdOf(price)})
}

type pauseRequest struct {
	Paused *bool `json:"paused"`
}

func (a *api) getPause(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"paused": a.pauses.IsPaused(lending.ModuleName)})
}

// setPause engages or releases the module-wide pause. Views stay available.
func (a *api) setPause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Paused == nil {
		writeBadRequest(w, errors.New("paused required"))
		return
	}
	a.pauses.Set(lending.ModuleName, *req.Paused)
	a.logger.Warn("lending pause changed",
		slog.Bool("paused", *req.Paused),
		slog.String("user", middleware.Subject(r.Context())))
	writeJSON(w, http.StatusOK, map[string]any{"paused": *req.Paused})
}

type eventJSON struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func (a *api) listEvents(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal_unavailable", "event journal disabled")
		return
	}
	query := journal.Query{
		Type: strings.TrimSpace(r.URL.Query().Get("type")),
		User: strings.TrimSpace(r.URL.Query().Get("user")),
	}
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("invalid after cursor: %w", err))
			return
		}
		query.AfterSeq = after
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeBadRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
		query.Limit = limit
	}
	ctx, cancel := a.context(r.Context())
	defer cancel()
	entries, err := a.journal.List(ctx, query)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	out := make([]eventJSON, 0, len(entries))
	for _, entry := range entries {
		evt, err := entry.Event()
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		out = append(out, eventJSON{Seq: entry.Seq, Type: evt.Type, Attributes: evt.Attributes, CreatedAt: entry.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (a *api) logFailure(r *http.Request, err error) {
	status, code := classify(err)
	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	a.logger.Log(r.Context(), level, "ledger call rejected",
		slog.String("path", r.URL.Path),
		slog.String("reason", code),
		slog.Any("error", err))
}
