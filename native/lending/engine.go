package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"credo/core/events"
	nativecommon "credo/native/common"
)

const ModuleName = "lending"

const (
	actionList      = "list"
	actionDeposit   = "deposit"
	actionWithdraw  = "withdraw"
	actionBorrow    = "borrow"
	actionRepay     = "repay"
	actionLiquidate = "liquidate"
	actionFlashLoan = "flash_loan"
)

// Pool owns every reserve and position and serialises all operations on a
// single mutex. Each operation stages its changes and commits them to the
// Store and to memory only when every guard passes.
type Pool struct {
	mu        sync.Mutex
	risk      RiskRegistry
	oracle    Oracle
	model     RateModel
	store     Store
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	logger    *slog.Logger
	now       func() time.Time
	opts      Options
	reserves  map[string]*Reserve
	positions map[string]map[string]*Position
}

// NewPool constructs a pool over the supplied risk registry, price oracle and
// rate model. A nil model selects DefaultInterestModel.
func NewPool(risk RiskRegistry, oracle Oracle, model RateModel) *Pool {
	if model == nil {
		model = DefaultInterestModel()
	}
	return &Pool{
		risk:      risk,
		oracle:    oracle,
		model:     model,
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		now:       time.Now,
		opts:      DefaultOptions(),
		reserves:  make(map[string]*Reserve),
		positions: make(map[string]map[string]*Position),
	}
}

// SetStore wires the pool to the durable persistence layer.
func (p *Pool) SetStore(store Store) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.store = store
	p.mu.Unlock()
}

// SetEmitter configures the sink for committed operation events. The emitter is
// invoked under the pool lock and must not block.
func (p *Pool) SetEmitter(emitter events.Emitter) {
	if p == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	p.mu.Lock()
	p.emitter = emitter
	p.mu.Unlock()
}

func (p *Pool) SetPauses(pauses nativecommon.PauseView) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.pauses = pauses
	p.mu.Unlock()
}

func (p *Pool) SetLogger(logger *slog.Logger) {
	if p == nil || logger == nil {
		return
	}
	p.mu.Lock()
	p.logger = logger
	p.mu.Unlock()
}

// SetClock overrides the time source used for accrual timestamps.
func (p *Pool) SetClock(now func() time.Time) {
	if p == nil || now == nil {
		return
	}
	p.mu.Lock()
	p.now = now
	p.mu.Unlock()
}

// SetOptions validates and applies pool policy options.
func (p *Pool) SetOptions(opts Options) error {
	if p == nil {
		return nil
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.opts = opts
	p.mu.Unlock()
	return nil
}

// Options returns the active policy options.
func (p *Pool) Options() Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts
}

// Load replaces in-memory state with the contents of the configured store.
func (p *Pool) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store == nil {
		return nil
	}
	snapshot, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("lending: load state: %w", err)
	}
	reserves := make(map[string]*Reserve)
	positions := make(map[string]map[string]*Position)
	if snapshot != nil {
		for _, r := range snapshot.Reserves {
			r = r.Clone()
			r.ensureDefaults()
			reserves[r.Asset] = r
		}
		for _, pos := range snapshot.Positions {
			pos = pos.Clone()
			pos.ensureDefaults()
			if positions[pos.User] == nil {
				positions[pos.User] = make(map[string]*Position)
			}
			positions[pos.User][pos.Asset] = pos
		}
	}
	p.reserves = reserves
	p.positions = positions
	p.logger.Info("lending state loaded", slog.Int("reserves", len(reserves)), slog.Int("users", len(positions)))
	return nil
}

func (p *Pool) timestamp() uint64 {
	unix := p.now().Unix()
	if unix < 0 {
		return 0
	}
	return uint64(unix)
}

func (p *Pool) guard(action string) error {
	if err := nativecommon.Guard(p.pauses, ModuleName); err != nil {
		return err
	}
	if p.opts.Pauses.paused(action) {
		return fmt.Errorf("%w: %s", ErrModulePaused, action)
	}
	return nil
}

// run executes fn against a fresh txn and commits it on success. Arithmetic
// panics are recovered into errors and discard the txn.
func (p *Pool) run(ctx context.Context, action string, fn func(*txn) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.guard(action); err != nil {
		return err
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = recoverArithmetic(recovered)
			p.logger.Error("lending arithmetic fault", slog.String("action", action), slog.Any("error", err))
		}
	}()
	tx := p.begin()
	if err := fn(tx); err != nil {
		p.logger.Info("lending operation rejected", slog.String("action", action), slog.Any("error", err))
		return err
	}
	if err := p.commit(ctx, tx); err != nil {
		p.logger.Error("lending commit failed", slog.String("action", action), slog.Any("error", err))
		return err
	}
	for _, evt := range tx.events {
		p.emitter.Emit(evt)
	}
	p.logger.Debug("lending operation applied", slog.String("action", action), slog.Uint64("timestamp", tx.now))
	return nil
}

// view executes a read-only fn. Staged changes are discarded.
func (p *Pool) view(ctx context.Context, fn func(*txn) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = recoverArithmetic(recovered)
			p.logger.Error("lending arithmetic fault", slog.String("action", "view"), slog.Any("error", err))
		}
	}()
	return fn(p.begin())
}

func (p *Pool) commit(ctx context.Context, tx *txn) error {
	changes := tx.changes()
	if changes.Empty() {
		return nil
	}
	if p.store != nil {
		if err := p.store.Commit(ctx, changes); err != nil {
			return fmt.Errorf("lending: commit: %w", err)
		}
	}
	for _, r := range changes.Reserves {
		p.reserves[r.Asset] = r
	}
	for _, pos := range changes.Positions {
		if p.positions[pos.User] == nil {
			p.positions[pos.User] = make(map[string]*Position)
		}
		p.positions[pos.User][pos.Asset] = pos
	}
	return nil
}

func normalizeUser(user string) (string, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return "", ErrInvalidUser
	}
	return user, nil
}

func positive(amount *uint256.Int) error {
	if isZero(amount) {
		return ErrZeroAmount
	}
	return nil
}

func (p *Pool) lookup(asset string) (RiskConfig, error) {
	cfg, ok := p.risk.Lookup(asset)
	if !ok {
		return RiskConfig{}, fmt.Errorf("%w: %s", ErrAssetNotSupported, NormalizeAsset(asset))
	}
	return cfg, nil
}

// ListReserve creates the reserve for a registered asset with unit indices.
func (p *Pool) ListReserve(ctx context.Context, asset string) error {
	cfg, err := p.lookup(asset)
	if err != nil {
		return err
	}
	return p.run(ctx, actionList, func(tx *txn) error {
		if _, ok := p.reserves[cfg.Symbol]; ok {
			return fmt.Errorf("%w: %s", ErrReserveAlreadyListed, cfg.Symbol)
		}
		tx.reserves[cfg.Symbol] = NewReserve(cfg.Symbol, tx.now)
		return nil
	})
}

// Listed reports the symbols of listed reserves in sorted order.
func (p *Pool) Listed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.reserves))
	for asset := range p.reserves {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}

// Deposit supplies amount of asset as collateral for user.
func (p *Pool) Deposit(ctx context.Context, user, asset string, amount *uint256.Int) (*Receipt, error) {
	user, err := normalizeUser(user)
	if err != nil {
		return nil, err
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	cfg, err := p.risk.Config(asset)
	if err != nil {
		return nil, err
	}
	var receipt *Receipt
	err = p.run(ctx, actionDeposit, func(tx *txn) error {
		reserve, err := tx.reserve(cfg)
		if err != nil {
			return err
		}
		scaled := rayDiv(amount, reserve.LiquidityIndex)
		if scaled.IsZero() {
			return ErrZeroAmount
		}
		pos := tx.position(user, cfg.Symbol)
		pos.CollateralScaled = add(pos.CollateralScaled, scaled)
		reserve.TotalSuppliedScaled = add(reserve.TotalSuppliedScaled, scaled)
		receipt = newReceipt(tx, actionDeposit, pos, amount, scaled, tx.healthFactorIfPriced(user))
		tx.emit(events.LendingDeposit{LendingPosition: positionEvent(receipt, pos.CollateralScaled)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Withdraw redeems amount of the user's collateral in asset. Accounts with debt
// must stay at a health factor of at least one.
func (p *Pool) Withdraw(ctx context.Context, user, asset string, amount *uint256.Int) (*Receipt, error) {
	user, err := normalizeUser(user)
	if err != nil {
		return nil, err
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	cfg, err := p.lookup(asset)
	if err != nil {
		return nil, err
	}
	var receipt *Receipt
	err = p.run(ctx, actionWithdraw, func(tx *txn) error {
		reserve, err := tx.reserve(cfg)
		if err != nil {
			return err
		}
		pos := tx.position(user, cfg.Symbol)
		balance := rayMul(pos.CollateralScaled, reserve.LiquidityIndex)
		if amount.Cmp(balance) > 0 {
			return ErrInsufficientCollateral
		}
		if reserve.AvailableLiquidity().Cmp(amount) < 0 {
			return ErrInsufficientLiquidity
		}
		burn := clone(pos.CollateralScaled)
		if amount.Cmp(balance) < 0 {
			burn = minOf(rayDivUp(amount, reserve.LiquidityIndex), pos.CollateralScaled)
		}
		pos.CollateralScaled = sub(pos.CollateralScaled, burn)
		reserve.TotalSuppliedScaled = sub(reserve.TotalSuppliedScaled, burn)
		hf := clone(MaxHealthFactor)
		if tx.hasDebt(user) {
			totals, err := tx.totals(user)
			if err != nil {
				return err
			}
			hf = totals.healthFactor()
			if !totals.debtUSD.IsZero() && hf.Cmp(Wad) < 0 {
				return ErrInsufficientCollateral
			}
		}
		receipt = newReceipt(tx, actionWithdraw, pos, amount, burn, hf)
		tx.emit(events.LendingWithdraw{LendingPosition: positionEvent(receipt, pos.CollateralScaled)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Borrow draws amount of asset against the user's collateral.
func (p *Pool) Borrow(ctx context.Context, user, asset string, amount *uint256.Int) (*Receipt, error) {
	user, err := normalizeUser(user)
	if err != nil {
		return nil, err
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	cfg, err := p.risk.Config(asset)
	if err != nil {
		return nil, err
	}
	var receipt *Receipt
	err = p.run(ctx, actionBorrow, func(tx *txn) error {
		reserve, err := tx.reserve(cfg)
		if err != nil {
			return err
		}
		if reserve.AvailableLiquidity().Cmp(amount) < 0 {
			return ErrInsufficientLiquidity
		}
		scaled := rayDivUp(amount, reserve.BorrowIndex)
		pos := tx.position(user, cfg.Symbol)
		pos.DebtScaled = add(pos.DebtScaled, scaled)
		reserve.TotalBorrowedScaled = add(reserve.TotalBorrowedScaled, scaled)
		totals, err := tx.totals(user)
		if err != nil {
			return err
		}
		hf := totals.healthFactor()
		switch p.opts.BorrowGate {
		case BorrowGateLTV:
			if totals.ltvUSD.Cmp(totals.debtUSD) < 0 {
				return ErrHealthFactorTooLow
			}
		default:
			if hf.Cmp(Wad) < 0 {
				return ErrHealthFactorTooLow
			}
		}
		receipt = newReceipt(tx, actionBorrow, pos, amount, scaled, hf)
		tx.emit(events.LendingBorrow{LendingPosition: positionEvent(receipt, pos.DebtScaled)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Repay reduces the user's own debt in asset.
func (p *Pool) Repay(ctx context.Context, user, asset string, amount *uint256.Int) (*Receipt, error) {
	return p.RepayOnBehalf(ctx, user, user, asset, amount)
}

// RepayOnBehalf reduces borrower's debt in asset with funds from payer. The
// amount is capped at the outstanding debt; the receipt reports the amount
// actually applied.
func (p *Pool) RepayOnBehalf(ctx context.Context, payer, borrower, asset string, amount *uint256.Int) (*Receipt, error) {
	payer, err := normalizeUser(payer)
	if err != nil {
		return nil, err
	}
	borrower, err = normalizeUser(borrower)
	if err != nil {
		return nil, err
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	cfg, err := p.lookup(asset)
	if err != nil {
		return nil, err
	}
	var receipt *Receipt
	err = p.run(ctx, actionRepay, func(tx *txn) error {
		reserve, err := tx.reserve(cfg)
		if err != nil {
			return err
		}
		pos := tx.position(borrower, cfg.Symbol)
		paid, burned, err := repayDebt(reserve, pos, amount)
		if err != nil {
			return err
		}
		receipt = newReceipt(tx, actionRepay, pos, paid, burned, tx.healthFactorIfPriced(borrower))
		tx.emit(events.LendingRepay{LendingPosition: positionEvent(receipt, pos.DebtScaled), Payer: payer})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// repayDebt burns up to amount of pos debt. A payment covering the full real
// debt burns all scaled debt; partial payments burn rounded down.
func repayDebt(reserve *Reserve, pos *Position, amount *uint256.Int) (paid, burned *uint256.Int, err error) {
	debt := rayMulUp(pos.DebtScaled, reserve.BorrowIndex)
	if debt.IsZero() {
		return nil, nil, ErrNoDebtToRepay
	}
	if amount.Cmp(debt) >= 0 {
		paid = debt
		burned = clone(pos.DebtScaled)
	} else {
		paid = clone(amount)
		burned = minOf(rayDiv(amount, reserve.BorrowIndex), pos.DebtScaled)
	}
	pos.DebtScaled = sub(pos.DebtScaled, burned)
	reserve.TotalBorrowedScaled = sub(reserve.TotalBorrowedScaled, burned)
	return paid, burned, nil
}

// Liquidate repays debtToCover of borrower's debtAsset on behalf of liquidator
// and transfers collateralAsset worth the repaid value plus the liquidation
// bonus. The borrower must have a health factor below one.
func (p *Pool) Liquidate(ctx context.Context, liquidator, collateralAsset, debtAsset, borrower string, debtToCover *uint256.Int) (*LiquidationReceipt, error) {
	liquidator, err := normalizeUser(liquidator)
	if err != nil {
		return nil, err
	}
	borrower, err = normalizeUser(borrower)
	if err != nil {
		return nil, err
	}
	if err := positive(debtToCover); err != nil {
		return nil, err
	}
	collCfg, err := p.lookup(collateralAsset)
	if err != nil {
		return nil, err
	}
	debtCfg, err := p.lookup(debtAsset)
	if err != nil {
		return nil, err
	}
	if liquidator == borrower {
		return nil, ErrSelfLiquidation
	}
	var receipt *LiquidationReceipt
	err = p.run(ctx, actionLiquidate, func(tx *txn) error {
		debtReserve, err := tx.reserve(debtCfg)
		if err != nil {
			return err
		}
		collReserve, err := tx.reserve(collCfg)
		if err != nil {
			return err
		}
		before, err := tx.healthFactor(borrower)
		if err != nil {
			return err
		}
		if before.Cmp(Wad) >= 0 {
			return ErrBorrowerNotLiquidatable
		}
		debtPos := tx.position(borrower, debtCfg.Symbol)
		debt := rayMulUp(debtPos.DebtScaled, debtReserve.BorrowIndex)
		if debt.IsZero() {
			return ErrNoDebtToRepay
		}
		cover := clone(debtToCover)
		maxCover := mulDivUp(debt, uint256.NewInt(p.opts.CloseFactorBps), basisPoints)
		if cover.Cmp(maxCover) > 0 {
			if !p.opts.ClampCloseFactor {
				return ErrCloseFactorExceeded
			}
			cover = maxCover
		}
		debtPrice, err := p.oracle.Price(debtCfg.Symbol)
		if err != nil {
			return err
		}
		collPrice, err := p.oracle.Price(collCfg.Symbol)
		if err != nil {
			return err
		}
		collPos := tx.position(borrower, collCfg.Symbol)
		available := rayMul(collPos.CollateralScaled, collReserve.LiquidityIndex)
		seized := seizeAmount(cover, debtPrice, collPrice, debtCfg, collCfg)
		if seized.Cmp(available) > 0 {
			seized = available
			cover = coverForSeized(seized, debtPrice, collPrice, debtCfg, collCfg)
		}
		if seized.IsZero() || cover.IsZero() {
			return ErrInsufficientCollateral
		}
		cover, _, err = repayDebt(debtReserve, debtPos, cover)
		if err != nil {
			return err
		}
		if collReserve.AvailableLiquidity().Cmp(seized) < 0 {
			return ErrInsufficientLiquidity
		}
		burn := clone(collPos.CollateralScaled)
		if seized.Cmp(available) < 0 {
			burn = minOf(rayDivUp(seized, collReserve.LiquidityIndex), collPos.CollateralScaled)
		}
		collPos.CollateralScaled = sub(collPos.CollateralScaled, burn)
		collReserve.TotalSuppliedScaled = sub(collReserve.TotalSuppliedScaled, burn)
		after, err := tx.healthFactor(borrower)
		if err != nil {
			return err
		}
		receipt = &LiquidationReceipt{
			ID:                       uuid.NewString(),
			Liquidator:               liquidator,
			Borrower:                 borrower,
			CollateralAsset:          collCfg.Symbol,
			DebtAsset:                debtCfg.Symbol,
			DebtCovered:              cover,
			CollateralSeized:         seized,
			BorrowerDebtScaled:       clone(debtPos.DebtScaled),
			BorrowerCollateralScaled: clone(collPos.CollateralScaled),
			HealthFactorBefore:       before,
			HealthFactorAfter:        after,
			Timestamp:                tx.now,
		}
		tx.emit(events.LendingLiquidation{
			LendingPosition: events.LendingPosition{
				ID:        receipt.ID,
				User:      borrower,
				Asset:     debtCfg.Symbol,
				Amount:    clone(cover),
				Scaled:    clone(debtPos.DebtScaled),
				Timestamp: tx.now,
			},
			Liquidator:       liquidator,
			CollateralAsset:  collCfg.Symbol,
			Seized:           clone(seized),
			CollateralScaled: clone(collPos.CollateralScaled),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// seizeAmount converts cover of the debt asset into collateral units at the
// oracle prices plus the liquidation bonus, rounded down.
func seizeAmount(cover, debtPrice, collPrice *uint256.Int, debtCfg, collCfg RiskConfig) *uint256.Int {
	num := mul(cover, debtPrice)
	scale := mul(pow10(collCfg.Decimals), uint256.NewInt(collCfg.LiquidationBonusBps))
	den := mul(mul(collPrice, pow10(debtCfg.Decimals)), basisPoints)
	return mulDiv(num, scale, den)
}

// coverForSeized is the inverse of seizeAmount, rounded up so a clamped
// liquidation never settles for less debt than the collateral it takes.
func coverForSeized(seized, debtPrice, collPrice *uint256.Int, debtCfg, collCfg RiskConfig) *uint256.Int {
	num := mul(seized, collPrice)
	scale := mul(pow10(debtCfg.Decimals), basisPoints)
	den := mul(mul(debtPrice, pow10(collCfg.Decimals)), uint256.NewInt(collCfg.LiquidationBonusBps))
	return mulDivUp(num, scale, den)
}

// FlashLoanFunc receives a flash loan and returns the amount handed back to
// the pool. It runs under the pool lock and must not call into the pool.
type FlashLoanFunc func(ctx context.Context, asset string, amount, fee *uint256.Int) (*uint256.Int, error)

// FlashLoan lends amount of asset to fn for the duration of the call. The
// loan succeeds only if fn returns at least amount plus the fee; the fee is
// distributed to suppliers through the liquidity index.
func (p *Pool) FlashLoan(ctx context.Context, receiver, asset string, amount *uint256.Int, fn FlashLoanFunc) (*FlashLoanReceipt, error) {
	receiver, err := normalizeUser(receiver)
	if err != nil {
		return nil, err
	}
	if err := positive(amount); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.New("lending: flash loan callback required")
	}
	cfg, err := p.risk.Config(asset)
	if err != nil {
		return nil, err
	}
	var receipt *FlashLoanReceipt
	err = p.run(ctx, actionFlashLoan, func(tx *txn) error {
		reserve, err := tx.reserve(cfg)
		if err != nil {
			return err
		}
		if reserve.AvailableLiquidity().Cmp(amount) < 0 {
			return ErrInsufficientLiquidity
		}
		fee := mulDivUp(amount, uint256.NewInt(p.opts.FlashLoanFeeBps), basisPoints)
		returned, err := fn(ctx, cfg.Symbol, clone(amount), clone(fee))
		if err != nil {
			return fmt.Errorf("lending: flash loan receiver: %w", err)
		}
		if returned == nil || returned.Cmp(add(amount, fee)) < 0 {
			return ErrFlashLoanNotRepaid
		}
		if !fee.IsZero() {
			supplied := reserve.TotalSupplied()
			reserve.LiquidityIndex = rayMul(reserve.LiquidityIndex, add(Ray, rayDiv(fee, supplied)))
		}
		receipt = &FlashLoanReceipt{
			ID:        uuid.NewString(),
			Receiver:  receiver,
			Asset:     cfg.Symbol,
			Amount:    clone(amount),
			Fee:       fee,
			Timestamp: tx.now,
		}
		tx.emit(events.LendingFlashLoan{
			ID:        receipt.ID,
			Receiver:  receiver,
			Asset:     cfg.Symbol,
			Amount:    clone(amount),
			Fee:       clone(fee),
			Timestamp: tx.now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// MaxFlashLoan returns the largest amount of asset currently lendable.
func (p *Pool) MaxFlashLoan(ctx context.Context, asset string) (*uint256.Int, error) {
	cfg, err := p.risk.Config(asset)
	if err != nil {
		return nil, err
	}
	var out *uint256.Int
	err = p.view(ctx, func(tx *txn) error {
		reserve, err := tx.reserveView(cfg)
		if err != nil {
			return err
		}
		out = reserve.AvailableLiquidity()
		return nil
	})
	return out, err
}

// FlashLoanFee returns the fee charged for borrowing amount.
func (p *Pool) FlashLoanFee(amount *uint256.Int) *uint256.Int {
	p.mu.Lock()
	feeBps := p.opts.FlashLoanFeeBps
	p.mu.Unlock()
	if amount == nil {
		return zero()
	}
	return mulDivUp(amount, uint256.NewInt(feeBps), basisPoints)
}

// HealthFactor returns the user's wad health factor over virtually accrued
// reserves. Users without debt report MaxHealthFactor.
func (p *Pool) HealthFactor(ctx context.Context, user string) (*uint256.Int, error) {
	user, err := normalizeUser(user)
	if err != nil {
		return nil, err
	}
	var out *uint256.Int
	err = p.view(ctx, func(tx *txn) error {
		hf, err := tx.healthFactor(user)
		out = hf
		return err
	})
	return out, err
}

// AccountData summarises the user's balances, USD totals and health factor.
func (p *Pool) AccountData(ctx context.Context, user string) (*AccountData, error) {
	user, err := normalizeUser(user)
	if err != nil {
		return nil, err
	}
	var out *AccountData
	err = p.view(ctx, func(tx *txn) error {
		totals, err := tx.totals(user)
		if err != nil {
			return err
		}
		out = &AccountData{
			User:                 user,
			Balances:             totals.balances,
			TotalCollateralUSD:   totals.collateralUSD,
			TotalDebtUSD:         totals.debtUSD,
			AvailableBorrowsUSD:  subFloor(totals.ltvUSD, totals.debtUSD),
			WeightedThresholdUSD: totals.thresholdUSD,
			HealthFactor:         totals.healthFactor(),
		}
		return nil
	})
	return out, err
}

// ReserveData returns the reserve accrued to the current time without
// mutating it.
func (p *Pool) ReserveData(ctx context.Context, asset string) (*ReserveData, error) {
	cfg, err := p.lookup(asset)
	if err != nil {
		return nil, err
	}
	var out *ReserveData
	err = p.view(ctx, func(tx *txn) error {
		reserve, err := tx.reserveView(cfg)
		if err != nil {
			return err
		}
		utilization := reserve.Utilization()
		borrowRate, supplyRate := p.model.Rates(utilization, cfg.ReserveFactorBps)
		year := uint256.NewInt(SecondsPerYear)
		out = &ReserveData{
			Asset:              cfg.Symbol,
			Decimals:           cfg.Decimals,
			Active:             cfg.Active,
			TotalSupplied:      reserve.TotalSupplied(),
			TotalBorrowed:      reserve.TotalBorrowed(),
			AvailableLiquidity: reserve.AvailableLiquidity(),
			Utilization:        utilization,
			BorrowRate:         borrowRate,
			SupplyRate:         supplyRate,
			BorrowAPR:          mul(borrowRate, year),
			SupplyAPR:          mul(supplyRate, year),
			LiquidityIndex:     clone(reserve.LiquidityIndex),
			BorrowIndex:        clone(reserve.BorrowIndex),
			AccruedToTreasury:  clone(reserve.AccruedToTreasury),
			LastUpdate:         reserve.LastUpdate,
		}
		return nil
	})
	return out, err
}

// Position returns a copy of the committed position, or nil when absent.
func (p *Pool) Position(user, asset string) *Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[strings.TrimSpace(user)][NormalizeAsset(asset)].Clone()
}

// Snapshot returns a deep copy of the committed state in deterministic order.
func (p *Pool) Snapshot() *Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx := p.begin()
	for asset, r := range p.reserves {
		tx.reserves[asset] = r.Clone()
	}
	for user, byAsset := range p.positions {
		for asset, pos := range byAsset {
			tx.positions[positionKey(user, asset)] = pos.Clone()
		}
	}
	return tx.changes()
}

func newReceipt(tx *txn, action string, pos *Position, amount, delta, hf *uint256.Int) *Receipt {
	return &Receipt{
		ID:               uuid.NewString(),
		Action:           action,
		User:             pos.User,
		Asset:            pos.Asset,
		Amount:           clone(amount),
		ScaledDelta:      clone(delta),
		CollateralScaled: clone(pos.CollateralScaled),
		DebtScaled:       clone(pos.DebtScaled),
		HealthFactor:     hf,
		Timestamp:        tx.now,
	}
}

func positionEvent(r *Receipt, scaled *uint256.Int) events.LendingPosition {
	return events.LendingPosition{
		ID:        r.ID,
		User:      r.User,
		Asset:     r.Asset,
		Amount:    clone(r.Amount),
		Scaled:    clone(scaled),
		Timestamp: r.Timestamp,
	}
}
