package lending

import (
	"sort"

	"github.com/holiman/uint256"

	"credo/core/events"
)

// txn stages every mutation of one pool operation on copies. Nothing it holds
// is visible to other operations until the pool commits it.
type txn struct {
	pool      *Pool
	now       uint64
	reserves  map[string]*Reserve
	positions map[string]*Position
	views     map[string]*Reserve
	events    []events.Event
}

func positionKey(user, asset string) string { return user + "\x00" + asset }

func (p *Pool) begin() *txn {
	return &txn{
		pool:      p,
		now:       p.timestamp(),
		reserves:  make(map[string]*Reserve),
		positions: make(map[string]*Position),
		views:     make(map[string]*Reserve),
	}
}

// reserve stages the reserve for mutation, accruing it to the txn time on
// first touch.
func (t *txn) reserve(cfg RiskConfig) (*Reserve, error) {
	if r, ok := t.reserves[cfg.Symbol]; ok {
		return r, nil
	}
	committed, ok := t.pool.reserves[cfg.Symbol]
	if !ok {
		return nil, ErrReserveNotListed
	}
	r := committed.Clone()
	r.Accrue(t.now, t.pool.model, cfg.ReserveFactorBps)
	t.reserves[cfg.Symbol] = r
	return r, nil
}

// reserveView returns the staged reserve or a virtually accrued copy that is
// never committed.
func (t *txn) reserveView(cfg RiskConfig) (*Reserve, error) {
	if r, ok := t.reserves[cfg.Symbol]; ok {
		return r, nil
	}
	if r, ok := t.views[cfg.Symbol]; ok {
		return r, nil
	}
	committed, ok := t.pool.reserves[cfg.Symbol]
	if !ok {
		return nil, ErrReserveNotListed
	}
	r := committed.Projected(t.now, t.pool.model, cfg.ReserveFactorBps)
	t.views[cfg.Symbol] = r
	return r, nil
}

// position stages a user's position in an asset, creating it when absent.
func (t *txn) position(user, asset string) *Position {
	key := positionKey(user, asset)
	if pos, ok := t.positions[key]; ok {
		return pos
	}
	var pos *Position
	if committed := t.pool.positions[user][asset]; committed != nil {
		pos = committed.Clone()
	} else {
		pos = newPosition(user, asset)
	}
	t.positions[key] = pos
	return pos
}

func (t *txn) positionView(user, asset string) *Position {
	if pos, ok := t.positions[positionKey(user, asset)]; ok {
		return pos
	}
	return t.pool.positions[user][asset]
}

func (t *txn) userAssets(user string) []string {
	set := make(map[string]struct{})
	for asset := range t.pool.positions[user] {
		set[asset] = struct{}{}
	}
	for _, pos := range t.positions {
		if pos.User == user {
			set[pos.Asset] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for asset := range set {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}

// hasDebt reports whether any staged or committed position of user owes
// something. Debt-free accounts need no prices to stay healthy.
func (t *txn) hasDebt(user string) bool {
	for _, asset := range t.userAssets(user) {
		if pos := t.positionView(user, asset); !isZero(pos.DebtScaled) {
			return true
		}
	}
	return false
}

func (t *txn) emit(evt events.Event) {
	t.events = append(t.events, evt)
}

// accountTotals aggregates the user's USD exposure with collateral rounded
// down and debt rounded up.
type accountTotals struct {
	balances      []AssetBalance
	collateralUSD *uint256.Int
	thresholdUSD  *uint256.Int
	ltvUSD        *uint256.Int
	debtUSD       *uint256.Int
}

func (a *accountTotals) healthFactor() *uint256.Int {
	if a.debtUSD.IsZero() {
		return clone(MaxHealthFactor)
	}
	return mulDiv(a.thresholdUSD, Wad, a.debtUSD)
}

func (t *txn) totals(user string) (*accountTotals, error) {
	out := &accountTotals{
		collateralUSD: zero(),
		thresholdUSD:  zero(),
		ltvUSD:        zero(),
		debtUSD:       zero(),
	}
	for _, asset := range t.userAssets(user) {
		pos := t.positionView(user, asset)
		if pos.Empty() {
			continue
		}
		cfg, ok := t.pool.risk.Lookup(asset)
		if !ok {
			return nil, ErrAssetNotSupported
		}
		reserve, err := t.reserveView(cfg)
		if err != nil {
			return nil, err
		}
		price, err := t.pool.oracle.Price(asset)
		if err != nil {
			return nil, err
		}
		balance := AssetBalance{
			Asset:         asset,
			Collateral:    rayMul(pos.CollateralScaled, reserve.LiquidityIndex),
			Debt:          rayMulUp(pos.DebtScaled, reserve.BorrowIndex),
			CollateralUSD: zero(),
			DebtUSD:       zero(),
		}
		if !balance.Collateral.IsZero() {
			balance.CollateralUSD = usdValue(balance.Collateral, price, cfg.Decimals)
			out.collateralUSD = add(out.collateralUSD, balance.CollateralUSD)
			out.thresholdUSD = add(out.thresholdUSD, percentMul(balance.CollateralUSD, cfg.LiquidationThresholdBps))
			out.ltvUSD = add(out.ltvUSD, percentMul(balance.CollateralUSD, cfg.LTVBps))
		}
		if !balance.Debt.IsZero() {
			balance.DebtUSD = usdValueUp(balance.Debt, price, cfg.Decimals)
			out.debtUSD = add(out.debtUSD, balance.DebtUSD)
		}
		out.balances = append(out.balances, balance)
	}
	return out, nil
}

func (t *txn) healthFactor(user string) (*uint256.Int, error) {
	totals, err := t.totals(user)
	if err != nil {
		return nil, err
	}
	return totals.healthFactor(), nil
}

// healthFactorIfPriced returns nil when a price needed for the health factor
// is unavailable. Deposits and repayments only improve solvency and are not
// blocked on prices.
func (t *txn) healthFactorIfPriced(user string) *uint256.Int {
	hf, err := t.healthFactor(user)
	if err != nil {
		return nil
	}
	return hf
}

// changes returns the staged records in deterministic order.
func (t *txn) changes() *Snapshot {
	out := &Snapshot{}
	for _, r := range t.reserves {
		out.Reserves = append(out.Reserves, r)
	}
	for _, p := range t.positions {
		out.Positions = append(out.Positions, p)
	}
	sort.Slice(out.Reserves, func(i, j int) bool { return out.Reserves[i].Asset < out.Reserves[j].Asset })
	sort.Slice(out.Positions, func(i, j int) bool {
		if out.Positions[i].User != out.Positions[j].User {
			return out.Positions[i].User < out.Positions[j].User
		}
		return out.Positions[i].Asset < out.Positions[j].Asset
	})
	return out
}
