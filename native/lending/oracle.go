package lending

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
)

// Oracle supplies the current USD price of an asset with 8 fractional digits.
type Oracle interface {
	Price(asset string) (*uint256.Int, error)
}

type priceEntry struct {
	price     *uint256.Int
	updatedAt time.Time
}

// StaticOracle is an in-memory settable price source. When MaxAge is set,
// prices older than MaxAge are reported as unavailable.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]priceEntry
	maxAge time.Duration
	now    func() time.Time
}

// NewStaticOracle returns an empty oracle without a staleness bound.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{prices: make(map[string]priceEntry), now: time.Now}
}

// SetMaxAge bounds how old a price may be before lookups fail. Zero disables
// the check.
func (o *StaticOracle) SetMaxAge(d time.Duration) {
	o.mu.Lock()
	o.maxAge = d
	o.mu.Unlock()
}

// SetClock overrides the time source used for staleness checks.
func (o *StaticOracle) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	o.mu.Lock()
	o.now = now
	o.mu.Unlock()
}

// SetPrice records an 8-decimal USD price for the asset.
func (o *StaticOracle) SetPrice(asset string, price *uint256.Int) error {
	asset = NormalizeAsset(asset)
	if asset == "" {
		return fmt.Errorf("%w: asset required", ErrPriceUnavailable)
	}
	if isZero(price) {
		return fmt.Errorf("%w: %s price must be positive", ErrPriceUnavailable, asset)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[asset] = priceEntry{price: clone(price), updatedAt: o.now()}
	return nil
}

func (o *StaticOracle) Price(asset string) (*uint256.Int, error) {
	asset = NormalizeAsset(asset)
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.prices[asset]
	if !ok || isZero(entry.price) {
		return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, asset)
	}
	if o.maxAge > 0 && o.now().Sub(entry.updatedAt) > o.maxAge {
		return nil, fmt.Errorf("%w: %s price is stale", ErrPriceUnavailable, asset)
	}
	return clone(entry.price), nil
}

// UpdatedAt reports when the asset price was last set.
func (o *StaticOracle) UpdatedAt(asset string) (time.Time, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.prices[NormalizeAsset(asset)]
	return entry.updatedAt, ok
}
