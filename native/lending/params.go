package lending

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Asset identifies a listed token and the precision of its base unit.
type Asset struct {
	Symbol   string
	Decimals uint8
	Active   bool
}

// RiskConfig groups the governance controlled safety limits for one asset.
// All values are basis points.
type RiskConfig struct {
	Asset
	// LTVBps is the maximum loan-to-value granted at origination.
	LTVBps uint64
	// LiquidationThresholdBps is the collateral weight used by the health factor.
	LiquidationThresholdBps uint64
	// LiquidationBonusBps is the seize multiplier paid to liquidators, 10500 = 5%.
	LiquidationBonusBps uint64
	// ReserveFactorBps is the protocol share of borrower interest.
	ReserveFactorBps uint64
}

const maxDecimals = 36

// Validate checks the structural constraints on a risk configuration.
func (c RiskConfig) Validate() error {
	symbol := NormalizeAsset(c.Symbol)
	if symbol == "" {
		return fmt.Errorf("%w: symbol required", ErrInvalidRiskConfig)
	}
	if !validSymbol(symbol) {
		return fmt.Errorf("%w: symbol %q may only use A-Z, 0-9, '.', '_' and '-'", ErrInvalidRiskConfig, symbol)
	}
	if c.Decimals > maxDecimals {
		return fmt.Errorf("%w: decimals %d exceed %d", ErrInvalidRiskConfig, c.Decimals, maxDecimals)
	}
	if c.LTVBps == 0 || c.LTVBps >= c.LiquidationThresholdBps {
		return fmt.Errorf("%w: ltv must be positive and below the liquidation threshold", ErrInvalidRiskConfig)
	}
	if c.LiquidationThresholdBps > bpsDenominator {
		return fmt.Errorf("%w: liquidation threshold above 100%%", ErrInvalidRiskConfig)
	}
	if c.LiquidationBonusBps < bpsDenominator {
		return fmt.Errorf("%w: liquidation bonus below 100%%", ErrInvalidRiskConfig)
	}
	if c.LiquidationBonusBps > bpsDenominator*bpsDenominator/c.LiquidationThresholdBps {
		return fmt.Errorf("%w: threshold × bonus exceeds 100%%", ErrInvalidRiskConfig)
	}
	if c.ReserveFactorBps > bpsDenominator {
		return fmt.Errorf("%w: reserve factor above 100%%", ErrInvalidRiskConfig)
	}
	return nil
}

// validSymbol keeps symbols free of the separators used in storage keys.
func validSymbol(symbol string) bool {
	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// NormalizeAsset canonicalises an asset symbol.
func NormalizeAsset(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// RiskRegistry is the read-only view of risk parameters consumed by the pool.
type RiskRegistry interface {
	// Config returns the configuration of an active asset.
	Config(asset string) (RiskConfig, error)
	// Lookup returns the configuration of a registered asset even when inactive.
	Lookup(asset string) (RiskConfig, bool)
	// Assets lists registered symbols in sorted order.
	Assets() []string
}

// Registry is the in-memory risk configuration store. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]RiskConfig
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]RiskConfig)}
}

// Set validates and stores the configuration for an asset, replacing any
// previous entry.
func (r *Registry) Set(cfg RiskConfig) error {
	cfg.Symbol = NormalizeAsset(cfg.Symbol)
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Symbol] = cfg
	return nil
}

// SetActive toggles the active flag of a registered asset.
func (r *Registry) SetActive(asset string, active bool) error {
	asset = NormalizeAsset(asset)
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotSupported, asset)
	}
	cfg.Active = active
	r.configs[asset] = cfg
	return nil
}

func (r *Registry) Config(asset string) (RiskConfig, error) {
	cfg, ok := r.Lookup(asset)
	if !ok || !cfg.Active {
		return RiskConfig{}, fmt.Errorf("%w: %s", ErrAssetNotSupported, NormalizeAsset(asset))
	}
	return cfg, nil
}

func (r *Registry) Lookup(asset string) (RiskConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[NormalizeAsset(asset)]
	return cfg, ok
}

func (r *Registry) Assets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.configs))
	for symbol := range r.configs {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// ActionPauses exposes fine-grained switches for pausing individual lending
// flows on top of the module-wide pause.
type ActionPauses struct {
	Supply    bool `toml:"Supply" yaml:"supply"`
	Withdraw  bool `toml:"Withdraw" yaml:"withdraw"`
	Borrow    bool `toml:"Borrow" yaml:"borrow"`
	Repay     bool `toml:"Repay" yaml:"repay"`
	Liquidate bool `toml:"Liquidate" yaml:"liquidate"`
	FlashLoan bool `toml:"FlashLoan" yaml:"flashLoan"`
}

func (p ActionPauses) paused(action string) bool {
	switch action {
	case actionDeposit:
		return p.Supply
	case actionWithdraw:
		return p.Withdraw
	case actionBorrow:
		return p.Borrow
	case actionRepay:
		return p.Repay
	case actionLiquidate:
		return p.Liquidate
	case actionFlashLoan:
		return p.FlashLoan
	default:
		return false
	}
}
