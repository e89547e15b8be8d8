package config

import (
	"errors"
	"fmt"
	"strings"

	"credo/native/lending"
)

var ErrAuthRequired = errors.New("auth must be enabled with a secret outside dev environments")

func (cfg *Config) isSensitiveDeployment() bool {
	switch strings.ToLower(strings.TrimSpace(cfg.Environment)) {
	case "", "dev", "development", "local", "test":
		return false
	}
	return true
}

// Validate checks the configuration for internal consistency.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("DataDir required")
	}
	if cfg.isSensitiveDeployment() && (!cfg.Auth.Enabled || cfg.Auth.HMACSecret == "") {
		return ErrAuthRequired
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: HMACSecret required when enabled")
	}
	if cfg.RateLimit.Enabled {
		for name, bucket := range map[string]Bucket{"ledger": cfg.RateLimit.Ledger, "admin": cfg.RateLimit.Admin} {
			if bucket.RatePerSecond <= 0 || bucket.Burst <= 0 {
				return fmt.Errorf("rateLimit.%s: rate and burst must be positive", name)
			}
		}
	}
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: SampleRatio %v outside [0,1]", r)
	}
	if err := cfg.Pool.Validate(); err != nil {
		return err
	}
	if err := cfg.interestModel().Validate(); err != nil {
		return err
	}
	if len(cfg.Assets) == 0 {
		return fmt.Errorf("at least one asset required")
	}
	seen := make(map[string]struct{}, len(cfg.Assets))
	for i, asset := range cfg.Assets {
		symbol := lending.NormalizeAsset(asset.Symbol)
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("assets[%d]: duplicate symbol %s", i, symbol)
		}
		seen[symbol] = struct{}{}
		if err := asset.riskConfig().Validate(); err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
		if _, err := asset.seedPrice(); err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
	}
	if cfg.Webhook.Enabled() && cfg.Webhook.Secret == "" {
		return fmt.Errorf("webhook: Secret required when Endpoint is set")
	}
	return nil
}
