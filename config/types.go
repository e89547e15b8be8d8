package config

import "time"

// Logging configures the structured logger and its optional rotated file sink.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"maxAgeDays"`
}

// Auth configures bearer token validation for the HTTP API.
type Auth struct {
	Enabled       bool          `toml:"Enabled" yaml:"enabled"`
	HMACSecret    string        `toml:"HMACSecret" yaml:"hmacSecret"`
	HMACSecretEnv string        `toml:"HMACSecretEnv" yaml:"hmacSecretEnv"`
	Issuer        string        `toml:"Issuer" yaml:"issuer"`
	Audience      string        `toml:"Audience" yaml:"audience"`
	ScopeClaim    string        `toml:"ScopeClaim" yaml:"scopeClaim"`
	AdminScope    string        `toml:"AdminScope" yaml:"adminScope"`
	ClockSkew     time.Duration `toml:"ClockSkew" yaml:"clockSkew"`
}

type CORS struct {
	AllowedOrigins []string `toml:"AllowedOrigins" yaml:"allowedOrigins"`
}

// Bucket is one token bucket policy.
type Bucket struct {
	RatePerSecond float64 `toml:"RatePerSecond" yaml:"ratePerSecond"`
	Burst         int     `toml:"Burst" yaml:"burst"`
}

// RateLimit holds the per-caller buckets for ledger and admin routes. Tokens
// overrides the cost of individual routes keyed as "METHOD /path".
type RateLimit struct {
	Enabled bool           `toml:"Enabled" yaml:"enabled"`
	Ledger  Bucket         `toml:"Ledger" yaml:"ledger"`
	Admin   Bucket         `toml:"Admin" yaml:"admin"`
	Tokens  map[string]int `toml:"Tokens" yaml:"tokens"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
}

// InterestModel holds the two-slope curve in basis points.
type InterestModel struct {
	BaseBps    uint64 `toml:"BaseBps" yaml:"baseBps"`
	Slope1Bps  uint64 `toml:"Slope1Bps" yaml:"slope1Bps"`
	Slope2Bps  uint64 `toml:"Slope2Bps" yaml:"slope2Bps"`
	OptimalBps uint64 `toml:"OptimalBps" yaml:"optimalBps"`
}

// Asset lists one reserve. Price is the USD seed price as a decimal string;
// an empty price leaves the asset unpriced until an admin sets one.
type Asset struct {
	Symbol                  string `toml:"Symbol" yaml:"symbol"`
	Decimals                uint8  `toml:"Decimals" yaml:"decimals"`
	Active                  *bool  `toml:"Active" yaml:"active"`
	LTVBps                  uint64 `toml:"LTVBps" yaml:"ltvBps"`
	LiquidationThresholdBps uint64 `toml:"LiquidationThresholdBps" yaml:"liquidationThresholdBps"`
	LiquidationBonusBps     uint64 `toml:"LiquidationBonusBps" yaml:"liquidationBonusBps"`
	ReserveFactorBps        uint64 `toml:"ReserveFactorBps" yaml:"reserveFactorBps"`
	Price                   string `toml:"Price" yaml:"price"`
}

// IsActive defaults to true when Active is omitted.
func (a Asset) IsActive() bool { return a.Active == nil || *a.Active }

// Webhook configures liquidation notifications. An empty endpoint disables it.
type Webhook struct {
	Endpoint    string        `toml:"Endpoint" yaml:"endpoint"`
	Secret      string        `toml:"Secret" yaml:"secret"`
	SecretEnv   string        `toml:"SecretEnv" yaml:"secretEnv"`
	Events      []string      `toml:"Events" yaml:"events"`
	MaxAttempts int           `toml:"MaxAttempts" yaml:"maxAttempts"`
	MinBackoff  time.Duration `toml:"MinBackoff" yaml:"minBackoff"`
	MaxBackoff  time.Duration `toml:"MaxBackoff" yaml:"maxBackoff"`
}

func (w Webhook) Enabled() bool { return w.Endpoint != "" }
