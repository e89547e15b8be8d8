package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"credo/native/lending"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listen"`
	DataDir       string `toml:"DataDir" yaml:"dataDir"`
	Environment   string `toml:"Environment" yaml:"environment"`

	ReadTimeout     time.Duration `toml:"ReadTimeout" yaml:"readTimeout"`
	WriteTimeout    time.Duration `toml:"WriteTimeout" yaml:"writeTimeout"`
	IdleTimeout     time.Duration `toml:"IdleTimeout" yaml:"idleTimeout"`
	RequestTimeout  time.Duration `toml:"RequestTimeout" yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `toml:"ShutdownTimeout" yaml:"shutdownTimeout"`
	// ReserveMetricsInterval is how often reserve gauges are refreshed.
	ReserveMetricsInterval time.Duration `toml:"ReserveMetricsInterval" yaml:"reserveMetricsInterval"`
	// OracleMaxAge rejects prices older than this. Zero disables the check.
	OracleMaxAge time.Duration `toml:"OracleMaxAge" yaml:"oracleMaxAge"`

	Logging       Logging         `toml:"Logging" yaml:"logging"`
	Auth          Auth            `toml:"Auth" yaml:"auth"`
	CORS          CORS            `toml:"CORS" yaml:"cors"`
	RateLimit     RateLimit       `toml:"RateLimit" yaml:"rateLimit"`
	Telemetry     Telemetry       `toml:"Telemetry" yaml:"telemetry"`
	Pool          lending.Options `toml:"Pool" yaml:"pool"`
	InterestModel InterestModel   `toml:"InterestModel" yaml:"interestModel"`
	Assets        []Asset         `toml:"Assets" yaml:"assets"`
	Webhook       Webhook         `toml:"Webhook" yaml:"webhook"`
}

// Default returns a development configuration listing USDC and BTC.
func Default() *Config {
	return &Config{
		ListenAddress:          ":8080",
		DataDir:                "./credo-data",
		Environment:            "dev",
		ReadTimeout:            30 * time.Second,
		WriteTimeout:           30 * time.Second,
		IdleTimeout:            120 * time.Second,
		RequestTimeout:         10 * time.Second,
		ShutdownTimeout:        15 * time.Second,
		ReserveMetricsInterval: 15 * time.Second,
		Logging:                Logging{Level: "info"},
		Auth: Auth{
			ScopeClaim: "scope",
			AdminScope: "credo:admin",
			ClockSkew:  2 * time.Minute,
		},
		RateLimit: RateLimit{
			Enabled: true,
			Ledger:  Bucket{RatePerSecond: 20, Burst: 40},
			Admin:   Bucket{RatePerSecond: 2, Burst: 5},
		},
		Telemetry:     Telemetry{SampleRatio: 1},
		Pool:          lending.DefaultOptions(),
		InterestModel: InterestModel{BaseBps: 0, Slope1Bps: 400, Slope2Bps: 7500, OptimalBps: 8000},
		Assets:        defaultAssets(),
	}
}

func defaultAssets() []Asset {
	return []Asset{
		{Symbol: "USDC", Decimals: 6, LTVBps: 7500, LiquidationThresholdBps: 8000, LiquidationBonusBps: 10500, ReserveFactorBps: 1000, Price: "1"},
		{Symbol: "BTC", Decimals: 8, LTVBps: 7500, LiquidationThresholdBps: 8000, LiquidationBonusBps: 10500, ReserveFactorBps: 1000, Price: "50000"},
	}
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML. A missing file is created with
// the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.Assets = nil
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	}
	if len(cfg.Assets) == 0 {
		cfg.Assets = defaultAssets()
	}
	cfg.resolveSecrets()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) resolveSecrets() {
	if cfg.Auth.HMACSecret == "" && cfg.Auth.HMACSecretEnv != "" {
		cfg.Auth.HMACSecret = os.Getenv(cfg.Auth.HMACSecretEnv)
	}
	if cfg.Webhook.Secret == "" && cfg.Webhook.SecretEnv != "" {
		cfg.Webhook.Secret = os.Getenv(cfg.Webhook.SecretEnv)
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
