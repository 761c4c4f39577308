package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/devghori1264/aerophoenix/battlefield/internal/contract"
	"github.com/devghori1264/aerophoenix/battlefield/internal/models"
	"gopkg.in/yaml.v3"
)

// Config holds all battlefieldd configuration.
type Config struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	DBPath      string `yaml:"db_path"`

	NATS     NATSConfig     `yaml:"nats"`
	Contract ContractConfig `yaml:"contract"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`

	// Genesis accounts are created on first start only.
	Genesis []GenesisAccount `yaml:"genesis"`
}

// NATSConfig configures the receipt event stream. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// ContractConfig configures the deployed contract.
type ContractConfig struct {
	Account  string `yaml:"account"`
	Overflow string `yaml:"overflow"` // wrap, saturate
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

type GenesisAccount struct {
	ID      string `yaml:"id"`
	Balance uint64 `yaml:"balance"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		GRPCAddr:    ":50051",
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		DBPath:      "./data/badger",
		NATS: NATSConfig{
			SubjectPrefix: "battlefield",
		},
		Contract: ContractConfig{
			Account:  "battlefield.near",
			Overflow: "wrap",
		},
		Log: LogConfig{Level: "info"},
		Genesis: []GenesisAccount{
			{ID: "near", Balance: 1_000_000_000},
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies BATTLEFIELD_* environment variables.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"BATTLEFIELD_GRPC_ADDR":        &c.GRPCAddr,
		"BATTLEFIELD_HTTP_ADDR":        &c.HTTPAddr,
		"BATTLEFIELD_METRICS_ADDR":     &c.MetricsAddr,
		"BATTLEFIELD_DB_PATH":          &c.DBPath,
		"BATTLEFIELD_NATS_URL":         &c.NATS.URL,
		"BATTLEFIELD_NATS_PREFIX":      &c.NATS.SubjectPrefix,
		"BATTLEFIELD_CONTRACT_ACCOUNT": &c.Contract.Account,
		"BATTLEFIELD_OVERFLOW":         &c.Contract.Overflow,
		"BATTLEFIELD_LOG_LEVEL":        &c.Log.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("BATTLEFIELD_TRACING"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BATTLEFIELD_TRACING: %w", err)
		}
		c.Tracing.Enabled = enabled
	}
	return nil
}

// Validate checks the configuration for values the host cannot run with.
func (c *Config) Validate() error {
	var errs []error
	for name, addr := range map[string]string{
		"grpc_addr":    c.GRPCAddr,
		"http_addr":    c.HTTPAddr,
		"metrics_addr": c.MetricsAddr,
		"db_path":      c.DBPath,
	} {
		if strings.TrimSpace(addr) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if !contract.ValidAccountID(c.Contract.Account) {
		errs = append(errs, fmt.Errorf("contract.account %q is not a valid account id", c.Contract.Account))
	}
	if _, err := contract.ParseOverflowPolicy(c.Contract.Overflow); err != nil {
		errs = append(errs, fmt.Errorf("contract.overflow: %w", err))
	}
	for _, g := range c.Genesis {
		if !contract.ValidAccountID(g.ID) {
			errs = append(errs, fmt.Errorf("genesis account %q is not a valid account id", g.ID))
		}
	}
	return errors.Join(errs...)
}

// OverflowPolicy returns the parsed contract overflow policy.
func (c *Config) OverflowPolicy() contract.OverflowPolicy {
	p, _ := contract.ParseOverflowPolicy(c.Contract.Overflow)
	return p
}

// GenesisAccounts converts the genesis list into ledger accounts.
func (c *Config) GenesisAccounts() []models.Account {
	out := make([]models.Account, 0, len(c.Genesis))
	for _, g := range c.Genesis {
		out = append(out, models.Account{ID: g.ID, Balance: g.Balance})
	}
	return out
}
