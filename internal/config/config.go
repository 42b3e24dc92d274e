package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tradefloor/auctioneer/internal/leader"
	"github.com/tradefloor/auctioneer/internal/money"
)

// Config represents the application configuration.
type Config struct {
	Auction        AuctionConfig   `yaml:"auction"`
	Database       DatabaseConfig  `yaml:"database"`
	Server         ServerConfig    `yaml:"server"`
	Telemetry      TelemetryConfig `yaml:"telemetry"`
	LeaderElection leader.Config   `yaml:"leader_election"`
}

// AuctionConfig holds the bidding and time-arbitration settings.
type AuctionConfig struct {
	// AntiSnipeWindow is the trailing interval before end time during which
	// an accepted bid extends the auction.
	AntiSnipeWindow time.Duration `yaml:"anti_snipe_window"`
	// MaxExtensions caps anti-snipe extensions per auction.
	MaxExtensions int `yaml:"max_extensions"`
	// CommitRetries bounds the read-validate-swap retry loop for one bid.
	CommitRetries int `yaml:"commit_retries"`
	// SweepInterval is the cadence of the closure sweep.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// DefaultDuration applies when an auction is created without one.
	DefaultDuration time.Duration `yaml:"default_duration"`
	// Increment defines the minimum-raise policy.
	Increment IncrementConfig `yaml:"increment"`
}

// IncrementConfig is the minimum-raise table in decimal major units.
// Tiers apply to current prices up to their ceiling; prices above every
// tier fall back to Flat.
type IncrementConfig struct {
	Flat  string       `yaml:"flat"`
	Tiers []TierConfig `yaml:"tiers"`
}

// TierConfig is one row of a tiered increment table.
type TierConfig struct {
	UpTo string `yaml:"up_to"`
	Step string `yaml:"step"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "postgres" or "memory"
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// Load reads a YAML configuration file from the given path. The database
// password may be supplied out-of-band via AUCTIONEER_DB_PASSWORD.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{
		Auction: AuctionConfig{
			AntiSnipeWindow: 120 * time.Second,
			MaxExtensions:   10,
			CommitRetries:   3,
			SweepInterval:   time.Second,
			DefaultDuration: 24 * time.Hour,
			Increment:       IncrementConfig{Flat: "1.00"},
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "postgres",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctioneer",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: leader.Defaults(),
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if pw := os.Getenv("AUCTIONEER_DB_PASSWORD"); pw != "" {
		cfg.Database.Password = pw
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"postgres\" or \"memory\"", c.Database.Driver)
	}

	a := c.Auction
	if a.AntiSnipeWindow < 0 {
		return fmt.Errorf("anti_snipe_window must not be negative")
	}
	if a.MaxExtensions < 0 {
		return fmt.Errorf("max_extensions must not be negative")
	}
	if a.CommitRetries < 1 {
		return fmt.Errorf("commit_retries must be at least 1")
	}
	if a.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}

	if _, err := money.ParsePositive(a.Increment.Flat); err != nil {
		return fmt.Errorf("increment.flat: %w", err)
	}
	for i, tier := range a.Increment.Tiers {
		if _, err := money.ParsePositive(tier.UpTo); err != nil {
			return fmt.Errorf("increment.tiers[%d].up_to: %w", i, err)
		}
		if _, err := money.ParsePositive(tier.Step); err != nil {
			return fmt.Errorf("increment.tiers[%d].step: %w", i, err)
		}
	}
	return nil
}
