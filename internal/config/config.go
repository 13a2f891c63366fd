package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML strings like "7s" or "100ms"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Prices   PricesConfig   `yaml:"prices"`
	Wallet   WalletConfig   `yaml:"wallet"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
	StaticDir string `yaml:"static_dir"`
}

type DatabaseConfig struct {
	ConnString string `yaml:"conn_string"`
}

type EngineConfig struct {
	WaitingDelay  Duration `yaml:"waiting_delay"`
	BettingDelay  Duration `yaml:"betting_delay"`
	CrashGrace    Duration `yaml:"crash_grace"`
	TickInterval  Duration `yaml:"tick_interval"`
	GrowthFactor  float64  `yaml:"growth_factor"`
	MaxCrashValue uint32   `yaml:"max_crash_value"`
	WalletTimeout Duration `yaml:"wallet_timeout"`
	RecentLimit   int      `yaml:"recent_limit"`
	Currencies    []string `yaml:"currencies"`
}

type PricesConfig struct {
	TTL      Duration           `yaml:"ttl"`
	Fallback map[string]float64 `yaml:"fallback"`
}

type WalletConfig struct {
	StartingBalance float64 `yaml:"starting_balance"`
}

// applyDefaults fills zero values with the reference settings
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "frontend"
	}
	if c.Engine.WaitingDelay == 0 {
		c.Engine.WaitingDelay = Duration(7 * time.Second)
	}
	if c.Engine.BettingDelay == 0 {
		c.Engine.BettingDelay = Duration(3 * time.Second)
	}
	if c.Engine.CrashGrace == 0 {
		c.Engine.CrashGrace = Duration(1 * time.Second)
	}
	if c.Engine.TickInterval == 0 {
		c.Engine.TickInterval = Duration(100 * time.Millisecond)
	}
	if c.Engine.GrowthFactor == 0 {
		c.Engine.GrowthFactor = 0.00005
	}
	if c.Engine.MaxCrashValue == 0 {
		c.Engine.MaxCrashValue = 100
	}
	if c.Engine.WalletTimeout == 0 {
		c.Engine.WalletTimeout = Duration(3 * time.Second)
	}
	if c.Engine.RecentLimit == 0 {
		c.Engine.RecentLimit = 50
	}
	if len(c.Engine.Currencies) == 0 {
		c.Engine.Currencies = []string{"BTC"}
	}
	if c.Prices.TTL == 0 {
		c.Prices.TTL = Duration(30 * time.Second)
	}
	if len(c.Prices.Fallback) == 0 {
		c.Prices.Fallback = map[string]float64{"BTC": 50000}
	}
	if c.Wallet.StartingBalance == 0 {
		c.Wallet.StartingBalance = 0.01
	}
}

// Validate checks for settings a server cannot run with
func (c *Config) Validate() error {
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	if c.Database.ConnString == "" {
		return fmt.Errorf("database.conn_string is required")
	}
	if c.Engine.MaxCrashValue < 1 {
		return fmt.Errorf("engine.max_crash_value must be >= 1")
	}
	if c.Engine.GrowthFactor <= 0 {
		return fmt.Errorf("engine.growth_factor must be positive")
	}
	for _, cur := range c.Engine.Currencies {
		if _, ok := c.Prices.Fallback[cur]; !ok {
			return fmt.Errorf("no fallback price for currency %s", cur)
		}
	}
	return nil
}
