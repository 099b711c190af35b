package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the top-level configuration of a replay run.
type Config struct {
	Session Session `yaml:"session"`
	Account Account `yaml:"account"`
	Data    Data    `yaml:"data"`
	Alpaca  Alpaca  `yaml:"alpaca"`
	Logging Logging `yaml:"logging"`
	Monitor Monitor `yaml:"monitor"`
	Notify  Notify  `yaml:"notify"`
}

type Session struct {
	Start       time.Time `yaml:"start"`
	End         time.Time `yaml:"end"`
	Compression float64   `yaml:"compression"`
	Tickers     []string  `yaml:"tickers"`

	RequestCapacity  int `yaml:"request_capacity"`
	ResponseCapacity int `yaml:"response_capacity"`
}

type Account struct {
	Code         string        `yaml:"code"`
	Currency     string        `yaml:"currency"`
	StartingCash fixed.Point   `yaml:"starting_cash"`
	Interval     time.Duration `yaml:"interval"`
}

// Data lists the layers tried in order: memory, binary files, duckdb,
// parquet, alpaca and the synthetic generator. Empty paths disable a layer.
type Data struct {
	BinaryDir  string `yaml:"binary_dir"`
	DuckDB     string `yaml:"duckdb"`
	ParquetDir string `yaml:"parquet_dir"`
	Synthetic  bool   `yaml:"synthetic"`
	Seed       int64  `yaml:"seed"`
}

type Alpaca struct {
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	DataURL   string        `yaml:"data_url"`
	Feed      string        `yaml:"feed"`
	Pace      time.Duration `yaml:"pace"`
}

func (a Alpaca) Enabled() bool {
	return a.APIKey != "" && a.APISecret != ""
}

type Logging struct {
	Level      string `yaml:"level"`
	Production bool   `yaml:"production"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Monitor names the event kinds logged and streamed over /events; empty
// means every kind.
type Monitor struct {
	Address string   `yaml:"address"`
	Events  []string `yaml:"events"`
}

type Notify struct {
	PushoverUser   string `yaml:"pushover_user"`
	PushoverToken  string `yaml:"pushover_token"`
	PushoverDevice string `yaml:"pushover_device"`
}

func Default() *Config {
	return &Config{
		Session: Session{
			RequestCapacity:  1024,
			ResponseCapacity: 1024,
		},
		Account: Account{
			Code:         "DU0000001",
			Currency:     "USD",
			StartingCash: fixed.FromInt(100_000, 0),
			Interval:     3 * time.Second,
		},
		Alpaca: Alpaca{
			Feed: "iex",
			Pace: 300 * time.Millisecond,
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. An empty path uses the defaults alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("REPLAY_START"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("REPLAY_START: %w", err)
		}
		cfg.Session.Start = t
	}
	if v := os.Getenv("REPLAY_END"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("REPLAY_END: %w", err)
		}
		cfg.Session.End = t
	}
	if v := os.Getenv("REPLAY_COMPRESSION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("REPLAY_COMPRESSION: %w", err)
		}
		cfg.Session.Compression = f
	}
	if v := os.Getenv("REPLAY_STARTING_CASH"); v != "" {
		cash, err := fixed.Parse(v)
		if err != nil {
			return fmt.Errorf("REPLAY_STARTING_CASH: %w", err)
		}
		cfg.Account.StartingCash = cash
	}
	if v := os.Getenv("REPLAY_DUCKDB"); v != "" {
		cfg.Data.DuckDB = v
	}
	if v := os.Getenv("REPLAY_BINARY_DIR"); v != "" {
		cfg.Data.BinaryDir = v
	}
	if v := os.Getenv("REPLAY_PARQUET_DIR"); v != "" {
		cfg.Data.ParquetDir = v
	}
	if v := os.Getenv("REPLAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("REPLAY_MONITOR_ADDRESS"); v != "" {
		cfg.Monitor.Address = v
	}

	// Canonical names read by the Alpaca SDK.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	return nil
}

func (c *Config) Validate() error {
	switch {
	case c.Session.Start.IsZero() || c.Session.End.IsZero():
		return fmt.Errorf("%w: session start and end are required", ErrInvalidConfig)
	case !c.Session.End.After(c.Session.Start):
		return fmt.Errorf("%w: session end must be after start", ErrInvalidConfig)
	case c.Session.Compression < 0:
		return fmt.Errorf("%w: compression must not be negative", ErrInvalidConfig)
	case len(c.Session.Tickers) == 0:
		return fmt.Errorf("%w: at least one ticker is required", ErrInvalidConfig)
	case c.Session.RequestCapacity <= 0 || c.Session.ResponseCapacity <= 0:
		return fmt.Errorf("%w: queue capacities must be positive", ErrInvalidConfig)
	case c.Account.Currency == "":
		return fmt.Errorf("%w: account currency is required", ErrInvalidConfig)
	case c.Account.StartingCash.IsNeg():
		return fmt.Errorf("%w: starting cash must not be negative", ErrInvalidConfig)
	case c.Account.Interval < 0:
		return fmt.Errorf("%w: account interval must not be negative", ErrInvalidConfig)
	}
	if c.Data.BinaryDir == "" && c.Data.DuckDB == "" && c.Data.ParquetDir == "" && !c.Data.Synthetic && !c.Alpaca.Enabled() {
		return fmt.Errorf("%w: no market data layer configured", ErrInvalidConfig)
	}
	return nil
}
