// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Run frames the simulation: which tickers, over which dates, with how much cash.
type Run struct {
	Tickers      []string `yaml:"tickers"`
	StartDate    string   `yaml:"start_date"`
	EndDate      string   `yaml:"end_date"`
	InitialCash  float64  `yaml:"initial_cash"`
	LookbackDays int      `yaml:"lookback_days"`
}

// Start parses the run's first trade date.
func (r Run) Start() (time.Time, error) {
	t, err := time.Parse(dateLayout, r.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("start_date %q: %w", r.StartDate, err)
	}
	return t, nil
}

// End parses the run's last trade date.
func (r Run) End() (time.Time, error) {
	t, err := time.Parse(dateLayout, r.EndDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("end_date %q: %w", r.EndDate, err)
	}
	return t, nil
}

// Risk encodes the guard-rails applied when decisions are sized into orders.
type Risk struct {
	MaxTickerFraction float64 `yaml:"max_ticker_fraction"`
	MarginRatio       float64 `yaml:"margin_ratio"`
	MaxLeverage       float64 `yaml:"max_leverage"`
}

// Agent describes one entry in the analyst lineup. Fields irrelevant to the
// chosen kind are ignored and zero values take the agent's own defaults.
type Agent struct {
	Kind      string  `yaml:"kind"`
	Lookback  int     `yaml:"lookback"`
	Threshold float64 `yaml:"threshold"`
	Window    int     `yaml:"window"`
	EntryZ    float64 `yaml:"entry_z"`
	CheapPE   float64 `yaml:"cheap_pe"`
	RichPE    float64 `yaml:"rich_pe"`
}

// Execution tunes the per-date agent fan-out.
type Execution struct {
	Workers        int `yaml:"workers"`
	AgentTimeoutMs int `yaml:"agent_timeout_ms"`
}

// AgentTimeout returns the per-agent deadline; zero disables it.
func (e Execution) AgentTimeout() time.Duration {
	return time.Duration(e.AgentTimeoutMs) * time.Millisecond
}

// AlphaVantage tunes the Alpha Vantage client. The API key may also arrive
// via the ALPHAVANTAGE_API_KEY environment variable.
type AlphaVantage struct {
	APIKey             string `yaml:"api_key"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	Retries            int    `yaml:"retries"`
	TimeoutMs          int    `yaml:"timeout_ms"`
}

// Data selects and tunes the price and fundamentals sources.
type Data struct {
	Provider      string       `yaml:"provider"`
	CSVDir        string       `yaml:"csv_dir"`
	CacheDir      string       `yaml:"cache_dir"`
	CacheTTLHours int          `yaml:"cache_ttl_hours"`
	AlphaVantage  AlphaVantage `yaml:"alphavantage"`
}

// CacheTTL returns the cache expiry; zero keeps entries forever.
func (d Data) CacheTTL() time.Duration {
	return time.Duration(d.CacheTTLHours) * time.Hour
}

// Report tunes the summary statistics and run artifacts.
type Report struct {
	RiskFreeRate  float64 `yaml:"risk_free_rate"`
	SnapshotsPath string  `yaml:"snapshots_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Run       Run       `yaml:"run"`
	Risk      Risk      `yaml:"risk"`
	Agents    []Agent   `yaml:"agents"`
	Execution Execution `yaml:"execution"`
	Data      Data      `yaml:"data"`
	Report    Report    `yaml:"report"`
}

// Load reads a YAML file from disk, hydrates a Config struct, and fills in defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Default returns the starter configuration written by the init command.
func Default() *Config {
	cfg := &Config{
		Run: Run{
			Tickers:     []string{"AAPL", "MSFT"},
			StartDate:   "2024-01-02",
			EndDate:     "2024-06-28",
			InitialCash: 100000,
		},
		Agents: []Agent{
			{Kind: "momentum", Lookback: 20, Threshold: 0.02},
			{Kind: "meanreversion", Window: 14, EntryZ: 1.5},
			{Kind: "fundamental", CheapPE: 15, RichPE: 40},
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "open-hedge-fund"
	}
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Run.InitialCash == 0 {
		c.Run.InitialCash = 100000
	}
	if c.Run.LookbackDays == 0 {
		c.Run.LookbackDays = 90
	}
	for i, t := range c.Run.Tickers {
		c.Run.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	if c.Risk.MaxTickerFraction == 0 {
		c.Risk.MaxTickerFraction = 0.2
	}
	if c.Risk.MarginRatio == 0 {
		c.Risk.MarginRatio = 0.5
	}
	if c.Risk.MaxLeverage == 0 {
		c.Risk.MaxLeverage = 1.0
	}
	if c.Execution.Workers == 0 {
		c.Execution.Workers = 4
	}
	if c.Execution.AgentTimeoutMs == 0 {
		c.Execution.AgentTimeoutMs = 5000
	}
	if c.Data.Provider == "" {
		c.Data.Provider = "yahoo"
	}
	if c.Data.CacheDir == "" {
		c.Data.CacheDir = ".cache/marketdata"
	}
	if c.Data.CacheTTLHours == 0 {
		c.Data.CacheTTLHours = 24
	}
	if c.Data.AlphaVantage.APIKey == "" {
		c.Data.AlphaVantage.APIKey = os.Getenv("ALPHAVANTAGE_API_KEY")
	}
	if c.Data.AlphaVantage.RateLimitPerMinute == 0 {
		c.Data.AlphaVantage.RateLimitPerMinute = 5
	}
}

// Validate rejects configurations the engine cannot run. It is called once
// at startup so a bad config fails the process before any simulation work.
func (c *Config) Validate() error {
	if len(c.Run.Tickers) == 0 {
		return fmt.Errorf("run.tickers: at least one ticker required")
	}
	for _, t := range c.Run.Tickers {
		if t == "" {
			return fmt.Errorf("run.tickers: empty ticker")
		}
	}
	start, err := c.Run.Start()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	end, err := c.Run.End()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("run: end_date %s precedes start_date %s", c.Run.EndDate, c.Run.StartDate)
	}
	if c.Run.InitialCash <= 0 {
		return fmt.Errorf("run.initial_cash: must be positive, got %.2f", c.Run.InitialCash)
	}
	if c.Run.LookbackDays < 0 {
		return fmt.Errorf("run.lookback_days: must not be negative")
	}
	if c.Risk.MaxTickerFraction <= 0 || c.Risk.MaxTickerFraction > 1 {
		return fmt.Errorf("risk.max_ticker_fraction: want (0,1], got %.3f", c.Risk.MaxTickerFraction)
	}
	if c.Risk.MarginRatio < 0 || c.Risk.MarginRatio > 1 {
		return fmt.Errorf("risk.margin_ratio: want [0,1], got %.3f", c.Risk.MarginRatio)
	}
	if c.Risk.MaxLeverage < 0 {
		return fmt.Errorf("risk.max_leverage: must not be negative")
	}
	if c.Execution.Workers < 1 {
		return fmt.Errorf("execution.workers: want at least 1, got %d", c.Execution.Workers)
	}
	if c.Execution.AgentTimeoutMs < 0 {
		return fmt.Errorf("execution.agent_timeout_ms: must not be negative")
	}
	switch c.Data.Provider {
	case "csv":
		if c.Data.CSVDir == "" {
			return fmt.Errorf("data.csv_dir: required for the csv provider")
		}
	case "alphavantage":
		if c.Data.AlphaVantage.APIKey == "" {
			return fmt.Errorf("data.alphavantage.api_key: required for the alphavantage provider")
		}
	case "yahoo", "chain":
	default:
		return fmt.Errorf("data.provider: unknown provider %q", c.Data.Provider)
	}
	for i, a := range c.Agents {
		if strings.TrimSpace(a.Kind) == "" {
			return fmt.Errorf("agents[%d].kind: required", i)
		}
	}
	if c.Report.RiskFreeRate < 0 || c.Report.RiskFreeRate >= 1 {
		return fmt.Errorf("report.risk_free_rate: want [0,1), got %.3f", c.Report.RiskFreeRate)
	}
	return nil
}
