package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sailorworks/open-hedge-fund/internal/agent"
	"github.com/sailorworks/open-hedge-fund/internal/config"
	"github.com/sailorworks/open-hedge-fund/internal/engine"
	"github.com/sailorworks/open-hedge-fund/internal/marketdata"
	"github.com/sailorworks/open-hedge-fund/internal/metrics"
	"github.com/sailorworks/open-hedge-fund/internal/portfolio"
	"github.com/sailorworks/open-hedge-fund/internal/report"
	"github.com/sailorworks/open-hedge-fund/internal/risk"
	"github.com/sailorworks/open-hedge-fund/internal/util"
)

const (
	version          = "0.1.0"
	equityCurveWidth = 40
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "backtest",
		Short:        "Date-stepped backtests driven by a weighted analyst consensus",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration")

	rootCmd.AddCommand(newRunCmd(&configPath))
	rootCmd.AddCommand(newInitCmd(&configPath))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the configured backtest and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Local .env files carry API keys in development.
			_ = godotenv.Load()

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log := util.NewConsoleLogger(cfg.App.LogLevel)
			return runBacktest(cfg, log)
		},
	}
}

func newInitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(*configPath); err == nil {
				return fmt.Errorf("%s already exists", *configPath)
			}
			if err := config.Save(*configPath, config.Default()); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", *configPath)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("backtest %s\n", version)
		},
	}
}

func runBacktest(cfg *config.Config, log zerolog.Logger) error {
	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	provider, err := buildProvider(cfg, log)
	if err != nil {
		return err
	}
	registry, err := agent.Build(agentSpecs(cfg.Agents))
	if err != nil {
		return err
	}

	start, err := cfg.Run.Start()
	if err != nil {
		return err
	}
	end, err := cfg.Run.End()
	if err != nil {
		return err
	}

	store := portfolio.New(cfg.Run.InitialCash, cfg.Risk.MarginRatio)
	sizer := risk.NewSizer(risk.Limits{
		MaxTickerFraction: cfg.Risk.MaxTickerFraction,
		MarginRatio:       cfg.Risk.MarginRatio,
		MaxLeverage:       cfg.Risk.MaxLeverage,
	})
	driver := engine.New(engine.Config{
		Tickers:      cfg.Run.Tickers,
		Start:        start,
		End:          end,
		LookbackDays: cfg.Run.LookbackDays,
		Workers:      cfg.Execution.Workers,
		AgentTimeout: cfg.Execution.AgentTimeout(),
	}, provider, registry, sizer, store, log)

	if path := cfg.Report.SnapshotsPath; path != "" {
		rec, err := report.NewJSONLRecorder(path)
		if err != nil {
			return fmt.Errorf("open snapshot log: %w", err)
		}
		defer rec.Close()
		driver.WithRecorder(rec)
		log.Info().Str("path", path).Msg("recording snapshots")
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshots, runErr := driver.Run(ctx)
	if len(snapshots) > 0 {
		summary := report.Compute(snapshots, cfg.Run.InitialCash, cfg.Report.RiskFreeRate)
		summary.Tickers = cfg.Run.Tickers
		summary.Agents = registry.Names()
		fmt.Println(report.Render(summary))
		fmt.Println(report.RenderEquityCurve(snapshots, equityCurveWidth))
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			log.Warn().Msg("interrupted, summary covers the sealed dates only")
			return nil
		}
		return runErr
	}
	return nil
}

func buildProvider(cfg *config.Config, log zerolog.Logger) (marketdata.Provider, error) {
	cache := marketdata.NewCache(cfg.Data.CacheDir, cfg.Data.CacheTTL())
	alphavantage := func() *marketdata.AlphaVantage {
		return marketdata.NewAlphaVantage(marketdata.AlphaVantageConfig{
			APIKey:             cfg.Data.AlphaVantage.APIKey,
			RateLimitPerMinute: cfg.Data.AlphaVantage.RateLimitPerMinute,
			Retries:            cfg.Data.AlphaVantage.Retries,
			Timeout:            time.Duration(cfg.Data.AlphaVantage.TimeoutMs) * time.Millisecond,
		}, cache, log)
	}

	switch cfg.Data.Provider {
	case "csv":
		return marketdata.NewCSVDir(cfg.Data.CSVDir), nil
	case "alphavantage":
		return alphavantage(), nil
	case "yahoo":
		return marketdata.NewYahoo(cache, log), nil
	case "chain":
		providers := []marketdata.Provider{marketdata.NewYahoo(cache, log)}
		if cfg.Data.AlphaVantage.APIKey != "" {
			providers = append(providers, alphavantage())
		}
		if cfg.Data.CSVDir != "" {
			providers = append(providers, marketdata.NewCSVDir(cfg.Data.CSVDir))
		}
		return marketdata.NewChain(log, providers...), nil
	default:
		return nil, fmt.Errorf("unknown data provider %q", cfg.Data.Provider)
	}
}

func agentSpecs(agents []config.Agent) []agent.Spec {
	specs := make([]agent.Spec, len(agents))
	for i, a := range agents {
		specs[i] = agent.Spec{
			Kind:      a.Kind,
			Lookback:  a.Lookback,
			Threshold: a.Threshold,
			Window:    a.Window,
			EntryZ:    a.EntryZ,
			CheapPE:   a.CheapPE,
			RichPE:    a.RichPE,
		}
	}
	return specs
}
