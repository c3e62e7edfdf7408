package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sailorworks/open-hedge-fund/internal/agent"
	"github.com/sailorworks/open-hedge-fund/internal/consensus"
	"github.com/sailorworks/open-hedge-fund/internal/marketdata"
	"github.com/sailorworks/open-hedge-fund/internal/metrics"
	"github.com/sailorworks/open-hedge-fund/internal/portfolio"
	"github.com/sailorworks/open-hedge-fund/internal/risk"
	sig "github.com/sailorworks/open-hedge-fund/internal/signal"
)

const dateLayout = "2006-01-02"

// Config frames one run of the simulation.
type Config struct {
	Tickers      []string
	Start        time.Time
	End          time.Time
	LookbackDays int
	Workers      int
	AgentTimeout time.Duration
}

// Driver owns the date loop. Each trade date runs in three phases: a
// concurrent agent fan-out over the date's view, a sequential decision and
// execution pass per ticker, and a mark-to-market snapshot. No date starts
// before the previous one is sealed.
type Driver struct {
	cfg      Config
	provider marketdata.Provider
	registry *agent.Registry
	sizer    *risk.Sizer
	store    *portfolio.Store
	exec     *Executor
	recorder SnapshotRecorder
	log      zerolog.Logger
}

// New wires a driver. The executor is created here so every fill passes
// through the same risk limits the sizer applies.
func New(cfg Config, provider marketdata.Provider, registry *agent.Registry, sizer *risk.Sizer, store *portfolio.Store, log zerolog.Logger) *Driver {
	return &Driver{
		cfg:      cfg,
		provider: provider,
		registry: registry,
		sizer:    sizer,
		store:    store,
		exec:     NewExecutor(store, sizer.Limits(), log),
		log:      log,
	}
}

// WithRecorder attaches a snapshot sink invoked as each date is sealed.
func (d *Driver) WithRecorder(r SnapshotRecorder) *Driver {
	d.recorder = r
	return d
}

// Run steps every trading date in the window and returns the snapshot
// sequence. On cancellation it stops between date-steps and returns the
// snapshots sealed so far alongside the context error.
func (d *Driver) Run(ctx context.Context) ([]DailySnapshot, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	series, err := d.fetchSeries(ctx)
	if err != nil {
		return nil, err
	}
	dates := marketdata.TradingDates(series, d.cfg.Start, d.cfg.End)
	if len(dates) == 0 {
		return nil, fmt.Errorf("engine: no trading dates between %s and %s",
			d.cfg.Start.Format(dateLayout), d.cfg.End.Format(dateLayout))
	}
	d.log.Info().
		Int("dates", len(dates)).
		Int("tickers", len(d.cfg.Tickers)).
		Int("agents", d.registry.Len()).
		Msg("run starting")

	snapshots := make([]DailySnapshot, 0, len(dates))
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return snapshots, fmt.Errorf("engine: aborted before %s: %w", date.Format(dateLayout), err)
		}
		snap, err := d.step(ctx, date, series)
		if err != nil {
			return snapshots, err
		}
		snapshots = append(snapshots, snap)
		if d.recorder != nil {
			d.recorder.Record(snap)
		}
		metrics.DatesSimulatedTotal.Inc()
	}
	return snapshots, nil
}

func (d *Driver) validate() error {
	if d.provider == nil {
		return errors.New("engine: no market data provider")
	}
	if d.store == nil || d.sizer == nil {
		return errors.New("engine: missing portfolio or sizer")
	}
	if d.registry == nil || d.registry.Len() == 0 {
		return errors.New("engine: no agents registered")
	}
	if len(d.cfg.Tickers) == 0 {
		return errors.New("engine: no tickers configured")
	}
	if d.cfg.End.Before(d.cfg.Start) {
		return fmt.Errorf("engine: end %s precedes start %s",
			d.cfg.End.Format(dateLayout), d.cfg.Start.Format(dateLayout))
	}
	if d.cfg.LookbackDays < 0 {
		return errors.New("engine: negative lookback")
	}
	d.cfg.Tickers = sortedUnique(d.cfg.Tickers)
	return nil
}

// fetchSeries loads each ticker's history once, extended back by the
// lookback so agents have context on the first trade date. A ticker with no
// history at all is a configuration error and fails the run up front.
func (d *Driver) fetchSeries(ctx context.Context) (map[string][]marketdata.Bar, error) {
	from := marketdata.Day(d.cfg.Start).AddDate(0, 0, -d.cfg.LookbackDays)
	series := make(map[string][]marketdata.Bar, len(d.cfg.Tickers))
	for _, ticker := range d.cfg.Tickers {
		bars, err := d.provider.PriceBars(ctx, ticker, from, d.cfg.End)
		if err != nil {
			return nil, fmt.Errorf("engine: load history for %s: %w", ticker, err)
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("engine: load history for %s: %w", ticker, marketdata.ErrNoData)
		}
		series[ticker] = bars
		d.log.Debug().Str("ticker", ticker).Int("bars", len(bars)).Msg("history loaded")
	}
	return series, nil
}

// fetchFundamentals is best effort; a ticker without fundamentals simply
// leaves valuation-driven agents abstaining.
func (d *Driver) fetchFundamentals(ctx context.Context, date time.Time) map[string]*marketdata.Fundamentals {
	funds := make(map[string]*marketdata.Fundamentals, len(d.cfg.Tickers))
	for _, ticker := range d.cfg.Tickers {
		f, err := d.provider.FundamentalsAsOf(ctx, ticker, date)
		if err != nil || f == nil {
			continue
		}
		funds[ticker] = f
	}
	return funds
}

func (d *Driver) step(ctx context.Context, date time.Time, series map[string][]marketdata.Bar) (DailySnapshot, error) {
	view := marketdata.NewView(date, series, d.fetchFundamentals(ctx, date))

	var warnings []string
	prices := make(map[string]float64, len(d.cfg.Tickers))
	marks := make(map[string]float64, len(d.cfg.Tickers))
	tradable := make([]string, 0, len(d.cfg.Tickers))
	for _, ticker := range d.cfg.Tickers {
		if px, ok := view.LastClose(ticker); ok {
			marks[ticker] = px
		}
		px, ok := view.CloseOn(ticker)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no bar for %s on %s, skipped", ticker, date.Format(dateLayout)))
			metrics.DataGapsTotal.WithLabelValues(ticker).Inc()
			d.log.Warn().Str("ticker", ticker).Str("date", date.Format(dateLayout)).Msg("data gap, ticker skipped")
			continue
		}
		prices[ticker] = px
		tradable = append(tradable, ticker)
	}

	agents := d.registry.Agents()
	slots := make([]*sig.Signal, len(agents)*len(tradable))
	slotWarns := make([]string, len(slots))

	// Fan out one task per agent and ticker. Results land in fixed slots so
	// downstream order never depends on goroutine scheduling, and the group
	// wait is the barrier that ends the signal phase.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workerLimit())
	for ai, a := range agents {
		a := a
		for ti, ticker := range tradable {
			ticker := ticker
			idx := ai*len(tradable) + ti
			pos := d.store.Position(ticker)
			g.Go(func() error {
				s, warn := agent.Invoke(gctx, a, view, ticker, pos, d.cfg.AgentTimeout)
				slots[idx] = s
				slotWarns[idx] = warn
				if s != nil {
					metrics.SignalsTotal.WithLabelValues(s.AgentID, string(s.Action)).Inc()
				} else if warn != "" {
					metrics.AgentFailuresTotal.WithLabelValues(a.Name()).Inc()
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	for _, warn := range slotWarns {
		if warn != "" {
			warnings = append(warnings, warn)
			d.log.Warn().Str("date", date.Format(dateLayout)).Msg(warn)
		}
	}

	decisions := make(map[string]sig.Decision, len(tradable))
	var trades []Trade
	for ti, ticker := range tradable {
		sigs := make([]sig.Signal, 0, len(agents))
		for ai := range agents {
			if s := slots[ai*len(tradable)+ti]; s != nil {
				sigs = append(sigs, *s)
			}
		}
		dec := consensus.Reduce(ticker, sigs)
		order := d.sizer.Size(dec, prices[ticker], d.store.Snapshot(marks))

		trade, warn, err := d.exec.Execute(order, prices[ticker])
		if err != nil {
			return DailySnapshot{}, fmt.Errorf("engine: state corruption on %s: %w", date.Format(dateLayout), err)
		}
		if warn != "" {
			warnings = append(warnings, warn)
			d.log.Warn().Str("date", date.Format(dateLayout)).Msg(warn)
		}
		if trade.Quantity > 0 {
			decisions[ticker] = dec
			trades = append(trades, trade)
			continue
		}
		// Directional intent that sized to nothing is audited as a hold.
		dec.Action = sig.Hold
		decisions[ticker] = dec
	}

	d.store.MarkToMarket(marks)
	book := d.store.Snapshot(marks)
	d.log.Info().
		Str("date", date.Format(dateLayout)).
		Float64("value", book.TotalValue).
		Float64("cash", book.Cash).
		Int("trades", len(trades)).
		Int("warnings", len(warnings)).
		Msg("date sealed")

	return DailySnapshot{
		Date:           date,
		PortfolioValue: book.TotalValue,
		Cash:           book.Cash,
		MarginUsed:     book.MarginUsed,
		RealizedPnL:    book.RealizedPnL,
		UnrealizedPnL:  book.UnrealizedPnL,
		Positions:      book.Positions,
		Decisions:      decisions,
		Trades:         trades,
		Warnings:       warnings,
	}, nil
}

func (d *Driver) workerLimit() int {
	if d.cfg.Workers > 0 {
		return d.cfg.Workers
	}
	return 4
}

func sortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
