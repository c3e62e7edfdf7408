package engine

import (
	"bytes"
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sailorworks/open-hedge-fund/internal/agent"
	"github.com/sailorworks/open-hedge-fund/internal/marketdata"
	"github.com/sailorworks/open-hedge-fund/internal/portfolio"
	"github.com/sailorworks/open-hedge-fund/internal/risk"
	sig "github.com/sailorworks/open-hedge-fund/internal/signal"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func bar(date string, px float64) marketdata.Bar {
	return marketdata.Bar{Date: day(date), Open: px, High: px, Low: px, Close: px, Volume: 1000}
}

// scripted replays a fixed plan keyed by "date|ticker". Missing keys are
// abstentions.
type scripted struct {
	name string
	plan map[string]*sig.Signal
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) Evaluate(_ context.Context, view *marketdata.View, ticker string, _ portfolio.Position) (*sig.Signal, error) {
	key := view.Date().Format("2006-01-02") + "|" + ticker
	return s.plan[key], nil
}

type failing struct{ name string }

func (f *failing) Name() string { return f.name }

func (f *failing) Evaluate(context.Context, *marketdata.View, string, portfolio.Position) (*sig.Signal, error) {
	return nil, errors.New("llm quota exhausted")
}

type recorderFunc func(DailySnapshot)

func (r recorderFunc) Record(s DailySnapshot) { r(s) }

func mustRegistry(t *testing.T, agents ...agent.Agent) *agent.Registry {
	t.Helper()
	r, err := agent.NewRegistry(agents...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func newDriver(t *testing.T, cfg Config, provider marketdata.Provider, limits risk.Limits, cash float64, agents ...agent.Agent) (*Driver, *portfolio.Store) {
	t.Helper()
	store := portfolio.New(cash, limits.MarginRatio)
	d := New(cfg, provider, mustRegistry(t, agents...), risk.NewSizer(limits), store, zerolog.Nop())
	return d, store
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestRunLongFlatSellFlow(t *testing.T) {
	provider := &marketdata.Static{BarsByTicker: map[string][]marketdata.Bar{
		"ACME": {bar("2024-01-02", 100), bar("2024-01-03", 110), bar("2024-01-04", 110)},
	}}
	analyst := &scripted{name: "analyst", plan: map[string]*sig.Signal{
		"2024-01-02|ACME": {Action: sig.Long, Confidence: 1.0, Rationale: "entry"},
		"2024-01-04|ACME": {Action: sig.Sell, Confidence: 1.0, Rationale: "exit"},
	}}
	cfg := Config{Tickers: []string{"ACME"}, Start: day("2024-01-02"), End: day("2024-01-04"), Workers: 2}
	limits := risk.Limits{MaxTickerFraction: 0.5, MarginRatio: 0.5, MaxLeverage: 1}
	driver, _ := newDriver(t, cfg, provider, limits, 100000, analyst)

	snaps, err := driver.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}

	day1 := snaps[0]
	if len(day1.Trades) != 1 || day1.Trades[0].Action != sig.Long || day1.Trades[0].Quantity != 500 {
		t.Fatalf("day1: expected 500 share entry, got %+v", day1.Trades)
	}
	if !almostEqual(day1.Cash, 50000) || !almostEqual(day1.PortfolioValue, 100000) {
		t.Fatalf("day1: cash %.2f value %.2f", day1.Cash, day1.PortfolioValue)
	}
	if day1.Positions["ACME"].LongShares != 500 {
		t.Fatalf("day1: expected 500 long shares, got %+v", day1.Positions["ACME"])
	}

	day2 := snaps[1]
	if len(day2.Trades) != 0 {
		t.Fatalf("day2: expected no trades, got %+v", day2.Trades)
	}
	if !almostEqual(day2.UnrealizedPnL, 5000) || !almostEqual(day2.PortfolioValue, 105000) {
		t.Fatalf("day2: unrealized %.2f value %.2f", day2.UnrealizedPnL, day2.PortfolioValue)
	}
	if dec := day2.Decisions["ACME"]; dec.Action != sig.Hold {
		t.Fatalf("day2: expected hold decision, got %+v", dec)
	}

	day3 := snaps[2]
	if len(day3.Trades) != 1 || day3.Trades[0].Action != sig.Sell || day3.Trades[0].Quantity != 500 {
		t.Fatalf("day3: expected full exit, got %+v", day3.Trades)
	}
	if !almostEqual(day3.Cash, 105000) || !almostEqual(day3.RealizedPnL, 5000) {
		t.Fatalf("day3: cash %.2f realized %.2f", day3.Cash, day3.RealizedPnL)
	}
	if len(day3.Positions) != 0 {
		t.Fatalf("day3: expected flat book, got %+v", day3.Positions)
	}
	if !almostEqual(day3.PortfolioValue, 105000) {
		t.Fatalf("day3: value %.2f", day3.PortfolioValue)
	}
}

func TestRunShortCoverFlow(t *testing.T) {
	provider := &marketdata.Static{BarsByTicker: map[string][]marketdata.Bar{
		"ACME": {bar("2024-01-02", 50), bar("2024-01-03", 40)},
	}}
	analyst := &scripted{name: "analyst", plan: map[string]*sig.Signal{
		"2024-01-02|ACME": {Action: sig.Short, Confidence: 1.0},
		"2024-01-03|ACME": {Action: sig.Cover, Confidence: 1.0},
	}}
	cfg := Config{Tickers: []string{"ACME"}, Start: day("2024-01-02"), End: day("2024-01-03"), Workers: 1}
	limits := risk.Limits{MaxTickerFraction: 1.0, MarginRatio: 0.5, MaxLeverage: 1}
	driver, store := newDriver(t, cfg, provider, limits, 100000, analyst)

	snaps, err := driver.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	day1 := snaps[0]
	if len(day1.Trades) != 1 || day1.Trades[0].Action != sig.Short || day1.Trades[0].Quantity != 2000 {
		t.Fatalf("day1: expected 2000 share short, got %+v", day1.Trades)
	}
	if !almostEqual(day1.Cash, 100000) || !almostEqual(day1.MarginUsed, 50000) {
		t.Fatalf("day1: cash %.2f margin %.2f", day1.Cash, day1.MarginUsed)
	}

	day2 := snaps[1]
	if len(day2.Trades) != 1 || day2.Trades[0].Action != sig.Cover {
		t.Fatalf("day2: expected cover, got %+v", day2.Trades)
	}
	if !almostEqual(day2.Cash, 120000) || !almostEqual(day2.RealizedPnL, 20000) {
		t.Fatalf("day2: cash %.2f realized %.2f", day2.Cash, day2.RealizedPnL)
	}
	if !almostEqual(store.MarginUsed(), 0) {
		t.Fatalf("expected margin released, got %.2f", store.MarginUsed())
	}
}

func TestRunIsDeterministic(t *testing.T) {
	provider := &marketdata.Static{BarsByTicker: map[string][]marketdata.Bar{
		"AAA": {bar("2024-01-02", 100), bar("2024-01-03", 104), bar("2024-01-04", 99)},
		"BBB": {bar("2024-01-02", 50), bar("2024-01-03", 51), bar("2024-01-04", 55)},
	}}
	planA := map[string]*sig.Signal{
		"2024-01-02|AAA": {Action: sig.Long, Confidence: 0.8},
		"2024-01-03|BBB": {Action: sig.Long, Confidence: 0.6},
		"2024-01-04|AAA": {Action: sig.Sell, Confidence: 0.9},
	}
	planB := map[string]*sig.Signal{
		"2024-01-02|AAA": {Action: sig.Short, Confidence: 0.5},
		"2024-01-03|BBB": {Action: sig.Long, Confidence: 0.7},
		"2024-01-04|BBB": {Action: sig.Sell, Confidence: 0.4},
	}

	run := func() []DailySnapshot {
		cfg := Config{Tickers: []string{"BBB", "AAA"}, Start: day("2024-01-02"), End: day("2024-01-04"), Workers: 3}
		limits := risk.Limits{MaxTickerFraction: 0.3, MarginRatio: 0.5, MaxLeverage: 1}
		driver, _ := newDriver(t, cfg, provider, limits, 100000,
			&scripted{name: "alpha", plan: planA},
			&scripted{name: "beta", plan: planB},
		)
		snaps, err := driver.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return snaps
	}

	first := run()
	for i := 0; i < 4; i++ {
		if next := run(); !reflect.DeepEqual(first, next) {
			t.Fatalf("rerun %d produced different snapshots", i)
		}
	}
}

func TestRunSkipsDataGaps(t *testing.T) {
	provider := &marketdata.Static{BarsByTicker: map[string][]marketdata.Bar{
		"AAA": {bar("2024-01-02", 100), bar("2024-01-03", 101), bar("2024-01-04", 102)},
		"GAP": {bar("2024-01-02", 50), bar("2024-01-04", 55)},
	}}
	analyst := &scripted{name: "analyst", plan: map[string]*sig.Signal{
		"2024-01-02|GAP": {Action: sig.Long, Confidence: 1.0},
		"2024-01-03|AAA": {Action: sig.Long, Confidence: 1.0},
		"2024-01-03|GAP": {Action: sig.Long, Confidence: 1.0},
	}}
	cfg := Config{Tickers: []string{"AAA", "GAP"}, Start: day("2024-01-02"), End: day("2024-01-04"), Workers: 2}
	limits := risk.Limits{MaxTickerFraction: 0.2, MarginRatio: 0.5, MaxLeverage: 1}
	var logs bytes.Buffer
	store := portfolio.New(100000, limits.MarginRatio)
	driver := New(cfg, provider, mustRegistry(t, analyst), risk.NewSizer(limits), store, zerolog.New(&logs))

	snaps, err := driver.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(logs.String(), "data gap") {
		t.Fatalf("gap should be logged, got %q", logs.String())
	}

	day2 := snaps[1]
	found := false
	for _, w := range day2.Warnings {
		if strings.Contains(w, "no bar for GAP on 2024-01-03") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected gap warning, got %v", day2.Warnings)
	}
	if _, ok := day2.Decisions["GAP"]; ok {
		t.Fatalf("gapped ticker should have no decision that date")
	}
	for _, trade := range day2.Trades {
		if trade.Ticker == "GAP" {
			t.Fatalf("gapped ticker must not trade, got %+v", trade)
		}
	}
	// The day 2 position opened on GAP still counts in the day's valuation.
	if day2.Positions["GAP"].LongShares == 0 {
		t.Fatalf("expected GAP position from day1 to persist")
	}
}

func TestRunAgentFailureBecomesAbstention(t *testing.T) {
	provider := &marketdata.Static{BarsByTicker: map[string][]marketdata.Bar{
		"AAA": {bar("2024-01-02", 100)},
	}}
	good := &scripted{name: "good", plan: map[string]*sig.Signal{
		"2024-01-02|AAA": {Action: sig.Long, Confidence: 0.8},
	}}
	cfg := Config{Tickers: []string{"AAA"}, Start: day("2024-01-02"), End: day("2024-01-02"), Workers: 2}
	limits := risk.Limits{MaxTickerFraction: 0.5, MarginRatio: 0.5, MaxLeverage: 1}
	driver, _ := newDriver(t, cfg, provider, limits, 100000, &failing{name: "flaky"}, good)

	snaps, err := driver.Run(context.Background())
	if err != nil {
		t.Fatalf("run should survive agent failures: %v", err)
	}
	snap := snaps[0]

	warned := false
	for _, w := range snap.Warnings {
		if strings.Contains(w, "flaky") && strings.Contains(w, "no signal for AAA") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected agent failure warning, got %v", snap.Warnings)
	}
	dec := snap.Decisions["AAA"]
	if dec.Action != sig.Long || len(dec.Agents) != 1 || dec.Agents[0] != "good" {
		t.Fatalf("expected decision from the healthy agent, got %+v", dec)
	}
}

func TestRunStopsBetweenDatesOnCancel(t *testing.T) {
	provider := &marketdata.Static{BarsByTicker: map[string][]marketdata.Bar{
		"AAA": {bar("2024-01-02", 100), bar("2024-01-03", 101), bar("2024-01-04", 102)},
	}}
	cfg := Config{Tickers: []string{"AAA"}, Start: day("2024-01-02"), End: day("2024-01-04"), Workers: 1}
	limits := risk.Limits{MaxTickerFraction: 0.5, MarginRatio: 0.5, MaxLeverage: 1}
	driver, _ := newDriver(t, cfg, provider, limits, 100000, &scripted{name: "idle", plan: nil})

	ctx, cancel := context.WithCancel(context.Background())
	sealed := 0
	driver.WithRecorder(recorderFunc(func(DailySnapshot) {
		sealed++
		if sealed == 1 {
			cancel()
		}
	}))

	snaps, err := driver.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected the sealed snapshot to survive the abort, got %d", len(snaps))
	}
}

func TestRunFailsFastOnUnknownTicker(t *testing.T) {
	provider := &marketdata.Static{BarsByTicker: map[string][]marketdata.Bar{}}
	cfg := Config{Tickers: []string{"NOPE"}, Start: day("2024-01-02"), End: day("2024-01-04"), Workers: 1}
	limits := risk.Limits{MaxTickerFraction: 0.5, MarginRatio: 0.5, MaxLeverage: 1}
	driver, _ := newDriver(t, cfg, provider, limits, 100000, &scripted{name: "idle", plan: nil})

	snaps, err := driver.Run(context.Background())
	if err == nil || !errors.Is(err, marketdata.ErrNoData) {
		t.Fatalf("expected ErrNoData for unknown ticker, got %v", err)
	}
	if len(snaps) != 0 {
		t.Fatalf("expected no snapshots, got %d", len(snaps))
	}
}

func TestRunRejectsEmptyLineupAndWindow(t *testing.T) {
	provider := &marketdata.Static{BarsByTicker: map[string][]marketdata.Bar{
		"AAA": {bar("2024-01-02", 100)},
	}}
	limits := risk.Limits{MaxTickerFraction: 0.5, MarginRatio: 0.5, MaxLeverage: 1}

	store := portfolio.New(1000, 0.5)
	empty := &agent.Registry{}
	d := New(Config{Tickers: []string{"AAA"}, Start: day("2024-01-02"), End: day("2024-01-04")}, provider, empty, risk.NewSizer(limits), store, zerolog.Nop())
	if _, err := d.Run(context.Background()); err == nil {
		t.Fatalf("expected empty lineup to fail")
	}

	cfg := Config{Tickers: []string{"AAA"}, Start: day("2024-01-04"), End: day("2024-01-02")}
	driver, _ := newDriver(t, cfg, provider, limits, 1000, &scripted{name: "idle", plan: nil})
	if _, err := driver.Run(context.Background()); err == nil {
		t.Fatalf("expected inverted window to fail")
	}
}
