package engine

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sailorworks/open-hedge-fund/internal/portfolio"
	"github.com/sailorworks/open-hedge-fund/internal/risk"
	sig "github.com/sailorworks/open-hedge-fund/internal/signal"
)

func newExecutor(cash float64, limits risk.Limits) (*Executor, *portfolio.Store) {
	store := portfolio.New(cash, limits.MarginRatio)
	return NewExecutor(store, limits, zerolog.Nop()), store
}

func TestExecuteLongThenSell(t *testing.T) {
	limits := risk.Limits{MaxTickerFraction: 1, MarginRatio: 0.5, MaxLeverage: 1}
	exec, store := newExecutor(10000, limits)

	trade, warn, err := exec.Execute(risk.Order{Ticker: "ACME", Action: sig.Long, Quantity: 50}, 100)
	if err != nil || warn != "" {
		t.Fatalf("open: warn=%q err=%v", warn, err)
	}
	if trade.Quantity != 50 || trade.RealizedPnL != 0 {
		t.Fatalf("open trade: %+v", trade)
	}
	if !almostEqual(store.Cash(), 5000) {
		t.Fatalf("cash after open: %.2f", store.Cash())
	}

	trade, warn, err = exec.Execute(risk.Order{Ticker: "ACME", Action: sig.Sell, Quantity: 50}, 110)
	if err != nil || warn != "" {
		t.Fatalf("close: warn=%q err=%v", warn, err)
	}
	if !almostEqual(trade.RealizedPnL, 500) {
		t.Fatalf("realized on close: %.2f", trade.RealizedPnL)
	}
	if !almostEqual(store.Cash(), 10500) {
		t.Fatalf("cash after close: %.2f", store.Cash())
	}
}

func TestExecuteRefusesShortBeyondMarginCapacity(t *testing.T) {
	limits := risk.Limits{MaxTickerFraction: 1, MarginRatio: 0.5, MaxLeverage: 1}
	exec, store := newExecutor(1000, limits)

	trade, warn, err := exec.Execute(risk.Order{Ticker: "ACME", Action: sig.Short, Quantity: 100}, 100)
	if err != nil {
		t.Fatalf("refusal must not be an error: %v", err)
	}
	if warn == "" {
		t.Fatalf("expected refusal warning")
	}
	if trade.Quantity != 0 {
		t.Fatalf("refused order must not fill, got %+v", trade)
	}
	if store.MarginUsed() != 0 {
		t.Fatalf("refused order must not touch the book, margin %.2f", store.MarginUsed())
	}
}

func TestExecuteShortWithinCapacityFills(t *testing.T) {
	limits := risk.Limits{MaxTickerFraction: 1, MarginRatio: 0.5, MaxLeverage: 1}
	exec, store := newExecutor(10000, limits)

	trade, warn, err := exec.Execute(risk.Order{Ticker: "ACME", Action: sig.Short, Quantity: 100}, 50)
	if err != nil || warn != "" {
		t.Fatalf("short: warn=%q err=%v", warn, err)
	}
	if trade.Quantity != 100 {
		t.Fatalf("short trade: %+v", trade)
	}
	if !almostEqual(store.MarginUsed(), 2500) {
		t.Fatalf("margin after short: %.2f", store.MarginUsed())
	}

	trade, _, err = exec.Execute(risk.Order{Ticker: "ACME", Action: sig.Cover, Quantity: 100}, 40)
	if err != nil {
		t.Fatalf("cover: %v", err)
	}
	if !almostEqual(trade.RealizedPnL, 1000) {
		t.Fatalf("realized on cover: %.2f", trade.RealizedPnL)
	}
	if !almostEqual(store.MarginUsed(), 0) {
		t.Fatalf("margin after cover: %.2f", store.MarginUsed())
	}
}

func TestExecuteSurfacesBookErrors(t *testing.T) {
	limits := risk.Limits{MaxTickerFraction: 1, MarginRatio: 0.5, MaxLeverage: 1}
	exec, _ := newExecutor(1000, limits)

	_, _, err := exec.Execute(risk.Order{Ticker: "ACME", Action: sig.Sell, Quantity: 10}, 100)
	if !errors.Is(err, portfolio.ErrInsufficientShares) {
		t.Fatalf("expected insufficient shares, got %v", err)
	}
}

func TestExecuteHoldIsNoop(t *testing.T) {
	limits := risk.Limits{MaxTickerFraction: 1, MarginRatio: 0.5, MaxLeverage: 1}
	exec, store := newExecutor(1000, limits)

	trade, warn, err := exec.Execute(risk.Order{Ticker: "ACME", Action: sig.Hold}, 100)
	if err != nil || warn != "" || trade.Quantity != 0 {
		t.Fatalf("hold: trade=%+v warn=%q err=%v", trade, warn, err)
	}
	if !almostEqual(store.Cash(), 1000) {
		t.Fatalf("hold must not move cash: %.2f", store.Cash())
	}
}
