// Package engine steps a backtest one trade date at a time: it fans agents
// out over the visible history, reduces their signals to consensus
// decisions, sizes them under the risk limits, and applies the resulting
// orders to the book at that date's close.
package engine

import (
	"time"

	"github.com/sailorworks/open-hedge-fund/internal/portfolio"
	sig "github.com/sailorworks/open-hedge-fund/internal/signal"
)

// Trade is one fill applied by the simulator.
type Trade struct {
	Ticker      string     `json:"ticker"`
	Action      sig.Action `json:"action"`
	Quantity    int64      `json:"quantity"`
	Price       float64    `json:"price"`
	RealizedPnL float64    `json:"realized_pnl"`
}

// DailySnapshot freezes one trade date's outcome: the consensus reached per
// ticker, the trades executed, and the closing state of the book. The
// sequence is append-only; the engine never revises an earlier date.
type DailySnapshot struct {
	Date           time.Time                     `json:"date"`
	PortfolioValue float64                       `json:"portfolio_value"`
	Cash           float64                       `json:"cash"`
	MarginUsed     float64                       `json:"margin_used"`
	RealizedPnL    float64                       `json:"realized_pnl"`
	UnrealizedPnL  float64                       `json:"unrealized_pnl"`
	Positions      map[string]portfolio.Position `json:"positions"`
	Decisions      map[string]sig.Decision       `json:"decisions"`
	Trades         []Trade                       `json:"trades,omitempty"`
	Warnings       []string                      `json:"warnings,omitempty"`
}

// SnapshotRecorder receives each snapshot as its date is sealed.
type SnapshotRecorder interface {
	Record(DailySnapshot)
}
