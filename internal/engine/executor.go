package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sailorworks/open-hedge-fund/internal/metrics"
	"github.com/sailorworks/open-hedge-fund/internal/portfolio"
	"github.com/sailorworks/open-hedge-fund/internal/risk"
	sig "github.com/sailorworks/open-hedge-fund/internal/signal"
)

const epsilon = 1e-9

// Executor applies sized orders to the book at the date's closing price.
// It runs strictly sequentially; the driver is its only caller and submits
// one order at a time.
type Executor struct {
	store  *portfolio.Store
	limits risk.Limits
	log    zerolog.Logger
}

// NewExecutor binds the executor to a book and the run's risk limits.
func NewExecutor(store *portfolio.Store, limits risk.Limits, log zerolog.Logger) *Executor {
	return &Executor{store: store, limits: limits, log: log}
}

// Execute fills the order at price. Orders the book cannot safely absorb
// are refused with a warning and a zero trade; an error means the fill
// would corrupt the book and the run must stop.
func (e *Executor) Execute(order risk.Order, price float64) (Trade, string, error) {
	if order.IsHold() {
		return Trade{}, "", nil
	}

	var realized float64
	var err error
	switch order.Action {
	case sig.Long:
		err = e.store.OpenLong(order.Ticker, order.Quantity, price)
	case sig.Sell:
		realized, err = e.store.CloseLong(order.Ticker, order.Quantity, price)
	case sig.Short:
		needed := float64(order.Quantity) * price * e.limits.MarginRatio
		available := e.limits.MarginCapacity(e.store.Cash(), e.store.MarginUsed())
		if needed > available+epsilon {
			warn := fmt.Sprintf("short %d %s refused: margin %.2f exceeds capacity %.2f",
				order.Quantity, order.Ticker, needed, available)
			return Trade{}, warn, nil
		}
		_, err = e.store.OpenShort(order.Ticker, order.Quantity, price)
	case sig.Cover:
		realized, err = e.store.CloseShort(order.Ticker, order.Quantity, price)
	default:
		return Trade{}, "", fmt.Errorf("execute: unknown action %q", order.Action)
	}
	if err != nil {
		return Trade{}, "", fmt.Errorf("execute %s %d %s at %.4f: %w", order.Action, order.Quantity, order.Ticker, price, err)
	}

	metrics.TradesTotal.WithLabelValues(order.Ticker, string(order.Action)).Inc()
	e.log.Debug().
		Str("ticker", order.Ticker).
		Str("action", string(order.Action)).
		Int64("qty", order.Quantity).
		Float64("px", price).
		Float64("realized", realized).
		Msg("fill")
	return Trade{
		Ticker:      order.Ticker,
		Action:      order.Action,
		Quantity:    order.Quantity,
		Price:       price,
		RealizedPnL: realized,
	}, "", nil
}
