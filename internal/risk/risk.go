// Package risk turns consensus decisions into sized orders under the
// configured exposure limits.
package risk

import (
	"math"

	"github.com/sailorworks/open-hedge-fund/internal/portfolio"
	sig "github.com/sailorworks/open-hedge-fund/internal/signal"
)

const epsilon = 1e-9

// Limits encodes the guard-rails applied to every sized order.
type Limits struct {
	// MaxTickerFraction caps one ticker's gross exposure as a fraction of
	// total portfolio value.
	MaxTickerFraction float64
	// MarginRatio is the fraction of short notional posted as margin.
	MarginRatio float64
	// MaxLeverage scales cash into the margin budget available to shorts.
	MaxLeverage float64
}

// MarginCapacity returns the margin budget left over given free cash and
// the margin already reserved.
func (l Limits) MarginCapacity(cash, marginUsed float64) float64 {
	return l.MaxLeverage*cash - marginUsed
}

// Order is a sized placement request for the execution layer. Quantity is
// whole shares; a hold order carries zero quantity and is a no-op.
type Order struct {
	Ticker   string     `json:"ticker"`
	Action   sig.Action `json:"action"`
	Quantity int64      `json:"quantity"`
}

// IsHold reports whether the order requires no execution.
func (o Order) IsHold() bool { return o.Action == sig.Hold || o.Quantity == 0 }

// Sizer converts decisions into orders the book can afford.
type Sizer struct {
	limits Limits
}

// NewSizer returns a sizer bound to the given limits.
func NewSizer(limits Limits) *Sizer { return &Sizer{limits: limits} }

// Limits returns the guard-rails the sizer applies.
func (s *Sizer) Limits() Limits { return s.limits }

// Size maps a decision to a concrete order against the current book. Opens
// scale the ticker's remaining exposure headroom by decision strength and
// are clamped to what cash or margin can carry. Closes scale the held side
// and are clamped to it. Anything that rounds to zero shares becomes a hold.
func (s *Sizer) Size(dec sig.Decision, price float64, book portfolio.Snapshot) Order {
	hold := Order{Ticker: dec.Ticker, Action: sig.Hold}
	if dec.Strength <= 0 || price <= 0 {
		return hold
	}
	pos := book.Positions[dec.Ticker]

	var qty int64
	switch dec.Action {
	case sig.Long, sig.Short:
		qty = wholeShares(s.openNotional(dec, price, pos, book), price)
	case sig.Sell:
		qty = scaleHeld(dec.Strength, pos.LongShares)
	case sig.Cover:
		qty = scaleHeld(dec.Strength, pos.ShortShares)
	default:
		return hold
	}
	if qty <= 0 {
		return hold
	}
	return Order{Ticker: dec.Ticker, Action: dec.Action, Quantity: qty}
}

func (s *Sizer) openNotional(dec sig.Decision, price float64, pos portfolio.Position, book portfolio.Snapshot) float64 {
	headroom := s.limits.MaxTickerFraction*book.TotalValue - grossExposure(pos, price)
	if headroom <= 0 {
		return 0
	}
	target := dec.Strength * headroom
	if dec.Action == sig.Long {
		return math.Min(target, book.Cash)
	}
	if s.limits.MarginRatio <= 0 {
		return 0
	}
	capacity := s.limits.MarginCapacity(book.Cash, book.MarginUsed)
	if capacity <= 0 {
		return 0
	}
	return math.Min(target, capacity/s.limits.MarginRatio)
}

// grossExposure measures the ticker's notional at the current price. Both
// sides count against the same per-ticker cap.
func grossExposure(pos portfolio.Position, price float64) float64 {
	return float64(pos.LongShares)*price + float64(pos.ShortShares)*price
}

func scaleHeld(strength float64, held int64) int64 {
	if held <= 0 {
		return 0
	}
	qty := int64(math.Floor(strength*float64(held) + epsilon))
	if qty > held {
		qty = held
	}
	return qty
}

func wholeShares(notional, price float64) int64 {
	if notional <= 0 {
		return 0
	}
	return int64(math.Floor(notional/price + epsilon))
}
