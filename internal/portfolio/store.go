// Package portfolio tracks cash, margin, and per-ticker positions for a
// simulated book. Longs and shorts are held independently per ticker, each
// with a volume-weighted cost basis.
package portfolio

import (
	"errors"
	"sync"
)

const epsilon = 1e-9

var (
	// ErrInvalidFill rejects fills with non-positive quantity or price.
	ErrInvalidFill = errors.New("portfolio: invalid fill")
	// ErrInsufficientCash rejects buys the cash balance cannot cover.
	ErrInsufficientCash = errors.New("portfolio: insufficient cash")
	// ErrInsufficientShares rejects closes larger than the held side.
	ErrInsufficientShares = errors.New("portfolio: insufficient shares")
	// ErrShortingDisabled rejects shorts when no margin ratio is configured.
	ErrShortingDisabled = errors.New("portfolio: shorting disabled, margin ratio not set")
)

// Position holds both sides of a ticker's book. A ticker may carry long and
// short shares at the same time; each side keeps its own basis.
type Position struct {
	LongShares     int64   `json:"long_shares"`
	LongCostBasis  float64 `json:"long_cost_basis"`
	ShortShares    int64   `json:"short_shares"`
	ShortCostBasis float64 `json:"short_cost_basis"`
}

func (p Position) flat() bool { return p.LongShares == 0 && p.ShortShares == 0 }

// Snapshot is a read-only copy of the book marked against supplied prices.
type Snapshot struct {
	Cash          float64             `json:"cash"`
	MarginUsed    float64             `json:"margin_used"`
	RealizedPnL   float64             `json:"realized_pnl"`
	UnrealizedPnL float64             `json:"unrealized_pnl"`
	TotalValue    float64             `json:"total_value"`
	Positions     map[string]Position `json:"positions"`
}

// Store mutates the book one fill at a time. The executor is the only
// writer during a run, but the mutex keeps concurrent readers safe.
type Store struct {
	mu          sync.Mutex
	initialCash float64
	cash        float64
	marginUsed  float64
	marginRatio float64
	realized    float64
	unrealized  float64
	positions   map[string]Position
}

// New returns a store seeded with initial cash. marginRatio is the fraction
// of a short's notional posted as margin; zero disables shorting.
func New(initialCash, marginRatio float64) *Store {
	return &Store{
		initialCash: initialCash,
		cash:        initialCash,
		marginRatio: marginRatio,
		positions:   make(map[string]Position),
	}
}

// InitialCash returns the seed bankroll.
func (s *Store) InitialCash() float64 { return s.initialCash }

// MarginRatio returns the configured short margin requirement.
func (s *Store) MarginRatio() float64 { return s.marginRatio }

// OpenLong buys qty shares at price, lowering cash by the full notional and
// folding the fill into the long side's weighted basis.
func (s *Store) OpenLong(ticker string, qty int64, price float64) error {
	if qty <= 0 || price <= 0 {
		return ErrInvalidFill
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	notional := float64(qty) * price
	if notional > s.cash+epsilon {
		return ErrInsufficientCash
	}
	pos := s.positions[ticker]
	newQty := pos.LongShares + qty
	pos.LongCostBasis = ((pos.LongCostBasis * float64(pos.LongShares)) + notional) / float64(newQty)
	pos.LongShares = newQty
	s.cash -= notional
	s.positions[ticker] = pos
	return nil
}

// CloseLong sells qty shares at price, crediting the proceeds to cash and
// realizing P&L against the long basis. The basis of remaining shares is
// unchanged.
func (s *Store) CloseLong(ticker string, qty int64, price float64) (float64, error) {
	if qty <= 0 || price <= 0 {
		return 0, ErrInvalidFill
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.positions[ticker]
	if qty > pos.LongShares {
		return 0, ErrInsufficientShares
	}
	realized := (price - pos.LongCostBasis) * float64(qty)
	s.cash += float64(qty) * price
	s.realized += realized
	pos.LongShares -= qty
	if pos.LongShares == 0 {
		pos.LongCostBasis = 0
	}
	s.storePosition(ticker, pos)
	return realized, nil
}

// OpenShort sells qty borrowed shares at price. Proceeds are held as
// collateral rather than credited to cash, and qty*price*marginRatio is
// reserved as margin. Returns the margin posted.
func (s *Store) OpenShort(ticker string, qty int64, price float64) (float64, error) {
	if qty <= 0 || price <= 0 {
		return 0, ErrInvalidFill
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.marginRatio <= 0 {
		return 0, ErrShortingDisabled
	}
	pos := s.positions[ticker]
	newQty := pos.ShortShares + qty
	notional := float64(qty) * price
	pos.ShortCostBasis = ((pos.ShortCostBasis * float64(pos.ShortShares)) + notional) / float64(newQty)
	pos.ShortShares = newQty
	margin := notional * s.marginRatio
	s.marginUsed += margin
	s.positions[ticker] = pos
	return margin, nil
}

// CloseShort buys back qty shares at price. Cash moves by the realized P&L,
// since the collateral held at the basis nets against the buyback, and the
// margin posted for those shares is released.
func (s *Store) CloseShort(ticker string, qty int64, price float64) (float64, error) {
	if qty <= 0 || price <= 0 {
		return 0, ErrInvalidFill
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.positions[ticker]
	if qty > pos.ShortShares {
		return 0, ErrInsufficientShares
	}
	realized := (pos.ShortCostBasis - price) * float64(qty)
	s.cash += realized
	s.realized += realized
	s.marginUsed -= float64(qty) * pos.ShortCostBasis * s.marginRatio
	if s.marginUsed < epsilon {
		s.marginUsed = 0
	}
	pos.ShortShares -= qty
	if pos.ShortShares == 0 {
		pos.ShortCostBasis = 0
	}
	s.storePosition(ticker, pos)
	return realized, nil
}

// storePosition writes back a position, dropping fully flat tickers.
// Callers must hold the mutex.
func (s *Store) storePosition(ticker string, pos Position) {
	if pos.flat() {
		delete(s.positions, ticker)
		return
	}
	s.positions[ticker] = pos
}

// MarkToMarket recomputes unrealized P&L against the supplied closes and
// returns it. Tickers missing a price are marked at their basis.
func (s *Store) MarkToMarket(prices map[string]float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unrealized = s.unrealizedLocked(prices)
	return s.unrealized
}

func (s *Store) unrealizedLocked(prices map[string]float64) float64 {
	total := 0.0
	for ticker, pos := range s.positions {
		price, ok := prices[ticker]
		if !ok || price <= 0 {
			continue
		}
		total += (price - pos.LongCostBasis) * float64(pos.LongShares)
		total += (pos.ShortCostBasis - price) * float64(pos.ShortShares)
	}
	return total
}

// TotalValue reports cash plus long market value plus short-side unrealized
// gain, marked against the supplied closes.
func (s *Store) TotalValue(prices map[string]float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalValueLocked(prices)
}

func (s *Store) totalValueLocked(prices map[string]float64) float64 {
	value := s.cash
	for ticker, pos := range s.positions {
		price, ok := prices[ticker]
		if !ok || price <= 0 {
			// no mark available, value the side at its basis
			value += pos.LongCostBasis * float64(pos.LongShares)
			continue
		}
		value += price * float64(pos.LongShares)
		value += (pos.ShortCostBasis - price) * float64(pos.ShortShares)
	}
	return value
}

// Snapshot copies the book marked against the supplied closes.
func (s *Store) Snapshot(prices map[string]float64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	positions := make(map[string]Position, len(s.positions))
	for ticker, pos := range s.positions {
		positions[ticker] = pos
	}
	return Snapshot{
		Cash:          s.cash,
		MarginUsed:    s.marginUsed,
		RealizedPnL:   s.realized,
		UnrealizedPnL: s.unrealizedLocked(prices),
		TotalValue:    s.totalValueLocked(prices),
		Positions:     positions,
	}
}

// Position returns the current book for one ticker.
func (s *Store) Position(ticker string) Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[ticker]
}

// Cash returns the free cash balance.
func (s *Store) Cash() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash
}

// MarginUsed returns the margin currently reserved against shorts.
func (s *Store) MarginUsed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marginUsed
}

// RealizedPnL returns cumulative realized profit and loss.
func (s *Store) RealizedPnL() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realized
}
