package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type failingProvider struct{ err error }

func (f *failingProvider) PriceBars(context.Context, string, time.Time, time.Time) ([]Bar, error) {
	return nil, f.err
}

func (f *failingProvider) FundamentalsAsOf(context.Context, string, time.Time) (*Fundamentals, error) {
	return nil, f.err
}

func TestChainFallsBack(t *testing.T) {
	primary := &failingProvider{err: errors.New("quota exhausted")}
	backup := &Static{BarsByTicker: map[string][]Bar{
		"AAPL": {closeBar("2024-01-02", 100)},
	}}
	chain := NewChain(zerolog.Nop(), primary, backup)

	bars, err := chain.PriceBars(context.Background(), "AAPL", day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 1 || bars[0].Close != 100 {
		t.Fatalf("expected backup bars, got %v", bars)
	}
}

func TestChainAllSourcesFail(t *testing.T) {
	chain := NewChain(zerolog.Nop(),
		&failingProvider{err: errors.New("down")},
		&failingProvider{err: ErrNoData},
	)
	_, err := chain.PriceBars(context.Background(), "AAPL", day("2024-01-01"), day("2024-01-31"))
	if err == nil {
		t.Fatalf("expected error when every source fails")
	}
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected joined error to keep ErrNoData, got %v", err)
	}
}

func TestChainFundamentalsFallsBack(t *testing.T) {
	backup := &Static{FundsByTicker: map[string][]Fundamentals{
		"AAPL": {{Ticker: "AAPL", AsOf: day("2024-01-01"), PERatio: 21}},
	}}
	chain := NewChain(zerolog.Nop(), &failingProvider{err: errors.New("down")}, backup)

	funds, err := chain.FundamentalsAsOf(context.Background(), "AAPL", day("2024-02-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if funds.PERatio != 21 {
		t.Fatalf("expected backup fundamentals, got %+v", funds)
	}
}
