package agent

import (
	"context"
	"testing"

	"github.com/sailorworks/open-hedge-fund/internal/portfolio"
	sig "github.com/sailorworks/open-hedge-fund/internal/signal"
)

func TestMeanReversionFadesSpikes(t *testing.T) {
	m := NewMeanReversion(5, 1.5)
	s, err := m.Evaluate(context.Background(), seriesView(99, 101, 99, 101, 100, 110), "AAPL", portfolio.Position{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil || s.Action != sig.Short {
		t.Fatalf("expected short against the spike, got %+v", s)
	}
}

func TestMeanReversionBuysDips(t *testing.T) {
	m := NewMeanReversion(5, 1.5)
	s, err := m.Evaluate(context.Background(), seriesView(99, 101, 99, 101, 100, 90), "AAPL", portfolio.Position{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil || s.Action != sig.Long {
		t.Fatalf("expected long into the dip, got %+v", s)
	}
}

func TestMeanReversionUnwindsHeldSides(t *testing.T) {
	m := NewMeanReversion(5, 1.5)

	long := portfolio.Position{LongShares: 10, LongCostBasis: 100}
	s, err := m.Evaluate(context.Background(), seriesView(99, 101, 99, 101, 100, 110), "AAPL", long)
	if err != nil || s == nil || s.Action != sig.Sell {
		t.Fatalf("expected sell on spike while long, got %+v err=%v", s, err)
	}

	short := portfolio.Position{ShortShares: 10, ShortCostBasis: 100}
	s, err = m.Evaluate(context.Background(), seriesView(99, 101, 99, 101, 100, 90), "AAPL", short)
	if err != nil || s == nil || s.Action != sig.Cover {
		t.Fatalf("expected cover on dip while short, got %+v err=%v", s, err)
	}
}

func TestMeanReversionAbstainsInsideBand(t *testing.T) {
	m := NewMeanReversion(5, 1.5)
	s, err := m.Evaluate(context.Background(), seriesView(99, 101, 99, 101, 100, 100.5), "AAPL", portfolio.Position{})
	if err != nil || s != nil {
		t.Fatalf("expected abstention inside the band, got %+v err=%v", s, err)
	}
}

func TestMeanReversionAbstainsOnFlatTape(t *testing.T) {
	m := NewMeanReversion(5, 1.5)
	s, err := m.Evaluate(context.Background(), seriesView(100, 100, 100, 100, 100, 100), "AAPL", portfolio.Position{})
	if err != nil || s != nil {
		t.Fatalf("expected abstention on zero variance, got %+v err=%v", s, err)
	}
}

func TestMeanReversionAbstainsOnShortHistory(t *testing.T) {
	m := NewMeanReversion(10, 1.5)
	s, err := m.Evaluate(context.Background(), seriesView(100, 101), "AAPL", portfolio.Position{})
	if err != nil || s != nil {
		t.Fatalf("expected abstention, got %+v err=%v", s, err)
	}
}
