package agent

import (
	"context"
	"fmt"
	"math"

	"github.com/sailorworks/open-hedge-fund/internal/marketdata"
	"github.com/sailorworks/open-hedge-fund/internal/portfolio"
	sig "github.com/sailorworks/open-hedge-fund/internal/signal"
)

// Momentum compares the latest close against the close lookback bars back
// and leans with the drift once it clears the entry threshold. When the
// drift runs against an open position it votes to unwind instead of
// stacking the opposite side.
type Momentum struct {
	lookback  int
	threshold float64
}

// NewMomentum builds the agent; non-positive arguments fall back to a
// 20-bar window and a 2% threshold.
func NewMomentum(lookback int, threshold float64) *Momentum {
	if lookback <= 0 {
		lookback = 20
	}
	if threshold <= 0 {
		threshold = 0.02
	}
	return &Momentum{lookback: lookback, threshold: threshold}
}

// Name returns the agent identifier.
func (m *Momentum) Name() string { return "momentum" }

// Evaluate emits a directional signal when price drift over the lookback
// window exceeds the threshold, abstaining on short history or flat tape.
func (m *Momentum) Evaluate(_ context.Context, view *marketdata.View, ticker string, pos portfolio.Position) (*sig.Signal, error) {
	bars := view.Bars(ticker)
	if len(bars) < m.lookback+1 {
		return nil, nil
	}
	latest := bars[len(bars)-1].Close
	anchor := bars[len(bars)-1-m.lookback].Close
	if anchor <= 0 {
		return nil, nil
	}
	drift := (latest - anchor) / anchor
	if math.Abs(drift) < m.threshold {
		return nil, nil
	}

	action := sig.Long
	if drift > 0 {
		if pos.ShortShares > 0 {
			action = sig.Cover
		}
	} else {
		action = sig.Short
		if pos.LongShares > 0 {
			action = sig.Sell
		}
	}
	return &sig.Signal{
		Action:     action,
		Confidence: clamp01(math.Tanh(math.Abs(drift) * 3)),
		Rationale:  fmt.Sprintf("drift=%.2f%% over %d bars", drift*100, m.lookback),
	}, nil
}
