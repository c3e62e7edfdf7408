package agent

import (
	"context"
	"fmt"
	"math"

	"github.com/sailorworks/open-hedge-fund/internal/marketdata"
	"github.com/sailorworks/open-hedge-fund/internal/portfolio"
	sig "github.com/sailorworks/open-hedge-fund/internal/signal"
)

// MeanReversion fades stretched closes. The latest close is scored as a
// z-score against the trailing window; past the entry threshold the agent
// bets on a snap back toward the mean.
type MeanReversion struct {
	window int
	entryZ float64
}

// NewMeanReversion builds the agent; non-positive arguments fall back to a
// 14-bar window and a 1.5 sigma entry.
func NewMeanReversion(window int, entryZ float64) *MeanReversion {
	if window <= 1 {
		window = 14
	}
	if entryZ <= 0 {
		entryZ = 1.5
	}
	return &MeanReversion{window: window, entryZ: entryZ}
}

// Name returns the agent identifier.
func (m *MeanReversion) Name() string { return "meanreversion" }

// Evaluate abstains until the window is filled or while the close sits
// inside the entry band.
func (m *MeanReversion) Evaluate(_ context.Context, view *marketdata.View, ticker string, pos portfolio.Position) (*sig.Signal, error) {
	bars := view.Bars(ticker)
	if len(bars) < m.window+1 {
		return nil, nil
	}
	latest := bars[len(bars)-1].Close
	trailing := bars[len(bars)-1-m.window : len(bars)-1]

	mean, stddev := meanStddev(trailing)
	if stddev < 1e-9 {
		return nil, nil
	}
	z := (latest - mean) / stddev
	if math.Abs(z) < m.entryZ {
		return nil, nil
	}

	var action sig.Action
	if z > 0 {
		// Stretched high, fade it.
		action = sig.Short
		if pos.LongShares > 0 {
			action = sig.Sell
		}
	} else {
		action = sig.Long
		if pos.ShortShares > 0 {
			action = sig.Cover
		}
	}
	return &sig.Signal{
		Action:     action,
		Confidence: clamp01(math.Abs(z) / 3),
		Rationale:  fmt.Sprintf("z=%.2f vs %d-bar mean", z, m.window),
	}, nil
}

func meanStddev(bars []marketdata.Bar) (float64, float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Close
	}
	mean := sum / float64(len(bars))

	variance := 0.0
	for _, b := range bars {
		d := b.Close - mean
		variance += d * d
	}
	variance /= float64(len(bars))
	return mean, math.Sqrt(variance)
}
