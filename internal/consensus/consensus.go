// Package consensus reduces the signals emitted for one ticker on one date
// into a single decision the risk layer can size.
package consensus

import (
	sig "github.com/sailorworks/open-hedge-fund/internal/signal"
)

// Directions with a shared intent pool their weight: sell and cover both
// argue for closing exposure, so they compete against long and short as one
// bloc before the heavier concrete action inside the bloc is chosen.
type category int

const (
	catLong category = iota
	catShort
	catClose
	catHold
	catCount
)

func categoryOf(a sig.Action) category {
	switch a {
	case sig.Long:
		return catLong
	case sig.Short:
		return catShort
	case sig.Sell, sig.Cover:
		return catClose
	default:
		return catHold
	}
}

type tally struct {
	weight   float64
	firstIdx int
	agents   []string
}

// Reduce weighs the signals for one ticker into a decision. Signals must be
// ordered by agent priority; a tie between directions goes to the direction
// whose earliest voter ranks higher. Zero-confidence votes carry no weight
// and are treated as abstentions. Strength is the winning direction's share
// of all confidence cast, so it always lands in [0, 1].
func Reduce(ticker string, signals []sig.Signal) sig.Decision {
	hold := sig.Decision{Ticker: ticker, Action: sig.Hold}
	if len(signals) == 0 {
		return hold
	}

	var buckets [catCount]tally
	for i := range buckets {
		buckets[i].firstIdx = len(signals)
	}
	var sellWeight, coverWeight float64
	sellFirst, coverFirst := len(signals), len(signals)

	total := 0.0
	for i, s := range signals {
		w := clamp01(s.Confidence)
		if w <= 0 {
			continue
		}
		total += w
		c := categoryOf(s.Action)
		b := &buckets[c]
		b.weight += w
		if i < b.firstIdx {
			b.firstIdx = i
		}
		b.agents = append(b.agents, s.AgentID)

		switch s.Action {
		case sig.Sell:
			sellWeight += w
			if i < sellFirst {
				sellFirst = i
			}
		case sig.Cover:
			coverWeight += w
			if i < coverFirst {
				coverFirst = i
			}
		}
	}
	if total <= 0 {
		return hold
	}

	winner := catHold
	found := false
	for c := category(0); c < catCount; c++ {
		b := buckets[c]
		if b.weight <= 0 {
			continue
		}
		if !found {
			winner = c
			found = true
			continue
		}
		best := buckets[winner]
		if b.weight > best.weight || (b.weight == best.weight && b.firstIdx < best.firstIdx) {
			winner = c
		}
	}

	action := actionFor(winner, sellWeight, coverWeight, sellFirst, coverFirst)
	win := buckets[winner]
	return sig.Decision{
		Ticker:   ticker,
		Action:   action,
		Strength: win.weight / total,
		Agents:   win.agents,
	}
}

func actionFor(c category, sellWeight, coverWeight float64, sellFirst, coverFirst int) sig.Action {
	switch c {
	case catLong:
		return sig.Long
	case catShort:
		return sig.Short
	case catClose:
		if coverWeight > sellWeight || (coverWeight == sellWeight && coverFirst < sellFirst) {
			return sig.Cover
		}
		return sig.Sell
	default:
		return sig.Hold
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
