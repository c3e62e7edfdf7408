// Package marketdata loads historical prices and fundamentals and serves
// date-scoped views of them to the simulation engine.
package marketdata

import (
	"sort"
	"time"
)

// Bar is one daily OHLCV record for a ticker.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Fundamentals carries point-in-time company ratios agents may consult.
// Fields a source cannot supply are left at zero.
type Fundamentals struct {
	Ticker        string    `json:"ticker"`
	AsOf          time.Time `json:"as_of"`
	PERatio       float64   `json:"pe_ratio"`
	EPS           float64   `json:"eps"`
	RevenueGrowth float64   `json:"revenue_growth"`
	ProfitMargin  float64   `json:"profit_margin"`
}

// Day truncates t to midnight UTC so bar dates compare by calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool { return Day(a).Equal(Day(b)) }

// SortBars orders bars oldest first in place.
func SortBars(bars []Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}

// FilterBars returns the bars dated within [start, end], assuming ascending input.
func FilterBars(bars []Bar, start, end time.Time) []Bar {
	lo, hi := Day(start), Day(end)
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		d := Day(b.Date)
		if d.Before(lo) || d.After(hi) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// TradingDates returns the sorted union of bar dates across every series,
// restricted to [start, end]. The result drives the simulation calendar.
func TradingDates(series map[string][]Bar, start, end time.Time) []time.Time {
	lo, hi := Day(start), Day(end)
	seen := make(map[time.Time]struct{})
	for _, bars := range series {
		for _, b := range bars {
			d := Day(b.Date)
			if d.Before(lo) || d.After(hi) {
				continue
			}
			seen[d] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
