package marketdata

import (
	"sort"
	"time"
)

// View is the slice of history visible on one simulation date. It never
// exposes a bar dated after its trade date, so agents cannot peek ahead.
type View struct {
	date  time.Time
	bars  map[string][]Bar
	funds map[string]*Fundamentals
}

// NewView scopes the supplied series to the trade date. Each series must be
// sorted oldest first; bars dated after the trade date are cut off.
func NewView(date time.Time, series map[string][]Bar, funds map[string]*Fundamentals) *View {
	day := Day(date)
	visible := make(map[string][]Bar, len(series))
	for ticker, bars := range series {
		cut := sort.Search(len(bars), func(i int) bool { return Day(bars[i].Date).After(day) })
		if cut == 0 {
			continue
		}
		visible[ticker] = bars[:cut]
	}
	if funds == nil {
		funds = map[string]*Fundamentals{}
	}
	return &View{date: day, bars: visible, funds: funds}
}

// Date returns the trade date the view is scoped to.
func (v *View) Date() time.Time { return v.date }

// Tickers lists every ticker with at least one visible bar, sorted.
func (v *View) Tickers() []string {
	out := make([]string, 0, len(v.bars))
	for t := range v.bars {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Bars returns every visible bar for the ticker, oldest first.
func (v *View) Bars(ticker string) []Bar { return v.bars[ticker] }

// CloseOn returns the closing price of the bar dated exactly on the trade
// date. The second return is false when the ticker has no bar that day,
// which marks it untradable for the step.
func (v *View) CloseOn(ticker string) (float64, bool) {
	bars := v.bars[ticker]
	if len(bars) == 0 {
		return 0, false
	}
	last := bars[len(bars)-1]
	if !SameDay(last.Date, v.date) {
		return 0, false
	}
	return last.Close, true
}

// LastClose returns the most recent closing price at or before the trade
// date, used to mark positions when the ticker has no bar that day.
func (v *View) LastClose(ticker string) (float64, bool) {
	bars := v.bars[ticker]
	if len(bars) == 0 {
		return 0, false
	}
	return bars[len(bars)-1].Close, true
}

// Fundamentals returns the fundamentals snapshot for the ticker, or nil when
// no source could supply one.
func (v *View) Fundamentals(ticker string) *Fundamentals { return v.funds[ticker] }
