package marketdata

import (
	"context"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/rs/zerolog"
)

// Yahoo fetches daily bars and headline ratios from Yahoo Finance. It needs
// no API key, which makes it the default fallback source.
type Yahoo struct {
	cache *Cache
	log   zerolog.Logger
}

// NewYahoo builds the provider. cache may be nil to disable caching.
func NewYahoo(cache *Cache, log zerolog.Logger) *Yahoo {
	return &Yahoo{cache: cache, log: log}
}

// PriceBars pulls the ticker's daily chart for [start, end].
func (y *Yahoo) PriceBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	key := fmt.Sprintf("%s_%s_%s", BarsKey("yahoo", ticker), Day(start).Format("2006-01-02"), Day(end).Format("2006-01-02"))
	var bars []Bar
	if y.cache.Get(key, &bars) {
		return bars, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Yahoo treats End as exclusive, so push it one day past the window.
	first := Day(start)
	last := Day(end).AddDate(0, 0, 1)
	params := &chart.Params{
		Symbol:   ticker,
		Interval: datetime.OneDay,
		Start:    datetime.New(&first),
		End:      datetime.New(&last),
	}
	iter := chart.Get(params)
	for iter.Next() {
		bars = append(bars, chartBarToBar(iter.Bar()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", ticker, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, ticker)
	}
	SortBars(bars)
	bars = FilterBars(bars, start, end)
	y.cache.Set(key, bars)
	return bars, nil
}

// FundamentalsAsOf maps the live quote's trailing ratios onto a snapshot.
// Yahoo only serves current values, so they stand in for the whole run.
func (y *Yahoo) FundamentalsAsOf(ctx context.Context, ticker string, asOf time.Time) (*Fundamentals, error) {
	key := FundamentalsKey("yahoo", ticker)
	var cached Fundamentals
	if y.cache.Get(key, &cached) {
		out := cached
		out.AsOf = Day(asOf)
		return &out, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := equity.Get(ticker)
	if err != nil {
		return nil, fmt.Errorf("yahoo quote %s: %w", ticker, err)
	}
	if q == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoFundamentals, ticker)
	}
	funds := Fundamentals{
		Ticker:  ticker,
		PERatio: q.TrailingPE,
		EPS:     q.EpsTrailingTwelveMonths,
	}
	y.cache.Set(key, funds)
	funds.AsOf = Day(asOf)
	return &funds, nil
}

func chartBarToBar(b *finance.ChartBar) Bar {
	return Bar{
		Date:   Day(time.Unix(int64(b.Timestamp), 0)),
		Open:   b.Open.InexactFloat64(),
		High:   b.High.InexactFloat64(),
		Low:    b.Low.InexactFloat64(),
		Close:  b.Close.InexactFloat64(),
		Volume: float64(b.Volume),
	}
}
