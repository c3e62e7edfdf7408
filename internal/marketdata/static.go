package marketdata

import (
	"context"
	"fmt"
	"time"
)

// Static serves bars and fundamentals from in-memory maps. Tests and the
// bundled demo configuration use it to run without any data directory.
type Static struct {
	BarsByTicker  map[string][]Bar
	FundsByTicker map[string][]Fundamentals
}

// PriceBars returns a filtered copy of the ticker's configured bars.
func (s *Static) PriceBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars, ok := s.BarsByTicker[ticker]
	if !ok || len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, ticker)
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	SortBars(out)
	return FilterBars(out, start, end), nil
}

// FundamentalsAsOf returns the latest configured snapshot on or before asOf.
func (s *Static) FundamentalsAsOf(ctx context.Context, ticker string, asOf time.Time) (*Fundamentals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snaps, ok := s.FundsByTicker[ticker]
	if !ok || len(snaps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFundamentals, ticker)
	}
	copied := make([]Fundamentals, len(snaps))
	copy(copied, snaps)
	return LatestFundamentals(copied, asOf)
}
