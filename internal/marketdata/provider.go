package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNoData indicates a provider has no bars for the requested ticker and range.
	ErrNoData = errors.New("marketdata: no bars for ticker")
	// ErrNoFundamentals indicates a provider cannot supply fundamentals for the ticker.
	ErrNoFundamentals = errors.New("marketdata: no fundamentals for ticker")
)

// Provider fetches historical market data for a single ticker.
type Provider interface {
	// PriceBars returns the daily bars dated within [start, end], oldest first.
	PriceBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error)
	// FundamentalsAsOf returns the most recent fundamentals known on or before asOf.
	FundamentalsAsOf(ctx context.Context, ticker string, asOf time.Time) (*Fundamentals, error)
}

// Chain tries each provider in order and returns the first usable answer,
// logging a warning for every source that fails along the way.
type Chain struct {
	providers []Provider
	log       zerolog.Logger
}

// NewChain assembles a fallback chain from the given providers.
func NewChain(log zerolog.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, log: log}
}

// PriceBars walks the chain until a provider returns at least one bar.
func (c *Chain) PriceBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	var errs []error
	for _, p := range c.providers {
		bars, err := p.PriceBars(ctx, ticker, start, end)
		if err == nil && len(bars) > 0 {
			return bars, nil
		}
		if err == nil {
			err = ErrNoData
		}
		c.log.Warn().Str("ticker", ticker).Err(err).Msg("price source failed, trying next")
		errs = append(errs, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("marketdata: every price source failed for %s: %w", ticker, errors.Join(errs...))
}

// FundamentalsAsOf walks the chain until a provider returns fundamentals.
func (c *Chain) FundamentalsAsOf(ctx context.Context, ticker string, asOf time.Time) (*Fundamentals, error) {
	var errs []error
	for _, p := range c.providers {
		f, err := p.FundamentalsAsOf(ctx, ticker, asOf)
		if err == nil && f != nil {
			return f, nil
		}
		if err == nil {
			err = ErrNoFundamentals
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("marketdata: every fundamentals source failed for %s: %w", ticker, errors.Join(errs...))
}
