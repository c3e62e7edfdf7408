package agent

import (
	"context"
	"fmt"

	"github.com/sailorworks/open-hedge-fund/internal/marketdata"
	"github.com/sailorworks/open-hedge-fund/internal/portfolio"
	sig "github.com/sailorworks/open-hedge-fund/internal/signal"
)

// Fundamental votes on valuation, buying cheap profitable names and fading
// expensive ones. It abstains whenever no fundamentals are available or the
// multiple sits between the bands, so it is silent for most tickers.
type Fundamental struct {
	cheapPE float64
	richPE  float64
}

// NewFundamental builds the agent; non-positive bands fall back to buying
// under 15x earnings and fading above 40x.
func NewFundamental(cheapPE, richPE float64) *Fundamental {
	if cheapPE <= 0 {
		cheapPE = 15
	}
	if richPE <= cheapPE {
		richPE = 40
	}
	return &Fundamental{cheapPE: cheapPE, richPE: richPE}
}

// Name returns the agent identifier.
func (f *Fundamental) Name() string { return "fundamental" }

// Evaluate scores the ticker's earnings multiple against the bands, with
// margin and growth nudging the confidence.
func (f *Fundamental) Evaluate(_ context.Context, view *marketdata.View, ticker string, pos portfolio.Position) (*sig.Signal, error) {
	funds := view.Fundamentals(ticker)
	if funds == nil || funds.PERatio <= 0 {
		return nil, nil
	}

	var action sig.Action
	conf := 0.4
	switch {
	case funds.PERatio <= f.cheapPE:
		action = sig.Long
		if pos.ShortShares > 0 {
			action = sig.Cover
		}
		if funds.ProfitMargin > 0.10 {
			conf += 0.2
		}
		if funds.RevenueGrowth > 0.05 {
			conf += 0.2
		}
	case funds.PERatio >= f.richPE:
		action = sig.Short
		if pos.LongShares > 0 {
			action = sig.Sell
		}
		if funds.ProfitMargin < 0.05 {
			conf += 0.2
		}
		if funds.RevenueGrowth < 0 {
			conf += 0.2
		}
	default:
		return nil, nil
	}

	return &sig.Signal{
		Action:     action,
		Confidence: clamp01(conf),
		Rationale:  fmt.Sprintf("pe=%.1f margin=%.2f growth=%.2f", funds.PERatio, funds.ProfitMargin, funds.RevenueGrowth),
	}, nil
}
