package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AlphaVantageConfig tunes the Alpha Vantage REST client. Zero values fall
// back to the free-tier defaults.
type AlphaVantageConfig struct {
	BaseURL            string
	APIKey             string
	RateLimitPerMinute int
	Retries            int
	Timeout            time.Duration
}

// AlphaVantage fetches daily bars and company overviews from the Alpha
// Vantage REST API, throttled to the account's request budget and backed by
// the shared file cache.
type AlphaVantage struct {
	client  *resty.Client
	limiter *rate.Limiter
	cache   *Cache
	apiKey  string
	log     zerolog.Logger
}

// NewAlphaVantage builds the provider. cache may be nil to disable caching.
func NewAlphaVantage(cfg AlphaVantageConfig, cache *Cache, log zerolog.Logger) *AlphaVantage {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.alphavantage.co"
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500 * time.Millisecond)
	return &AlphaVantage{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60.0), 1),
		cache:   cache,
		apiKey:  cfg.APIKey,
		log:     log,
	}
}

type avDailyPayload struct {
	ErrorMessage string                       `json:"Error Message"`
	Note         string                       `json:"Note"`
	Information  string                       `json:"Information"`
	Series       map[string]map[string]string `json:"Time Series (Daily)"`
}

type avOverviewPayload struct {
	ErrorMessage  string `json:"Error Message"`
	Note          string `json:"Note"`
	Symbol        string `json:"Symbol"`
	PERatio       string `json:"PERatio"`
	EPS           string `json:"EPS"`
	ProfitMargin  string `json:"ProfitMargin"`
	RevenueGrowth string `json:"QuarterlyRevenueGrowthYOY"`
}

func (p avDailyPayload) apiError() string {
	switch {
	case p.ErrorMessage != "":
		return p.ErrorMessage
	case p.Note != "":
		return p.Note
	case p.Information != "":
		return p.Information
	}
	return ""
}

// PriceBars returns the ticker's daily bars within [start, end]. The full
// history is cached per ticker so each backtest costs one API call at most.
func (av *AlphaVantage) PriceBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	key := BarsKey("alphavantage", ticker)
	var bars []Bar
	if av.cache.Get(key, &bars) {
		return FilterBars(bars, start, end), nil
	}

	if err := av.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("alphavantage rate wait: %w", err)
	}
	payload := &avDailyPayload{}
	resp, err := av.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function":   "TIME_SERIES_DAILY",
			"symbol":     ticker,
			"outputsize": "full",
			"apikey":     av.apiKey,
		}).
		SetResult(payload).
		Get("/query")
	if err != nil {
		return nil, fmt.Errorf("alphavantage daily %s: %w", ticker, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("alphavantage daily %s: status %s", ticker, resp.Status())
	}
	if msg := payload.apiError(); msg != "" {
		return nil, fmt.Errorf("alphavantage daily %s: %s", ticker, msg)
	}
	if len(payload.Series) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, ticker)
	}

	bars = make([]Bar, 0, len(payload.Series))
	for day, fields := range payload.Series {
		bar, err := parseAVBar(day, fields)
		if err != nil {
			av.log.Warn().Str("ticker", ticker).Str("date", day).Err(err).Msg("skipping malformed bar")
			continue
		}
		bars = append(bars, bar)
	}
	SortBars(bars)
	av.cache.Set(key, bars)
	return FilterBars(bars, start, end), nil
}

// FundamentalsAsOf returns the company overview. Alpha Vantage only
// publishes the latest snapshot, so the same ratios apply across the run.
func (av *AlphaVantage) FundamentalsAsOf(ctx context.Context, ticker string, asOf time.Time) (*Fundamentals, error) {
	key := FundamentalsKey("alphavantage", ticker)
	var cached Fundamentals
	if av.cache.Get(key, &cached) {
		out := cached
		out.AsOf = Day(asOf)
		return &out, nil
	}

	if err := av.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("alphavantage rate wait: %w", err)
	}
	payload := &avOverviewPayload{}
	resp, err := av.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": "OVERVIEW",
			"symbol":   ticker,
			"apikey":   av.apiKey,
		}).
		SetResult(payload).
		Get("/query")
	if err != nil {
		return nil, fmt.Errorf("alphavantage overview %s: %w", ticker, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("alphavantage overview %s: status %s", ticker, resp.Status())
	}
	if payload.ErrorMessage != "" || payload.Note != "" {
		return nil, fmt.Errorf("alphavantage overview %s: %s%s", ticker, payload.ErrorMessage, payload.Note)
	}
	if payload.Symbol == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoFundamentals, ticker)
	}

	funds := Fundamentals{
		Ticker:        ticker,
		PERatio:       parseAVFloat(payload.PERatio),
		EPS:           parseAVFloat(payload.EPS),
		ProfitMargin:  parseAVFloat(payload.ProfitMargin),
		RevenueGrowth: parseAVFloat(payload.RevenueGrowth),
	}
	av.cache.Set(key, funds)
	funds.AsOf = Day(asOf)
	return &funds, nil
}

func parseAVBar(day string, fields map[string]string) (Bar, error) {
	date, err := time.Parse("2006-01-02", day)
	if err != nil {
		return Bar{}, fmt.Errorf("bad date %q: %w", day, err)
	}
	open, err := strconv.ParseFloat(fields["1. open"], 64)
	if err != nil {
		return Bar{}, fmt.Errorf("bad open: %w", err)
	}
	high, err := strconv.ParseFloat(fields["2. high"], 64)
	if err != nil {
		return Bar{}, fmt.Errorf("bad high: %w", err)
	}
	low, err := strconv.ParseFloat(fields["3. low"], 64)
	if err != nil {
		return Bar{}, fmt.Errorf("bad low: %w", err)
	}
	closePx, err := strconv.ParseFloat(fields["4. close"], 64)
	if err != nil {
		return Bar{}, fmt.Errorf("bad close: %w", err)
	}
	volume, _ := strconv.ParseFloat(fields["5. volume"], 64)
	return Bar{Date: Day(date), Open: open, High: high, Low: low, Close: closePx, Volume: volume}, nil
}

// parseAVFloat tolerates the "None" and "-" placeholders the API uses for
// ratios it cannot compute.
func parseAVFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
