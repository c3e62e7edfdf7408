// Package report turns sealed daily snapshots into performance numbers
// and renders them for the terminal.
package report

import (
	"math"

	"github.com/sailorworks/open-hedge-fund/internal/engine"
)

const (
	tradingDaysPerYear = 252
	dateLayout         = "2006-01-02"
)

// Summary holds the headline performance numbers of a finished run.
// Returns and drawdown are fractions, not percentages. Tickers and Agents
// pin the run inputs so a serialized summary is reproducible on its own.
type Summary struct {
	Tickers              []string `json:"tickers,omitempty"`
	Agents               []string `json:"agents,omitempty"`
	StartDate            string   `json:"start_date"`
	EndDate              string   `json:"end_date"`
	TradingDays          int      `json:"trading_days"`
	InitialValue         float64  `json:"initial_value"`
	FinalValue           float64  `json:"final_value"`
	TotalReturn          float64  `json:"total_return"`
	AnnualizedReturn     float64  `json:"annualized_return"`
	AnnualizedVolatility float64  `json:"annualized_volatility"`
	SharpeRatio          float64  `json:"sharpe_ratio"`
	MaxDrawdown          float64  `json:"max_drawdown"`
	RealizedPnL          float64  `json:"realized_pnl"`
	TradesExecuted       int      `json:"trades_executed"`
	WinningTrades        int      `json:"winning_trades"`
	LosingTrades         int      `json:"losing_trades"`
	WinRate              float64  `json:"win_rate"`
}

// Compute derives the summary from the snapshots of one run. initialValue
// is the cash the run started with; riskFreeRate is annual.
func Compute(snapshots []engine.DailySnapshot, initialValue, riskFreeRate float64) Summary {
	s := Summary{
		TradingDays:  len(snapshots),
		InitialValue: initialValue,
		FinalValue:   initialValue,
	}
	if len(snapshots) == 0 {
		return s
	}
	s.StartDate = snapshots[0].Date.Format(dateLayout)
	s.EndDate = snapshots[len(snapshots)-1].Date.Format(dateLayout)
	s.FinalValue = snapshots[len(snapshots)-1].PortfolioValue
	s.RealizedPnL = snapshots[len(snapshots)-1].RealizedPnL

	returns := make([]float64, 0, len(snapshots))
	prev := initialValue
	peak := initialValue
	for _, snap := range snapshots {
		v := snap.PortfolioValue
		if prev > 0 {
			returns = append(returns, v/prev-1)
		}
		prev = v
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
		for _, trade := range snap.Trades {
			s.TradesExecuted++
			if !trade.Action.Closes() {
				continue
			}
			if trade.RealizedPnL > 0 {
				s.WinningTrades++
			} else {
				s.LosingTrades++
			}
		}
	}

	if initialValue > 0 {
		s.TotalReturn = s.FinalValue/initialValue - 1
		if s.FinalValue > 0 {
			years := float64(len(snapshots)) / tradingDaysPerYear
			if years > 0 {
				s.AnnualizedReturn = math.Pow(s.FinalValue/initialValue, 1/years) - 1
			}
		}
	}

	mean := average(returns)
	stdDev := standardDeviation(returns, mean)
	if stdDev > 0 {
		s.AnnualizedVolatility = stdDev * math.Sqrt(tradingDaysPerYear)
		excess := mean - riskFreeRate/tradingDaysPerYear
		s.SharpeRatio = excess / stdDev * math.Sqrt(tradingDaysPerYear)
	}

	if closed := s.WinningTrades + s.LosingTrades; closed > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(closed)
	}
	return s
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func standardDeviation(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
