package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sailorworks/open-hedge-fund/internal/engine"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(24)

	valueStyle = lipgloss.NewStyle().
			Bold(true)

	gainStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	curveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6"))
)

func signed(v float64, text string) string {
	if v < 0 {
		return lossStyle.Render(text)
	}
	return gainStyle.Render(text)
}

// Render formats the summary as a styled block for the terminal.
func Render(s Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Backtest Summary"))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	row("Period", valueStyle.Render(fmt.Sprintf("%s .. %s (%d trading days)", s.StartDate, s.EndDate, s.TradingDays)))
	if len(s.Tickers) > 0 {
		row("Tickers", valueStyle.Render(strings.Join(s.Tickers, ", ")))
	}
	if len(s.Agents) > 0 {
		row("Agents", valueStyle.Render(strings.Join(s.Agents, ", ")))
	}
	row("Initial value", valueStyle.Render(fmt.Sprintf("%.2f", s.InitialValue)))
	row("Final value", valueStyle.Render(fmt.Sprintf("%.2f", s.FinalValue)))
	row("Total return", signed(s.TotalReturn, fmt.Sprintf("%+.2f%%", s.TotalReturn*100)))
	row("Annualized return", signed(s.AnnualizedReturn, fmt.Sprintf("%+.2f%%", s.AnnualizedReturn*100)))
	row("Annualized volatility", valueStyle.Render(fmt.Sprintf("%.2f%%", s.AnnualizedVolatility*100)))
	row("Sharpe ratio", signed(s.SharpeRatio, fmt.Sprintf("%.2f", s.SharpeRatio)))
	row("Max drawdown", valueStyle.Render(fmt.Sprintf("%.2f%%", s.MaxDrawdown*100)))
	row("Realized PnL", signed(s.RealizedPnL, fmt.Sprintf("%+.2f", s.RealizedPnL)))
	row("Trades", valueStyle.Render(fmt.Sprintf("%d (%d won / %d lost, %.0f%% win rate)",
		s.TradesExecuted, s.WinningTrades, s.LosingTrades, s.WinRate*100)))
	return b.String()
}

// RenderEquityCurve draws one bar per trading day, scaled between the
// lowest and highest portfolio value seen in the run.
func RenderEquityCurve(snapshots []engine.DailySnapshot, width int) string {
	if len(snapshots) == 0 {
		return ""
	}
	if width <= 0 {
		width = 40
	}

	low, high := snapshots[0].PortfolioValue, snapshots[0].PortfolioValue
	for _, snap := range snapshots {
		low = math.Min(low, snap.PortfolioValue)
		high = math.Max(high, snap.PortfolioValue)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Equity Curve"))
	b.WriteString("\n\n")
	prev := snapshots[0].PortfolioValue
	for i, snap := range snapshots {
		bars := width
		if high > low {
			bars = 1 + int((snap.PortfolioValue-low)/(high-low)*float64(width-1))
		}
		ret := 0.0
		if i > 0 && prev > 0 {
			ret = snap.PortfolioValue/prev - 1
		}
		prev = snap.PortfolioValue
		b.WriteString(fmt.Sprintf("%s  %12.2f  %12.2f  %+6.2f%%  %s\n",
			snap.Date.Format(dateLayout),
			snap.PortfolioValue,
			snap.Cash,
			ret*100,
			curveStyle.Render(strings.Repeat("█", bars))))
	}
	return b.String()
}
