package backtesting

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

var (
	successColor = lipgloss.Color("#00FF87")
	errorColor   = lipgloss.Color("#FF5555")
	mutedColor   = lipgloss.Color("#6272A4")

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	labelStyle = lipgloss.NewStyle().
			Width(22)
)

// Reporter renders results for terminals.
type Reporter struct{}

// NewReporter creates a new reporter
func NewReporter() *Reporter {
	return &Reporter{}
}

// GenerateReport renders the full performance report.
func (r *Reporter) GenerateReport(res *Result) string {
	m := res.Metrics

	header := titleStyle.Render("BACKTESTING PERFORMANCE REPORT") + "  " + statusBadge(res)

	overview := section("RUN",
		row("Run ID", res.RunID),
		row("Strategy", res.StrategyID),
		row("Mode", string(res.Mode)),
		row("Data", fmt.Sprintf("%s (quality %.2f), %s", res.Tier, res.TierScore, res.Timeframe)),
		row("Range", fmt.Sprintf("%s to %s", res.From.Format(time.RFC3339), res.To.Format(time.RFC3339))),
		row("Duration", formatDuration(res.To.Sub(res.From))),
		row("Bars", fmt.Sprintf("%d", res.Counters.BarsProcessed)),
	)

	perf := section("OVERALL PERFORMANCE",
		row("Starting Balance", money(res.StartingBalance)),
		row("Final Equity", money(res.FinalEquity)),
		row("Total Return", fmt.Sprintf("%s (%s%%)", signed(res.TotalPnL), m.TotalReturnPercent.StringFixed(2))),
		row("Realized P&L", signed(res.RealizedPnL)),
		row("Unrealized P&L", signed(res.UnrealizedPnL)),
		row("Total Costs", money(res.TotalFees)),
		row("Max Drawdown", fmt.Sprintf("%s (%s%%)", money(m.MaxDrawdown), m.MaxDrawdownPercent.StringFixed(2))),
		row("Sharpe Ratio", m.SharpeRatio.StringFixed(2)),
		row("Sortino Ratio", m.SortinoRatio.StringFixed(2)),
		row("Volatility", m.VolatilityPercent.StringFixed(2)+"%"),
		row("VaR / CVaR (95%)", fmt.Sprintf("%s%% / %s%%", m.VaR95Percent.StringFixed(2), m.CVaR95Percent.StringFixed(2))),
	)

	trades := section("TRADE STATISTICS",
		row("Total Trades", fmt.Sprintf("%d", m.TotalTrades)),
		row("Winning / Losing", fmt.Sprintf("%d / %d", m.WinningTrades, m.LosingTrades)),
		row("Win Rate", m.WinRate.StringFixed(2)+"%"),
		row("Profit Factor", m.ProfitFactor.StringFixed(2)),
		row("Avg Win / Avg Loss", fmt.Sprintf("%s / %s", money(m.AverageWin), money(m.AverageLoss))),
		row("Largest Win / Loss", fmt.Sprintf("%s / %s", money(m.LargestWin), money(m.LargestLoss))),
		row("Max Losing Streak", fmt.Sprintf("%d", m.MaxConsecutiveLosses)),
		row("Kelly Size", fmt.Sprintf("%s%% (%s)", m.Kelly.SuggestedSizePercent.StringFixed(2), m.Kelly.Source)),
		row("Skipped Signals", fmt.Sprintf("%d", res.Counters.SkippedSignals())),
		row("Evaluation Errors", fmt.Sprintf("%d", res.Counters.EvaluationErrors)),
	)

	blocks := []string{header, "", overview, perf, trades}

	if len(res.OpenPositions) > 0 {
		rows := make([]string, 0, len(res.OpenPositions))
		for _, p := range res.OpenPositions {
			rows = append(rows, row(p.Symbol, fmt.Sprintf("%s @ %s, mark %s, %s",
				p.Volume.String(), money(p.EntryPrice), money(p.MarkPrice), signed(p.Unrealized))))
		}
		blocks = append(blocks, section("OPEN POSITIONS", rows...))
	}

	if len(res.Trades) > 0 {
		start := max(len(res.Trades)-10, 0)
		rows := make([]string, 0, 10)
		for _, t := range res.Trades[start:] {
			rows = append(rows, fmt.Sprintf("%s %s %s -> %s  %s (%s%%)  %s",
				t.ExitTime.Format("01-02 15:04"),
				t.Symbol,
				money(t.EntryPrice),
				money(t.ExitPrice),
				signed(t.RealizedPnL),
				t.PnLPercent.StringFixed(2),
				mutedStyle.Render(string(t.ExitReason)),
			))
		}
		blocks = append(blocks, section("RECENT TRADES (Last 10)", rows...))
	}

	if res.Rationale != "" {
		blocks = append(blocks, section("DATASET RATIONALE", mutedStyle.Render(res.Rationale)))
	}
	if res.ValidationError != nil {
		blocks = append(blocks, section("VALIDATION ERROR", errorStyle.Render(*res.ValidationError)))
	}
	if len(res.Warnings) > 0 {
		rows := make([]string, 0, len(res.Warnings))
		for _, w := range res.Warnings {
			rows = append(rows, mutedStyle.Render("! "+w))
		}
		blocks = append(blocks, section("WARNINGS", rows...))
	}

	return lipgloss.JoinVertical(lipgloss.Left, blocks...) + "\n"
}

// GenerateSummary generates a short summary
func (r *Reporter) GenerateSummary(res *Result) string {
	m := res.Metrics
	return fmt.Sprintf(
		"%s | Return: %s%% | Trades: %d | Win Rate: %s%% | Max DD: %s%% | Profit Factor: %s",
		res.Status,
		m.TotalReturnPercent.StringFixed(2),
		m.TotalTrades,
		m.WinRate.StringFixed(2),
		m.MaxDrawdownPercent.StringFixed(2),
		m.ProfitFactor.StringFixed(2),
	)
}

// GenerateTradeLog lists every trade in detail.
func (r *Reporter) GenerateTradeLog(res *Result) string {
	if len(res.Trades) == 0 {
		return mutedStyle.Render("no trades") + "\n"
	}

	blocks := make([]string, 0, len(res.Trades)+1)
	blocks = append(blocks, titleStyle.Render("TRADE LOG"))
	for i, t := range res.Trades {
		status := successStyle.Render("PROFIT")
		if t.RealizedPnL.IsNegative() {
			status = errorStyle.Render("LOSS")
		}
		blocks = append(blocks, section(fmt.Sprintf("Trade #%d", i+1),
			row("ID", t.ID),
			row("Symbol", t.Symbol),
			row("Lot", fmt.Sprintf("%d", t.LotID)),
			row("Entry Time", t.EntryTime.Format(time.RFC3339)),
			row("Exit Time", t.ExitTime.Format(time.RFC3339)),
			row("Held", formatDuration(t.ExitTime.Sub(t.EntryTime))),
			row("Entry Price", money(t.EntryPrice)),
			row("Exit Price", money(t.ExitPrice)),
			row("Volume", t.Volume.String()),
			row("Costs", fmt.Sprintf("%s (entry %s, exit %s)", money(t.Fees), money(t.EntryFees), money(t.ExitFees))),
			row("Exit Reason", string(t.ExitReason)),
			row("P&L", fmt.Sprintf("%s (%s%%) %s", signed(t.RealizedPnL), t.PnLPercent.StringFixed(2), status)),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...) + "\n"
}

func statusBadge(res *Result) string {
	switch res.Status {
	case StateCompleted:
		return successStyle.Render(string(res.Status))
	case StateFailed:
		return errorStyle.Render(string(res.Status))
	default:
		return mutedStyle.Render(string(res.Status) + " (partial)")
	}
}

func section(title string, rows ...string) string {
	content := lipgloss.JoinVertical(lipgloss.Left, rows...)
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), content))
}

func row(label, value string) string {
	return labelStyle.Render(label+":") + value
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return errorStyle.Render("-$" + d.Abs().StringFixed(2))
	}
	return successStyle.Render("+$" + d.StringFixed(2))
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd%dh", days, hours)
}
