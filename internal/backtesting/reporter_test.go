package backtesting

import (
	"testing"

	"github.com/guyghost/cryptosim/internal/testutils"
	"github.com/stretchr/testify/assert"
)

func TestReporter(t *testing.T) {
	bars := testutils.BarsFromCloses("BTC-USD", 110, 100, 104, 112, 108)
	res := runEngine(t, thresholdStrategy("CLOSE <= 100", "CLOSE >= 110"), frictionless(), bars)
	r := NewReporter()

	report := r.GenerateReport(res)
	assert.Contains(t, report, "BACKTESTING PERFORMANCE REPORT")
	assert.Contains(t, report, "COMPLETED")
	assert.Contains(t, report, "$10600.00")
	assert.Contains(t, report, "999.99")
	assert.Contains(t, report, "RECENT TRADES")

	summary := r.GenerateSummary(res)
	assert.Equal(t, "COMPLETED | Return: 6.00% | Trades: 1 | Win Rate: 100.00% | Max DD: 0.00% | Profit Factor: 999.99", summary)

	log := r.GenerateTradeLog(res)
	assert.Contains(t, log, "Trade #1")
	assert.Contains(t, log, res.Trades[0].ID)
	assert.Contains(t, log, "signal")
}

func TestReporter_PartialAndEmpty(t *testing.T) {
	res := &Result{Status: StateCancelled, Warnings: []string{"cancelled after 3 of 10 bars"}}
	r := NewReporter()

	report := r.GenerateReport(res)
	assert.Contains(t, report, "CANCELLED (partial)")
	assert.Contains(t, report, "cancelled after 3 of 10 bars")
	assert.Contains(t, r.GenerateTradeLog(res), "no trades")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45e9))
	assert.Equal(t, "5m", formatDuration(5*60e9))
	assert.Equal(t, "2h30m", formatDuration(150*60e9))
	assert.Equal(t, "3d4h", formatDuration(76*3600e9))
}
