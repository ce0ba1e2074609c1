package backtesting

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	simerrors "github.com/guyghost/cryptosim/internal/errors"
	"github.com/guyghost/cryptosim/internal/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoader() *DataLoader {
	return NewDataLoader(market.Timeframe1m, market.TierStandard, "test-feed")
}

func TestDataLoader_LoadFromCSV(t *testing.T) {
	csvFile := filepath.Join(t.TempDir(), "test_data.csv")
	content := `timestamp,open,high,low,close,volume
1640995200,50000,51000,49000,50500,100
1640995260,50500,51500,49500,51000,150
1640995320,51000,52000,50000,51500,200`
	require.NoError(t, os.WriteFile(csvFile, []byte(content), 0o644))

	bars, err := newLoader().LoadFromCSV(csvFile, "BTC-USD")
	require.NoError(t, err)
	require.Len(t, bars, 3)

	first := bars[0]
	assert.Equal(t, "BTC-USD", first.Symbol)
	assert.Equal(t, market.Timeframe1m, first.Timeframe)
	assert.Equal(t, market.TierStandard, first.Tier)
	assert.Equal(t, "test-feed", first.SourceID)
	assert.Equal(t, time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC), first.Timestamp)
	assertDec(t, "50000", first.Open)
	assertDec(t, "50500", first.Close)
	assertDec(t, "100", first.Volume)

	_, err = market.NewValidator().ValidateSeries(bars)
	assert.NoError(t, err)
}

func TestDataLoader_NoHeader(t *testing.T) {
	bars, err := newLoader().Load(strings.NewReader("1640995200,50000,51000,49000,50500,100\n1640995260,50500,51500,49500,51000,150\n"), "BTC-USD")
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestDataLoader_KeepsFileOrder(t *testing.T) {
	content := "1640995260,2,2,2,2,1\n1640995200,1,1,1,1,1\n"
	bars, err := newLoader().Load(strings.NewReader(content), "BTC-USD")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assertDec(t, "2", bars[0].Open, "rows are not re-sorted; ordering is for the validator to judge")

	_, err = market.NewValidator().ValidateSeries(bars)
	assert.True(t, errors.Is(err, simerrors.ErrDataValidation))
}

func TestDataLoader_RejectsMalformedRows(t *testing.T) {
	tests := []struct {
		name    string
		content string
		line    string
	}{
		{"bad price", "timestamp,open,high,low,close,volume\n1640995200,1,1,1,1,1\n1640995260,abc,1,1,1,1\n", "line 3"},
		{"short row", "1640995200,1,1,1,1\n", "line 1"},
		{"bad timestamp", "1640995200,1,1,1,1,1\nyesterday,1,1,1,1,1\n", "line 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars, err := newLoader().Load(strings.NewReader(tt.content), "BTC-USD")
			require.Error(t, err)
			assert.Nil(t, bars)
			assert.True(t, errors.Is(err, simerrors.ErrDataValidation))
			assert.Contains(t, err.Error(), tt.line)
		})
	}
}

func TestDataLoader_MissingFile(t *testing.T) {
	_, err := newLoader().LoadFromCSV(filepath.Join(t.TempDir(), "missing.csv"), "BTC-USD")
	assert.True(t, errors.Is(err, simerrors.ErrConfiguration))
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)
	for _, input := range []string{
		"1640995200",
		"1640995200000",
		"2022-01-01T00:00:00Z",
		"2022-01-01T01:00:00+01:00",
		"2022-01-01 00:00:00",
		"2022-01-01T00:00:00",
		"2022-01-01",
	} {
		got, err := parseTimestamp(input)
		require.NoError(t, err, input)
		assert.True(t, want.Equal(got), "%s parsed as %s", input, got)
	}

	_, err := parseTimestamp("01/01/2022")
	assert.Error(t, err)
}

func TestDataLoader_GenerateSampleData(t *testing.T) {
	loader := NewDataLoader(market.Timeframe1h, market.TierProfessional, "sample")
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	bars := loader.GenerateSampleData("ETH-USD", start, 120, 3000)
	require.Len(t, bars, 120)
	assert.Equal(t, start.Add(119*time.Hour), bars[119].Timestamp)

	report, err := market.NewValidator().ValidateSeries(bars)
	require.NoError(t, err)
	assert.Equal(t, market.TierProfessional, report.Tier)

	again := loader.GenerateSampleData("ETH-USD", start, 120, 3000)
	assert.Equal(t, bars, again)
}
