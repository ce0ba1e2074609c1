package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	tests := []struct {
		src      string
		expected string
		lookback int
	}{
		{"RSI(14) < 30", "RSI(14) < 30", 57},
		{"rsi < 30", "RSI(14) < 30", 57},
		{"price >= 100", "CLOSE >= 100", 1},
		{"SMA(5) > 1", "SMA(5) > 1", 5},
		{"EMA(10) != 0", "EMA(10) != 0", 40},
		{"CLOSE CROSSES_ABOVE SMA(5)", "CLOSE CROSSES_ABOVE SMA(5)", 6},
		{"macd_hist crosses_below 0", "MACD_HIST(12,26,9) CROSSES_BELOW 0", 141},
		{"VOLUME > VOLUME_SMA(20) * 1.5", "VOLUME > (VOLUME_SMA(20) * 1.5)", 20},
		{"(CLOSE + 1) > 100", "(CLOSE + 1) > 100", 1},
		{"BB_LOWER(20, 2.5) > -1", "BB_LOWER(20,2.5) > -1", 20},
		{"CLOSE = 5", "CLOSE == 5", 1},
		{"ATR(14) > HIGH - LOW", "ATR(14) > (HIGH - LOW)", 15},
		{
			"(RSI(14) < 30 OR CLOSE > 100) AND NOT VOLUME < 5",
			"((RSI(14) < 30 OR CLOSE > 100) AND NOT VOLUME < 5)",
			57,
		},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			node, err := Parse(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, node.String())
			assert.Equal(t, tt.lookback, node.Lookback())
		})
	}
}

func TestParsePrecedence(t *testing.T) {
	node, err := Parse("CLOSE > 1 OR CLOSE < 0 AND VOLUME > 2")
	require.NoError(t, err)

	or, ok := node.(*OrNode)
	require.True(t, ok, "OR should bind weaker than AND")
	_, ok = or.Right.(*AndNode)
	assert.True(t, ok)

	node, err = Parse("CLOSE > 1 + 2 * 3")
	require.NoError(t, err)
	assert.Equal(t, "CLOSE > (1 + (2 * 3))", node.String())
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"RSI(14) <",
		"RSI(14)",
		"FOO > 1",
		"SMA > 1",
		"SMA(0) > 1",
		"RSI(14.5) < 3",
		"MACD(26,12,9) > 0",
		"BB_UPPER(20,2,1) > 0",
		"CLOSE > 1 )",
		"CLOSE ! 3",
		"CLOSE > 1 AND",
		"CLOSE # 1",
		"(CLOSE > 1",
	}

	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := Parse(src)
			assert.Error(t, err)
		})
	}
}
