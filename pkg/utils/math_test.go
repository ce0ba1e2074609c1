package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    decimal.Decimal
		expected decimal.Decimal
	}{
		{"Half rounds to even (down)", d("0.000000125"), d("0.00000012")},
		{"Half rounds to even (up)", d("0.000000135"), d("0.00000014")},
		{"Above half rounds up", d("1.123456786"), d("1.12345679")},
		{"Already canonical", d("42.5"), d("42.5")},
		{"Negative half to even", d("-0.000000125"), d("-0.00000012")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(tt.input)
			if !result.Equal(tt.expected) {
				t.Errorf("Normalize(%v) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSafeDiv(t *testing.T) {
	tests := []struct {
		name     string
		a, b     decimal.Decimal
		expected decimal.Decimal
	}{
		{"Exact division", d("10"), d("4"), d("2.5")},
		{"Repeating decimal", d("1"), d("3"), d("0.33333333")},
		{"Zero divisor", d("10"), decimal.Zero, decimal.Zero},
		{"Negative", d("-1"), d("8"), d("-0.125")},
		{"Tie rounds to even down", d("0.000000005"), d("1"), d("0")},
		{"Tie rounds to even up", d("0.000000015"), d("1"), d("0.00000002")},
		{"Negative tie", d("-0.000000015"), d("1"), d("-0.00000002")},
		{"Just above half rounds up", d("0.00000000500000000049"), d("1"), d("0.00000001")},
		{"Just below half rounds down", d("0.00000000499999999999"), d("1"), d("0")},
		{"Negative divisor", d("2"), d("-3"), d("-0.66666667")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SafeDiv(tt.a, tt.b)
			if !result.Equal(tt.expected) {
				t.Errorf("SafeDiv(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestPercentHelpers(t *testing.T) {
	if got := PercentOf(d("200"), d("5")); !got.Equal(d("10")) {
		t.Errorf("PercentOf = %v, want 10", got)
	}
	if got := PercentOf(d("40000"), d("0.1")); !got.Equal(d("40")) {
		t.Errorf("PercentOf = %v, want 40", got)
	}
	if got := ApplyPercent(d("100"), d("-2.5")); !got.Equal(d("97.5")) {
		t.Errorf("ApplyPercent = %v, want 97.5", got)
	}
	if got := ApplyPercent(d("100"), d("10")); !got.Equal(d("110")) {
		t.Errorf("ApplyPercent = %v, want 110", got)
	}
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name     string
		oldValue decimal.Decimal
		newValue decimal.Decimal
		expected decimal.Decimal
	}{
		{"Increase", d("100"), d("110"), d("10")},
		{"Decrease", d("100"), d("90"), d("-10")},
		{"No change", d("100"), d("100"), decimal.Zero},
		{"Zero base", decimal.Zero, d("100"), decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PercentChange(tt.oldValue, tt.newValue)
			if !result.Equal(tt.expected) {
				t.Errorf("PercentChange(%v, %v) = %v, want %v", tt.oldValue, tt.newValue, result, tt.expected)
			}
		})
	}
}

func TestApproxEqual(t *testing.T) {
	if !ApproxEqual(d("1.00000001"), d("1"), DefaultTolerance) {
		t.Error("values one unit apart should be equal within default tolerance")
	}
	if ApproxEqual(d("1.00000002"), d("1"), DefaultTolerance) {
		t.Error("values two units apart should not be equal within default tolerance")
	}
	if !ApproxEqual(d("699.5"), d("700"), d("0.5")) {
		t.Error("tolerance should be inclusive")
	}
}

func TestMinMaxClamp(t *testing.T) {
	if got := MinDecimal(d("1.5"), d("2.5")); !got.Equal(d("1.5")) {
		t.Errorf("MinDecimal = %v", got)
	}
	if got := MaxDecimal(d("-1.5"), d("-2.5")); !got.Equal(d("-1.5")) {
		t.Errorf("MaxDecimal = %v", got)
	}
	if got := ClampDecimal(d("150"), decimal.Zero, d("100")); !got.Equal(d("100")) {
		t.Errorf("ClampDecimal = %v", got)
	}
	if got := ClampDecimal(d("-5"), decimal.Zero, d("100")); !got.IsZero() {
		t.Errorf("ClampDecimal = %v", got)
	}
	if !IsWithinRange(d("5"), d("5"), d("10")) {
		t.Error("IsWithinRange should include the lower bound")
	}
}

func TestStandardDeviation(t *testing.T) {
	values := []decimal.Decimal{d("2"), d("4"), d("4"), d("4"), d("5"), d("5"), d("7"), d("9")}
	if got := StandardDeviation(values); !got.Equal(d("2")) {
		t.Errorf("StandardDeviation = %v, want 2", got)
	}
	if got := StandardDeviation(nil); !got.IsZero() {
		t.Errorf("StandardDeviation(nil) = %v, want 0", got)
	}
	if got := Mean(values); !got.Equal(d("5")) {
		t.Errorf("Mean = %v, want 5", got)
	}
}

func TestSafeDivDown(t *testing.T) {
	if got := SafeDivDown(d("2"), d("3")); !got.Equal(d("0.66666666")) {
		t.Errorf("SafeDivDown(2, 3) = %v, want 0.66666666", got)
	}
	if got := SafeDiv(d("2"), d("3")); !got.Equal(d("0.66666667")) {
		t.Errorf("SafeDiv(2, 3) = %v, want 0.66666667", got)
	}
	if got := SafeDivDown(d("0.99999999999999999999"), d("1")); !got.Equal(d("0.99999999")) {
		t.Errorf("SafeDivDown(0.99999999999999999999, 1) = %v, want 0.99999999", got)
	}
	if got := SafeDivDown(d("-2"), d("3")); !got.Equal(d("-0.66666666")) {
		t.Errorf("SafeDivDown(-2, 3) = %v, want -0.66666666", got)
	}
	if got := SafeDivDown(d("2"), decimal.Zero); !got.IsZero() {
		t.Errorf("SafeDivDown by zero = %v, want 0", got)
	}
}
