// Package utils holds the fixed-scale decimal arithmetic shared by every
// money, price and volume computation in the simulator.
package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// Scale is the canonical number of fractional digits for money, prices and volumes.
const Scale int32 = 8

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)

	// DefaultTolerance is one unit at canonical scale.
	DefaultTolerance = decimal.New(1, -Scale)
)

// Normalize rounds d to the canonical scale using round-half-to-even.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Scale)
}

// FromFloat converts a float to a normalized decimal.
func FromFloat(f float64) decimal.Decimal {
	return Normalize(decimal.NewFromFloat(f))
}

// Add returns a+b at canonical scale.
func Add(a, b decimal.Decimal) decimal.Decimal {
	return Normalize(a.Add(b))
}

// Sub returns a-b at canonical scale.
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return Normalize(a.Sub(b))
}

// Mul returns a*b at canonical scale.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return Normalize(a.Mul(b))
}

// SafeDiv returns a/b at canonical scale, or zero when b is zero. The exact
// quotient is rounded once, half to even.
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	q, r := a.QuoRem(b, Scale)
	if r.IsZero() {
		return q
	}
	// |r| < |b|·ulp; compare 2|r| against |b|·ulp to place the remainder.
	half := r.Abs().Mul(two).Cmp(b.Abs().Mul(DefaultTolerance))
	if half < 0 || (half == 0 && q.Shift(Scale).BigInt().Bit(0) == 0) {
		return q
	}
	if a.Sign() == b.Sign() {
		return q.Add(DefaultTolerance)
	}
	return q.Sub(DefaultTolerance)
}

// SafeDivDown returns a/b truncated toward zero at canonical scale, or zero
// when b is zero. Use it when a result must never exceed the exact quotient.
func SafeDivDown(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	q, _ := a.QuoRem(b, Scale)
	return q
}

// PercentOf returns pct percent of value.
func PercentOf(value, pct decimal.Decimal) decimal.Decimal {
	return SafeDiv(value.Mul(pct), hundred)
}

// ApplyPercent returns value increased by pct percent (decreased when pct is negative).
func ApplyPercent(value, pct decimal.Decimal) decimal.Decimal {
	return SafeDiv(value.Mul(hundred.Add(pct)), hundred)
}

// ApproxEqual reports whether a and b differ by at most tolerance.
func ApproxEqual(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance.Abs())
}

// RoundDecimal rounds a decimal to a specific number of decimal places
func RoundDecimal(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundBank(places)
}

// MinDecimal returns the minimum of two decimals
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxDecimal returns the maximum of two decimals
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// PercentChange calculates the percentage change between two values
func PercentChange(oldValue, newValue decimal.Decimal) decimal.Decimal {
	return SafeDiv(newValue.Sub(oldValue).Mul(hundred), oldValue)
}

// Sum adds all values at canonical scale.
func Sum(values []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return Normalize(sum)
}

// Mean returns the arithmetic mean, zero for an empty slice.
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return SafeDiv(Sum(values), decimal.NewFromInt(int64(len(values))))
}

// StandardDeviation calculates the population standard deviation of a slice of decimals
func StandardDeviation(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}

	mean := Mean(values)

	variance := 0.0
	for _, v := range values {
		diff := v.Sub(mean).InexactFloat64()
		variance += diff * diff
	}
	variance /= float64(len(values))

	return FromFloat(math.Sqrt(variance))
}

// ClampDecimal clamps a decimal value between min and max
func ClampDecimal(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}

// IsWithinRange checks if a value is within a range (inclusive)
func IsWithinRange(value, min, max decimal.Decimal) bool {
	return value.GreaterThanOrEqual(min) && value.LessThanOrEqual(max)
}
