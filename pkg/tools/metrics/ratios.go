package metrics

import (
	"math"

	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

// Returns are simple returns between consecutive equity points.
func Returns(values []fixed.Point) []fixed.Point {
	if len(values) < 2 {
		return nil
	}
	out := make([]fixed.Point, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if !values[i-1].IsPos() {
			continue
		}
		out = append(out, values[i].Div(values[i-1]).Sub(fixed.One))
	}
	return out
}

func sqrt(p fixed.Point) fixed.Point {
	return fixed.FromFloat64(math.Sqrt(p.Float64()))
}

// StandardDeviation is the population deviation around mean.
func StandardDeviation(returns []fixed.Point, mean fixed.Point) fixed.Point {
	if len(returns) == 0 {
		return fixed.Zero
	}
	var sum fixed.Point
	for _, r := range returns {
		diff := r.Sub(mean)
		sum = sum.Add(diff.Mul(diff))
	}
	return sqrt(sum.DivInt(len(returns)))
}

// DownsideDeviation only counts returns below the risk free rate.
func DownsideDeviation(returns []fixed.Point, riskFreeRate fixed.Point) fixed.Point {
	var sum fixed.Point
	var count int
	for _, r := range returns {
		if r.Lt(riskFreeRate) {
			diff := r.Sub(riskFreeRate)
			sum = sum.Add(diff.Mul(diff))
			count++
		}
	}
	if count == 0 {
		return fixed.Zero
	}
	return sqrt(sum.DivInt(count))
}

// SharpeRatio is zero when the returns do not vary.
func SharpeRatio(returns []fixed.Point, riskFreeRate fixed.Point) fixed.Point {
	mean := fixed.Mean(returns)
	volatility := StandardDeviation(returns, mean)
	if volatility.IsZero() {
		return fixed.Zero
	}
	return mean.Sub(riskFreeRate).Div(volatility)
}

// SortinoRatio is zero without a single losing return.
func SortinoRatio(returns []fixed.Point, riskFreeRate fixed.Point) fixed.Point {
	downside := DownsideDeviation(returns, riskFreeRate)
	if downside.IsZero() {
		return fixed.Zero
	}
	return fixed.Mean(returns).Sub(riskFreeRate).Div(downside)
}
