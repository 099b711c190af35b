package indicators

import (
	"math"

	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

// ZScore is the distance of the latest point from the rolling mean, in
// sample standard deviations.
type ZScore struct {
	window []fixed.Point
	next   int
	full   bool
}

func NewZScore(windowSize int) *ZScore {
	if windowSize < 2 {
		panic("z-score window must hold at least two points")
	}
	return &ZScore{
		window: make([]fixed.Point, windowSize),
	}
}

func (z *ZScore) AddPoint(p fixed.Point) {
	z.window[z.next] = p
	z.next = (z.next + 1) % len(z.window)
	if z.next == 0 {
		z.full = true
	}
}

func (z *ZScore) IsReady() bool {
	return z.full
}

func (z *ZScore) Reset() {
	z.next = 0
	z.full = false
}

// Value is zero until the window is full or while the window is flat.
func (z *ZScore) Value() fixed.Point {
	if !z.full {
		return fixed.Zero
	}

	n := len(z.window)
	mean := fixed.Mean(z.window)
	sumSquares := fixed.Zero
	for _, p := range z.window {
		d := p.Sub(mean)
		sumSquares = sumSquares.Add(d.Mul(d))
	}
	stdDev := math.Sqrt(sumSquares.DivInt(n - 1).Float64())
	if stdDev == 0 {
		return fixed.Zero
	}

	latest := z.window[(z.next+n-1)%n]
	return fixed.FromFloat64(latest.Sub(mean).Float64() / stdDev)
}
