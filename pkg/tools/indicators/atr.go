package indicators

import (
	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

// Atr is Wilder's average true range. The first value is the plain mean of
// the first windowSize true ranges.
type Atr struct {
	windowSize int

	hasClose  bool
	lastClose fixed.Point
	count     int
	sum       fixed.Point
	atr       fixed.Point
	tr        fixed.Point
}

func NewAtr(windowSize int) *Atr {
	if windowSize < 1 {
		panic("atr window must be positive")
	}
	return &Atr{windowSize: windowSize}
}

func (a *Atr) OnBar(b common.Bar) {
	defer func() {
		a.lastClose = b.Close
		a.hasClose = true
	}()
	if !a.hasClose {
		return
	}

	a.tr = fixed.Max(b.High.Sub(b.Low).Abs(),
		fixed.Max(b.High.Sub(a.lastClose).Abs(), b.Low.Sub(a.lastClose).Abs()))

	a.count++
	switch {
	case a.count < a.windowSize:
		a.sum = a.sum.Add(a.tr)
	case a.count == a.windowSize:
		a.atr = a.sum.Add(a.tr).DivInt(a.windowSize)
	default:
		a.atr = a.atr.MulInt(a.windowSize - 1).Add(a.tr).DivInt(a.windowSize)
	}
}

func (a *Atr) AverageTrueRange() fixed.Point { return a.atr }
func (a *Atr) TrueRange() fixed.Point        { return a.tr }
func (a *Atr) Ready() bool                   { return a.count >= a.windowSize }

func (a *Atr) Reset() {
	*a = Atr{windowSize: a.windowSize}
}
