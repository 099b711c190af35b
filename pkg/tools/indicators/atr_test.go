package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

func ohlc(high, low, close string) common.Bar {
	return common.Bar{
		High:  fixed.MustParse(high),
		Low:   fixed.MustParse(low),
		Close: fixed.MustParse(close),
	}
}

func TestAtr_FirstBarHasNoRange(t *testing.T) {
	atr := NewAtr(3)
	atr.OnBar(ohlc("100", "95", "98"))

	assert.False(t, atr.Ready())
	assert.True(t, atr.TrueRange().IsZero())
	assert.True(t, atr.AverageTrueRange().IsZero())
}

func TestAtr_TrueRangeUsesPreviousClose(t *testing.T) {
	atr := NewAtr(3)
	atr.OnBar(ohlc("100", "95", "98"))

	// gap up: high minus previous close dominates
	atr.OnBar(ohlc("105", "103", "104"))
	assert.True(t, atr.TrueRange().Eq(fixed.FromInt(7, 0)), atr.TrueRange().String())

	// gap down: previous close minus low dominates
	atr.OnBar(ohlc("101", "99", "100"))
	assert.True(t, atr.TrueRange().Eq(fixed.FromInt(5, 0)))
}

func TestAtr_SeedThenSmooth(t *testing.T) {
	atr := NewAtr(3)
	atr.OnBar(ohlc("10", "10", "10"))
	atr.OnBar(ohlc("11", "9", "10")) // tr 2
	atr.OnBar(ohlc("12", "8", "10")) // tr 4
	assert.False(t, atr.Ready())

	atr.OnBar(ohlc("13", "7", "10")) // tr 6
	assert.True(t, atr.Ready())
	assert.True(t, atr.AverageTrueRange().Eq(fixed.FromInt(4, 0)))

	atr.OnBar(ohlc("11", "10", "10")) // tr 1: (4*2+1)/3
	assert.True(t, atr.AverageTrueRange().Eq(fixed.FromInt(3, 0)), atr.AverageTrueRange().String())

	atr.Reset()
	assert.False(t, atr.Ready())
	assert.True(t, atr.AverageTrueRange().IsZero())
}
