package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

func TestIndicatorsZScore_Value(t *testing.T) {
	tests := []struct {
		name       string
		windowSize int
		data       []float64
		want       float64
		wantReady  bool
	}{
		{"not enough data", 3, []float64{1.0, 2.0}, 0, false},
		{"exact window size", 3, []float64{1.0, 2.0, 3.0}, 1, true},
		{"more than window size", 3, []float64{1.0, 2.0, 3.0, 4.0}, 1, true},
		{"larger window", 5, []float64{10.0, 12.0, 14.0, 16.0, 18.0}, 1.2649110640673518, true},
		{"negative values", 3, []float64{-3.0, -2.0, -1.0}, 1, true},
		{"below the mean", 3, []float64{3.0, 2.0, 1.0}, -1, true},
		{"flat window", 3, []float64{5.0, 5.0, 5.0}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := NewZScore(tt.windowSize)
			for _, v := range tt.data {
				z.AddPoint(fixed.FromFloat64(v))
			}
			assert.Equal(t, tt.wantReady, z.IsReady())
			assert.InDelta(t, tt.want, z.Value().Float64(), 1e-9)
		})
	}
}

func TestIndicatorsZScore_Reset(t *testing.T) {
	z := NewZScore(2)
	z.AddPoint(fixed.One)
	z.AddPoint(fixed.Two)
	assert.True(t, z.IsReady())

	z.Reset()
	assert.False(t, z.IsReady())
	assert.True(t, z.Value().IsZero())
}

func TestIndicatorsZScore_WindowTooSmall(t *testing.T) {
	assert.Panics(t, func() { NewZScore(1) })
}
