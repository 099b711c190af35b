package marketdata

import (
	"time"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

// BarWindow folds base bars into bars of a longer length. Windows are aligned
// on multiples of the length. A window that starts before the first bar the
// BarWindow has seen is partial and never emitted.
type BarWindow struct {
	length  time.Duration
	from    time.Time
	current *common.Bar
	partial bool
}

func NewBarWindow(length time.Duration) *BarWindow {
	return &BarWindow{length: length}
}

func (w *BarWindow) Length() time.Duration { return w.length }

// Since marks from as the start of the observed data. Without it the first
// added bar sets it.
func (w *BarWindow) Since(from time.Time) {
	w.from = from
}

// Add folds bar into the open window and returns every window completed by
// it. A window completes when a bar closes on its boundary or when a bar of a
// later window arrives.
func (w *BarWindow) Add(bar common.Bar) []common.Bar {
	var done []common.Bar
	start := bar.TimeStamp.Truncate(w.length)
	if w.from.IsZero() {
		w.from = bar.TimeStamp
	}

	if w.current != nil && !w.current.TimeStamp.Equal(start) {
		done = w.flush(done)
	}

	if w.current == nil {
		w.current = &common.Bar{
			Ticker:    bar.Ticker,
			TimeStamp: start,
			Length:    w.length,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
		}
		w.partial = start.Before(w.from)
	} else {
		if bar.High.Gt(w.current.High) {
			w.current.High = bar.High
		}
		if bar.Low.Lt(w.current.Low) {
			w.current.Low = bar.Low
		}
		w.current.Close = bar.Close
		w.current.Volume = w.current.Volume.Add(bar.Volume)
	}

	if !bar.AvailableAt().Before(start.Add(w.length)) {
		done = w.flush(done)
	}
	return done
}

func (w *BarWindow) flush(done []common.Bar) []common.Bar {
	if !w.partial {
		done = append(done, *w.current)
	}
	w.current = nil
	w.partial = false
	return done
}

// Reset forgets the open window and the observed start.
func (w *BarWindow) Reset() {
	w.current = nil
	w.partial = false
	w.from = time.Time{}
}

// Aggregate folds a series observed from from. Windows starting before from
// and a trailing incomplete window are dropped.
func Aggregate(bars []common.Bar, length time.Duration, from time.Time) []common.Bar {
	if length <= common.BaseBarLength {
		return append([]common.Bar(nil), bars...)
	}
	w := NewBarWindow(length)
	w.Since(from)
	out := make([]common.Bar, 0, len(bars)*int(common.BaseBarLength)/int(length)+1)
	for _, bar := range bars {
		out = append(out, w.Add(bar)...)
	}
	return out
}

// FoldTrades builds base bars from trades. A window that would close after to
// is left out.
func FoldTrades(ticker string, trades []common.Last, to time.Time) []common.Bar {
	var (
		bars    []common.Bar
		current *common.Bar
	)
	flush := func() {
		if current != nil && !current.AvailableAt().After(to) {
			bars = append(bars, *current)
		}
		current = nil
	}

	for _, trade := range trades {
		start := trade.TimeStamp.Truncate(common.BaseBarLength)
		if current != nil && !current.TimeStamp.Equal(start) {
			flush()
		}
		if current == nil {
			current = &common.Bar{
				Ticker:    ticker,
				TimeStamp: start,
				Length:    common.BaseBarLength,
				Open:      trade.Price,
				High:      trade.Price,
				Low:       trade.Price,
				Close:     trade.Price,
				Volume:    trade.Size,
			}
			continue
		}
		current.High = fixed.Max(current.High, trade.Price)
		current.Low = fixed.Min(current.Low, trade.Price)
		current.Close = trade.Price
		current.Volume = current.Volume.Add(trade.Size)
	}
	flush()
	return bars
}
