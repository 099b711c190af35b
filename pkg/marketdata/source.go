package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/peter-kozarec/replay/pkg/common"
)

var (
	ErrMarketClosed = errors.New("market closed")
	ErrNoData       = errors.New("no data")
)

// Source supplies complete, ascending series for a ticker and range. It
// returns ErrMarketClosed when the range holds no session and ErrNoData when
// the session exists but nothing can be supplied.
type Source interface {
	Bars(ctx context.Context, ticker string, from, to time.Time) ([]common.Bar, error)
	BidAsks(ctx context.Context, ticker string, from, to time.Time) ([]common.BidAsk, error)
	Lasts(ctx context.Context, ticker string, from, to time.Time) ([]common.Last, error)
}

type Series interface {
	common.Bar | common.BidAsk | common.Last
}

// GetSeries fetches the series of type T from src.
func GetSeries[T Series](ctx context.Context, src Source, ticker string, from, to time.Time) ([]T, error) {
	if src == nil {
		return nil, errors.New("nil market data source")
	}

	var (
		out any
		err error
	)
	switch any(*new(T)).(type) {
	case common.Bar:
		out, err = src.Bars(ctx, ticker, from, to)
	case common.BidAsk:
		out, err = src.BidAsks(ctx, ticker, from, to)
	case common.Last:
		out, err = src.Lasts(ctx, ticker, from, to)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s..%s: %w", ticker, from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	return out.([]T), nil
}

// Load fetches all three series of a ticker and wraps them into cursors.
func Load(ctx context.Context, src Source, ticker string, from, to time.Time) (*Instrument, error) {
	bars, err := GetSeries[common.Bar](ctx, src, ticker, from, to)
	if err != nil {
		return nil, err
	}
	quotes, err := GetSeries[common.BidAsk](ctx, src, ticker, from, to)
	if err != nil {
		return nil, err
	}
	trades, err := GetSeries[common.Last](ctx, src, ticker, from, to)
	if err != nil {
		return nil, err
	}
	return &Instrument{
		Ticker: ticker,
		Bars:   NewCursor(bars),
		BidAsk: NewCursor(quotes),
		Last:   NewCursor(trades),
	}, nil
}

// Instrument groups the cursors of one ticker.
type Instrument struct {
	Ticker string
	Bars   *Cursor[common.Bar]
	BidAsk *Cursor[common.BidAsk]
	Last   *Cursor[common.Last]
}

func (i *Instrument) Reset() {
	i.Bars.Reset()
	i.BidAsk.Reset()
	i.Last.Reset()
}

// Seek advances all cursors to now without reporting the passed samples.
func (i *Instrument) Seek(now time.Time) {
	i.Bars.Advance(now)
	i.BidAsk.Advance(now)
	i.Last.Advance(now)
}
