package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/marketdata"
)

// Writer accepts a complete series for [from, to] so a faster layer can serve
// the range next time.
type Writer interface {
	PutBars(ctx context.Context, ticker string, from, to time.Time, bars []common.Bar) error
	PutBidAsks(ctx context.Context, ticker string, from, to time.Time, quotes []common.BidAsk) error
	PutLasts(ctx context.Context, ticker string, from, to time.Time, trades []common.Last) error
}

type Layer struct {
	Name   string
	Source marketdata.Source
}

// Chain asks its layers in order. A layer reporting ErrNoData passes the
// request on, ErrMarketClosed ends it, and a hit is written back to every
// earlier layer that is also a Writer.
type Chain struct {
	logger *zap.Logger
	layers []Layer
}

var _ marketdata.Source = (*Chain)(nil)

func NewChain(logger *zap.Logger, layers ...Layer) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{logger: logger, layers: layers}
}

func (c *Chain) Layers() []string {
	names := make([]string, len(c.layers))
	for i, l := range c.layers {
		names[i] = l.Name
	}
	return names
}

func (c *Chain) Bars(ctx context.Context, ticker string, from, to time.Time) ([]common.Bar, error) {
	return fetch[common.Bar](ctx, c, ticker, from, to)
}

func (c *Chain) BidAsks(ctx context.Context, ticker string, from, to time.Time) ([]common.BidAsk, error) {
	return fetch[common.BidAsk](ctx, c, ticker, from, to)
}

func (c *Chain) Lasts(ctx context.Context, ticker string, from, to time.Time) ([]common.Last, error) {
	return fetch[common.Last](ctx, c, ticker, from, to)
}

func fetch[T marketdata.Series](ctx context.Context, c *Chain, ticker string, from, to time.Time) ([]T, error) {
	if err := marketdata.ValidateSession(from, to); err != nil {
		return nil, err
	}

	for i, layer := range c.layers {
		series, err := marketdata.GetSeries[T](ctx, layer.Source, ticker, from, to)
		if errors.Is(err, marketdata.ErrNoData) {
			c.logger.Debug("layer miss",
				zap.String("layer", layer.Name),
				zap.String("ticker", ticker))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", layer.Name, err)
		}

		for _, earlier := range c.layers[:i] {
			w, ok := earlier.Source.(Writer)
			if !ok {
				continue
			}
			if err := put(ctx, w, ticker, from, to, series); err != nil {
				c.logger.Warn("unable to write back series",
					zap.String("layer", earlier.Name),
					zap.String("ticker", ticker),
					zap.Error(err))
			}
		}
		return series, nil
	}

	return nil, fmt.Errorf("%s: no layer has data: %w", ticker, marketdata.ErrNoData)
}

func put[T marketdata.Series](ctx context.Context, w Writer, ticker string, from, to time.Time, series []T) error {
	switch s := any(series).(type) {
	case []common.Bar:
		return w.PutBars(ctx, ticker, from, to, s)
	case []common.BidAsk:
		return w.PutBidAsks(ctx, ticker, from, to, s)
	case []common.Last:
		return w.PutLasts(ctx, ticker, from, to, s)
	}
	return nil
}

// Clip returns the samples of an ascending series whose time stamp lies in
// [from, to].
func Clip[T any](series []T, stamp func(T) time.Time, from, to time.Time) []T {
	out := make([]T, 0, len(series))
	for _, s := range series {
		ts := stamp(s)
		if ts.Before(from) || ts.After(to) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func BarTime(b common.Bar) time.Time       { return b.TimeStamp }
func BidAskTime(b common.BidAsk) time.Time { return b.TimeStamp }
func LastTime(l common.Last) time.Time     { return l.TimeStamp }
