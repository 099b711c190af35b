package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/datasource"
	"github.com/peter-kozarec/replay/pkg/marketdata"
)

type span struct {
	from, to time.Time
}

func (s span) covers(from, to time.Time) bool {
	return !from.Before(s.from) && !to.After(s.to)
}

// series holds the samples of one ticker and kind together with the ranges
// known to be complete.
type series[T any] struct {
	stamp   func(T) time.Time
	spans   []span
	samples []T
}

func (s *series[T]) get(from, to time.Time) ([]T, bool) {
	for _, sp := range s.spans {
		if sp.covers(from, to) {
			return datasource.Clip(s.samples, s.stamp, from, to), true
		}
	}
	return nil, false
}

// put replaces whatever was held for [from, to] with samples.
func (s *series[T]) put(from, to time.Time, samples []T) {
	merged := make([]T, 0, len(s.samples)+len(samples))
	for _, sample := range s.samples {
		ts := s.stamp(sample)
		if ts.Before(from) || ts.After(to) {
			merged = append(merged, sample)
		}
	}
	merged = append(merged, datasource.Clip(samples, s.stamp, from, to)...)
	sort.SliceStable(merged, func(i, j int) bool {
		return s.stamp(merged[i]).Before(s.stamp(merged[j]))
	})
	s.samples = merged
	s.spans = mergeSpans(append(s.spans, span{from: from, to: to}))
}

func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].from.Before(spans[j].from) })
	out := spans[:0]
	for _, sp := range spans {
		if n := len(out); n > 0 && !sp.from.After(out[n-1].to) {
			if sp.to.After(out[n-1].to) {
				out[n-1].to = sp.to
			}
			continue
		}
		out = append(out, sp)
	}
	return out
}

type instrument struct {
	bars   series[common.Bar]
	quotes series[common.BidAsk]
	trades series[common.Last]
}

func newInstrument() *instrument {
	return &instrument{
		bars:   series[common.Bar]{stamp: datasource.BarTime},
		quotes: series[common.BidAsk]{stamp: datasource.BidAskTime},
		trades: series[common.Last]{stamp: datasource.LastTime},
	}
}

// Cache keeps series in memory. It only answers ranges that were put as a
// whole and reports ErrNoData otherwise.
type Cache struct {
	mu          sync.RWMutex
	instruments map[string]*instrument
}

var (
	_ marketdata.Source = (*Cache)(nil)
	_ datasource.Writer = (*Cache)(nil)
)

func NewCache() *Cache {
	return &Cache{instruments: make(map[string]*instrument)}
}

func (c *Cache) Bars(_ context.Context, ticker string, from, to time.Time) ([]common.Bar, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i, ok := c.instruments[ticker]; ok {
		if out, ok := i.bars.get(from, to); ok {
			return out, nil
		}
	}
	return nil, miss(ticker, "bars")
}

func (c *Cache) BidAsks(_ context.Context, ticker string, from, to time.Time) ([]common.BidAsk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i, ok := c.instruments[ticker]; ok {
		if out, ok := i.quotes.get(from, to); ok {
			return out, nil
		}
	}
	return nil, miss(ticker, "quotes")
}

func (c *Cache) Lasts(_ context.Context, ticker string, from, to time.Time) ([]common.Last, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i, ok := c.instruments[ticker]; ok {
		if out, ok := i.trades.get(from, to); ok {
			return out, nil
		}
	}
	return nil, miss(ticker, "trades")
}

func (c *Cache) PutBars(_ context.Context, ticker string, from, to time.Time, bars []common.Bar) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instrument(ticker).bars.put(from, to, bars)
	return nil
}

func (c *Cache) PutBidAsks(_ context.Context, ticker string, from, to time.Time, quotes []common.BidAsk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instrument(ticker).quotes.put(from, to, quotes)
	return nil
}

func (c *Cache) PutLasts(_ context.Context, ticker string, from, to time.Time, trades []common.Last) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instrument(ticker).trades.put(from, to, trades)
	return nil
}

// Evict drops everything held for ticker.
func (c *Cache) Evict(ticker string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.instruments, ticker)
}

func (c *Cache) Tickers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tickers := make([]string, 0, len(c.instruments))
	for t := range c.instruments {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

func (c *Cache) instrument(ticker string) *instrument {
	i, ok := c.instruments[ticker]
	if !ok {
		i = newInstrument()
		c.instruments[ticker] = i
	}
	return i
}

func miss(ticker, kind string) error {
	return fmt.Errorf("memory %s %s: %w", ticker, kind, marketdata.ErrNoData)
}
