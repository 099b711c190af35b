package synthetic

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/marketdata"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

const priceDigits = 2

type Option func(*Generator)

func WithSeed(seed int64) Option {
	return func(g *Generator) { g.seed = seed }
}

func WithStartPrice(price fixed.Point) Option {
	return func(g *Generator) { g.startPrice = price.Float64() }
}

// WithSpread sets the full quoted spread.
func WithSpread(spread fixed.Point) Option {
	return func(g *Generator) { g.spread = spread.Float64() }
}

// WithDrift adds a fixed amount to the mid price every interval.
func WithDrift(drift fixed.Point) Option {
	return func(g *Generator) { g.drift = drift.Float64() }
}

// WithVolatility sets the per-interval log return deviation. Zero makes the
// series a straight line.
func WithVolatility(sigma float64) Option {
	return func(g *Generator) { g.sigma = sigma }
}

func WithInterval(interval time.Duration) Option {
	return func(g *Generator) { g.interval = interval }
}

// Generator produces a deterministic random walk for any ticker. One quote
// and one trade is emitted per interval inside regular sessions, and base
// bars are folded from the trades.
type Generator struct {
	seed       int64
	startPrice float64
	spread     float64
	drift      float64
	sigma      float64
	interval   time.Duration
}

var _ marketdata.Source = (*Generator)(nil)

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		seed:       1,
		startPrice: 100,
		spread:     0.02,
		sigma:      0.0002,
		interval:   time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Bars(ctx context.Context, ticker string, from, to time.Time) ([]common.Bar, error) {
	_, trades, err := g.generate(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	return marketdata.FoldTrades(ticker, trades, to), nil
}

func (g *Generator) BidAsks(ctx context.Context, ticker string, from, to time.Time) ([]common.BidAsk, error) {
	quotes, _, err := g.generate(ctx, ticker, from, to)
	return quotes, err
}

func (g *Generator) Lasts(ctx context.Context, ticker string, from, to time.Time) ([]common.Last, error) {
	_, trades, err := g.generate(ctx, ticker, from, to)
	return trades, err
}

func (g *Generator) generate(ctx context.Context, ticker string, from, to time.Time) ([]common.BidAsk, []common.Last, error) {
	if err := marketdata.ValidateSession(from, to); err != nil {
		return nil, nil, err
	}

	var (
		quotes []common.BidAsk
		trades []common.Last
	)
	for _, session := range marketdata.Sessions(from, to) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		rng := rand.New(rand.NewSource(g.seedFor(ticker, session.Open)))
		mid := g.startPrice
		half := fixed.FromFloat64(g.spread / 2).Round(priceDigits)

		for ts := session.Open; ts.Before(session.Close); ts = ts.Add(g.interval) {
			price := fixed.FromFloat64(mid).Round(priceDigits)
			size := fixed.FromInt(100+rng.Intn(400), 0)

			quotes = append(quotes, common.BidAsk{
				Ticker:    ticker,
				TimeStamp: ts,
				Bid:       price.Sub(half),
				Ask:       price.Add(half),
				BidSize:   size,
				AskSize:   size,
			})
			trades = append(trades, common.Last{
				Ticker:    ticker,
				TimeStamp: ts,
				Price:     price,
				Size:      fixed.FromInt(1+rng.Intn(100), 0),
				Exchange:  common.SimulatedExchange,
			})

			mid = mid*math.Exp(g.sigma*rng.NormFloat64()) + g.drift
			if mid < 0.01 {
				mid = 0.01
			}
		}
	}
	return quotes, trades, nil
}

func (g *Generator) seedFor(ticker string, open time.Time) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ticker))
	return g.seed ^ int64(h.Sum64()) ^ open.Unix()
}
