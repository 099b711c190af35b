package alpaca

import (
	"context"
	"fmt"
	"sync"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/marketdata"
	"github.com/peter-kozarec/replay/pkg/utility"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

const (
	priceDigits = 4

	clientRetryLimit = 3
	clientRetryDelay = time.Second
)

// Client is the part of the Alpaca market data client the remote layer uses.
type Client interface {
	GetTrades(symbol string, req alpacamd.GetTradesRequest) ([]alpacamd.Trade, error)
	GetQuotes(symbol string, req alpacamd.GetQuotesRequest) ([]alpacamd.Quote, error)
}

// NewClient builds the Alpaca market data client. An empty dataURL keeps the
// library default. The client retries rate limited and server errors itself;
// Remote retries whatever still fails.
func NewClient(apiKey, apiSecret, dataURL string) Client {
	opts := alpacamd.ClientOpts{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		RetryLimit: clientRetryLimit,
		RetryDelay: clientRetryDelay,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return alpacamd.NewClient(opts)
}

type Option func(*Remote)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Remote) { r.logger = logger }
}

// WithPace sets the minimum gap between two requests.
func WithPace(pace time.Duration) Option {
	return func(r *Remote) { r.pace = pace }
}

func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(r *Remote) {
		r.attempts = attempts
		r.baseDelay = baseDelay
	}
}

func WithFeed(feed string) Option {
	return func(r *Remote) { r.feed = feed }
}

// Remote fetches quotes and trades from Alpaca one session day at a time.
// Base bars are folded from the trades so they agree with the trade series.
type Remote struct {
	client    Client
	logger    *zap.Logger
	pace      time.Duration
	attempts  int
	baseDelay time.Duration
	feed      string

	mu          sync.Mutex
	lastRequest time.Time
}

var _ marketdata.Source = (*Remote)(nil)

func NewRemote(client Client, opts ...Option) *Remote {
	r := &Remote{
		client:    client,
		logger:    zap.NewNop(),
		pace:      300 * time.Millisecond,
		attempts:  4,
		baseDelay: time.Second,
		feed:      "iex",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Remote) Bars(ctx context.Context, ticker string, from, to time.Time) ([]common.Bar, error) {
	trades, err := r.Lasts(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	return marketdata.FoldTrades(ticker, trades, to), nil
}

func (r *Remote) BidAsks(ctx context.Context, ticker string, from, to time.Time) ([]common.BidAsk, error) {
	var out []common.BidAsk
	err := r.perSession(ctx, ticker, from, to, func(start, end time.Time) error {
		quotes, err := r.client.GetQuotes(ticker, alpacamd.GetQuotesRequest{
			Start: start,
			End:   end,
			Feed:  alpacamd.Feed(r.feed),
		})
		if err != nil {
			return err
		}
		for _, q := range quotes {
			out = append(out, common.BidAsk{
				Ticker:    ticker,
				TimeStamp: q.Timestamp.UTC(),
				Bid:       price(q.BidPrice),
				Ask:       price(q.AskPrice),
				BidSize:   fixed.FromInt64(int64(q.BidSize), 0),
				AskSize:   fixed.FromInt64(int64(q.AskSize), 0),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("alpaca %s quotes: %w", ticker, marketdata.ErrNoData)
	}
	return out, nil
}

func (r *Remote) Lasts(ctx context.Context, ticker string, from, to time.Time) ([]common.Last, error) {
	var out []common.Last
	err := r.perSession(ctx, ticker, from, to, func(start, end time.Time) error {
		trades, err := r.client.GetTrades(ticker, alpacamd.GetTradesRequest{
			Start: start,
			End:   end,
			Feed:  alpacamd.Feed(r.feed),
		})
		if err != nil {
			return err
		}
		for _, t := range trades {
			out = append(out, common.Last{
				Ticker:    ticker,
				TimeStamp: t.Timestamp.UTC(),
				Price:     price(t.Price),
				Size:      fixed.FromInt64(int64(t.Size), 0),
				Exchange:  t.Exchange,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("alpaca %s trades: %w", ticker, marketdata.ErrNoData)
	}
	return out, nil
}

// perSession runs fetch once for every session in [from, to], paced and
// retried with exponential back-off.
func (r *Remote) perSession(ctx context.Context, ticker string, from, to time.Time, fetch func(start, end time.Time) error) error {
	if err := marketdata.ValidateSession(from, to); err != nil {
		return err
	}

	for _, session := range marketdata.Sessions(from, to) {
		err := utility.Retry(ctx, r.attempts, r.baseDelay, func() error {
			if err := r.wait(ctx); err != nil {
				return err
			}
			err := fetch(session.Open, session.Close)
			if err != nil {
				r.logger.Warn("alpaca request failed",
					zap.String("ticker", ticker),
					zap.Time("session", session.Open),
					zap.Error(err))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("alpaca %s %s: %w", ticker, session.Open.Format(time.DateOnly), err)
		}
	}
	return nil
}

func (r *Remote) wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gap := r.pace - time.Since(r.lastRequest); gap > 0 {
		timer := time.NewTimer(gap)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	r.lastRequest = time.Now()
	return nil
}

func price(v float64) fixed.Point {
	return fixed.FromFloat64(v).Round(priceDigits)
}
