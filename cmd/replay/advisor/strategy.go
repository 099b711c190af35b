package advisor

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/exchange"
	"github.com/peter-kozarec/replay/pkg/future"
	"github.com/peter-kozarec/replay/pkg/tools/indicators"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

// Broker is the part of exchange.Connection the strategy trades through.
type Broker interface {
	PlaceOrder(ticker string, order common.Order) *future.Future[common.PlacedResult]
	RequestBarStream(ticker string, length time.Duration, fn func(common.Bar)) *future.Future[exchange.SubscriptionId]
	OnExecution(fn func(common.Execution)) *future.Future[exchange.SubscriptionId]
	OnError(fn func(common.ErrorEvent)) *future.Future[exchange.SubscriptionId]
}

// Config sizes entries at RiskPerTrade divided by the average true range,
// capped at Quantity. A zero RiskPerTrade always buys Quantity.
type Config struct {
	Ticker       string
	BarLength    time.Duration
	Window       int
	AtrWindow    int
	Entry        fixed.Point
	Exit         fixed.Point
	Quantity     fixed.Point
	RiskPerTrade fixed.Point
}

func DefaultConfig(ticker string) Config {
	return Config{
		Ticker:       ticker,
		BarLength:    time.Minute,
		Window:       20,
		AtrWindow:    14,
		Entry:        fixed.MustParse("1.5"),
		Exit:         fixed.Zero,
		Quantity:     fixed.FromInt(100, 0),
		RiskPerTrade: fixed.FromInt(50, 0),
	}
}

// Strategy buys when the bar close falls Entry deviations below its rolling
// mean and sells once it recovers past Exit. Callbacks run on the response
// goroutine, so state needs no locking.
type Strategy struct {
	logger *zap.Logger
	broker Broker
	config Config
	zscore *indicators.ZScore
	atr    *indicators.Atr

	held    fixed.Point
	waiting bool
	trades  int
}

func NewStrategy(logger *zap.Logger, broker Broker, config Config) *Strategy {
	return &Strategy{
		logger: logger.With(zap.String("ticker", config.Ticker)),
		broker: broker,
		config: config,
		zscore: indicators.NewZScore(config.Window),
		atr:    indicators.NewAtr(config.AtrWindow),
	}
}

// Attach registers the strategy's streams.
func (s *Strategy) Attach(ctx context.Context) error {
	if _, err := s.broker.OnExecution(s.OnExecution).Await(ctx); err != nil {
		return fmt.Errorf("execution stream: %w", err)
	}
	if _, err := s.broker.OnError(s.OnError).Await(ctx); err != nil {
		return fmt.Errorf("error stream: %w", err)
	}
	if _, err := s.broker.RequestBarStream(s.config.Ticker, s.config.BarLength, s.OnBar).Await(ctx); err != nil {
		return fmt.Errorf("bar stream: %w", err)
	}
	return nil
}

func (s *Strategy) Trades() int { return s.trades }
func (s *Strategy) IsLong() bool { return s.held.IsPos() }

func (s *Strategy) OnBar(bar common.Bar) {
	if bar.Ticker != s.config.Ticker {
		return
	}
	s.zscore.AddPoint(bar.Close)
	s.atr.OnBar(bar)
	if !s.zscore.IsReady() || s.waiting {
		return
	}

	z := s.zscore.Value()
	switch {
	case !s.IsLong() && z.Lt(s.config.Entry.Neg()):
		if quantity := s.size(); quantity.IsPos() {
			s.place(common.OrderActionBuy, quantity, z)
		}
	case s.IsLong() && z.Gt(s.config.Exit):
		s.place(common.OrderActionSell, s.held, z)
	}
}

func (s *Strategy) size() fixed.Point {
	if s.config.RiskPerTrade.IsZero() {
		return s.config.Quantity
	}
	atr := s.atr.AverageTrueRange()
	if !s.atr.Ready() || !atr.IsPos() {
		return fixed.Zero
	}
	shares := math.Floor(s.config.RiskPerTrade.Div(atr).Float64())
	return fixed.Min(s.config.Quantity, fixed.FromInt64(int64(shares), 0))
}

func (s *Strategy) place(action common.OrderAction, quantity, z fixed.Point) {
	s.waiting = true
	s.logger.Info("placing order",
		zap.Stringer("action", action),
		zap.Stringer("quantity", quantity),
		zap.Stringer("zscore", z.Round(3)))

	// The outcome arrives through OnExecution or OnError.
	_ = s.broker.PlaceOrder(s.config.Ticker, common.MarketOrder(action, quantity))
}

func (s *Strategy) OnExecution(execution common.Execution) {
	if execution.Ticker != s.config.Ticker {
		return
	}
	if execution.Action == common.OrderActionBuy {
		s.held = s.held.Add(execution.Quantity)
	} else {
		s.held = s.held.Sub(execution.Quantity)
	}
	s.waiting = false
	s.trades++
}

func (s *Strategy) OnError(event common.ErrorEvent) {
	if !s.waiting || event.OrderId == common.NoOrder {
		return
	}
	s.logger.Warn("order rejected", zap.Int64("order_id", event.OrderId), zap.String("reason", event.Message))
	s.waiting = false
}
