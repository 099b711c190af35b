package sandbox

import (
	"fmt"
	"time"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/dispatch"
	"github.com/peter-kozarec/replay/pkg/exchange"
	"github.com/peter-kozarec/replay/pkg/future"
	"github.com/peter-kozarec/replay/pkg/marketdata"
	"github.com/peter-kozarec/replay/pkg/utility"
)

// subscribe registers fn for key on the request worker. Ticker streams load
// the instrument first.
func subscribe[T any](c *Connection, key dispatch.Key, fn func(T)) *future.Future[exchange.SubscriptionId] {
	return submit(c, common.NoOrder, func(s *session, _ utility.CorrelationID) (exchange.SubscriptionId, error) {
		if key.Ticker != "" {
			if _, err := c.ensureInstrument(s.ctx, key.Ticker); err != nil {
				return 0, err
			}
		}
		id, err := dispatch.Subscribe(s.dispatcher, key, fn)
		if err != nil {
			if key.Ticker != "" {
				c.releaseInstrument(s, key.Ticker)
			}
			return 0, err
		}
		if key.Kind == dispatch.KindAccountValue {
			c.lastAccount = time.Time{}
		}
		return id, nil
	})
}

// RequestBarStream streams bars of length, which must be a multiple of 5s.
// Longer bars are aggregated from the recorded 5s bars.
func (c *Connection) RequestBarStream(ticker string, length time.Duration, fn func(common.Bar)) *future.Future[exchange.SubscriptionId] {
	return subscribe(c, dispatch.BarKey(ticker, length), fn)
}

func (c *Connection) RequestBidAskStream(ticker string, fn func(common.BidAsk)) *future.Future[exchange.SubscriptionId] {
	return subscribe(c, dispatch.TickerKey(ticker, dispatch.KindBidAsk), fn)
}

func (c *Connection) RequestLastStream(ticker string, fn func(common.Last)) *future.Future[exchange.SubscriptionId] {
	return subscribe(c, dispatch.TickerKey(ticker, dispatch.KindLast), fn)
}

func (c *Connection) RequestPnLStream(ticker string, fn func(common.PnL)) *future.Future[exchange.SubscriptionId] {
	return subscribe(c, dispatch.TickerKey(ticker, dispatch.KindPnL), fn)
}

func (c *Connection) RequestPositionStream(fn func(common.Position)) *future.Future[exchange.SubscriptionId] {
	return subscribe(c, dispatch.GlobalKey(dispatch.KindPosition), fn)
}

// RequestAccountStream delivers account snapshots at most once per account
// interval of simulated time.
func (c *Connection) RequestAccountStream(fn func(common.Account)) *future.Future[exchange.SubscriptionId] {
	return subscribe(c, dispatch.GlobalKey(dispatch.KindAccountValue), fn)
}

func (c *Connection) OnExecution(fn func(common.Execution)) *future.Future[exchange.SubscriptionId] {
	return subscribe(c, dispatch.GlobalKey(dispatch.KindExecution), fn)
}

func (c *Connection) OnOrderStatus(fn func(common.OrderStatusEvent)) *future.Future[exchange.SubscriptionId] {
	return subscribe(c, dispatch.GlobalKey(dispatch.KindOrderStatus), fn)
}

func (c *Connection) OnCommissionReport(fn func(common.CommissionReport)) *future.Future[exchange.SubscriptionId] {
	return subscribe(c, dispatch.GlobalKey(dispatch.KindCommissionReport), fn)
}

func (c *Connection) OnError(fn func(common.ErrorEvent)) *future.Future[exchange.SubscriptionId] {
	return subscribe(c, dispatch.GlobalKey(dispatch.KindError), fn)
}

// CancelStream removes a subscription. Dropping the last stream of a ticker
// releases its cursors unless an open order or position still needs them.
func (c *Connection) CancelStream(id exchange.SubscriptionId) *future.Future[struct{}] {
	return submit(c, common.NoOrder, func(s *session, _ utility.CorrelationID) (struct{}, error) {
		key, last, err := s.dispatcher.Unsubscribe(id)
		if err != nil {
			return struct{}{}, err
		}
		if last && key.Ticker != "" {
			c.releaseInstrument(s, key.Ticker)
		}
		return struct{}{}, nil
	})
}

// RequestHistoricalBars returns the bars of length that closed within
// lookback before the current simulated time. A window starting before the
// lookback is left out.
func (c *Connection) RequestHistoricalBars(ticker string, length, lookback time.Duration) *future.Future[[]common.Bar] {
	return submit(c, common.NoOrder, func(s *session, _ utility.CorrelationID) ([]common.Bar, error) {
		if length <= 0 || length%common.BaseBarLength != 0 {
			return nil, fmt.Errorf("%s: %w", length, dispatch.ErrInvalidBarLength)
		}
		inst, err := c.ensureInstrument(s.ctx, ticker)
		if err != nil {
			return nil, err
		}

		now := c.clock.Now()
		from := now.Add(-lookback)
		window := inst.Bars.Window(from, now.Add(-time.Nanosecond))
		bars := marketdata.Aggregate(window, length, from)
		c.releaseInstrument(s, ticker)
		return bars, nil
	})
}

func (c *Connection) RequestAccountSnapshot() *future.Future[common.Account] {
	return submit(c, common.NoOrder, func(*session, utility.CorrelationID) (common.Account, error) {
		return c.ledger.Snapshot(c.clock.Now()), nil
	})
}

func (c *Connection) RequestPositionsSnapshot() *future.Future[[]common.Position] {
	return submit(c, common.NoOrder, func(*session, utility.CorrelationID) ([]common.Position, error) {
		return c.ledger.Positions(), nil
	})
}
