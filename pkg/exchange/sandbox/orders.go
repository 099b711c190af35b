package sandbox

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/dispatch"
	"github.com/peter-kozarec/replay/pkg/exchange"
	"github.com/peter-kozarec/replay/pkg/future"
	"github.com/peter-kozarec/replay/pkg/matching"
	"github.com/peter-kozarec/replay/pkg/utility"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

// PlaceOrder submits a new order for ticker. An order without an id gets the
// next one; an order carrying the id of an open order modifies it. The future
// resolves once the order is open.
func (c *Connection) PlaceOrder(ticker string, order common.Order) *future.Future[common.PlacedResult] {
	order.Ticker = ticker
	if order.Id != 0 {
		return c.ModifyOrder(order)
	}
	return submit(c, common.NoOrder, func(s *session, _ utility.CorrelationID) (common.PlacedResult, error) {
		return c.placeOrder(s, order)
	})
}

func (c *Connection) placeOrder(s *session, order common.Order) (common.PlacedResult, error) {
	now := c.clock.Now()
	if !now.Before(c.clock.SessionEnd()) {
		return common.PlacedResult{}, exchange.ErrSessionCompleted
	}

	c.lastOrderId++
	order.Id = c.lastOrderId
	order.Status = common.OrderStatusRequested
	order.PlacedAt = now

	if err := matching.Validate(order); err != nil {
		return common.PlacedResult{}, withOrder(order.Id, err)
	}
	if _, err := c.ensureInstrument(s.ctx, order.Ticker); err != nil {
		return common.PlacedResult{}, withOrder(order.Id, err)
	}

	c.publishOrderStatus(s, order, now)
	opened, err := c.engine.Add(order)
	if err != nil {
		return common.PlacedResult{}, withOrder(order.Id, err)
	}
	c.publishOrderStatus(s, opened, now)

	c.logger.Debug("order placed",
		zap.Int64("order", opened.Id),
		zap.String("ticker", opened.Ticker),
		zap.Stringer("kind", opened.Kind),
		zap.Stringer("action", opened.Action),
		zap.Stringer("quantity", opened.Quantity),
		zap.Time("ts", now))

	return common.PlacedResult{OrderId: opened.Id, Status: opened.Status, Time: now}, nil
}

// ModifyOrder replaces the parameters of an open order.
func (c *Connection) ModifyOrder(order common.Order) *future.Future[common.PlacedResult] {
	return submit(c, order.Id, func(s *session, _ utility.CorrelationID) (common.PlacedResult, error) {
		if current, ok := c.engine.Get(order.Id); ok && order.Ticker == "" {
			order.Ticker = current.Ticker
		}
		modified, err := c.engine.Modify(order)
		if err != nil {
			return common.PlacedResult{}, err
		}
		now := c.clock.Now()
		c.publishOrderStatus(s, modified, now)
		return common.PlacedResult{OrderId: modified.Id, Status: modified.Status, Time: now}, nil
	})
}

// CancelOrder cancels an open order. Cancelling twice fails with
// ErrAlreadyCancelled.
func (c *Connection) CancelOrder(id common.OrderId) *future.Future[common.OrderStatus] {
	return submit(c, id, func(s *session, _ utility.CorrelationID) (common.OrderStatus, error) {
		order, err := c.cancel(s, id, nil)
		if err != nil {
			return common.OrderStatusCancelled, err
		}
		return order.Status, nil
	})
}

// CancelAllOrders cancels every open order and returns their ids.
func (c *Connection) CancelAllOrders() *future.Future[[]common.OrderId] {
	return submit(c, common.NoOrder, func(s *session, _ utility.CorrelationID) ([]common.OrderId, error) {
		open := c.engine.Open()
		ids := make([]common.OrderId, 0, len(open))
		for _, order := range open {
			if _, err := c.cancel(s, order.Id, nil); err != nil {
				return ids, err
			}
			ids = append(ids, order.Id)
		}
		return ids, nil
	})
}

// RequestOpenOrders returns the open orders in id order, including the
// current trailing stop and relative prices.
func (c *Connection) RequestOpenOrders() *future.Future[[]common.Order] {
	return submit(c, common.NoOrder, func(*session, utility.CorrelationID) ([]common.Order, error) {
		return c.engine.Open(), nil
	})
}

// AwaitExecution resolves with the execution of order id: at once when it
// already filled, otherwise when it fills. It is rejected with
// ErrOrderCancelled if the order is cancelled first. Abandoning the wait does
// not cancel the order.
func (c *Connection) AwaitExecution(id common.OrderId) *future.Future[common.ExecutionResult] {
	f := future.New[common.ExecutionResult]()
	s := c.session.Load()
	if s == nil {
		f.Reject(exchange.ErrNotConnected)
		return f
	}

	cid := future.Register(c.futures, f)
	err := s.requests.Post(func() {
		if result, ok := c.executions[id]; ok {
			resolve(c, s, cid, result)
			return
		}
		order, ok := c.engine.Get(id)
		switch {
		case !ok:
			c.fail(s, cid, id, fmt.Errorf("order %d: %w", id, exchange.ErrOrderNotFound))
		case order.Status == common.OrderStatusCancelled:
			c.fail(s, cid, id, c.cancelledError(id))
		default:
			c.waiters[id] = append(c.waiters[id], cid)
		}
	})
	if err != nil {
		_ = c.futures.Reject(cid, err)
	}
	return f
}

func (c *Connection) cancelledError(id common.OrderId) error {
	if reason := c.cancelReason[id]; reason != nil {
		return fmt.Errorf("order %d: %w: %w", id, exchange.ErrOrderCancelled, reason)
	}
	return fmt.Errorf("order %d: %w", id, exchange.ErrOrderCancelled)
}

// cancel closes an open order. A non-nil reason marks a rejection.
func (c *Connection) cancel(s *session, id common.OrderId, reason error) (common.Order, error) {
	var (
		order common.Order
		err   error
	)
	if reason != nil {
		order, err = c.engine.Reject(id)
	} else {
		order, err = c.engine.Cancel(id)
	}
	if err != nil {
		return order, err
	}
	if reason != nil {
		c.cancelReason[id] = reason
	}

	c.publishOrderStatus(s, order, c.clock.Now())
	c.rejectWaiters(s, id, c.cancelledError(id))
	return order, nil
}

func (c *Connection) rejectWaiters(s *session, id common.OrderId, err error) {
	waiters := c.waiters[id]
	delete(c.waiters, id)
	for _, cid := range waiters {
		cid := cid
		s.respond(c.logger, func() {
			_ = c.futures.Reject(cid, err)
		})
	}
}

func (c *Connection) rejectAllWaiters(s *session, err error) {
	for id := range c.waiters {
		c.rejectWaiters(s, id, err)
	}
}

// fill books a match. A fill the account cannot carry cancels the order and
// publishes an error instead.
func (c *Connection) fill(s *session, match matching.Match, now time.Time) bool {
	order := match.Order
	commission := c.commissionHandler(order.Quantity, match.Price)

	realized, err := c.ledger.ApplyFill(order.Action, order.Ticker, order.Quantity, match.Price, commission, now)
	if err != nil {
		c.logger.Info("order rejected",
			zap.Int64("order", order.Id),
			zap.String("ticker", order.Ticker),
			zap.Error(err))
		if _, cancelErr := c.cancel(s, order.Id, err); cancelErr != nil {
			c.logger.Error("unable to cancel rejected order", zap.Int64("order", order.Id), zap.Error(cancelErr))
		}
		dispatch.Publish(s.dispatcher, dispatch.GlobalKey(dispatch.KindError),
			common.NewErrorEvent(order.Id, 0, err, now))
		return false
	}

	filled, err := c.engine.Fill(order.Id)
	if err != nil {
		c.logger.Error("unable to fill order", zap.Int64("order", order.Id), zap.Error(err))
		return false
	}

	c.execSeq++
	execution := common.Execution{
		ExecId:     utility.FormatExecID(c.sessionId, c.execSeq),
		OrderId:    filled.Id,
		Ticker:     filled.Ticker,
		Action:     filled.Action,
		Price:      match.Price,
		Quantity:   filled.Quantity,
		Exchange:   common.SimulatedExchange,
		TimeStamp:  now,
		Commission: commission,
	}
	report := common.CommissionReport{
		ExecId:      execution.ExecId,
		OrderId:     filled.Id,
		Commission:  commission,
		Currency:    c.currency,
		RealizedPnL: realized,
	}
	result := common.ExecutionResult{Order: filled, Execution: execution, Report: report}
	c.executions[filled.Id] = result

	c.logger.Debug("order filled",
		zap.Int64("order", filled.Id),
		zap.String("ticker", filled.Ticker),
		zap.Stringer("action", filled.Action),
		zap.Stringer("price", match.Price),
		zap.Stringer("quantity", filled.Quantity),
		zap.Stringer("commission", commission),
		zap.Time("ts", now))

	dispatch.Publish(s.dispatcher, dispatch.GlobalKey(dispatch.KindExecution), execution)
	c.publishOrderStatus(s, filled, now)
	dispatch.Publish(s.dispatcher, dispatch.GlobalKey(dispatch.KindCommissionReport), report)

	waiters := c.waiters[filled.Id]
	delete(c.waiters, filled.Id)
	for _, cid := range waiters {
		resolve(c, s, cid, result)
	}
	return true
}

func (c *Connection) publishOrderStatus(s *session, order common.Order, now time.Time) {
	event := common.OrderStatusEvent{
		OrderId:   order.Id,
		Ticker:    order.Ticker,
		Status:    order.Status,
		Filled:    fixed.Zero,
		Remaining: order.Quantity,
		TimeStamp: now,
	}
	if result, ok := c.executions[order.Id]; ok || order.Status == common.OrderStatusFilled {
		event.Filled = order.Quantity
		event.Remaining = fixed.Zero
		event.AvgFillPrice = result.Execution.Price
	}
	dispatch.Publish(s.dispatcher, dispatch.GlobalKey(dispatch.KindOrderStatus), event)
}
