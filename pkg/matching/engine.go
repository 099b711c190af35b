package matching

import (
	"errors"
	"fmt"

	"github.com/google/btree"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrAlreadyCancelled = errors.New("order already cancelled")
	ErrAlreadyFilled    = errors.New("order already filled")
	ErrInvalidOrder     = errors.New("invalid order")
)

// Match is an order whose fill condition held on the evaluated tick.
type Match struct {
	Order common.Order
	Price fixed.Point
}

func idLess(a, b *common.Order) bool {
	return a.Id < b.Id
}

// Engine owns the open, executed and cancelled order sets. An id lives in at
// most one of them. Open orders are kept in id order so that evaluation is
// deterministic.
type Engine struct {
	open      *btree.BTreeG[*common.Order]
	executed  map[common.OrderId]common.Order
	cancelled map[common.OrderId]common.Order
}

func NewEngine() *Engine {
	const degree = 16
	return &Engine{
		open:      btree.NewG[*common.Order](degree, idLess),
		executed:  make(map[common.OrderId]common.Order),
		cancelled: make(map[common.OrderId]common.Order),
	}
}

func (e *Engine) Reset() {
	e.open.Clear(false)
	e.executed = make(map[common.OrderId]common.Order)
	e.cancelled = make(map[common.OrderId]common.Order)
}

// Add accepts a new order and marks it Open.
func (e *Engine) Add(order common.Order) (common.Order, error) {
	if err := Validate(order); err != nil {
		return order, err
	}
	if _, ok := e.lookup(order.Id); ok {
		return order, fmt.Errorf("%w: duplicate id %d", ErrInvalidOrder, order.Id)
	}
	order.Status = common.OrderStatusOpen
	order.StopInitialized = false
	order.CurrentPrice = fixed.Zero
	e.open.ReplaceOrInsert(&order)
	return order, nil
}

// Modify replaces the parameters of an open order. Identity, ticker, kind and
// side cannot change.
func (e *Engine) Modify(order common.Order) (common.Order, error) {
	current, err := e.openOrder(order.Id)
	if err != nil {
		return order, err
	}
	if order.Ticker != current.Ticker || order.Kind != current.Kind || order.Action != current.Action {
		return order, fmt.Errorf("%w: order %d cannot change ticker, kind or action", ErrInvalidOrder, order.Id)
	}
	if err := Validate(order); err != nil {
		return order, err
	}

	order.Status = common.OrderStatusOpen
	order.PlacedAt = current.PlacedAt
	if order.Kind == common.OrderKindTrailingStop &&
		order.TrailingAmount.Eq(current.TrailingAmount) && order.TrailingUnit == current.TrailingUnit {
		order.StopPrice = current.StopPrice
		order.StopInitialized = current.StopInitialized
	} else {
		order.StopInitialized = false
	}
	if order.Kind == common.OrderKindRelative {
		order.CurrentPrice = current.CurrentPrice
	}
	*current = order
	return order, nil
}

// Cancel moves an open order to the cancelled set.
func (e *Engine) Cancel(id common.OrderId) (common.Order, error) {
	return e.close(id, common.OrderStatusCancelled)
}

// Reject cancels an open order whose fill could not be booked.
func (e *Engine) Reject(id common.OrderId) (common.Order, error) {
	return e.close(id, common.OrderStatusCancelled)
}

// Fill moves an open order to the executed set.
func (e *Engine) Fill(id common.OrderId) (common.Order, error) {
	return e.close(id, common.OrderStatusFilled)
}

func (e *Engine) close(id common.OrderId, status common.OrderStatus) (common.Order, error) {
	current, err := e.openOrder(id)
	if err != nil {
		return common.Order{}, err
	}
	e.open.Delete(current)
	order := *current
	order.Status = status
	if status == common.OrderStatusFilled {
		e.executed[id] = order
	} else {
		e.cancelled[id] = order
	}
	return order, nil
}

func (e *Engine) openOrder(id common.OrderId) (*common.Order, error) {
	if current, ok := e.open.Get(&common.Order{Id: id}); ok {
		return current, nil
	}
	if _, ok := e.executed[id]; ok {
		return nil, fmt.Errorf("order %d: %w", id, ErrAlreadyFilled)
	}
	if _, ok := e.cancelled[id]; ok {
		return nil, fmt.Errorf("order %d: %w", id, ErrAlreadyCancelled)
	}
	return nil, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
}

func (e *Engine) lookup(id common.OrderId) (common.Order, bool) {
	if current, ok := e.open.Get(&common.Order{Id: id}); ok {
		return *current, true
	}
	if order, ok := e.executed[id]; ok {
		return order, true
	}
	if order, ok := e.cancelled[id]; ok {
		return order, true
	}
	return common.Order{}, false
}

// Get returns a copy of the order with id from whichever set holds it.
func (e *Engine) Get(id common.OrderId) (common.Order, bool) {
	return e.lookup(id)
}

// Open returns copies of the open orders in id order.
func (e *Engine) Open() []common.Order {
	out := make([]common.Order, 0, e.open.Len())
	e.open.Ascend(func(o *common.Order) bool {
		out = append(out, *o)
		return true
	})
	return out
}

func (e *Engine) OpenCount() int      { return e.open.Len() }
func (e *Engine) ExecutedCount() int  { return len(e.executed) }
func (e *Engine) CancelledCount() int { return len(e.cancelled) }

// Evaluate runs every open order of the tick's ticker against the tick.
// Trailing stops and relative orders are repriced in place; the returned
// matches are in id order and have not been filled yet.
func (e *Engine) Evaluate(tick common.BidAsk) []Match {
	var snapshot []*common.Order
	e.open.Ascend(func(o *common.Order) bool {
		if o.Ticker == tick.Ticker {
			snapshot = append(snapshot, o)
		}
		return true
	})

	var matches []Match
	for _, o := range snapshot {
		if price, ok := evaluate(o, tick); ok {
			matches = append(matches, Match{Order: *o, Price: price})
		}
	}
	return matches
}

// Validate checks the fields required by the order's kind.
func Validate(order common.Order) error {
	if order.Id < 1 {
		return fmt.Errorf("%w: id %d", ErrInvalidOrder, order.Id)
	}
	if order.Ticker == "" {
		return fmt.Errorf("%w: order %d has no ticker", ErrInvalidOrder, order.Id)
	}
	if !order.Quantity.IsPos() {
		return fmt.Errorf("%w: order %d quantity %s", ErrInvalidOrder, order.Id, order.Quantity)
	}
	if order.Action != common.OrderActionBuy && order.Action != common.OrderActionSell {
		return fmt.Errorf("%w: order %d action %d", ErrInvalidOrder, order.Id, order.Action)
	}

	switch order.Kind {
	case common.OrderKindMarket:
	case common.OrderKindLimit:
		if !order.LmtPrice.IsPos() {
			return fmt.Errorf("%w: order %d limit price %s", ErrInvalidOrder, order.Id, order.LmtPrice)
		}
	case common.OrderKindStop:
		if !order.StopPrice.IsPos() {
			return fmt.Errorf("%w: order %d stop price %s", ErrInvalidOrder, order.Id, order.StopPrice)
		}
	case common.OrderKindMarketIfTouched:
		if !order.TouchPrice.IsPos() {
			return fmt.Errorf("%w: order %d touch price %s", ErrInvalidOrder, order.Id, order.TouchPrice)
		}
	case common.OrderKindTrailingStop:
		if order.TrailingAmount.IsNeg() {
			return fmt.Errorf("%w: order %d trailing amount %s", ErrInvalidOrder, order.Id, order.TrailingAmount)
		}
	case common.OrderKindRelative:
		if order.OffsetAmount.IsNeg() || order.PriceCap.IsNeg() {
			return fmt.Errorf("%w: order %d offset %s cap %s", ErrInvalidOrder, order.Id, order.OffsetAmount, order.PriceCap)
		}
	default:
		return fmt.Errorf("%w: order %d kind %d", ErrInvalidOrder, order.Id, order.Kind)
	}
	return nil
}
