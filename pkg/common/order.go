package common

import (
	"time"

	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

type OrderId = int64
type OrderKind int
type OrderAction int
type OrderStatus int
type TrailingUnit int
type TimeInForce int

const (
	OrderKindMarket OrderKind = iota
	OrderKindLimit
	OrderKindStop
	OrderKindTrailingStop
	OrderKindMarketIfTouched
	OrderKindRelative
)

const (
	OrderActionBuy OrderAction = iota
	OrderActionSell
)

const (
	OrderStatusRequested OrderStatus = iota
	OrderStatusOpen
	OrderStatusFilled
	OrderStatusCancelled
)

const (
	TrailingUnitAbsolute TrailingUnit = iota
	TrailingUnitPercent
)

const (
	TimeInForceDay TimeInForce = iota
	TimeInForceGoodTillCancel
	TimeInForceImmediateOrCancel
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindMarket:
		return "MKT"
	case OrderKindLimit:
		return "LMT"
	case OrderKindStop:
		return "STP"
	case OrderKindTrailingStop:
		return "TRAIL"
	case OrderKindMarketIfTouched:
		return "MIT"
	case OrderKindRelative:
		return "REL"
	}
	return "UNKNOWN"
}

func (a OrderAction) String() string {
	if a == OrderActionSell {
		return "SELL"
	}
	return "BUY"
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusRequested:
		return "PendingSubmit"
	case OrderStatusOpen:
		return "Submitted"
	case OrderStatusFilled:
		return "Filled"
	case OrderStatusCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// Condition is carried on the order but never activated by the simulator.
type Condition struct {
	Kind        string      `json:"kind"`
	Ticker      string      `json:"ticker,omitempty"`
	Price       fixed.Point `json:"price,omitempty"`
	Time        time.Time   `json:"time,omitempty"`
	IsMore      bool        `json:"is_more,omitempty"`
	Conjunction bool        `json:"conjunction,omitempty"`
}

// Order is a tagged union over the supported order kinds. Only the fields of
// the active Kind are meaningful.
type Order struct {
	Id       OrderId     `json:"id"`
	Ticker   string      `json:"ticker"`
	Kind     OrderKind   `json:"kind"`
	Action   OrderAction `json:"action"`
	Quantity fixed.Point `json:"quantity"`
	Status   OrderStatus `json:"status"`

	LmtPrice       fixed.Point  `json:"lmt_price,omitempty"`
	StopPrice      fixed.Point  `json:"stop_price,omitempty"`
	TouchPrice     fixed.Point  `json:"touch_price,omitempty"`
	TrailingAmount fixed.Point  `json:"trailing_amount,omitempty"`
	TrailingUnit   TrailingUnit `json:"trailing_unit,omitempty"`
	OffsetAmount   fixed.Point  `json:"offset_amount,omitempty"`
	PriceCap       fixed.Point  `json:"price_cap,omitempty"`
	CurrentPrice   fixed.Point  `json:"current_price,omitempty"`

	// Set once a trailing stop has taken its first reference price.
	StopInitialized bool `json:"stop_initialized,omitempty"`

	// Recognised but inert.
	ParentId    OrderId     `json:"parent_id,omitempty"`
	Transmit    bool        `json:"transmit,omitempty"`
	OutsideRth  bool        `json:"outside_rth,omitempty"`
	TimeInForce TimeInForce `json:"tif,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty"`

	PlacedAt time.Time `json:"placed_at"`
}

func MarketOrder(action OrderAction, quantity fixed.Point) Order {
	return Order{Kind: OrderKindMarket, Action: action, Quantity: quantity, Transmit: true}
}

func LimitOrder(action OrderAction, quantity, lmtPrice fixed.Point) Order {
	return Order{Kind: OrderKindLimit, Action: action, Quantity: quantity, LmtPrice: lmtPrice, Transmit: true}
}

func StopOrder(action OrderAction, quantity, stopPrice fixed.Point) Order {
	return Order{Kind: OrderKindStop, Action: action, Quantity: quantity, StopPrice: stopPrice, Transmit: true}
}

func TrailingStopOrder(action OrderAction, quantity, amount fixed.Point, unit TrailingUnit) Order {
	return Order{
		Kind:           OrderKindTrailingStop,
		Action:         action,
		Quantity:       quantity,
		TrailingAmount: amount,
		TrailingUnit:   unit,
		Transmit:       true,
	}
}

func MarketIfTouchedOrder(action OrderAction, quantity, touchPrice fixed.Point) Order {
	return Order{Kind: OrderKindMarketIfTouched, Action: action, Quantity: quantity, TouchPrice: touchPrice, Transmit: true}
}

// RelativeOrder tracks the bid (buy) or ask (sell) by offset. A zero cap means
// uncapped.
func RelativeOrder(action OrderAction, quantity, offset, priceCap fixed.Point) Order {
	return Order{
		Kind:         OrderKindRelative,
		Action:       action,
		Quantity:     quantity,
		OffsetAmount: offset,
		PriceCap:     priceCap,
		Transmit:     true,
	}
}

// Equals compares identity only. Orders without an assigned id are never
// equal to anything.
func (o Order) Equals(other Order) bool {
	if o.Id < 1 || other.Id < 1 {
		return false
	}
	return o.Id == other.Id
}

func (o Order) IsBuy() bool { return o.Action == OrderActionBuy }

type PlacedResult struct {
	OrderId OrderId     `json:"order_id"`
	Status  OrderStatus `json:"status"`
	Time    time.Time   `json:"ts"`
}

type OrderStatusEvent struct {
	OrderId      OrderId     `json:"order_id"`
	Ticker       string      `json:"ticker"`
	Status       OrderStatus `json:"status"`
	Filled       fixed.Point `json:"filled"`
	Remaining    fixed.Point `json:"remaining"`
	AvgFillPrice fixed.Point `json:"avg_fill_price"`
	TimeStamp    time.Time   `json:"ts"`
}
