package exchange

import (
	"context"
	"time"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/dispatch"
	"github.com/peter-kozarec/replay/pkg/future"
)

type SubscriptionId = dispatch.SubscriptionId

// Connection is the brokerage surface strategies are written against. Every
// call returns immediately; results arrive through futures and callbacks,
// which run on a single response goroutine.
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	PlaceOrder(ticker string, order common.Order) *future.Future[common.PlacedResult]
	ModifyOrder(order common.Order) *future.Future[common.PlacedResult]
	CancelOrder(id common.OrderId) *future.Future[common.OrderStatus]
	CancelAllOrders() *future.Future[[]common.OrderId]
	AwaitExecution(id common.OrderId) *future.Future[common.ExecutionResult]
	RequestOpenOrders() *future.Future[[]common.Order]

	RequestBarStream(ticker string, length time.Duration, fn func(common.Bar)) *future.Future[SubscriptionId]
	RequestBidAskStream(ticker string, fn func(common.BidAsk)) *future.Future[SubscriptionId]
	RequestLastStream(ticker string, fn func(common.Last)) *future.Future[SubscriptionId]
	RequestHistoricalBars(ticker string, length, lookback time.Duration) *future.Future[[]common.Bar]
	CancelStream(id SubscriptionId) *future.Future[struct{}]

	RequestAccountSnapshot() *future.Future[common.Account]
	RequestPositionsSnapshot() *future.Future[[]common.Position]
	RequestPnLStream(ticker string, fn func(common.PnL)) *future.Future[SubscriptionId]
	RequestPositionStream(fn func(common.Position)) *future.Future[SubscriptionId]
	RequestAccountStream(fn func(common.Account)) *future.Future[SubscriptionId]

	OnExecution(fn func(common.Execution)) *future.Future[SubscriptionId]
	OnOrderStatus(fn func(common.OrderStatusEvent)) *future.Future[SubscriptionId]
	OnCommissionReport(fn func(common.CommissionReport)) *future.Future[SubscriptionId]
	OnError(fn func(common.ErrorEvent)) *future.Future[SubscriptionId]
}

// Simulator is a Connection replaying recorded data on a virtual clock.
type Simulator interface {
	Connection

	Start() *future.Future[common.RunResult]
	RunUntil(t time.Time) *future.Future[common.RunResult]
	Stop() error
	Reset() *future.Future[struct{}]
	SetCompression(factor float64) error
	Now() time.Time
}
