package sandbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/datasource/memory"
	"github.com/peter-kozarec/replay/pkg/exchange"
	"github.com/peter-kozarec/replay/pkg/future"
	"github.com/peter-kozarec/replay/pkg/marketdata"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

const ticker = "SPY"

var (
	sessionStart = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC) // Monday 09:30 New York
	sessionEnd   = sessionStart.Add(10 * time.Minute)
	spread       = fixed.MustParse("0.02")
	cent         = fixed.MustParse("0.01")
)

func at(seconds int) time.Time {
	return sessionStart.Add(time.Duration(seconds) * time.Second)
}

// newSource records one quote and one trade per second of the session. The
// bid sits one spread below the ask and trades print at the mid.
func newSource(t *testing.T, ask func(i int) fixed.Point) *memory.Cache {
	t.Helper()

	n := int(sessionEnd.Sub(sessionStart) / time.Second)
	quotes := make([]common.BidAsk, n)
	trades := make([]common.Last, n)
	for i := 0; i < n; i++ {
		a := ask(i)
		quotes[i] = common.BidAsk{
			Ticker:    ticker,
			TimeStamp: at(i),
			Bid:       a.Sub(spread),
			Ask:       a,
			BidSize:   fixed.FromInt(100, 0),
			AskSize:   fixed.FromInt(100, 0),
		}
		trades[i] = common.Last{
			Ticker:    ticker,
			TimeStamp: at(i),
			Price:     a.Sub(cent),
			Size:      fixed.One,
		}
	}

	ctx := context.Background()
	cache := memory.NewCache()
	require.NoError(t, cache.PutBidAsks(ctx, ticker, sessionStart, sessionEnd, quotes))
	require.NoError(t, cache.PutLasts(ctx, ticker, sessionStart, sessionEnd, trades))
	require.NoError(t, cache.PutBars(ctx, ticker, sessionStart, sessionEnd, marketdata.FoldTrades(ticker, trades, sessionEnd)))
	return cache
}

func rising(from string) func(int) fixed.Point {
	base := fixed.MustParse(from)
	return func(i int) fixed.Point { return base.Add(cent.MulInt(i)) }
}

func falling(from string) func(int) fixed.Point {
	base := fixed.MustParse(from)
	return func(i int) fixed.Point { return base.Sub(cent.MulInt(i)) }
}

func flat(price string) func(int) fixed.Point {
	p := fixed.MustParse(price)
	return func(int) fixed.Point { return p }
}

func connect(t *testing.T, source marketdata.Source, options ...Option) *Connection {
	t.Helper()

	c, err := NewConnection(source, sessionStart, sessionEnd, options...)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return c
}

func await[T any](t *testing.T, f *future.Future[T]) T {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	require.NoError(t, err)
	return v
}

func awaitErr[T any](t *testing.T, f *future.Future[T]) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := f.Await(ctx)
	require.Error(t, err)
	return err
}

func runUntil(t *testing.T, c *Connection, until time.Time) common.RunResult {
	t.Helper()
	result := await(t, c.RunUntil(until))
	require.NoError(t, c.Sync(context.Background()))
	return result
}

// recorder collects callback payloads delivered on the response worker.
type recorder[T any] struct {
	mu     sync.Mutex
	events []T
}

func (r *recorder[T]) add(event T) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.events...)
}

func TestConnection_MarketOrderFillsAtNextQuote(t *testing.T) {
	c := connect(t, newSource(t, rising("468.20")))

	positions := &recorder[common.Position]{}
	await(t, c.RequestPositionStream(positions.add))

	result := runUntil(t, c, at(300))
	assert.False(t, result.Completed)
	assert.Equal(t, sessionStart, result.Start)
	assert.Equal(t, at(300), result.End)
	assert.Equal(t, at(300), c.Now())

	placed := await(t, c.PlaceOrder(ticker, common.MarketOrder(common.OrderActionBuy, fixed.FromInt(50, 0))))
	assert.Equal(t, common.OrderStatusOpen, placed.Status)
	assert.Equal(t, at(300), placed.Time)

	execution := c.AwaitExecution(placed.OrderId)
	runUntil(t, c, at(310))
	filled := await(t, execution)

	assert.True(t, filled.Execution.Price.Eq(fixed.MustParse("471.20")), filled.Execution.Price.String())
	assert.Equal(t, placed.Time, filled.Execution.TimeStamp)
	assert.True(t, filled.Execution.Commission.Eq(fixed.One))
	assert.Equal(t, common.OrderStatusFilled, filled.Order.Status)
	assert.Equal(t, filled.Execution.ExecId, filled.Report.ExecId)

	account := await(t, c.RequestAccountSnapshot())
	assert.True(t, account.Cash["USD"].Eq(fixed.FromInt(76439, 0)), account.Cash["USD"].String())
	assert.True(t, account.Cash[common.BaseCurrency].Eq(account.Cash["USD"]))

	held := await(t, c.RequestPositionsSnapshot())
	require.Len(t, held, 1)
	assert.True(t, held[0].Quantity.Eq(fixed.FromInt(50, 0)))
	assert.True(t, held[0].AverageCost.Eq(fixed.MustParse("471.20")))

	streamed := positions.all()
	require.NotEmpty(t, streamed)
	assert.True(t, streamed[len(streamed)-1].Quantity.Eq(fixed.FromInt(50, 0)))
}

func TestConnection_LimitOrderWaitsForPrice(t *testing.T) {
	c := connect(t, newSource(t, falling("470.00")))

	quotes := &recorder[common.BidAsk]{}
	await(t, c.RequestBidAskStream(ticker, quotes.add))
	runUntil(t, c, at(60))

	seen := quotes.all()
	require.Len(t, seen, 60)
	asks := make([]fixed.Point, len(seen))
	for i, q := range seen {
		asks[i] = q.Ask
	}
	limit := fixed.Mean(asks).Sub(fixed.MustParse("0.5"))

	placed := await(t, c.PlaceOrder(ticker, common.LimitOrder(common.OrderActionBuy, fixed.FromInt(10, 0), limit)))
	execution := c.AwaitExecution(placed.OrderId)
	await(t, c.Start())
	filled := await(t, execution)

	assert.True(t, filled.Execution.TimeStamp.After(placed.Time.Add(time.Second)))
	assert.Equal(t, at(80), filled.Execution.TimeStamp)
	assert.True(t, filled.Execution.Price.Lte(limit))
	assert.True(t, filled.Execution.Price.Eq(fixed.MustParse("469.20")))
}

func TestConnection_TrailingStopFollowsTheAsk(t *testing.T) {
	down := falling("470.00")
	c := connect(t, newSource(t, func(i int) fixed.Point {
		switch {
		case i <= 100:
			return down(i)
		case i <= 130:
			return fixed.MustParse("469.00").Add(cent.MulInt(i - 100))
		}
		return fixed.MustParse("469.30")
	}))

	runUntil(t, c, at(10))
	placed := await(t, c.PlaceOrder(ticker, common.TrailingStopOrder(
		common.OrderActionBuy, fixed.FromInt(10, 0), fixed.MustParse("0.5"), common.TrailingUnitAbsolute)))
	runUntil(t, c, at(200))

	open := await(t, c.RequestOpenOrders())
	require.Len(t, open, 1)
	assert.Equal(t, placed.OrderId, open[0].Id)
	assert.True(t, open[0].StopInitialized)
	assert.True(t, open[0].StopPrice.Eq(fixed.MustParse("469.50")), open[0].StopPrice.String())
}

func TestConnection_SellWithoutPositionIsRejected(t *testing.T) {
	c := connect(t, newSource(t, flat("100.02")))

	errs := &recorder[common.ErrorEvent]{}
	statuses := &recorder[common.OrderStatusEvent]{}
	await(t, c.OnError(errs.add))
	await(t, c.OnOrderStatus(statuses.add))

	placed := await(t, c.PlaceOrder(ticker, common.MarketOrder(common.OrderActionSell, fixed.FromInt(10, 0))))
	execution := c.AwaitExecution(placed.OrderId)
	runUntil(t, c, at(5))

	err := awaitErr(t, execution)
	assert.ErrorIs(t, err, exchange.ErrOrderCancelled)
	assert.ErrorIs(t, err, exchange.ErrInsufficientPosition)

	events := errs.all()
	require.Len(t, events, 1)
	assert.Equal(t, placed.OrderId, events[0].OrderId)
	assert.ErrorIs(t, events[0].Err, exchange.ErrInsufficientPosition)

	all := statuses.all()
	require.NotEmpty(t, all)
	assert.Equal(t, common.OrderStatusCancelled, all[len(all)-1].Status)

	account := await(t, c.RequestAccountSnapshot())
	assert.True(t, account.Cash["USD"].Eq(fixed.FromInt(100_000, 0)))
	assert.Empty(t, await(t, c.RequestOpenOrders()))
}

func TestConnection_CancelTwice(t *testing.T) {
	c := connect(t, newSource(t, flat("100.02")))

	errs := &recorder[common.ErrorEvent]{}
	await(t, c.OnError(errs.add))

	placed := await(t, c.PlaceOrder(ticker, common.LimitOrder(common.OrderActionBuy, fixed.One, fixed.FromInt(50, 0))))
	execution := c.AwaitExecution(placed.OrderId)

	status := await(t, c.CancelOrder(placed.OrderId))
	assert.Equal(t, common.OrderStatusCancelled, status)

	err := awaitErr(t, execution)
	assert.ErrorIs(t, err, exchange.ErrOrderCancelled)

	err = awaitErr(t, c.CancelOrder(placed.OrderId))
	assert.ErrorIs(t, err, exchange.ErrAlreadyCancelled)

	require.NoError(t, c.Sync(context.Background()))
	events := errs.all()
	require.Len(t, events, 1, "a user cancel publishes no error, the second cancel does")
	assert.Equal(t, placed.OrderId, events[0].OrderId)

	err = awaitErr(t, c.CancelOrder(placed.OrderId+100))
	assert.ErrorIs(t, err, exchange.ErrOrderNotFound)
}

func TestConnection_RelativeOrderRespectsCap(t *testing.T) {
	c := connect(t, newSource(t, flat("6.02")))

	placed := await(t, c.PlaceOrder(ticker, common.RelativeOrder(
		common.OrderActionBuy, fixed.FromInt(100, 0), fixed.MustParse("0.05"), fixed.MustParse("5.95"))))
	runUntil(t, c, at(30))

	open := await(t, c.RequestOpenOrders())
	require.Len(t, open, 1)
	assert.Equal(t, placed.OrderId, open[0].Id)
	assert.True(t, open[0].CurrentPrice.Eq(fixed.MustParse("5.95")), open[0].CurrentPrice.String())
}

func TestConnection_OrderEventsPrecedeQuoteOfSameSecond(t *testing.T) {
	c := connect(t, newSource(t, rising("100.00")))

	var (
		mu  sync.Mutex
		log []string
	)
	record := func(s string) {
		mu.Lock()
		log = append(log, s)
		mu.Unlock()
	}
	await(t, c.OnOrderStatus(func(e common.OrderStatusEvent) {
		record("status:" + e.Status.String() + "@" + e.TimeStamp.Format(time.TimeOnly))
	}))
	await(t, c.RequestBidAskStream(ticker, func(q common.BidAsk) {
		record("quote@" + q.TimeStamp.Format(time.TimeOnly))
	}))

	runUntil(t, c, at(20))
	await(t, c.PlaceOrder(ticker, common.MarketOrder(common.OrderActionBuy, fixed.One)))
	runUntil(t, c, at(22))

	mu.Lock()
	defer mu.Unlock()

	index := func(s string) int {
		for i, entry := range log {
			if entry == s {
				return i
			}
		}
		return -1
	}
	stamp := at(20).Format(time.TimeOnly)
	open := index("status:Submitted@" + stamp)
	quote := index("quote@" + stamp)
	filled := index("status:Filled@" + stamp)
	require.NotEqual(t, -1, open)
	require.NotEqual(t, -1, quote)
	require.NotEqual(t, -1, filled)
	assert.Less(t, index("status:PendingSubmit@"+stamp), open)
	assert.Less(t, open, quote)
	assert.Less(t, filled, quote, "fills are published before the quote that caused them")
}

func TestConnection_ResetReplaysIdentically(t *testing.T) {
	c := connect(t, newSource(t, rising("250.00")))

	run := func() (common.ExecutionResult, common.Account) {
		runUntil(t, c, at(60))
		placed := await(t, c.PlaceOrder(ticker, common.MarketOrder(common.OrderActionBuy, fixed.FromInt(10, 0))))
		execution := c.AwaitExecution(placed.OrderId)
		runUntil(t, c, at(120))
		return await(t, execution), await(t, c.RequestAccountSnapshot())
	}

	first, firstAccount := run()
	await(t, c.Reset())

	assert.Equal(t, sessionStart, c.Now())
	assert.Empty(t, await(t, c.RequestOpenOrders()))
	assert.Empty(t, await(t, c.RequestPositionsSnapshot()))
	reset := await(t, c.RequestAccountSnapshot())
	assert.True(t, reset.Cash["USD"].Eq(fixed.FromInt(100_000, 0)))

	second, secondAccount := run()
	assert.True(t, first.Execution.Price.Eq(second.Execution.Price))
	assert.Equal(t, first.Execution.TimeStamp, second.Execution.TimeStamp)
	assert.True(t, firstAccount.Cash["USD"].Eq(secondAccount.Cash["USD"]))
	assert.Equal(t, first.Order.Id+1, second.Order.Id, "order ids survive a reset")
	assert.NotEqual(t, first.Execution.ExecId, second.Execution.ExecId)
}

func TestConnection_RunsToTheLastSecond(t *testing.T) {
	c := connect(t, newSource(t, rising("100.00")))

	quotes := &recorder[common.BidAsk]{}
	await(t, c.RequestBidAskStream(ticker, quotes.add))

	result := await(t, c.Start())
	require.NoError(t, c.Sync(context.Background()))
	assert.True(t, result.Completed)
	assert.Equal(t, sessionEnd, result.End)
	assert.Equal(t, sessionEnd, c.Now())

	seen := quotes.all()
	require.Len(t, seen, 600)
	assert.Equal(t, sessionEnd.Add(-time.Second), seen[len(seen)-1].TimeStamp)

	err := awaitErr(t, c.PlaceOrder(ticker, common.MarketOrder(common.OrderActionBuy, fixed.One)))
	assert.ErrorIs(t, err, exchange.ErrSessionCompleted)

	err = awaitErr(t, c.Start())
	assert.ErrorIs(t, err, exchange.ErrSessionCompleted)
}

func TestConnection_OrderAtTheLastSecond(t *testing.T) {
	c := connect(t, newSource(t, rising("100.00")))

	runUntil(t, c, at(599))
	placed := await(t, c.PlaceOrder(ticker, common.MarketOrder(common.OrderActionBuy, fixed.One)))
	assert.Equal(t, at(599), placed.Time)

	execution := c.AwaitExecution(placed.OrderId)
	result := await(t, c.Start())
	require.NoError(t, c.Sync(context.Background()))
	assert.True(t, result.Completed)
	assert.Equal(t, sessionEnd, result.End)

	filled := await(t, execution)
	assert.Equal(t, at(599), filled.Execution.TimeStamp)
	assert.True(t, filled.Execution.Price.Eq(fixed.MustParse("105.99")), filled.Execution.Price.String())
	assert.Equal(t, common.OrderStatusFilled, filled.Order.Status)
}

func TestConnection_SlowObserverDoesNotLoseResponses(t *testing.T) {
	c := connect(t, newSource(t, rising("100.00")), WithQueueCapacity(64, 64))

	quotes := &recorder[common.BidAsk]{}
	await(t, c.RequestBidAskStream(ticker, func(b common.BidAsk) {
		time.Sleep(time.Millisecond)
		quotes.add(b)
	}))
	executions := &recorder[common.Execution]{}
	await(t, c.OnExecution(executions.add))

	placed := await(t, c.PlaceOrder(ticker, common.MarketOrder(common.OrderActionBuy, fixed.One)))
	execution := c.AwaitExecution(placed.OrderId)

	result := await(t, c.Start())
	assert.True(t, result.Completed)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Sync(ctx))

	filled := await(t, execution)
	assert.Equal(t, sessionStart, filled.Execution.TimeStamp)
	assert.Len(t, quotes.all(), 600)
	assert.Len(t, executions.all(), 1)
}

func TestConnection_StartWhileRunning(t *testing.T) {
	c := connect(t, newSource(t, rising("100.00")), WithCompression(0.05))

	run := c.Start()
	err := awaitErr(t, c.Start())
	assert.ErrorIs(t, err, exchange.ErrClockRunning)

	require.NoError(t, c.Stop())
	result := await(t, run)
	assert.False(t, result.Completed)
}

func TestConnection_WeekendSessionFails(t *testing.T) {
	saturday := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)
	_, err := NewConnection(memory.NewCache(), saturday, saturday.Add(time.Hour))
	assert.ErrorIs(t, err, exchange.ErrMarketClosed)

	_, err = NewConnection(nil, sessionStart, sessionEnd)
	assert.Error(t, err)
}

func TestConnection_Lifecycle(t *testing.T) {
	c, err := NewConnection(newSource(t, flat("100.02")), sessionStart, sessionEnd)
	require.NoError(t, err)

	err = awaitErr(t, c.PlaceOrder(ticker, common.MarketOrder(common.OrderActionBuy, fixed.One)))
	assert.ErrorIs(t, err, exchange.ErrNotConnected)
	assert.ErrorIs(t, c.Disconnect(context.Background()), exchange.ErrNotConnected)

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
	assert.ErrorIs(t, c.Connect(context.Background()), exchange.ErrAlreadyConnected)

	placed := await(t, c.PlaceOrder(ticker, common.LimitOrder(common.OrderActionBuy, fixed.One, fixed.FromInt(50, 0))))
	execution := c.AwaitExecution(placed.OrderId)

	require.NoError(t, c.Disconnect(context.Background()))
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, awaitErr(t, execution), exchange.ErrDisconnected)

	require.NoError(t, c.Connect(context.Background()))
	defer func() { _ = c.Disconnect(context.Background()) }()
	assert.Equal(t, sessionStart, c.Now())
	assert.Empty(t, await(t, c.RequestOpenOrders()), "a reconnect starts from a clean session")

	again := await(t, c.PlaceOrder(ticker, common.LimitOrder(common.OrderActionBuy, fixed.One, fixed.FromInt(50, 0))))
	assert.Greater(t, again.OrderId, placed.OrderId)
}

func TestConnection_BarStreams(t *testing.T) {
	c := connect(t, newSource(t, rising("100.00")))

	base := &recorder[common.Bar]{}
	derived := &recorder[common.Bar]{}
	await(t, c.RequestBarStream(ticker, 5*time.Second, base.add))
	await(t, c.RequestBarStream(ticker, 15*time.Second, derived.add))

	err := awaitErr(t, c.RequestBarStream(ticker, 7*time.Second, func(common.Bar) {}))
	assert.Error(t, err)

	runUntil(t, c, at(60))

	assert.Len(t, base.all(), 11)
	bars := derived.all()
	require.Len(t, bars, 3)
	for i, bar := range bars {
		assert.Equal(t, at(15*i), bar.TimeStamp)
		assert.Equal(t, 15*time.Second, bar.Length)
	}
	assert.True(t, bars[0].Open.Eq(fixed.MustParse("99.99")))
	assert.True(t, bars[0].Close.Eq(fixed.MustParse("100.13")))
	assert.True(t, bars[0].Volume.Eq(fixed.FromInt(15, 0)))

	history := await(t, c.RequestHistoricalBars(ticker, 15*time.Second, time.Minute))
	require.Len(t, history, 3)
	assert.Equal(t, bars, history)
}

func TestConnection_BarStreamJoinedMidWindow(t *testing.T) {
	c := connect(t, newSource(t, rising("100.00")))

	runUntil(t, c, at(40))
	minutes := &recorder[common.Bar]{}
	await(t, c.RequestBarStream(ticker, time.Minute, minutes.add))
	runUntil(t, c, at(130))

	live := minutes.all()
	require.Len(t, live, 1)
	assert.Equal(t, at(60), live[0].TimeStamp)
	assert.True(t, live[0].Volume.Eq(fixed.FromInt(60, 0)), live[0].Volume.String())
	assert.True(t, live[0].Open.Eq(fixed.MustParse("100.59")), live[0].Open.String())

	history := await(t, c.RequestHistoricalBars(ticker, time.Minute, 90*time.Second))
	assert.Equal(t, live, history)

	full := await(t, c.RequestHistoricalBars(ticker, time.Minute, 130*time.Second))
	require.Len(t, full, 2)
	assert.Equal(t, sessionStart, full[0].TimeStamp)
	assert.True(t, full[0].Volume.Eq(fixed.FromInt(60, 0)))
	assert.Equal(t, live[0], full[1])
}

func TestConnection_CancelStream(t *testing.T) {
	c := connect(t, newSource(t, rising("100.00")))

	trades := &recorder[common.Last]{}
	id := await(t, c.RequestLastStream(ticker, trades.add))
	runUntil(t, c, at(10))
	require.Len(t, trades.all(), 10)

	await(t, c.CancelStream(id))
	runUntil(t, c, at(20))
	assert.Len(t, trades.all(), 10)

	err := awaitErr(t, c.CancelStream(id))
	assert.Error(t, err)
}

func TestConnection_AccountAndPnLStreams(t *testing.T) {
	c := connect(t, newSource(t, rising("100.00")))

	accounts := &recorder[common.Account]{}
	pnl := &recorder[common.PnL]{}
	reports := &recorder[common.CommissionReport]{}
	executions := &recorder[common.Execution]{}
	await(t, c.RequestAccountStream(accounts.add))
	await(t, c.RequestPnLStream(ticker, pnl.add))
	await(t, c.OnCommissionReport(reports.add))
	await(t, c.OnExecution(executions.add))

	placed := await(t, c.PlaceOrder(ticker, common.MarketOrder(common.OrderActionBuy, fixed.FromInt(10, 0))))
	runUntil(t, c, at(10))

	snapshots := accounts.all()
	require.Len(t, snapshots, 4)
	for i := 1; i < len(snapshots); i++ {
		assert.GreaterOrEqual(t, snapshots[i].TimeStamp.Sub(snapshots[i-1].TimeStamp), 3*time.Second)
	}

	require.Len(t, executions.all(), 1)
	require.Len(t, reports.all(), 1)
	assert.Equal(t, placed.OrderId, reports.all()[0].OrderId)
	assert.Equal(t, "USD", reports.all()[0].Currency)

	updates := pnl.all()
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.True(t, last.Position.Eq(fixed.FromInt(10, 0)))
	assert.True(t, last.UnrealizedPnL.IsPos())
}

func TestConnection_CancelAllOrders(t *testing.T) {
	c := connect(t, newSource(t, flat("100.02")))

	first := await(t, c.PlaceOrder(ticker, common.LimitOrder(common.OrderActionBuy, fixed.One, fixed.FromInt(50, 0))))
	second := await(t, c.PlaceOrder(ticker, common.StopOrder(common.OrderActionBuy, fixed.One, fixed.FromInt(150, 0))))

	ids := await(t, c.CancelAllOrders())
	assert.Equal(t, []common.OrderId{first.OrderId, second.OrderId}, ids)
	assert.Empty(t, await(t, c.RequestOpenOrders()))
}

func TestConnection_ModifyOrder(t *testing.T) {
	c := connect(t, newSource(t, flat("100.02")))

	placed := await(t, c.PlaceOrder(ticker, common.LimitOrder(common.OrderActionBuy, fixed.One, fixed.FromInt(50, 0))))

	modified := common.LimitOrder(common.OrderActionBuy, fixed.FromInt(2, 0), fixed.MustParse("100.02"))
	modified.Id = placed.OrderId
	result := await(t, c.PlaceOrder(ticker, modified))
	assert.Equal(t, placed.OrderId, result.OrderId)

	execution := c.AwaitExecution(placed.OrderId)
	runUntil(t, c, at(2))
	filled := await(t, execution)
	assert.True(t, filled.Execution.Quantity.Eq(fixed.FromInt(2, 0)))
	assert.True(t, filled.Execution.Price.Eq(fixed.MustParse("100.02")))

	again := await(t, c.AwaitExecution(placed.OrderId))
	assert.Equal(t, filled.Execution.ExecId, again.Execution.ExecId, "a filled order resolves at once")

	err := awaitErr(t, c.ModifyOrder(modified))
	assert.ErrorIs(t, err, exchange.ErrAlreadyFilled)
}

func TestConnection_Status(t *testing.T) {
	c := connect(t, newSource(t, flat("100.02")))

	status := c.Status()
	assert.True(t, status.Connected)
	assert.Equal(t, "idle", status.Clock)
	assert.Equal(t, sessionStart, status.Now)
	assert.Equal(t, c.SessionID().String(), status.Session)
}
