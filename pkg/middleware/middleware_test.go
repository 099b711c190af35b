package middleware

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/dispatch"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

func execution(id string) common.Execution {
	return common.Execution{
		ExecId:     id,
		OrderId:    7,
		Ticker:     "SPY",
		Action:     common.OrderActionBuy,
		Price:      fixed.MustParse("471.20"),
		Quantity:   fixed.FromInt(50, 0),
		Commission: fixed.FromInt(1, 0),
		TimeStamp:  time.Date(2024, 3, 4, 14, 35, 0, 0, time.UTC),
	}
}

func TestMonitor_TapLogsEnabledKinds(t *testing.T) {
	logger, logs := observed()
	m := NewMonitor(logger, MonitorBars|MonitorExecutions)

	m.Tap(dispatch.BarKey("SPY", 5*time.Second), common.Bar{Ticker: "SPY"})
	m.Tap(dispatch.TickerKey("SPY", dispatch.KindBidAsk), common.BidAsk{Ticker: "SPY"})
	m.Tap(dispatch.GlobalKey(dispatch.KindExecution), execution("1"))

	entries := logs.FilterMessage("event").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "SPY:bar:5s", entries[0].ContextMap()["key"])
	assert.Equal(t, "execution", entries[1].ContextMap()["key"])
}

func TestMonitor_All(t *testing.T) {
	m := NewMonitor(nil, MonitorAll)
	for kind := dispatch.KindBar; kind <= dispatch.KindError; kind++ {
		assert.True(t, m.Enabled(kind), kind.String())
	}
	assert.False(t, NewMonitor(nil, MonitorNone).Enabled(dispatch.KindBar))
}

func TestMonitor_WrapAlwaysCallsHandler(t *testing.T) {
	logger, logs := observed()
	var calls int
	handler := func(common.Last) { calls++ }

	Wrap(NewMonitor(logger, MonitorLasts), dispatch.KindLast, handler)(common.Last{})
	Wrap(NewMonitor(logger, MonitorNone), dispatch.KindLast, handler)(common.Last{})

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, logs.Len())
}

func TestChain_Order(t *testing.T) {
	var trace []string
	tag := func(name string) func(func(int)) func(int) {
		return func(next func(int)) func(int) {
			return func(v int) {
				trace = append(trace, name)
				next(v)
			}
		}
	}

	handler := Chain(func(int) { trace = append(trace, "handler") }, tag("outer"), tag("inner"))
	handler(1)

	assert.Equal(t, []string{"outer", "inner", "handler"}, trace)
}

func TestTelemetry_Counts(t *testing.T) {
	logger, logs := observed()
	tel := NewTelemetry(logger)

	for i := 0; i < 3; i++ {
		tel.Tap(dispatch.TickerKey("SPY", dispatch.KindBidAsk), nil)
	}
	tel.Tap(dispatch.TickerKey("QQQ", dispatch.KindLast), nil)
	tel.Tap(dispatch.GlobalKey(dispatch.KindAccountValue), nil)

	assert.EqualValues(t, 3, tel.Count(dispatch.KindBidAsk))
	assert.EqualValues(t, 1, tel.Count(dispatch.KindLast))
	assert.EqualValues(t, 3, tel.TickerCount("SPY"))
	assert.EqualValues(t, 0, tel.TickerCount(""))

	tel.PrintStatistics()
	entry := logs.FilterMessage("event statistics").All()
	require.Len(t, entry, 1)
	assert.EqualValues(t, 3, entry[0].ContextMap()["bid_ask_events"])

	tel.Reset()
	assert.Zero(t, tel.Count(dispatch.KindBidAsk))
}

func TestPerformance_Measure(t *testing.T) {
	logger, logs := observed()
	p := NewPerformance(logger)

	handler := Measure(p, dispatch.KindBar, func(common.Bar) { time.Sleep(2 * time.Millisecond) })
	handler(common.Bar{})
	handler(common.Bar{})

	assert.EqualValues(t, 2, p.Calls(dispatch.KindBar))
	assert.GreaterOrEqual(t, p.Average(dispatch.KindBar), 2*time.Millisecond)
	assert.Zero(t, p.Average(dispatch.KindLast))

	p.PrintStatistics()
	assert.Equal(t, 1, logs.FilterMessage("handler performance").Len())
}

func TestPushover_Send(t *testing.T) {
	received := make(chan url.Values, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		values, _ := url.ParseQuery(string(body))
		received <- values
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPushover("user", "token", "phone", WithPushoverEndpoint(srv.URL))
	var handled bool
	p.WithExecution(context.Background(), func(common.Execution) { handled = true })(execution("1"))
	assert.True(t, handled)

	select {
	case values := <-received:
		assert.Equal(t, "token", values.Get("token"))
		assert.Equal(t, "Order Filled", values.Get("title"))
		assert.Contains(t, values.Get("message"), "BUY 50 SPY @ 471.20")
	case <-time.After(5 * time.Second):
		t.Fatal("notification not sent")
	}
}

func TestPushover_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid token"))
	}))
	defer srv.Close()

	err := NewPushover("u", "t", "d", WithPushoverEndpoint(srv.URL)).Send(context.Background(), "title", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestJournal_Insert(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	j, err := NewJournal(ctx, db, "run-1", nil)
	require.NoError(t, err)

	var handled int
	handler := j.WithExecution(ctx, func(common.Execution) { handled++ })
	handler(execution("1"))
	handler(execution("2"))
	handler(execution("2"))

	assert.Equal(t, 3, handled)
	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var price string
	require.NoError(t, db.QueryRow(`SELECT price FROM executions WHERE exec_id = '1'`).Scan(&price))
	assert.Equal(t, "471.20", price)
}

func TestFlagsOf(t *testing.T) {
	assert.Equal(t, MonitorAll, FlagsOf())
	assert.Equal(t, MonitorOrders|MonitorErrors, FlagsOf(dispatch.KindOrderStatus, dispatch.KindError))
}
