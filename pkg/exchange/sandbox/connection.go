package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/bus"
	"github.com/peter-kozarec/replay/pkg/clock"
	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/dispatch"
	"github.com/peter-kozarec/replay/pkg/exchange"
	"github.com/peter-kozarec/replay/pkg/future"
	"github.com/peter-kozarec/replay/pkg/ledger"
	"github.com/peter-kozarec/replay/pkg/marketdata"
	"github.com/peter-kozarec/replay/pkg/matching"
	"github.com/peter-kozarec/replay/pkg/utility"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

const (
	defaultAccountCode      = "DU0000000"
	defaultCurrency         = "USD"
	defaultRequestCapacity  = 4096
	defaultResponseCapacity = 65536
	defaultAccountInterval  = 3 * time.Second
)

var _ exchange.Simulator = (*Connection)(nil)

// session holds what lives from Connect to Disconnect.
type session struct {
	ctx        context.Context
	cancel     context.CancelCauseFunc
	requests   *bus.Queue
	responses  *bus.Queue
	dispatcher *dispatch.Dispatcher
}

// respond posts a response action. A full response queue blocks the request
// worker, and with it the clock, until the response worker catches up. It
// only fails once the session ends, and Disconnect rejects every future then.
func (s *session) respond(logger *zap.Logger, action bus.Action) {
	if err := s.responses.PostWait(s.ctx, action); err != nil {
		logger.Debug("response dropped at disconnect", zap.Error(err))
	}
}

// Connection simulates a brokerage connection over recorded market data.
//
// Caller-facing operations are queued as request actions and executed by a
// single request worker, which also runs every clock tick. Results are
// delivered by a single response worker. Order, ledger and cursor state is
// therefore only touched by the request worker.
type Connection struct {
	logger            *zap.Logger
	source            marketdata.Source
	compression       float64
	startingCash      fixed.Point
	accountCode       string
	currency          string
	requestCapacity   int
	responseCapacity  int
	accountInterval   time.Duration
	commissionHandler CommissionHandler
	taps              []dispatch.Tap

	sessionId utility.SessionID
	clock     *clock.Clock
	futures   *future.Table

	lifecycleMu sync.Mutex
	session     atomic.Pointer[session]

	// request worker state
	engine       *matching.Engine
	ledger       *ledger.Ledger
	instruments  map[string]*marketdata.Instrument
	tickers      []string
	lastOrderId  common.OrderId
	execSeq      uint64
	executions   map[common.OrderId]common.ExecutionResult
	cancelReason map[common.OrderId]error
	waiters      map[common.OrderId][]utility.CorrelationID
	lastAccount  time.Time
}

// NewConnection prepares a simulated session over [start, end). It fails
// with marketdata.ErrMarketClosed when the range has no regular session.
func NewConnection(source marketdata.Source, start, end time.Time, options ...Option) (*Connection, error) {
	if source == nil {
		return nil, errors.New("nil market data source")
	}
	if err := marketdata.ValidateSession(start, end); err != nil {
		return nil, err
	}

	c := &Connection{
		logger:            zap.NewNop(),
		source:            source,
		startingCash:      fixed.FromInt(100_000, 0),
		accountCode:       defaultAccountCode,
		currency:          defaultCurrency,
		requestCapacity:   defaultRequestCapacity,
		responseCapacity:  defaultResponseCapacity,
		accountInterval:   defaultAccountInterval,
		commissionHandler: ledger.Commission,
		sessionId:         utility.NewSessionID(),
		futures:           future.NewTable(),
	}
	for _, option := range options {
		option(c)
	}
	if c.startingCash.IsNeg() {
		return nil, fmt.Errorf("starting cash %s must not be negative", c.startingCash)
	}
	if c.requestCapacity < 1 || c.responseCapacity < 1 {
		return nil, fmt.Errorf("queue capacities %d/%d must be positive", c.requestCapacity, c.responseCapacity)
	}
	if c.commissionHandler == nil {
		return nil, errors.New("nil commission handler")
	}

	clk, err := clock.New(start, end, c.onTick,
		clock.WithLogger(c.logger.Named("clock")),
		clock.WithCompression(c.compression))
	if err != nil {
		return nil, err
	}
	c.clock = clk
	c.engine = matching.NewEngine()
	c.ledger = ledger.New(c.accountCode, c.currency, c.startingCash)
	c.resetState()
	return c, nil
}

func (c *Connection) resetState() {
	c.engine.Reset()
	c.ledger.Reset()
	c.instruments = make(map[string]*marketdata.Instrument)
	c.tickers = nil
	c.executions = make(map[common.OrderId]common.ExecutionResult)
	c.cancelReason = make(map[common.OrderId]error)
	c.waiters = make(map[common.OrderId][]utility.CorrelationID)
	c.lastAccount = time.Time{}
}

func (c *Connection) SessionID() utility.SessionID { return c.sessionId }

func (c *Connection) IsConnected() bool {
	return c.session.Load() != nil
}

// Connect starts the request and response workers.
func (c *Connection) Connect(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.session.Load() != nil {
		return exchange.ErrAlreadyConnected
	}

	sctx, cancel := context.WithCancelCause(context.Background())
	s := &session{
		ctx:       sctx,
		cancel:    cancel,
		requests:  bus.NewQueue("requests", c.requestCapacity, c.logger),
		responses: bus.NewQueue("responses", c.responseCapacity, c.logger),
	}
	s.dispatcher = dispatch.NewDispatcher(sctx, s.responses, c.logger.Named("dispatch"))
	for _, tap := range c.taps {
		s.dispatcher.AddTap(tap)
	}

	go c.watch(s.requests.ExecLoop(sctx, c.clock.Steps()), s.requests.Name())
	go c.watch(s.responses.Exec(sctx), s.responses.Name())
	c.session.Store(s)

	c.logger.Info("connected",
		zap.Stringer("session", c.sessionId),
		zap.String("account", c.accountCode),
		zap.Time("start", c.clock.SessionStart()),
		zap.Time("end", c.clock.SessionEnd()))

	return c.Sync(ctx)
}

func (c *Connection) watch(errChan <-chan error, name string) {
	if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("worker stopped", zap.String("queue", name), zap.Error(err))
	}
}

// Disconnect stops the clock, lets already queued requests finish, rejects
// every outstanding future with ErrDisconnected and resets the session.
func (c *Connection) Disconnect(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	s := c.session.Swap(nil)
	if s == nil {
		return exchange.ErrNotConnected
	}

	c.clock.Reset()

	drained := make(chan struct{})
	if err := s.requests.Post(func() {
		c.rejectAllWaiters(s, exchange.ErrDisconnected)
		c.resetState()
		s.dispatcher.Clear()
		close(drained)
	}); err != nil {
		c.logger.Warn("unable to drain requests", zap.Error(err))
		close(drained)
	}

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.cancel(exchange.ErrDisconnected)
	rejected := c.futures.RejectAll(exchange.ErrDisconnected)

	s.requests.Statistics().Print(c.logger)
	s.responses.Statistics().Print(c.logger)
	c.logger.Info("disconnected", zap.Int("rejected_futures", rejected))
	return err
}

// Sync returns once every request and response queued before the call has
// been processed.
func (c *Connection) Sync(ctx context.Context) error {
	f := submit(c, common.NoOrder, func(s *session, cid utility.CorrelationID) (struct{}, error) {
		return struct{}{}, nil
	})
	_, err := f.Await(ctx)
	return err
}

// Start runs the clock to the end of the session.
func (c *Connection) Start() *future.Future[common.RunResult] {
	return c.RunUntil(c.clock.SessionEnd())
}

// RunUntil runs the clock and halts it before evaluating t.
func (c *Connection) RunUntil(t time.Time) *future.Future[common.RunResult] {
	s := c.session.Load()
	if s == nil {
		return future.Rejected[common.RunResult](exchange.ErrNotConnected)
	}
	run, err := c.clock.RunUntil(s.ctx, t)
	if err != nil {
		return future.Rejected[common.RunResult](err)
	}
	return run
}

func (c *Connection) Stop() error {
	return c.clock.Stop()
}

// Reset rewinds the clock to the session start and clears orders, positions
// and cash back to the starting state. Order ids keep increasing.
func (c *Connection) Reset() *future.Future[struct{}] {
	if c.session.Load() == nil {
		return future.Rejected[struct{}](exchange.ErrNotConnected)
	}
	c.clock.Reset()
	return submit(c, common.NoOrder, func(s *session, cid utility.CorrelationID) (struct{}, error) {
		c.rejectAllWaiters(s, exchange.ErrSessionReset)
		c.engine.Reset()
		c.ledger.Reset()
		for _, inst := range c.instruments {
			inst.Reset()
		}
		c.executions = make(map[common.OrderId]common.ExecutionResult)
		c.cancelReason = make(map[common.OrderId]error)
		c.lastAccount = time.Time{}
		s.dispatcher.ResetWindows()
		c.logger.Info("session reset", zap.Time("now", c.clock.Now()))
		return struct{}{}, nil
	})
}

func (c *Connection) SetCompression(factor float64) error {
	return c.clock.SetCompression(factor)
}

func (c *Connection) Now() time.Time {
	return c.clock.Now()
}

// Status is a lock free view of the connection for monitoring.
type Status struct {
	Connected        bool      `json:"connected"`
	Session          string    `json:"session"`
	Clock            string    `json:"clock"`
	Now              time.Time `json:"now"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Compression      float64   `json:"compression"`
	RequestsPending  int       `json:"requests_pending"`
	ResponsesPending int       `json:"responses_pending"`
}

func (c *Connection) Status() Status {
	status := Status{
		Session:     c.sessionId.String(),
		Clock:       c.clock.State().String(),
		Now:         c.clock.Now(),
		Start:       c.clock.SessionStart(),
		End:         c.clock.SessionEnd(),
		Compression: c.clock.Compression(),
	}
	if s := c.session.Load(); s != nil {
		status.Connected = true
		status.RequestsPending = s.requests.Pending()
		status.ResponsesPending = s.responses.Pending()
	}
	return status
}

// orderError ties a request failure to an order so the error event can name
// it.
type orderError struct {
	id  common.OrderId
	err error
}

func (e *orderError) Error() string { return fmt.Sprintf("order %d: %v", e.id, e.err) }
func (e *orderError) Unwrap() error { return e.err }

func withOrder(id common.OrderId, err error) error {
	return &orderError{id: id, err: err}
}

// submit queues action on the request worker and settles the returned
// future with its outcome on the response worker. Failures are also
// published as error events.
func submit[T any](c *Connection, orderId common.OrderId, action func(*session, utility.CorrelationID) (T, error)) *future.Future[T] {
	f := future.New[T]()
	s := c.session.Load()
	if s == nil {
		f.Reject(exchange.ErrNotConnected)
		return f
	}

	cid := future.Register(c.futures, f)
	err := s.requests.Post(func() {
		value, err := action(s, cid)
		if err != nil {
			c.fail(s, cid, orderId, err)
			return
		}
		resolve(c, s, cid, value)
	})
	if err != nil {
		_ = c.futures.Reject(cid, err)
	}
	return f
}

func resolve[T any](c *Connection, s *session, cid utility.CorrelationID, value T) {
	s.respond(c.logger, func() {
		if err := future.Settle(c.futures, cid, value, nil); err != nil {
			c.logger.Debug("unable to settle future", zap.Uint64("cid", cid), zap.Error(err))
		}
	})
}

func (c *Connection) fail(s *session, cid utility.CorrelationID, orderId common.OrderId, err error) {
	var oe *orderError
	if errors.As(err, &oe) {
		orderId = oe.id
	}
	c.logger.Debug("request failed",
		zap.Uint64("cid", cid),
		zap.Int64("order", orderId),
		zap.Error(err))

	s.respond(c.logger, func() {
		_ = c.futures.Reject(cid, err)
	})
	dispatch.Publish(s.dispatcher, dispatch.GlobalKey(dispatch.KindError),
		common.NewErrorEvent(orderId, cid, err, c.clock.Now()))
}

// ensureInstrument loads the cursors of ticker on first use and positions
// them just before the current second.
func (c *Connection) ensureInstrument(ctx context.Context, ticker string) (*marketdata.Instrument, error) {
	if inst, ok := c.instruments[ticker]; ok {
		return inst, nil
	}

	inst, err := marketdata.Load(ctx, c.source, ticker, c.clock.SessionStart(), c.clock.SessionEnd())
	if err != nil {
		return nil, err
	}
	inst.Seek(c.clock.Now().Add(-time.Nanosecond))

	c.instruments[ticker] = inst
	c.tickers = append(c.tickers, ticker)
	sort.Strings(c.tickers)

	c.logger.Info("instrument loaded",
		zap.String("ticker", ticker),
		zap.Int("bars", inst.Bars.Len()),
		zap.Int("quotes", inst.BidAsk.Len()),
		zap.Int("trades", inst.Last.Len()))
	return inst, nil
}

// releaseInstrument drops the cursors of ticker once no stream, open order
// or position needs them.
func (c *Connection) releaseInstrument(s *session, ticker string) {
	if s.dispatcher.Needs(ticker) {
		return
	}
	for _, order := range c.engine.Open() {
		if order.Ticker == ticker {
			return
		}
	}
	if position, ok := c.ledger.Position(ticker); ok && !position.IsFlat() {
		return
	}

	delete(c.instruments, ticker)
	for i, t := range c.tickers {
		if t == ticker {
			c.tickers = append(c.tickers[:i:i], c.tickers[i+1:]...)
			break
		}
	}
	c.logger.Info("instrument released", zap.String("ticker", ticker))
}
