package clock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/bus"
	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/future"
)

var (
	ErrClockRunning     = errors.New("clock already running")
	ErrClockNotRunning  = errors.New("clock not running")
	ErrSessionCompleted = errors.New("session completed")
	ErrInvalidRange     = errors.New("session end must be after start")
	ErrInvalidFactor    = errors.New("compression factor must not be negative")
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// TickFunc evaluates one simulated second. It runs on the request worker.
type TickFunc func(now time.Time)

type Option func(*Clock)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Clock) {
		c.logger = logger
	}
}

func WithCompression(factor float64) Option {
	return func(c *Clock) {
		c.compression.Store(math.Float64bits(factor))
	}
}

// Clock advances simulated time one second per iteration. Each second is
// handed to the request worker as a bus.Step, so a tick never overlaps a
// request.
type Clock struct {
	logger *zap.Logger
	start  time.Time
	end    time.Time
	onTick TickFunc
	steps  chan bus.Step

	compression atomic.Uint64

	mu    sync.Mutex
	state State
	now   time.Time
	stop  chan struct{}
	done  chan struct{}
}

func New(start, end time.Time, onTick TickFunc, options ...Option) (*Clock, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%s..%s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), ErrInvalidRange)
	}
	if onTick == nil {
		return nil, errors.New("nil tick function")
	}

	c := &Clock{
		logger: zap.NewNop(),
		start:  start,
		end:    end,
		onTick: onTick,
		steps:  make(chan bus.Step),
		now:    start,
	}
	for _, option := range options {
		option(c)
	}
	if c.Compression() < 0 {
		return nil, ErrInvalidFactor
	}
	return c, nil
}

// Steps is the channel the request worker consumes ticks from.
func (c *Clock) Steps() <-chan bus.Step {
	return c.steps
}

func (c *Clock) SessionStart() time.Time { return c.start }
func (c *Clock) SessionEnd() time.Time   { return c.end }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Clock) Compression() float64 {
	return math.Float64frombits(c.compression.Load())
}

// SetCompression changes the wall-clock seconds slept per simulated second.
// It takes effect from the next iteration, also mid-run.
func (c *Clock) SetCompression(factor float64) error {
	if factor < 0 || math.IsNaN(factor) {
		return ErrInvalidFactor
	}
	c.compression.Store(math.Float64bits(factor))
	return nil
}

// Start runs the clock from the current simulated time toward the session
// end. The returned future resolves when the run completes or is stopped,
// and is rejected if ctx ends first.
func (c *Clock) Start(ctx context.Context) (*future.Future[common.RunResult], error) {
	return c.RunUntil(ctx, c.end)
}

// RunUntil is Start with an earlier halt. The clock stops once it reaches
// until, before evaluating that second, and can be started again from there.
func (c *Clock) RunUntil(ctx context.Context, until time.Time) (*future.Future[common.RunResult], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateRunning:
		return nil, ErrClockRunning
	case StateCompleted:
		return nil, ErrSessionCompleted
	}
	if until.After(c.end) {
		until = c.end
	}

	c.state = StateRunning
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	run := future.New[common.RunResult]()

	c.logger.Info("clock started",
		zap.Time("now", c.now),
		zap.Time("until", until),
		zap.Float64("compression", c.Compression()))

	go c.loop(ctx, c.now, until, c.stop, c.done, run)
	return run, nil
}

// advance runs on the request worker, so requests handled after a tick
// already observe the next second.
func (c *Clock) advance(from time.Time) {
	c.mu.Lock()
	c.now = from.Add(time.Second)
	c.mu.Unlock()
}

// Stop halts the clock and returns once the loop has exited. An in-flight
// sleep is interrupted; an in-flight tick is allowed to finish.
func (c *Clock) Stop() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return ErrClockNotRunning
	}
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done
	return nil
}

// Reset stops a running clock and rewinds it to the session start.
func (c *Clock) Reset() {
	_ = c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
	c.state = StateIdle
	c.logger.Info("clock reset", zap.Time("now", c.now))
}

func (c *Clock) loop(ctx context.Context, from, until time.Time, stop <-chan struct{}, done chan<- struct{}, run *future.Future[common.RunResult]) {
	defer close(done)

	wallStart := time.Now()
	finish := func(state State) {
		c.mu.Lock()
		c.state = state
		now := c.now
		c.mu.Unlock()

		result := common.RunResult{
			Start:     from,
			End:       now,
			Elapsed:   time.Since(wallStart),
			Completed: state == StateCompleted,
		}
		c.logger.Info("clock finished",
			zap.Stringer("state", state),
			zap.Time("now", now),
			zap.Duration("elapsed", result.Elapsed))
		run.Resolve(result)
	}
	abort := func() {
		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()
		c.logger.Warn("clock aborted", zap.Error(context.Cause(ctx)))
		run.Reject(context.Cause(ctx))
	}

	for {
		now := c.Now()
		if !now.Before(c.end) {
			finish(StateCompleted)
			return
		}
		if !now.Before(until) {
			finish(StateStopped)
			return
		}

		step := bus.NewStep(func() {
			defer c.advance(now)
			c.onTick(now)
		})
		select {
		case c.steps <- step:
		case <-stop:
			finish(StateStopped)
			return
		case <-ctx.Done():
			abort()
			return
		}

		select {
		case <-step.Done:
		case <-ctx.Done():
			abort()
			return
		}

		if delay := time.Duration(c.Compression() * float64(time.Second)); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-stop:
				timer.Stop()
				finish(StateStopped)
				return
			case <-ctx.Done():
				timer.Stop()
				abort()
				return
			}
		}

		select {
		case <-stop:
			finish(StateStopped)
			return
		default:
		}
	}
}
