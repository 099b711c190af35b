package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrCapacityReached = errors.New("queue capacity reached")

// Action is one unit of work executed by the queue's single consumer.
type Action func()

// Step is a unit of clock work. It runs on the queue consumer only when no
// action is waiting, and Done is closed once it has finished.
type Step struct {
	Fn   func()
	Done chan struct{}
}

func NewStep(fn func()) Step {
	return Step{Fn: fn, Done: make(chan struct{})}
}

// Queue is a FIFO of actions drained by exactly one goroutine.
type Queue struct {
	name   string
	logger *zap.Logger

	actions chan Action
	pending atomic.Int64

	runMu   sync.Mutex
	runTime time.Duration

	postCount     atomic.Uint64
	postFails     atomic.Uint64
	waitCount     atomic.Uint64
	dispatchCount atomic.Uint64
	dispatchFails atomic.Uint64
	stepCount     atomic.Uint64
}

func NewQueue(name string, capacity int, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		logger:  logger.With(zap.String("queue", name)),
		actions: make(chan Action, capacity),
	}
}

func (q *Queue) Name() string { return q.name }

// Post enqueues the action without blocking.
func (q *Queue) Post(action Action) error {
	q.pending.Add(1)
	select {
	case q.actions <- action:
		q.postCount.Add(1)
		return nil
	default:
		q.pending.Add(-1)
		q.postFails.Add(1)
		return fmt.Errorf("%s: %w", q.name, ErrCapacityReached)
	}
}

// PostWait enqueues the action, blocking while the queue is full. It fails
// only when ctx ends first.
func (q *Queue) PostWait(ctx context.Context, action Action) error {
	q.pending.Add(1)
	select {
	case q.actions <- action:
		q.postCount.Add(1)
		return nil
	default:
	}

	q.waitCount.Add(1)
	select {
	case q.actions <- action:
		q.postCount.Add(1)
		return nil
	case <-ctx.Done():
		q.pending.Add(-1)
		q.postFails.Add(1)
		return fmt.Errorf("%s: %w", q.name, context.Cause(ctx))
	}
}

// Pending counts queued actions plus the one being executed.
func (q *Queue) Pending() int {
	return int(q.pending.Load())
}

// Exec drains actions until ctx is cancelled.
func (q *Queue) Exec(ctx context.Context) <-chan error {
	errChan := make(chan error, 1)

	go func() {
		start := time.Now()
		defer q.addRunTime(start)

		for {
			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			case action := <-q.actions:
				q.dispatch(action)
			}
		}
	}()

	return errChan
}

// ExecLoop drains actions like Exec and runs clock steps in between. A step
// is only started once every action queued before it has been executed.
func (q *Queue) ExecLoop(ctx context.Context, steps <-chan Step) <-chan error {
	errChan := make(chan error, 1)

	go func() {
		start := time.Now()
		defer q.addRunTime(start)

		for {
			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			case action := <-q.actions:
				q.dispatch(action)
				continue
			default:
			}

			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			case action := <-q.actions:
				q.dispatch(action)
			case step := <-steps:
				q.drain()
				q.runStep(step)
			}
		}
	}()

	return errChan
}

func (q *Queue) Statistics() Statistics {
	q.runMu.Lock()
	runTime := q.runTime
	q.runMu.Unlock()

	stats := Statistics{
		Name:          q.name,
		RunTime:       runTime,
		PostCount:     q.postCount.Load(),
		PostFails:     q.postFails.Load(),
		PostWaits:     q.waitCount.Load(),
		DispatchCount: q.dispatchCount.Load(),
		DispatchFails: q.dispatchFails.Load(),
		StepCount:     q.stepCount.Load(),
	}
	if runTime > 0 {
		stats.Throughput = float64(stats.DispatchCount) / runTime.Seconds()
	}
	return stats
}

func (q *Queue) drain() {
	for {
		select {
		case action := <-q.actions:
			q.dispatch(action)
		default:
			return
		}
	}
}

func (q *Queue) dispatch(action Action) {
	defer q.pending.Add(-1)
	q.dispatchCount.Add(1)

	defer func() {
		if r := recover(); r != nil {
			q.dispatchFails.Add(1)
			q.logger.Error("action panicked", zap.Any("panic", r))
		}
	}()

	action()
}

func (q *Queue) runStep(step Step) {
	defer close(step.Done)
	q.stepCount.Add(1)

	defer func() {
		if r := recover(); r != nil {
			q.dispatchFails.Add(1)
			q.logger.Error("clock step panicked", zap.Any("panic", r))
		}
	}()

	step.Fn()
}

func (q *Queue) addRunTime(start time.Time) {
	q.runMu.Lock()
	q.runTime += time.Since(start)
	q.runMu.Unlock()
}
