package middleware

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/dispatch"
)

type timing struct {
	count int64
	total time.Duration
	max   time.Duration
}

func (t timing) average() time.Duration {
	if t.count == 0 {
		return 0
	}
	return t.total / time.Duration(t.count)
}

// Performance measures how long observers take per event kind.
type Performance struct {
	logger *zap.Logger

	mu      sync.Mutex
	timings map[dispatch.Kind]timing
}

func NewPerformance(logger *zap.Logger) *Performance {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Performance{
		logger:  logger,
		timings: make(map[dispatch.Kind]timing),
	}
}

func (p *Performance) record(kind dispatch.Kind, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.timings[kind]
	t.count++
	t.total += d
	t.max = max(t.max, d)
	p.timings[kind] = t
}

// Measure times every call of handler under kind.
func Measure[T any](p *Performance, kind dispatch.Kind, handler func(T)) func(T) {
	return func(event T) {
		start := time.Now()
		handler(event)
		p.record(kind, time.Since(start))
	}
}

func (p *Performance) Average(kind dispatch.Kind) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timings[kind].average()
}

func (p *Performance) Calls(kind dispatch.Kind) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timings[kind].count
}

func (p *Performance) PrintStatistics() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for kind := dispatch.KindBar; kind <= dispatch.KindError; kind++ {
		t, ok := p.timings[kind]
		if !ok {
			continue
		}
		p.logger.Info("handler performance",
			zap.Stringer("kind", kind),
			zap.Int64("calls", t.count),
			zap.Duration("avg", t.average()),
			zap.Duration("max", t.max),
			zap.Duration("total", t.total))
	}
}
