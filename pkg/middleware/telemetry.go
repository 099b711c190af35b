package middleware

import (
	"sync"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/dispatch"
)

// Telemetry counts published events per kind.
type Telemetry struct {
	logger *zap.Logger

	mu       sync.Mutex
	counters map[dispatch.Kind]int64
	tickers  map[string]int64
}

func NewTelemetry(logger *zap.Logger) *Telemetry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telemetry{
		logger:   logger,
		counters: make(map[dispatch.Kind]int64),
		tickers:  make(map[string]int64),
	}
}

func (t *Telemetry) Tap(key dispatch.Key, _ any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters[key.Kind]++
	if key.Ticker != "" {
		t.tickers[key.Ticker]++
	}
}

func (t *Telemetry) Count(kind dispatch.Kind) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters[kind]
}

func (t *Telemetry) TickerCount(ticker string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tickers[ticker]
}

func (t *Telemetry) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters = make(map[dispatch.Kind]int64)
	t.tickers = make(map[string]int64)
}

func (t *Telemetry) PrintStatistics() {
	t.mu.Lock()
	defer t.mu.Unlock()

	fields := make([]zap.Field, 0, int(dispatch.KindError)+1)
	for kind := dispatch.KindBar; kind <= dispatch.KindError; kind++ {
		fields = append(fields, zap.Int64(kind.String()+"_events", t.counters[kind]))
	}
	t.logger.Info("event statistics", fields...)
}
