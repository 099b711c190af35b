package middleware

import (
	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/dispatch"
)

type MonitorFlags uint16

//goland:noinspection GoUnusedConst
const (
	MonitorNone MonitorFlags = 1 << iota
	MonitorAll
	MonitorBars
	MonitorBidAsks
	MonitorLasts
	MonitorPositions
	MonitorPnL
	MonitorAccount
	MonitorExecutions
	MonitorOrders
	MonitorCommissions
	MonitorErrors
)

func flagOf(kind dispatch.Kind) MonitorFlags {
	switch kind {
	case dispatch.KindBar:
		return MonitorBars
	case dispatch.KindBidAsk:
		return MonitorBidAsks
	case dispatch.KindLast:
		return MonitorLasts
	case dispatch.KindPosition:
		return MonitorPositions
	case dispatch.KindPnL:
		return MonitorPnL
	case dispatch.KindAccountValue:
		return MonitorAccount
	case dispatch.KindExecution:
		return MonitorExecutions
	case dispatch.KindOrderStatus:
		return MonitorOrders
	case dispatch.KindCommissionReport:
		return MonitorCommissions
	case dispatch.KindError:
		return MonitorErrors
	}
	return MonitorNone
}

// Monitor logs the events of the enabled kinds.
type Monitor struct {
	logger *zap.Logger
	flags  MonitorFlags
}

func NewMonitor(logger *zap.Logger, flags MonitorFlags) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		logger: logger,
		flags:  flags,
	}
}

func (m *Monitor) Enabled(kind dispatch.Kind) bool {
	if m.flags&MonitorAll != 0 {
		return true
	}
	flag := flagOf(kind)
	return flag != MonitorNone && m.flags&flag != 0
}

// Tap is a dispatch.Tap.
func (m *Monitor) Tap(key dispatch.Key, event any) {
	if !m.Enabled(key.Kind) {
		return
	}
	m.logger.Info("event", zap.Stringer("key", key), zap.Any(key.Kind.String(), event))
}

// Wrap logs every event passed to handler when kind is enabled.
func Wrap[T any](m *Monitor, kind dispatch.Kind, handler func(T)) func(T) {
	return func(event T) {
		if m.Enabled(kind) {
			m.logger.Info("event", zap.Any(kind.String(), event))
		}
		handler(event)
	}
}

// Chain applies wrappers to handler, the first wrapper ending up outermost.
func Chain[T any](handler func(T), wrappers ...func(func(T)) func(T)) func(T) {
	for i := len(wrappers) - 1; i >= 0; i-- {
		handler = wrappers[i](handler)
	}
	return handler
}

// FlagsOf enables logging for the given kinds, or every kind when none is
// given.
func FlagsOf(kinds ...dispatch.Kind) MonitorFlags {
	if len(kinds) == 0 {
		return MonitorAll
	}
	var flags MonitorFlags
	for _, kind := range kinds {
		flags |= flagOf(kind)
	}
	return flags
}
