package exchange

import (
	"errors"

	"github.com/peter-kozarec/replay/pkg/clock"
	"github.com/peter-kozarec/replay/pkg/ledger"
	"github.com/peter-kozarec/replay/pkg/marketdata"
	"github.com/peter-kozarec/replay/pkg/matching"
)

// Protocol errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrClockRunning     = clock.ErrClockRunning
	ErrSessionCompleted = clock.ErrSessionCompleted
)

// Business rejections.
var (
	ErrInsufficientFunds    = ledger.ErrInsufficientFunds
	ErrInsufficientPosition = ledger.ErrInsufficientPosition
	ErrAlreadyCancelled     = matching.ErrAlreadyCancelled
	ErrAlreadyFilled        = matching.ErrAlreadyFilled
	ErrOrderNotFound        = matching.ErrOrderNotFound
	ErrInvalidOrder         = matching.ErrInvalidOrder
)

// Lifecycle.
var (
	ErrOrderCancelled = errors.New("order cancelled")
	ErrDisconnected   = errors.New("disconnected")
	ErrSessionReset   = errors.New("session reset")
)

// Data availability.
var (
	ErrMarketClosed = marketdata.ErrMarketClosed
	ErrNoData       = marketdata.ErrNoData
)
