package sandbox

import (
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/dispatch"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

type Option func(*Connection)

// CommissionHandler prices one fill in the account currency.
type CommissionHandler func(quantity, price fixed.Point) fixed.Point

func WithLogger(logger *zap.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithCompression sets the wall-clock seconds slept per simulated second.
func WithCompression(factor float64) Option {
	return func(c *Connection) {
		c.compression = factor
	}
}

func WithStartingCash(cash fixed.Point) Option {
	return func(c *Connection) {
		c.startingCash = cash
	}
}

func WithAccount(code string) Option {
	return func(c *Connection) {
		c.accountCode = code
	}
}

func WithCurrency(currency string) Option {
	return func(c *Connection) {
		c.currency = currency
	}
}

func WithQueueCapacity(requests, responses int) Option {
	return func(c *Connection) {
		c.requestCapacity = requests
		c.responseCapacity = responses
	}
}

func WithCommissionHandler(commissionHandler CommissionHandler) Option {
	return func(c *Connection) {
		c.commissionHandler = commissionHandler
	}
}

// WithAccountInterval sets the minimum simulated time between two account
// stream updates.
func WithAccountInterval(interval time.Duration) Option {
	return func(c *Connection) {
		c.accountInterval = interval
	}
}

// WithTap observes every event the connection publishes, on the response
// goroutine.
func WithTap(tap dispatch.Tap) Option {
	return func(c *Connection) {
		c.taps = append(c.taps, tap)
	}
}
