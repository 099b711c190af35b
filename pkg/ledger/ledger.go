package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
)

var (
	commissionPerShare = fixed.FromInt(5, 3)
	commissionMinimum  = fixed.One
	commissionCapRate  = fixed.FromInt(1, 2)
)

// Commission is the per-fill fee: 0.005 per share, at least 1.00, at most 1%
// of the notional. The cap wins when the two bounds cross.
func Commission(quantity, price fixed.Point) fixed.Point {
	return fixed.Clamp(
		quantity.Mul(commissionPerShare),
		commissionMinimum,
		quantity.Mul(price).Mul(commissionCapRate),
	)
}

// Ledger keeps the cash, positions and PnL of a single account. It has no
// locks; callers serialise access.
type Ledger struct {
	account      string
	currency     string
	startingCash fixed.Point

	cash       map[string]fixed.Point
	realized   map[string]fixed.Point
	unrealized map[string]fixed.Point
	positions  map[string]*common.Position
}

func New(account, currency string, startingCash fixed.Point) *Ledger {
	l := &Ledger{
		account:      account,
		currency:     currency,
		startingCash: startingCash,
	}
	l.Reset()
	return l
}

func (l *Ledger) Reset() {
	l.cash = map[string]fixed.Point{
		common.BaseCurrency: l.startingCash,
		l.currency:          l.startingCash,
	}
	l.realized = map[string]fixed.Point{
		common.BaseCurrency: fixed.Zero,
		l.currency:          fixed.Zero,
	}
	l.unrealized = map[string]fixed.Point{
		common.BaseCurrency: fixed.Zero,
		l.currency:          fixed.Zero,
	}
	l.positions = make(map[string]*common.Position)
}

func (l *Ledger) Account() string  { return l.account }
func (l *Ledger) Currency() string { return l.currency }

// Cash is the BASE balance.
func (l *Ledger) Cash() fixed.Point {
	return l.cash[common.BaseCurrency]
}

// ApplyCash moves the BASE and the quote currency balance by the same delta.
func (l *Ledger) ApplyCash(delta fixed.Point) {
	l.cash[common.BaseCurrency] = l.cash[common.BaseCurrency].Add(delta)
	l.cash[l.currency] = l.cash[l.currency].Add(delta)
}

func (l *Ledger) applyRealized(delta fixed.Point) {
	l.realized[common.BaseCurrency] = l.realized[common.BaseCurrency].Add(delta)
	l.realized[l.currency] = l.realized[l.currency].Add(delta)
}

// ApplyFill books a fill and returns the PnL it realised. A rejected fill
// leaves the ledger untouched.
//
// The average cost of a BUY into an existing position record is the plain
// mean of the old average and the fill price, not a quantity weighted one.
func (l *Ledger) ApplyFill(action common.OrderAction, ticker string, quantity, price, commission fixed.Point, ts time.Time) (fixed.Point, error) {
	if !quantity.IsPos() {
		return fixed.Zero, fmt.Errorf("%s %s: %w", action, ticker, ErrInvalidQuantity)
	}

	notional := quantity.Mul(price)
	position, exists := l.positions[ticker]

	switch action {
	case common.OrderActionBuy:
		if notional.Gt(l.Cash()) {
			return fixed.Zero, fmt.Errorf("buy %s %s @ %s needs %s, cash %s: %w",
				quantity, ticker, price, notional, l.Cash(), ErrInsufficientFunds)
		}
		if !exists {
			position = &common.Position{Account: l.account, Ticker: ticker, AverageCost: price}
			l.positions[ticker] = position
		} else {
			position.AverageCost = position.AverageCost.Add(price).DivInt(2)
		}
		position.Quantity = position.Quantity.Add(quantity)
		position.TimeStamp = ts
		l.ApplyCash(notional.Add(commission).Neg())
		l.revalue(position, price)
		return fixed.Zero, nil

	case common.OrderActionSell:
		held := fixed.Zero
		if exists {
			held = position.Quantity
		}
		if quantity.Gt(held) {
			return fixed.Zero, fmt.Errorf("sell %s %s, held %s: %w", quantity, ticker, held, ErrInsufficientPosition)
		}
		realized := quantity.Mul(price.Sub(position.AverageCost))
		position.Quantity = position.Quantity.Sub(quantity)
		position.RealizedPnL = position.RealizedPnL.Add(realized)
		position.TimeStamp = ts
		l.ApplyCash(notional.Sub(commission))
		l.applyRealized(realized)
		l.revalue(position, price)
		return realized, nil
	}

	return fixed.Zero, fmt.Errorf("unknown order action %d", action)
}

// MarkToMarket revalues the position of ticker at price and reports whether
// anything visible changed.
func (l *Ledger) MarkToMarket(ticker string, price fixed.Point, ts time.Time) bool {
	position, ok := l.positions[ticker]
	if !ok {
		return false
	}
	before := *position
	l.revalue(position, price)
	changed := !before.MarketPrice.Eq(position.MarketPrice) ||
		!before.MarketValue.Eq(position.MarketValue) ||
		!before.UnrealizedPnL.Eq(position.UnrealizedPnL)
	if changed {
		position.TimeStamp = ts
	}
	return changed
}

func (l *Ledger) revalue(position *common.Position, price fixed.Point) {
	position.MarketPrice = price
	position.MarketValue = position.Quantity.Mul(price)
	position.UnrealizedPnL = position.MarketValue.Sub(position.Quantity.Mul(position.AverageCost))

	total := fixed.Zero
	for _, p := range l.positions {
		total = total.Add(p.UnrealizedPnL)
	}
	l.unrealized[common.BaseCurrency] = total
	l.unrealized[l.currency] = total
}

func (l *Ledger) Position(ticker string) (common.Position, bool) {
	position, ok := l.positions[ticker]
	if !ok {
		return common.Position{}, false
	}
	return *position, true
}

// Positions returns copies of every position record ordered by ticker.
func (l *Ledger) Positions() []common.Position {
	out := make([]common.Position, 0, len(l.positions))
	for _, position := range l.positions {
		out = append(out, *position)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

func (l *Ledger) PnL(ticker string, ts time.Time) common.PnL {
	position, _ := l.Position(ticker)
	return common.PnL{
		Account:       l.account,
		Ticker:        ticker,
		Position:      position.Quantity,
		UnrealizedPnL: position.UnrealizedPnL,
		RealizedPnL:   position.RealizedPnL,
		Value:         position.MarketValue,
		TimeStamp:     ts,
	}
}

// Snapshot returns a deep copy of the account state.
func (l *Ledger) Snapshot(ts time.Time) common.Account {
	account := common.Account{
		Code:          l.account,
		Cash:          copyBalances(l.cash),
		RealizedPnL:   copyBalances(l.realized),
		UnrealizedPnL: copyBalances(l.unrealized),
		Positions:     make(map[string]common.Position, len(l.positions)),
		TimeStamp:     ts,
	}
	for ticker, position := range l.positions {
		account.Positions[ticker] = *position
	}
	return account
}

func copyBalances(in map[string]fixed.Point) map[string]fixed.Point {
	out := make(map[string]fixed.Point, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
