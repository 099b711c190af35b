package sandbox

import (
	"time"

	"github.com/peter-kozarec/replay/pkg/dispatch"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

// onTick evaluates one simulated second on the request worker: bars, then
// quotes with order matching, then trades, then marking positions to market
// and finally the periodic account snapshot.
func (c *Connection) onTick(now time.Time) {
	s := c.session.Load()
	if s == nil {
		return
	}

	for _, ticker := range c.tickers {
		for _, bar := range c.instruments[ticker].Bars.Advance(now) {
			s.dispatcher.PublishBar(bar)
		}
	}

	touched := make(map[string]bool)
	for _, ticker := range c.tickers {
		inst := c.instruments[ticker]
		quotes := inst.BidAsk.Advance(now)
		if current, ok := inst.BidAsk.Current(); ok {
			for _, match := range c.engine.Evaluate(current) {
				c.fill(s, match, now)
				touched[ticker] = true
			}
		}
		for _, quote := range quotes {
			dispatch.Publish(s.dispatcher, dispatch.TickerKey(ticker, dispatch.KindBidAsk), quote)
		}
	}

	for _, ticker := range c.tickers {
		for _, trade := range c.instruments[ticker].Last.Advance(now) {
			dispatch.Publish(s.dispatcher, dispatch.TickerKey(ticker, dispatch.KindLast), trade)
		}
	}

	for _, ticker := range c.tickers {
		price, ok := c.markPrice(ticker)
		if !ok {
			continue
		}
		changed := c.ledger.MarkToMarket(ticker, price, now)
		if !changed && !touched[ticker] {
			continue
		}
		if position, ok := c.ledger.Position(ticker); ok {
			dispatch.Publish(s.dispatcher, dispatch.GlobalKey(dispatch.KindPosition), position)
			dispatch.Publish(s.dispatcher, dispatch.TickerKey(ticker, dispatch.KindPnL), c.ledger.PnL(ticker, now))
		}
	}

	if s.dispatcher.HasObservers(dispatch.GlobalKey(dispatch.KindAccountValue)) &&
		(c.lastAccount.IsZero() || now.Sub(c.lastAccount) >= c.accountInterval) {
		c.lastAccount = now
		dispatch.Publish(s.dispatcher, dispatch.GlobalKey(dispatch.KindAccountValue), c.ledger.Snapshot(now))
	}
}

// markPrice is the last trade price, or the quote mid when no trade has
// printed yet.
func (c *Connection) markPrice(ticker string) (fixed.Point, bool) {
	inst := c.instruments[ticker]
	if trade, ok := inst.Last.Current(); ok {
		return trade.Price, true
	}
	if quote, ok := inst.BidAsk.Current(); ok {
		return quote.Mid(), true
	}
	return fixed.Zero, false
}
