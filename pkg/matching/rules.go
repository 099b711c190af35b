package matching

import (
	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

// evaluate applies the fill rule of the order's kind to the tick and returns
// the fill price when the order executes.
func evaluate(o *common.Order, tick common.BidAsk) (fixed.Point, bool) {
	buy := o.IsBuy()

	switch o.Kind {
	case common.OrderKindMarket:
		return side(buy, tick), true

	case common.OrderKindLimit:
		if buy && o.LmtPrice.Gte(tick.Ask) {
			return tick.Ask, true
		}
		if !buy && o.LmtPrice.Lte(tick.Bid) {
			return tick.Bid, true
		}

	case common.OrderKindStop:
		return stopTriggered(buy, o.StopPrice, tick)

	case common.OrderKindMarketIfTouched:
		if buy && o.TouchPrice.Gte(tick.Bid) {
			return tick.Ask, true
		}
		if !buy && o.TouchPrice.Lte(tick.Ask) {
			return tick.Bid, true
		}

	case common.OrderKindTrailingStop:
		if !o.StopInitialized {
			o.StopPrice = trailingStop(o, tick)
			o.StopInitialized = true
			return fixed.Zero, false
		}
		if price, ok := stopTriggered(buy, o.StopPrice, tick); ok {
			return price, true
		}
		candidate := trailingStop(o, tick)
		if (buy && candidate.Lt(o.StopPrice)) || (!buy && candidate.Gt(o.StopPrice)) {
			o.StopPrice = candidate
		}

	case common.OrderKindRelative:
		o.CurrentPrice = relativePrice(o, tick)
		if buy && o.CurrentPrice.Gte(tick.Ask) {
			return tick.Ask, true
		}
		if !buy && o.CurrentPrice.Lte(tick.Bid) {
			return tick.Bid, true
		}
	}

	return fixed.Zero, false
}

func side(buy bool, tick common.BidAsk) fixed.Point {
	if buy {
		return tick.Ask
	}
	return tick.Bid
}

func stopTriggered(buy bool, stop fixed.Point, tick common.BidAsk) (fixed.Point, bool) {
	if buy && stop.Lte(tick.Ask) {
		return tick.Ask, true
	}
	if !buy && stop.Gte(tick.Bid) {
		return tick.Bid, true
	}
	return fixed.Zero, false
}

// trailingStop is the stop a trailing order would take if it were anchored
// on this tick: above the ask for a buy, below the bid for a sell.
func trailingStop(o *common.Order, tick common.BidAsk) fixed.Point {
	ref := side(o.IsBuy(), tick)
	trail := o.TrailingAmount
	if o.TrailingUnit == common.TrailingUnitPercent {
		trail = ref.Mul(fixed.Clamp(o.TrailingAmount, fixed.Zero, fixed.One))
	}
	if o.IsBuy() {
		return ref.Add(trail)
	}
	return ref.Sub(trail)
}

// relativePrice pegs to the bid (buy) or ask (sell) by the offset, never
// beyond a non-zero cap.
func relativePrice(o *common.Order, tick common.BidAsk) fixed.Point {
	if o.IsBuy() {
		price := tick.Bid.Add(o.OffsetAmount)
		if !o.PriceCap.IsZero() {
			price = fixed.Min(price, o.PriceCap)
		}
		return price
	}
	price := tick.Ask.Sub(o.OffsetAmount)
	if !o.PriceCap.IsZero() {
		price = fixed.Max(price, o.PriceCap)
	}
	return price
}
