package common

import (
	"time"

	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

type Position struct {
	Account       string      `json:"account"`
	Ticker        string      `json:"ticker"`
	Quantity      fixed.Point `json:"quantity"`
	AverageCost   fixed.Point `json:"average_cost"`
	MarketPrice   fixed.Point `json:"market_price"`
	MarketValue   fixed.Point `json:"market_value"`
	UnrealizedPnL fixed.Point `json:"unrealized_pnl"`
	RealizedPnL   fixed.Point `json:"realized_pnl"`
	TimeStamp     time.Time   `json:"ts"`
}

func (p Position) IsFlat() bool { return p.Quantity.IsZero() }

type PnL struct {
	Account       string      `json:"account"`
	Ticker        string      `json:"ticker"`
	Position      fixed.Point `json:"position"`
	UnrealizedPnL fixed.Point `json:"unrealized_pnl"`
	RealizedPnL   fixed.Point `json:"realized_pnl"`
	Value         fixed.Point `json:"value"`
	TimeStamp     time.Time   `json:"ts"`
}
