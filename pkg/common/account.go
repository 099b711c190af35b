package common

import (
	"time"

	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

// BaseCurrency is the account-level aggregate key every cash movement is
// mirrored to.
const BaseCurrency = "BASE"

type Account struct {
	Code          string                 `json:"code"`
	Cash          map[string]fixed.Point `json:"cash"`
	RealizedPnL   map[string]fixed.Point `json:"realized_pnl"`
	UnrealizedPnL map[string]fixed.Point `json:"unrealized_pnl"`
	Positions     map[string]Position    `json:"positions"`
	TimeStamp     time.Time              `json:"ts"`
}

// NetLiquidation is cash plus the market value of every position in the
// given currency.
func (a Account) NetLiquidation(currency string) fixed.Point {
	value := a.Cash[currency]
	for _, position := range a.Positions {
		value = value.Add(position.MarketValue)
	}
	return value
}
