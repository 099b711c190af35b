package common

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

func TestOrder_Equals(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Order
		equal bool
	}{
		{"same id", Order{Id: 3}, Order{Id: 3, Kind: OrderKindLimit}, true},
		{"different id", Order{Id: 3}, Order{Id: 4}, false},
		{"unassigned ids", Order{}, Order{}, false},
		{"one unassigned", Order{Id: 1}, Order{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equals(tt.b))
		})
	}
}

func TestOrder_Constructors(t *testing.T) {
	qty := fixed.FromInt(50, 0)

	lmt := LimitOrder(OrderActionBuy, qty, fixed.MustParse("470.70"))
	assert.Equal(t, OrderKindLimit, lmt.Kind)
	assert.True(t, lmt.IsBuy())
	assert.True(t, lmt.LmtPrice.Eq(fixed.MustParse("470.7")))

	trail := TrailingStopOrder(OrderActionSell, qty, fixed.MustParse("0.5"), TrailingUnitAbsolute)
	assert.Equal(t, OrderKindTrailingStop, trail.Kind)
	assert.False(t, trail.IsBuy())
	assert.False(t, trail.StopInitialized)

	rel := RelativeOrder(OrderActionBuy, qty, fixed.MustParse("0.005"), fixed.MustParse("5.95"))
	assert.Equal(t, OrderKindRelative, rel.Kind)
	assert.Equal(t, "5.95", rel.PriceCap.String())
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.False(t, OrderStatusRequested.IsTerminal())
	assert.False(t, OrderStatusOpen.IsTerminal())
	assert.True(t, OrderStatusFilled.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
}

func TestAccount_NetLiquidation(t *testing.T) {
	account := Account{
		Cash: map[string]fixed.Point{"USD": fixed.FromInt(1000, 0)},
		Positions: map[string]Position{
			"SPY": {Ticker: "SPY", MarketValue: fixed.FromInt(250, 0)},
		},
	}
	assert.Equal(t, "1250", account.NetLiquidation("USD").String())
}
