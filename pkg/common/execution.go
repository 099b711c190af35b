package common

import (
	"time"

	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

const SimulatedExchange = "SIM"

// Execution is the single fill of an order; partial fills are not modelled.
type Execution struct {
	ExecId     string      `json:"exec_id"`
	OrderId    OrderId     `json:"order_id"`
	Ticker     string      `json:"ticker"`
	Action     OrderAction `json:"action"`
	Price      fixed.Point `json:"price"`
	Quantity   fixed.Point `json:"quantity"`
	Exchange   string      `json:"exchange"`
	TimeStamp  time.Time   `json:"ts"`
	Commission fixed.Point `json:"commission"`
}

type CommissionReport struct {
	ExecId      string      `json:"exec_id"`
	OrderId     OrderId     `json:"order_id"`
	Commission  fixed.Point `json:"commission"`
	Currency    string      `json:"currency"`
	RealizedPnL fixed.Point `json:"realized_pnl"`
}

type ExecutionResult struct {
	Order     Order            `json:"order"`
	Execution Execution        `json:"execution"`
	Report    CommissionReport `json:"commission_report"`
}
