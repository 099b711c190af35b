package metrics

import (
	"sync"
	"time"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

const (
	equitySnapshotInterval = time.Minute
)

// Audit collects what a run reports through its account, execution and
// commission streams.
type Audit struct {
	currency string

	mu          sync.Mutex
	equities    []equity
	executions  []common.Execution
	commissions []common.CommissionReport
	cash        fixed.Point
}

type equity struct {
	value     fixed.Point
	timeStamp time.Time
}

func NewAudit(currency string) *Audit {
	return &Audit{
		currency: currency,
	}
}

// OnAccount keeps one equity point per minute of simulated time.
func (a *Audit) OnAccount(account common.Account) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cash = account.Cash[a.currency]
	value := account.NetLiquidation(a.currency)
	if n := len(a.equities); n > 0 && account.TimeStamp.Sub(a.equities[n-1].timeStamp) < equitySnapshotInterval {
		a.equities[n-1].value = value
		return
	}
	a.equities = append(a.equities, equity{value: value, timeStamp: account.TimeStamp})
}

func (a *Audit) OnExecution(execution common.Execution) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.executions = append(a.executions, execution)
}

func (a *Audit) OnCommissionReport(report common.CommissionReport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commissions = append(a.commissions, report)
}

func (a *Audit) GenerateReport() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := Report{
		Currency:   a.currency,
		FinalCash:  a.cash,
		Executions: len(a.executions),
	}

	if len(a.equities) > 0 {
		first, last := a.equities[0], a.equities[len(a.equities)-1]
		report.StartDate = first.timeStamp
		report.EndDate = last.timeStamp
		report.InitialEquity = first.value
		report.FinalEquity = last.value
		if first.value.IsPos() {
			report.TotalProfit = last.value.Div(first.value).Sub(fixed.One).Mul(fixed.Hundred).Round(2)
		}

		peak := first.value
		for _, eq := range a.equities {
			peak = fixed.Max(peak, eq.value)
			if !peak.IsPos() {
				continue
			}
			report.MaxDrawdown = fixed.Max(report.MaxDrawdown, peak.Sub(eq.value).Div(peak))
		}
		report.MaxDrawdown = report.MaxDrawdown.Mul(fixed.Hundred).Round(2)

		values := make([]fixed.Point, len(a.equities))
		for i, eq := range a.equities {
			values[i] = eq.value
		}
		returns := Returns(values)
		report.SharpeRatio = SharpeRatio(returns, fixed.Zero).Round(5)
		report.SortinoRatio = SortinoRatio(returns, fixed.Zero).Round(5)
	}

	for _, execution := range a.executions {
		report.Volume = report.Volume.Add(execution.Quantity.Mul(execution.Price))
	}

	var (
		totalProfit fixed.Point
		totalLoss   fixed.Point
	)
	for _, c := range a.commissions {
		report.Commissions = report.Commissions.Add(c.Commission)
		report.RealizedPnL = report.RealizedPnL.Add(c.RealizedPnL)

		// Opening fills realize nothing.
		switch {
		case c.RealizedPnL.IsPos():
			report.WinningTrades++
			totalProfit = totalProfit.Add(c.RealizedPnL)
		case c.RealizedPnL.IsNeg():
			report.LosingTrades++
			totalLoss = totalLoss.Add(c.RealizedPnL.Neg())
		}
	}
	report.TotalTrades = report.WinningTrades + report.LosingTrades

	if report.WinningTrades > 0 {
		report.AverageWin = totalProfit.DivInt(report.WinningTrades)
	}
	if report.LosingTrades > 0 {
		report.AverageLoss = totalLoss.DivInt(report.LosingTrades)
	}
	if totalLoss.IsPos() {
		report.ProfitFactor = totalProfit.Div(totalLoss).Round(4)
	}
	if report.TotalTrades > 0 {
		report.Expectancy = totalProfit.Sub(totalLoss).DivInt(report.TotalTrades)
		report.WinRate = fixed.FromInt(report.WinningTrades, 0).Mul(fixed.Hundred).DivInt(report.TotalTrades).Round(2)
	}
	return report
}
