package metrics

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

type Report struct {
	Currency      string
	StartDate     time.Time
	EndDate       time.Time
	InitialEquity fixed.Point
	FinalEquity   fixed.Point
	FinalCash     fixed.Point
	TotalProfit   fixed.Point
	MaxDrawdown   fixed.Point
	Executions    int
	Volume        fixed.Point
	Commissions   fixed.Point
	RealizedPnL   fixed.Point
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       fixed.Point
	Expectancy    fixed.Point
	ProfitFactor  fixed.Point
	AverageWin    fixed.Point
	AverageLoss   fixed.Point

	// Per equity interval, not annualized.
	SharpeRatio  fixed.Point
	SortinoRatio fixed.Point
}

func (r Report) Print(logger *zap.Logger) {
	logger.Info("run report",
		zap.String("currency", r.Currency),
		zap.Time("start", r.StartDate),
		zap.Time("end", r.EndDate),
		zap.Stringer("initial_equity", r.InitialEquity),
		zap.Stringer("final_equity", r.FinalEquity),
		zap.Stringer("final_cash", r.FinalCash),
		zap.String("total_profit", fmt.Sprintf("%s%%", r.TotalProfit)),
		zap.String("max_drawdown", fmt.Sprintf("%s%%", r.MaxDrawdown)))

	logger.Info("trade statistics",
		zap.Int("executions", r.Executions),
		zap.Stringer("volume", r.Volume),
		zap.Stringer("commissions", r.Commissions),
		zap.Stringer("realized_pnl", r.RealizedPnL),
		zap.Int("total_trades", r.TotalTrades),
		zap.Int("winning_trades", r.WinningTrades),
		zap.Int("losing_trades", r.LosingTrades),
		zap.String("win_rate", fmt.Sprintf("%s%%", r.WinRate)),
		zap.Stringer("expectancy", r.Expectancy),
		zap.Stringer("profit_factor", r.ProfitFactor),
		zap.Stringer("average_win", r.AverageWin),
		zap.Stringer("average_loss", r.AverageLoss))

	logger.Info("risk metrics",
		zap.Stringer("sharpe_ratio", r.SharpeRatio),
		zap.Stringer("sortino_ratio", r.SortinoRatio))
}
