package middleware

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/common"
)

const journalSchema = `CREATE TABLE IF NOT EXISTS executions (
	exec_id    VARCHAR PRIMARY KEY,
	run_id     VARCHAR NOT NULL,
	order_id   BIGINT NOT NULL,
	ticker     VARCHAR NOT NULL,
	action     VARCHAR NOT NULL,
	price      VARCHAR NOT NULL,
	quantity   VARCHAR NOT NULL,
	commission VARCHAR NOT NULL,
	ts         BIGINT NOT NULL
)`

// Journal records executions of one run into a sql database.
type Journal struct {
	db     *sql.DB
	runId  string
	logger *zap.Logger
}

func NewJournal(ctx context.Context, db *sql.DB, runId string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.ExecContext(ctx, journalSchema); err != nil {
		return nil, fmt.Errorf("unable to create journal: %w", err)
	}
	return &Journal{
		db:     db,
		runId:  runId,
		logger: logger,
	}, nil
}

func (j *Journal) Insert(ctx context.Context, execution common.Execution) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO executions (exec_id, run_id, order_id, ticker, action, price, quantity, commission, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		execution.ExecId,
		j.runId,
		execution.OrderId,
		execution.Ticker,
		execution.Action.String(),
		execution.Price.String(),
		execution.Quantity.String(),
		execution.Commission.String(),
		execution.TimeStamp.UnixNano())
	if err != nil {
		return fmt.Errorf("unable to insert execution %s: %w", execution.ExecId, err)
	}
	return nil
}

// WithExecution inserts on the calling goroutine so rows keep fill order.
func (j *Journal) WithExecution(ctx context.Context, handler func(common.Execution)) func(common.Execution) {
	return func(execution common.Execution) {
		if err := j.Insert(ctx, execution); err != nil {
			j.logger.Warn("unable to journal execution", zap.Error(err))
		}
		handler(execution)
	}
}

func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT count(*) FROM executions WHERE run_id = ?`, j.runId).Scan(&n)
	return n, err
}
