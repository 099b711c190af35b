package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/datasource"
	"github.com/peter-kozarec/replay/pkg/marketdata"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

// Prices and sizes are stored as integer millionths, time stamps as Unix
// nanoseconds.
const priceScale = 6

var (
	ErrNotConnected  = errors.New("duckdb store is not connected")
	ErrInvalidTicker = errors.New("invalid ticker")

	tickerPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// Store keeps series in a DuckDB database, one table per ticker and kind:
// <ticker>_bidask, <ticker>_last and <ticker>_bars.
type Store struct {
	dataSourceName string
	db             *sql.DB
	logger         *zap.Logger
}

var (
	_ marketdata.Source = (*Store)(nil)
	_ datasource.Writer = (*Store)(nil)
)

func NewStore(dataSourceName string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dataSourceName: dataSourceName,
		logger:         logger,
	}
}

func (s *Store) Connect() error {
	db, err := sql.Open("duckdb", s.dataSourceName)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping %q: %w", s.dataSourceName, err)
	}
	s.db = db
	return nil
}

// DB exposes the connection for tables outside the market data layout. It is
// nil before Connect.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Bars(ctx context.Context, ticker string, from, to time.Time) ([]common.Bar, error) {
	var bars []common.Bar
	err := s.load(ctx, ticker, "bars", "ts, length, open, high, low, close, volume", from, to, func(rows *sql.Rows) error {
		var ts, length, open, high, low, closing, volume int64
		if err := rows.Scan(&ts, &length, &open, &high, &low, &closing, &volume); err != nil {
			return err
		}
		bars = append(bars, common.Bar{
			Ticker:    ticker,
			TimeStamp: time.Unix(0, ts).UTC(),
			Length:    time.Duration(length),
			Open:      point(open),
			High:      point(high),
			Low:       point(low),
			Close:     point(closing),
			Volume:    point(volume),
		})
		return nil
	})
	return bars, err
}

func (s *Store) BidAsks(ctx context.Context, ticker string, from, to time.Time) ([]common.BidAsk, error) {
	var quotes []common.BidAsk
	err := s.load(ctx, ticker, "bidask", "ts, bid, ask, bid_size, ask_size", from, to, func(rows *sql.Rows) error {
		var ts, bid, ask, bidSize, askSize int64
		if err := rows.Scan(&ts, &bid, &ask, &bidSize, &askSize); err != nil {
			return err
		}
		quotes = append(quotes, common.BidAsk{
			Ticker:    ticker,
			TimeStamp: time.Unix(0, ts).UTC(),
			Bid:       point(bid),
			Ask:       point(ask),
			BidSize:   point(bidSize),
			AskSize:   point(askSize),
		})
		return nil
	})
	return quotes, err
}

func (s *Store) Lasts(ctx context.Context, ticker string, from, to time.Time) ([]common.Last, error) {
	var trades []common.Last
	err := s.load(ctx, ticker, "last", "ts, price, size, exchange", from, to, func(rows *sql.Rows) error {
		var ts, price, size int64
		var exchange string
		if err := rows.Scan(&ts, &price, &size, &exchange); err != nil {
			return err
		}
		trades = append(trades, common.Last{
			Ticker:    ticker,
			TimeStamp: time.Unix(0, ts).UTC(),
			Price:     point(price),
			Size:      point(size),
			Exchange:  exchange,
		})
		return nil
	})
	return trades, err
}

func (s *Store) PutBars(ctx context.Context, ticker string, from, to time.Time, bars []common.Bar) error {
	rows := make([][]any, len(bars))
	for i, b := range bars {
		rows[i] = []any{b.TimeStamp.UnixNano(), int64(b.Length), units(b.Open), units(b.High), units(b.Low), units(b.Close), units(b.Volume)}
	}
	return s.store(ctx, ticker, "bars", barsSchema, from, to, rows)
}

func (s *Store) PutBidAsks(ctx context.Context, ticker string, from, to time.Time, quotes []common.BidAsk) error {
	rows := make([][]any, len(quotes))
	for i, q := range quotes {
		rows[i] = []any{q.TimeStamp.UnixNano(), units(q.Bid), units(q.Ask), units(q.BidSize), units(q.AskSize)}
	}
	return s.store(ctx, ticker, "bidask", bidAskSchema, from, to, rows)
}

func (s *Store) PutLasts(ctx context.Context, ticker string, from, to time.Time, trades []common.Last) error {
	rows := make([][]any, len(trades))
	for i, t := range trades {
		rows[i] = []any{t.TimeStamp.UnixNano(), units(t.Price), units(t.Size), t.Exchange}
	}
	return s.store(ctx, ticker, "last", lastSchema, from, to, rows)
}

type schema struct {
	columns    string
	definition string
}

var (
	barsSchema = schema{
		columns:    "ts, length, open, high, low, close, volume",
		definition: "ts BIGINT NOT NULL, length BIGINT NOT NULL, open BIGINT, high BIGINT, low BIGINT, close BIGINT, volume BIGINT",
	}
	bidAskSchema = schema{
		columns:    "ts, bid, ask, bid_size, ask_size",
		definition: "ts BIGINT NOT NULL, bid BIGINT, ask BIGINT, bid_size BIGINT, ask_size BIGINT",
	}
	lastSchema = schema{
		columns:    "ts, price, size, exchange",
		definition: "ts BIGINT NOT NULL, price BIGINT, size BIGINT, exchange VARCHAR",
	}
)

func tableName(ticker, kind string) (string, error) {
	if !tickerPattern.MatchString(ticker) {
		return "", fmt.Errorf("%q: %w", ticker, ErrInvalidTicker)
	}
	name := strings.NewReplacer(".", "_", "-", "_").Replace(strings.ToLower(ticker))
	return name + "_" + kind, nil
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM information_schema.tables WHERE table_name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("error looking up table %s: %w", table, err)
	}
	return n > 0, nil
}

func (s *Store) load(ctx context.Context, ticker, kind, columns string, from, to time.Time, scan func(*sql.Rows) error) error {
	if s.db == nil {
		return ErrNotConnected
	}
	table, err := tableName(ticker, kind)
	if err != nil {
		return err
	}
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("table %s: %w", table, marketdata.ErrNoData)
	}

	query := fmt.Sprintf(`SELECT %s FROM "%s" WHERE ts BETWEEN ? AND ? ORDER BY ts`, columns, table)
	rows, err := s.db.QueryContext(ctx, query, from.UnixNano(), to.UnixNano())
	if err != nil {
		return fmt.Errorf("error preparing query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	count := 0
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error scanning rows: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("table %s: nothing in range: %w", table, marketdata.ErrNoData)
	}
	return nil
}

func (s *Store) store(ctx context.Context, ticker, kind string, sc schema, from, to time.Time, rows [][]any) error {
	if s.db == nil {
		return ErrNotConnected
	}
	table, err := tableName(ticker, kind)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (%s)`, table, sc.definition)); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM "%s" WHERE ts BETWEEN ? AND ?`, table), from.UnixNano(), to.UnixNano()); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", strings.Count(sc.columns, ",")+1), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`, table, sc.columns, placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer func() { _ = stmt.Close() }()

	lo, hi := from.UnixNano(), to.UnixNano()
	written := 0
	for _, row := range rows {
		if ts := row[0].(int64); ts < lo || ts > hi {
			continue
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("series stored",
		zap.String("table", table),
		zap.Int("rows", written))
	return nil
}

func units(p fixed.Point) int64 { return p.Units(priceScale) }
func point(u int64) fixed.Point  { return fixed.FromInt64(u, priceScale) }
