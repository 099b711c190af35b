package parquet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/datasource"
	"github.com/peter-kozarec/replay/pkg/marketdata"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

const priceScale = 6

// QuoteRecord is the on-disk schema of a quote. Prices and sizes are integer
// millionths.
type QuoteRecord struct {
	Timestamp int64 `parquet:"timestamp,timestamp(nanosecond)"`
	Bid       int64 `parquet:"bid"`
	Ask       int64 `parquet:"ask"`
	BidSize   int64 `parquet:"bid_size"`
	AskSize   int64 `parquet:"ask_size"`
}

type TradeRecord struct {
	Timestamp int64  `parquet:"timestamp,timestamp(nanosecond)"`
	Price     int64  `parquet:"price"`
	Size      int64  `parquet:"size"`
	Exchange  string `parquet:"exchange"`
}

type BarRecord struct {
	Timestamp int64 `parquet:"timestamp,timestamp(nanosecond)"`
	Length    int64 `parquet:"length"`
	Open      int64 `parquet:"open"`
	High      int64 `parquet:"high"`
	Low       int64 `parquet:"low"`
	Close     int64 `parquet:"close"`
	Volume    int64 `parquet:"volume"`
}

type record interface {
	QuoteRecord | TradeRecord | BarRecord
}

func stamp[T record](r T) int64 {
	switch v := any(r).(type) {
	case QuoteRecord:
		return v.Timestamp
	case TradeRecord:
		return v.Timestamp
	case BarRecord:
		return v.Timestamp
	}
	return 0
}

// Store keeps one Parquet file per ticker, kind and session day:
//
//	<DataDir>/<TICKER>/<kind>/<YYYY-MM-DD>.parquet
type Store struct {
	DataDir string
	logger  *zap.Logger
}

var (
	_ marketdata.Source = (*Store)(nil)
	_ datasource.Writer = (*Store)(nil)
)

func NewStore(dataDir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{DataDir: dataDir, logger: logger}
}

func (s *Store) Bars(_ context.Context, ticker string, from, to time.Time) ([]common.Bar, error) {
	records, err := readRange[BarRecord](s, ticker, "bars", from, to)
	if err != nil {
		return nil, err
	}
	out := make([]common.Bar, len(records))
	for i, r := range records {
		out[i] = common.Bar{
			Ticker:    ticker,
			TimeStamp: time.Unix(0, r.Timestamp).UTC(),
			Length:    time.Duration(r.Length),
			Open:      point(r.Open),
			High:      point(r.High),
			Low:       point(r.Low),
			Close:     point(r.Close),
			Volume:    point(r.Volume),
		}
	}
	return out, nil
}

func (s *Store) BidAsks(_ context.Context, ticker string, from, to time.Time) ([]common.BidAsk, error) {
	records, err := readRange[QuoteRecord](s, ticker, "quotes", from, to)
	if err != nil {
		return nil, err
	}
	out := make([]common.BidAsk, len(records))
	for i, r := range records {
		out[i] = common.BidAsk{
			Ticker:    ticker,
			TimeStamp: time.Unix(0, r.Timestamp).UTC(),
			Bid:       point(r.Bid),
			Ask:       point(r.Ask),
			BidSize:   point(r.BidSize),
			AskSize:   point(r.AskSize),
		}
	}
	return out, nil
}

func (s *Store) Lasts(_ context.Context, ticker string, from, to time.Time) ([]common.Last, error) {
	records, err := readRange[TradeRecord](s, ticker, "trades", from, to)
	if err != nil {
		return nil, err
	}
	out := make([]common.Last, len(records))
	for i, r := range records {
		out[i] = common.Last{
			Ticker:    ticker,
			TimeStamp: time.Unix(0, r.Timestamp).UTC(),
			Price:     point(r.Price),
			Size:      point(r.Size),
			Exchange:  r.Exchange,
		}
	}
	return out, nil
}

func (s *Store) PutBars(_ context.Context, ticker string, from, to time.Time, bars []common.Bar) error {
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Timestamp: b.TimeStamp.UnixNano(),
			Length:    int64(b.Length),
			Open:      units(b.Open),
			High:      units(b.High),
			Low:       units(b.Low),
			Close:     units(b.Close),
			Volume:    units(b.Volume),
		}
	}
	return writeRange(s, ticker, "bars", from, to, records)
}

func (s *Store) PutBidAsks(_ context.Context, ticker string, from, to time.Time, quotes []common.BidAsk) error {
	records := make([]QuoteRecord, len(quotes))
	for i, q := range quotes {
		records[i] = QuoteRecord{
			Timestamp: q.TimeStamp.UnixNano(),
			Bid:       units(q.Bid),
			Ask:       units(q.Ask),
			BidSize:   units(q.BidSize),
			AskSize:   units(q.AskSize),
		}
	}
	return writeRange(s, ticker, "quotes", from, to, records)
}

func (s *Store) PutLasts(_ context.Context, ticker string, from, to time.Time, trades []common.Last) error {
	records := make([]TradeRecord, len(trades))
	for i, t := range trades {
		records[i] = TradeRecord{
			Timestamp: t.TimeStamp.UnixNano(),
			Price:     units(t.Price),
			Size:      units(t.Size),
			Exchange:  t.Exchange,
		}
	}
	return writeRange(s, ticker, "trades", from, to, records)
}

func (s *Store) path(ticker, kind string, day time.Time) string {
	return filepath.Join(s.DataDir, strings.ToUpper(ticker), kind, day.UTC().Format(time.DateOnly)+".parquet")
}

// readRange needs a file for every session day in the range and reports
// ErrNoData when one is missing.
func readRange[T record](s *Store, ticker, kind string, from, to time.Time) ([]T, error) {
	sessions := marketdata.Sessions(from, to)
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%s %s: %w", ticker, kind, marketdata.ErrMarketClosed)
	}

	lo, hi := from.UnixNano(), to.UnixNano()
	var out []T
	for _, session := range sessions {
		path := s.path(ticker, kind, session.Open)
		if !exists(path) {
			return nil, fmt.Errorf("%s: %w", path, marketdata.ErrNoData)
		}
		records, err := parquet.ReadFile[T](path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for _, r := range records {
			if ts := stamp(r); ts >= lo && ts <= hi {
				out = append(out, r)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return stamp(out[i]) < stamp(out[j]) })
	return out, nil
}

// writeRange replaces [from, to] in every day file touched by the range.
func writeRange[T record](s *Store, ticker, kind string, from, to time.Time, records []T) error {
	lo, hi := from.UnixNano(), to.UnixNano()
	byDay := make(map[string][]T)
	for _, session := range marketdata.Sessions(from, to) {
		byDay[s.path(ticker, kind, session.Open)] = nil
	}
	for _, r := range records {
		ts := stamp(r)
		if ts < lo || ts > hi {
			continue
		}
		path := s.path(ticker, kind, time.Unix(0, ts))
		byDay[path] = append(byDay[path], r)
	}

	for path, incoming := range byDay {
		var existing []T
		if exists(path) {
			var err error
			if existing, err = parquet.ReadFile[T](path); err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
		}

		merged := make([]T, 0, len(existing)+len(incoming))
		for _, r := range existing {
			if ts := stamp(r); ts < lo || ts > hi {
				merged = append(merged, r)
			}
		}
		merged = append(merged, incoming...)
		sort.SliceStable(merged, func(i, j int) bool { return stamp(merged[i]) < stamp(merged[j]) })

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
		if err := parquet.WriteFile(path, merged); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		s.logger.Debug("parquet series written",
			zap.String("path", path),
			zap.Int("records", len(merged)))
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

func units(p fixed.Point) int64 { return p.Units(priceScale) }
func point(u int64) fixed.Point  { return fixed.FromInt64(u, priceScale) }
