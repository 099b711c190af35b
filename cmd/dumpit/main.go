package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/internal/logging"
	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/datasource/historical"
	"github.com/peter-kozarec/replay/pkg/marketdata"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

const timeLayout = "2006-01-02 15:04:05.999999999Z07:00"

var errBadRecord = errors.New("bad csv record")

func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(timeLayout, s); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func parsePoints(fields []string) ([]fixed.Point, error) {
	points := make([]fixed.Point, len(fields))
	for i, field := range fields {
		p, err := fixed.Parse(strings.TrimSpace(field))
		if err != nil {
			return nil, err
		}
		points[i] = p
	}
	return points, nil
}

// readCSV calls row for every record after the header.
func readCSV(r io.Reader, columns int, row func(ts time.Time, values []fixed.Point)) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = columns

	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		ts, err := parseTime(record[0])
		if err != nil {
			return fmt.Errorf("line %d: %w: %v", line, errBadRecord, err)
		}
		values, err := parsePoints(record[1:])
		if err != nil {
			return fmt.Errorf("line %d: %w: %v", line, errBadRecord, err)
		}
		row(ts.UTC(), values)
	}
}

// ReadQuotes parses ts,bid,ask,bid_size,ask_size rows.
func ReadQuotes(r io.Reader, ticker string) ([]common.BidAsk, error) {
	var quotes []common.BidAsk
	err := readCSV(r, 5, func(ts time.Time, v []fixed.Point) {
		quotes = append(quotes, common.BidAsk{
			Ticker:    ticker,
			TimeStamp: ts,
			Bid:       v[0],
			Ask:       v[1],
			BidSize:   v[2],
			AskSize:   v[3],
		})
	})
	return quotes, err
}

// ReadTrades parses ts,price,size rows.
func ReadTrades(r io.Reader, ticker string) ([]common.Last, error) {
	var trades []common.Last
	err := readCSV(r, 3, func(ts time.Time, v []fixed.Point) {
		trades = append(trades, common.Last{
			Ticker:    ticker,
			TimeStamp: ts,
			Price:     v[0],
			Size:      v[1],
		})
	})
	return trades, err
}

func dumpIt(ctx context.Context, files *historical.Files, ticker, kind, csvPath string) (int, error) {
	csvFile, err := os.Open(csvPath)
	if err != nil {
		return 0, err
	}
	defer func(csvFile *os.File) {
		_ = csvFile.Close()
	}(csvFile)

	switch kind {
	case "quotes":
		quotes, err := ReadQuotes(csvFile, ticker)
		if err != nil || len(quotes) == 0 {
			return 0, err
		}
		from, to := quotes[0].TimeStamp, quotes[len(quotes)-1].TimeStamp
		return len(quotes), files.PutBidAsks(ctx, ticker, from, to, quotes)
	case "trades":
		trades, err := ReadTrades(csvFile, ticker)
		if err != nil || len(trades) == 0 {
			return 0, err
		}
		from, to := trades[0].TimeStamp, trades[len(trades)-1].TimeStamp
		if err := files.PutLasts(ctx, ticker, from, to, trades); err != nil {
			return 0, err
		}
		// Trades also yield the base bars.
		return len(trades), files.PutBars(ctx, ticker, from, to, marketdata.FoldTrades(ticker, trades, to))
	}
	return 0, fmt.Errorf("unknown kind %q", kind)
}

func main() {
	ticker := flag.String("ticker", "", "ticker the csv files belong to")
	kind := flag.String("kind", "quotes", "quotes or trades")
	root := flag.String("root", "data", "root directory of the binary files")
	flag.Parse()

	logger := logging.NewDevLogger()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	if *ticker == "" || flag.NArg() == 0 {
		logger.Error("usage: dumpit -ticker SPY [-kind quotes|trades] [-root data] file.csv...")
		os.Exit(2)
	}

	ctx := context.Background()
	files := historical.NewFiles(*root, logger)
	for _, path := range flag.Args() {
		n, err := dumpIt(ctx, files, strings.ToUpper(*ticker), *kind, path)
		if err != nil {
			logger.Fatal("failed to dump", zap.String("file", path), zap.Error(err))
		}
		logger.Info("dump finished", zap.String("file", path), zap.Int("records", n))
	}
	logger.Info("done", zap.String("path", files.Path(strings.ToUpper(*ticker), *kind+".bin")))
}
