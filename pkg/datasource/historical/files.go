package historical

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/datasource"
	"github.com/peter-kozarec/replay/pkg/marketdata"
)

const (
	QuotesFile = "quotes.bin"
	TradesFile = "trades.bin"
	BarsFile   = "bars.bin"
)

// Files serves series from one binary file per ticker and kind under a root
// directory: <root>/<TICKER>/{quotes,trades,bars}.bin.
type Files struct {
	root   string
	logger *zap.Logger
}

var (
	_ marketdata.Source = (*Files)(nil)
	_ datasource.Writer = (*Files)(nil)
)

func NewFiles(root string, logger *zap.Logger) *Files {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Files{root: root, logger: logger}
}

func (f *Files) Path(ticker, file string) string {
	return filepath.Join(f.root, strings.ToUpper(ticker), file)
}

func (f *Files) Bars(ctx context.Context, ticker string, from, to time.Time) ([]common.Bar, error) {
	return read(ctx, f.Path(ticker, BarsFile), from, to, func(b BinaryBar) common.Bar { return b.ToBar(ticker) })
}

func (f *Files) BidAsks(ctx context.Context, ticker string, from, to time.Time) ([]common.BidAsk, error) {
	return read(ctx, f.Path(ticker, QuotesFile), from, to, func(q BinaryQuote) common.BidAsk { return q.ToBidAsk(ticker) })
}

func (f *Files) Lasts(ctx context.Context, ticker string, from, to time.Time) ([]common.Last, error) {
	return read(ctx, f.Path(ticker, TradesFile), from, to, func(t BinaryTrade) common.Last { return t.ToLast(ticker) })
}

func (f *Files) PutBars(_ context.Context, ticker string, from, to time.Time, bars []common.Bar) error {
	return mergeFile(f.logger, f.Path(ticker, BarsFile), from, to, convert(bars, FromBar))
}

func (f *Files) PutBidAsks(_ context.Context, ticker string, from, to time.Time, quotes []common.BidAsk) error {
	return mergeFile(f.logger, f.Path(ticker, QuotesFile), from, to, convert(quotes, FromBidAsk))
}

func (f *Files) PutLasts(_ context.Context, ticker string, from, to time.Time, trades []common.Last) error {
	return mergeFile(f.logger, f.Path(ticker, TradesFile), from, to, convert(trades, FromLast))
}

func read[T record, S any](ctx context.Context, path string, from, to time.Time, conv func(T) S) ([]S, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := NewSource[T](path)
	if err := src.Open(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, marketdata.ErrNoData)
		}
		return nil, err
	}
	defer src.Close()

	records, err := src.ReadRange(from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: nothing in range: %w", path, marketdata.ErrNoData)
	}
	return convert(records, conv), nil
}

func convert[A, B any](in []A, conv func(A) B) []B {
	out := make([]B, len(in))
	for i := range in {
		out[i] = conv(in[i])
	}
	return out
}

// mergeFile rewrites path keeping the records outside [from, to] and
// replacing the range with incoming.
func mergeFile[T record](logger *zap.Logger, path string, from, to time.Time, incoming []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("unable to create %q: %w", filepath.Dir(path), err)
	}

	var existing []T
	src := NewSource[T](path)
	if err := src.Open(); err == nil {
		existing, err = src.ReadRange(0, 1<<63-1)
		src.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	lo, hi := from.UnixNano(), to.UnixNano()
	merged := make([]T, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if r.stamp() < lo || r.stamp() > hi {
			merged = append(merged, r)
		}
	}
	for _, r := range incoming {
		if r.stamp() >= lo && r.stamp() <= hi {
			merged = append(merged, r)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].stamp() < merged[j].stamp() })

	if err := WriteFile(path, merged); err != nil {
		return err
	}
	logger.Debug("binary series written",
		zap.String("path", path),
		zap.Int("records", len(merged)))
	return nil
}
