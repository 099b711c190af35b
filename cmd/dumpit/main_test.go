package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/replay/pkg/datasource/historical"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

const quotesCSV = `ts,bid,ask,bid_size,ask_size
2024-03-04 14:30:00.5+00:00,471.18,471.20,300,200
2024-03-04T14:30:01Z,471.19,471.21,100,100
`

const tradesCSV = `ts,price,size
2024-03-04 14:30:00+00:00,100.00,10
2024-03-04 14:30:02+00:00,100.10,5
2024-03-04 14:30:05+00:00,100.05,1
`

func TestReadQuotes(t *testing.T) {
	quotes, err := ReadQuotes(strings.NewReader(quotesCSV), "SPY")
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	assert.Equal(t, time.Date(2024, 3, 4, 14, 30, 0, 500_000_000, time.UTC), quotes[0].TimeStamp)
	assert.True(t, quotes[0].Bid.Eq(fixed.MustParse("471.18")))
	assert.True(t, quotes[0].AskSize.Eq(fixed.FromInt(200, 0)))
	assert.Equal(t, "SPY", quotes[1].Ticker)
}

func TestReadQuotes_BadRecord(t *testing.T) {
	_, err := ReadQuotes(strings.NewReader("ts,bid,ask,bs,as\nyesterday,1,2,3,4\n"), "SPY")
	assert.ErrorIs(t, err, errBadRecord)

	_, err = ReadQuotes(strings.NewReader("ts,bid,ask,bs,as\n2024-03-04T14:30:01Z,x,2,3,4\n"), "SPY")
	assert.ErrorIs(t, err, errBadRecord)

	_, err = ReadQuotes(strings.NewReader("ts,bid,ask,bs,as\n2024-03-04T14:30:01Z,1,2\n"), "SPY")
	assert.Error(t, err)
}

func TestDumpIt_Trades(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "spy.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(tradesCSV), 0o644))

	ctx := context.Background()
	files := historical.NewFiles(filepath.Join(dir, "data"), nil)
	n, err := dumpIt(ctx, files, "SPY", "trades", csvPath)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	from := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	trades, err := files.Lasts(ctx, "SPY", from, from.Add(5*time.Second))
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.True(t, trades[1].Price.Eq(fixed.MustParse("100.10")))

	bars, err := files.Bars(ctx, "SPY", from, from.Add(5*time.Second))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].High.Eq(fixed.MustParse("100.10")))
	assert.True(t, bars[0].Volume.Eq(fixed.FromInt(15, 0)))
}

func TestDumpIt_UnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(path, []byte(tradesCSV), 0o644))
	_, err := dumpIt(context.Background(), historical.NewFiles(t.TempDir(), nil), "SPY", "ticks", path)
	assert.Error(t, err)
}
