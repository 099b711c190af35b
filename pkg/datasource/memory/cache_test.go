package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/marketdata"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

var sessionStart = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func trades(from time.Time, n int) []common.Last {
	out := make([]common.Last, n)
	for i := range out {
		out[i] = common.Last{
			Ticker:    "SPY",
			TimeStamp: from.Add(time.Duration(i) * time.Second),
			Price:     fixed.FromInt(47000+i, 2),
			Size:      fixed.One,
		}
	}
	return out
}

func TestCache_MissUntilPut(t *testing.T) {
	c := NewCache()
	ctx := context.Background()
	to := sessionStart.Add(time.Minute)

	_, err := c.Lasts(ctx, "SPY", sessionStart, to)
	assert.ErrorIs(t, err, marketdata.ErrNoData)

	require.NoError(t, c.PutLasts(ctx, "SPY", sessionStart, to, trades(sessionStart, 61)))

	got, err := c.Lasts(ctx, "SPY", sessionStart.Add(10*time.Second), sessionStart.Add(20*time.Second))
	require.NoError(t, err)
	assert.Len(t, got, 11)

	_, err = c.Lasts(ctx, "SPY", sessionStart, to.Add(time.Second))
	assert.ErrorIs(t, err, marketdata.ErrNoData, "range not fully covered")

	_, err = c.BidAsks(ctx, "SPY", sessionStart, to)
	assert.ErrorIs(t, err, marketdata.ErrNoData, "kinds are cached separately")
}

func TestCache_AdjacentSpansMerge(t *testing.T) {
	c := NewCache()
	ctx := context.Background()
	mid := sessionStart.Add(30 * time.Second)
	end := sessionStart.Add(time.Minute)

	require.NoError(t, c.PutLasts(ctx, "SPY", sessionStart, mid, trades(sessionStart, 31)))
	require.NoError(t, c.PutLasts(ctx, "SPY", mid, end, trades(mid, 31)))

	got, err := c.Lasts(ctx, "SPY", sessionStart, end)
	require.NoError(t, err)
	assert.Len(t, got, 61)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].TimeStamp.Before(got[i].TimeStamp))
	}
}

func TestCache_PutReplacesRange(t *testing.T) {
	c := NewCache()
	ctx := context.Background()
	end := sessionStart.Add(10 * time.Second)

	require.NoError(t, c.PutLasts(ctx, "SPY", sessionStart, end, trades(sessionStart, 11)))
	require.NoError(t, c.PutLasts(ctx, "SPY", sessionStart, end, trades(sessionStart, 11)))

	got, err := c.Lasts(ctx, "SPY", sessionStart, end)
	require.NoError(t, err)
	assert.Len(t, got, 11)
}

func TestCache_Evict(t *testing.T) {
	c := NewCache()
	ctx := context.Background()
	end := sessionStart.Add(10 * time.Second)

	require.NoError(t, c.PutLasts(ctx, "SPY", sessionStart, end, trades(sessionStart, 11)))
	require.NoError(t, c.PutLasts(ctx, "QQQ", sessionStart, end, trades(sessionStart, 11)))
	assert.Equal(t, []string{"QQQ", "SPY"}, c.Tickers())

	c.Evict("SPY")
	_, err := c.Lasts(ctx, "SPY", sessionStart, end)
	assert.ErrorIs(t, err, marketdata.ErrNoData)
	assert.Equal(t, []string{"QQQ"}, c.Tickers())
}
