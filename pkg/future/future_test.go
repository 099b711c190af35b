package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_ResolveOnce(t *testing.T) {
	f := New[int]()

	assert.True(t, f.Resolve(1))
	assert.False(t, f.Resolve(2))
	assert.False(t, f.Reject(errors.New("late")))

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestFuture_Reject(t *testing.T) {
	boom := errors.New("boom")
	f := Rejected[string](boom)

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestFuture_AwaitHonoursContext(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the abandoned future can still settle
	f.Resolve(7)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestFuture_Peek(t *testing.T) {
	f := New[int]()
	_, ok, _ := f.Peek()
	assert.False(t, ok)

	f.Resolve(3)
	v, ok, err := f.Peek()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestFuture_ConcurrentSettle(t *testing.T) {
	f := New[int]()
	var wg sync.WaitGroup
	wins := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f.Resolve(i) {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1)
	winner := <-wins
	v, _ := f.Await(context.Background())
	assert.Equal(t, winner, v)
}

func TestTable_SettleRoutesByCorrelationID(t *testing.T) {
	table := NewTable()
	a := New[int]()
	b := New[string]()

	idA := Register(table, a)
	idB := Register(table, b)
	assert.NotEqual(t, idA, idB)
	assert.Equal(t, 2, table.Len())

	require.NoError(t, Settle(table, idB, "ok", nil))
	require.NoError(t, Settle(table, idA, 0, errors.New("rejected")))

	s, err := b.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", s)

	_, err = a.Await(context.Background())
	assert.EqualError(t, err, "rejected")
	assert.Equal(t, 0, table.Len())

	assert.ErrorIs(t, Settle(table, idA, 1, nil), ErrUnknownCorrelation)
}

func TestTable_SettleTypeMismatch(t *testing.T) {
	table := NewTable()
	f := New[int]()
	id := Register(table, f)

	err := Settle(table, id, "wrong", nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = f.Await(context.Background())
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestTable_RejectAll(t *testing.T) {
	table := NewTable()
	disconnected := errors.New("disconnected")

	futures := make([]*Future[int], 5)
	for i := range futures {
		futures[i] = New[int]()
		Register(table, futures[i])
	}

	assert.Equal(t, 5, table.RejectAll(disconnected))
	assert.Equal(t, 0, table.Len())

	for _, f := range futures {
		_, err := f.Await(context.Background())
		assert.ErrorIs(t, err, disconnected)
	}
}
