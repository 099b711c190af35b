package future

import (
	"errors"
	"fmt"
	"sync"

	"github.com/peter-kozarec/replay/pkg/utility"
)

var (
	ErrUnknownCorrelation = errors.New("unknown correlation id")
	ErrTypeMismatch       = errors.New("future type mismatch")
)

type rejecter interface {
	Reject(err error) bool
}

// Table maps correlation ids to outstanding futures so a response can be
// routed to the caller that issued the request.
type Table struct {
	seq     utility.Sequence
	pending sync.Map
}

func NewTable() *Table {
	return &Table{}
}

// Register stores f under a fresh correlation id.
func Register[T any](t *Table, f *Future[T]) utility.CorrelationID {
	id := t.seq.Next()
	t.pending.Store(id, f)
	return id
}

// Settle resolves (err == nil) or rejects the future registered under id and
// removes it from the table.
func Settle[T any](t *Table, id utility.CorrelationID, value T, err error) error {
	entry, ok := t.pending.LoadAndDelete(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCorrelation, id)
	}
	f, ok := entry.(*Future[T])
	if !ok {
		entry.(rejecter).Reject(fmt.Errorf("%w: %T", ErrTypeMismatch, entry))
		return fmt.Errorf("%w: %d", ErrTypeMismatch, id)
	}
	if err != nil {
		f.Reject(err)
	} else {
		f.Resolve(value)
	}
	return nil
}

// Reject fails the future registered under id regardless of its type.
func (t *Table) Reject(id utility.CorrelationID, err error) error {
	entry, ok := t.pending.LoadAndDelete(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCorrelation, id)
	}
	entry.(rejecter).Reject(err)
	return nil
}

// RejectAll fails every outstanding future and empties the table. It returns
// how many futures were rejected.
func (t *Table) RejectAll(err error) int {
	n := 0
	t.pending.Range(func(key, value any) bool {
		if _, ok := t.pending.LoadAndDelete(key); ok {
			value.(rejecter).Reject(err)
			n++
		}
		return true
	})
	return n
}

func (t *Table) Len() int {
	n := 0
	t.pending.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
