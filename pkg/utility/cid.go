package utility

import "sync/atomic"

type CorrelationID = uint64

// Sequence hands out strictly increasing ids starting at 1. It is safe for
// concurrent use.
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) Next() CorrelationID {
	return s.n.Add(1)
}

func (s *Sequence) Last() CorrelationID {
	return s.n.Load()
}
