package utility

import (
	"fmt"

	"github.com/google/uuid"
)

type SessionID = uuid.UUID

// NewSessionID returns a time ordered identifier for one simulated connection.
func NewSessionID() SessionID {
	return uuid.Must(uuid.NewV7())
}

// FormatExecID renders an execution id in the broker's dotted style, e.g.
// "0190f3c2.00000007". The prefix is taken from the session so ids from
// different connections never collide.
func FormatExecID(session SessionID, seq uint64) string {
	return fmt.Sprintf("%08x.%08d", session.ID(), seq)
}
