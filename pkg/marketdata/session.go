package marketdata

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const (
	sessionOpen  = 9*time.Hour + 30*time.Minute
	sessionClose = 16 * time.Hour
)

var newYork = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Session is one regular trading session clipped to a requested range.
type Session struct {
	Open  time.Time
	Close time.Time
}

// Sessions returns the regular US equity sessions (Mon-Fri 09:30-16:00
// America/New_York) that overlap [from, to), clipped to the range.
// Exchange holidays are not modelled.
func Sessions(from, to time.Time) []Session {
	if !to.After(from) {
		return nil
	}

	var sessions []Session
	day := from.In(newYork)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, newYork)
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		open := day.Add(sessionOpen)
		closing := day.Add(sessionClose)
		if open.Before(from) {
			open = from
		}
		if closing.After(to) {
			closing = to
		}
		if closing.Sub(open) >= time.Minute {
			sessions = append(sessions, Session{Open: open, Close: closing})
		}
	}
	return sessions
}

// ValidateSession fails with ErrMarketClosed when [from, to) does not contain
// a single regular-hours minute.
func ValidateSession(from, to time.Time) error {
	if !to.After(from) {
		return fmt.Errorf("empty range %s..%s: %w", from.Format(time.RFC3339), to.Format(time.RFC3339), ErrMarketClosed)
	}
	if len(Sessions(from, to)) == 0 {
		return fmt.Errorf("no regular session in %s..%s: %w", from.Format(time.RFC3339), to.Format(time.RFC3339), ErrMarketClosed)
	}
	return nil
}

// IsRegularHours reports whether t falls inside a regular session.
func IsRegularHours(t time.Time) bool {
	local := t.In(newYork)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, newYork)
	offset := local.Sub(midnight)
	return offset >= sessionOpen && offset < sessionClose
}
