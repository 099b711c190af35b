package common

import (
	"time"

	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

// BaseBarLength is the cadence of the recorded bars every other length is
// derived from.
const BaseBarLength = 5 * time.Second

type Bar struct {
	Ticker    string        `json:"ticker"`
	TimeStamp time.Time     `json:"ts"`
	Length    time.Duration `json:"length"`
	Open      fixed.Point   `json:"open"`
	High      fixed.Point   `json:"high"`
	Low       fixed.Point   `json:"low"`
	Close     fixed.Point   `json:"close"`
	Volume    fixed.Point   `json:"volume"`
}

// AvailableAt is the instant the bar closes; a replay must not reveal it
// earlier.
func (b Bar) AvailableAt() time.Time { return b.TimeStamp.Add(b.Length) }
