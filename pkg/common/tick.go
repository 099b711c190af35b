package common

import (
	"time"

	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

type BidAsk struct {
	Ticker    string      `json:"ticker"`
	TimeStamp time.Time   `json:"ts"`
	Bid       fixed.Point `json:"bid"`
	Ask       fixed.Point `json:"ask"`
	BidSize   fixed.Point `json:"bid_size"`
	AskSize   fixed.Point `json:"ask_size"`
}

func (b BidAsk) AvailableAt() time.Time { return b.TimeStamp }

func (b BidAsk) Mid() fixed.Point {
	return b.Bid.Add(b.Ask).DivInt(2)
}

type Last struct {
	Ticker    string      `json:"ticker"`
	TimeStamp time.Time   `json:"ts"`
	Price     fixed.Point `json:"price"`
	Size      fixed.Point `json:"size"`
	Exchange  string      `json:"exchange,omitempty"`
}

func (l Last) AvailableAt() time.Time { return l.TimeStamp }
