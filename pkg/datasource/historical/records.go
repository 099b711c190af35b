package historical

import (
	"time"

	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/utility/fixed"
)

// Prices and sizes are stored as integer millionths.
const priceScale = 6

type record interface {
	BinaryQuote | BinaryTrade | BinaryBar
	stamp() int64
}

type BinaryQuote struct {
	TimeStamp int64
	Bid       int64
	Ask       int64
	BidSize   int64
	AskSize   int64
}

type BinaryTrade struct {
	TimeStamp int64
	Price     int64
	Size      int64
}

type BinaryBar struct {
	TimeStamp int64
	Length    int64
	Open      int64
	High      int64
	Low       int64
	Close     int64
	Volume    int64
}

func (q BinaryQuote) stamp() int64 { return q.TimeStamp }
func (t BinaryTrade) stamp() int64 { return t.TimeStamp }
func (b BinaryBar) stamp() int64   { return b.TimeStamp }

func units(p fixed.Point) int64 { return p.Units(priceScale) }
func point(u int64) fixed.Point  { return fixed.FromInt64(u, priceScale) }

func FromBidAsk(q common.BidAsk) BinaryQuote {
	return BinaryQuote{
		TimeStamp: q.TimeStamp.UnixNano(),
		Bid:       units(q.Bid),
		Ask:       units(q.Ask),
		BidSize:   units(q.BidSize),
		AskSize:   units(q.AskSize),
	}
}

func (q BinaryQuote) ToBidAsk(ticker string) common.BidAsk {
	return common.BidAsk{
		Ticker:    ticker,
		TimeStamp: time.Unix(0, q.TimeStamp).UTC(),
		Bid:       point(q.Bid),
		Ask:       point(q.Ask),
		BidSize:   point(q.BidSize),
		AskSize:   point(q.AskSize),
	}
}

func FromLast(t common.Last) BinaryTrade {
	return BinaryTrade{
		TimeStamp: t.TimeStamp.UnixNano(),
		Price:     units(t.Price),
		Size:      units(t.Size),
	}
}

func (t BinaryTrade) ToLast(ticker string) common.Last {
	return common.Last{
		Ticker:    ticker,
		TimeStamp: time.Unix(0, t.TimeStamp).UTC(),
		Price:     point(t.Price),
		Size:      point(t.Size),
	}
}

func FromBar(b common.Bar) BinaryBar {
	return BinaryBar{
		TimeStamp: b.TimeStamp.UnixNano(),
		Length:    int64(b.Length),
		Open:      units(b.Open),
		High:      units(b.High),
		Low:       units(b.Low),
		Close:     units(b.Close),
		Volume:    units(b.Volume),
	}
}

func (b BinaryBar) ToBar(ticker string) common.Bar {
	return common.Bar{
		Ticker:    ticker,
		TimeStamp: time.Unix(0, b.TimeStamp).UTC(),
		Length:    time.Duration(b.Length),
		Open:      point(b.Open),
		High:      point(b.High),
		Low:       point(b.Low),
		Close:     point(b.Close),
		Volume:    point(b.Volume),
	}
}
