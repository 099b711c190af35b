package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/replay/pkg/bus"
	"github.com/peter-kozarec/replay/pkg/common"
	"github.com/peter-kozarec/replay/pkg/marketdata"
)

var (
	ErrUnknownSubscription = errors.New("unknown subscription")
	ErrInvalidBarLength    = errors.New("bar length must be a positive multiple of 5s")
	ErrUnknownKind         = errors.New("unknown event kind")
)

type Kind int

const (
	KindBar Kind = iota
	KindBidAsk
	KindLast
	KindPosition
	KindPnL
	KindAccountValue
	KindExecution
	KindOrderStatus
	KindCommissionReport
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindBar:
		return "bar"
	case KindBidAsk:
		return "bid_ask"
	case KindLast:
		return "last"
	case KindPosition:
		return "position"
	case KindPnL:
		return "pnl"
	case KindAccountValue:
		return "account_value"
	case KindExecution:
		return "execution"
	case KindOrderStatus:
		return "order_status"
	case KindCommissionReport:
		return "commission_report"
	case KindError:
		return "error"
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(name string) (Kind, error) {
	for kind := KindBar; kind <= KindError; kind++ {
		if kind.String() == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrUnknownKind)
}

// Key identifies a stream. Ticker is empty for account wide streams, Length
// is only set for bars.
type Key struct {
	Ticker string
	Kind   Kind
	Length time.Duration
}

func (k Key) String() string {
	if k.Length > 0 {
		return fmt.Sprintf("%s:%s:%s", k.Ticker, k.Kind, k.Length)
	}
	if k.Ticker == "" {
		return k.Kind.String()
	}
	return fmt.Sprintf("%s:%s", k.Ticker, k.Kind)
}

func BarKey(ticker string, length time.Duration) Key {
	return Key{Ticker: ticker, Kind: KindBar, Length: length}
}

func TickerKey(ticker string, kind Kind) Key {
	return Key{Ticker: ticker, Kind: kind}
}

func GlobalKey(kind Kind) Key {
	return Key{Kind: kind}
}

type SubscriptionId = int64

type observer struct {
	id SubscriptionId
	fn func(any)
}

// Tap sees every published event, subscribed or not.
type Tap func(key Key, event any)

// Dispatcher fans events out to the observers of a key. Subscriptions are
// changed only by the request worker; callbacks run only on the response
// queue.
type Dispatcher struct {
	ctx       context.Context
	logger    *zap.Logger
	responses *bus.Queue

	lastId    SubscriptionId
	observers map[Key][]observer
	keys      map[SubscriptionId]Key
	windows   map[string][]*marketdata.BarWindow
	taps      []Tap
}

// NewDispatcher publishes onto responses until ctx ends. Publishing blocks
// while the queue is full.
func NewDispatcher(ctx context.Context, responses *bus.Queue, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		ctx:       ctx,
		logger:    logger,
		responses: responses,
		observers: make(map[Key][]observer),
		keys:      make(map[SubscriptionId]Key),
		windows:   make(map[string][]*marketdata.BarWindow),
	}
}

// Subscribe registers fn for key and returns its subscription id.
func Subscribe[T any](d *Dispatcher, key Key, fn func(T)) (SubscriptionId, error) {
	if fn == nil {
		return 0, errors.New("nil observer")
	}
	if key.Kind == KindBar {
		if key.Length <= 0 || key.Length%common.BaseBarLength != 0 {
			return 0, fmt.Errorf("%s: %w", key.Length, ErrInvalidBarLength)
		}
		if key.Length > common.BaseBarLength {
			d.ensureWindow(key.Ticker, key.Length)
		}
	}

	d.lastId++
	id := d.lastId
	d.observers[key] = append(d.observers[key], observer{
		id: id,
		fn: func(event any) {
			if typed, ok := event.(T); ok {
				fn(typed)
			}
		},
	})
	d.keys[id] = key
	d.logger.Debug("subscribed", zap.Int64("subscription", id), zap.Stringer("key", key))
	return id, nil
}

// Unsubscribe removes a subscription. last reports whether the key lost its
// final observer.
func (d *Dispatcher) Unsubscribe(id SubscriptionId) (key Key, last bool, err error) {
	key, ok := d.keys[id]
	if !ok {
		return Key{}, false, fmt.Errorf("subscription %d: %w", id, ErrUnknownSubscription)
	}
	delete(d.keys, id)

	list := d.observers[key]
	for i, o := range list {
		if o.id == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) > 0 {
		d.observers[key] = list
		return key, false, nil
	}

	delete(d.observers, key)
	if key.Kind == KindBar && key.Length > common.BaseBarLength {
		d.dropWindow(key.Ticker, key.Length)
	}
	d.logger.Debug("stream released", zap.Stringer("key", key))
	return key, true, nil
}

// AddTap registers a sink for every published event.
func (d *Dispatcher) AddTap(tap Tap) {
	d.taps = append(d.taps, tap)
}

func (d *Dispatcher) HasObservers(key Key) bool {
	return len(d.observers[key]) > 0
}

// Needs reports whether any stream of ticker still has observers.
func (d *Dispatcher) Needs(ticker string) bool {
	for key := range d.observers {
		if key.Ticker == ticker {
			return true
		}
	}
	return false
}

// Tickers returns every ticker with at least one observed stream.
func (d *Dispatcher) Tickers() []string {
	seen := make(map[string]struct{})
	for key := range d.observers {
		if key.Ticker != "" {
			seen[key.Ticker] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for ticker := range seen {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

// Publish posts one response action delivering event to the observers of key
// as registered right now.
func Publish[T any](d *Dispatcher, key Key, event T) {
	list := d.observers[key]
	if len(list) == 0 && len(d.taps) == 0 {
		return
	}
	snapshot := append([]observer(nil), list...)
	taps := d.taps

	err := d.responses.PostWait(d.ctx, func() {
		for _, tap := range taps {
			d.invoke(key, 0, func(e any) { tap(key, e) }, event)
		}
		for _, o := range snapshot {
			d.invoke(key, o.id, o.fn, event)
		}
	})
	if err != nil {
		d.logger.Debug("event dropped at disconnect", zap.Stringer("key", key), zap.Error(err))
	}
}

func (d *Dispatcher) invoke(key Key, id SubscriptionId, fn func(any), event any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("observer panicked",
				zap.Stringer("key", key),
				zap.Int64("subscription", id),
				zap.Any("panic", r))
		}
	}()
	fn(event)
}

// PublishBar publishes a base bar and every derived bar it completes.
func (d *Dispatcher) PublishBar(bar common.Bar) {
	Publish(d, BarKey(bar.Ticker, bar.Length), bar)
	for _, w := range d.windows[bar.Ticker] {
		for _, derived := range w.Add(bar) {
			Publish(d, BarKey(bar.Ticker, w.Length()), derived)
		}
	}
}

func (d *Dispatcher) ensureWindow(ticker string, length time.Duration) {
	for _, w := range d.windows[ticker] {
		if w.Length() == length {
			return
		}
	}
	list := append(d.windows[ticker], marketdata.NewBarWindow(length))
	sort.Slice(list, func(i, j int) bool { return list[i].Length() < list[j].Length() })
	d.windows[ticker] = list
}

func (d *Dispatcher) dropWindow(ticker string, length time.Duration) {
	list := d.windows[ticker]
	for i, w := range list {
		if w.Length() == length {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(d.windows, ticker)
		return
	}
	d.windows[ticker] = list
}

// ResetWindows drops partially built derived bars.
func (d *Dispatcher) ResetWindows() {
	for _, list := range d.windows {
		for _, w := range list {
			w.Reset()
		}
	}
}

// Clear removes every subscription. Taps stay registered.
func (d *Dispatcher) Clear() {
	d.observers = make(map[Key][]observer)
	d.keys = make(map[SubscriptionId]Key)
	d.windows = make(map[string][]*marketdata.BarWindow)
}
