package feed

import (
	"sync"

	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/observability"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one row-level change on the rides table. Ride is a snapshot
// taken after the change applied (the last known record for deletes).
type Event struct {
	Op   Op          `json:"op"`
	Ride models.Ride `json:"ride"`
}

// Filter selects which events a subscriber receives.
type Filter func(Event) bool

// All passes every ride event. Online drivers subscribe with this and
// filter locally for pending offers.
func All() Filter { return func(Event) bool { return true } }

// ByRide passes only events for a single ride id. Passengers track their
// own ride this way.
func ByRide(id string) Filter {
	return func(ev Event) bool { return ev.Ride.ID == id }
}

const defaultBuffer = 64

// Broker fans ride change events out to subscribers. Delivery is ordered
// per subscriber in publish order. A subscriber that cannot keep up loses
// events rather than stalling publishers; consumers treat the feed as a
// hint to re-sync, not as the source of truth.
type Broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{}), buffer: defaultBuffer}
}

type Subscription struct {
	C <-chan Event

	ch     chan Event
	filter Filter
	broker *Broker
	once   sync.Once
}

// Subscribe registers a new subscriber. Close the subscription to
// release it; its channel is closed at that point.
func (b *Broker) Subscribe(f Filter) *Subscription {
	if f == nil {
		f = All()
	}
	s := &Subscription{ch: make(chan Event, b.buffer), filter: f, broker: b}
	s.C = s.ch
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	})
}

// Publish delivers ev to every matching subscriber. Sends never block:
// a full subscriber buffer drops the event and counts it.
func (b *Broker) Publish(ev Event) {
	observability.FeedEventsTotal.WithLabelValues(string(ev.Op)).Inc()
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if !s.filter(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			observability.FeedDroppedTotal.Inc()
		}
	}
}
