// Package dispatch provides in-process fan-out of incident lifecycle
// events. Delivery is best-effort and non-durable: events published with no
// subscribers are discarded and there is no replay.
package dispatch

import (
	"log/slog"
	"sync"

	"github.com/opsdeck/helpdesk/internal/domain"
)

// TopicAll receives every event regardless of incident, for dashboards and
// other broadcast consumers.
const TopicAll = "incident:*"

// Topic returns the per-incident topic name.
func Topic(incidentID string) string {
	return "incident:" + incidentID
}

// Listener consumes delivered events. A panicking listener is recovered and
// logged; it cannot affect other listeners or the publisher.
type Listener func(domain.LifecycleEvent)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	topic      string
	ch         chan domain.LifecycleEvent
	dispatcher *Dispatcher
	once       sync.Once
}

// Topic returns the topic this subscription is attached to.
func (s *Subscription) Topic() string { return s.topic }

// Dispatcher fans published events out to subscribers. Each subscriber owns
// a bounded buffer drained by its own goroutine, so a slow listener cannot
// stall other listeners or the publisher; when the buffer overflows the
// event is dropped for that listener and counted.
type Dispatcher struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	bufSize int
	closed  bool
	wg      sync.WaitGroup
}

// New creates a dispatcher. bufSize is the per-listener buffer; values
// below 1 fall back to 16.
func New(bufSize int) *Dispatcher {
	if bufSize < 1 {
		bufSize = 16
	}
	return &Dispatcher{
		subs:    make(map[*Subscription]struct{}),
		bufSize: bufSize,
	}
}

// Subscribe attaches a listener to a topic: either Topic(id) for one
// incident or TopicAll for everything. Delivery for a given incident
// follows publish order.
func (d *Dispatcher) Subscribe(topic string, fn Listener) *Subscription {
	sub := &Subscription{
		topic:      topic,
		ch:         make(chan domain.LifecycleEvent, d.bufSize),
		dispatcher: d,
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		close(sub.ch)
		return sub
	}
	d.subs[sub] = struct{}{}
	d.mu.Unlock()

	recordSubscribed()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for ev := range sub.ch {
			deliver(fn, ev)
		}
	}()

	return sub
}

// deliver invokes the listener, recovering panics so one listener cannot
// prevent delivery to others.
func deliver(fn Listener, ev domain.LifecycleEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event listener panicked",
				"incident_id", ev.IncidentID,
				"event_type", ev.Type,
				"panic", r,
			)
			recordListenerPanic()
		}
	}()
	fn(ev)
}

// Unsubscribe detaches a subscription. It is idempotent: unsubscribing
// twice is a no-op, not an error.
func (d *Dispatcher) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		d.mu.Lock()
		_, attached := d.subs[sub]
		delete(d.subs, sub)
		d.mu.Unlock()
		if attached {
			close(sub.ch)
			recordUnsubscribed()
		}
	})
}

// Publish delivers the event to every listener on the event's incident
// topic and every wildcard listener. It never blocks on a full listener
// buffer: the event is dropped for that listener instead.
func (d *Dispatcher) Publish(ev domain.LifecycleEvent) {
	topic := Topic(ev.IncidentID)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	matched := make([]*Subscription, 0, len(d.subs))
	for sub := range d.subs {
		if sub.topic == topic || sub.topic == TopicAll {
			matched = append(matched, sub)
		}
	}
	// Sending under the lock keeps per-incident delivery in publish order:
	// two publishes for the same incident cannot interleave their sends.
	for _, sub := range matched {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("listener buffer full, dropping event",
				"topic", sub.topic,
				"incident_id", ev.IncidentID,
				"event_type", ev.Type,
			)
			recordDropped(string(ev.Type))
		}
	}
	d.mu.Unlock()

	recordPublished(string(ev.Type))
}

// Close detaches all subscriptions and waits for in-flight deliveries.
// Publish and Subscribe become no-ops afterwards.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for sub := range d.subs {
		sub.once.Do(func() {}) // mark unsubscribed so later calls are no-ops
		close(sub.ch)
		delete(d.subs, sub)
		recordUnsubscribed()
	}
	d.mu.Unlock()

	d.wg.Wait()
}
