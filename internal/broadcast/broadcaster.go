// Package broadcast fans gateway events out to every attached subscriber.
//
// Publish never blocks: each subscription owns a bounded queue and, when a
// subscriber falls behind, the oldest queued event is dropped to make room.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"devicegateway/internal/metrics"
)

// DefaultQueueSize is the per-subscription queue length used when none is configured.
const DefaultQueueSize = 64

// Publisher is the side of the broadcaster device sessions see.
type Publisher interface {
	Publish(Event)
}

// Subscription is one attached consumer. Read events from Events until the
// channel is closed by Detach or Close.
type Subscription struct {
	id      string
	name    string
	queue   chan Event
	dropped atomic.Uint64
}

func (s *Subscription) ID() string   { return s.id }
func (s *Subscription) Name() string { return s.name }

// Events returns the subscription queue.
func (s *Subscription) Events() <-chan Event {
	return s.queue
}

// Dropped reports how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// offer enqueues e, evicting the oldest events while the queue is full.
// Callers hold the broadcaster read lock so the queue cannot be closed underneath.
func (s *Subscription) offer(e Event) {
	for {
		select {
		case s.queue <- e:
			return
		default:
		}
		select {
		case <-s.queue:
			s.dropped.Add(1)
			metrics.RecordEventDropped(s.name)
		default:
		}
	}
}

type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[string]*Subscription
	queueSize int
	closed    bool
	log       *logrus.Entry
}

func NewBroadcaster(queueSize int, logger *logrus.Entry) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Broadcaster{
		subs:      make(map[string]*Subscription),
		queueSize: queueSize,
		log:       logger.WithField("component", "broadcaster"),
	}
}

// Attach registers a new subscriber. Attaching to a closed broadcaster returns
// a subscription whose channel is already closed.
func (b *Broadcaster) Attach(name string) *Subscription {
	sub := &Subscription{
		id:    uuid.New().String(),
		name:  name,
		queue: make(chan Event, b.queueSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.queue)
		return sub
	}
	b.subs[sub.id] = sub
	metrics.SetSubscribers(len(b.subs))
	b.log.WithFields(logrus.Fields{"subscriber": name, "id": sub.id}).Debug("Subscriber attached")
	return sub
}

// Detach removes sub and closes its queue. Detaching twice is a no-op.
func (b *Broadcaster) Detach(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.queue)
	metrics.SetSubscribers(len(b.subs))
	b.log.WithFields(logrus.Fields{
		"subscriber": sub.name,
		"id":         sub.id,
		"dropped":    sub.Dropped(),
	}).Debug("Subscriber detached")
}

// Publish hands e to every currently attached subscriber.
func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	metrics.RecordEventPublished(string(e.Kind))
	for _, sub := range b.subs {
		sub.offer(e)
	}
}

// Count returns the number of attached subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches every subscriber; later publishes are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.queue)
	}
	metrics.SetSubscribers(0)
}
