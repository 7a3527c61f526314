package stream

import (
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 256

const (
	FeedDebug    = "debug"
	FeedRegistry = "registry"
)

// snapshotFeeds carry full state in every event. The latest one is replayed
// to each new subscriber.
var snapshotFeeds = map[string]bool{FeedRegistry: true}

// Event is one diagnostic record. Payload is a JSON document.
type Event struct {
	Feed    string
	Payload string
}

type subscriber struct {
	ch    chan Event
	feeds map[string]bool
}

func (s subscriber) wants(feed string) bool {
	return s.feeds == nil || s.feeds[feed]
}

// Broker fans out diagnostic events to stream clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]subscriber
	latest      map[string]Event
	nextID      atomic.Int64
	dropped     atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]subscriber),
		latest:      make(map[string]Event),
	}
}

// Subscribe registers a client for the given feeds, or all feeds when none
// are named. The channel is buffered; slow consumers have events dropped.
func (b *Broker) Subscribe(feeds ...string) (int64, <-chan Event) {
	sub := subscriber{ch: make(chan Event, subscriberBufSize)}
	if len(feeds) > 0 {
		sub.feeds = make(map[string]bool, len(feeds))
		for _, f := range feeds {
			sub.feeds[f] = true
		}
	}

	id := b.nextID.Add(1)
	b.mu.Lock()
	for feed, evt := range b.latest {
		if sub.wants(feed) {
			sub.ch <- evt
		}
	}
	b.subscribers[id] = sub
	b.mu.Unlock()
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Publish never blocks.
func (b *Broker) Publish(evt Event) {
	if snapshotFeeds[evt.Feed] {
		b.mu.Lock()
		b.latest[evt.Feed] = evt
		b.mu.Unlock()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if !sub.wants(evt.Feed) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a client was full.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
