package usecases

import (
	"sync"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/pkg/metrics"
)

// Broadcaster fans confirmed transitions out to in-process listeners.
// Publish never blocks: a listener whose buffer is full misses the event.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan domain.ConfirmedTransitionEvent
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan domain.ConfirmedTransitionEvent)}
}

// Subscribe registers a listener with the given buffer size. The returned
// cancel func unsubscribes and closes the channel; it is safe to call twice.
func (b *Broadcaster) Subscribe(buffer int) (<-chan domain.ConfirmedTransitionEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.ConfirmedTransitionEvent, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every listener that has room for it.
func (b *Broadcaster) Publish(ev domain.ConfirmedTransitionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			metrics.BroadcastDropped.Inc()
		}
	}
}

// Listeners returns the number of active subscriptions.
func (b *Broadcaster) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every listener channel. Later subscriptions get a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
