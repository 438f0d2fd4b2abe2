package query

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is one observer's registration on a per-key signal bus. The
// wake channel carries no payload: on a signal the subscriber re-reads the
// store (cache-sync) or re-runs its fetch routine (invalidation) itself.
type Subscription struct {
	key Key
	id  string
	ch  chan struct{}
	bus *signalBus

	once sync.Once
}

// Signal returns the wake channel. It is closed when the subscription is torn
// down, so receivers should check the second return value of the receive.
// Signals may coalesce while the subscriber is not draining the channel; a
// wake means "at least one publish happened since you last looked".
func (s *Subscription) Signal() <-chan struct{} {
	return s.ch
}

// Unsubscribe removes the registration from the bus and closes the wake
// channel. It is safe to call more than once. Dropping a Subscription without
// calling Unsubscribe leaks the registration.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.drop(s.key, s.id)
		close(s.ch)
	})
}

// signalBus is a per-key broadcast primitive. A Client owns two independent
// instances: one for cache-sync signals and one for invalidation signals.
type signalBus struct {
	mu   sync.Mutex
	subs map[Key]map[string]chan struct{}
}

func newSignalBus() *signalBus {
	return &signalBus{subs: make(map[Key]map[string]chan struct{})}
}

// subscribe registers a new wake channel for key. Each registration gets a
// unique id so it can be removed independently of other subscribers on the
// same key; ids are never reused.
func (b *signalBus) subscribe(key Key) *Subscription {
	sub := &Subscription{
		key: key,
		id:  uuid.NewString(),
		ch:  make(chan struct{}, 1),
		bus: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	keySubs, ok := b.subs[key]
	if !ok {
		keySubs = make(map[string]chan struct{})
		b.subs[key] = keySubs
	}
	keySubs[sub.id] = sub.ch
	return sub
}

// publish wakes every subscriber currently registered for key. It is
// fire-and-forget: a subscriber that already has a pending wake is not
// signalled again, and subscribers registering later do not see past
// publishes.
func (b *signalBus) publish(key Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (b *signalBus) drop(key Key, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keySubs, ok := b.subs[key]
	if !ok {
		return
	}
	delete(keySubs, id)
	if len(keySubs) == 0 {
		delete(b.subs, key)
	}
}

// subscriberCount reports the number of live registrations for key.
func (b *signalBus) subscriberCount(key Key) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[key])
}
