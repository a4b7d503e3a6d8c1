package notify

import (
	"context"
	"sync"
)

const subscriberBuffer = 8

// MemoryBus is an in-process Bus for single-instance deployments and tests.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]*memorySubscription
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySubscription)}
}

type memorySubscription struct {
	bus       *MemoryBus
	requestID string
	events    chan JobEvent
	once      sync.Once
}

func (s *memorySubscription) Events() <-chan JobEvent { return s.events }

func (s *memorySubscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.events)
	})
}

// Publish delivers the event to every subscriber of its request id. A full
// subscriber channel is skipped; waiters re-check the store on a timer, so a
// dropped event delays resolution rather than losing it.
func (b *MemoryBus) Publish(_ context.Context, event JobEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[event.RequestID] {
		select {
		case sub.events <- event:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, requestID string) (Subscription, error) {
	sub := &memorySubscription{
		bus:       b,
		requestID: requestID,
		events:    make(chan JobEvent, subscriberBuffer),
	}
	b.mu.Lock()
	b.subs[requestID] = append(b.subs[requestID], sub)
	b.mu.Unlock()
	return sub, nil
}

func (b *MemoryBus) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[sub.requestID]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.requestID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.requestID]) == 0 {
		delete(b.subs, sub.requestID)
	}
}

var _ Bus = (*MemoryBus)(nil)
