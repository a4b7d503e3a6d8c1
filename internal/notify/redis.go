package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus on Redis pub/sub so waiters see updates applied by
// any process instance, not just the one that received the webhook.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus creates a bus from a Redis URL.
func NewRedisBus(redisURL string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisBus{client: redis.NewClient(opts)}, nil
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

func channelFor(requestID string) string {
	return "jobs:events:" + requestID
}

func (b *RedisBus) Publish(ctx context.Context, event JobEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channelFor(event.RequestID), payload).Err()
}

// Subscribe opens a pub/sub channel for one request id. It blocks until Redis
// confirms the subscription, so a caller that re-checks the store afterwards
// cannot miss an update published in between.
func (b *RedisBus) Subscribe(ctx context.Context, requestID string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channelFor(requestID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	sub := &redisSubscription{ps: ps, events: make(chan JobEvent, subscriberBuffer)}
	go sub.forward()
	return sub, nil
}

type redisSubscription struct {
	ps     *redis.PubSub
	events chan JobEvent
	once   sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.events)
	for msg := range s.ps.Channel() {
		var event JobEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			// Foreign payload on the channel; the waiter's re-check timer
			// covers anything we cannot decode.
			continue
		}
		select {
		case s.events <- event:
		default:
		}
	}
}

func (s *redisSubscription) Events() <-chan JobEvent { return s.events }

func (s *redisSubscription) Close() {
	s.once.Do(func() { _ = s.ps.Close() })
}

var _ Bus = (*RedisBus)(nil)
