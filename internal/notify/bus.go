package notify

import (
	"context"

	"server/internal/domain"
)

// JobEvent is the change notification fanned out to waiters after a store
// update is applied.
type JobEvent struct {
	RequestID string           `json:"request_id"`
	Status    domain.JobStatus `json:"status"`
	ResultURL string           `json:"result_url,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Subscription is a live event feed for one request id. Close is idempotent
// and releases the feed; Events is closed afterwards.
type Subscription interface {
	Events() <-chan JobEvent
	Close()
}

// Bus fans job change events out to any number of concurrent subscribers.
// Subscriptions are per request id and independent of each other.
type Bus interface {
	Publish(ctx context.Context, event JobEvent) error
	Subscribe(ctx context.Context, requestID string) (Subscription, error)
}
