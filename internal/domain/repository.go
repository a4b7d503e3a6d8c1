package domain

import "context"

// JobRepository defines persistence for job records. Apply serializes
// concurrent updates per request id so the terminal-state invariant holds
// when a webhook and a poll race on the same job.
type JobRepository interface {
	// Create inserts a new record. Exactly one record may exist per request id.
	Create(ctx context.Context, job *Job) error
	// Get returns the record for requestID, or ErrNotFound.
	Get(ctx context.Context, requestID string) (*Job, error)
	// Apply merges upd into the record via MergeUpdate and returns the
	// resulting record along with whether anything changed. An update against
	// a terminal record is a silent no-op, never an error.
	Apply(ctx context.Context, requestID string, upd JobUpdate) (*Job, bool, error)
}
