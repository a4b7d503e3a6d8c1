package domain

import (
	"strings"
	"time"
)

// JobStatus enumerates job lifecycle states as reported by the provider queue.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusInQueue    JobStatus = "IN_QUEUE"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// rank orders statuses along the lifecycle. Updates may only move a job
// forward, so a late IN_QUEUE notification can never undo IN_PROGRESS.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusInQueue:
		return 1
	case JobStatusInProgress:
		return 2
	case JobStatusCompleted, JobStatusFailed:
		return 3
	default:
		return -1
	}
}

// ParseJobStatus normalizes a provider-reported status string.
func ParseJobStatus(raw string) (JobStatus, bool) {
	switch JobStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case JobStatusPending:
		return JobStatusPending, true
	case JobStatusInQueue:
		return JobStatusInQueue, true
	case JobStatusInProgress:
		return JobStatusInProgress, true
	case JobStatusCompleted:
		return JobStatusCompleted, true
	case JobStatusFailed:
		return JobStatusFailed, true
	default:
		return "", false
	}
}

// Job tracks the lifecycle of one edit request submitted to the provider
// queue. RequestID is assigned by the provider and is the primary key.
type Job struct {
	RequestID string
	Status    JobStatus
	Prompt    string
	ResultURL string
	Error     string
	Logs      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobUpdate is a partial mutation applied through the store. Nil fields are
// left untouched; AppendLogs is appended to the existing log lines.
type JobUpdate struct {
	Status     *JobStatus
	ResultURL  *string
	Error      *string
	AppendLogs []string
}

// MergeUpdate applies upd to job in place and reports whether the record
// changed. It enforces the lifecycle invariants: a terminal record is never
// modified, status moves only forward, ResultURL is set exactly when the job
// completes and Error exactly when it fails.
func MergeUpdate(job *Job, upd JobUpdate, now time.Time) bool {
	if job.Status.Terminal() {
		return false
	}

	changed := false
	if upd.Status != nil && *upd.Status != job.Status && upd.Status.rank() > job.Status.rank() {
		job.Status = *upd.Status
		changed = true
		switch job.Status {
		case JobStatusCompleted:
			if upd.ResultURL != nil {
				job.ResultURL = *upd.ResultURL
			}
			job.Error = ""
		case JobStatusFailed:
			if upd.Error != nil {
				job.Error = *upd.Error
			}
			job.ResultURL = ""
		}
	}
	if len(upd.AppendLogs) > 0 {
		job.Logs = append(job.Logs, upd.AppendLogs...)
		changed = true
	}
	if changed {
		job.UpdatedAt = now
	}
	return changed
}
