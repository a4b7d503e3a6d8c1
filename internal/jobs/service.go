package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/notify"
	"server/internal/prompt"
	"server/internal/providers/fal"
)

// MockRequestID is the sentinel identifier returned when no provider
// credential is configured, so the submit/status/wait flows stay exercisable
// without a live external dependency.
const MockRequestID = "mock-request-id"

// Queue is the slice of the provider client the service depends on.
type Queue interface {
	Submit(ctx context.Context, in fal.SubmitInput) (string, error)
	Status(ctx context.Context, requestID string, withLogs bool) (fal.QueueStatus, error)
	Result(ctx context.Context, requestID string) (fal.Result, error)
}

// Service reconciles the three sources of truth for a job — the provider
// queue, webhook pushes and the durable record — into one consistent status.
type Service struct {
	repo       domain.JobRepository
	bus        notify.Bus
	queue      Queue
	logger     zerolog.Logger
	webhookURL string
	configured bool
}

type ServiceOptions struct {
	Repo   domain.JobRepository
	Bus    notify.Bus
	Queue  Queue
	Logger zerolog.Logger
	// WebhookURL, when set, is handed to the provider at submission so it
	// pushes completion instead of relying on polling alone.
	WebhookURL string
	// Configured reports whether a provider credential is present. When
	// false, submissions short-circuit to the mock response.
	Configured bool
}

func NewService(opts ServiceOptions) *Service {
	return &Service{
		repo:       opts.Repo,
		bus:        opts.Bus,
		queue:      opts.Queue,
		logger:     opts.Logger,
		webhookURL: opts.WebhookURL,
		configured: opts.Configured,
	}
}

type SubmitRequest struct {
	Image     string
	Prompt    string
	Style     string
	Intensity string
}

type SubmitResult struct {
	RequestID      string
	Mock           bool
	WebhookEnabled bool
}

// Submit forwards the edit request to the provider queue and creates the
// PENDING job record. The request id is obtained before returning so the
// caller can immediately wait on it.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if strings.TrimSpace(req.Image) == "" {
		return SubmitResult{}, domain.ErrImageRequired
	}
	finalPrompt := strings.TrimSpace(req.Prompt)
	if finalPrompt == "" {
		finalPrompt = prompt.Build(req.Style, req.Intensity)
	}
	if !s.configured {
		s.logger.Warn().Msg("provider credential missing, returning mock submission")
		return SubmitResult{RequestID: MockRequestID, Mock: true}, nil
	}

	s.logger.Info().
		Str("prompt", finalPrompt).
		Bool("webhook", s.webhookURL != "").
		Msg("submitting job to provider queue")

	requestID, err := s.queue.Submit(ctx, fal.SubmitInput{
		Prompt:     finalPrompt,
		ImageURL:   req.Image,
		WebhookURL: s.webhookURL,
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		RequestID: requestID,
		Status:    domain.JobStatusPending,
		Prompt:    finalPrompt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		// The provider already accepted the job; surface the failure rather
		// than silently dropping an orphaned external job.
		s.logger.Error().Err(err).Str("request_id", requestID).Msg("job record creation failed")
		return SubmitResult{}, fmt.Errorf("create job record for %s: %w", requestID, err)
	}
	s.logger.Info().Str("request_id", requestID).Msg("job created")
	return SubmitResult{RequestID: requestID, WebhookEnabled: s.webhookURL != ""}, nil
}

// WebhookResult is the output section of a provider push notification.
type WebhookResult struct {
	Images []fal.Image `json:"images"`
}

// WebhookPayload is the provider push notification body.
type WebhookPayload struct {
	RequestID string         `json:"request_id"`
	Status    string         `json:"status"`
	Payload   *WebhookResult `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
	Logs      []fal.LogLine  `json:"logs,omitempty"`
}

func (p WebhookPayload) logMessages() []string {
	if len(p.Logs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(p.Logs))
	for _, l := range p.Logs {
		if l.Message != "" {
			msgs = append(msgs, l.Message)
		}
	}
	return msgs
}

// ApplyWebhook applies a push notification to the job record. Unknown request
// ids are acknowledged without error: the job may belong to a prior process
// instance. Duplicate notifications for terminal jobs are no-ops.
func (s *Service) ApplyWebhook(ctx context.Context, p WebhookPayload) error {
	job, err := s.repo.Get(ctx, p.RequestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Str("request_id", p.RequestID).Msg("webhook for unknown job")
			return nil
		}
		return fmt.Errorf("load job %s: %w", p.RequestID, err)
	}

	switch {
	case p.Status == "OK" && p.Payload != nil && len(p.Payload.Images) > 0:
		completed := domain.JobStatusCompleted
		url := p.Payload.Images[0].URL
		updated, err := s.apply(ctx, p.RequestID, domain.JobUpdate{
			Status:     &completed,
			ResultURL:  &url,
			AppendLogs: newLogLines(job.Logs, p.logMessages()),
		})
		if err != nil {
			return err
		}
		s.logger.Info().Str("request_id", p.RequestID).Str("result_url", updated.ResultURL).Msg("job completed")
		return nil
	case p.Error != "":
		failed := domain.JobStatusFailed
		msg := p.Error
		if _, err := s.apply(ctx, p.RequestID, domain.JobUpdate{
			Status:     &failed,
			Error:      &msg,
			AppendLogs: newLogLines(job.Logs, p.logMessages()),
		}); err != nil {
			return err
		}
		s.logger.Info().Str("request_id", p.RequestID).Str("error", p.Error).Msg("job failed")
		return nil
	default:
		// Neither a success nor an error payload; acknowledge and keep the
		// record as-is, the poll fallback will catch up.
		s.logger.Debug().Str("request_id", p.RequestID).Str("status", p.Status).Msg("webhook without outcome")
		return nil
	}
}

// StatusResult is the reconciled view of a job returned to callers.
type StatusResult struct {
	Status    domain.JobStatus
	ResultURL string
	Error     string
	Logs      []string
}

func resultFromJob(job *domain.Job) StatusResult {
	return StatusResult{
		Status:    job.Status,
		ResultURL: job.ResultURL,
		Error:     job.Error,
		Logs:      job.Logs,
	}
}

// Reconcile determines the current status of a job without relying on a push
// having arrived. The record is checked first; only non-terminal jobs cause a
// provider round-trip. Provider failures keep the last known state and are
// reported as domain.ErrStatusUnconfirmed.
func (s *Service) Reconcile(ctx context.Context, requestID string) (StatusResult, error) {
	if requestID == MockRequestID {
		return StatusResult{Status: domain.JobStatusCompleted}, nil
	}

	job, err := s.repo.Get(ctx, requestID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return StatusResult{}, fmt.Errorf("load job %s: %w", requestID, err)
	}
	if job != nil && job.Status.Terminal() {
		return resultFromJob(job), nil
	}

	qs, qErr := s.queue.Status(ctx, requestID, true)
	if qErr != nil {
		return s.unconfirmed(ctx, requestID, job, qErr)
	}
	status, ok := domain.ParseJobStatus(qs.Status)
	if !ok {
		return s.unconfirmed(ctx, requestID, job, fmt.Errorf("unknown provider status %q", qs.Status))
	}

	switch status {
	case domain.JobStatusCompleted:
		res, rErr := s.queue.Result(ctx, requestID)
		if rErr != nil {
			return s.unconfirmed(ctx, requestID, job, rErr)
		}
		url := res.FirstImageURL()
		if job == nil {
			return StatusResult{Status: status, ResultURL: url}, nil
		}
		updated, err := s.apply(ctx, requestID, domain.JobUpdate{
			Status:     &status,
			ResultURL:  &url,
			AppendLogs: newLogLines(job.Logs, qs.Messages()),
		})
		if err != nil {
			return StatusResult{}, err
		}
		return resultFromJob(updated), nil
	case domain.JobStatusFailed:
		msg := "provider reported failure"
		if job == nil {
			return StatusResult{Status: status, Error: msg}, nil
		}
		updated, err := s.apply(ctx, requestID, domain.JobUpdate{
			Status:     &status,
			Error:      &msg,
			AppendLogs: newLogLines(job.Logs, qs.Messages()),
		})
		if err != nil {
			return StatusResult{}, err
		}
		return resultFromJob(updated), nil
	default:
		if job == nil {
			return StatusResult{Status: status, Logs: qs.Messages()}, nil
		}
		updated, err := s.apply(ctx, requestID, domain.JobUpdate{
			Status:     &status,
			AppendLogs: newLogLines(job.Logs, qs.Messages()),
		})
		if err != nil {
			return StatusResult{}, err
		}
		return resultFromJob(updated), nil
	}
}

// unconfirmed handles a failed provider round-trip: the last known record
// state is preserved and annotated, never overwritten with an error state.
func (s *Service) unconfirmed(ctx context.Context, requestID string, job *domain.Job, cause error) (StatusResult, error) {
	if job == nil {
		return StatusResult{}, fmt.Errorf("%w: %v", domain.ErrProviderFailure, cause)
	}
	note := fmt.Sprintf("status check failed: %v", cause)
	if _, _, err := s.repo.Apply(ctx, requestID, domain.JobUpdate{AppendLogs: []string{note}}); err != nil {
		s.logger.Warn().Err(err).Str("request_id", requestID).Msg("annotating job record failed")
	}
	return resultFromJob(job), fmt.Errorf("%w: %v", domain.ErrStatusUnconfirmed, cause)
}

// apply writes an update through the store and, when it changed the record,
// fans the new state out to waiters. Publish failures are tolerated; waiters
// re-check the store on a timer.
func (s *Service) apply(ctx context.Context, requestID string, upd domain.JobUpdate) (*domain.Job, error) {
	job, applied, err := s.repo.Apply(ctx, requestID, upd)
	if err != nil {
		return nil, fmt.Errorf("update job %s: %w", requestID, err)
	}
	if !applied {
		return job, nil
	}
	event := notify.JobEvent{
		RequestID: job.RequestID,
		Status:    job.Status,
		ResultURL: job.ResultURL,
		Error:     job.Error,
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("request_id", requestID).Msg("publish job event failed")
	}
	return job, nil
}

// newLogLines returns the suffix of latest that is not yet stored. The
// provider reports the full log history on every status call, so appending it
// wholesale would duplicate lines.
func newLogLines(existing, latest []string) []string {
	if len(latest) <= len(existing) {
		return nil
	}
	return latest[len(existing):]
}
