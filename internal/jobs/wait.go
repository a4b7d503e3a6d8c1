package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/notify"
)

const (
	DefaultWaitTimeout     = 2 * time.Minute
	DefaultRecheckInterval = 3 * time.Second
)

type WaitOptions struct {
	// Timeout bounds the whole wait; DefaultWaitTimeout when zero.
	Timeout time.Duration
	// RecheckInterval is the period of the poll fallback that keeps the wait
	// alive when a push is lost or the subscription drops.
	RecheckInterval time.Duration
}

type WaitResult struct {
	Status    domain.JobStatus
	ResultURL string
}

// Wait blocks until the job reaches a terminal state and resolves exactly
// once: with the result on completion, domain.ErrJobFailed on a provider
// failure, domain.ErrWaitTimeout when the bound expires, or ctx.Err() on
// cancellation. It races an immediate record check, a change-notification
// subscription and a periodic reconcile; whichever observes the terminal
// state first wins, and all teardown runs through the deferred cleanups.
func (s *Service) Wait(ctx context.Context, requestID string, opts WaitOptions) (WaitResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	recheck := opts.RecheckInterval
	if recheck <= 0 {
		recheck = DefaultRecheckInterval
	}

	// A job that is already terminal resolves without opening a subscription.
	if res, done, err := s.checkRecord(ctx, requestID); err != nil || done {
		return res, err
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var events <-chan notify.JobEvent
	sub, err := s.bus.Subscribe(ctx, requestID)
	if err != nil {
		// The subscription is a latency optimization; polling alone still
		// terminates the wait.
		s.logger.Warn().Err(err).Str("request_id", requestID).Msg("subscribe failed, falling back to polling")
	} else {
		defer sub.Close()
		events = sub.Events()
	}

	// Re-check once the subscription is confirmed: the terminal update may
	// have landed between the first check and subscription activation.
	if res, done, err := s.checkRecord(ctx, requestID); err != nil || done {
		return res, err
	}

	ticker := time.NewTicker(recheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if parent.Err() != nil {
				return WaitResult{}, parent.Err()
			}
			return WaitResult{}, domain.ErrWaitTimeout
		case ev, ok := <-events:
			if !ok {
				// Subscription transport dropped; the ticker keeps the wait
				// alive until the timeout.
				events = nil
				continue
			}
			if ev.RequestID != requestID || !ev.Status.Terminal() {
				continue
			}
			return resolveTerminal(ev.Status, ev.ResultURL, ev.Error)
		case <-ticker.C:
			res, err := s.Reconcile(ctx, requestID)
			if err != nil {
				if errors.Is(err, domain.ErrStatusUnconfirmed) || errors.Is(err, domain.ErrProviderFailure) {
					// Transient; the timeout bounds how long we keep trying.
					continue
				}
				return WaitResult{}, err
			}
			if res.Status.Terminal() {
				return resolveTerminal(res.Status, res.ResultURL, res.Error)
			}
		}
	}
}

// checkRecord consults only the durable record (plus the mock sentinel) and
// reports whether the wait is already resolvable.
func (s *Service) checkRecord(ctx context.Context, requestID string) (WaitResult, bool, error) {
	if requestID == MockRequestID {
		return WaitResult{Status: domain.JobStatusCompleted}, true, nil
	}
	job, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return WaitResult{}, false, fmt.Errorf("load job %s: %w", requestID, err)
	}
	if !job.Status.Terminal() {
		return WaitResult{}, false, nil
	}
	res, rErr := resolveTerminal(job.Status, job.ResultURL, job.Error)
	return res, true, rErr
}

func resolveTerminal(status domain.JobStatus, resultURL, errMsg string) (WaitResult, error) {
	if status == domain.JobStatusFailed {
		if errMsg == "" {
			errMsg = "unknown provider error"
		}
		return WaitResult{Status: status}, fmt.Errorf("%w: %s", domain.ErrJobFailed, errMsg)
	}
	return WaitResult{Status: status, ResultURL: resultURL}, nil
}
