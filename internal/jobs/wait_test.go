package jobs_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server/internal/domain"
	"server/internal/jobs"
	"server/internal/notify"
	"server/internal/providers/fal"
)

// muteBus delivers subscriptions but drops every publish, simulating a broken
// notification path so the wait must fall back to polling.
type muteBus struct {
	notify.Bus
}

func (b muteBus) Publish(context.Context, notify.JobEvent) error { return nil }

func TestWaitAlreadyTerminal(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, "req-abc", domain.JobStatusInProgress)
	ctx := context.Background()
	require.NoError(t, f.svc.ApplyWebhook(ctx, successWebhook("req-abc", "https://x/out.png")))

	res, err := f.svc.Wait(ctx, "req-abc", jobs.WaitOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, res.Status)
	assert.Equal(t, "https://x/out.png", res.ResultURL)
}

func TestWaitUnknownJob(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.Wait(context.Background(), "ghost", jobs.WaitOptions{Timeout: time.Second})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWaitMockRequest(t *testing.T) {
	f := newFixture(t, false)
	res, err := f.svc.Wait(context.Background(), jobs.MockRequestID, jobs.WaitOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, res.Status)
}

func TestWaitResolvesOnWebhookEvent(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, "req-abc", domain.JobStatusInQueue)
	f.queue.status = fal.QueueStatus{Status: "IN_QUEUE"}
	ctx := context.Background()

	done := make(chan struct{})
	var res jobs.WaitResult
	var waitErr error
	go func() {
		defer close(done)
		res, waitErr = f.svc.Wait(ctx, "req-abc", jobs.WaitOptions{
			Timeout:         10 * time.Second,
			RecheckInterval: time.Hour, // push path only
		})
	}()

	// Give the waiter time to pass its initial check and subscribe.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, f.svc.ApplyWebhook(ctx, successWebhook("req-abc", "https://x/out.png")))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not resolve on webhook event")
	}
	require.NoError(t, waitErr)
	assert.Equal(t, domain.JobStatusCompleted, res.Status)
	assert.Equal(t, "https://x/out.png", res.ResultURL)
}

func TestWaitResolvesWithFailureError(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, "req-abc", domain.JobStatusInProgress)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Wait(ctx, "req-abc", jobs.WaitOptions{
			Timeout:         10 * time.Second,
			RecheckInterval: time.Hour,
		})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, f.svc.ApplyWebhook(ctx, jobs.WebhookPayload{
		RequestID: "req-abc",
		Error:     "face not detected",
	}))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrJobFailed)
		assert.Contains(t, err.Error(), "face not detected")
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not resolve on failure event")
	}
}

func TestWaitTimesOut(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, "req-abc", domain.JobStatusPending)
	f.queue.status = fal.QueueStatus{Status: "IN_PROGRESS"}

	start := time.Now()
	_, err := f.svc.Wait(context.Background(), "req-abc", jobs.WaitOptions{
		Timeout:         200 * time.Millisecond,
		RecheckInterval: 50 * time.Millisecond,
	})
	assert.ErrorIs(t, err, domain.ErrWaitTimeout)
	assert.Less(t, time.Since(start), 5*time.Second, "timeout must not hang")
}

func TestWaitCancellation(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, "req-abc", domain.JobStatusPending)
	f.queue.status = fal.QueueStatus{Status: "IN_PROGRESS"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Wait(ctx, "req-abc", jobs.WaitOptions{
			Timeout:         time.Minute,
			RecheckInterval: time.Hour,
		})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not observe cancellation")
	}
}

func TestWaitPollFallbackWhenPushLost(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, "req-abc", domain.JobStatusInProgress)
	f.queue.status = fal.QueueStatus{Status: "COMPLETED"}
	f.queue.result = fal.Result{Images: []fal.Image{{URL: "https://x/out.png"}}}

	// All publishes dropped: only the periodic reconcile can resolve the wait.
	svc := jobs.NewService(jobs.ServiceOptions{
		Repo:       f.repo,
		Bus:        muteBus{Bus: f.bus},
		Queue:      f.queue,
		Logger:     zerolog.Nop(),
		Configured: true,
	})

	res, err := svc.Wait(context.Background(), "req-abc", jobs.WaitOptions{
		Timeout:         5 * time.Second,
		RecheckInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, res.Status)
	assert.Equal(t, "https://x/out.png", res.ResultURL)
}

func TestWaitManyWaitersResolveExactlyOnce(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, "req-abc", domain.JobStatusInQueue)
	ctx := context.Background()

	const waiters = 8
	results := make(chan jobs.WaitResult, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Wait(ctx, "req-abc", jobs.WaitOptions{
				Timeout:         10 * time.Second,
				RecheckInterval: time.Hour,
			})
			if err == nil {
				results <- res
			}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, f.svc.ApplyWebhook(ctx, successWebhook("req-abc", "https://x/out.png")))

	waitDone := make(chan struct{})
	go func() { wg.Wait(); close(waitDone) }()
	select {
	case <-waitDone:
	case <-time.After(5 * time.Second):
		t.Fatal("not all waiters resolved")
	}
	close(results)

	count := 0
	for res := range results {
		count++
		assert.Equal(t, "https://x/out.png", res.ResultURL)
	}
	assert.Equal(t, waiters, count, "every waiter resolves exactly once")
}
