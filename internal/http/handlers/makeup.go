package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/jobs"
)

type processRequest struct {
	Image     string `json:"image" validate:"required"`
	Prompt    string `json:"prompt"`
	Style     string `json:"style"`
	Intensity string `json:"intensity"`
}

type processResponse struct {
	Success        bool   `json:"success"`
	RequestID      string `json:"requestId"`
	Mock           bool   `json:"mock,omitempty"`
	WebhookEnabled bool   `json:"webhookEnabled"`
}

type statusResponse struct {
	Status    domain.JobStatus `json:"status"`
	ResultURL string           `json:"resultUrl,omitempty"`
	Error     string           `json:"error,omitempty"`
	Logs      []string         `json:"logs,omitempty"`
}

// ProcessMakeup submits an edit job to the provider queue and returns the
// request id the client polls or waits on.
func (a *App) ProcessMakeup(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := a.Validator.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.Jobs.Submit(r.Context(), jobs.SubmitRequest{
		Image:     req.Image,
		Prompt:    req.Prompt,
		Style:     req.Style,
		Intensity: req.Intensity,
	})
	switch {
	case errors.Is(err, domain.ErrImageRequired):
		a.error(w, http.StatusBadRequest, "image is required")
	case errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusBadGateway, "failed to submit job")
	case err != nil:
		a.Logger.Error().Err(err).Msg("job submission failed")
		a.error(w, http.StatusInternalServerError, "failed to submit job")
	default:
		a.json(w, http.StatusOK, processResponse{
			Success:        true,
			RequestID:      res.RequestID,
			Mock:           res.Mock,
			WebhookEnabled: res.WebhookEnabled,
		})
	}
}

// MakeupWebhook receives the provider push notification. It acknowledges
// regardless of the processing outcome so the provider does not re-deliver in
// a storm; unknown request ids are acknowledged too.
func (a *App) MakeupWebhook(w http.ResponseWriter, r *http.Request) {
	var payload jobs.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		a.error(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.RequestID == "" {
		a.error(w, http.StatusBadRequest, "missing request_id")
		return
	}
	if err := a.Jobs.ApplyWebhook(r.Context(), payload); err != nil {
		a.Logger.Error().Err(err).Str("request_id", payload.RequestID).Msg("webhook processing failed")
	}
	a.json(w, http.StatusOK, map[string]bool{"received": true})
}

// MakeupStatus reports the reconciled status of a job, falling back to a
// provider poll when no push has been observed yet.
func (a *App) MakeupStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "request_id")
	if requestID == "" {
		a.error(w, http.StatusBadRequest, "request_id required")
		return
	}

	res, err := a.Jobs.Reconcile(r.Context(), requestID)
	switch {
	case errors.Is(err, domain.ErrStatusUnconfirmed):
		// Transient provider failure: report the last known state, the
		// client retries.
		a.json(w, http.StatusOK, statusResponse{Status: res.Status, Error: "could not fetch latest status"})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "job not found")
	case err != nil:
		a.Logger.Error().Err(err).Str("request_id", requestID).Msg("status check failed")
		a.error(w, http.StatusBadGateway, "failed to check status")
	default:
		a.json(w, http.StatusOK, statusResponse{
			Status:    res.Status,
			ResultURL: res.ResultURL,
			Error:     res.Error,
			Logs:      res.Logs,
		})
	}
}

// MakeupWait long-polls until the job reaches a terminal state or the wait
// bound expires.
func (a *App) MakeupWait(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "request_id")
	if requestID == "" {
		a.error(w, http.StatusBadRequest, "request_id required")
		return
	}

	res, err := a.Jobs.Wait(r.Context(), requestID, jobs.WaitOptions{Timeout: a.WaitTimeout})
	switch {
	case errors.Is(err, domain.ErrWaitTimeout):
		a.error(w, http.StatusGatewayTimeout, "timed out waiting for job")
	case errors.Is(err, domain.ErrJobFailed):
		a.json(w, http.StatusOK, statusResponse{Status: domain.JobStatusFailed, Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "job not found")
	case err != nil:
		a.Logger.Error().Err(err).Str("request_id", requestID).Msg("wait failed")
		a.error(w, http.StatusInternalServerError, "failed to wait for job")
	default:
		a.json(w, http.StatusOK, statusResponse{Status: res.Status, ResultURL: res.ResultURL})
	}
}
