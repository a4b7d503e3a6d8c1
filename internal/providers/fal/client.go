package fal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://queue.fal.run"
	defaultModel   = "fal-ai/nano-banana/edit"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the provider's asynchronous queue: submit a job, poll its
// status, fetch the final result. All calls are independent and safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	key        string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	model := strings.Trim(opts.Model, "/")
	if model == "" {
		model = defaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		model:      model,
		key:        strings.TrimSpace(opts.APIKey),
	}
}

// Configured reports whether a usable credential is present. Placeholder keys
// from .env templates count as absent.
func (c *Client) Configured() bool {
	return c != nil && c.key != "" && !strings.Contains(c.key, "YOUR_")
}

type SubmitInput struct {
	Prompt     string
	ImageURL   string
	WebhookURL string
}

type submitRequest struct {
	Prompt       string   `json:"prompt"`
	ImageURLs    []string `json:"image_urls"`
	NumImages    int      `json:"num_images"`
	OutputFormat string   `json:"output_format"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

// Submit enqueues an edit job and returns the provider-assigned request id.
func (c *Client) Submit(ctx context.Context, in SubmitInput) (string, error) {
	if !c.Configured() {
		return "", errors.New("fal: API key is missing")
	}
	if strings.TrimSpace(in.ImageURL) == "" {
		return "", errors.New("fal: image url required")
	}
	endpoint := c.baseURL + "/" + c.model
	if in.WebhookURL != "" {
		endpoint += "?fal_webhook=" + url.QueryEscape(in.WebhookURL)
	}
	payload := submitRequest{
		Prompt:       in.Prompt,
		ImageURLs:    []string{in.ImageURL},
		NumImages:    1,
		OutputFormat: "png",
	}
	var out submitResponse
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &out); err != nil {
		return "", err
	}
	if out.RequestID == "" {
		return "", errors.New("fal: response missing request_id")
	}
	return out.RequestID, nil
}

type LogLine struct {
	Message string `json:"message"`
}

type QueueStatus struct {
	Status string    `json:"status"`
	Logs   []LogLine `json:"logs"`
}

// Messages flattens log lines to plain strings for storage.
func (s QueueStatus) Messages() []string {
	if len(s.Logs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(s.Logs))
	for _, l := range s.Logs {
		if l.Message != "" {
			msgs = append(msgs, l.Message)
		}
	}
	return msgs
}

// Status queries the queue for the current state of a request.
func (c *Client) Status(ctx context.Context, requestID string, withLogs bool) (QueueStatus, error) {
	if !c.Configured() {
		return QueueStatus{}, errors.New("fal: API key is missing")
	}
	endpoint := fmt.Sprintf("%s/%s/requests/%s/status", c.baseURL, c.model, url.PathEscape(requestID))
	if withLogs {
		endpoint += "?logs=1"
	}
	var out QueueStatus
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return QueueStatus{}, err
	}
	return out, nil
}

type Image struct {
	URL string `json:"url"`
}

type Result struct {
	Images []Image `json:"images"`
}

// FirstImageURL returns the canonical result: the first image of the output
// list, or empty when the provider returned none.
func (r Result) FirstImageURL() string {
	if len(r.Images) == 0 {
		return ""
	}
	return r.Images[0].URL
}

// Result fetches the final output payload of a completed request.
func (c *Client) Result(ctx context.Context, requestID string) (Result, error) {
	if !c.Configured() {
		return Result{}, errors.New("fal: API key is missing")
	}
	endpoint := fmt.Sprintf("%s/%s/requests/%s", c.baseURL, c.model, url.PathEscape(requestID))
	var out Result
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return Result{}, err
	}
	return out, nil
}

type errorResponse struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out any) error {
	var body *strings.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = strings.NewReader(string(raw))
	} else {
		body = strings.NewReader("")
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Key "+c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil {
			if msg := firstNonEmpty(apiErr.Detail, apiErr.Message); msg != "" {
				return fmt.Errorf("fal: %s (http %d)", msg, resp.StatusCode)
			}
		}
		return fmt.Errorf("fal: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("fal: decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
