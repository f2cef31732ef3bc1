package tempo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tempolog/internal/config"
	"tempolog/internal/engine"
	"tempolog/internal/logger"
)

const (
	opCreate = "create"
	opDelete = "delete"
)

// Client creates and deletes worklogs on the Tempo worklog endpoint
type Client struct {
	url           string
	token         string
	client        *http.Client
	maxRetries    int
	backoffFactor time.Duration

	// sleep waits between rate-limited attempts
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new Tempo client that sends its requests through hc
func NewClient(cfg config.TempoConfig, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Client{
		url:           strings.TrimSuffix(cfg.URL, "/"),
		token:         cfg.Token,
		client:        hc,
		maxRetries:    maxRetries,
		backoffFactor: time.Duration(cfg.BackoffFactor * float64(time.Second)),
		sleep:         sleepContext,
	}
}

// createResponse is the part of the create response we read
type createResponse struct {
	TempoWorklogID *int64 `json:"tempoWorklogId"`
}

// request describes one logical operation. Its body is marshalled once and
// replayed on every attempt.
type request struct {
	op     string
	method string
	url    string
	body   []byte
	item   []any // log attributes identifying the item
}

// CreateWorklog posts payload and returns the server-assigned worklog id.
func (c *Client) CreateWorklog(ctx context.Context, payload engine.WorklogPayload, rec engine.StatusRecorder) (*engine.Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &engine.RequestError{Op: opCreate, URL: c.url, Err: err}
	}

	req := request{
		op:     opCreate,
		method: http.MethodPost,
		url:    c.url,
		body:   body,
		item:   []any{"issue", payload.Description, "issue_id", payload.IssueID},
	}

	outcome, respBody, err := c.execute(ctx, req, rec)
	if err != nil || outcome.State != engine.Succeeded {
		return outcome, err
	}

	var cr createResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return nil, &engine.RequestError{Op: opCreate, URL: c.url, StatusCode: outcome.StatusCode, Attempts: outcome.Attempts, Message: "malformed response body", Err: err}
	}
	if cr.TempoWorklogID == nil {
		return nil, &engine.RequestError{Op: opCreate, URL: c.url, StatusCode: outcome.StatusCode, Attempts: outcome.Attempts, Message: "response has no tempoWorklogId"}
	}
	outcome.WorklogID = *cr.TempoWorklogID

	logger.Debug("Worklog created", "issue", payload.Description, "worklog_id", outcome.WorklogID, "status", outcome.StatusCode)
	return outcome, nil
}

// DeleteWorklog deletes the worklog with the given id.
func (c *Client) DeleteWorklog(ctx context.Context, worklogID int64, rec engine.StatusRecorder) (*engine.Outcome, error) {
	req := request{
		op:     opDelete,
		method: http.MethodDelete,
		url:    c.url + "/" + strconv.FormatInt(worklogID, 10),
		item:   []any{"worklog_id", worklogID},
	}

	outcome, _, err := c.execute(ctx, req, rec)
	if err != nil {
		return nil, err
	}
	if outcome.State == engine.Succeeded {
		outcome.WorklogID = worklogID
		logger.Debug("Worklog deleted", "worklog_id", worklogID, "status", outcome.StatusCode)
	}
	return outcome, nil
}

// newBackOff returns the wait schedule for one operation:
// backoffFactor * 2^attempt with no jitter and no elapsed-time cap.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoffFactor
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// execute runs req up to maxRetries times. Only 429 responses are retried;
// every received status is passed to rec. A 2xx returns a Succeeded outcome
// with the response body, running out of attempts returns an Exhausted
// outcome, and anything else returns a *engine.RequestError.
func (c *Client) execute(ctx context.Context, req request, rec engine.StatusRecorder) (*engine.Outcome, []byte, error) {
	b := c.newBackOff()
	outcome := &engine.Outcome{State: engine.Exhausted}

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		statusCode, body, err := c.do(ctx, req)
		if err != nil {
			logger.Debug("An error occurred while requesting", append([]any{"url", req.url, "error", err}, req.item...)...)
			return nil, nil, &engine.RequestError{Op: req.op, URL: req.url, Attempts: outcome.Attempts, Err: err}
		}

		outcome.Attempts++
		outcome.StatusCode = statusCode
		if rec != nil {
			rec.RecordStatus(statusCode)
		}

		switch {
		case statusCode >= 200 && statusCode < 300:
			outcome.State = engine.Succeeded
			return outcome, body, nil

		case statusCode == http.StatusTooManyRequests:
			wait := b.NextBackOff()
			logger.Debug("Received HTTP 429 - Too Many Requests, retrying",
				append([]any{"attempt", attempt + 1, "wait", wait.String()}, req.item...)...)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, nil, &engine.RequestError{Op: req.op, URL: req.url, StatusCode: statusCode, Attempts: outcome.Attempts, Message: "interrupted while backing off", Err: err}
			}

		default:
			logger.Debug("Error response while requesting",
				append([]any{"url", req.url, "status", statusCode, "body", string(body)}, req.item...)...)
			return nil, nil, &engine.RequestError{
				Op:         req.op,
				URL:        req.url,
				StatusCode: statusCode,
				Attempts:   outcome.Attempts,
				Message:    engine.StatusMessage(statusCode),
			}
		}
	}

	logger.Warn("All retries failed", append([]any{"op", req.op, "attempts", outcome.Attempts}, req.item...)...)
	return outcome, nil, nil
}

// do sends a single HTTP request and returns its status and body
func (c *Client) do(ctx context.Context, req request) (int, []byte, error) {
	var reqBody io.Reader
	if req.body != nil {
		reqBody = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, reqBody)
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
