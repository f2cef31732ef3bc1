package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"tempolog/internal/config"
	"tempolog/internal/engine"
	"tempolog/internal/logger"
)

var errMissingID = errors.New("response has no id field")

// Client resolves issue keys against the Jira issue endpoint
type Client struct {
	url    string
	email  string
	token  string
	client *http.Client

	cache bool
	group singleflight.Group
	mu    sync.Mutex
	ids   map[string]int64
}

// NewClient creates a new Jira client that sends its requests through hc
func NewClient(cfg config.JiraConfig, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}

	return &Client{
		// Normalize URL: remove trailing slash to avoid double slashes in paths
		url:    strings.TrimSuffix(cfg.URL, "/"),
		email:  cfg.AccountEmail,
		token:  cfg.Token,
		client: hc,
		cache:  cfg.CacheEnabled(),
		ids:    make(map[string]int64),
	}
}

// issue is the subset of the Jira issue document we read. Jira encodes the id
// as a string, json.Number accepts both forms.
type issue struct {
	ID  json.Number `json:"id"`
	Key string      `json:"key"`
}

// ResolveIssueID returns the numeric id of issueKey. With caching enabled each
// key is looked up at most once per client and concurrent lookups of the same
// key share one request.
func (c *Client) ResolveIssueID(ctx context.Context, issueKey string) (int64, error) {
	if !c.cache {
		return c.lookup(ctx, issueKey)
	}

	c.mu.Lock()
	id, ok := c.ids[issueKey]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	v, err, _ := c.group.Do(issueKey, func() (interface{}, error) {
		// a call that finished between the check above and Do has filled the cache
		c.mu.Lock()
		id, ok := c.ids[issueKey]
		c.mu.Unlock()
		if ok {
			return id, nil
		}

		id, err := c.lookup(ctx, issueKey)
		if err != nil {
			return int64(0), err
		}
		c.mu.Lock()
		c.ids[issueKey] = id
		c.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// lookup performs a single GET for issueKey
func (c *Client) lookup(ctx context.Context, issueKey string) (int64, error) {
	u := c.url + "/" + url.PathEscape(issueKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, &engine.ResolutionError{IssueKey: issueKey, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.email, c.token)

	logger.Debug("Resolving issue", "issue", issueKey, "url", u)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &engine.ResolutionError{IssueKey: issueKey, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &engine.ResolutionError{IssueKey: issueKey, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Debug("Jira issue lookup failed", "issue", issueKey, "status", resp.Status, "body", string(body))
		return 0, &engine.ResolutionError{
			IssueKey:   issueKey,
			StatusCode: resp.StatusCode,
			Err:        errors.New(engine.StatusMessage(resp.StatusCode)),
		}
	}

	var doc issue
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, &engine.ResolutionError{IssueKey: issueKey, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if doc.ID == "" {
		return 0, &engine.ResolutionError{IssueKey: issueKey, StatusCode: resp.StatusCode, Err: errMissingID}
	}
	id, err := doc.ID.Int64()
	if err != nil {
		return 0, &engine.ResolutionError{IssueKey: issueKey, StatusCode: resp.StatusCode, Err: fmt.Errorf("id %q is not numeric", doc.ID)}
	}

	logger.Debug("Resolved issue", "issue", issueKey, "issue_id", id)
	return id, nil
}
