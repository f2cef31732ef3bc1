package engine

import (
	"fmt"
	"net/http"
)

// ResolutionError reports a failed issue key lookup. Lookups are never retried.
type ResolutionError struct {
	IssueKey   string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *ResolutionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("resolve issue %s: status %d: %v", e.IssueKey, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("resolve issue %s: %v", e.IssueKey, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// RequestError reports a worklog request that failed with a status other than
// 429, or that never got a response.
type RequestError struct {
	Op         string // "create" or "delete"
	URL        string
	StatusCode int // 0 for transport failures
	Attempts   int // responses received, including the failing one
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s worklog: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s worklog: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s worklog: %s", e.Op, e.Message)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusMessage turns an upstream error status into a user-facing message
// without echoing the response body.
func StatusMessage(statusCode int) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "authentication failed: invalid credentials"
	case http.StatusForbidden:
		return "access denied: insufficient permissions"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusTooManyRequests:
		return "rate limited"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "server error: please try again later"
	default:
		return "request failed"
	}
}
