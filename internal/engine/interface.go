package engine

import "context"

// WorklogPayload is the body of a worklog create request. It is built fresh for
// every create call from a record and the resolved issue id.
type WorklogPayload struct {
	AuthorAccountID  string `json:"authorAccountId"`
	Description      string `json:"description"`
	IssueID          int64  `json:"issueId"`
	StartDate        string `json:"startDate"`
	StartTime        string `json:"startTime"`
	TimeSpentSeconds int64  `json:"timeSpentSeconds"`
}

// OutcomeState is the terminal state of one executed operation.
type OutcomeState string

const (
	// Succeeded means the service answered with a 2xx status.
	Succeeded OutcomeState = "succeeded"
	// Exhausted means every attempt was rate limited.
	Exhausted OutcomeState = "exhausted"
)

// Outcome is the result of a create or delete call that did not fail.
type Outcome struct {
	State      OutcomeState
	StatusCode int   // status of the last response received
	Attempts   int   // number of HTTP responses received
	WorklogID  int64 // server-assigned id, create only
}

// StatusRecorder receives the status code of every HTTP response as soon as it
// arrives. Implementations must be safe for concurrent use.
type StatusRecorder interface {
	RecordStatus(code int)
}

// IssueResolver maps a human-readable issue key to the tracker's numeric id.
type IssueResolver interface {
	ResolveIssueID(ctx context.Context, issueKey string) (int64, error)
}

// WorklogExecutor creates and deletes worklogs on the worklog service.
type WorklogExecutor interface {
	// CreateWorklog posts payload, retrying while rate limited.
	CreateWorklog(ctx context.Context, payload WorklogPayload, rec StatusRecorder) (*Outcome, error)

	// DeleteWorklog deletes the worklog with the given id, retrying while rate limited.
	DeleteWorklog(ctx context.Context, worklogID int64, rec StatusRecorder) (*Outcome, error)
}
