package models

import (
	"time"
)

// BatchRun represents one create or delete batch
type BatchRun struct {
	ID         string    `json:"id"`
	Operation  string    `json:"operation"`
	InputFile  string    `json:"input_file"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Items      int       `json:"items"`
	Succeeded  int       `json:"succeeded"`
	Exhausted  int       `json:"exhausted"`
	Failed     int       `json:"failed"`
	Responses  int       `json:"responses"`
	Error      string    `json:"error,omitempty"`
}

// ItemOutcome represents the terminal state of one item of a run
type ItemOutcome struct {
	ID         int64  `json:"id"`
	RunID      string `json:"run_id"`
	ItemIndex  int    `json:"item_index"`
	Issue      string `json:"issue,omitempty"`
	WorklogID  int64  `json:"worklog_id,omitempty"`
	State      string `json:"state"`
	StatusCode int    `json:"status_code"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error,omitempty"`
}
