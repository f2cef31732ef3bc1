package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"tempolog/internal/batch"
)

func sampleResult() *batch.Result {
	return &batch.Result{
		StatusCodes: []int{201, 429, 429, 403},
		WorklogIDs:  []int64{999},
		Items: []batch.ItemOutcome{
			{Index: 0, Issue: "INT-10", WorklogID: 999, State: batch.ItemSucceeded, StatusCode: 201, Attempts: 1},
			{Index: 1, Issue: "INT-15", State: batch.ItemExhausted, StatusCode: 429, Attempts: 2},
			{Index: 2, Issue: "INT-21", State: batch.ItemFailed, StatusCode: 403, Attempts: 1, Err: errors.New("create worklog: status 403: access denied")},
		},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, "create", sampleResult())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 5)
	assert.Contains(t, lines[0], "ISSUE")
	assert.Contains(t, lines[0], "ATTEMPTS")

	assert.Contains(t, lines[1], "INT-10")
	assert.Contains(t, lines[1], "999")
	assert.Contains(t, lines[1], "succeeded")

	assert.Contains(t, lines[2], "INT-15")
	assert.Contains(t, lines[2], "exhausted")
	assert.Contains(t, lines[2], "429")

	assert.Contains(t, lines[3], "failed")
	assert.Contains(t, lines[3], "access denied")
}

func TestSummary(t *testing.T) {
	s := Summary("create", sampleResult())
	assert.Contains(t, s, "create:")
	assert.Contains(t, s, "1/3 succeeded")
	assert.Contains(t, s, "1 rate limited past every retry")
	assert.Contains(t, s, "1 failed")
	assert.Contains(t, s, "(4 responses)")
}

func TestSummaryAllSucceeded(t *testing.T) {
	res := &batch.Result{
		StatusCodes: []int{204},
		Items:       []batch.ItemOutcome{{WorklogID: 999, State: batch.ItemSucceeded, StatusCode: 204, Attempts: 1}},
	}
	s := Summary("delete", res)
	assert.Contains(t, s, "1/1 succeeded")
	assert.NotContains(t, s, "failed")
	assert.NotContains(t, s, "rate limited")
}

func TestWriteDeleteItemHasNoIssue(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, "delete", &batch.Result{
		Items: []batch.ItemOutcome{{WorklogID: 42, State: batch.ItemSucceeded, StatusCode: 204, Attempts: 1}},
	})
	assert.Contains(t, buf.String(), "42")
	assert.Contains(t, buf.String(), " - ")
}

func TestWriteLongIssueKeyStaysOnOneLine(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf, "create", &batch.Result{
		Items: []batch.ItemOutcome{{Issue: "PLATFORMCORE-12345", WorklogID: 123456789012345, State: batch.ItemSucceeded, StatusCode: 201, Attempts: 1}},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], "PLATFORMCORE-…")
	assert.Contains(t, lines[1], "succeeded")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "INT-10", truncate("INT-10", 14))
	assert.Equal(t, "PLATFORMCORE-1", truncate("PLATFORMCORE-1", 14))
	assert.Equal(t, "PLATFORMCORE-…", truncate("PLATFORMCORE-12345", 14))
}
