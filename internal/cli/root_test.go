package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempolog/internal/config"
	"tempolog/internal/storage"
	"tempolog/internal/worklog"
)

const worklogsCSV = `issue,time_spent,start_date,start_time
INT-10,6h,2024-01-15,08:00:00
INT-15,3s,2024-01-15,14:00:00
`

// stubServers serves the issue and worklog endpoints. worklogStatus picks the
// status of every worklog request.
type stubServers struct {
	jira  *httptest.Server
	tempo *httptest.Server

	nextID  atomic.Int64
	mu      sync.Mutex
	deleted []string
}

func newStubServers(t *testing.T, worklogStatus int) *stubServers {
	t.Helper()
	s := &stubServers{}

	s.jira = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/issue/INT-10":
			fmt.Fprint(w, `{"id":"10010"}`)
		case "/issue/INT-15":
			fmt.Fprint(w, `{"id":"10015"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.jira.Close)

	s.tempo = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if worklogStatus >= 300 {
			w.WriteHeader(worklogStatus)
			return
		}
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"tempoWorklogId":%d}`, 900+s.nextID.Add(1))
		case http.MethodDelete:
			s.mu.Lock()
			s.deleted = append(s.deleted, r.URL.Path)
			s.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(s.tempo.Close)

	return s
}

func setEnv(t *testing.T, s *stubServers, extra map[string]string) {
	t.Helper()
	env := map[string]string{
		"JIRA_BASE_API_URL":  s.jira.URL + "/issue",
		"JIRA_ACCOUNT_EMAIL": "dev@example.com",
		"JIRA_TOKEN":         "jira-token",
		"TEMPO_BASE_API_URL": s.tempo.URL,
		"TEMPO_OAUTH_TOKEN":  "tempo-token",
		"AUTHOR_ACCOUNT_ID":  "account-1",
		"MAX_RETRIES":        "2",
		"BACKOFF_FACTOR":     "0.001",
		"LOG_LEVEL":          "error",
		"CACHE_ISSUE_IDS":    "",
		"HTTP_TIMEOUT":       "",
		"MAX_IN_FLIGHT":      "",
		"LOGGER_NAME":        "",
		"LOG_FORMAT":         "",
		"AUDIT_DB_PATH":      "",
	}
	for k, v := range extra {
		env[k] = v
	}
	for k, v := range env {
		t.Setenv(config.EnvPrefix+k, v)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestExecuteUpload(t *testing.T) {
	s := newStubServers(t, 0)
	setEnv(t, s, nil)
	input := writeFile(t, "worklogs.csv", worklogsCSV)

	var stdout, stderr bytes.Buffer
	code := Execute([]string{"--file-path", input}, &stdout, &stderr)

	assert.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "Uploading worklogs.")
	assert.Contains(t, stdout.String(), "2/2 succeeded")
	assert.Contains(t, stdout.String(), "Finished upload.")
}

func TestExecuteUploadThenDelete(t *testing.T) {
	s := newStubServers(t, 0)
	auditPath := filepath.Join(t.TempDir(), "audit.db")
	setEnv(t, s, map[string]string{"AUDIT_DB_PATH": auditPath})

	input := writeFile(t, "worklogs.csv", worklogsCSV)
	idsPath := filepath.Join(t.TempDir(), "ids.yaml")

	var stdout, stderr bytes.Buffer
	code := Execute([]string{"--file-path", input, "--ids-out", idsPath}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())

	ids, err := worklog.ReadIDs(idsPath)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{901, 902}, ids)

	stdout.Reset()
	code = Execute([]string{"--file-path", idsPath, "--delete"}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "Deleting worklogs.")
	assert.Contains(t, stdout.String(), "Finished cleanup.")
	assert.ElementsMatch(t, []string{"/901", "/902"}, s.deleted)

	store, err := storage.Open(auditPath)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.GetRuns(10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	ops := []string{runs[0].Operation, runs[1].Operation}
	assert.ElementsMatch(t, []string{"create", "delete"}, ops)
	for _, run := range runs {
		assert.Equal(t, 2, run.Succeeded)
		items, err := store.GetItemOutcomes(run.ID)
		require.NoError(t, err)
		assert.Len(t, items, 2)
	}
}

func TestExecuteRequestFailure(t *testing.T) {
	s := newStubServers(t, http.StatusForbidden)
	setEnv(t, s, nil)
	input := writeFile(t, "worklogs.csv", worklogsCSV)

	var stdout, stderr bytes.Buffer
	code := Execute([]string{"--file-path", input}, &stdout, &stderr)

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout.String(), "2 failed")
	assert.Contains(t, stderr.String(), "status 403")
	assert.NotContains(t, stdout.String(), "Finished upload.")
}

func TestExecuteUnknownIssue(t *testing.T) {
	s := newStubServers(t, 0)
	setEnv(t, s, nil)
	input := writeFile(t, "worklogs.csv", worklogsCSV+"NOPE-1,1h,2024-01-15,08:00:00\n")

	var stdout, stderr bytes.Buffer
	code := Execute([]string{"--file-path", input}, &stdout, &stderr)

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr.String(), "resolve issue NOPE-1")
	assert.Contains(t, stdout.String(), "2/3 succeeded")
}

func TestExecuteRateLimited(t *testing.T) {
	s := newStubServers(t, http.StatusTooManyRequests)
	setEnv(t, s, nil)
	input := writeFile(t, "worklogs.csv", worklogsCSV)

	var stdout, stderr bytes.Buffer
	code := Execute([]string{"--file-path", input}, &stdout, &stderr)

	assert.Equal(t, ExitExhausted, code)
	assert.Contains(t, stdout.String(), "2 rate limited past every retry")
	assert.Contains(t, stdout.String(), "(4 responses)")
}

func TestExecuteInvalidInput(t *testing.T) {
	s := newStubServers(t, 0)
	setEnv(t, s, nil)
	input := writeFile(t, "worklogs.csv", "issue,time_spent,start_date,start_time\nINT-10,4,2024-01-15,08:00:00\n")

	var stdout, stderr bytes.Buffer
	code := Execute([]string{"--file-path", input}, &stdout, &stderr)

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr.String(), "row 1")
	assert.Zero(t, s.nextID.Load())
}

func TestExecuteUsageErrors(t *testing.T) {
	s := newStubServers(t, 0)
	setEnv(t, s, nil)

	tests := []struct {
		name string
		args []string
	}{
		{"missing file path", nil},
		{"unknown flag", []string{"--bogus"}},
		{"positional argument", []string{"--file-path", "x.csv", "extra"}},
		{"nonexistent file", []string{"--file-path", filepath.Join(t.TempDir(), "nope.csv")}},
		{"directory", []string{"--file-path", t.TempDir()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, ExitUsage, Execute(tt.args, &stdout, &stderr))
			assert.NotEmpty(t, stderr.String())
		})
	}
}

func TestExecuteMissingConfig(t *testing.T) {
	s := newStubServers(t, 0)
	setEnv(t, s, map[string]string{"TEMPO_OAUTH_TOKEN": ""})
	input := writeFile(t, "worklogs.csv", worklogsCSV)

	var stdout, stderr bytes.Buffer
	code := Execute([]string{"--file-path", input}, &stdout, &stderr)

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr.String(), "tempo.token is required")
}
