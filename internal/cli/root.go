// Package cli implements the tempolog command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tempolog/internal/batch"
	"tempolog/internal/config"
	"tempolog/internal/engine"
	"tempolog/internal/engine/jira"
	"tempolog/internal/engine/tempo"
	"tempolog/internal/logger"
	"tempolog/internal/report"
	"tempolog/internal/storage"
	"tempolog/internal/storage/models"
	"tempolog/internal/worklog"
)

// Exit codes
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitUsage     = 2
	ExitExhausted = 3
)

// ExitError is an error carrying the process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// Options are the parsed command line flags.
type Options struct {
	FilePath   string
	ConfigPath string
	IDsOut     string
	Delete     bool
}

// NewRootCommand builds the tempolog command writing user output to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "tempolog --file-path <worklogs.csv>",
		Short: "Upload worklogs to Tempo",
		Long: `Tempolog uploads worklogs read from a CSV or YAML file to Tempo,
resolving Jira issue keys to their internal ids.

With --delete the file is a YAML list of worklog ids (as written by
--ids-out) and every listed worklog is deleted instead.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), opts, out)
		},
	}

	cmd.Flags().StringVar(&opts.FilePath, "file-path", "", "Worklogs file path (CSV, or YAML by .yaml/.yml extension).")
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "Optional YAML configuration file; environment variables override it.")
	cmd.Flags().StringVar(&opts.IDsOut, "ids-out", "", "Write the ids of created worklogs to this YAML file.")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "Delete the worklog ids listed in --file-path.")
	_ = cmd.MarkFlagRequired("file-path")

	return cmd
}

// Execute runs the command with args and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand(stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return ExitOK
	}

	fmt.Fprintln(stderr, err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintln(stderr, cmd.UsageString())
	return ExitUsage
}

// Run executes one batch as described by opts. Every error it returns is an
// *ExitError.
func Run(ctx context.Context, opts Options, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	info, err := os.Stat(opts.FilePath)
	if err != nil {
		return &ExitError{Code: ExitUsage, Message: fmt.Sprintf("invalid --file-path: %v", err)}
	}
	if !info.Mode().IsRegular() {
		return &ExitError{Code: ExitUsage, Message: fmt.Sprintf("invalid --file-path: %s is not a regular file", opts.FilePath)}
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("Failed to load configuration: %v", err)}
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.Name)

	runID := uuid.New().String()
	op := "create"
	if opts.Delete {
		op = "delete"
	}
	logger.Info("Starting tempolog", "run_id", runID, "op", op, "file", opts.FilePath, "log_level", cfg.Log.Level)

	var store *storage.Store
	if cfg.Audit.Path != "" {
		store, err = storage.Open(cfg.Audit.Path)
		if err != nil {
			return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("Failed to open audit database: %v", err)}
		}
		defer store.Close()
	}

	hc := engine.NewHTTPClient(time.Duration(cfg.HTTP.Timeout) * time.Second)
	defer hc.CloseIdleConnections()

	orch := batch.NewOrchestrator(
		jira.NewClient(cfg.Jira, hc),
		tempo.NewClient(cfg.Tempo, hc),
		cfg.Tempo.AuthorAccountID,
		cfg.Batch.MaxInFlight,
	)

	started := time.Now()
	var res *batch.Result
	var batchErr error

	if opts.Delete {
		ids, err := worklog.ReadIDs(opts.FilePath)
		if err != nil {
			return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("Failed to load worklog ids: %v", err)}
		}
		fmt.Fprintln(out, "Deleting worklogs.")
		res, batchErr = orch.DeleteBatch(ctx, ids)
	} else {
		records, err := worklog.Load(opts.FilePath)
		if err != nil {
			return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("Failed to load worklogs: %v", err)}
		}
		fmt.Fprintln(out, "Uploading worklogs.")
		res, batchErr = orch.CreateBatch(ctx, records)
	}

	var be *batch.BatchError
	if errors.As(batchErr, &be) {
		res = be.Result
	}

	if res != nil {
		report.Write(out, op, res)

		if !opts.Delete && opts.IDsOut != "" {
			if err := worklog.WriteIDs(opts.IDsOut, res.WorklogIDs); err != nil {
				logger.Error("Failed to write worklog ids", "error", err, "path", opts.IDsOut)
			} else {
				logger.Info("Wrote worklog ids", "path", opts.IDsOut, "count", len(res.WorklogIDs))
			}
		}

		if store != nil {
			if err := store.RecordRun(auditRun(runID, op, opts.FilePath, started, res, batchErr)); err != nil {
				logger.Error("Failed to record run in audit database", "error", err, "run_id", runID)
			}
		}
	}

	if batchErr != nil {
		logger.Error("Batch failed", "run_id", runID, "error", batchErr)
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("Failed to %s worklogs: %v", op, batchErr)}
	}

	if n := res.Count(batch.ItemExhausted); n > 0 {
		return &ExitError{Code: ExitExhausted, Message: fmt.Sprintf("%d worklog(s) were still rate limited after every retry", n)}
	}

	if opts.Delete {
		fmt.Fprintln(out, "Finished cleanup.")
	} else {
		fmt.Fprintln(out, "Finished upload.")
	}
	return nil
}

// auditRun converts a batch result into audit rows
func auditRun(runID, op, file string, started time.Time, res *batch.Result, batchErr error) (models.BatchRun, []models.ItemOutcome) {
	run := models.BatchRun{
		ID:         runID,
		Operation:  op,
		InputFile:  file,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Items:      len(res.Items),
		Succeeded:  res.Count(batch.ItemSucceeded),
		Exhausted:  res.Count(batch.ItemExhausted),
		Failed:     res.Count(batch.ItemFailed),
		Responses:  len(res.StatusCodes),
	}
	if batchErr != nil {
		run.Error = batchErr.Error()
	}

	items := make([]models.ItemOutcome, 0, len(res.Items))
	for _, it := range res.Items {
		o := models.ItemOutcome{
			RunID:      runID,
			ItemIndex:  it.Index,
			Issue:      it.Issue,
			WorklogID:  it.WorklogID,
			State:      string(it.State),
			StatusCode: it.StatusCode,
			Attempts:   it.Attempts,
		}
		if it.Err != nil {
			o.Error = it.Err.Error()
		}
		items = append(items, o)
	}
	return run, items
}
