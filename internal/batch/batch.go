// Package batch fans worklog operations out concurrently and aggregates
// their outcomes.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tempolog/internal/engine"
	"tempolog/internal/logger"
	"tempolog/internal/worklog"
)

// ItemState is the terminal state of one batch item.
type ItemState string

const (
	ItemSucceeded ItemState = "succeeded"
	// ItemExhausted means the item was rate limited on every attempt and has
	// no successful response.
	ItemExhausted ItemState = "exhausted"
	ItemFailed    ItemState = "failed"
)

// ItemOutcome describes how one input item ended.
type ItemOutcome struct {
	Index      int    // position in the input
	Issue      string // create only
	WorklogID  int64  // created or deleted worklog, 0 when none
	State      ItemState
	StatusCode int // last status received, 0 when none
	Attempts   int
	Err        error
}

// Result aggregates one batch run. StatusCodes holds one entry per HTTP
// response received, in the order the responses arrived. WorklogIDs holds the
// ids of successful creations in completion order. Items is in input order.
type Result struct {
	StatusCodes []int
	WorklogIDs  []int64
	Items       []ItemOutcome

	mu sync.Mutex
}

// RecordStatus appends code to StatusCodes.
func (r *Result) RecordStatus(code int) {
	r.mu.Lock()
	r.StatusCodes = append(r.StatusCodes, code)
	r.mu.Unlock()
}

func (r *Result) addWorklogID(id int64) {
	r.mu.Lock()
	r.WorklogIDs = append(r.WorklogIDs, id)
	r.mu.Unlock()
}

// Count returns how many items ended in state.
func (r *Result) Count(state ItemState) int {
	n := 0
	for _, it := range r.Items {
		if it.State == state {
			n++
		}
	}
	return n
}

// BatchError is returned when at least one item failed with a resolution or
// request error. It is produced only after every item has finished. Unwrap
// yields the first failure so errors.As reaches the typed error.
type BatchError struct {
	Failed int
	Total  int
	First  error
	Result *Result
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of %d items failed: %v", e.Failed, e.Total, e.First)
}

func (e *BatchError) Unwrap() error {
	return e.First
}

// Orchestrator runs create and delete batches against one resolver and one
// worklog executor shared by every item.
type Orchestrator struct {
	resolver        engine.IssueResolver
	worklogs        engine.WorklogExecutor
	authorAccountID string
	maxInFlight     int
}

// NewOrchestrator creates an Orchestrator. maxInFlight caps the number of items
// running at once; 0 runs every item concurrently.
func NewOrchestrator(resolver engine.IssueResolver, worklogs engine.WorklogExecutor, authorAccountID string, maxInFlight int) *Orchestrator {
	return &Orchestrator{
		resolver:        resolver,
		worklogs:        worklogs,
		authorAccountID: authorAccountID,
		maxInFlight:     maxInFlight,
	}
}

// RunCreateBatch creates one worklog per record. All items run to completion;
// if any item failed the batch returns a *BatchError and no result.
func (o *Orchestrator) RunCreateBatch(ctx context.Context, records []worklog.Record) (*Result, error) {
	res, err := o.CreateBatch(ctx, records)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RunDeleteBatch deletes every worklog id and returns the status codes of the
// responses received.
func (o *Orchestrator) RunDeleteBatch(ctx context.Context, ids []int64) ([]int, error) {
	res, err := o.DeleteBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	return res.StatusCodes, nil
}

// CreateBatch is RunCreateBatch for callers that want the per-item outcomes
// even when the batch failed: the returned *BatchError carries the result.
func (o *Orchestrator) CreateBatch(ctx context.Context, records []worklog.Record) (*Result, error) {
	res := &Result{Items: make([]ItemOutcome, len(records))}
	start := time.Now()

	logger.Info("Starting create batch", "items", len(records))
	err := o.fanOut(ctx, len(records), func(ctx context.Context, i int) error {
		rec := records[i]
		item := &res.Items[i]
		item.Index = i
		item.Issue = rec.Issue

		issueID, err := o.resolver.ResolveIssueID(ctx, rec.Issue)
		if err != nil {
			item.State = ItemFailed
			item.Err = err
			return err
		}

		payload := engine.WorklogPayload{
			AuthorAccountID:  o.authorAccountID,
			Description:      rec.Issue,
			IssueID:          issueID,
			StartDate:        rec.StartDateString(),
			StartTime:        rec.StartTimeString(),
			TimeSpentSeconds: rec.TimeSpentSeconds,
		}

		outcome, err := o.worklogs.CreateWorklog(ctx, payload, res)
		if err != nil {
			item.State = ItemFailed
			item.Err = err
			setFromRequestError(item, err)
			return err
		}

		item.StatusCode = outcome.StatusCode
		item.Attempts = outcome.Attempts
		if outcome.State == engine.Succeeded {
			item.State = ItemSucceeded
			item.WorklogID = outcome.WorklogID
			res.addWorklogID(outcome.WorklogID)
		} else {
			item.State = ItemExhausted
		}
		return nil
	})

	return o.finish("create", res, err, start)
}

// DeleteBatch is RunDeleteBatch with per-item outcomes.
func (o *Orchestrator) DeleteBatch(ctx context.Context, ids []int64) (*Result, error) {
	res := &Result{Items: make([]ItemOutcome, len(ids))}
	start := time.Now()

	logger.Info("Starting delete batch", "items", len(ids))
	err := o.fanOut(ctx, len(ids), func(ctx context.Context, i int) error {
		item := &res.Items[i]
		item.Index = i
		item.WorklogID = ids[i]

		outcome, err := o.worklogs.DeleteWorklog(ctx, ids[i], res)
		if err != nil {
			item.State = ItemFailed
			item.Err = err
			setFromRequestError(item, err)
			return err
		}

		item.StatusCode = outcome.StatusCode
		item.Attempts = outcome.Attempts
		if outcome.State == engine.Succeeded {
			item.State = ItemSucceeded
		} else {
			item.State = ItemExhausted
		}
		return nil
	})

	return o.finish("delete", res, err, start)
}

// fanOut starts one goroutine per item and waits for all of them. A failing
// item never cancels its siblings. The first error is returned after every
// item has finished.
func (o *Orchestrator) fanOut(ctx context.Context, n int, run func(ctx context.Context, i int) error) error {
	var g errgroup.Group
	if o.maxInFlight > 0 {
		g.SetLimit(o.maxInFlight)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return run(ctx, i)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) finish(op string, res *Result, err error, start time.Time) (*Result, error) {
	logger.Info("Batch finished",
		"op", op,
		"items", len(res.Items),
		"succeeded", res.Count(ItemSucceeded),
		"exhausted", res.Count(ItemExhausted),
		"failed", res.Count(ItemFailed),
		"responses", len(res.StatusCodes),
		"duration", time.Since(start).String(),
	)
	if err != nil {
		return nil, &BatchError{
			Failed: res.Count(ItemFailed),
			Total:  len(res.Items),
			First:  err,
			Result: res,
		}
	}
	return res, nil
}

// setFromRequestError copies the failing status and attempt count into item.
func setFromRequestError(item *ItemOutcome, err error) {
	var reqErr *engine.RequestError
	if errors.As(err, &reqErr) {
		item.StatusCode = reqErr.StatusCode
		item.Attempts = reqErr.Attempts
	}
}
