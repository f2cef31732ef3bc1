// Package report prints the per-item outcome of a batch for the user.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"tempolog/internal/batch"
)

var (
	colorDim    = lipgloss.AdaptiveColor{Light: "242", Dark: "240"}
	colorGreen  = lipgloss.AdaptiveColor{Light: "28", Dark: "40"}
	colorRed    = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	colorYellow = lipgloss.AdaptiveColor{Light: "136", Dark: "220"}
)

var (
	styleHeader  = lipgloss.NewStyle().Bold(true)
	styleLabel   = lipgloss.NewStyle().Foreground(colorDim)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarning = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	styleError   = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
)

// column widths of the item table
var widths = []int{5, 14, 12, 11, 7, 8}

func stateStyle(state batch.ItemState) lipgloss.Style {
	switch state {
	case batch.ItemSucceeded:
		return styleSuccess
	case batch.ItemExhausted:
		return styleWarning
	default:
		return styleError
	}
}

// row joins cells into one line. Cells wider than their column are cut so
// the row never wraps.
func row(cells ...string) string {
	line := ""
	for i, c := range cells {
		if i < len(widths) {
			c = lipgloss.NewStyle().Width(widths[i]).Render(truncate(c, widths[i]))
		}
		line += c + " "
	}
	return line
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) >= width {
		r = r[:width-1]
	}
	return string(r) + "…"
}

// Write prints one line per item followed by a summary. op is "create" or
// "delete". res may be the Result carried by a *batch.BatchError.
func Write(w io.Writer, op string, res *batch.Result) {
	fmt.Fprintln(w, styleHeader.Render(row("#", "ISSUE", "WORKLOG", "STATE", "STATUS", "ATTEMPTS", "ERROR")))

	for _, it := range res.Items {
		issue := it.Issue
		if issue == "" {
			issue = "-"
		}
		worklogID := "-"
		if it.WorklogID != 0 {
			worklogID = strconv.FormatInt(it.WorklogID, 10)
		}
		status := "-"
		if it.StatusCode != 0 {
			status = strconv.Itoa(it.StatusCode)
		}
		errText := ""
		if it.Err != nil {
			errText = styleError.Render(it.Err.Error())
		}
		state := string(it.State)
		if state == "" {
			state = "pending"
		}

		fmt.Fprintln(w, row(
			strconv.Itoa(it.Index+1),
			issue,
			worklogID,
			stateStyle(it.State).Render(state),
			status,
			strconv.Itoa(it.Attempts),
			errText,
		))
	}

	fmt.Fprintln(w, Summary(op, res))
}

// Summary returns the one-line totals of a batch.
func Summary(op string, res *batch.Result) string {
	succeeded := res.Count(batch.ItemSucceeded)
	exhausted := res.Count(batch.ItemExhausted)
	failed := res.Count(batch.ItemFailed)

	line := fmt.Sprintf("%s %s %d/%d succeeded",
		styleLabel.Render(op+":"),
		styleSuccess.Render("✓"),
		succeeded, len(res.Items))
	if exhausted > 0 {
		line += ", " + styleWarning.Render(fmt.Sprintf("%d rate limited past every retry", exhausted))
	}
	if failed > 0 {
		line += ", " + styleError.Render(fmt.Sprintf("%d failed", failed))
	}
	return line + styleLabel.Render(fmt.Sprintf(" (%d responses)", len(res.StatusCodes)))
}
