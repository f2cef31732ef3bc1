// Package worklog holds the validated worklog record and the loaders that
// turn input files into records.
package worklog

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the accepted and emitted start date format (YYYY-MM-DD).
	DateLayout = "2006-01-02"
	// TimeLayout is the accepted and emitted start time format (HH:MM:SS, 24-hour).
	TimeLayout = "15:04:05"
)

// Field names used in validation errors. They match the input column names.
const (
	FieldIssue     = "issue"
	FieldTimeSpent = "time_spent"
	FieldStartDate = "start_date"
	FieldStartTime = "start_time"
)

var (
	ErrEmptyIssue           = errors.New("issue must not be empty")
	ErrInvalidDurationUnit  = errors.New("time spent unit must be one of s, m, h, d, w")
	ErrInvalidDurationValue = errors.New("time spent amount is not a non-negative number")
	ErrInvalidDate          = errors.New("incorrect date format, should be YYYY-MM-DD")
	ErrInvalidTime          = errors.New("incorrect time format, should be HH:MM:SS")
)

// unitSeconds converts a duration suffix into seconds.
var unitSeconds = map[byte]float64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
	'w': 604800,
}

var amountPattern = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)

// time.Parse tolerates a fractional second after the seconds field, so the
// shape is checked first.
var timePattern = regexp.MustCompile(`^\d{1,2}:\d{2}:\d{2}$`)

// ValidationError reports the input field that failed to validate. Row is the
// 1-based data row of the input file, or 0 when the record was built directly.
type ValidationError struct {
	Row   int
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: invalid %s %q: %v", e.Row, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Record is one validated worklog. It is built once per input row and is not
// modified afterwards.
type Record struct {
	Issue            string
	TimeSpentSeconds int64
	StartDate        time.Time
	StartTime        time.Time
}

// New validates the four raw input fields and returns the canonical record.
func New(issue, timeSpent, startDate, startTime string) (Record, error) {
	if issue == "" {
		return Record{}, &ValidationError{Field: FieldIssue, Value: issue, Err: ErrEmptyIssue}
	}

	seconds, err := ParseTimeSpent(timeSpent)
	if err != nil {
		return Record{}, &ValidationError{Field: FieldTimeSpent, Value: timeSpent, Err: err}
	}

	date, err := time.Parse(DateLayout, startDate)
	if err != nil {
		return Record{}, &ValidationError{Field: FieldStartDate, Value: startDate, Err: ErrInvalidDate}
	}

	if !timePattern.MatchString(startTime) {
		return Record{}, &ValidationError{Field: FieldStartTime, Value: startTime, Err: ErrInvalidTime}
	}
	tod, err := time.Parse(TimeLayout, startTime)
	if err != nil {
		return Record{}, &ValidationError{Field: FieldStartTime, Value: startTime, Err: ErrInvalidTime}
	}

	return Record{
		Issue:            issue,
		TimeSpentSeconds: seconds,
		StartDate:        date,
		StartTime:        tod,
	}, nil
}

// ParseTimeSpent converts an amount followed by a single unit letter
// (s, m, h, d or w) into whole seconds, rounding to the nearest second with
// ties to even. "5.5h" yields 19800 and "2.5s" yields 2. A missing or unknown unit is ErrInvalidDurationUnit.
func ParseTimeSpent(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, ErrInvalidDurationUnit
	}

	unit, ok := unitSeconds[value[len(value)-1]]
	if !ok {
		return 0, ErrInvalidDurationUnit
	}

	amount := value[:len(value)-1]
	if !amountPattern.MatchString(amount) {
		return 0, ErrInvalidDurationValue
	}
	n, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, ErrInvalidDurationValue
	}

	seconds := math.RoundToEven(n * unit)
	if seconds >= math.MaxInt64 {
		return 0, ErrInvalidDurationValue
	}
	return int64(seconds), nil
}

// StartDateString returns the start date as YYYY-MM-DD.
func (r Record) StartDateString() string {
	return r.StartDate.Format(DateLayout)
}

// StartTimeString returns the start time as HH:MM:SS.
func (r Record) StartTimeString() string {
	return r.StartTime.Format(TimeLayout)
}
