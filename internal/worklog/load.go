package worklog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// Entry is one unvalidated input row.
type Entry struct {
	Issue     string `yaml:"issue"`
	TimeSpent string `yaml:"time_spent"`
	StartDate string `yaml:"start_date"`
	StartTime string `yaml:"start_time"`
}

// entryFile is the YAML input layout.
type entryFile struct {
	Worklogs []Entry `yaml:"worklogs"`
}

var csvColumns = []string{FieldIssue, FieldTimeSpent, FieldStartDate, FieldStartTime}

// Load reads every entry of the input file and validates it. Files ending in
// .yaml or .yml are read as YAML, anything else as CSV. The first invalid row
// aborts the load with a *ValidationError.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path) //nolint:gosec // Trusted file path input
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		entries, err = ReadYAML(f)
	default:
		entries, err = ReadCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return Validate(entries)
}

// Validate turns raw entries into records, stopping at the first invalid one.
func Validate(entries []Entry) ([]Record, error) {
	records := make([]Record, 0, len(entries))
	for i, e := range entries {
		rec, err := New(e.Issue, e.TimeSpent, e.StartDate, e.StartTime)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				verr.Row = i + 1
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadCSV reads entries from CSV with a header row naming the columns
// issue, time_spent, start_date and start_time in any order.
func ReadCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("missing header row")
	}
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, col := range csvColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var entries []Entry
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Issue:     row[index[FieldIssue]],
			TimeSpent: row[index[FieldTimeSpent]],
			StartDate: row[index[FieldStartDate]],
			StartTime: row[index[FieldStartTime]],
		})
	}
	return entries, nil
}

// ReadYAML reads entries from a document with a top-level worklogs list.
func ReadYAML(r io.Reader) ([]Entry, error) {
	var doc entryFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, err
	}
	return doc.Worklogs, nil
}
