package worklog

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// IDFile is the YAML document listing worklog ids created by a run. It is the
// input of a cleanup run.
type IDFile struct {
	WorklogIDs []int64 `yaml:"worklog_ids"`
}

// WriteIDs writes ids to path as an IDFile.
func WriteIDs(path string, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	data, err := yaml.Marshal(IDFile{WorklogIDs: ids})
	if err != nil {
		return fmt.Errorf("failed to marshal worklog ids: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadIDs reads the worklog ids stored in an IDFile.
func ReadIDs(path string) ([]int64, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Trusted file path input
	if err != nil {
		return nil, err
	}
	var doc IDFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for i, id := range doc.WorklogIDs {
		if id <= 0 {
			return nil, fmt.Errorf("%s: worklog_ids[%d] must be a positive id, got %d", path, i, id)
		}
	}
	return doc.WorklogIDs, nil
}
