// Package journal implements the run journal (C9): an append-only JSON
// array of one entry per run, read back for the dashboard's history page.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is one terminal record of a run (spec §3 RunJournalEntry, §6
// run_logs.json shape). Readers must tolerate missing fields from older
// entries, so every field is individually optional on decode.
type Entry struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"startedAt"`
	EndedAt          time.Time `json:"endedAt"`
	DurationSeconds  float64   `json:"durationSeconds"`
	Manager          string    `json:"manager"`
	RequestedStart   int       `json:"requestedStart"`
	RequestedMax     int       `json:"requestedMax"`
	ActualFarmCount  int       `json:"actualFarmCount"`
	FarmsCompleted   int       `json:"farmsCompleted"`
	DatesProcessed   int       `json:"datesProcessed"`
	ChartsClicked    int       `json:"chartsClicked"`
	Success          int       `json:"success"`
	Skip             int       `json:"skip"`
	Error            int       `json:"error"`
	NoIrrigation     int       `json:"noIrrigation"`
	DateRangeStart   string    `json:"dateRangeStart,omitempty"`
	DateRangeEnd     string    `json:"dateRangeEnd,omitempty"`
	TerminalState    string    `json:"terminalState"` // completed, aborted, fatal_error
	Notes            string    `json:"notes,omitempty"`
}

// Journal persists Entry values to a fixed JSON file path.
type Journal struct {
	path string
}

// New returns a Journal backed by path.
func New(path string) *Journal {
	return &Journal{path: path}
}

// List reads every persisted entry, newest first, tolerating a missing
// file.
func (j *Journal) List() ([]Entry, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: read %s: %w", j.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("journal: parse %s: %w", j.path, err)
	}
	for i, j, n := 0, len(entries)-1, len(entries); i < n/2; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Append adds entry to the journal, preserving chronological (append)
// order on disk, and writes the file atomically.
func (j *Journal) Append(entry Entry) error {
	data, err := os.ReadFile(j.path)
	var entries []Entry
	if err == nil && len(data) > 0 {
		if uerr := json.Unmarshal(data, &entries); uerr != nil {
			return fmt.Errorf("journal: parse %s: %w", j.path, uerr)
		}
	} else if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("journal: read %s: %w", j.path, err)
	}

	entries = append(entries, entry)

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("journal: mkdir: %w", err)
	}

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	out = append(out, '\n')

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("journal: write temp: %w", err)
	}
	return os.Rename(tmp, j.path)
}
