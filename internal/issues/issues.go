// Package issues records per-study problems encountered during an
// export cycle. The coordinator emits typed records; a sink persists
// them. The shipped sink appends to a CSV file that operators review.
package issues

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Kind classifies an issue record.
type Kind string

const (
	// KindIncomingOverLimit: the inbound staging directory exceeded the
	// configured file ceiling and the cycle was skipped.
	KindIncomingOverLimit Kind = "INCOMING_OVER_LIMIT"
	// KindNoFiles: none of a study's image references resolved to an
	// existing file.
	KindNoFiles Kind = "NO_FILES"
	// KindZipFail: archiving a study failed after all retry attempts.
	KindZipFail Kind = "ZIP_FAIL"
)

// Record is one issue event.
type Record struct {
	Timestamp time.Time
	Kind      Kind
	StudyUID  string
	Detail    string
	// Extra carries structured context (checked path candidates,
	// attempt counts). Serialized as JSON in the extra column.
	Extra map[string]any
}

// Sink persists issue records.
type Sink interface {
	Append(rec Record) error
}

var csvHeader = []string{"timestamp", "kind", "study_uid", "detail", "extra"}

// CSVSink appends records to a CSV file, writing the header when the
// file does not exist yet.
type CSVSink struct {
	path string
}

// NewCSVSink creates a sink writing to path.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// Append writes one record, creating the file (with header) on first use.
func (s *CSVSink) Append(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create issues dir: %w", err)
	}

	_, statErr := os.Stat(s.path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open issues file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("write issues header: %w", err)
		}
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	extra := ""
	if len(rec.Extra) > 0 {
		b, err := json.Marshal(rec.Extra)
		if err != nil {
			return fmt.Errorf("encode issue extra: %w", err)
		}
		extra = string(b)
	}

	row := []string{ts.Format("2006-01-02T15:04:05"), string(rec.Kind), rec.StudyUID, rec.Detail, extra}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write issue row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush issues file: %w", err)
	}
	return nil
}

// Count returns the number of recorded issues (header excluded).
// A missing file counts as zero.
func (s *CSVSink) Count() (int, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open issues file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read issues file: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return len(rows) - 1, nil
}
