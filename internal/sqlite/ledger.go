package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NoFilesSentinel is the zip_path value recorded under the suppress
// policy when a study had no resolvable files.
const NoFilesSentinel = "NO_FILES"

// ErrNotExported indicates a study has no ledger row.
var ErrNotExported = errors.New("study not in export ledger")

// Ledger is the durable record of completed export outcomes, keyed by
// study instance UID. Its presence in the table is the sole idempotence
// mechanism: a marked study never re-enters a candidate batch.
type Ledger struct {
	db   *DB
	path string
}

// ExportedRecord is one ledger row.
type ExportedRecord struct {
	StudyUID     string
	WhenExported time.Time
	ZipPath      string
}

// OpenLedger opens (creating the schema if needed) the ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	schema := `
		CREATE TABLE IF NOT EXISTS Exported (
			studyInstanceUID TEXT PRIMARY KEY,
			when_exported    TEXT NOT NULL,
			zip_path         TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return &Ledger{db: db, path: path}, nil
}

// Path returns the on-disk location of the ledger store.
func (l *Ledger) Path() string {
	return l.path
}

// Close releases the underlying connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Mark records a terminal export outcome for a study. It is an upsert:
// repeating the same UID overwrites the earlier row, which is what a
// successful retry within one cycle needs.
func (l *Ledger) Mark(ctx context.Context, studyUID, zipPath string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO Exported (studyInstanceUID, when_exported, zip_path)
		 VALUES (?, datetime('now'), ?)`,
		studyUID, zipPath)
	if err != nil {
		return fmt.Errorf("failed to mark study %s exported: %w", studyUID, err)
	}
	return nil
}

// Get fetches the ledger row for a study, or ErrNotExported.
func (l *Ledger) Get(ctx context.Context, studyUID string) (*ExportedRecord, error) {
	var rec ExportedRecord
	var when string
	err := l.db.QueryRowContext(ctx,
		`SELECT studyInstanceUID, when_exported, zip_path FROM Exported WHERE studyInstanceUID = ?`,
		studyUID).Scan(&rec.StudyUID, &when, &rec.ZipPath)
	if err == sql.ErrNoRows {
		return nil, ErrNotExported
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exported record: %w", err)
	}
	if t, perr := time.Parse("2006-01-02 15:04:05", when); perr == nil {
		rec.WhenExported = t
	}
	return &rec, nil
}

// Count returns the number of recorded export outcomes.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM Exported`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count exported records: %w", err)
	}
	return n, nil
}
