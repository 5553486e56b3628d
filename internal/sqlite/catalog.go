package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tmsantos/pacsexport/internal/config"
	"github.com/tmsantos/pacsexport/internal/resolve"
)

// Study is one candidate row from the catalog snapshot.
type Study struct {
	PK          int64
	UID         string
	StudyDate   string
	DateAdded   string
	BirthDate   string
	PatientName string
}

// Catalog queries the snapshot of the external Horos database. The
// connection is read-only with the export ledger attached read-only, so
// batch selection can exclude already-exported studies in SQL.
type Catalog struct {
	db *DB
}

// OpenCatalog opens the snapshot read-only and attaches the ledger
// store under the "ledger" schema name, also read-only.
func OpenCatalog(snapshotPath, ledgerPath string) (*Catalog, error) {
	db, err := OpenReadOnly(snapshotPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`ATTACH DATABASE ? AS ledger`, "file:"+ledgerPath+"?mode=ro"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to attach ledger: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close releases the underlying connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Stats are the diagnostic counts logged before batch selection.
type Stats struct {
	// StudiesPerModality counts distinct studies carrying at least one
	// series of each configured modality.
	StudiesPerModality map[string]int
	// TotalCandidates is the number of distinct eligible studies.
	TotalCandidates int
	// ExportedInCandidates is how many of those are already in the ledger.
	ExportedInCandidates int
	// Pending is the difference, floored at zero.
	Pending int
}

func modalityPlaceholders(modalities []string) (string, []any) {
	marks := make([]string, len(modalities))
	args := make([]any, len(modalities))
	for i, m := range modalities {
		marks[i] = "?"
		args[i] = m
	}
	return strings.Join(marks, ","), args
}

// Stats computes observability counts over the snapshot and ledger.
func (c *Catalog) Stats(ctx context.Context, modalities []string) (*Stats, error) {
	st := &Stats{StudiesPerModality: make(map[string]int, len(modalities))}

	for _, m := range modalities {
		var n int
		err := c.db.QueryRowContext(ctx,
			`SELECT COUNT(DISTINCT s.ZSTUDY) FROM ZSERIES s
			 WHERE TRIM(UPPER(COALESCE(s.ZMODALITY,''))) = ?`, m).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s studies: %w", m, err)
		}
		st.StudiesPerModality[m] = n
	}

	marks, args := modalityPlaceholders(modalities)
	query := fmt.Sprintf(`
		WITH cs AS (
			SELECT DISTINCT s.ZSTUDY AS ZSTUDY
			FROM ZSERIES s
			WHERE TRIM(UPPER(COALESCE(s.ZMODALITY,''))) IN (%s)
		)
		SELECT
			(SELECT COUNT(*) FROM cs) AS total_candidates,
			(
				SELECT COUNT(*)
				FROM cs
				JOIN ZSTUDY st ON st.Z_PK = cs.ZSTUDY
				JOIN ledger.Exported ex ON ex.studyInstanceUID = st.ZSTUDYINSTANCEUID
			) AS exported_in_candidates
	`, marks)

	err := c.db.QueryRowContext(ctx, query, args...).Scan(&st.TotalCandidates, &st.ExportedInCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to compute candidate stats: %w", err)
	}
	st.Pending = st.TotalCandidates - st.ExportedInCandidates
	if st.Pending < 0 {
		st.Pending = 0
	}
	return st, nil
}

// SelectBatch returns up to batchSize eligible studies that have no
// ledger row, ordered by the configured sort key ascending with the
// study UID as tiebreaker. The ordering is deterministic across runs so
// failed studies are retried before new work is taken on.
func (c *Catalog) SelectBatch(ctx context.Context, modalities []string, orderBy string, batchSize int) ([]Study, error) {
	orderCol := "studyDate"
	if orderBy == config.OrderByDateAdded {
		orderCol = "dateAdded"
	}

	marks, args := modalityPlaceholders(modalities)
	query := fmt.Sprintf(`
		WITH CandidateStudies AS (
			SELECT
				st.Z_PK                                        AS studyPK,
				st.ZSTUDYINSTANCEUID                           AS studyUID,
				COALESCE(CAST(st.ZDATE AS TEXT),'')            AS studyDate,
				COALESCE(CAST(st.ZDATEADDED AS TEXT),'')       AS dateAdded,
				COALESCE(CAST(st.ZDATEOFBIRTH AS TEXT),'')     AS dob,
				COALESCE(st.ZNAME,'')                          AS patientName
			FROM ZSTUDY st
			WHERE EXISTS (
				SELECT 1
				FROM ZSERIES s
				WHERE s.ZSTUDY = st.Z_PK
				  AND TRIM(UPPER(COALESCE(s.ZMODALITY,''))) IN (%s)
			)
		)
		SELECT cs.studyPK, cs.studyUID, cs.studyDate, cs.dateAdded, cs.dob, cs.patientName
		FROM CandidateStudies cs
		LEFT JOIN ledger.Exported ex ON ex.studyInstanceUID = cs.studyUID
		WHERE ex.studyInstanceUID IS NULL
		ORDER BY cs.%s ASC, cs.studyUID ASC
		LIMIT ?
	`, marks, orderCol)

	args = append(args, batchSize)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select study batch: %w", err)
	}
	defer rows.Close()

	var batch []Study
	for rows.Next() {
		var s Study
		if err := rows.Scan(&s.PK, &s.UID, &s.StudyDate, &s.DateAdded, &s.BirthDate, &s.PatientName); err != nil {
			return nil, fmt.Errorf("failed to scan study row: %w", err)
		}
		batch = append(batch, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read study batch: %w", err)
	}
	return batch, nil
}

// ImageRefs returns the distinct image path references of a study,
// skipping rows without a path string.
func (c *Catalog) ImageRefs(ctx context.Context, studyPK int64) ([]resolve.ImageRef, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT
			i.ZPATHSTRING,
			i.ZPATHNUMBER,
			i.ZSTOREDINDATABASEFOLDER
		FROM ZSERIES s
		JOIN ZIMAGE i ON i.ZSERIES = s.Z_PK
		WHERE s.ZSTUDY = ?
		  AND i.ZPATHSTRING IS NOT NULL
		  AND i.ZPATHSTRING <> ''
	`, studyPK)
	if err != nil {
		return nil, fmt.Errorf("failed to query image paths: %w", err)
	}
	defer rows.Close()

	var refs []resolve.ImageRef
	for rows.Next() {
		var path string
		var number, inManaged sql.NullInt64
		if err := rows.Scan(&path, &number, &inManaged); err != nil {
			return nil, fmt.Errorf("failed to scan image row: %w", err)
		}
		ref := resolve.ImageRef{
			PathString:      path,
			InManagedFolder: inManaged.Valid && inManaged.Int64 == 1,
		}
		if number.Valid {
			ref.PathNumber = fmt.Sprintf("%d", number.Int64)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read image rows: %w", err)
	}
	return refs, nil
}
