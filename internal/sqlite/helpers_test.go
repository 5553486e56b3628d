package sqlite

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newCatalogDB creates a file-backed database with the subset of the
// Horos Core Data schema the exporter reads.
func newCatalogDB(t *testing.T, path string) *DB {
	t.Helper()

	db, err := Open(path)
	require.NoError(t, err, "failed to create catalog fixture")

	schema := `
		CREATE TABLE ZSTUDY (
			Z_PK INTEGER PRIMARY KEY,
			ZSTUDYINSTANCEUID TEXT,
			ZDATE TEXT,
			ZDATEADDED TEXT,
			ZDATEOFBIRTH TEXT,
			ZNAME TEXT
		);
		CREATE TABLE ZSERIES (
			Z_PK INTEGER PRIMARY KEY,
			ZSTUDY INTEGER,
			ZMODALITY TEXT
		);
		CREATE TABLE ZIMAGE (
			Z_PK INTEGER PRIMARY KEY,
			ZSERIES INTEGER,
			ZPATHSTRING TEXT,
			ZPATHNUMBER INTEGER,
			ZSTOREDINDATABASEFOLDER INTEGER
		);
	`
	_, err = db.Exec(schema)
	require.NoError(t, err, "failed to create catalog schema")

	t.Cleanup(func() { db.Close() })
	return db
}

func insertStudy(t *testing.T, db *DB, pk int64, uid, date, dateAdded, dob, name string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO ZSTUDY (Z_PK, ZSTUDYINSTANCEUID, ZDATE, ZDATEADDED, ZDATEOFBIRTH, ZNAME)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		pk, uid, date, dateAdded, dob, name)
	require.NoError(t, err)
}

func insertSeries(t *testing.T, db *DB, pk, studyPK int64, modality string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO ZSERIES (Z_PK, ZSTUDY, ZMODALITY) VALUES (?, ?, ?)`,
		pk, studyPK, modality)
	require.NoError(t, err)
}

func insertImage(t *testing.T, db *DB, seriesPK int64, path any, number any, inManaged any) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO ZIMAGE (ZSERIES, ZPATHSTRING, ZPATHNUMBER, ZSTOREDINDATABASEFOLDER)
		 VALUES (?, ?, ?, ?)`,
		seriesPK, path, number, inManaged)
	require.NoError(t, err)
}
