// Package archive builds and verifies the ZIP files produced for each
// exported study.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// WriteZip packages the given files into a ZIP at dest atomically.
//
// The archive is assembled as a ".part" file inside a temporary sibling
// directory on the same volume and renamed onto dest only once fully
// written, so dest is never observable half-built. Inputs that are not
// regular files at write time are skipped. Entries are named by their
// base filename; same-named inputs from different folders overwrite one
// another inside the archive (last write wins).
func WriteZip(files []string, dest string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(dest), ".export_tmp_")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	tmpZip := filepath.Join(tmpDir, filepath.Base(dest)+".part")
	if err := writeZipFile(files, tmpZip); err != nil {
		return err
	}

	if err := os.Rename(tmpZip, dest); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func writeZipFile(files []string, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
	}()

	zw := zip.NewWriter(f)
	for _, src := range files {
		info, statErr := os.Stat(src)
		if statErr != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := addFile(zw, src, info); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip writer: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, src string, info os.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %s: %w", src, err)
	}
	hdr.Name = filepath.Base(src)
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", hdr.Name, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("write entry %s: %w", hdr.Name, err)
	}
	return nil
}

// Verify re-opens the archive at path and scans every entry end to end,
// forcing CRC validation. It returns false on any failure, logging the
// offending entry, and never panics or propagates an error.
func Verify(path string, logger *slog.Logger) bool {
	zr, err := zip.OpenReader(path)
	if err != nil {
		logger.Error("archive failed to open for verification", "zip", path, "error", err)
		return false
	}
	defer zr.Close()

	for _, entry := range zr.File {
		if !scanEntry(entry) {
			logger.Error("archive entry failed verification", "zip", path, "entry", entry.Name)
			return false
		}
	}
	return true
}

func scanEntry(entry *zip.File) bool {
	rc, err := entry.Open()
	if err != nil {
		return false
	}
	defer rc.Close()

	// Draining the reader checks the stored CRC32 at EOF.
	_, err = io.Copy(io.Discard, rc)
	return err == nil
}
