package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// errCountStop aborts the walk once the ceiling is exceeded.
var errCountStop = errors.New("count ceiling exceeded")

// verifyVolume checks that the external volume is mounted and carries
// the sentinel marker file.
func (c *Coordinator) verifyVolume() error {
	if _, err := os.Stat(c.cfg.VolumeRoot); err != nil {
		return fmt.Errorf("%w: %s", ErrVolumeUnavailable, c.cfg.VolumeRoot)
	}
	if _, err := os.Stat(c.cfg.SentinelPath()); err != nil {
		return fmt.Errorf("%w: sentinel %s", ErrVolumeUnavailable, c.cfg.SentinelPath())
	}
	return nil
}

// countFilesEarly counts regular files under root, giving up as soon as
// the count exceeds stopAfter. Filesystem errors and vanished entries
// are skipped; a missing root counts as zero.
func countFilesEarly(root string, stopAfter int) int {
	count := 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return filepath.SkipAll
			}
			return nil
		}
		if d.Type().IsRegular() {
			count++
			if count > stopAfter {
				return errCountStop
			}
		}
		return nil
	})
	return count
}

// logLayout emits a debug summary of the external directory layout,
// including a sample of numeric managed subfolders. Diagnostics only.
func (c *Coordinator) logLayout() {
	dataDir := c.cfg.DataDir()
	managedDir := c.cfg.ManagedDir()
	c.logger.Debug("filesystem layout", "data_dir", dataDir, "data_dir_exists", dirExists(dataDir),
		"managed_dir", managedDir, "managed_dir_exists", dirExists(managedDir))

	entries, err := os.ReadDir(managedDir)
	if err != nil {
		return
	}
	var sample []string
	for _, e := range entries {
		if e.IsDir() && isNumeric(e.Name()) {
			sample = append(sample, e.Name())
			if len(sample) >= 10 {
				break
			}
		}
	}
	c.logger.Debug("managed storage subfolders", "sample", sample)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
