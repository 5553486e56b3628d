package export

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// MonthDoneMarker is the completion marker file inside a month folder.
// A month folder without it is considered incomplete and is purged
// wholesale at the start of the next cycle.
const MonthDoneMarker = ".month_done"

var monthDirRe = regexp.MustCompile(`^[0-9]{4}_[0-1][0-9]$`)

// listMonthDirs is the one documented filesystem scan for month
// folders: the sorted list of YYYY_MM directories under the backup
// root. Everything else works off the coordinator's own month map.
func listMonthDirs(backupRoot string) []string {
	entries, err := os.ReadDir(backupRoot)
	if err != nil {
		return nil
	}
	var months []string
	for _, e := range entries {
		if e.IsDir() && monthDirRe.MatchString(e.Name()) {
			months = append(months, e.Name())
		}
	}
	sort.Strings(months)
	return months
}

// purgeIncompleteLatestMonth deletes the most recent month folder when
// it lacks the completion marker, treating a prior crash mid-month as
// "redo this month". Best effort.
func (c *Coordinator) purgeIncompleteLatestMonth() {
	months := listMonthDirs(c.cfg.BackupRoot())
	if len(months) == 0 {
		return
	}
	latest := months[len(months)-1]
	dir := c.cfg.MonthDir(latest)
	if _, err := os.Stat(filepath.Join(dir, MonthDoneMarker)); err == nil {
		return
	}
	c.logger.Warn("purging incomplete month folder", "month", latest, "dir", dir)
	if err := os.RemoveAll(dir); err != nil {
		c.logger.Warn("failed to purge month folder", "dir", dir, "error", err)
	}
}

// markMonthDone drops the completion marker into a month folder.
// Best effort: a failed touch is logged, never propagated.
func (c *Coordinator) markMonthDone(monthKey string) {
	dir := c.cfg.MonthDir(monthKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.logger.Warn("failed to mark month done", "dir", dir, "error", err)
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, MonthDoneMarker), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		c.logger.Warn("failed to mark month done", "dir", dir, "error", err)
		return
	}
	f.Close()
}
