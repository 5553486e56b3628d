// Package export contains the run coordinator: the component that
// drives one export cycle from guard checks through batch selection,
// per-study archival and completion bookkeeping.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tmsantos/pacsexport/internal/archive"
	"github.com/tmsantos/pacsexport/internal/config"
	"github.com/tmsantos/pacsexport/internal/dates"
	"github.com/tmsantos/pacsexport/internal/issues"
	"github.com/tmsantos/pacsexport/internal/lockfile"
	"github.com/tmsantos/pacsexport/internal/naming"
	"github.com/tmsantos/pacsexport/internal/resolve"
	"github.com/tmsantos/pacsexport/internal/sqlite"
)

const (
	// maxZipAttempts bounds the archive+verify retries per study.
	maxZipAttempts = 3
	// retryPause is the fixed pause between attempts. No jitter, no
	// exponential growth; the shared volume just needs breathing room.
	retryPause = time.Second

	// checkedSampleSize caps the candidate-path sample attached to a
	// NO_FILES issue.
	checkedSampleSize = 5
)

// Coordinator runs export cycles. Construct one per process invocation.
type Coordinator struct {
	cfg       config.Config
	logger    *slog.Logger
	issues    issues.Sink
	snapshots *sqlite.SnapshotProvider
	resolver  *resolve.Resolver

	// sleep is swapped out in tests to skip pacing delays.
	sleep func(time.Duration)
}

// New wires a coordinator for the given configuration. Every cycle run
// by it is tagged with a fresh run ID in the log stream. A nil sink
// defaults to the CSV file under the backup root.
func New(cfg config.Config, logger *slog.Logger, sink issues.Sink) *Coordinator {
	if sink == nil {
		sink = issues.NewCSVSink(cfg.IssuesPath())
	}
	log := logger.With("run_id", uuid.NewString())
	return &Coordinator{
		cfg:       cfg,
		logger:    log,
		issues:    sink,
		snapshots: sqlite.NewSnapshotProvider(cfg, log),
		resolver:  resolve.New(cfg.ManagedDir(), cfg.DataDir()),
		sleep:     time.Sleep,
	}
}

// Run executes one export cycle to a terminal outcome. Guarded exits
// (lock busy, inbound overload, empty batch) return a nil error; fatal
// conditions return OutcomeFatalAborted with the cause.
func (c *Coordinator) Run(ctx context.Context) (Outcome, error) {
	lock, err := lockfile.Acquire(c.cfg.LockfilePath())
	if errors.Is(err, lockfile.ErrHeld) {
		c.logger.Info("previous run still in progress, skipping this cycle")
		return OutcomeSkippedLocked, nil
	}
	if err != nil {
		return OutcomeFatalAborted, fmt.Errorf("acquire run lock: %w", err)
	}
	defer lock.Release()

	if err := c.verifyVolume(); err != nil {
		return OutcomeFatalAborted, err
	}
	if err := os.MkdirAll(c.cfg.TmpRoot(), 0o755); err != nil {
		return OutcomeFatalAborted, fmt.Errorf("prepare backup dirs: %w", err)
	}

	incoming := countFilesEarly(c.cfg.IncomingDir(), c.cfg.Export.IncomingMaxFiles)
	c.logger.Info("inbound staging count",
		"count", incoming, "ceiling", c.cfg.Export.IncomingMaxFiles)
	if incoming > c.cfg.Export.IncomingMaxFiles {
		c.logger.Warn("inbound staging over ceiling, skipping this cycle")
		c.recordIssue(issues.KindIncomingOverLimit, "-",
			fmt.Sprintf("count=%d", incoming),
			map[string]any{"limit": c.cfg.Export.IncomingMaxFiles})
		return OutcomeSkippedOverloaded, nil
	}

	c.purgeIncompleteLatestMonth()
	c.logLayout()

	snapPath, err := c.snapshots.Obtain(ctx)
	if err != nil {
		return OutcomeFatalAborted, fmt.Errorf("prepare snapshot: %w", err)
	}

	ledger, err := sqlite.OpenLedger(c.cfg.LedgerPath())
	if err != nil {
		return OutcomeFatalAborted, fmt.Errorf("open ledger: %w", err)
	}
	defer ledger.Close()

	catalog, err := sqlite.OpenCatalog(snapPath, ledger.Path())
	if err != nil {
		return OutcomeFatalAborted, fmt.Errorf("open snapshot catalog: %w", err)
	}
	defer catalog.Close()

	// Diagnostics only; a failure here never aborts the cycle.
	if stats, err := catalog.Stats(ctx, c.cfg.Export.Modalities); err != nil {
		c.logger.Warn("failed to compute candidate stats", "error", err)
	} else {
		c.logger.Info("candidate stats",
			"per_modality", stats.StudiesPerModality,
			"candidates", stats.TotalCandidates,
			"exported", stats.ExportedInCandidates,
			"pending", stats.Pending)
	}

	batch, err := catalog.SelectBatch(ctx,
		c.cfg.Export.Modalities, c.cfg.Export.OrderBy, c.cfg.Export.BatchSize)
	if err != nil {
		return OutcomeFatalAborted, fmt.Errorf("select batch: %w", err)
	}
	c.logger.Info("batch selected",
		"studies", len(batch),
		"order_by", c.cfg.Export.OrderBy,
		"modalities", c.cfg.Export.Modalities,
		"batch_size", c.cfg.Export.BatchSize)

	if len(batch) == 0 {
		c.logger.Info("nothing to export this cycle")
		return OutcomeNothingToDo, nil
	}

	successByMonth := make(map[string]int)
	for _, study := range batch {
		if err := c.exportStudy(ctx, catalog, ledger, study, successByMonth); err != nil {
			return OutcomeFatalAborted, err
		}
		c.sleep(c.cfg.Export.SleepBetweenStudies.Std())
	}

	for monthKey, n := range successByMonth {
		if n > 0 {
			c.markMonthDone(monthKey)
		}
	}
	return OutcomeCompleted, nil
}

// exportStudy processes one study: resolve its files, archive them with
// retries, and record the outcome. Per-study problems become issue
// records; only ledger or catalog failures propagate as fatal.
func (c *Coordinator) exportStudy(ctx context.Context, catalog *sqlite.Catalog, ledger *sqlite.Ledger, study sqlite.Study, successByMonth map[string]int) error {
	log := c.logger.With("study_uid", study.UID)

	monthKey := dates.MonthKey(study.StudyDate)
	monthDir := c.cfg.MonthDir(monthKey)
	zipPath := naming.BuildZipPath(monthDir,
		study.PatientName, study.BirthDate, study.StudyDate, study.UID,
		c.cfg.Export.MaxNameLen)
	log.Debug("archive destination", "month", monthKey, "zip", zipPath)

	refs, err := catalog.ImageRefs(ctx, study.PK)
	if err != nil {
		return fmt.Errorf("fetch image paths for %s: %w", study.UID, err)
	}

	var files []string
	var checked []checkedCandidate
	for _, ref := range refs {
		path, ok := c.resolver.Exists(ref)
		if ok {
			files = append(files, path)
		}
		for _, cand := range c.resolver.Candidates(ref) {
			if len(checked) >= checkedSampleSize {
				break
			}
			checked = append(checked, checkedCandidate{Path: cand, Exists: cand == path && ok})
		}
	}
	log.Debug("image references resolved", "refs", len(refs), "found", len(files))

	if len(files) == 0 {
		log.Warn("no image files found for study")
		c.recordIssue(issues.KindNoFiles, study.UID, "no valid files found",
			map[string]any{"study_pk": study.PK, "checked": checked})
		if c.cfg.Export.NoFilesPolicy == config.NoFilesSuppress {
			if err := ledger.Mark(ctx, study.UID, sqlite.NoFilesSentinel); err != nil {
				return err
			}
		}
		return nil
	}

	for attempt := 1; attempt <= maxZipAttempts; attempt++ {
		log.Info("exporting study", "zip", zipPath, "files", len(files), "attempt", attempt)

		err := archive.WriteZip(files, zipPath)
		if err == nil && archive.Verify(zipPath, log) {
			var size int64 = -1
			if info, serr := os.Stat(zipPath); serr == nil {
				size = info.Size()
			}
			log.Info("study exported", "zip", zipPath, "files", len(files), "size", size)
			if err := ledger.Mark(ctx, study.UID, zipPath); err != nil {
				return err
			}
			successByMonth[monthKey]++
			return nil
		}
		if err != nil {
			log.Error("archive write failed", "zip", zipPath, "attempt", attempt, "error", err)
		}

		// Drop the partial or corrupt output before the next attempt.
		if rerr := os.Remove(zipPath); rerr != nil && !os.IsNotExist(rerr) {
			log.Warn("failed to remove partial archive", "zip", zipPath, "error", rerr)
		}
		c.sleep(retryPause)
	}

	log.Error("study export failed after retries", "zip", zipPath, "attempts", maxZipAttempts)
	c.recordIssue(issues.KindZipFail, study.UID,
		fmt.Sprintf("failed after %d attempts", maxZipAttempts),
		map[string]any{"zip_path": zipPath, "files": len(files)})
	return nil
}

type checkedCandidate struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// recordIssue appends to the issue sink, degrading to a log entry when
// the sink itself fails.
func (c *Coordinator) recordIssue(kind issues.Kind, studyUID, detail string, extra map[string]any) {
	rec := issues.Record{
		Timestamp: time.Now(),
		Kind:      kind,
		StudyUID:  studyUID,
		Detail:    detail,
		Extra:     extra,
	}
	if err := c.issues.Append(rec); err != nil {
		c.logger.Error("failed to record issue", "kind", kind, "study_uid", studyUID, "error", err)
	}
}
