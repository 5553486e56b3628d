package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tmsantos/pacsexport/internal/config"
)

// ErrSourceUnavailable indicates the live catalog file does not exist.
var ErrSourceUnavailable = errors.New("source database not found")

// SnapshotProvider produces the point-in-time copy of the live catalog
// that all queries run against. The live file is only ever opened
// read-only for the copy itself; queries never touch it.
type SnapshotProvider struct {
	cfg    config.Config
	logger *slog.Logger
}

// NewSnapshotProvider creates a provider for the configured layout.
func NewSnapshotProvider(cfg config.Config, logger *slog.Logger) *SnapshotProvider {
	return &SnapshotProvider{cfg: cfg, logger: logger}
}

// Obtain returns the path of a usable snapshot, honoring the configured
// refresh policy: always-refresh rebuilds it every cycle, otherwise an
// existing snapshot is reused and only built when absent.
func (p *SnapshotProvider) Obtain(ctx context.Context) (string, error) {
	dest := p.cfg.SnapshotPath()

	if !p.cfg.Snapshot.AlwaysRefresh {
		if info, err := os.Stat(dest); err == nil {
			p.logger.Info("reusing existing snapshot",
				"path", dest, "size", info.Size(), "mtime", info.ModTime().Unix())
			return dest, nil
		}
		p.logger.Warn("snapshot absent, creating one-shot copy", "path", dest)
	}

	if err := p.copy(ctx, dest); err != nil {
		return "", err
	}
	if info, err := os.Stat(dest); err == nil {
		p.logger.Info("snapshot created",
			"path", dest, "size", info.Size(), "mtime", info.ModTime().Unix())
	} else {
		p.logger.Info("snapshot created", "path", dest)
	}
	return dest, nil
}

// copy performs the online copy: a stale snapshot is removed, the live
// catalog is opened read-only and VACUUM'd into a fresh file. VACUUM
// INTO reads the source inside one transaction, so a concurrently
// written source yields a stale-but-consistent copy, never a corrupt
// one, and the source itself is never written.
func (p *SnapshotProvider) copy(ctx context.Context, dest string) error {
	src := p.cfg.SourceDBPath()
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: %s", ErrSourceUnavailable, src)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot: %w", err)
	}

	db, err := OpenReadOnly(src)
	if err != nil {
		return fmt.Errorf("open source database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("copy source database: %w", err)
	}
	return nil
}
