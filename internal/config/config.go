// Package config defines the export job configuration. Values come
// from defaults, an optional YAML file, then environment overrides, in
// that order. The loaded Config is passed explicitly into every
// component; there is no package-level singleton.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sort keys for batch selection.
const (
	OrderByStudyDate = "study_date"
	OrderByDateAdded = "date_added"
)

// Policies for studies whose image files cannot be found.
const (
	// NoFilesRetry leaves the study unmarked so later cycles retry it.
	NoFilesRetry = "retry"
	// NoFilesSuppress marks the study exported with a sentinel path so
	// it is never revisited.
	NoFilesSuppress = "suppress"
)

// Config is the full configuration surface of one export run.
type Config struct {
	// VolumeRoot is the mount point of the external PACS volume.
	VolumeRoot string `yaml:"volume_root"`

	Export   ExportConfig   `yaml:"export"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Log      LogConfig      `yaml:"log"`
}

type ExportConfig struct {
	BatchSize           int      `yaml:"batch_size"`
	SleepBetweenStudies Duration `yaml:"sleep_between_studies"`
	IncomingMaxFiles    int      `yaml:"incoming_max_files"`
	Modalities          []string `yaml:"modalities"`
	OrderBy             string   `yaml:"order_by"`
	MaxNameLen          int      `yaml:"max_name_len"`
	NoFilesPolicy       string   `yaml:"no_files_policy"`
}

// Duration decodes from YAML as a time.ParseDuration string ("1s",
// "500ms"). Bare numbers are rejected rather than guessed at a unit.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q (want e.g. \"1s\"): %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type SnapshotConfig struct {
	// AlwaysRefresh rebuilds the snapshot every cycle; when false an
	// existing snapshot is reused and only built when absent.
	AlwaysRefresh bool `yaml:"always_refresh"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load builds the configuration from defaults, the YAML file at path
// (optional; falls back to $PACSEXPORT_CONFIG_PATH, a missing file is
// fine), and PACSEXPORT_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{
		VolumeRoot: "/Volumes/PACS",
		Export: ExportConfig{
			BatchSize:           15,
			SleepBetweenStudies: Duration(time.Second),
			IncomingMaxFiles:    25000,
			Modalities:          []string{"CT", "MR"},
			OrderBy:             OrderByStudyDate,
			MaxNameLen:          128,
			NoFilesPolicy:       NoFilesRetry,
		},
		Snapshot: SnapshotConfig{AlwaysRefresh: true},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 10,
		},
	}

	if path == "" {
		path = os.Getenv("PACSEXPORT_CONFIG_PATH")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PACSEXPORT_VOLUME_ROOT"); v != "" {
		cfg.VolumeRoot = v
	}
	if v := os.Getenv("PACSEXPORT_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PACSEXPORT_BATCH_SIZE: %w", err)
		}
		cfg.Export.BatchSize = n
	}
	if v := os.Getenv("PACSEXPORT_ORDER_BY"); v != "" {
		cfg.Export.OrderBy = v
	}
	if v := os.Getenv("PACSEXPORT_NO_FILES_POLICY"); v != "" {
		cfg.Export.NoFilesPolicy = v
	}
	if v := os.Getenv("PACSEXPORT_MODALITIES"); v != "" {
		cfg.Export.Modalities = splitList(v)
	}
	if v := os.Getenv("PACSEXPORT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks enum-valued fields and basic bounds.
func (c Config) Validate() error {
	switch c.Export.OrderBy {
	case OrderByStudyDate, OrderByDateAdded:
	default:
		return fmt.Errorf("invalid order_by %q (want %s or %s)", c.Export.OrderBy, OrderByStudyDate, OrderByDateAdded)
	}
	switch c.Export.NoFilesPolicy {
	case NoFilesRetry, NoFilesSuppress:
	default:
		return fmt.Errorf("invalid no_files_policy %q (want %s or %s)", c.Export.NoFilesPolicy, NoFilesRetry, NoFilesSuppress)
	}
	if c.Export.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.Export.BatchSize)
	}
	if len(c.Export.Modalities) == 0 {
		return fmt.Errorf("modalities must not be empty")
	}
	return nil
}

// Fixed layout under the volume root. The external application owns
// everything under Database/; this job owns everything under Backup/.

func (c Config) SentinelPath() string {
	return filepath.Join(c.VolumeRoot, ".pacs_sentinel")
}

func (c Config) DataDir() string {
	return filepath.Join(c.VolumeRoot, "Database", "Horos Data")
}

// SourceDBPath is the live catalog. It is never opened for querying,
// only copied by the snapshot provider.
func (c Config) SourceDBPath() string {
	return filepath.Join(c.DataDir(), "Database.sql")
}

func (c Config) IncomingDir() string {
	return filepath.Join(c.DataDir(), "INCOMING.noindex")
}

func (c Config) ManagedDir() string {
	return filepath.Join(c.DataDir(), "DATABASE.noindex")
}

func (c Config) BackupRoot() string {
	return filepath.Join(c.VolumeRoot, "Backup")
}

func (c Config) TmpRoot() string {
	return filepath.Join(c.BackupRoot(), ".tmp")
}

func (c Config) SnapshotPath() string {
	return filepath.Join(c.TmpRoot(), "dbcopy", "Database_copy.sql")
}

func (c Config) LedgerPath() string {
	return filepath.Join(c.BackupRoot(), "export_state.sqlite")
}

func (c Config) LockfilePath() string {
	return filepath.Join(c.TmpRoot(), ".run.lock")
}

func (c Config) LogPath() string {
	return filepath.Join(c.BackupRoot(), "logs", "pacsexport.log")
}

func (c Config) IssuesPath() string {
	return filepath.Join(c.BackupRoot(), "issues.csv")
}

// MonthDir is the output folder for a given month key (YYYY_MM or the
// unknown-date bucket).
func (c Config) MonthDir(monthKey string) string {
	return filepath.Join(c.BackupRoot(), monthKey)
}
