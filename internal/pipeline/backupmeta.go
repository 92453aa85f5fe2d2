package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"farmersaid/internal/errorutil"
	"farmersaid/internal/logger"
)

const backupSchemaVersion = 1

// BackupMeta describes when and where the backup pollen dataset was captured
type BackupMeta struct {
	RefreshedOn   string   `toml:"refreshed_on"` // YYYY-MM-DD, local time
	RefreshedAt   int64    `toml:"refreshed_at"` // Unix timestamp
	Place         string   `toml:"place"`
	Rows          int      `toml:"rows"`
	Columns       []string `toml:"columns"`
	SchemaVersion int      `toml:"schema_version"`
}

// Age returns how long ago the backup was captured
func (m *BackupMeta) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(m.RefreshedAt, 0))
}

// BackupMetaPath returns the sidecar path for a backup CSV
func BackupMetaPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".meta.toml"
}

// ReadBackupMeta loads and validates the sidecar of a backup CSV
func ReadBackupMeta(csvPath string) (*BackupMeta, error) {
	path := BackupMetaPath(csvPath)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errorutil.NewFileError("read", path, err)
	}

	var meta BackupMeta
	if err := toml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse backup metadata: %w", err)
	}
	if meta.SchemaVersion != backupSchemaVersion {
		return nil, fmt.Errorf("unsupported backup metadata schema version: %d", meta.SchemaVersion)
	}
	return &meta, nil
}

// WriteBackupMeta atomically replaces the sidecar of a backup CSV
func WriteBackupMeta(csvPath string, meta BackupMeta) error {
	data, err := toml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal backup metadata: %w", err)
	}
	return errorutil.SafeFileWrite(logger.Get().Logger, BackupMetaPath(csvPath), data, 0644)
}
