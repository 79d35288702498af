package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, "listio.db", cfg.DBPath)
	assert.Equal(t, 2*time.Second, cfg.OutboxInterval)
	assert.Equal(t, 8, cfg.OutboxMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.OutboxBackoffMax)
	assert.Equal(t, 2000, cfg.HistoryMaxEvents)
	assert.Equal(t, 90, cfg.HistoryMaxAgeDays)
	assert.False(t, cfg.Backup.Configured())
	assert.Zero(t, cfg.Backup.Interval)
	assert.Equal(t, 30*24*time.Hour, cfg.Backup.Retention)
}

func TestEnvOverridesAndTrimsBaseURL(t *testing.T) {
	t.Setenv("LISTIO_API_BASE_URL", "https://api.example.com/")
	t.Setenv("LISTIO_OUTBOX_MAX_ATTEMPTS", "3")
	t.Setenv("LISTIO_BACKUP_BUCKET", "snapshots")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, 3, cfg.OutboxMaxAttempts)
	assert.Equal(t, "snapshots", cfg.Backup.Bucket)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "db_path: /tmp/custom.db\nhistory_max_events: 10\nbackup:\n  bucket: b\n  access_key: a\n  secret_key: s\n  passphrase: p\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	v := New()
	require.NoError(t, ReadFile(v, dir))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
	assert.Equal(t, 10, cfg.HistoryMaxEvents)
	assert.True(t, cfg.Backup.Configured())
}

func TestReadFileMissingIsNotError(t *testing.T) {
	require.NoError(t, ReadFile(New(), t.TempDir()))
}

func TestLoadRejectsBadInterval(t *testing.T) {
	v := New()
	v.Set(KeyOutboxInterval, "0s")
	_, err := Load(v)
	assert.Error(t, err)
}
