// Package config resolves listio settings from defaults, an optional
// config.yaml, LISTIO_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "LISTIO"

	KeyAPIBaseURL        = "api_base_url"
	KeyDBPath            = "db_path"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
	KeyOutboxInterval    = "outbox_interval"
	KeyOutboxMaxAttempts = "outbox_max_attempts"
	KeyOutboxBackoffBase = "outbox_backoff_base"
	KeyOutboxBackoffMax  = "outbox_backoff_max"
	KeyHistoryMaxEvents  = "history_max_events"
	KeyHistoryMaxAgeDays = "history_max_age_days"
	KeyListenAddr        = "listen_addr"
	KeySessionPassphrase = "session_passphrase"

	KeyBackupEndpoint   = "backup.endpoint"
	KeyBackupBucket     = "backup.bucket"
	KeyBackupRegion     = "backup.region"
	KeyBackupAccessKey  = "backup.access_key"
	KeyBackupSecretKey  = "backup.secret_key"
	KeyBackupPassphrase = "backup.passphrase"
	KeyBackupPrefix     = "backup.prefix"
	KeyBackupInterval   = "backup.interval"
	KeyBackupRetention  = "backup.retention"

	DefaultAPIBaseURL = "http://localhost:8080"
)

// Config is the resolved application configuration.
type Config struct {
	APIBaseURL string
	DBPath     string
	LogLevel   string
	LogFormat  string

	OutboxInterval    time.Duration
	OutboxMaxAttempts int
	OutboxBackoffBase time.Duration
	OutboxBackoffMax  time.Duration

	HistoryMaxEvents  int
	HistoryMaxAgeDays int

	ListenAddr        string
	SessionPassphrase string

	Backup Backup
}

// Backup holds the S3-compatible snapshot destination.
type Backup struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Passphrase string
	Prefix     string
	// Interval schedules snapshots while the daemon runs. Zero disables it.
	Interval  time.Duration
	Retention time.Duration
}

// Configured reports whether enough settings are present to run a backup.
func (b Backup) Configured() bool {
	return b.Bucket != "" && b.AccessKey != "" && b.SecretKey != "" && b.Passphrase != ""
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyAPIBaseURL, DefaultAPIBaseURL)
	v.SetDefault(KeyDBPath, "listio.db")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyOutboxInterval, 2*time.Second)
	v.SetDefault(KeyOutboxMaxAttempts, 8)
	v.SetDefault(KeyOutboxBackoffBase, 2*time.Second)
	v.SetDefault(KeyOutboxBackoffMax, 5*time.Minute)
	v.SetDefault(KeyHistoryMaxEvents, 2000)
	v.SetDefault(KeyHistoryMaxAgeDays, 90)
	v.SetDefault(KeyListenAddr, "127.0.0.1:8765")
	v.SetDefault(KeySessionPassphrase, "")
	v.SetDefault(KeyBackupEndpoint, "")
	v.SetDefault(KeyBackupBucket, "")
	v.SetDefault(KeyBackupRegion, "us-east-1")
	v.SetDefault(KeyBackupAccessKey, "")
	v.SetDefault(KeyBackupSecretKey, "")
	v.SetDefault(KeyBackupPassphrase, "")
	v.SetDefault(KeyBackupPrefix, "listio/")
	v.SetDefault(KeyBackupInterval, time.Duration(0))
	v.SetDefault(KeyBackupRetention, 30*24*time.Hour)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads config.yaml from dir into v. A missing file is not an error.
func ReadFile(v *viper.Viper, dir string) error {
	if dir == "" {
		return nil
	}
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load resolves a Config from v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		APIBaseURL:        strings.TrimRight(strings.TrimSpace(v.GetString(KeyAPIBaseURL)), "/"),
		DBPath:            v.GetString(KeyDBPath),
		LogLevel:          v.GetString(KeyLogLevel),
		LogFormat:         v.GetString(KeyLogFormat),
		OutboxInterval:    v.GetDuration(KeyOutboxInterval),
		OutboxMaxAttempts: v.GetInt(KeyOutboxMaxAttempts),
		OutboxBackoffBase: v.GetDuration(KeyOutboxBackoffBase),
		OutboxBackoffMax:  v.GetDuration(KeyOutboxBackoffMax),
		HistoryMaxEvents:  v.GetInt(KeyHistoryMaxEvents),
		HistoryMaxAgeDays: v.GetInt(KeyHistoryMaxAgeDays),
		ListenAddr:        v.GetString(KeyListenAddr),
		SessionPassphrase: v.GetString(KeySessionPassphrase),
		Backup: Backup{
			Endpoint:   v.GetString(KeyBackupEndpoint),
			Bucket:     v.GetString(KeyBackupBucket),
			Region:     v.GetString(KeyBackupRegion),
			AccessKey:  v.GetString(KeyBackupAccessKey),
			SecretKey:  v.GetString(KeyBackupSecretKey),
			Passphrase: v.GetString(KeyBackupPassphrase),
			Prefix:     v.GetString(KeyBackupPrefix),
			Interval:   v.GetDuration(KeyBackupInterval),
			Retention:  v.GetDuration(KeyBackupRetention),
		},
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.DBPath == "" {
		return Config{}, fmt.Errorf("config: %s must not be empty", KeyDBPath)
	}
	if cfg.OutboxInterval <= 0 {
		return Config{}, fmt.Errorf("config: %s must be positive", KeyOutboxInterval)
	}
	if cfg.OutboxMaxAttempts < 0 {
		return Config{}, fmt.Errorf("config: %s must not be negative", KeyOutboxMaxAttempts)
	}
	return cfg, nil
}
