// Package backup uploads encrypted snapshots of the local cache to
// S3-compatible storage and restores them.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/vault"
)

const (
	snapshotVersion = 1
	objectSuffix    = ".json.enc"
)

var (
	ErrNotConfigured = errors.New("backup: not configured")
	ErrNoSnapshots   = errors.New("backup: no snapshots found")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds backup manager configuration.
type Config struct {
	S3         S3Config
	Passphrase string
	// Prefix is prepended to object keys.
	Prefix string
	// Interval schedules automatic backups. Zero disables the schedule.
	Interval time.Duration
	// Retention drops snapshots older than this after a scheduled backup.
	Retention time.Duration
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	LastKey    string     `json:"last_key,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Object describes one stored snapshot.
type Object struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// snapshot is the plaintext document sealed into each object.
type snapshot struct {
	Version   int               `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	Keys      map[string]string `json:"keys"`
}

// Manager manages encrypted snapshots of the local cache.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback
	client   s3Client

	local  localstore.Store
	now    func() time.Time
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new backup manager. It is disabled until both the
// S3 settings and a passphrase are present.
func NewManager(cfg Config, local localstore.Store, callback StatusCallback, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:      cfg,
		local:    local,
		callback: callback,
		now:      time.Now,
		logger:   logger.With("component", "backup"),
		status:   Status{State: StateDisabled},
	}
	if cfg.S3.complete() && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// UpdateS3Config hot-reloads the S3 configuration.
func (m *Manager) UpdateS3Config(s3cfg S3Config) {
	m.mu.Lock()
	m.cfg.S3 = s3cfg
	if s3cfg.complete() && m.cfg.Passphrase != "" {
		m.client = newS3Client(s3cfg)
		m.status.State = StateIdle
	} else {
		m.client = nil
		m.status.State = StateDisabled
	}
	status := m.status
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(status)
	}
}

// Start begins the scheduled backup loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status.State == StateDisabled || m.cfg.Interval <= 0 || m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.scheduled(ctx)
			}
		}
	}()
}

// Stop gracefully stops the backup manager.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

func (m *Manager) scheduled(ctx context.Context) {
	if _, err := m.RunNow(ctx); err != nil {
		m.logger.Error("scheduled backup", "error", err)
		return
	}
	m.mu.RLock()
	retention := m.cfg.Retention
	m.mu.RUnlock()
	if retention <= 0 {
		return
	}
	if n, err := m.Cleanup(ctx, retention); err != nil {
		m.logger.Error("backup cleanup", "error", err)
	} else if n > 0 {
		m.logger.Info("old backups removed", "count", n)
	}
}

func (m *Manager) target() (s3Client, Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, Config{}, ErrNotConfigured
	}
	return m.client, m.cfg, nil
}

// RunNow seals every listio: key into one object and uploads it. It returns
// the stored object.
func (m *Manager) RunNow(ctx context.Context) (Object, error) {
	client, cfg, err := m.target()
	if err != nil {
		return Object{}, err
	}

	m.setStatus(Status{State: StateRunning, InProgress: true})
	fail := func(err error) (Object, error) {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return Object{}, err
	}

	keys, err := localstore.Snapshot(m.local, localstore.Prefix)
	if err != nil {
		return fail(fmt.Errorf("snapshot local store: %w", err))
	}
	now := m.now().UTC()
	plain, err := json.Marshal(snapshot{Version: snapshotVersion, CreatedAt: now, Keys: keys})
	if err != nil {
		return fail(fmt.Errorf("encode snapshot: %w", err))
	}
	sealed, err := vault.Seal(plain, cfg.Passphrase)
	if err != nil {
		return fail(fmt.Errorf("encrypt snapshot: %w", err))
	}

	key := cfg.Prefix + "snapshot-" + now.Format("2006-01-02T150405.000Z") + objectSuffix
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return fail(fmt.Errorf("upload to s3: %w", err))
	}

	m.setStatus(Status{State: StateIdle, LastBackup: &now, LastKey: key})
	m.logger.Info("backup uploaded", "key", key, "keys", len(keys), "bytes", len(sealed))
	return Object{Key: key, Size: int64(len(sealed)), CreatedAt: now}, nil
}

// List returns the stored snapshots, newest first.
func (m *Manager) List(ctx context.Context) ([]Object, error) {
	client, cfg, err := m.target()
	if err != nil {
		return nil, err
	}

	var out []Object
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.S3.Bucket),
		Prefix: aws.String(cfg.Prefix),
	}
	for {
		page, err := client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list s3 objects: %w", err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			if !strings.HasSuffix(key, objectSuffix) {
				continue
			}
			out = append(out, Object{
				Key:       key,
				Size:      aws.ToInt64(o.Size),
				CreatedAt: aws.ToTime(o.LastModified),
			})
		}
		if !aws.ToBool(page.IsTruncated) || page.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = page.NextContinuationToken
	}

	// Keys embed the timestamp, so they order like creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out, nil
}

// Restore downloads the snapshot at key (the newest when key is empty),
// decrypts it and rewrites the local cache to match. Keys absent from the
// snapshot are removed. It returns how many keys were written.
func (m *Manager) Restore(ctx context.Context, key string) (int, error) {
	client, cfg, err := m.target()
	if err != nil {
		return 0, err
	}
	if key == "" {
		objs, err := m.List(ctx)
		if err != nil {
			return 0, err
		}
		if len(objs) == 0 {
			return 0, ErrNoSnapshots
		}
		key = objs[0].Key
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	sealed, err := io.ReadAll(result.Body)
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}
	plain, err := vault.Open(sealed, cfg.Passphrase)
	if err != nil {
		return 0, fmt.Errorf("decrypt snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return 0, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return 0, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	existing, err := m.local.Keys(localstore.Prefix)
	if err != nil {
		return 0, fmt.Errorf("list local keys: %w", err)
	}
	for _, k := range existing {
		if _, ok := snap.Keys[k]; ok {
			continue
		}
		if err := m.local.Remove(k); err != nil {
			return 0, fmt.Errorf("remove %s: %w", k, err)
		}
	}

	written := 0
	for k, v := range snap.Keys {
		if !strings.HasPrefix(k, localstore.Prefix) {
			m.logger.Warn("skip foreign key in snapshot", "key", k)
			continue
		}
		if err := m.local.Set(k, v); err != nil {
			return written, fmt.Errorf("restore %s: %w", k, err)
		}
		written++
	}

	m.logger.Info("backup restored", "key", key, "keys", written)
	return written, nil
}

// Cleanup deletes snapshots older than retention and returns how many were
// removed. Individual delete failures are logged.
func (m *Manager) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	client, cfg, err := m.target()
	if err != nil {
		return 0, nil
	}
	objs, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-retention)
	removed := 0
	for _, o := range objs {
		if o.CreatedAt.IsZero() || !o.CreatedAt.Before(cutoff) {
			continue
		}
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.S3.Bucket),
			Key:    aws.String(o.Key),
		}); err != nil {
			m.logger.Warn("delete s3 object", "key", o.Key, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
