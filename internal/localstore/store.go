// Package localstore is the persistent key/value medium behind the client's
// local cache. Values are whole JSON snapshots; keys live under the
// "listio:" namespace.
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/listio/internal/notify"
)

// Prefix namespaces every key written by the client.
const Prefix = "listio:"

// Key joins parts under the client namespace.
func Key(parts ...string) string {
	return Prefix + strings.Join(parts, ":")
}

// UserKey scopes base to a user. Without a user the generic key is used.
func UserKey(base, userID string) string {
	if userID == "" {
		return base
	}
	return base + ":" + userID
}

// Store is a string key/value medium.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
	Keys(prefix string) ([]string, error)
}

// SQLStore keeps keys in the kv table. Each write takes the next sequence
// number and records the writing process as its origin so other processes
// sharing the file can pick up foreign changes.
type SQLStore struct {
	db     *sql.DB
	origin string
	now    func() time.Time
}

// NewSQLStore creates a SQLStore writing as origin.
func NewSQLStore(db *sql.DB, origin string) *SQLStore {
	return &SQLStore{db: db, origin: origin, now: time.Now}
}

// Origin returns the identifier stamped on this store's writes.
func (s *SQLStore) Origin() string {
	return s.origin
}

func (s *SQLStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ? AND deleted = 0`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, seq, origin, deleted, updated_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM kv), ?, 0, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, seq = excluded.seq,
		   origin = excluded.origin, deleted = 0, updated_at = excluded.updated_at`,
		key, value, s.origin, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Remove tombstones key so watchers in other processes observe the deletion.
func (s *SQLStore) Remove(key string) error {
	_, err := s.db.Exec(
		`UPDATE kv SET value = '', deleted = 1, origin = ?, updated_at = ?,
		   seq = (SELECT COALESCE(MAX(seq), 0) + 1 FROM kv)
		 WHERE key = ? AND deleted = 0`,
		s.origin, s.now().UTC(), key,
	)
	if err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT key FROM kv WHERE deleted = 0 AND key LIKE ? ESCAPE '\' ORDER BY key`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// LastSeq returns the highest sequence number written so far.
func (s *SQLStore) LastSeq() (int64, error) {
	var seq int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM kv`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// ChangesSince returns every write with a sequence number above seq, oldest first.
func (s *SQLStore) ChangesSince(seq int64) ([]notify.Change, error) {
	rows, err := s.db.Query(
		`SELECT key, value, deleted, origin, seq FROM kv WHERE seq > ? ORDER BY seq ASC`, seq,
	)
	if err != nil {
		return nil, fmt.Errorf("changes since %d: %w", seq, err)
	}
	defer rows.Close()

	var changes []notify.Change
	for rows.Next() {
		var c notify.Change
		var deleted int
		if err := rows.Scan(&c.Key, &c.Value, &deleted, &c.Origin, &c.Seq); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.Deleted = deleted != 0
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// Snapshot returns every live key under prefix with its value.
func Snapshot(s Store, prefix string) (map[string]string, error) {
	keys, err := s.Keys(prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// ReadJSON decodes the value at key into v. It reports false when the key is absent.
func ReadJSON(s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// WriteJSON encodes v and stores it at key.
func WriteJSON(s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Set(key, string(data))
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
