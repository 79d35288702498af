package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const localIDPrefix = "local-"

// ID identifies an entity. Server identifiers are numeric; records created
// locally carry a time-derived "local-" identifier until the backend assigns
// one. Default categories use fixed "cat-" identifiers.
type ID string

var lastLocal atomic.Int64

// NewLocalID returns a local identifier derived from now. Identifiers are
// strictly increasing within the process.
func NewLocalID(now time.Time) ID {
	n := now.UnixNano()
	for {
		prev := lastLocal.Load()
		if n <= prev {
			n = prev + 1
		}
		if lastLocal.CompareAndSwap(prev, n) {
			break
		}
	}
	return ID(localIDPrefix + strconv.FormatInt(n, 10))
}

// IDFromInt converts a server identifier.
func IDFromInt(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

func (id ID) String() string { return string(id) }

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool { return id == "" }

// IsLocal reports whether the identifier was generated on this device.
func (id ID) IsLocal() bool { return strings.HasPrefix(string(id), localIDPrefix) }

// IsSynced reports whether the identifier was assigned by the server.
func (id ID) IsSynced() bool {
	_, ok := id.Int64()
	return ok
}

// Int64 returns the numeric form of a server identifier.
func (id ID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MarshalJSON writes numeric identifiers as JSON numbers and everything else
// as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if id.IsSynced() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("decode id %s: %w", b, err)
		}
		*id = ID(n.String())
		return nil
	}
}
