package history

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

var csvHeader = []string{"id", "ts", "type", "resource", "resourceId", "listId", "userId", "meta"}

// ExportJSON returns the full log as indented JSON.
func (l *Log) ExportJSON() ([]byte, error) {
	events := l.All()
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return data, nil
}

// ExportCSV returns the log as CSV. Every data field is quoted and embedded
// quotes are doubled; the header row is bare.
func (l *Log) ExportCSV() (string, error) {
	var b strings.Builder
	b.WriteString(strings.Join(csvHeader, ","))

	for _, e := range l.All() {
		meta := e.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return "", fmt.Errorf("encode meta of event %s: %w", e.ID, err)
		}
		ts := ""
		if e.Timestamp != 0 {
			ts = strconv.FormatInt(e.Timestamp, 10)
		}
		row := []string{
			e.ID,
			ts,
			e.Type,
			e.Resource,
			e.ResourceID.String(),
			e.ListID.String(),
			e.UserID.String(),
			string(metaJSON),
		}
		b.WriteByte('\n')
		for i, v := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(quote(v))
		}
	}
	return b.String(), nil
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
