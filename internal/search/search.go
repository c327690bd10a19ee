// Package search filters the catalog by a free-text query.
package search

import (
	"strings"
	"sync"

	"github.com/audiolibrelab/micmagic/internal/memo"
)

// Row is one visible line of the filtered list. Index is the position in the
// full catalog snapshot; mutations must target Entry.ID, never Index.
type Row struct {
	Entry memo.RecordingEntry
	Index int
}

// Matches reports whether e matches the already lowercased needle on name,
// date or time.
func Matches(e memo.RecordingEntry, needle string) bool {
	return strings.Contains(strings.ToLower(e.Name), needle) ||
		strings.Contains(strings.ToLower(e.CreatedDate), needle) ||
		strings.Contains(strings.ToLower(e.CreatedTime), needle)
}

// Project returns the rows of snapshot matching query, in catalog order. An
// empty or blank query matches everything.
func Project(snapshot []memo.RecordingEntry, query string) []Row {
	needle := strings.ToLower(strings.TrimSpace(query))
	rows := make([]Row, 0, len(snapshot))
	for i, e := range snapshot {
		if needle == "" || Matches(e, needle) {
			rows = append(rows, Row{Entry: e, Index: i})
		}
	}
	return rows
}

// View keeps the projection of the latest snapshot under the current query.
type View struct {
	mu       sync.RWMutex
	query    string
	snapshot []memo.RecordingEntry
	version  uint64
	rows     []Row
	onChange func([]Row)
}

// NewView returns an empty view.
func NewView() *View {
	return &View{rows: []Row{}}
}

// OnChange sets a callback invoked with the new rows after every recompute.
func (v *View) OnChange(fn func([]Row)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

// SetQuery replaces the query and recomputes.
func (v *View) SetQuery(q string) {
	v.mu.Lock()
	v.query = q
	v.recomputeLocked()
}

// SetSnapshot replaces the catalog snapshot and recomputes. A snapshot
// older than the last one applied is ignored; version 0 always applies.
// It reports whether s was applied.
func (v *View) SetSnapshot(s []memo.RecordingEntry, version uint64) bool {
	v.mu.Lock()
	if version != 0 && version <= v.version {
		v.mu.Unlock()
		return false
	}
	if version != 0 {
		v.version = version
	}
	v.snapshot = s
	v.recomputeLocked()
	return true
}

// recomputeLocked is entered with v.mu held and releases it.
func (v *View) recomputeLocked() {
	v.rows = Project(v.snapshot, v.query)
	rows, fn := v.rows, v.onChange
	v.mu.Unlock()
	if fn != nil {
		fn(rows)
	}
}

// Query returns the current query.
func (v *View) Query() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.query
}

// Rows returns the current rows. The slice must not be modified.
func (v *View) Rows() []Row {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.rows
}
