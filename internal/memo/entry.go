// Package memo holds the recording types shared by the capture machine, the
// catalog and the capability adapters.
package memo

import (
	"fmt"
	"math"
	"time"
)

// Default layouts for the capture timestamp labels.
const (
	DefaultDateLayout = "1/2/06"
	DefaultTimeLayout = "3:04:05 PM"
)

// Fields are the persisted attributes of a recording.
type Fields struct {
	Name          string `json:"name" yaml:"name"`
	AudioRef      string `json:"audio_ref" yaml:"audio_ref"`
	DurationLabel string `json:"duration" yaml:"duration"`
	CreatedDate   string `json:"date" yaml:"date"`
	CreatedTime   string `json:"time" yaml:"time"`
}

// Record is a repository row: the fields plus the identifiers assigned by the
// repository.
type Record struct {
	ID      string
	OwnerID string
	Fields
}

// RecordingEntry is one saved voice memo as shown to readers of the catalog.
type RecordingEntry struct {
	ID            string `json:"id" yaml:"id"`
	AudioRef      string `json:"audio_ref" yaml:"audio_ref"`
	Name          string `json:"name" yaml:"name"`
	DurationLabel string `json:"duration" yaml:"duration"`
	CreatedDate   string `json:"date" yaml:"date"`
	CreatedTime   string `json:"time" yaml:"time"`

	// IsPlaying is UI state only. It is never written to the repository.
	IsPlaying bool `json:"is_playing" yaml:"-"`
}

// Fields returns the persisted part of the entry.
func (e RecordingEntry) Fields() Fields {
	return Fields{
		Name:          e.Name,
		AudioRef:      e.AudioRef,
		DurationLabel: e.DurationLabel,
		CreatedDate:   e.CreatedDate,
		CreatedTime:   e.CreatedTime,
	}
}

// EntryFromRecord builds a catalog entry from a repository row.
func EntryFromRecord(r Record) RecordingEntry {
	return RecordingEntry{
		ID:            r.ID,
		AudioRef:      r.AudioRef,
		Name:          r.Name,
		DurationLabel: r.DurationLabel,
		CreatedDate:   r.CreatedDate,
		CreatedTime:   r.CreatedTime,
	}
}

// Take is the output of a finished capture: an entry without a repository id
// and the playable handle bound to its audio.
type Take struct {
	Entry  RecordingEntry
	Handle PlayableHandle
}

// DefaultName is the placeholder label for the n-th recording.
func DefaultName(n int) string {
	return fmt.Sprintf("Recording %d", n)
}

// FormatDuration renders a millisecond duration as m:ss. Seconds are rounded
// before splitting so the seconds part never reaches 60.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := int64(math.Round(float64(ms) / 1000))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Stamp formats the capture timestamp labels.
type Stamp struct {
	DateLayout string
	TimeLayout string
}

// Labels returns the date and time labels for t.
func (s Stamp) Labels(t time.Time) (date, clock string) {
	dl, tl := s.DateLayout, s.TimeLayout
	if dl == "" {
		dl = DefaultDateLayout
	}
	if tl == "" {
		tl = DefaultTimeLayout
	}
	return t.Format(dl), t.Format(tl)
}
