// Package catalog keeps the ordered, id-keyed list of saved recordings in step
// with the repository. The repository is written first; local state changes
// only after it succeeds.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/iter"

	"github.com/audiolibrelab/micmagic/internal/memo"
)

// ChangeKind names the mutation behind a Change.
type ChangeKind string

const (
	ChangeLoaded   ChangeKind = "loaded"
	ChangeAdded    ChangeKind = "added"
	ChangeRenamed  ChangeKind = "renamed"
	ChangeDeleted  ChangeKind = "deleted"
	ChangePlayback ChangeKind = "playback"
	ChangeClosed   ChangeKind = "closed"
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind     ChangeKind
	ID       string
	Snapshot []memo.RecordingEntry
	Version  uint64
}

type item struct {
	entry  memo.RecordingEntry
	handle memo.PlayableHandle
}

// Catalog holds recording entries and their playable handles. Each handle is
// released exactly once, on delete, on reload or on Close.
type Catalog struct {
	repo   memo.Repository
	player memo.Player
	sharer memo.Sharer
	log    *slog.Logger

	mu      sync.Mutex
	items   []item
	index   map[string]int
	version uint64
	closed  bool

	subMu sync.Mutex
	subs  map[int]func(Change)
	next  int
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithSharer sets the share capability. Without one Share reports
// ErrShareUnavailable.
func WithSharer(s memo.Sharer) Option {
	return func(c *Catalog) { c.sharer = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.log = l }
}

// New returns an empty catalog.
func New(repo memo.Repository, player memo.Player, opts ...Option) *Catalog {
	c := &Catalog{
		repo:   repo,
		player: player,
		log:    slog.Default(),
		index:  map[string]int{},
		subs:   map[int]func(Change){},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. fn is called without the catalog lock held.
func (c *Catalog) Subscribe(fn func(Change)) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.next
	c.next++
	c.subs[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Catalog) emit(ch Change) {
	c.subMu.Lock()
	fns := make([]func(Change), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(ch)
	}
}

// mutated bumps the version and captures a snapshot. Callers hold c.mu.
func (c *Catalog) mutated(kind ChangeKind, id string) Change {
	c.version++
	return Change{Kind: kind, ID: id, Snapshot: c.snapshotLocked(), Version: c.version}
}

func (c *Catalog) snapshotLocked() []memo.RecordingEntry {
	out := make([]memo.RecordingEntry, len(c.items))
	for i, it := range c.items {
		out[i] = it.entry
	}
	return out
}

func (c *Catalog) reindexLocked() {
	c.index = make(map[string]int, len(c.items))
	for i, it := range c.items {
		c.index[it.entry.ID] = i
	}
}

// Snapshot returns a copy of the entries in display order.
func (c *Catalog) Snapshot() []memo.RecordingEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Entry returns the entry with the given id.
func (c *Catalog) Entry(id string) (memo.RecordingEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return memo.RecordingEntry{}, fmt.Errorf("%s: %w", id, memo.ErrNotFound)
	}
	return c.items[i].entry, nil
}

// Load replaces the catalog with the owner's recordings. Entries whose audio
// cannot be bound are skipped.
func (c *Catalog) Load(ctx context.Context, ownerID string) error {
	records, err := c.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("%w: list recordings: %w", memo.ErrPersistFailed, err)
	}

	type bound struct {
		item item
		err  error
	}
	results := iter.Map(records, func(r *memo.Record) bound {
		h, err := c.player.Bind(ctx, r.AudioRef)
		if err != nil {
			return bound{err: err}
		}
		return bound{item: item{entry: memo.EntryFromRecord(*r), handle: h}}
	})

	items := make([]item, 0, len(results))
	seen := make(map[string]bool, len(results))
	for i, res := range results {
		rec := records[i]
		if res.err != nil {
			c.log.Warn("skipping recording with unbindable audio",
				"recording_id", rec.ID, "audio_ref", rec.AudioRef, "error", res.err)
			continue
		}
		if seen[rec.ID] {
			c.log.Warn("skipping duplicate recording id", "recording_id", rec.ID)
			c.release(res.item.handle)
			continue
		}
		seen[rec.ID] = true
		items = append(items, res.item)
	}

	c.mu.Lock()
	old := c.items
	c.items = items
	c.reindexLocked()
	c.closed = false
	ch := c.mutated(ChangeLoaded, "")
	c.mu.Unlock()

	for _, it := range old {
		c.release(it.handle)
	}
	c.log.Info("catalog loaded", "owner_id", ownerID, "count", len(items), "skipped", len(records)-len(items))
	c.emit(ch)
	return nil
}

// Append persists the take and adds it as the newest entry. The catalog owns
// take.Handle from this call on and releases it if the create fails.
func (c *Catalog) Append(ctx context.Context, ownerID string, take memo.Take) (memo.RecordingEntry, error) {
	entry := take.Entry
	entry.IsPlaying = false
	id, err := c.repo.Create(ctx, ownerID, entry.Fields())
	if err != nil {
		c.release(take.Handle)
		return memo.RecordingEntry{}, fmt.Errorf("%w: create recording: %w", memo.ErrPersistFailed, err)
	}
	entry.ID = id

	c.mu.Lock()
	var replaced memo.PlayableHandle
	if i, ok := c.index[id]; ok {
		replaced = c.items[i].handle
		c.items = append(c.items[:i:i], c.items[i+1:]...)
	}
	c.items = append(c.items, item{entry: entry, handle: take.Handle})
	c.reindexLocked()
	c.closed = false
	ch := c.mutated(ChangeAdded, id)
	c.mu.Unlock()

	if replaced != nil {
		c.log.Warn("repository reused a recording id, replacing the old entry", "recording_id", id)
		c.release(replaced)
	}
	c.log.Info("recording saved", "recording_id", id, "owner_id", ownerID, "name", entry.Name)
	c.emit(ch)
	return entry, nil
}

// Rename updates the entry name in the repository and then locally.
func (c *Catalog) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("rename %s: empty name: %w", id, memo.ErrInvalidName)
	}
	entry, err := c.Entry(id)
	if err != nil {
		return err
	}
	fields := entry.Fields()
	fields.Name = name
	if err := c.repo.Update(ctx, id, fields); err != nil {
		return fmt.Errorf("%w: update %s: %w", memo.ErrPersistFailed, id, err)
	}

	c.mu.Lock()
	i, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", id, memo.ErrNotFound)
	}
	c.items[i].entry.Name = name
	ch := c.mutated(ChangeRenamed, id)
	c.mu.Unlock()

	c.log.Info("recording renamed", "recording_id", id, "name", name)
	c.emit(ch)
	return nil
}

// Delete removes the entry from the repository and then locally, releasing
// its playable handle.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if _, err := c.Entry(id); err != nil {
		return err
	}
	if err := c.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete %s: %w", memo.ErrPersistFailed, id, err)
	}

	c.mu.Lock()
	i, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", id, memo.ErrNotFound)
	}
	h := c.items[i].handle
	c.items = append(c.items[:i:i], c.items[i+1:]...)
	c.reindexLocked()
	ch := c.mutated(ChangeDeleted, id)
	c.mu.Unlock()

	c.release(h)
	c.log.Info("recording deleted", "recording_id", id)
	c.emit(ch)
	return nil
}

// TogglePlayback pauses a playing entry, otherwise replays it from the
// start. Other entries are left alone.
func (c *Catalog) TogglePlayback(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	i, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return false, fmt.Errorf("%s: %w", id, memo.ErrNotFound)
	}
	playing, h := c.items[i].entry.IsPlaying, c.items[i].handle
	c.mu.Unlock()

	var err error
	if playing {
		err = c.player.Pause(ctx, h)
	} else {
		err = c.player.Play(ctx, h)
	}
	if err != nil {
		return playing, fmt.Errorf("%w: %s: %w", memo.ErrPlaybackFailed, id, err)
	}

	c.mu.Lock()
	i, ok = c.index[id]
	if !ok {
		c.mu.Unlock()
		return false, fmt.Errorf("%s: %w", id, memo.ErrNotFound)
	}
	c.items[i].entry.IsPlaying = !playing
	ch := c.mutated(ChangePlayback, id)
	c.mu.Unlock()

	c.log.Debug("playback toggled", "recording_id", id, "playing", !playing)
	c.emit(ch)
	return !playing, nil
}

// SetPlaying records that playback of id stopped or started outside
// TogglePlayback, for example when the player reached the end.
func (c *Catalog) SetPlaying(id string, playing bool) {
	c.mu.Lock()
	i, ok := c.index[id]
	if !ok || c.items[i].entry.IsPlaying == playing {
		c.mu.Unlock()
		return
	}
	c.items[i].entry.IsPlaying = playing
	ch := c.mutated(ChangePlayback, id)
	c.mu.Unlock()
	c.emit(ch)
}

// Share hands the entry audio to the share capability.
func (c *Catalog) Share(ctx context.Context, id string) (string, error) {
	entry, err := c.Entry(id)
	if err != nil {
		return "", err
	}
	if c.sharer == nil {
		return "", fmt.Errorf("no share target configured: %w", memo.ErrShareUnavailable)
	}
	if entry.AudioRef == "" {
		return "", fmt.Errorf("%s has no audio: %w", id, memo.ErrShareUnavailable)
	}
	loc, err := c.sharer.Share(ctx, entry.AudioRef)
	if err != nil {
		return "", fmt.Errorf("%w: %w", memo.ErrShareUnavailable, err)
	}
	c.log.Info("recording shared", "recording_id", id, "location", loc)
	return loc, nil
}

// Handle returns the playable handle of id, for callers that need to watch
// playback completion.
func (c *Catalog) Handle(id string) (memo.PlayableHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.items[i].handle, true
}

// Close releases every held handle and empties the catalog.
func (c *Catalog) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	old := c.items
	c.items = nil
	c.index = map[string]int{}
	c.closed = true
	ch := c.mutated(ChangeClosed, "")
	c.mu.Unlock()

	for _, it := range old {
		c.release(it.handle)
	}
	c.emit(ch)
	return nil
}

func (c *Catalog) release(h memo.PlayableHandle) {
	if h == nil {
		return
	}
	if err := c.player.Release(h); err != nil {
		c.log.Warn("release playable handle", "audio_ref", h.AudioRef(), "error", err)
	}
}
