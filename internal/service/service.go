package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/micmagic/internal/capture"
	"github.com/audiolibrelab/micmagic/internal/catalog"
	"github.com/audiolibrelab/micmagic/internal/memo"
	"github.com/audiolibrelab/micmagic/internal/search"
)

// Service represents the recording session operations exposed to the CLI, the
// terminal browser and the HTTP API.
type Service interface {
	// Recording operations
	Toggle(ctx context.Context) (ToggleResult, error)
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	StopAndSave(ctx context.Context) (memo.RecordingEntry, error)
	Discard(ctx context.Context) error
	State() capture.State

	// Catalog operations
	Load(ctx context.Context) error
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
	TogglePlayback(ctx context.Context, id string) (bool, error)
	Share(ctx context.Context, id string) (string, error)
	Entry(id string) (memo.RecordingEntry, error)

	// Search operations
	SetQuery(q string)
	Rows() []search.Row

	// Information operations
	Status() Status
	Subscribe(fn func(Event)) (unsubscribe func())
	LastError() string

	Close(ctx context.Context) error
}

// EventType names what an Event reports.
type EventType string

const (
	EventState   EventType = "state"
	EventCatalog EventType = "catalog"
)

// Event is a session notification for remote observers.
type Event struct {
	Type        EventType          `json:"type"`
	Change      catalog.ChangeKind `json:"change,omitempty"`
	RecordingID string             `json:"recording_id,omitempty"`
	State       capture.State      `json:"state"`
	Count       int                `json:"count"`
	At          time.Time          `json:"at"`
}

// Status summarizes the session.
type Status struct {
	State     capture.State  `json:"state"`
	Intent    capture.Intent `json:"intent"`
	Count     int            `json:"count"`
	Visible   int            `json:"visible"`
	Query     string         `json:"query"`
	LastError string         `json:"last_error,omitempty"`
}

// ToggleResult reports what the record button did.
type ToggleResult struct {
	Intent capture.Intent       `json:"intent"`
	Saved  *memo.RecordingEntry `json:"saved,omitempty"`
}

// playbackWatcher is implemented by playable handles that report when their
// playback process exits.
type playbackWatcher interface {
	Done() <-chan struct{}
	Playing() bool
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	sharer  memo.Sharer
	log     *slog.Logger
	stamp   memo.Stamp
	mode    memo.AudioMode
	now     func() time.Time
	modeSet bool
}

// WithSharer enables sharing.
func WithSharer(s memo.Sharer) Option { return func(o *options) { o.sharer = s } }

// WithLogger sets the logger used by the manager and its parts.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// WithStamp sets the capture date and time layouts.
func WithStamp(s memo.Stamp) Option { return func(o *options) { o.stamp = s } }

// WithAudioMode overrides the audio session policy.
func WithAudioMode(m memo.AudioMode) Option {
	return func(o *options) { o.mode, o.modeSet = m, true }
}

// WithClock overrides the capture timestamp source.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Manager composes identity, the capture machine, the catalog and the search
// view into one recording session.
type Manager struct {
	identity memo.Identity
	machine  *capture.Machine
	catalog  *catalog.Catalog
	view     *search.View
	log      *slog.Logger
	now      func() time.Time

	subMu sync.Mutex
	subs  map[int]func(Event)
	next  int

	lastError      string
	lastErrorMutex sync.RWMutex

	unsubscribe func()
}

var _ Service = (*Manager)(nil)

// New creates a session manager over the given capabilities.
func New(identity memo.Identity, recorder memo.Recorder, player memo.Player, repo memo.Repository, opts ...Option) *Manager {
	o := options{log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{
		identity: identity,
		view:     search.NewView(),
		log:      o.log,
		now:      o.now,
		subs:     map[int]func(Event){},
	}

	machineOpts := []capture.Option{
		capture.WithLogger(o.log),
		capture.WithStamp(o.stamp),
		capture.WithClock(o.now),
		capture.WithTransitionHook(m.onTransition),
	}
	if o.modeSet {
		machineOpts = append(machineOpts, capture.WithAudioMode(o.mode))
	}
	m.machine = capture.New(recorder, player, machineOpts...)

	catalogOpts := []catalog.Option{catalog.WithLogger(o.log)}
	if o.sharer != nil {
		catalogOpts = append(catalogOpts, catalog.WithSharer(o.sharer))
	}
	m.catalog = catalog.New(repo, player, catalogOpts...)
	m.unsubscribe = m.catalog.Subscribe(m.onChange)
	return m
}

func (m *Manager) onTransition(_, to capture.State) {
	m.publish(Event{Type: EventState, State: to, Count: m.catalog.Len()})
}

func (m *Manager) onChange(ch catalog.Change) {
	m.view.SetSnapshot(ch.Snapshot, ch.Version)
	m.publish(Event{
		Type:        EventCatalog,
		Change:      ch.Kind,
		RecordingID: ch.ID,
		State:       m.machine.State(),
		Count:       len(ch.Snapshot),
	})
}

func (m *Manager) publish(ev Event) {
	ev.At = m.now()
	m.subMu.Lock()
	fns := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Subscribe registers fn for session events.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.next
	m.next++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

// track records err as the last error, or clears it on success.
func (m *Manager) track(op string, err error) error {
	m.lastErrorMutex.Lock()
	defer m.lastErrorMutex.Unlock()
	if err == nil {
		m.lastError = ""
		return nil
	}
	m.lastError = fmt.Sprintf("%s: %v", op, err)
	m.log.Error("session operation failed", "op", op, "kind", memo.Kind(err), "error", err)
	return err
}

// LastError returns the message of the most recent failed operation.
func (m *Manager) LastError() string {
	m.lastErrorMutex.RLock()
	defer m.lastErrorMutex.RUnlock()
	return m.lastError
}

// Load fills the catalog with the signed-in owner's recordings.
func (m *Manager) Load(ctx context.Context) error {
	owner, err := m.identity.CurrentOwnerID(ctx)
	if err != nil {
		return m.track("load", unauthenticated(err))
	}
	return m.track("load", m.catalog.Load(ctx, owner))
}

// Toggle performs the record button action for the current state.
func (m *Manager) Toggle(ctx context.Context) (ToggleResult, error) {
	intent := m.machine.Intent()
	res := ToggleResult{Intent: intent}
	switch intent {
	case capture.IntentStart:
		return res, m.Start(ctx)
	case capture.IntentResume:
		return res, m.Resume(ctx)
	default:
		entry, err := m.StopAndSave(ctx)
		if err != nil {
			return res, err
		}
		res.Saved = &entry
		return res, nil
	}
}

// Start opens a new capture.
func (m *Manager) Start(ctx context.Context) error {
	return m.track("start", m.machine.Start(ctx))
}

// Pause suspends the active capture.
func (m *Manager) Pause(ctx context.Context) error {
	return m.track("pause", m.machine.Pause(ctx))
}

// Resume continues a paused capture.
func (m *Manager) Resume(ctx context.Context) error {
	return m.track("resume", m.machine.Resume(ctx))
}

// StopAndSave finalizes the capture and appends it as "Recording N". The
// owner is resolved first so an unauthenticated stop leaves the capture
// running.
func (m *Manager) StopAndSave(ctx context.Context) (memo.RecordingEntry, error) {
	owner, err := m.identity.CurrentOwnerID(ctx)
	if err != nil {
		return memo.RecordingEntry{}, m.track("stop", unauthenticated(err))
	}
	take, err := m.machine.Stop(ctx)
	if err != nil {
		return memo.RecordingEntry{}, m.track("stop", err)
	}
	take.Entry.Name = memo.DefaultName(m.catalog.Len() + 1)
	entry, err := m.catalog.Append(ctx, owner, take)
	return entry, m.track("save", err)
}

// Discard drops the active capture without saving it.
func (m *Manager) Discard(ctx context.Context) error {
	return m.track("discard", m.machine.Discard(ctx))
}

// State returns the capture state.
func (m *Manager) State() capture.State {
	return m.machine.State()
}

// Rename renames a recording.
func (m *Manager) Rename(ctx context.Context, id, name string) error {
	return m.track("rename", m.catalog.Rename(ctx, id, name))
}

// Delete deletes a recording.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.track("delete", m.catalog.Delete(ctx, id))
}

// TogglePlayback plays or pauses a recording and reports whether it is now
// playing.
func (m *Manager) TogglePlayback(ctx context.Context, id string) (bool, error) {
	playing, err := m.catalog.TogglePlayback(ctx, id)
	if err != nil {
		return playing, m.track("playback", err)
	}
	if playing {
		m.watchPlayback(id)
	}
	return playing, m.track("playback", nil)
}

// watchPlayback clears the playing flag when the player finishes on its own.
func (m *Manager) watchPlayback(id string) {
	h, ok := m.catalog.Handle(id)
	if !ok {
		return
	}
	w, ok := h.(playbackWatcher)
	if !ok {
		return
	}
	done := w.Done()
	go func() {
		<-done
		if !w.Playing() {
			m.catalog.SetPlaying(id, false)
		}
	}()
}

// Share shares a recording and returns its location.
func (m *Manager) Share(ctx context.Context, id string) (string, error) {
	loc, err := m.catalog.Share(ctx, id)
	return loc, m.track("share", err)
}

// Entry returns a recording by id.
func (m *Manager) Entry(id string) (memo.RecordingEntry, error) {
	return m.catalog.Entry(id)
}

// SetQuery changes the search query.
func (m *Manager) SetQuery(q string) {
	m.view.SetQuery(q)
}

// Rows returns the recordings matching the current query.
func (m *Manager) Rows() []search.Row {
	return m.view.Rows()
}

// Status returns a summary of the session.
func (m *Manager) Status() Status {
	return Status{
		State:     m.machine.State(),
		Intent:    m.machine.Intent(),
		Count:     m.catalog.Len(),
		Visible:   len(m.view.Rows()),
		Query:     m.view.Query(),
		LastError: m.LastError(),
	}
}

// Close discards any active capture and releases every playable handle.
func (m *Manager) Close(ctx context.Context) error {
	derr := m.machine.Discard(ctx)
	cerr := m.catalog.Close()
	m.unsubscribe()
	return errors.Join(derr, cerr)
}

func unauthenticated(err error) error {
	if errors.Is(err, memo.ErrUnauthenticated) {
		return err
	}
	return fmt.Errorf("%w: %w", memo.ErrUnauthenticated, err)
}
