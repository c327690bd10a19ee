// Package memotest provides in-memory capability fakes for tests.
package memotest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/audiolibrelab/micmagic/internal/memo"
)

var ErrInjected = errors.New("injected failure")

// Identity returns a fixed owner, or ErrUnauthenticated when Owner is empty.
type Identity struct {
	Owner string
}

func (i *Identity) CurrentOwnerID(context.Context) (string, error) {
	if i.Owner == "" {
		return "", memo.ErrUnauthenticated
	}
	return i.Owner, nil
}

// Repository is a map-backed memo.Repository. Fail* fields inject errors.
type Repository struct {
	mu      sync.Mutex
	next    int
	order   []string
	records map[string]memo.Record

	FailCreate bool
	FailUpdate bool
	FailDelete bool
	FailList   bool
}

func NewRepository(seed ...memo.Record) *Repository {
	r := &Repository{records: map[string]memo.Record{}}
	for _, rec := range seed {
		r.order = append(r.order, rec.ID)
		r.records[rec.ID] = rec
	}
	return r
}

func (r *Repository) Create(_ context.Context, owner string, f memo.Fields) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreate {
		return "", ErrInjected
	}
	r.next++
	id := fmt.Sprintf("rec-%d", r.next)
	r.order = append(r.order, id)
	r.records[id] = memo.Record{ID: id, OwnerID: owner, Fields: f}
	return id, nil
}

func (r *Repository) Update(_ context.Context, id string, f memo.Fields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpdate {
		return ErrInjected
	}
	rec, ok := r.records[id]
	if !ok {
		return memo.ErrNotFound
	}
	rec.Fields = f
	r.records[id] = rec
	return nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDelete {
		return ErrInjected
	}
	if _, ok := r.records[id]; !ok {
		return memo.ErrNotFound
	}
	delete(r.records, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Repository) ListByOwner(_ context.Context, owner string) ([]memo.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailList {
		return nil, ErrInjected
	}
	var out []memo.Record
	for _, id := range r.order {
		if rec := r.records[id]; rec.OwnerID == owner {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Get returns the stored record.
func (r *Repository) Get(id string) (memo.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

// Len returns the number of stored records.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type captureHandle struct{ path string }

func (h *captureHandle) Path() string { return h.path }

// Recorder records calls and returns Clip on Close.
type Recorder struct {
	mu sync.Mutex

	Deny        bool
	FailOpen    bool
	FailClose   bool
	FailPause   bool
	Clip        memo.Clip
	Mode        memo.AudioMode
	Opened      int
	Closed      int
	Paused      int
	Resumed     int
	BlockOpen   chan struct{}
	openStarted chan struct{}
}

// OpenStarted is closed once Open has been entered while BlockOpen is set.
func (r *Recorder) OpenStarted() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openStarted == nil {
		r.openStarted = make(chan struct{})
	}
	return r.openStarted
}

func (r *Recorder) markOpenStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openStarted == nil {
		r.openStarted = make(chan struct{})
	}
	select {
	case <-r.openStarted:
	default:
		close(r.openStarted)
	}
}

func (r *Recorder) RequestPermission(context.Context) (bool, error) {
	return !r.Deny, nil
}

func (r *Recorder) ConfigureSession(_ context.Context, mode memo.AudioMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Mode = mode
	return nil
}

func (r *Recorder) Open(context.Context) (memo.CaptureHandle, error) {
	if r.BlockOpen != nil {
		r.markOpenStarted()
		<-r.BlockOpen
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailOpen {
		return nil, ErrInjected
	}
	r.Opened++
	return &captureHandle{path: fmt.Sprintf("/tmp/take-%d.m4a", r.Opened)}, nil
}

func (r *Recorder) Pause(context.Context, memo.CaptureHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailPause {
		return ErrInjected
	}
	r.Paused++
	return nil
}

func (r *Recorder) Resume(context.Context, memo.CaptureHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Resumed++
	return nil
}

func (r *Recorder) Close(_ context.Context, h memo.CaptureHandle) (memo.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed++
	if r.FailClose {
		return memo.Clip{}, ErrInjected
	}
	clip := r.Clip
	if clip.AudioRef == "" {
		clip.AudioRef = h.Path()
	}
	return clip, nil
}

// Handle is the playable handle issued by Player.
type Handle struct {
	Ref string
}

func (h *Handle) AudioRef() string { return h.Ref }

// Player tracks plays, pauses and releases per handle.
type Player struct {
	mu sync.Mutex

	FailBind map[string]bool
	FailPlay bool
	Plays    map[string]int
	Pauses   map[string]int
	Releases map[*Handle]int
	Bound    int

	// BlockRelease, when set, holds Release until it is closed.
	BlockRelease   chan struct{}
	releaseStarted chan struct{}
}

func NewPlayer() *Player {
	return &Player{
		FailBind: map[string]bool{},
		Plays:    map[string]int{},
		Pauses:   map[string]int{},
		Releases: map[*Handle]int{},
	}
}

func (p *Player) Bind(_ context.Context, ref string) (memo.PlayableHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailBind[ref] {
		return nil, ErrInjected
	}
	p.Bound++
	return &Handle{Ref: ref}, nil
}

func (p *Player) Play(_ context.Context, h memo.PlayableHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailPlay {
		return ErrInjected
	}
	p.Plays[h.AudioRef()]++
	return nil
}

func (p *Player) Pause(_ context.Context, h memo.PlayableHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Pauses[h.AudioRef()]++
	return nil
}

// ReleaseStarted is closed once Release has been entered while BlockRelease
// is set.
func (p *Player) ReleaseStarted() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.releaseStarted == nil {
		p.releaseStarted = make(chan struct{})
	}
	return p.releaseStarted
}

func (p *Player) Release(h memo.PlayableHandle) error {
	p.mu.Lock()
	block := p.BlockRelease
	if block != nil {
		if p.releaseStarted == nil {
			p.releaseStarted = make(chan struct{})
		}
		select {
		case <-p.releaseStarted:
		default:
			close(p.releaseStarted)
		}
	}
	p.mu.Unlock()
	if block != nil {
		<-block
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Releases[h.(*Handle)]++
	return nil
}

// Released reports the total number of Release calls.
func (p *Player) Released() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.Releases {
		n += c
	}
	return n
}

// DoubleReleased reports whether any handle was released more than once.
func (p *Player) DoubleReleased() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.Releases {
		if c > 1 {
			return true
		}
	}
	return false
}

// Sharer returns "shared:"+ref.
type Sharer struct {
	Fail   bool
	Shared []string
}

func (s *Sharer) Share(_ context.Context, ref string) (string, error) {
	if s.Fail {
		return "", ErrInjected
	}
	s.Shared = append(s.Shared, ref)
	return "shared:" + ref, nil
}
