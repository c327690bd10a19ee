// Package capture drives a single audio capture session through
// Idle -> Recording <-> Paused -> Finalizing -> Idle.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/micmagic/internal/memo"
)

// State is the capture session state.
type State string

const (
	StateIdle       State = "IDLE"
	StateRecording  State = "RECORDING"
	StatePaused     State = "PAUSED"
	StateFinalizing State = "FINALIZING"
)

// Intent is what the single record button does in the current state.
type Intent string

const (
	IntentStart  Intent = "start"
	IntentResume Intent = "resume"
	IntentStop   Intent = "stop"
)

// TransitionFunc observes state changes. It runs without the machine lock held.
type TransitionFunc func(from, to State)

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the capture timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithStamp sets the date and time label layouts.
func WithStamp(s memo.Stamp) Option {
	return func(m *Machine) { m.stamp = s }
}

// WithAudioMode sets the audio session policy applied on start.
func WithAudioMode(mode memo.AudioMode) Option {
	return func(m *Machine) { m.mode = mode }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithTransitionHook registers fn to be called after every state change.
func WithTransitionHook(fn TransitionFunc) Option {
	return func(m *Machine) { m.hook = fn }
}

// Machine owns at most one capture handle at a time. Transitions never
// overlap: a call that arrives while another is doing I/O is rejected.
type Machine struct {
	recorder memo.Recorder
	player   memo.Player

	now   func() time.Time
	stamp memo.Stamp
	mode  memo.AudioMode
	log   *slog.Logger
	hook  TransitionFunc

	mu        sync.Mutex
	state     State
	busy      bool
	handle    memo.CaptureHandle
	startedAt time.Time
}

// New returns an idle machine.
func New(recorder memo.Recorder, player memo.Player, opts ...Option) *Machine {
	m := &Machine{
		recorder: recorder,
		player:   player,
		now:      time.Now,
		mode:     memo.RecordingMode,
		log:      slog.Default(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Intent maps the current state to the record button action.
func (m *Machine) Intent() Intent {
	switch m.State() {
	case StateIdle:
		return IntentStart
	case StatePaused:
		return IntentResume
	default:
		return IntentStop
	}
}

// begin claims the machine for a transition out of one of the allowed states.
func (m *Machine) begin(op string, allowed ...State) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return m.state, fmt.Errorf("%s: transition in flight: %w", op, memo.ErrInvalidTransition)
	}
	for _, s := range allowed {
		if m.state == s {
			m.busy = true
			return m.state, nil
		}
	}
	return m.state, fmt.Errorf("%s from %s: %w", op, m.state, memo.ErrInvalidTransition)
}

// finish releases the transition claim and moves to next.
func (m *Machine) finish(next State) {
	m.mu.Lock()
	from := m.state
	m.state = next
	m.busy = false
	if next == StateIdle {
		m.handle = nil
	}
	m.mu.Unlock()

	if from != next {
		m.log.Debug("capture transition", "from", from, "to", next)
		if m.hook != nil {
			m.hook(from, next)
		}
	}
}

// Start requests microphone permission, applies the audio mode and opens a
// capture. Only valid from Idle.
func (m *Machine) Start(ctx context.Context) error {
	if _, err := m.begin("start", StateIdle); err != nil {
		return err
	}

	granted, err := m.recorder.RequestPermission(ctx)
	if err != nil {
		m.finish(StateIdle)
		return fmt.Errorf("%w: %w", memo.ErrPermissionDenied, err)
	}
	if !granted {
		m.finish(StateIdle)
		return fmt.Errorf("microphone access: %w", memo.ErrPermissionDenied)
	}

	if err := m.recorder.ConfigureSession(ctx, m.mode); err != nil {
		m.finish(StateIdle)
		return fmt.Errorf("%w: configure session: %w", memo.ErrCaptureFailed, err)
	}

	h, err := m.recorder.Open(ctx)
	if err != nil {
		m.finish(StateIdle)
		return fmt.Errorf("%w: open: %w", memo.ErrCaptureFailed, err)
	}

	m.mu.Lock()
	m.handle = h
	m.startedAt = m.now()
	m.mu.Unlock()

	m.log.Info("recording started", "path", h.Path())
	m.finish(StateRecording)
	return nil
}

// Pause suspends an active capture.
func (m *Machine) Pause(ctx context.Context) error {
	if _, err := m.begin("pause", StateRecording); err != nil {
		return err
	}
	if err := m.recorder.Pause(ctx, m.current()); err != nil {
		m.finish(StateRecording)
		return fmt.Errorf("%w: pause: %w", memo.ErrCaptureFailed, err)
	}
	m.finish(StatePaused)
	return nil
}

// Resume continues a paused capture.
func (m *Machine) Resume(ctx context.Context) error {
	if _, err := m.begin("resume", StatePaused); err != nil {
		return err
	}
	if err := m.recorder.Resume(ctx, m.current()); err != nil {
		m.finish(StatePaused)
		return fmt.Errorf("%w: resume: %w", memo.ErrCaptureFailed, err)
	}
	m.finish(StateRecording)
	return nil
}

// Stop finalizes the capture and returns the take. The machine is back in
// Idle afterwards whether or not finalization succeeded.
func (m *Machine) Stop(ctx context.Context) (memo.Take, error) {
	from, err := m.begin("stop", StateRecording, StatePaused)
	if err != nil {
		return memo.Take{}, err
	}
	m.mu.Lock()
	m.state = StateFinalizing
	h, startedAt := m.handle, m.startedAt
	m.mu.Unlock()
	if m.hook != nil {
		m.hook(from, StateFinalizing)
	}

	clip, err := m.recorder.Close(ctx, h)
	if err != nil {
		m.finish(StateIdle)
		return memo.Take{}, fmt.Errorf("%w: close: %w", memo.ErrCaptureFailed, err)
	}

	playable, err := m.player.Bind(ctx, clip.AudioRef)
	if err != nil {
		m.finish(StateIdle)
		return memo.Take{}, fmt.Errorf("%w: bind %s: %w", memo.ErrCaptureFailed, clip.AudioRef, err)
	}

	date, clock := m.stamp.Labels(startedAt)
	take := memo.Take{
		Entry: memo.RecordingEntry{
			AudioRef:      clip.AudioRef,
			DurationLabel: memo.FormatDuration(clip.DurationMs),
			CreatedDate:   date,
			CreatedTime:   clock,
		},
		Handle: playable,
	}
	m.log.Info("recording finished", "audio_ref", clip.AudioRef, "duration", take.Entry.DurationLabel)
	m.finish(StateIdle)
	return take, nil
}

// Discard closes an active capture without producing a take. Discarding an
// idle machine is a no-op.
func (m *Machine) Discard(ctx context.Context) error {
	m.mu.Lock()
	idle := m.state == StateIdle && !m.busy
	m.mu.Unlock()
	if idle {
		return nil
	}
	if _, err := m.begin("discard", StateRecording, StatePaused); err != nil {
		return err
	}
	_, cerr := m.recorder.Close(ctx, m.current())
	m.finish(StateIdle)
	if cerr != nil {
		return fmt.Errorf("%w: discard: %w", memo.ErrCaptureFailed, cerr)
	}
	m.log.Info("recording discarded")
	return nil
}

func (m *Machine) current() memo.CaptureHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}
