package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/audiolibrelab/micmagic/internal/memo"
	"github.com/audiolibrelab/micmagic/internal/memo/memotest"
)

var fixedStart = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

func newMachine(rec *memotest.Recorder, pl *memotest.Player, opts ...Option) *Machine {
	opts = append([]Option{WithClock(func() time.Time { return fixedStart })}, opts...)
	return New(rec, pl, opts...)
}

func TestStartStopProducesTake(t *testing.T) {
	rec := &memotest.Recorder{Clip: memo.Clip{AudioRef: "/tmp/a.m4a", DurationMs: 5400}}
	pl := memotest.NewPlayer()
	m := newMachine(rec, pl)
	ctx := context.Background()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if m.State() != StateRecording {
		t.Fatalf("state = %s, want RECORDING", m.State())
	}
	if rec.Mode != memo.RecordingMode {
		t.Errorf("audio mode = %+v, want recording priority", rec.Mode)
	}

	take, err := m.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.State() != StateIdle {
		t.Errorf("state after stop = %s, want IDLE", m.State())
	}
	if take.Entry.ID != "" {
		t.Errorf("take must not carry an id, got %q", take.Entry.ID)
	}
	if take.Entry.DurationLabel != "0:05" {
		t.Errorf("duration = %q, want 0:05", take.Entry.DurationLabel)
	}
	if take.Entry.CreatedDate != "1/2/24" || take.Entry.CreatedTime != "3:04:05 PM" {
		t.Errorf("labels = %q %q", take.Entry.CreatedDate, take.Entry.CreatedTime)
	}
	if take.Handle == nil || take.Handle.AudioRef() != "/tmp/a.m4a" {
		t.Errorf("handle = %v", take.Handle)
	}
	if rec.Closed != 1 {
		t.Errorf("Close called %d times", rec.Closed)
	}
}

func TestPermissionDeniedStaysIdle(t *testing.T) {
	rec := &memotest.Recorder{Deny: true}
	m := newMachine(rec, memotest.NewPlayer())

	err := m.Start(context.Background())
	if !errors.Is(err, memo.ErrPermissionDenied) {
		t.Fatalf("err = %v, want PermissionDenied", err)
	}
	if m.State() != StateIdle {
		t.Errorf("state = %s, want IDLE", m.State())
	}
	if rec.Opened != 0 {
		t.Error("recorder must not open without permission")
	}
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	m := newMachine(&memotest.Recorder{}, memotest.NewPlayer())

	if err := m.Pause(ctx); !errors.Is(err, memo.ErrInvalidTransition) {
		t.Errorf("pause from idle: %v", err)
	}
	if err := m.Resume(ctx); !errors.Is(err, memo.ErrInvalidTransition) {
		t.Errorf("resume from idle: %v", err)
	}
	if _, err := m.Stop(ctx); !errors.Is(err, memo.ErrInvalidTransition) {
		t.Errorf("stop from idle: %v", err)
	}

	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(ctx); !errors.Is(err, memo.ErrInvalidTransition) {
		t.Errorf("start while recording: %v", err)
	}
	if err := m.Resume(ctx); !errors.Is(err, memo.ErrInvalidTransition) {
		t.Errorf("resume while recording: %v", err)
	}
	if m.State() != StateRecording {
		t.Errorf("rejected calls mutated state to %s", m.State())
	}
}

func TestPauseResumeCycle(t *testing.T) {
	ctx := context.Background()
	rec := &memotest.Recorder{}
	m := newMachine(rec, memotest.NewPlayer())

	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if m.State() != StatePaused {
		t.Fatalf("state = %s, want PAUSED", m.State())
	}
	if err := m.Pause(ctx); !errors.Is(err, memo.ErrInvalidTransition) {
		t.Errorf("double pause: %v", err)
	}
	if err := m.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := m.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Stop(ctx); err != nil {
		t.Fatalf("stop from paused: %v", err)
	}
	if rec.Paused != 2 || rec.Resumed != 1 {
		t.Errorf("paused=%d resumed=%d", rec.Paused, rec.Resumed)
	}
}

func TestStopFailuresReturnToIdle(t *testing.T) {
	ctx := context.Background()

	rec := &memotest.Recorder{FailClose: true}
	m := newMachine(rec, memotest.NewPlayer())
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Stop(ctx); !errors.Is(err, memo.ErrCaptureFailed) {
		t.Errorf("close failure: %v", err)
	}
	if m.State() != StateIdle {
		t.Errorf("state = %s after close failure", m.State())
	}

	rec = &memotest.Recorder{Clip: memo.Clip{AudioRef: "/tmp/bad.m4a"}}
	pl := memotest.NewPlayer()
	pl.FailBind["/tmp/bad.m4a"] = true
	m = newMachine(rec, pl)
	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Stop(ctx); !errors.Is(err, memo.ErrCaptureFailed) {
		t.Errorf("bind failure: %v", err)
	}
	if m.State() != StateIdle {
		t.Errorf("state = %s after bind failure", m.State())
	}
	if err := m.Start(ctx); err != nil {
		t.Errorf("machine not reusable after failure: %v", err)
	}
}

func TestConcurrentTransitionRejected(t *testing.T) {
	block := make(chan struct{})
	rec := &memotest.Recorder{BlockOpen: block}
	m := newMachine(rec, memotest.NewPlayer())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	<-rec.OpenStarted()

	if err := m.Start(ctx); !errors.Is(err, memo.ErrInvalidTransition) {
		t.Errorf("overlapping start: %v", err)
	}
	if err := m.Discard(ctx); !errors.Is(err, memo.ErrInvalidTransition) {
		t.Errorf("discard during start: %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first start: %v", err)
	}
	if m.State() != StateRecording {
		t.Errorf("state = %s", m.State())
	}
}

func TestIntent(t *testing.T) {
	ctx := context.Background()
	m := newMachine(&memotest.Recorder{}, memotest.NewPlayer())

	if m.Intent() != IntentStart {
		t.Errorf("idle intent = %s", m.Intent())
	}
	_ = m.Start(ctx)
	if m.Intent() != IntentStop {
		t.Errorf("recording intent = %s", m.Intent())
	}
	_ = m.Pause(ctx)
	if m.Intent() != IntentResume {
		t.Errorf("paused intent = %s", m.Intent())
	}
}

func TestDiscardAndHook(t *testing.T) {
	ctx := context.Background()
	rec := &memotest.Recorder{}
	var seen []State
	m := newMachine(rec, memotest.NewPlayer(), WithTransitionHook(func(_, to State) {
		seen = append(seen, to)
	}))

	if err := m.Discard(ctx); err != nil {
		t.Errorf("discard idle: %v", err)
	}
	_ = m.Start(ctx)
	_ = m.Pause(ctx)
	if err := m.Discard(ctx); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if rec.Closed != 1 || m.State() != StateIdle {
		t.Errorf("closed=%d state=%s", rec.Closed, m.State())
	}

	want := []State{StateRecording, StatePaused, StateIdle}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, seen[i], want[i])
		}
	}
}
