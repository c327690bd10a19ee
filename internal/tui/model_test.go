package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/audiolibrelab/micmagic/internal/capture"
	"github.com/audiolibrelab/micmagic/internal/memo"
	"github.com/audiolibrelab/micmagic/internal/memo/memotest"
	"github.com/audiolibrelab/micmagic/internal/service"
)

func newTestModel(t *testing.T, seed ...memo.Record) (Model, *memotest.Repository) {
	t.Helper()
	repo := memotest.NewRepository(seed...)
	clock := func() time.Time { return time.Date(2024, time.March, 5, 8, 9, 10, 0, time.UTC) }
	mgr := service.New(&memotest.Identity{Owner: "u1"}, &memotest.Recorder{Clip: memo.Clip{DurationMs: 3200}},
		memotest.NewPlayer(), repo, service.WithSharer(&memotest.Sharer{}), service.WithClock(clock))
	if err := mgr.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	return New(mgr), repo
}

func seedRecords() []memo.Record {
	return []memo.Record{
		{ID: "a", OwnerID: "u1", Fields: memo.Fields{Name: "Groceries", AudioRef: "/a.m4a", DurationLabel: "0:05", CreatedDate: "3/5/24", CreatedTime: "8:00:00 AM"}},
		{ID: "b", OwnerID: "u1", Fields: memo.Fields{Name: "Lecture", AudioRef: "/b.m4a", DurationLabel: "9:00", CreatedDate: "3/6/24", CreatedTime: "9:00:00 AM"}},
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends key and runs the resulting operation synchronously.
func press(t *testing.T, m Model, key tea.KeyMsg) Model {
	t.Helper()
	updated, cmd := m.Update(key)
	m = updated.(Model)
	if cmd == nil {
		return m
	}
	msg := cmd()
	if _, ok := msg.(opDoneMsg); !ok {
		return m
	}
	updated, _ = m.Update(msg)
	return updated.(Model)
}

func TestNewModel(t *testing.T) {
	m, _ := newTestModel(t, seedRecords()...)
	if len(m.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(m.rows))
	}
	if m.mode != ModeBrowse {
		t.Error("new model should be browsing")
	}
	view := m.View()
	if !strings.Contains(view, "Groceries | 0:05") || !strings.Contains(view, "3/5/24 at 8:00:00 AM") {
		t.Errorf("view missing row text:\n%s", view)
	}
	if !strings.Contains(view, "2 recordings") {
		t.Errorf("view missing count:\n%s", view)
	}
}

func TestEmptyView(t *testing.T) {
	m, _ := newTestModel(t)
	if !strings.Contains(m.View(), "No recordings yet") {
		t.Error("empty catalog should show the empty hint")
	}
}

func TestCursorMovement(t *testing.T) {
	m, _ := newTestModel(t, seedRecords()...)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
	m = press(t, m, runes("j"))
	if m.cursor != 1 {
		t.Errorf("cursor should stop at last row, got %d", m.cursor)
	}
	m = press(t, m, runes("k"))
	m = press(t, m, runes("k"))
	if m.cursor != 0 {
		t.Errorf("cursor should stop at first row, got %d", m.cursor)
	}
}

func TestRecordCycle(t *testing.T) {
	m, repo := newTestModel(t)

	m = press(t, m, runes("r"))
	if m.status.State != capture.StateRecording {
		t.Fatalf("state = %s, want RECORDING (err %q)", m.status.State, m.errText)
	}
	if !strings.Contains(m.View(), "■ Stop") {
		t.Error("recording view should offer stop")
	}

	m = press(t, m, runes("p"))
	if m.status.State != capture.StatePaused {
		t.Fatalf("state = %s, want PAUSED", m.status.State)
	}

	m = press(t, m, runes("r"))
	m = press(t, m, runes("r"))
	if m.status.State != capture.StateIdle {
		t.Fatalf("state = %s, want IDLE", m.status.State)
	}
	if repo.Len() != 1 || len(m.rows) != 1 {
		t.Fatalf("expected one saved recording, repo=%d rows=%d", repo.Len(), len(m.rows))
	}
	if m.notice != "Saved Recording 1 (0:03)" {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestInvalidTransitionShowsError(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(t, m, runes("p"))
	if !strings.Contains(m.errText, "pause failed") {
		t.Errorf("errText = %q", m.errText)
	}
	if !strings.Contains(m.View(), "pause failed") {
		t.Error("view should show the error")
	}
}

func TestSearchMode(t *testing.T) {
	m, _ := newTestModel(t, seedRecords()...)
	m = press(t, m, runes("/"))
	if m.mode != ModeSearch {
		t.Fatal("expected search mode")
	}
	for _, r := range "LEC" {
		m = press(t, m, runes(string(r)))
	}
	if len(m.rows) != 1 || m.rows[0].Entry.ID != "b" {
		t.Fatalf("rows = %+v", m.rows)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	if m.query != "LE" {
		t.Errorf("query = %q", m.query)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.mode != ModeBrowse || m.query != "LE" {
		t.Errorf("esc should keep the query, mode=%v query=%q", m.mode, m.query)
	}
}

func TestRename(t *testing.T) {
	m, repo := newTestModel(t, seedRecords()...)
	m = press(t, m, runes("e"))
	if m.mode != ModeRename || m.input != "Groceries" {
		t.Fatalf("mode=%v input=%q", m.mode, m.input)
	}
	for i := 0; i < len("Groceries"); i++ {
		m = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	}
	m = press(t, m, runes("Milk"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m = press(t, m, runes("run"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	rec, _ := repo.Get("a")
	if rec.Name != "Milk run" {
		t.Errorf("name = %q, want %q", rec.Name, "Milk run")
	}
	if m.rows[0].Entry.Name != "Milk run" {
		t.Errorf("row name = %q", m.rows[0].Entry.Name)
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	m, repo := newTestModel(t, seedRecords()...)

	m = press(t, m, runes("d"))
	if !strings.Contains(m.View(), `Delete "Groceries"? (y/n)`) {
		t.Error("expected confirmation prompt")
	}
	m = press(t, m, runes("n"))
	if repo.Len() != 2 {
		t.Fatal("declined delete must keep the recording")
	}

	m = press(t, m, runes("d"))
	m = press(t, m, runes("y"))
	if repo.Len() != 1 || len(m.rows) != 1 {
		t.Fatalf("repo=%d rows=%d", repo.Len(), len(m.rows))
	}
	if m.notice != "Deleted Groceries" {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestPlaybackAndShare(t *testing.T) {
	m, _ := newTestModel(t, seedRecords()...)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.rows[0].Entry.IsPlaying {
		t.Error("selected row should be playing")
	}
	if !strings.Contains(m.View(), "▶ playing") {
		t.Error("view should mark the playing row")
	}

	m = press(t, m, runes("s"))
	if m.notice != "Shared: shared:/a.m4a" {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestNoticeExpires(t *testing.T) {
	m, _ := newTestModel(t)
	m.setNotice("hello")
	stale := clearNoticeMsg{seq: m.noticeSeq - 1}
	updated, _ := m.Update(stale)
	if updated.(Model).notice != "hello" {
		t.Error("stale clear must not remove a newer notice")
	}
	updated, _ = m.Update(clearNoticeMsg{seq: m.noticeSeq})
	if updated.(Model).notice != "" {
		t.Error("notice should be cleared")
	}
}

func TestSessionEventRefreshes(t *testing.T) {
	m, _ := newTestModel(t, seedRecords()...)
	m.rows = nil
	updated, cmd := m.Update(sessionEventMsg{Event: service.Event{Type: service.EventCatalog}})
	if len(updated.(Model).rows) != 2 {
		t.Error("event should refresh rows")
	}
	if cmd == nil {
		t.Error("event should re-arm the listener")
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}
