// Package tui is the terminal recordings browser: a search bar, the list of
// saved memos, and the record controls.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/audiolibrelab/micmagic/internal/capture"
	"github.com/audiolibrelab/micmagic/internal/search"
	"github.com/audiolibrelab/micmagic/internal/service"
)

// Mode is what keyboard input currently edits.
type Mode int

const (
	ModeBrowse Mode = iota
	ModeSearch
	ModeRename
	ModeConfirmDelete
)

const (
	eventBuffer  = 64
	noticeExpiry = 4 * time.Second
)

// Model is the root bubbletea model for the browser.
type Model struct {
	svc         service.Service
	events      chan service.Event
	unsubscribe func()

	rows   []search.Row
	cursor int
	status service.Status

	mode  Mode
	query string
	input string

	notice    string
	noticeSeq int
	errText   string

	width  int
	height int
}

// New creates a model over svc and subscribes to its events.
func New(svc service.Service) Model {
	events := make(chan service.Event, eventBuffer)
	unsubscribe := svc.Subscribe(func(ev service.Event) {
		select {
		case events <- ev:
		default:
			// The model re-reads rows on every event, so a dropped event
			// only delays a refresh.
		}
	})
	m := Model{svc: svc, events: events, unsubscribe: unsubscribe, query: svc.Status().Query}
	m.refresh()
	return m
}

// Init starts listening for session events.
func (m Model) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return sessionEventMsg{Event: ev}
	}
}

// refresh re-reads the visible rows and keeps the cursor in range.
func (m *Model) refresh() {
	m.rows = m.svc.Rows()
	m.status = m.svc.Status()
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// selected returns the row under the cursor.
func (m Model) selected() (search.Row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return search.Row{}, false
	}
	return m.rows[m.cursor], true
}

// run performs fn off the update loop and reports its outcome.
func (m Model) run(op string, fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		notice, err := fn(context.Background())
		return opDoneMsg{Op: op, Err: err, Notice: notice}
	}
}

func (m *Model) setNotice(text string) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	seq := m.noticeSeq
	return tea.Tick(noticeExpiry, func(time.Time) tea.Msg {
		return clearNoticeMsg{seq: seq}
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case sessionEventMsg:
		m.refresh()
		return m, m.waitForEvent()

	case opDoneMsg:
		m.refresh()
		if msg.Err != nil {
			m.errText = fmt.Sprintf("%s failed: %v", msg.Op, msg.Err)
			return m, nil
		}
		m.errText = ""
		if msg.Notice != "" {
			return m, m.setNotice(msg.Notice)
		}
		return m, nil

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == keyCtrlC {
		m.unsubscribe()
		return m, tea.Quit
	}

	switch m.mode {
	case ModeSearch:
		return m.handleSearchKey(msg)
	case ModeRename:
		return m.handleRenameKey(msg)
	case ModeConfirmDelete:
		return m.handleConfirmKey(key)
	}

	switch key {
	case keyQuit:
		m.unsubscribe()
		return m, tea.Quit

	case keyUp, keyK:
		if m.cursor > 0 {
			m.cursor--
		}
	case keyDown, keyJ:
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}

	case keyRecord, keySpace:
		return m, m.run("record", func(ctx context.Context) (string, error) {
			res, err := m.svc.Toggle(ctx)
			if err != nil || res.Saved == nil {
				return "", err
			}
			return fmt.Sprintf("Saved %s (%s)", res.Saved.Name, res.Saved.DurationLabel), nil
		})
	case keyPause:
		return m, m.run("pause", func(ctx context.Context) (string, error) {
			return "", m.svc.Pause(ctx)
		})
	case keyDiscard:
		return m, m.run("discard", func(ctx context.Context) (string, error) {
			if m.svc.State() == capture.StateIdle {
				return "", nil
			}
			return "Recording discarded", m.svc.Discard(ctx)
		})
	case keyReload:
		return m, m.run("reload", func(ctx context.Context) (string, error) {
			return "", m.svc.Load(ctx)
		})

	case keySearch:
		m.mode = ModeSearch

	case keyEnter:
		row, ok := m.selected()
		if !ok {
			return m, nil
		}
		id := row.Entry.ID
		return m, m.run("playback", func(ctx context.Context) (string, error) {
			_, err := m.svc.TogglePlayback(ctx, id)
			return "", err
		})
	case keyRename:
		if row, ok := m.selected(); ok {
			m.mode = ModeRename
			m.input = row.Entry.Name
		}
	case keyDelete:
		if _, ok := m.selected(); ok {
			m.mode = ModeConfirmDelete
		}
	case keyShare:
		row, ok := m.selected()
		if !ok {
			return m, nil
		}
		id := row.Entry.ID
		return m, m.run("share", func(ctx context.Context) (string, error) {
			loc, err := m.svc.Share(ctx, id)
			if err != nil {
				return "", err
			}
			return "Shared: " + loc, nil
		})
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter, tea.KeyEsc:
		m.mode = ModeBrowse
		return m, nil
	case tea.KeyBackspace:
		if r := []rune(m.query); len(r) > 0 {
			m.query = string(r[:len(r)-1])
		}
	case tea.KeyRunes:
		m.query += string(msg.Runes)
	case tea.KeySpace:
		m.query += " "
	default:
		return m, nil
	}
	m.svc.SetQuery(m.query)
	m.cursor = 0
	m.refresh()
	return m, nil
}

func (m Model) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = ModeBrowse
		m.input = ""
	case tea.KeyEnter:
		m.mode = ModeBrowse
		row, ok := m.selected()
		name := m.input
		m.input = ""
		if !ok {
			return m, nil
		}
		id := row.Entry.ID
		return m, m.run("rename", func(ctx context.Context) (string, error) {
			return "", m.svc.Rename(ctx, id, name)
		})
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	case tea.KeySpace:
		m.input += " "
	}
	return m, nil
}

func (m Model) handleConfirmKey(key string) (tea.Model, tea.Cmd) {
	m.mode = ModeBrowse
	if key != keyYes {
		return m, nil
	}
	row, ok := m.selected()
	if !ok {
		return m, nil
	}
	id, name := row.Entry.ID, row.Entry.Name
	return m, m.run("delete", func(ctx context.Context) (string, error) {
		if err := m.svc.Delete(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted %s", name), nil
	})
}

// View renders the browser.
func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = 60
	}
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderSearch(width))
	b.WriteString("\n")
	b.WriteString(m.renderList(width))
	b.WriteString("\n")
	b.WriteString(m.renderControls())
	b.WriteString("\n")
	if m.errText != "" {
		b.WriteString(errorStyle.Render(m.errText))
		b.WriteString("\n")
	} else if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(dividerStyle.Render(strings.Repeat("─", width)))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	var dot string
	switch m.status.State {
	case capture.StateRecording:
		dot = recordingDotStyle.Render("● REC")
	case capture.StatePaused:
		dot = pausedDotStyle.Render("❚❚ PAUSED")
	case capture.StateFinalizing:
		dot = pausedDotStyle.Render("… SAVING")
	default:
		dot = idleDotStyle.Render("○ IDLE")
	}
	count := dimStyle.Render(fmt.Sprintf("%d recordings", m.status.Count))
	return lipgloss.JoinHorizontal(lipgloss.Top, titleStyle.Render("MicMagic"), "  ", dot, "  ", count)
}

func (m Model) renderSearch(width int) string {
	style := searchStyle
	text := m.query
	if m.mode == ModeSearch {
		style = searchActiveStyle
		text += "▏"
	}
	if text == "" {
		text = dimStyle.Render("Search recordings")
	}
	return style.Width(width - 2).Render("⌕ " + text)
}

func (m Model) renderList(width int) string {
	if len(m.rows) == 0 {
		if m.query != "" {
			return dimStyle.Render("  No recordings match.")
		}
		return dimStyle.Render("  No recordings yet. Press r to record.")
	}
	lines := make([]string, 0, len(m.rows)*2)
	for i, row := range m.rows {
		e := row.Entry
		marker, style := "  ", nameStyle
		if i == m.cursor {
			marker, style = "> ", selectedStyle
		}
		name := e.Name
		if i == m.cursor && m.mode == ModeRename {
			name = m.input + "▏"
		}
		title := style.Render(name + " | " + e.DurationLabel)
		if e.IsPlaying {
			title += " " + playingStyle.Render("▶ playing")
		}
		lines = append(lines, marker+title)
		lines = append(lines, "  "+dimStyle.Render(e.CreatedDate+" at "+e.CreatedTime))
	}
	if m.mode == ModeConfirmDelete {
		if row, ok := m.selected(); ok {
			lines = append(lines, errorStyle.Render(fmt.Sprintf("Delete %q? (y/n)", row.Entry.Name)))
		}
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderControls() string {
	switch m.status.Intent {
	case capture.IntentStop:
		return lipgloss.JoinHorizontal(lipgloss.Top,
			recordButtonStyle.Render("■ Stop"), " ", pauseButtonStyle.Render("❚❚ Pause"))
	case capture.IntentResume:
		return lipgloss.JoinHorizontal(lipgloss.Top,
			recordButtonStyle.Render("● Resume"), " ", recordButtonStyle.Render("■ Discard"))
	default:
		return recordButtonStyle.Render("● Record")
	}
}

func (m Model) renderFooter() string {
	var pairs [][2]string
	switch m.mode {
	case ModeSearch:
		pairs = [][2]string{{"type", "filter"}, {"enter/esc", "done"}}
	case ModeRename:
		pairs = [][2]string{{"enter", "save"}, {"esc", "cancel"}}
	case ModeConfirmDelete:
		pairs = [][2]string{{"y", "delete"}, {"n", "keep"}}
	default:
		pairs = [][2]string{
			{"r", "record"}, {"p", "pause"}, {"x", "discard"}, {"/", "search"},
			{"enter", "play"}, {"e", "rename"}, {"d", "delete"}, {"s", "share"}, {"q", "quit"},
		}
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, footerKeyStyle.Render(p[0])+" "+footerDescStyle.Render(p[1]))
	}
	return strings.Join(parts, "  ")
}
