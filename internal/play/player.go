// Package play plays recordings through an external audio player process.
package play

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/audiolibrelab/micmagic/internal/audio"
	"github.com/audiolibrelab/micmagic/internal/config"
	"github.com/audiolibrelab/micmagic/internal/memo"
)

// List of supported audio players in order of preference
var players = []string{"ffplay", "mpv", "cvlc", "aplay"}

// Player implements memo.Player.
type Player struct {
	cfg      *config.Config
	session  *audio.Session
	lookPath func(string) (string, error)
}

var _ memo.Player = (*Player)(nil)

// New creates a player. When session reports an open capture with recording
// priority, playback starts muted.
func New(cfg *config.Config, session *audio.Session) *Player {
	if session == nil {
		session = audio.NewSession()
	}
	return &Player{cfg: cfg, session: session, lookPath: exec.LookPath}
}

// Handle is a bound recording. It owns at most one player process.
type Handle struct {
	ref string

	mu       sync.Mutex
	cmd      *exec.Cmd
	done     chan struct{}
	paused   bool
	released bool
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// AudioRef returns the bound file.
func (h *Handle) AudioRef() string { return h.ref }

// Done is closed when the current player process exits.
func (h *Handle) Done() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		return closedChan
	}
	return h.done
}

// Playing reports whether a player process is alive, paused or not.
func (h *Handle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runningLocked()
}

func (h *Handle) runningLocked() bool {
	if h.cmd == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// stopLocked kills the current process and waits for it to exit.
func (h *Handle) stopLocked() {
	if !h.runningLocked() {
		return
	}
	_ = h.cmd.Process.Kill()
	<-h.done
	h.paused = false
}

func asHandle(h memo.PlayableHandle) (*Handle, error) {
	ph, ok := h.(*Handle)
	if !ok || ph == nil {
		return nil, fmt.Errorf("foreign playable handle %T", h)
	}
	return ph, nil
}

// Bind checks that the audio file exists and returns a handle for it.
func (p *Player) Bind(ctx context.Context, audioRef string) (memo.PlayableHandle, error) {
	info, err := os.Stat(audioRef)
	if err != nil {
		return nil, fmt.Errorf("audio file not found: %s", audioRef)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("audio ref is a directory: %s", audioRef)
	}
	return &Handle{ref: audioRef}, nil
}

// Play starts playback from the beginning, replacing any running process.
func (p *Player) Play(ctx context.Context, handle memo.PlayableHandle) error {
	h, err := asHandle(handle)
	if err != nil {
		return err
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return fmt.Errorf("no suitable audio player found: %w", err)
	}
	muted := p.session.MuteOutput()
	cmd, err := commandFor(player, h.ref, muted)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return fmt.Errorf("handle already released: %s", h.ref)
	}
	h.stopLocked()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	h.cmd, h.done, h.paused = cmd, done, false

	slog.Debug("Playing", "audio_ref", h.ref, "player", player, "muted", muted)
	return nil
}

// Pause suspends the player process. Pausing finished playback is a no-op.
func (p *Player) Pause(ctx context.Context, handle memo.PlayableHandle) error {
	h, err := asHandle(handle)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.runningLocked() || h.paused {
		return nil
	}
	if err := audio.Suspend(h.cmd.Process); err != nil {
		return fmt.Errorf("failed to pause playback: %w", err)
	}
	h.paused = true
	return nil
}

// Release stops playback and invalidates the handle. A second release is an
// error.
func (p *Player) Release(handle memo.PlayableHandle) error {
	h, err := asHandle(handle)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return fmt.Errorf("handle already released: %s", h.ref)
	}
	h.released = true
	h.stopLocked()
	return nil
}

func (p *Player) findAudioPlayer() (string, error) {
	if p.cfg != nil && p.cfg.Audio.Player != "" {
		if _, err := p.lookPath(p.cfg.Audio.Player); err != nil {
			return "", fmt.Errorf("configured player %s not found: %w", p.cfg.Audio.Player, err)
		}
		return p.cfg.Audio.Player, nil
	}
	for _, player := range players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}

func commandFor(player, audioFile string, muted bool) (*exec.Cmd, error) {
	switch filepath.Base(player) {
	case "ffplay":
		args := []string{"-nodisp", "-autoexit", "-loglevel", "error"}
		if muted {
			args = append(args, "-volume", "0")
		}
		return exec.Command(player, append(args, audioFile)...), nil
	case "mpv":
		args := []string{"--no-video", "--really-quiet"}
		if muted {
			args = append(args, "--mute=yes")
		}
		return exec.Command(player, append(args, audioFile)...), nil
	case "cvlc", "vlc":
		args := []string{"--play-and-exit", "--intf", "dummy"}
		if muted {
			args = append(args, "--gain=0")
		}
		return exec.Command(player, append(args, audioFile)...), nil
	case "aplay":
		// aplay only handles WAV and cannot mute
		if !strings.EqualFold(filepath.Ext(audioFile), ".wav") {
			return nil, fmt.Errorf("aplay requires WAV format: %s", audioFile)
		}
		if muted {
			return nil, fmt.Errorf("aplay cannot play muted while recording")
		}
		return exec.Command(player, "-q", audioFile), nil
	}
	return nil, fmt.Errorf("unsupported player: %s", player)
}
