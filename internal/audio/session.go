package audio

import (
	"sync"

	"github.com/audiolibrelab/micmagic/internal/memo"
)

// Session is the process-wide audio policy shared by the recorder and the
// player.
type Session struct {
	mu        sync.RWMutex
	mode      memo.AudioMode
	capturing int
}

// NewSession returns a session with playback allowed and recording off.
func NewSession() *Session {
	return &Session{}
}

// Configure applies mode.
func (s *Session) Configure(mode memo.AudioMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Mode returns the active mode.
func (s *Session) Mode() memo.AudioMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *Session) beginCapture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capturing++
}

func (s *Session) endCapture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturing > 0 {
		s.capturing--
	}
}

// Capturing reports whether a capture is open.
func (s *Session) Capturing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capturing > 0
}

// MuteOutput reports whether playback must start muted right now.
func (s *Session) MuteOutput() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capturing > 0 && s.mode.MutePlayback
}
