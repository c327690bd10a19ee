// Package audio captures microphone input with an ffmpeg process per take.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/micmagic/internal/config"
	"github.com/audiolibrelab/micmagic/internal/memo"
)

const (
	defaultStartupGrace = 300 * time.Millisecond
	defaultStopTimeout  = 5 * time.Second
)

// Recorder implements memo.Recorder on top of ffmpeg.
type Recorder struct {
	cfg       *config.Config
	session   *Session
	logWriter io.Writer

	ffmpegPath   string
	lookPath     func(string) (string, error)
	now          func() time.Time
	startupGrace time.Duration
	stopTimeout  time.Duration
}

var _ memo.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder writing takes under cfg.Output.Directory.
// ffmpeg stderr is copied to logWriter.
func NewRecorder(cfg *config.Config, session *Session, logWriter io.Writer) *Recorder {
	if logWriter == nil {
		logWriter = io.Discard
	}
	if session == nil {
		session = NewSession()
	}
	return &Recorder{
		cfg:          cfg,
		session:      session,
		logWriter:    logWriter,
		ffmpegPath:   "ffmpeg",
		lookPath:     exec.LookPath,
		now:          time.Now,
		startupGrace: defaultStartupGrace,
		stopTimeout:  defaultStopTimeout,
	}
}

// captureHandle is one running ffmpeg capture.
type captureHandle struct {
	path string
	cmd  *exec.Cmd
	in   io.WriteCloser
	done chan struct{}

	mu        sync.Mutex
	waitErr   error
	stderrBuf strings.Builder
	active    time.Duration
	resumedAt time.Time
	paused    bool
	closed    bool
}

func (h *captureHandle) Path() string { return h.path }

func (h *captureHandle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stderrBuf.Write(p)
}

func (h *captureHandle) stderr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return strings.TrimSpace(h.stderrBuf.String())
}

func asCapture(h memo.CaptureHandle) (*captureHandle, error) {
	c, ok := h.(*captureHandle)
	if !ok || c == nil {
		return nil, fmt.Errorf("foreign capture handle %T", h)
	}
	return c, nil
}

// RequestPermission grants access when the microphone is allowed by config
// and ffmpeg is installed.
func (r *Recorder) RequestPermission(ctx context.Context) (bool, error) {
	if !r.cfg.Audio.AllowMicrophone {
		slog.Warn("Microphone access disabled by configuration")
		return false, nil
	}
	path, err := r.lookPath(r.ffmpegPath)
	if err != nil {
		return false, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	r.ffmpegPath = path
	return true, nil
}

// ConfigureSession applies mode and prepares the output directory.
func (r *Recorder) ConfigureSession(ctx context.Context, mode memo.AudioMode) error {
	if !mode.AllowsRecording {
		return fmt.Errorf("audio mode does not allow recording")
	}
	if err := os.MkdirAll(r.cfg.Output.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	r.session.Configure(mode)
	return nil
}

// OutputPath returns the file a capture started at t is written to.
func (r *Recorder) OutputPath(t time.Time) string {
	name := fmt.Sprintf("memo_%s_%03d.%s", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond), strings.ToLower(r.cfg.Output.Format))
	return filepath.Join(r.cfg.Output.Directory, name)
}

// Args returns the ffmpeg arguments that capture into outputFile.
func (r *Recorder) Args(outputFile string) ([]string, error) {
	codec, err := CodecArgs(r.cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	args := []string{"-hide_banner", "-nostats", "-loglevel", "error"}
	args = append(args, InputArgs(DetermineBackend(r.cfg.Audio.Backend), r.cfg.Audio.Device)...)
	args = append(args,
		"-ac", strconv.Itoa(r.cfg.Audio.Channels),
		"-ar", strconv.Itoa(r.cfg.Audio.SampleRate),
	)
	args = append(args, codec...)
	args = append(args, "-y", outputFile)
	return args, nil
}

// Open starts an ffmpeg capture. A process that dies during the startup
// grace period is reported as an open failure.
func (r *Recorder) Open(ctx context.Context) (memo.CaptureHandle, error) {
	outputFile := r.OutputPath(r.now())
	args, err := r.Args(outputFile)
	if err != nil {
		return nil, err
	}

	h := &captureHandle{path: outputFile, done: make(chan struct{})}
	cmd := exec.Command(r.ffmpegPath, args...)
	cmd.Stderr = io.MultiWriter(h, r.logWriter)
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	slog.Debug("Starting FFmpeg capture", "command", r.ffmpegPath+" "+strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}
	h.cmd, h.in = cmd, in
	h.resumedAt = r.now()

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.waitErr = err
		h.mu.Unlock()
		close(h.done)
	}()

	select {
	case <-h.done:
		return nil, fmt.Errorf("FFmpeg exited during startup: %s", h.stderr())
	case <-time.After(r.startupGrace):
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-h.done
		_ = os.Remove(outputFile)
		return nil, ctx.Err()
	}

	r.session.beginCapture()
	slog.Info("FFmpeg capture started", "output", outputFile)
	return h, nil
}

// Pause suspends the ffmpeg process.
func (r *Recorder) Pause(ctx context.Context, handle memo.CaptureHandle) error {
	h, err := asCapture(handle)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.paused {
		return fmt.Errorf("capture not running")
	}
	if err := Suspend(h.cmd.Process); err != nil {
		return fmt.Errorf("failed to suspend FFmpeg: %w", err)
	}
	h.active += r.now().Sub(h.resumedAt)
	h.paused = true
	return nil
}

// Resume continues a suspended ffmpeg process.
func (r *Recorder) Resume(ctx context.Context, handle memo.CaptureHandle) error {
	h, err := asCapture(handle)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || !h.paused {
		return fmt.Errorf("capture not paused")
	}
	if err := Resume(h.cmd.Process); err != nil {
		return fmt.Errorf("failed to resume FFmpeg: %w", err)
	}
	h.resumedAt = r.now()
	h.paused = false
	return nil
}

// Close asks ffmpeg to finish the file, waits for it and reports the clip.
// The handle is released whatever the outcome.
func (r *Recorder) Close(ctx context.Context, handle memo.CaptureHandle) (memo.Clip, error) {
	h, err := asCapture(handle)
	if err != nil {
		return memo.Clip{}, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return memo.Clip{}, fmt.Errorf("capture already closed")
	}
	h.closed = true
	if h.paused {
		_ = Resume(h.cmd.Process)
	} else {
		h.active += r.now().Sub(h.resumedAt)
	}
	active := h.active
	h.mu.Unlock()
	defer r.session.endCapture()

	// "q" on stdin makes ffmpeg flush and write the trailer
	if _, err := io.WriteString(h.in, "q\n"); err != nil {
		slog.Debug("Failed to send quit to FFmpeg", "error", err)
	}
	_ = h.in.Close()

	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()
	select {
	case <-h.done:
	case <-timer.C:
		slog.Warn("FFmpeg did not exit within timeout, force killing")
		_ = h.cmd.Process.Kill()
		<-h.done
	case <-ctx.Done():
		_ = h.cmd.Process.Kill()
		<-h.done
		return memo.Clip{}, ctx.Err()
	}

	h.mu.Lock()
	waitErr := h.waitErr
	h.mu.Unlock()
	if waitErr != nil && !exitedOnRequest(waitErr) {
		slog.Debug("FFmpeg stderr", "output", h.stderr())
		return memo.Clip{}, fmt.Errorf("FFmpeg process failed: %w", waitErr)
	}

	if err := validateOutputFile(h.path); err != nil {
		return memo.Clip{}, err
	}

	slog.Debug("FFmpeg capture completed", "output", h.path, "active", active)
	return memo.Clip{AudioRef: h.path, DurationMs: active.Milliseconds()}, nil
}

// exitedOnRequest treats the exit codes ffmpeg uses after "q" or an
// interrupt as success.
func exitedOnRequest(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == 255 {
		return true
	}
	state := exitErr.ProcessState.String()
	return state == "signal: interrupt" || state == "signal: killed"
}

func validateOutputFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output file not created: %w", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(path)
		return fmt.Errorf("output file is empty: %s", path)
	}
	return nil
}
