package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/micmagic/internal/config"
	"github.com/audiolibrelab/micmagic/internal/memo"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Output.Directory = filepath.Join(t.TempDir(), "out")
	return cfg
}

func TestDetermineBackend(t *testing.T) {
	if got := DetermineBackend("ALSA"); got != BackendTypeALSA {
		t.Errorf("Expected alsa, got %s", got)
	}
	if got := backendForOS("darwin"); got != BackendTypeAVFoundation {
		t.Errorf("Expected avfoundation on darwin, got %s", got)
	}
	if got := backendForOS("windows"); got != BackendTypeDShow {
		t.Errorf("Expected dshow on windows, got %s", got)
	}
	if got := backendForOS("linux"); got != BackendTypePulse {
		t.Errorf("Expected pulse on linux, got %s", got)
	}
}

func TestInputArgs(t *testing.T) {
	cases := []struct {
		backend BackendType
		device  string
		want    string
	}{
		{BackendTypePulse, "", "default"},
		{BackendTypeALSA, "hw:1,0", "hw:1,0"},
		{BackendTypeAVFoundation, "", ":default"},
		{BackendTypeAVFoundation, "1", ":1"},
		{BackendTypeDShow, "Microphone (USB)", "audio=Microphone (USB)"},
	}
	for _, tc := range cases {
		args := InputArgs(tc.backend, tc.device)
		if len(args) != 4 || args[1] != string(tc.backend) || args[3] != tc.want {
			t.Errorf("InputArgs(%s, %q) = %v, want device %q", tc.backend, tc.device, args, tc.want)
		}
	}
}

func TestRecorderArgs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audio.Backend = "alsa"
	cfg.Audio.Device = "hw:2"
	cfg.Audio.SampleRate = 48000
	cfg.Output.Format = "flac"
	r := NewRecorder(cfg, nil, nil)

	args, err := r.Args("/tmp/x.flac")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"-f alsa -i hw:2", "-ac 1", "-ar 48000", "-c:a flac", "-y /tmp/x.flac"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Args missing %q: %s", want, joined)
		}
	}

	cfg.Output.Format = "aiff"
	if _, err := r.Args("/tmp/x.aiff"); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestOutputPath(t *testing.T) {
	cfg := testConfig(t)
	r := NewRecorder(cfg, nil, nil)
	at := time.Date(2024, time.May, 6, 7, 8, 9, 250*int(time.Millisecond), time.UTC)

	got := r.OutputPath(at)
	want := filepath.Join(cfg.Output.Directory, "memo_20240506_070809_250.m4a")
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestRequestPermission(t *testing.T) {
	cfg := testConfig(t)
	r := NewRecorder(cfg, nil, nil)
	r.lookPath = func(string) (string, error) { return "/usr/bin/ffmpeg", nil }

	ok, err := r.RequestPermission(context.Background())
	if !ok || err != nil {
		t.Errorf("Expected permission, got %v %v", ok, err)
	}

	cfg.Audio.AllowMicrophone = false
	if ok, _ := r.RequestPermission(context.Background()); ok {
		t.Error("Expected denial when microphone is disabled")
	}

	cfg.Audio.AllowMicrophone = true
	r.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	if ok, err := r.RequestPermission(context.Background()); ok || err == nil {
		t.Error("Expected error when ffmpeg is missing")
	}
}

func TestConfigureSession(t *testing.T) {
	cfg := testConfig(t)
	s := NewSession()
	r := NewRecorder(cfg, s, nil)

	if err := r.ConfigureSession(context.Background(), memo.RecordingMode); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := os.Stat(cfg.Output.Directory); err != nil {
		t.Errorf("Output directory not created: %v", err)
	}
	if s.Mode() != memo.RecordingMode {
		t.Errorf("Session mode not applied: %+v", s.Mode())
	}
	if err := r.ConfigureSession(context.Background(), memo.AudioMode{}); err == nil {
		t.Error("Expected error for a mode without recording")
	}
}

func TestSessionMuteOutput(t *testing.T) {
	s := NewSession()
	s.Configure(memo.RecordingMode)
	if s.MuteOutput() {
		t.Error("Playback must not be muted without a capture")
	}
	s.beginCapture()
	if !s.MuteOutput() {
		t.Error("Playback must be muted while capturing")
	}
	s.Configure(memo.AudioMode{AllowsRecording: true})
	if s.MuteOutput() {
		t.Error("Mode without mute must not mute")
	}
	s.endCapture()
	s.endCapture()
	if s.Capturing() {
		t.Error("Capture count went negative")
	}
}

func TestForeignHandleRejected(t *testing.T) {
	r := NewRecorder(testConfig(t), nil, nil)
	type other struct{ memo.CaptureHandle }
	if _, err := r.Close(context.Background(), other{}); err == nil {
		t.Error("Expected error for a foreign handle")
	}
}

func TestValidateOutputFile(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.m4a")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := validateOutputFile(empty); err == nil {
		t.Error("Expected error for empty output")
	}
	if _, err := os.Stat(empty); !os.IsNotExist(err) {
		t.Error("Empty output should be removed")
	}
	if err := validateOutputFile(filepath.Join(dir, "missing.m4a")); err == nil {
		t.Error("Expected error for missing output")
	}
}

func TestParsePactlSources(t *testing.T) {
	out := "0\talsa_output.pci.analog-stereo.monitor\tmodule-alsa-card.c\ts16le 2ch 44100Hz\tSUSPENDED\n" +
		"1\talsa_input.usb-Blue_Yeti-00.analog-stereo\tmodule-alsa-card.c\ts16le 2ch 48000Hz\tRUNNING\n"
	got := parsePactlSources(out)
	if len(got) != 1 || got[0] != "alsa_input.usb-Blue_Yeti-00.analog-stereo" {
		t.Errorf("Unexpected sources: %v", got)
	}
}

func TestParseArecordDevices(t *testing.T) {
	out := "null\n    Discard all samples\ndefault\n    Default ALSA device\nhw:CARD=Yeti,DEV=0\n    Yeti Stereo Microphone\n"
	got := parseArecordDevices(out)
	if len(got) != 2 || got[0] != "default" || got[1] != "hw:CARD=Yeti,DEV=0" {
		t.Errorf("Unexpected devices: %v", got)
	}
}

func TestParseFFmpegDevices(t *testing.T) {
	avf := `[AVFoundation indev @ 0x7f] AVFoundation video devices:
[AVFoundation indev @ 0x7f] [0] FaceTime HD Camera
[AVFoundation indev @ 0x7f] AVFoundation audio devices:
[AVFoundation indev @ 0x7f] [0] MacBook Pro Microphone
[AVFoundation indev @ 0x7f] [1] Yeti Stereo Microphone
`
	got := parseFFmpegDevices(avf)
	if len(got) != 2 || got[0] != "MacBook Pro Microphone" || got[1] != "Yeti Stereo Microphone" {
		t.Errorf("Unexpected avfoundation devices: %v", got)
	}

	dshow := `[dshow @ 000001] "Integrated Camera" (video)
[dshow @ 000001] "Microphone Array (Realtek)" (audio)
[dshow @ 000001]   Alternative name "@device_cm_{33D9A762}"
`
	got = parseFFmpegDevices(dshow)
	if len(got) != 1 || got[0] != "Microphone Array (Realtek)" {
		t.Errorf("Unexpected dshow devices: %v", got)
	}
}

func TestValidateSource(t *testing.T) {
	sources := []string{"mic_a", "mic_b", "mic_b"}
	if err := ValidateSource("mic_a", sources); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if err := ValidateSource("default", nil); err != nil {
		t.Errorf("default must always validate: %v", err)
	}
	if err := ValidateSource("nope", sources); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not found error, got: %v", err)
	}
	if err := ValidateSource("mic_b", sources); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("Expected duplicate error, got: %v", err)
	}
}
