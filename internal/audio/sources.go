package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// ListSources returns the capture devices known to backend.
func ListSources(ctx context.Context, backend BackendType) ([]string, error) {
	switch backend {
	case BackendTypePulse:
		out, err := exec.CommandContext(ctx, "pactl", "list", "short", "sources").Output()
		if err != nil {
			return nil, fmt.Errorf("failed to list PulseAudio sources: %w", err)
		}
		return parsePactlSources(string(out)), nil
	case BackendTypeALSA:
		out, err := exec.CommandContext(ctx, "arecord", "-L").Output()
		if err != nil {
			return nil, fmt.Errorf("failed to list ALSA devices: %w", err)
		}
		return parseArecordDevices(string(out)), nil
	case BackendTypeAVFoundation, BackendTypeDShow:
		// ffmpeg prints the device list on stderr and exits non-zero
		var stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-f", string(backend), "-list_devices", "true", "-i", "")
		cmd.Stderr = &stderr
		_ = cmd.Run()
		if stderr.Len() == 0 {
			return nil, fmt.Errorf("failed to list %s devices", backend)
		}
		return parseFFmpegDevices(stderr.String()), nil
	}
	return nil, fmt.Errorf("unsupported backend: %s", backend)
}

// ValidateSource checks that device appears exactly once in sources.
func ValidateSource(device string, sources []string) error {
	if device == "" || device == "default" {
		return nil
	}
	var matches []string
	for _, s := range sources {
		if s == device {
			matches = append(matches, s)
		}
	}
	if len(matches) == 0 {
		return fmt.Errorf("source not found: %s", device)
	}
	if len(matches) > 1 {
		return fmt.Errorf("duplicate sources detected for '%s': %v", device, matches)
	}
	return nil
}

// parsePactlSources keeps the name column of `pactl list short sources`,
// skipping output monitors.
func parsePactlSources(out string) []string {
	var sources []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if strings.HasSuffix(fields[1], ".monitor") {
			continue
		}
		sources = append(sources, fields[1])
	}
	return sources
}

// parseArecordDevices keeps the unindented device names of `arecord -L`.
func parseArecordDevices(out string) []string {
	var devices []string
	for _, line := range strings.Split(out, "\n") {
		if line == "" || strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			continue
		}
		if line == "null" {
			continue
		}
		devices = append(devices, strings.TrimSpace(line))
	}
	return devices
}

var (
	quotedDevice = regexp.MustCompile(`"([^"]+)"`)
	indexed      = regexp.MustCompile(`\[(\d+)\]\s+(.+)$`)
)

// parseFFmpegDevices extracts audio device names from the -list_devices
// output of avfoundation or dshow.
func parseFFmpegDevices(out string) []string {
	var devices []string
	inAudio := false
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "audio devices"):
			inAudio = true
			continue
		case strings.Contains(lower, "video devices"):
			inAudio = false
			continue
		}

		// dshow marks each device with its type
		if strings.Contains(lower, "(audio)") {
			if m := quotedDevice.FindStringSubmatch(line); m != nil {
				devices = append(devices, m[1])
			}
			continue
		}
		if !inAudio {
			continue
		}
		if m := indexed.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			devices = append(devices, strings.TrimSpace(m[2]))
		}
	}
	return devices
}
