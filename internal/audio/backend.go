package audio

import (
	"fmt"
	"runtime"
	"strings"
)

// BackendType is the ffmpeg input format used to capture the microphone.
type BackendType string

const (
	BackendTypeAuto         BackendType = "auto"
	BackendTypePulse        BackendType = "pulse"
	BackendTypeALSA         BackendType = "alsa"
	BackendTypeAVFoundation BackendType = "avfoundation"
	BackendTypeDShow        BackendType = "dshow"
)

// DetermineBackend resolves "auto" (or empty) to the default input format of
// the running OS.
func DetermineBackend(backend string) BackendType {
	switch strings.ToLower(backend) {
	case "pulse":
		return BackendTypePulse
	case "alsa":
		return BackendTypeALSA
	case "avfoundation":
		return BackendTypeAVFoundation
	case "dshow":
		return BackendTypeDShow
	}
	return backendForOS(runtime.GOOS)
}

func backendForOS(goos string) BackendType {
	switch goos {
	case "darwin":
		return BackendTypeAVFoundation
	case "windows":
		return BackendTypeDShow
	default:
		return BackendTypePulse
	}
}

// InputArgs returns the ffmpeg input arguments for device on backend.
func InputArgs(backend BackendType, device string) []string {
	switch backend {
	case BackendTypeAVFoundation:
		if device == "" {
			device = "default"
		}
		// avfoundation takes "video:audio"; audio only
		if !strings.HasPrefix(device, ":") {
			device = ":" + device
		}
	case BackendTypeDShow:
		if device == "" {
			device = "default"
		}
		if !strings.HasPrefix(device, "audio=") {
			device = "audio=" + device
		}
	default:
		if device == "" {
			device = "default"
		}
	}
	return []string{"-f", string(backend), "-i", device}
}

// CodecArgs returns the ffmpeg encoder arguments for an output format.
func CodecArgs(format string) ([]string, error) {
	switch strings.ToLower(format) {
	case "m4a":
		return []string{"-c:a", "aac", "-b:a", "128k"}, nil
	case "wav":
		return []string{"-c:a", "pcm_s16le"}, nil
	case "flac":
		return []string{"-c:a", "flac"}, nil
	case "mp3":
		return []string{"-c:a", "libmp3lame", "-q:a", "4"}, nil
	case "ogg":
		return []string{"-c:a", "libopus", "-b:a", "64k"}, nil
	}
	return nil, fmt.Errorf("unsupported output format: %s", format)
}

// GetAvailableBackends returns the backends usable on the current system.
func GetAvailableBackends() []BackendType {
	switch runtime.GOOS {
	case "darwin":
		return []BackendType{BackendTypeAVFoundation}
	case "windows":
		return []BackendType{BackendTypeDShow}
	default:
		return []BackendType{BackendTypePulse, BackendTypeALSA}
	}
}
