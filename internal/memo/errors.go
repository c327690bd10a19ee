package memo

import "errors"

// Error kinds surfaced by the capture machine and the catalog. Callers match
// them with errors.Is; the cause stays wrapped alongside.
var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrCaptureFailed     = errors.New("capture failed")
	ErrPersistFailed     = errors.New("persist failed")
	ErrShareUnavailable  = errors.New("share unavailable")
	ErrUnauthenticated   = errors.New("unauthenticated")

	ErrNotFound       = errors.New("recording not found")
	ErrInvalidName    = errors.New("invalid name")
	ErrPlaybackFailed = errors.New("playback failed")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrPermissionDenied, "PermissionDenied"},
	{ErrInvalidTransition, "InvalidTransition"},
	{ErrCaptureFailed, "CaptureFailed"},
	{ErrPersistFailed, "PersistFailed"},
	{ErrShareUnavailable, "ShareUnavailable"},
	{ErrUnauthenticated, "Unauthenticated"},
	{ErrNotFound, "NotFound"},
	{ErrInvalidName, "InvalidName"},
	{ErrPlaybackFailed, "PlaybackFailed"},
}

// Kind names the taxonomy kind of err, or "" when err carries none.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// Retryable reports whether re-invoking the failed operation could succeed.
// Programmer errors (wrong state, bad input, unknown id) never are.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrNotFound):
		return false
	}
	return true
}
