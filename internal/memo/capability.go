package memo

import "context"

// Identity reports who is signed in.
type Identity interface {
	// CurrentOwnerID returns ErrUnauthenticated when nobody is signed in.
	CurrentOwnerID(ctx context.Context) (string, error)
}

// Repository stores recording metadata.
type Repository interface {
	Create(ctx context.Context, ownerID string, f Fields) (string, error)
	Update(ctx context.Context, id string, f Fields) error
	Delete(ctx context.Context, id string) error
	// ListByOwner returns the owner's records oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Record, error)
}

// AudioMode is the device audio session policy applied before capture.
type AudioMode struct {
	AllowsRecording bool
	// MutePlayback silences playback while a capture is open.
	MutePlayback bool
}

// RecordingMode gives recording priority over playback.
var RecordingMode = AudioMode{AllowsRecording: true, MutePlayback: true}

// CaptureHandle is an open capture issued by a Recorder.
type CaptureHandle interface {
	Path() string
}

// Clip is the result of closing a capture.
type Clip struct {
	AudioRef   string
	DurationMs int64
}

// Recorder captures audio from the device.
type Recorder interface {
	RequestPermission(ctx context.Context) (bool, error)
	ConfigureSession(ctx context.Context, mode AudioMode) error
	Open(ctx context.Context) (CaptureHandle, error)
	Pause(ctx context.Context, h CaptureHandle) error
	Resume(ctx context.Context, h CaptureHandle) error
	// Close flushes and releases the handle whether or not it succeeds.
	Close(ctx context.Context, h CaptureHandle) (Clip, error)
}

// PlayableHandle is a bound playback resource for one audio payload.
type PlayableHandle interface {
	AudioRef() string
}

// Player plays bound audio.
type Player interface {
	Bind(ctx context.Context, audioRef string) (PlayableHandle, error)
	Play(ctx context.Context, h PlayableHandle) error
	Pause(ctx context.Context, h PlayableHandle) error
	Release(h PlayableHandle) error
}

// Sharer hands an audio payload to an external sharing target and returns
// where it can be fetched.
type Sharer interface {
	Share(ctx context.Context, audioRef string) (string, error)
}
