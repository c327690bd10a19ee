//go:build windows

package audio

import (
	"errors"
	"os"
)

var errSuspendUnsupported = errors.New("pausing a capture is not supported on windows")

// Suspend stops p until Resume.
func Suspend(*os.Process) error { return errSuspendUnsupported }

// Resume continues a suspended process.
func Resume(*os.Process) error { return errSuspendUnsupported }
