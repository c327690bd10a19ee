//go:build !windows

package audio

import (
	"os"
	"syscall"
)

// Suspend stops p until Resume.
func Suspend(p *os.Process) error {
	return p.Signal(syscall.SIGSTOP)
}

// Resume continues a suspended process.
func Resume(p *os.Process) error {
	return p.Signal(syscall.SIGCONT)
}
