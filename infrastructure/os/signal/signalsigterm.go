//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package signal

import (
	"os"
	"syscall"
)

func init() {
	interruptSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
}
