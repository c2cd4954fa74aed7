package ipcserver

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/clhorde/clhorde/internal/clherr"
)

// pidLock is the daemon's single-instance lock: a PID file sibling to the
// daemon socket, created exclusively on startup.
type pidLock struct {
	path string
}

func newPIDLock(path string) *pidLock {
	return &pidLock{path: path}
}

// write creates the PID file exclusively; if another process created it
// first, it returns clherr.ErrDaemonBusy.
func (p *pidLock) write() error {
	f, err := os.OpenFile(p.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return clherr.ErrDaemonBusy
		}
		return err
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (p *pidLock) read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

func (p *pidLock) remove() error {
	err := os.Remove(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// acquire enforces the single-instance lock: if the PID file
// exists and names a live process, refuse to start; if it names a dead
// process, unlink it and the socket path, then proceed.
//
// The PID file is created with O_EXCL, so of two daemons starting against
// a missing PID file only one succeeds. Reclaiming a stale PID file is a
// read-check-remove sequence that is not atomic: two daemons reclaiming
// the same stale file at the same instant can both succeed. Accepted for
// a daemon started by hand or by one process supervisor at a time, not
// hardened against concurrent untrusted launchers.
func (p *pidLock) acquire(socketPath string) error {
	pid, err := p.read()
	if err == nil {
		if isAlive(pid) {
			return clherr.ErrDaemonBusy
		}
		if rmErr := p.remove(); rmErr != nil {
			return fmt.Errorf("removing stale pid file: %w", rmErr)
		}
		if rmErr := os.Remove(socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("removing stale socket: %w", rmErr)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading pid file: %w", err)
	}
	return p.write()
}

func (p *pidLock) release() {
	_ = p.remove()
}
