package ipcserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/clhorde/clhorde/internal/clherr"
)

func TestPIDLockAcquireFreshPath(t *testing.T) {
	dir := t.TempDir()
	lock := newPIDLock(filepath.Join(dir, "daemon.pid"))
	sock := filepath.Join(dir, "daemon.sock")

	if err := lock.acquire(sock); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	pid, err := lock.read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("got pid %d, want %d", pid, os.Getpid())
	}
	lock.release()
	if _, err := os.Stat(lock.path); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed after release")
	}
}

func TestPIDLockRefusesLiveOwner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")
	lock := newPIDLock(path)
	sock := filepath.Join(dir, "daemon.sock")

	first := newPIDLock(path)
	if err := first.acquire(sock); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer first.release()

	if err := lock.acquire(sock); err != clherr.ErrDaemonBusy {
		t.Fatalf("got err %v, want ErrDaemonBusy", err)
	}
}

func TestPIDLockReclaimsStaleOwner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.pid")
	sock := filepath.Join(dir, "daemon.sock")
	if err := os.WriteFile(path, []byte("999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sock, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	lock := newPIDLock(path)
	if err := lock.acquire(sock); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Fatalf("expected stale socket removed")
	}
}
