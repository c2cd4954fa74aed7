// Package ptyworker hosts an interactive assistant child process under a
// real pseudo-terminal so its TUI features work unmodified, while making
// the raw byte stream observable and steerable by the orchestrator.
package ptyworker

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"
)

// Config describes one PTY worker invocation.
type Config struct {
	PromptID        int
	Text            string
	CWD             string
	Cols, Rows      int
	ClaudeBin       string
	Resume          bool
	ResumeSessionID string
}

// Event is emitted to the orchestrator as the worker produces output or
// terminates. Exactly one of Bytes or Finished is meaningful per event.
type Event struct {
	PromptID int
	Bytes    []byte // raw PTY output, nil on a Finished event

	Finished bool
	ExitCode *int   // nil if the exit status could not be observed
	Text     string // final extracted screen text, set when Finished
	Err      error
}

// Worker owns one PTY master and the child process attached to its slave.
type Worker struct {
	promptID int
	ptmx     *os.File
	cmd      *exec.Cmd
	term     emulator

	writeMu sync.Mutex

	killOnce sync.Once
}

func buildArgs(cfg Config) []string {
	var args []string
	if cfg.Resume {
		if cfg.ResumeSessionID == "" {
			args = append(args, "--resume")
		} else {
			args = append(args, "--resume", cfg.ResumeSessionID)
		}
	} else {
		args = append(args, cfg.Text)
	}
	args = append(args, "--dangerously-skip-permissions")
	return args
}

// Spawn allocates a PTY, launches the assistant under it, and starts the
// reader goroutine that feeds events onto the returned channel until the
// child's output ends.
func Spawn(cfg Config, events chan<- Event) (*Worker, error) {
	if cfg.Cols == 0 {
		cfg.Cols = 80
	}
	if cfg.Rows == 0 {
		cfg.Rows = 24
	}

	cmd := exec.Command(cfg.ClaudeBin, buildArgs(cfg)...)
	cmd.Dir = cfg.CWD
	cmd.Env = removeEnv(os.Environ(), "CLAUDECODE")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(cfg.Rows), Cols: uint16(cfg.Cols)})
	if err != nil {
		return nil, fmt.Errorf("ptyworker: starting %s: %w", cfg.ClaudeBin, err)
	}

	w := &Worker{
		promptID: cfg.PromptID,
		ptmx:     ptmx,
		cmd:      cmd,
		term:     newEmulator(cfg.Cols, cfg.Rows),
	}

	go w.readLoop(events)

	return w, nil
}

// readLoop feeds PTY bytes to the terminal emulator and the event channel
// until EOF or a read error, then harvests the child's exit status and
// reports Finished.
func (w *Worker) readLoop(events chan<- Event) {
	buf := make([]byte, 4096)
	for {
		n, err := w.ptmx.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			w.term.Write(chunk)
			events <- Event{PromptID: w.promptID, Bytes: chunk}
		}
		if err != nil {
			break
		}
	}

	exitCode, waitErr := w.wait()
	finished := Event{
		PromptID: w.promptID,
		Finished: true,
		Text:     trimTrailingEmptyLines(w.term.String()),
	}
	if waitErr != nil && exitCode == nil {
		finished.Err = waitErr
	} else {
		finished.ExitCode = exitCode
	}
	events <- finished
}

func (w *Worker) wait() (*int, error) {
	err := w.cmd.Wait()
	if w.cmd.ProcessState == nil {
		return nil, err
	}
	code := w.cmd.ProcessState.ExitCode()
	if code < 0 {
		return nil, err
	}
	return &code, nil
}

// SendInput writes UTF-8 text directly to the PTY master, as if typed.
func (w *Worker) SendInput(text string) error {
	return w.writeAll([]byte(text))
}

// SendBytes forwards raw bytes (e.g. control sequences, pasted input) to
// the PTY master.
func (w *Worker) SendBytes(data []byte) error {
	return w.writeAll(data)
}

func (w *Worker) writeAll(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_, err := w.ptmx.Write(data)
	return err
}

// Resize issues the window-size change to the PTY master and resizes the
// local emulator grid to match.
func (w *Worker) Resize(cols, rows int) error {
	w.term.Resize(cols, rows)
	if err := pty.Setsize(w.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return fmt.Errorf("ptyworker: resizing: %w", err)
	}
	return nil
}

// Kill drops the PTY master, which delivers SIGHUP to the child. Safe to
// call more than once.
func (w *Worker) Kill() {
	w.killOnce.Do(func() {
		w.ptmx.Close()
	})
}

// trimTrailingEmptyLines drops trailing blank rows from an extracted
// terminal grid so a mostly-empty screen below the assistant's last output
// line doesn't pad the finalized text.
func trimTrailingEmptyLines(text string) string {
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && strings.TrimRight(lines[len(lines)-1], " ") == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func removeEnv(env []string, key string) []string {
	prefix := key + "="
	out := env[:0:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}
