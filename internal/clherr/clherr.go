// Package clherr defines the sentinel errors the orchestrator returns for
// client-visible failures. The IPC server translates these to a
// wire Error{message} event; internal code checks them with errors.Is and
// never stringifies an error for control flow.
package clherr

import "errors"

var (
	// ErrUnknownPrompt is returned when a verb references a prompt id the
	// orchestrator has no record of.
	ErrUnknownPrompt = errors.New("unknown prompt id")

	// ErrIllegalState is returned when a verb is not valid for a prompt's
	// current status, e.g. SendPtyBytes on a terminated prompt.
	ErrIllegalState = errors.New("operation illegal in current prompt state")

	// ErrWorktreeRequired is returned when a prompt asked for worktree
	// isolation and the worktree could not be created; the prompt fails
	// with it instead of running in the source checkout.
	ErrWorktreeRequired = errors.New("operation requires a worktree")

	// ErrWorkerSpawnFailed names a failure to allocate a PTY or launch the
	// child process for a prompt. The orchestrator does not return it:
	// a spawn failure moves the prompt to Failed with a "spawn failed: ..."
	// error text and broadcasts a WorkerError event.
	ErrWorkerSpawnFailed = errors.New("worker spawn failed")

	// ErrMaxWorkersInvalid is returned when SetMaxWorkers receives a count
	// outside 1..20.
	ErrMaxWorkersInvalid = errors.New("max workers out of range")

	// ErrDaemonBusy is returned by the single-instance lock when another
	// daemon instance already holds the PID file.
	ErrDaemonBusy = errors.New("daemon already running")
)
