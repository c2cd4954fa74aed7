package orchestrator

import (
	"context"
	"fmt"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/ptyworker"
	"github.com/clhorde/clhorde/internal/streamworker"
	"github.com/clhorde/clhorde/internal/worktree"
)

// ptyWorkerMsg and streamWorkerMsg wrap the worker packages' own Event types
// so the orchestrator's channels stay typed per worker flavor: dispatch on
// the tag, never a virtual call.
type ptyWorkerMsg struct {
	promptID int
	event    ptyworker.Event
}

type streamWorkerMsg struct {
	promptID int
	event    streamworker.Event
}

// startWorker transitions p from Pending to Running and spawns the
// appropriate worker flavor.
func (o *Orchestrator) startWorker(p *prompt) {
	ctx := context.Background()
	if err := o.ensureWorktree(ctx, p); err != nil {
		o.failPrompt(p, err.Error())
		return
	}

	p.rec.Status = api.StatusRunning
	p.rec.StartedAt = nowMS()
	p.rec.Output = ""
	p.rec.Error = ""
	o.persist(p)
	o.broadcastUpdated(p)
	o.sessions.broadcast(api.DaemonEvent{Type: api.EvtWorkerStarted, PromptID: p.rec.ID})
	o.broadcastActiveWorkersChanged()

	switch p.rec.Mode {
	case api.ModeInteractive:
		o.spawnPTYWorker(p)
	default:
		o.spawnStreamWorker(p)
	}
}

func (o *Orchestrator) spawnPTYWorker(p *prompt) {
	events := make(chan ptyworker.Event, 64)
	cfg := ptyworker.Config{
		PromptID:        p.rec.ID,
		Text:            p.rec.Text,
		CWD:             p.rec.CWD,
		Cols:            p.cols,
		Rows:            p.rows,
		ClaudeBin:       o.cfg.ClaudeBin,
		Resume:          p.rec.Resume,
		ResumeSessionID: p.rec.SessionID,
	}
	w, err := ptyworker.Spawn(cfg, events)
	if err != nil {
		o.logger.Printf("orchestrator: spawning pty worker for prompt %d: %v", p.rec.ID, err)
		o.failPrompt(p, fmt.Sprintf("spawn failed: %v", err))
		return
	}
	p.worker = &runningWorker{pty: w}
	p.ring = o.newRing()

	go o.pumpPTYEvents(p.rec.ID, events)
}

func (o *Orchestrator) pumpPTYEvents(promptID int, events <-chan ptyworker.Event) {
	for e := range events {
		o.ptyIn <- ptyWorkerMsg{promptID: promptID, event: e}
	}
}

func (o *Orchestrator) spawnStreamWorker(p *prompt) {
	events := make(chan streamworker.Event, 64)
	cfg := streamworker.Config{
		PromptID:  p.rec.ID,
		Text:      p.rec.Text,
		CWD:       p.rec.CWD,
		ClaudeBin: o.cfg.ClaudeBin,
		Logger:    o.logger,
	}
	w, err := streamworker.Spawn(context.Background(), cfg, events)
	if err != nil {
		o.logger.Printf("orchestrator: spawning stream worker for prompt %d: %v", p.rec.ID, err)
		o.failPrompt(p, fmt.Sprintf("spawn failed: %v", err))
		return
	}
	p.worker = &runningWorker{stream: w}

	go o.pumpStreamEvents(p.rec.ID, events)
}

func (o *Orchestrator) pumpStreamEvents(promptID int, events <-chan streamworker.Event) {
	for e := range events {
		o.streamIn <- streamWorkerMsg{promptID: promptID, event: e}
	}
}

// handlePTYMessage applies one PTY worker event to its prompt.
func (o *Orchestrator) handlePTYMessage(m ptyWorkerMsg) {
	p := o.findPrompt(m.promptID)
	if p == nil {
		return // prompt deleted while its worker was in flight
	}
	e := m.event

	if len(e.Bytes) > 0 {
		if p.ring != nil {
			p.ring.Extend(e.Bytes)
		}
		o.sessions.broadcastPTY(PTYChunk{PromptID: p.rec.ID, Data: e.Bytes})
	}

	if e.Finished {
		if p.rec.Status != api.StatusRunning && p.rec.Status != api.StatusIdle {
			// already terminal (e.g. killed synchronously); nothing to do.
			return
		}
		p.rec.FinishedAt = nowMS()
		p.rec.Output = e.Text
		p.worker = nil
		p.killedAt = 0
		if e.Err != nil {
			p.rec.Status = api.StatusFailed
			p.rec.Error = e.Err.Error()
		} else if e.ExitCode != nil && *e.ExitCode != 0 {
			p.rec.Status = api.StatusFailed
			p.rec.Error = fmt.Sprintf("exit code %d", *e.ExitCode)
		} else {
			p.rec.Status = api.StatusCompleted
		}
		o.persist(p)
		o.broadcastUpdated(p)
		o.sessions.broadcast(api.DaemonEvent{Type: api.EvtWorkerFinished, PromptID: p.rec.ID, ExitCode: e.ExitCode})
		o.broadcastActiveWorkersChanged()
		o.notifyTerminal(p)
		o.maybeCleanupWorktree(context.Background(), p)
	}
}

// handleStreamMessage applies one streaming worker event to its prompt.
func (o *Orchestrator) handleStreamMessage(m streamWorkerMsg) {
	p := o.findPrompt(m.promptID)
	if p == nil {
		return
	}
	e := m.event

	switch e.Kind {
	case streamworker.EventSessionID:
		p.rec.SessionID = e.Text
		o.persist(p)
		o.sessions.broadcast(api.DaemonEvent{Type: api.EvtSessionID, PromptID: p.rec.ID, SessionID: e.Text})
	case streamworker.EventOutputChunk:
		p.rec.Output += e.Text
		o.sessions.broadcast(api.DaemonEvent{Type: api.EvtOutputChunk, PromptID: p.rec.ID, Text: e.Text})
	case streamworker.EventTurnComplete:
		o.sessions.broadcast(api.DaemonEvent{Type: api.EvtTurnComplete, PromptID: p.rec.ID})
	case streamworker.EventFinished:
		if p.rec.Status != api.StatusRunning && p.rec.Status != api.StatusIdle {
			return
		}
		p.rec.FinishedAt = nowMS()
		p.worker = nil
		p.killedAt = 0
		if e.Err != nil {
			p.rec.Status = api.StatusFailed
			p.rec.Error = e.Err.Error()
		} else if e.ExitCode != nil && *e.ExitCode != 0 {
			p.rec.Status = api.StatusFailed
			p.rec.Error = fmt.Sprintf("exit code %d", *e.ExitCode)
		} else {
			p.rec.Status = api.StatusCompleted
		}
		o.persist(p)
		o.broadcastUpdated(p)
		o.sessions.broadcast(api.DaemonEvent{Type: api.EvtWorkerFinished, PromptID: p.rec.ID, ExitCode: e.ExitCode})
		o.broadcastActiveWorkersChanged()
		o.notifyTerminal(p)
		o.maybeCleanupWorktree(context.Background(), p)
	}
}

// failPrompt transitions p straight to Failed without waiting for a worker
// Finished event: on a worktree or spawn failure, on a PTY input write
// error, and when a killed worker outlives its grace period or the
// shutdown drain.
func (o *Orchestrator) failPrompt(p *prompt, reason string) {
	p.rec.Status = api.StatusFailed
	p.rec.Error = reason
	p.rec.FinishedAt = nowMS()
	p.worker = nil
	p.killedAt = 0
	o.persist(p)
	o.broadcastUpdated(p)
	o.sessions.broadcast(api.DaemonEvent{Type: api.EvtWorkerError, PromptID: p.rec.ID, Error: reason})
	o.broadcastActiveWorkersChanged()
	o.notifyTerminal(p)
}

// killWorkerFor drops the worker handle: that alone is enough to make the
// PTY child exit (SIGHUP on master close), and closes stdin/signals the
// streaming child. The state transition itself
// happens when the worker reports Finished, or via checkKillGrace if it
// doesn't within killGrace.
func (o *Orchestrator) killWorkerFor(p *prompt) {
	if p.worker == nil {
		return
	}
	p.killedAt = nowMS()
	switch {
	case p.worker.pty != nil:
		p.worker.pty.Kill()
	case p.worker.stream != nil:
		p.worker.stream.Kill()
	}
}

// checkKillGrace enforces the 500ms kill-grace: a prompt whose worker was
// killed but hasn't reported Finished in time is forced to
// Failed regardless.
func (o *Orchestrator) checkKillGrace() {
	now := nowMS()
	for _, p := range o.prompts {
		if p.killedAt == 0 {
			continue
		}
		if now-p.killedAt < killGrace.Milliseconds() {
			continue
		}
		if p.rec.Status != api.StatusRunning && p.rec.Status != api.StatusIdle {
			p.killedAt = 0
			continue
		}
		p.worker = nil
		o.failPrompt(p, "killed")
	}
}

// notifyTerminal pushes a completed worktree's branch to its origin remote,
// synchronously and before any cleanup gets a chance to remove the
// worktree out from under it, then fans the prompt out to whichever
// notifiers are configured in its own goroutine so that part never blocks
// the event loop.
func (o *Orchestrator) notifyTerminal(p *prompt) {
	if p.rec.Worktree && p.rec.WorktreePath != "" && p.rec.Status == api.StatusCompleted {
		if err := worktree.Push(context.Background(), p.rec.WorktreePath); err != nil {
			o.logger.Printf("orchestrator: pushing worktree branch for prompt %d: %v", p.rec.ID, err)
		}
	}
	if o.notify == nil {
		return
	}
	go o.notify.PromptFinished(context.Background(), p.toInfo(nowMS()))
}
