package orchestrator

import (
	"context"
	"fmt"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/clherr"
	"github.com/clhorde/clhorde/internal/promptid"
	"github.com/clhorde/clhorde/internal/promptstore"
)

// handleRequest dispatches one client verb to its handler.
// Each handler is responsible for any reply (via r.reply, if non-nil) and
// for triggering its own persistence/broadcast; dispatch() is always run
// again by the caller afterward.
func (o *Orchestrator) handleRequest(r request) {
	switch r.req.Type {
	case api.ReqSubmitPrompt:
		o.handleSubmit(r)
	case api.ReqRetryPrompt:
		o.handleRetry(r, false)
	case api.ReqResumePrompt:
		o.handleRetry(r, true)
	case api.ReqKillWorker:
		o.handleKillWorker(r)
	case api.ReqMovePromptUp:
		o.handleMove(r, -1)
	case api.ReqMovePromptDown:
		o.handleMove(r, 1)
	case api.ReqDeletePrompt:
		o.handleDelete(r)
	case api.ReqSetMaxWorkers:
		o.handleSetMaxWorkers(r)
	case api.ReqSetDefaultMode:
		o.handleSetDefaultMode(r)
	case api.ReqSendInput:
		o.handleSendInput(r)
	case api.ReqSendPtyBytes:
		o.handleSendPtyBytes(r)
	case api.ReqResizePty:
		o.handleResizePty(r)
	case api.ReqSubscribe:
		o.handleSubscribe(r, true)
	case api.ReqUnsubscribe:
		o.handleSubscribe(r, false)
	case api.ReqGetState:
		o.reply(r, api.DaemonEvent{Type: api.EvtStateSnapshot, State: stateCopy(o.toState())})
	case api.ReqGetPromptOutput:
		o.handleGetPromptOutput(r)
	case api.ReqStoreList:
		o.handleStoreList(r)
	case api.ReqStoreCount:
		o.handleStoreCount(r)
	case api.ReqStorePath:
		o.reply(r, api.DaemonEvent{Type: api.EvtStorePathResult, Path: o.cfg.PromptsDir})
	case api.ReqStoreDrop:
		o.handleStoreBulk(r, true)
	case api.ReqStoreKeep:
		o.handleStoreBulk(r, false)
	case api.ReqCleanWorktrees:
		o.handleCleanWorktrees(r)
	case api.ReqPing:
		o.reply(r, api.DaemonEvent{Type: api.EvtPong})
	case api.ReqShutdown:
		o.reply(r, api.DaemonEvent{Type: api.EvtPong, Message: "shutting down"})
		go o.Shutdown()
	default:
		o.reply(r, api.DaemonEvent{Type: api.EvtError, Message: fmt.Sprintf("unknown verb %q", r.req.Type)})
	}
}

func stateCopy(s api.DaemonState) *api.DaemonState { return &s }

// reply delivers evt to whichever channel the caller used to reach us: an
// in-process reply channel (tests, and any future in-process caller), or
// failing that the session's own outbound queue (the IPC server's reader
// never supplies a reply channel, since a connection's replies and its
// broadcasts share one outbound path).
func (o *Orchestrator) reply(r request, evt api.DaemonEvent) {
	if r.reply != nil {
		select {
		case r.reply <- evt:
		default:
		}
		return
	}
	o.sessions.sendTo(r.sessionID, evt)
}

func (o *Orchestrator) errTo(r request, err error) {
	o.reply(r, api.DaemonEvent{Type: api.EvtError, Message: err.Error()})
}

// handleSubmit appends a new Pending prompt, parsing leading @tag tokens
// out of the submitted text.
func (o *Orchestrator) handleSubmit(r request) {
	tags, text := parseTags(r.req.Text)
	mode := r.req.Mode
	if mode == "" {
		mode = o.defaultMode
	}

	rec := &promptstore.Prompt{
		ID:        o.nextID,
		UUID:      promptid.New(),
		Text:      text,
		Tags:      tags,
		CWD:       r.req.CWD,
		Mode:      mode,
		Status:    api.StatusPending,
		Worktree:  r.req.Worktree,
		QueueRank: o.nextQueueRank(),
	}
	o.nextID++

	p := newPrompt(rec)
	o.prompts = append(o.prompts, p)
	o.persist(p)

	info := p.toInfo(nowMS())
	o.sessions.broadcast(api.DaemonEvent{Type: api.EvtPromptAdded, Prompt: &info})
	o.reply(r, api.DaemonEvent{Type: api.EvtPromptAdded, Prompt: &info})
}

// nextQueueRank returns a rank larger than every existing Pending rank, so
// freshly submitted prompts go to the back of the queue.
func (o *Orchestrator) nextQueueRank() float64 {
	max := 0.0
	for _, p := range o.prompts {
		if p.rec.Status == api.StatusPending && p.rec.QueueRank > max {
			max = p.rec.QueueRank
		}
	}
	return max + 1
}

// parseTags strips leading "@tag" tokens from the head of text.
func parseTags(text string) (tags []string, rest string) {
	i := 0
	for i < len(text) && text[i] == '@' {
		j := i + 1
		for j < len(text) && text[j] != ' ' && text[j] != '\n' {
			j++
		}
		if j == i+1 {
			break
		}
		tags = append(tags, text[i+1:j])
		for j < len(text) && text[j] == ' ' {
			j++
		}
		i = j
	}
	return tags, text[i:]
}

// handleRetry implements Retry/Resume: in-place reset to Pending, new uuid,
// cleared output/error, preserved id/text/cwd/mode.
func (o *Orchestrator) handleRetry(r request, resume bool) {
	p := o.findPrompt(r.req.PromptID)
	if p == nil {
		o.errTo(r, errUnknownPrompt(r.req.PromptID))
		return
	}
	if resume && p.rec.SessionID == "" {
		o.errTo(r, fmt.Errorf("prompt %d has no session id to resume", r.req.PromptID))
		return
	}
	if p.rec.Status == api.StatusRunning || p.rec.Status == api.StatusIdle {
		o.errTo(r, fmt.Errorf("prompt %d is still active: %w", r.req.PromptID, clherr.ErrIllegalState))
		return
	}

	p.rec.UUID = promptid.New()
	p.rec.Status = api.StatusPending
	p.rec.Output = ""
	p.rec.Error = ""
	p.rec.StartedAt = 0
	p.rec.FinishedAt = 0
	p.rec.Resume = resume
	p.rec.QueueRank = o.nextQueueRank()
	p.ring = nil
	o.persist(p)
	o.broadcastUpdated(p)
	o.reply(r, api.DaemonEvent{Type: api.EvtPong})
}

func (o *Orchestrator) handleKillWorker(r request) {
	p := o.findPrompt(r.req.PromptID)
	if p == nil {
		o.errTo(r, errUnknownPrompt(r.req.PromptID))
		return
	}
	if p.rec.Status != api.StatusRunning && p.rec.Status != api.StatusIdle {
		o.errTo(r, fmt.Errorf("prompt %d is not active: %w", r.req.PromptID, clherr.ErrIllegalState))
		return
	}
	o.killWorkerFor(p)
	o.reply(r, api.DaemonEvent{Type: api.EvtPong})
}

// handleMove swaps the rank of the targeted Pending prompt with the
// adjacent Pending prompt in the given direction: adjacent in the Pending
// subsequence, not the raw list.
func (o *Orchestrator) handleMove(r request, dir int) {
	p := o.findPrompt(r.req.PromptID)
	if p == nil || p.rec.Status != api.StatusPending {
		o.errTo(r, errUnknownPrompt(r.req.PromptID))
		return
	}
	pending := o.pendingPrompts()
	idx := -1
	for i, q := range pending {
		if q == p {
			idx = i
			break
		}
	}
	neighbor := idx + dir
	if idx < 0 || neighbor < 0 || neighbor >= len(pending) {
		o.reply(r, api.DaemonEvent{Type: api.EvtPong})
		return
	}
	p.rec.QueueRank, pending[neighbor].rec.QueueRank = pending[neighbor].rec.QueueRank, p.rec.QueueRank
	o.persist(p)
	o.persist(pending[neighbor])
	o.broadcastUpdated(p)
	o.broadcastUpdated(pending[neighbor])
	o.reply(r, api.DaemonEvent{Type: api.EvtPong})
}

func (o *Orchestrator) handleDelete(r request) {
	p := o.findPrompt(r.req.PromptID)
	if p == nil {
		o.errTo(r, errUnknownPrompt(r.req.PromptID))
		return
	}
	if p.rec.Status == api.StatusRunning || p.rec.Status == api.StatusIdle {
		o.killWorkerFor(p)
	}
	if err := o.store.Delete(p.rec.UUID); err != nil {
		o.logger.Printf("orchestrator: deleting prompt %d: %v", p.rec.ID, err)
	}
	o.removePrompt(p.rec.ID)
	o.sessions.broadcast(api.DaemonEvent{Type: api.EvtPromptRemoved, PromptID: p.rec.ID})
	o.reply(r, api.DaemonEvent{Type: api.EvtPromptRemoved, PromptID: p.rec.ID})
}

func (o *Orchestrator) removePrompt(id int) {
	for i, p := range o.prompts {
		if p.rec.ID == id {
			o.prompts = append(o.prompts[:i], o.prompts[i+1:]...)
			return
		}
	}
}

func (o *Orchestrator) handleSetMaxWorkers(r request) {
	count := r.req.Count
	if count < 1 || count > 20 {
		o.errTo(r, fmt.Errorf("max_workers must be between 1 and 20, got %d: %w", count, clherr.ErrMaxWorkersInvalid))
		return
	}
	o.maxWorkers = count
	o.sessions.broadcast(api.DaemonEvent{Type: api.EvtMaxWorkersChanged, Count: count})
	o.reply(r, api.DaemonEvent{Type: api.EvtMaxWorkersChanged, Count: count})
}

func (o *Orchestrator) handleSetDefaultMode(r request) {
	o.defaultMode = r.req.DefaultMode
	o.reply(r, api.DaemonEvent{Type: api.EvtPong})
}

func (o *Orchestrator) handleSendInput(r request) {
	p := o.findPrompt(r.req.PromptID)
	if p == nil || p.worker == nil {
		o.errTo(r, errUnknownPrompt(r.req.PromptID))
		return
	}
	switch {
	case p.worker.pty != nil:
		if err := p.worker.pty.SendInput(r.req.InputText); err != nil {
			o.errTo(r, err)
			o.killWorkerFor(p)
			o.failPrompt(p, err.Error())
			return
		}
	case p.worker.stream != nil:
		// Streaming workers do not accept follow-up input in this
		// implementation.
		o.errTo(r, fmt.Errorf("prompt %d does not accept follow-up input: %w", r.req.PromptID, clherr.ErrIllegalState))
		return
	}
	o.reply(r, api.DaemonEvent{Type: api.EvtPong})
}

func (o *Orchestrator) handleSendPtyBytes(r request) {
	p := o.findPrompt(r.req.PromptID)
	if p == nil || p.worker == nil || p.worker.pty == nil {
		o.errTo(r, errUnknownPrompt(r.req.PromptID))
		return
	}
	if err := p.worker.pty.SendBytes(r.req.Data); err != nil {
		o.errTo(r, err)
		return
	}
	o.reply(r, api.DaemonEvent{Type: api.EvtPong})
}

// handleResizePty applies the last-reported client size globally to the
// prompt.
func (o *Orchestrator) handleResizePty(r request) {
	p := o.findPrompt(r.req.PromptID)
	if p == nil {
		o.errTo(r, errUnknownPrompt(r.req.PromptID))
		return
	}
	p.cols, p.rows = r.req.Cols, r.req.Rows
	if p.worker != nil && p.worker.pty != nil {
		if err := p.worker.pty.Resize(r.req.Cols, r.req.Rows); err != nil {
			o.logger.Printf("orchestrator: resizing pty for prompt %d: %v", p.rec.ID, err)
		}
	}
	o.reply(r, api.DaemonEvent{Type: api.EvtPong})
}

// handleSubscribe toggles subscription and, on subscribe, sends the
// subscribing client a StateSnapshot followed by a replay of every
// non-empty PTY ring buffer. Other subscribers receive no replay.
func (o *Orchestrator) handleSubscribe(r request, subscribe bool) {
	o.sessions.setSubscribed(r.sessionID, subscribe)
	if !subscribe {
		o.reply(r, api.DaemonEvent{Type: api.EvtPong})
		return
	}
	o.sessions.sendTo(r.sessionID, api.DaemonEvent{Type: api.EvtStateSnapshot, State: stateCopy(o.toState())})
	for _, p := range o.prompts {
		if p.ring == nil {
			continue
		}
		snap := p.ring.Snapshot()
		if len(snap) == 0 {
			continue
		}
		for _, s := range o.sessions.sessions {
			if s.id != r.sessionID {
				continue
			}
			select {
			case s.ptyOut <- PTYChunk{PromptID: p.rec.ID, Data: snap}:
			default:
			}
		}
	}
	o.reply(r, api.DaemonEvent{Type: api.EvtPong})
}

func (o *Orchestrator) handleGetPromptOutput(r request) {
	p := o.findPrompt(r.req.PromptID)
	if p == nil {
		o.errTo(r, errUnknownPrompt(r.req.PromptID))
		return
	}
	o.reply(r, api.DaemonEvent{Type: api.EvtPromptOutput, PromptID: p.rec.ID, FullText: p.rec.Output})
}

func (o *Orchestrator) handleStoreList(r request) {
	now := nowMS()
	infos := make([]api.PromptInfo, 0, len(o.prompts))
	for _, p := range o.prompts {
		infos = append(infos, p.toInfo(now))
	}
	o.reply(r, api.DaemonEvent{Type: api.EvtStoreListResult, Prompts: infos})
}

func (o *Orchestrator) handleStoreCount(r request) {
	var pending, running, completed, failed int
	for _, p := range o.prompts {
		switch p.rec.Status {
		case api.StatusPending:
			pending++
		case api.StatusRunning, api.StatusIdle:
			running++
		case api.StatusCompleted:
			completed++
		case api.StatusFailed:
			failed++
		}
	}
	o.reply(r, api.DaemonEvent{
		Type: api.EvtStoreCountResult, Count: len(o.prompts),
		Pending: pending, Running: running, Completed: completed, Failed: failed,
	})
}

// handleStoreBulk implements StoreDrop/StoreKeep: drop deletes matching
// prompts, keep deletes the complement. Running/Idle prompts are never
// deleted regardless of filter.
func (o *Orchestrator) handleStoreBulk(r request, drop bool) {
	matches := func(p *prompt) bool {
		switch r.req.Filter {
		case "completed":
			return p.rec.Status == api.StatusCompleted
		case "failed":
			return p.rec.Status == api.StatusFailed
		case "pending":
			return p.rec.Status == api.StatusPending
		default: // "all"
			return true
		}
	}

	var kept []*prompt
	removed := 0
	for _, p := range o.prompts {
		active := p.rec.Status == api.StatusRunning || p.rec.Status == api.StatusIdle
		shouldDelete := !active && (matches(p) == drop)
		if shouldDelete {
			if err := o.store.Delete(p.rec.UUID); err != nil {
				o.logger.Printf("orchestrator: bulk-deleting prompt %d: %v", p.rec.ID, err)
			}
			o.sessions.broadcast(api.DaemonEvent{Type: api.EvtPromptRemoved, PromptID: p.rec.ID})
			removed++
			continue
		}
		kept = append(kept, p)
	}
	o.prompts = kept
	o.reply(r, api.DaemonEvent{Type: api.EvtStoreOpComplete, Count: removed})
}

func (o *Orchestrator) handleCleanWorktrees(r request) {
	ctx := context.Background()
	cleaned := 0
	for _, p := range o.prompts {
		if p.rec.Status != api.StatusCompleted && p.rec.Status != api.StatusFailed {
			continue
		}
		if p.rec.WorktreePath == "" {
			continue
		}
		path := p.rec.WorktreePath
		o.removeWorktree(ctx, p)
		if p.rec.WorktreePath == "" && path != "" {
			cleaned++
		}
	}
	o.reply(r, api.DaemonEvent{Type: api.EvtStoreOpComplete, Count: cleaned})
}

func errUnknownPrompt(id int) error {
	return fmt.Errorf("unknown prompt %d: %w", id, clherr.ErrUnknownPrompt)
}
