// Package orchestrator is the single owner of prompt state and the worker
// pool. It serializes every mutation through one event loop;
// client requests, worker messages, and timer ticks all arrive as messages
// on that loop, so the prompt list itself needs no lock.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/clherr"
	"github.com/clhorde/clhorde/internal/config"
	"github.com/clhorde/clhorde/internal/notify"
	"github.com/clhorde/clhorde/internal/promptstore"
	"github.com/clhorde/clhorde/internal/ringbuffer"
	"github.com/clhorde/clhorde/internal/worktree"
)

const (
	killGrace      = 500 * time.Millisecond
	tickInterval   = 100 * time.Millisecond
	ringBufferSize = 64 * 1024
)

// request is a client verb delivered to the event loop, labeled with the
// session that sent it. When reply is non-nil the verb's direct response
// (GetState, StoreList, Ping, ...) goes there; when it is nil, as for every
// request read off the IPC socket, the response goes to the session's own
// outbound queue.
type request struct {
	sessionID int
	req       api.ClientRequest
	reply     chan api.DaemonEvent
}

// Orchestrator owns the prompt list, the worker pool, and the subscriber
// set. Construct with New and run with Run; all other methods are meant to
// be called from other goroutines and communicate with the loop via
// channels only.
type Orchestrator struct {
	cfg    config.Config
	store  *promptstore.Store
	notify *notify.Notifier
	logger *log.Logger

	sessions *sessionManager

	requests   chan request
	register   chan sessionRegistration
	unregister chan int
	ptyIn      chan ptyWorkerMsg
	streamIn   chan streamWorkerMsg
	shutdown   chan chan struct{}
	done       chan struct{}

	// loop-owned state; never touched from another goroutine.
	prompts     []*prompt
	nextID      int
	maxWorkers  int
	defaultMode api.Mode

	wg sync.WaitGroup
}

// New constructs an Orchestrator. Call LoadStore then Run to start it.
func New(cfg config.Config, store *promptstore.Store, notifier *notify.Notifier, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	return &Orchestrator{
		cfg:         cfg,
		store:       store,
		notify:      notifier,
		logger:      logger,
		sessions:    newSessionManager(),
		requests:    make(chan request, 64),
		register:    make(chan sessionRegistration),
		unregister:  make(chan int),
		ptyIn:       make(chan ptyWorkerMsg, 256),
		streamIn:    make(chan streamWorkerMsg, 256),
		shutdown:    make(chan chan struct{}),
		done:        make(chan struct{}),
		nextID:      1,
		maxWorkers:  cfg.MaxWorkers,
		defaultMode: api.ModeOneShot,
	}
}

// LoadStore populates the prompt list from disk on startup recovery:
// Running/Idle prompts were already downgraded to Completed by
// promptstore.LoadAll; next_id is set to max(loaded ids)+1.
func (o *Orchestrator) LoadStore() error {
	recs, err := o.store.LoadAll()
	if err != nil {
		return err
	}
	for _, r := range recs {
		o.prompts = append(o.prompts, newPrompt(r))
		if r.ID >= o.nextID {
			o.nextID = r.ID + 1
		}
	}
	return nil
}

// Run drives the event loop until ctx is canceled or a Shutdown request is
// handled. It returns once all workers have been killed and given their
// drain grace period, closing Done() on its way out so callers outside the
// loop (in particular a client-issued Shutdown, which has no ctx to cancel)
// can learn the orchestrator has stopped and tear down the rest of the
// process around it.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.doShutdown()
			return
		case done := <-o.shutdown:
			o.doShutdown()
			close(done)
			return
		case r := <-o.requests:
			o.handleRequest(r)
			o.dispatch()
		case reg := <-o.register:
			o.sessions.add(reg.id, reg.events, reg.ptyOut)
			close(reg.done)
		case id := <-o.unregister:
			o.sessions.remove(id)
		case m := <-o.ptyIn:
			o.handlePTYMessage(m)
			o.dispatch()
		case m := <-o.streamIn:
			o.handleStreamMessage(m)
			o.dispatch()
		case <-ticker.C:
			o.checkKillGrace()
		}
	}
}

// Submit enqueues a client request on the loop's buffered request queue,
// blocking only while that queue is full (never until the request is
// handled); used by the IPC server's reader task.
func (o *Orchestrator) Submit(sessionID int, req api.ClientRequest, reply chan api.DaemonEvent) {
	o.requests <- request{sessionID: sessionID, req: req, reply: reply}
}

// Shutdown requests an orderly stop and blocks until it completes.
func (o *Orchestrator) Shutdown() {
	done := make(chan struct{})
	select {
	case o.shutdown <- done:
		<-done
	case <-o.done:
		// loop already exited via ctx cancellation
	}
}

// Done returns a channel closed once Run has returned, whether because ctx
// was canceled or a client-issued Shutdown drained the loop. A client
// Shutdown has no ctx of its own to cancel, so the process-level caller
// watches this to learn the orchestrator stopped and tear down everything
// else (IPC listener, debug HTTP server, PID file) around it.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// sessionRegistration is the message the IPC server's accept loop sends to
// register one connection's outbound channels with the subscriber set.
type sessionRegistration struct {
	id     int
	events chan api.DaemonEvent
	ptyOut chan PTYChunk
	done   chan struct{}
}

// RegisterSession adds a new client connection to the subscriber set and
// blocks until the event loop has recorded it.
func (o *Orchestrator) RegisterSession(id int, events chan api.DaemonEvent, ptyOut chan PTYChunk) {
	done := make(chan struct{})
	o.register <- sessionRegistration{id: id, events: events, ptyOut: ptyOut, done: done}
	<-done
}

// UnregisterSession drops a client connection from the subscriber set.
func (o *Orchestrator) UnregisterSession(id int) {
	o.unregister <- id
}

func (o *Orchestrator) findPrompt(id int) *prompt {
	for _, p := range o.prompts {
		if p.rec.ID == id {
			return p
		}
	}
	return nil
}

func (o *Orchestrator) activeWorkers() int {
	n := 0
	for _, p := range o.prompts {
		if p.rec.Status == api.StatusRunning || p.rec.Status == api.StatusIdle {
			n++
		}
	}
	return n
}

func (o *Orchestrator) toState() api.DaemonState {
	now := nowMS()
	infos := make([]api.PromptInfo, 0, len(o.prompts))
	for _, p := range o.prompts {
		infos = append(infos, p.toInfo(now))
	}
	return api.DaemonState{
		Prompts:       infos,
		MaxWorkers:    o.maxWorkers,
		ActiveWorkers: o.activeWorkers(),
		DefaultMode:   o.defaultMode,
	}
}

// persist writes p's current record to disk and logs (does not fail the
// caller) on error, then enforces the retention cap against the full
// prompt list.
func (o *Orchestrator) persist(p *prompt) {
	if err := o.store.Save(p.rec); err != nil {
		o.logger.Printf("orchestrator: persisting prompt %d: %v", p.rec.ID, err)
		return
	}
	o.pruneRetention()
}

// pruneRetention deletes the oldest terminal prompts beyond the configured
// retention cap from disk and the in-memory list, broadcasting their
// removal the same way an explicit DeletePrompt does.
func (o *Orchestrator) pruneRetention() {
	recs := make([]*promptstore.Prompt, len(o.prompts))
	for i, p := range o.prompts {
		recs[i] = p.rec
	}
	pruned, err := o.store.Prune(recs)
	if err != nil {
		o.logger.Printf("orchestrator: pruning prompt store: %v", err)
	}
	for _, id := range pruned {
		o.removePrompt(id)
		o.sessions.broadcast(api.DaemonEvent{Type: api.EvtPromptRemoved, PromptID: id})
	}
}

// broadcastUpdated emits exactly one PromptUpdated event for p, satisfying
// the one-transition-one-broadcast invariant.
func (o *Orchestrator) broadcastUpdated(p *prompt) {
	info := p.toInfo(nowMS())
	o.sessions.broadcast(api.DaemonEvent{Type: api.EvtPromptUpdated, Prompt: &info})
}

func (o *Orchestrator) broadcastActiveWorkersChanged() {
	o.sessions.broadcast(api.DaemonEvent{Type: api.EvtActiveWorkersChanged, Count: o.activeWorkers()})
}

// dispatch is the scheduler: while capacity remains and a Pending prompt
// exists, start the one with the smallest queue_rank.
func (o *Orchestrator) dispatch() {
	for o.activeWorkers() < o.maxWorkers {
		next := o.nextPending()
		if next == nil {
			return
		}
		o.startWorker(next)
	}
}

// nextPending returns the Pending prompt with the smallest queue_rank,
// breaking ties by id (ties are impossible by invariant but the tie-break
// is still deterministic).
func (o *Orchestrator) nextPending() *prompt {
	var best *prompt
	for _, p := range o.prompts {
		if p.rec.Status != api.StatusPending {
			continue
		}
		if best == nil || p.rec.QueueRank < best.rec.QueueRank ||
			(p.rec.QueueRank == best.rec.QueueRank && p.rec.ID < best.rec.ID) {
			best = p
		}
	}
	return best
}

func (o *Orchestrator) pendingPrompts() []*prompt {
	var out []*prompt
	for _, p := range o.prompts {
		if p.rec.Status == api.StatusPending {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rec.QueueRank < out[j].rec.QueueRank })
	return out
}

func (o *Orchestrator) newRing() *ringbuffer.Buffer {
	size := o.cfg.RingBufferBytes
	if size <= 0 {
		size = ringBufferSize
	}
	return ringbuffer.New(size)
}

// ensureWorktree creates a working copy on its own branch for p if
// requested and the parent cwd is a repository; run synchronously from the
// event loop. A cwd that is empty or not a repository leaves p running in
// its cwd; a failed creation returns ErrWorktreeRequired. The
// single-process model has no separate blocking pool, so callers invoke it
// before the spawn that needs cwd, accepting the brief stall.
func (o *Orchestrator) ensureWorktree(ctx context.Context, p *prompt) error {
	if !p.rec.Worktree || p.rec.WorktreePath != "" {
		return nil
	}
	if p.rec.CWD == "" || !worktree.IsRepo(ctx, p.rec.CWD) {
		return nil
	}
	dest := p.rec.CWD + "-worktree-" + p.rec.UUID
	branch := fmt.Sprintf("clhorde/prompt-%d", p.rec.ID)
	path, err := worktree.Create(ctx, p.rec.CWD, dest, branch)
	if err != nil {
		return clherr.ErrWorktreeRequired
	}
	p.sourceRepo = p.rec.CWD
	p.rec.WorktreePath = path
	p.rec.Branch = branch
	p.rec.CWD = path
	o.persist(p)
	return nil
}

func (o *Orchestrator) maybeCleanupWorktree(ctx context.Context, p *prompt) {
	if !o.cfg.AutoCleanWorktrees {
		return
	}
	o.removeWorktree(ctx, p)
}

// removeWorktree removes p's recorded worktree unconditionally, recovering
// the source repo from the runtime field if still in this process's
// memory, or from the worktree's own .git file otherwise (e.g. after a
// restart where sourceRepo was never repopulated).
func (o *Orchestrator) removeWorktree(ctx context.Context, p *prompt) {
	if p.rec.WorktreePath == "" {
		return
	}
	source := p.sourceRepo
	if source == "" {
		if s, err := worktree.SourceRepo(p.rec.WorktreePath); err == nil {
			source = s
		}
	}
	if source == "" {
		o.logger.Printf("orchestrator: no source repo recorded for prompt %d worktree", p.rec.ID)
		return
	}
	if err := worktree.Remove(ctx, source, p.rec.WorktreePath); err != nil {
		o.logger.Printf("orchestrator: removing worktree for prompt %d: %v", p.rec.ID, err)
		return
	}
	p.rec.WorktreePath = ""
	o.persist(p)
}

func (o *Orchestrator) doShutdown() {
	o.sessions.broadcast(api.DaemonEvent{Type: api.EvtError, Message: "daemon shutting down"})
	deadline := time.Now().Add(5 * time.Second)
	for _, p := range o.prompts {
		if p.rec.Status != api.StatusRunning && p.rec.Status != api.StatusIdle {
			continue
		}
		o.killWorkerFor(p)
	}
	for time.Now().Before(deadline) {
		if o.activeWorkers() == 0 {
			break
		}
		time.Sleep(25 * time.Millisecond)
		o.drainWorkerMessages()
	}
	for _, p := range o.prompts {
		if p.rec.Status == api.StatusRunning || p.rec.Status == api.StatusIdle {
			o.failPrompt(p, "killed")
		}
	}
}

// drainWorkerMessages processes any worker-exit messages that arrived
// during the shutdown grace period without going back through Run's select.
func (o *Orchestrator) drainWorkerMessages() {
	for {
		select {
		case m := <-o.ptyIn:
			o.handlePTYMessage(m)
		case m := <-o.streamIn:
			o.handleStreamMessage(m)
		default:
			return
		}
	}
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}
