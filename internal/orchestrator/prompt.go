package orchestrator

import (
	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/promptstore"
	"github.com/clhorde/clhorde/internal/ptyworker"
	"github.com/clhorde/clhorde/internal/ringbuffer"
	"github.com/clhorde/clhorde/internal/streamworker"
)

// runningWorker is the tagged variant for a prompt's live worker: exactly
// one of pty/stream is non-nil for a Running/Idle prompt.
type runningWorker struct {
	pty    *ptyworker.Worker
	stream *streamworker.Worker
}

// prompt is the orchestrator's in-memory record: the persisted fields plus
// runtime-only state that never reaches disk (ring buffer, worker handle,
// last-known terminal size, kill-grace deadline).
type prompt struct {
	rec *promptstore.Prompt

	ring   *ringbuffer.Buffer
	worker *runningWorker
	cols   int
	rows   int

	// sourceRepo is the original cwd a worktree was created from; rec.CWD
	// is overwritten with the worktree path once one exists, so this is
	// the only place git-worktree cleanup can still find the parent repo.
	sourceRepo string

	killedAt int64 // epoch-ms when Kill was issued; 0 if not being killed
}

func defaultPTYSize() (cols, rows int) { return 80, 24 }

func newPrompt(rec *promptstore.Prompt) *prompt {
	cols, rows := defaultPTYSize()
	return &prompt{rec: rec, cols: cols, rows: rows}
}

func (p *prompt) hasWorkerChannel() bool {
	return p.worker != nil
}

func (p *prompt) hasPTY() bool {
	return p.worker != nil && p.worker.pty != nil
}

func (p *prompt) toInfo(nowMS int64) api.PromptInfo {
	var elapsed *float64
	if p.rec.StartedAt > 0 {
		end := p.rec.FinishedAt
		if end == 0 {
			end = nowMS
		}
		secs := float64(end-p.rec.StartedAt) / 1000.0
		elapsed = &secs
	}
	return api.PromptInfo{
		ID:           p.rec.ID,
		UUID:         p.rec.UUID,
		Text:         p.rec.Text,
		CWD:          p.rec.CWD,
		Mode:         p.rec.Mode,
		Status:       p.rec.Status,
		Output:       p.rec.Output,
		Error:        p.rec.Error,
		Worktree:     p.rec.Worktree,
		WorktreePath: p.rec.WorktreePath,
		Branch:       p.rec.Branch,
		SessionID:    p.rec.SessionID,
		Tags:         append([]string(nil), p.rec.Tags...),
		QueueRank:    p.rec.QueueRank,
		Seen:         p.rec.Seen,
		Resume:       p.rec.Resume,
		OutputLen:    len(p.rec.Output),
		ElapsedSecs:  elapsed,
		HasPTY:       p.hasPTY(),
	}
}
