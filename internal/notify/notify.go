// Package notify delivers optional, fire-and-forget completion notices for
// finished prompts: a GitHub pull request for a worktree-backed prompt, and
// a one-line Slack message. Neither is part of the daemon's control plane;
// both are best-effort side effects triggered on terminal status.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/clhorde/clhorde/internal/api"
)

// Notifier fans a finished prompt out to whichever outbound integrations
// are configured. A nil field disables that integration.
type Notifier struct {
	GitHub *GitHubNotifier
	Slack  *SlackNotifier
	Logger *log.Logger
}

// New builds a Notifier from whichever tokens are non-empty. Returns nil if
// neither integration is configured, so callers can skip wiring it in at
// all.
func New(githubToken, githubRepo, slackToken, slackChannel string, logger *log.Logger) *Notifier {
	if (githubToken == "" || githubRepo == "") && (slackToken == "" || slackChannel == "") {
		return nil
	}
	n := &Notifier{Logger: logger}
	if githubToken != "" && githubRepo != "" {
		n.GitHub = NewGitHubNotifier(githubToken, githubRepo)
	}
	if slackToken != "" && slackChannel != "" {
		n.Slack = NewSlackNotifier(slackToken, slackChannel)
	}
	return n
}

// PromptFinished is called once per prompt reaching a terminal status. It
// never blocks the orchestrator loop — callers invoke it in its own
// goroutine — and errors are logged, never propagated.
func (n *Notifier) PromptFinished(ctx context.Context, p api.PromptInfo) {
	if n.GitHub != nil && p.Worktree && p.Branch != "" && p.Status == api.StatusCompleted {
		if _, _, err := n.GitHub.OpenPR(ctx, p.Branch, p); err != nil {
			n.logf("notify: opening PR for prompt %d: %v", p.ID, err)
		}
	}
	if n.Slack != nil {
		if err := n.Slack.Notify(p); err != nil {
			n.logf("notify: posting slack message for prompt %d: %v", p.ID, err)
		}
	}
}

func (n *Notifier) logf(format string, args ...any) {
	if n.Logger != nil {
		n.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func summarize(p api.PromptInfo) string {
	if p.Status == api.StatusFailed {
		return fmt.Sprintf("prompt %d failed: %s", p.ID, p.Error)
	}
	return fmt.Sprintf("prompt %d completed", p.ID)
}
