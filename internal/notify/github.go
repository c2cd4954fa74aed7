package notify

import (
	"context"
	"fmt"
	"strings"

	gogh "github.com/google/go-github/v68/github"

	"github.com/clhorde/clhorde/internal/api"
)

// GitHubNotifier opens a pull request for a completed worktree-backed
// prompt, driven by a PromptInfo rather than a session record.
type GitHubNotifier struct {
	gh   *gogh.Client
	repo string // "owner/repo"
}

// NewGitHubNotifier authenticates a client with the given token, scoped to
// one "owner/repo".
func NewGitHubNotifier(token, repo string) *GitHubNotifier {
	return &GitHubNotifier{gh: gogh.NewClient(nil).WithAuthToken(token), repo: repo}
}

// OpenPR opens a pull request for branch against the configured repo's
// default branch, returning the PR URL and number.
func (n *GitHubNotifier) OpenPR(ctx context.Context, branch string, p api.PromptInfo) (string, int, error) {
	owner, repo, err := splitRepo(n.repo)
	if err != nil {
		return "", 0, err
	}

	base, err := n.defaultBranch(ctx, owner, repo)
	if err != nil {
		return "", 0, err
	}

	pr, _, err := n.gh.PullRequests.Create(ctx, owner, repo, &gogh.NewPullRequest{
		Title: gogh.Ptr(fmt.Sprintf("clhorde: %s", firstLine(p.Text))),
		Body:  gogh.Ptr(p.Text),
		Head:  gogh.Ptr(branch),
		Base:  gogh.Ptr(base),
	})
	if err != nil {
		return "", 0, fmt.Errorf("creating pull request: %w", err)
	}
	return pr.GetHTMLURL(), pr.GetNumber(), nil
}

func (n *GitHubNotifier) defaultBranch(ctx context.Context, owner, repo string) (string, error) {
	r, _, err := n.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("getting repository: %w", err)
	}
	return r.GetDefaultBranch(), nil
}

func splitRepo(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q, expected \"owner/repo\"", fullName)
	}
	return parts[0], parts[1], nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if len(s) > 72 {
		return s[:72] + "..."
	}
	return s
}
