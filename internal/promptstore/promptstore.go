// Package promptstore persists Prompt records as one JSON file per prompt
// under a configured directory: persisted JSON on disk always equals
// in-memory state after every transition.
// Writes are atomic (write to a temp file, then rename) so a crash mid-write
// never leaves a torn file behind.
package promptstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/paths"
)

// Prompt is the full persisted record for one prompt. api.PromptInfo
// is the read-only wire projection derived from it.
type Prompt struct {
	ID           int      `json:"id"`
	UUID         string   `json:"uuid"`
	Text         string   `json:"text"`
	Tags         []string `json:"tags"`
	CWD          string   `json:"cwd,omitempty"`
	Mode         api.Mode `json:"mode"`
	Status       api.Status `json:"status"`
	Worktree     bool     `json:"worktree"`
	WorktreePath string   `json:"worktree_path,omitempty"`
	Branch       string   `json:"branch,omitempty"`
	Resume       bool     `json:"resume"`
	SessionID    string   `json:"session_id,omitempty"`
	Output       string   `json:"output,omitempty"`
	Error        string   `json:"error,omitempty"`
	StartedAt    int64    `json:"started_at,omitempty"`  // epoch ms
	FinishedAt   int64    `json:"finished_at,omitempty"` // epoch ms
	QueueRank    float64  `json:"queue_rank"`
	Seen         bool     `json:"seen"`
}

// Store is a file-backed, one-file-per-prompt JSON store.
type Store struct {
	dir          string
	retentionCap int
}

// New returns a Store rooted at dir. Callers holding the full prompt list
// call Prune after a Save to enforce retentionCap (0 disables pruning).
func New(dir string, retentionCap int) *Store {
	return &Store{dir: dir, retentionCap: retentionCap}
}

// Save atomically (write-then-rename) writes p to its JSON file.
func (s *Store) Save(p *Prompt) error {
	if err := paths.ValidateUUID(p.UUID); err != nil {
		return err
	}
	path := filepath.Join(s.dir, p.UUID+".json")
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("promptstore: marshaling prompt %s: %w", p.UUID, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("promptstore: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("promptstore: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("promptstore: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("promptstore: renaming into place: %w", err)
	}
	return nil
}

// Delete removes a prompt's file. Deleting a file that does not exist is not
// an error.
func (s *Store) Delete(uuid string) error {
	if err := paths.ValidateUUID(uuid); err != nil {
		return err
	}
	path := filepath.Join(s.dir, uuid+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("promptstore: deleting %s: %w", uuid, err)
	}
	return nil
}

// LoadAll reads every prompt file in the store directory. Running or Idle
// statuses are rewritten to Completed on load (no live
// process owns them anymore) and persisted back to disk immediately;
// Pending prompts are returned unchanged and will be re-dispatched.
func (s *Store) LoadAll() ([]*Prompt, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("promptstore: reading %s: %w", s.dir, err)
	}

	var prompts []*Prompt
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("promptstore: reading %s: %w", e.Name(), err)
		}
		var p Prompt
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("promptstore: parsing %s: %w", e.Name(), err)
		}
		if p.Status == api.StatusRunning || p.Status == api.StatusIdle {
			p.Status = api.StatusCompleted
			if err := s.Save(&p); err != nil {
				return nil, err
			}
		}
		prompts = append(prompts, &p)
	}

	sort.Slice(prompts, func(i, j int) bool { return prompts[i].ID < prompts[j].ID })
	return prompts, nil
}

// Prune deletes the oldest terminal-status prompts beyond the retention cap,
// given the full current prompt list in any order, and returns the ids of
// the prompts it deleted so the caller can drop them from its own state.
// It is a no-op when retentionCap is 0.
func (s *Store) Prune(prompts []*Prompt) ([]int, error) {
	if s.retentionCap <= 0 {
		return nil, nil
	}
	var terminal []*Prompt
	for _, p := range prompts {
		if p.Status == api.StatusCompleted || p.Status == api.StatusFailed {
			terminal = append(terminal, p)
		}
	}
	if len(terminal) <= s.retentionCap {
		return nil, nil
	}
	sort.Slice(terminal, func(i, j int) bool { return terminal[i].ID < terminal[j].ID })
	excess := len(terminal) - s.retentionCap
	var pruned []int
	for _, p := range terminal[:excess] {
		if err := s.Delete(p.UUID); err != nil {
			return pruned, err
		}
		pruned = append(pruned, p.ID)
	}
	return pruned, nil
}
