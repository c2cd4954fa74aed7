package promptstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/clhorde/clhorde/internal/api"
)

func mustMkdir(t *testing.T, dir string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestSaveAndLoadAllRoundtrip(t *testing.T) {
	dir := mustMkdir(t, filepath.Join(t.TempDir(), "prompts"))
	store := New(dir, 0)

	p := &Prompt{ID: 1, UUID: "01AAAAAAAAAAAAAAAAAAAAAAAA", Text: "hello", Mode: api.ModeOneShot, Status: api.StatusPending, QueueRank: 1}
	if err := store.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("got %d prompts, want 1", len(loaded))
	}
	if loaded[0].Text != "hello" || loaded[0].Status != api.StatusPending {
		t.Fatalf("got %+v", loaded[0])
	}
}

func TestLoadAllDowngradesRunningAndIdle(t *testing.T) {
	dir := mustMkdir(t, filepath.Join(t.TempDir(), "prompts"))
	store := New(dir, 0)

	running := &Prompt{ID: 1, UUID: "01RUNNINGAAAAAAAAAAAAAAAAA", Status: api.StatusRunning}
	idle := &Prompt{ID: 2, UUID: "01IDLEAAAAAAAAAAAAAAAAAAAA", Status: api.StatusIdle}
	pending := &Prompt{ID: 3, UUID: "01PENDINGAAAAAAAAAAAAAAAAA", Status: api.StatusPending}
	for _, p := range []*Prompt{running, idle, pending} {
		if err := store.Save(p); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	loaded, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	byID := map[int]*Prompt{}
	for _, p := range loaded {
		byID[p.ID] = p
	}
	if byID[1].Status != api.StatusCompleted {
		t.Fatalf("running prompt not downgraded: %v", byID[1].Status)
	}
	if byID[2].Status != api.StatusCompleted {
		t.Fatalf("idle prompt not downgraded: %v", byID[2].Status)
	}
	if byID[3].Status != api.StatusPending {
		t.Fatalf("pending prompt should be unchanged: %v", byID[3].Status)
	}

	reloaded, err := store.LoadAll()
	if err != nil {
		t.Fatalf("second LoadAll: %v", err)
	}
	for _, p := range reloaded {
		if p.ID == 1 && p.Status != api.StatusCompleted {
			t.Fatalf("downgrade not persisted to disk")
		}
	}
}

func TestDeleteMissingIsNotError(t *testing.T) {
	dir := mustMkdir(t, filepath.Join(t.TempDir(), "prompts"))
	store := New(dir, 0)
	if err := store.Delete("01NEVERWRITTENAAAAAAAAAAAA"); err != nil {
		t.Fatalf("Delete of missing file returned error: %v", err)
	}
}

func TestPruneRespectsRetentionCap(t *testing.T) {
	dir := mustMkdir(t, filepath.Join(t.TempDir(), "prompts"))
	store := New(dir, 2)

	var prompts []*Prompt
	for i := 1; i <= 5; i++ {
		p := &Prompt{ID: i, UUID: "01TERMAAAAAAAAAAAAAAAAAAA" + string(rune('A'+i)), Status: api.StatusCompleted}
		if err := store.Save(p); err != nil {
			t.Fatalf("Save: %v", err)
		}
		prompts = append(prompts, p)
	}

	pruned, err := store.Prune(prompts)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(pruned) != 3 {
		t.Fatalf("got %d pruned ids, want 3", len(pruned))
	}

	remaining, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("got %d remaining prompts, want 2", len(remaining))
	}
	for _, p := range remaining {
		if p.ID < 4 {
			t.Fatalf("expected oldest prompts pruned, found id %d", p.ID)
		}
	}
}
