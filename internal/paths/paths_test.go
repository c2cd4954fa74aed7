package paths

import (
	"strings"
	"testing"
)

func TestValidateUUID(t *testing.T) {
	cases := []struct {
		id      string
		wantErr bool
	}{
		{"01HV6Z8K9T9Q2X3Y4Z5A6B7C8D", false},
		{"", true},
		{"../../etc/passwd", true},
		{"has/slash", true},
		{strings.Repeat("a", 65), true},
		{strings.Repeat("a", 64), false},
	}
	for _, c := range cases {
		err := ValidateUUID(c.id)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateUUID(%q) err=%v, wantErr=%v", c.id, err, c.wantErr)
		}
	}
}

func TestPromptFileRejectsInvalidUUID(t *testing.T) {
	if _, err := PromptFile("/tmp/data", "../escape"); err == nil {
		t.Fatalf("expected error for traversal uuid")
	}
}

func TestPromptFileLayout(t *testing.T) {
	got, err := PromptFile("/tmp/data", "abc123")
	if err != nil {
		t.Fatalf("PromptFile: %v", err)
	}
	want := "/tmp/data/prompts/abc123.json"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSocketAndPIDPaths(t *testing.T) {
	if got := SocketPath("/tmp/data"); got != "/tmp/data/daemon.sock" {
		t.Fatalf("got %q", got)
	}
	if got := PIDPath("/tmp/data"); got != "/tmp/data/daemon.pid" {
		t.Fatalf("got %q", got)
	}
}
