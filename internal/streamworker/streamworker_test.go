package streamworker

import (
	"os/exec"
	"strings"
	"testing"
)

// fakeScan drives scanLoop against a worker with no real child process; the
// final wait() call tolerates cmd.Process being nil.
func fakeScan(t *testing.T, input string) []Event {
	t.Helper()
	w := &Worker{promptID: 7, cmd: exec.Command("true")}
	events := make(chan Event, 16)
	w.scanLoop(strings.NewReader(input), events, nil)
	close(events)

	var got []Event
	for e := range events {
		got = append(got, e)
	}
	return got
}

func TestScanLoopEmitsSessionIDOnce(t *testing.T) {
	input := `{"type":"system","session_id":"sess-1"}` + "\n" +
		`{"type":"system","session_id":"sess-2"}` + "\n"
	events := fakeScan(t, input)

	var sessionEvents []Event
	for _, e := range events {
		if e.Kind == EventSessionID {
			sessionEvents = append(sessionEvents, e)
		}
	}
	if len(sessionEvents) != 1 {
		t.Fatalf("got %d SessionID events, want 1", len(sessionEvents))
	}
	if sessionEvents[0].Text != "sess-1" {
		t.Fatalf("got session id %q, want sess-1", sessionEvents[0].Text)
	}
}

func TestScanLoopEmitsOutputChunksInOrder(t *testing.T) {
	input := `{"type":"assistant","message":{"content":[{"text":"hello "},{"text":"world"}]}}` + "\n"
	events := fakeScan(t, input)

	var chunks []string
	for _, e := range events {
		if e.Kind == EventOutputChunk {
			chunks = append(chunks, e.Text)
		}
	}
	if len(chunks) != 2 || chunks[0] != "hello " || chunks[1] != "world" {
		t.Fatalf("got chunks %v, want [\"hello \" \"world\"]", chunks)
	}
}

func TestScanLoopEmitsTurnCompleteOnResult(t *testing.T) {
	input := `{"type":"result"}` + "\n"
	events := fakeScan(t, input)

	found := false
	for _, e := range events {
		if e.Kind == EventTurnComplete {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a TurnComplete event, got %v", events)
	}
}

func TestScanLoopIgnoresMalformedLines(t *testing.T) {
	input := "not json\n" + `{"type":"assistant","message":{"content":[{"text":"ok"}]}}` + "\n"
	events := fakeScan(t, input)

	var chunks []string
	for _, e := range events {
		if e.Kind == EventOutputChunk {
			chunks = append(chunks, e.Text)
		}
	}
	if len(chunks) != 1 || chunks[0] != "ok" {
		t.Fatalf("got chunks %v, want [\"ok\"]", chunks)
	}
}

func TestScanLoopAlwaysEndsWithFinished(t *testing.T) {
	events := fakeScan(t, "")
	if len(events) == 0 || events[len(events)-1].Kind != EventFinished {
		t.Fatalf("expected final event to be Finished, got %v", events)
	}
}
