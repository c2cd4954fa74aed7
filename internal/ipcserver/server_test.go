package ipcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/config"
	"github.com/clhorde/clhorde/internal/frame"
	"github.com/clhorde/clhorde/internal/orchestrator"
	"github.com/clhorde/clhorde/internal/promptstore"
)

// testServer starts a real Orchestrator and Server over a Unix socket in a
// temp dir, with maxWorkers 0 so submitted prompts stay Pending and no
// worker tries to exec a real claude binary.
func testServer(t *testing.T) (socketPath string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{PromptsDir: dir, MaxWorkers: 0, ClaudeBin: "claude"}
	store := promptstore.New(dir, 0)
	logger := log.New(testWriter{t}, "", 0)
	orch := orchestrator.New(cfg, store, nil, logger)
	if err := orch.LoadStore(); err != nil {
		t.Fatalf("LoadStore: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go orch.Run(ctx)

	socketPath = filepath.Join(dir, "daemon.sock")
	pidPath := filepath.Join(dir, "daemon.pid")
	srv := New(orch, socketPath, pidPath, logger)

	ready := make(chan struct{})
	go func() {
		close(ready)
		if err := srv.Run(ctx); err != nil {
			t.Logf("server.Run: %v", err)
		}
	}()
	<-ready
	waitForSocket(t, socketPath)
	return socketPath
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) { return len(p), nil }

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never came up", path)
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendRequest(t *testing.T, conn net.Conn, req api.ClientRequest) {
	t.Helper()
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := frame.WriteJSON(conn, payload); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

func readEvent(t *testing.T, r *bufio.Reader) api.DaemonEvent {
	t.Helper()
	conn := r
	payload, err := frame.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var evt api.DaemonEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return evt
}

func TestSubmitPromptRoundTrip(t *testing.T) {
	socketPath := testServer(t)
	conn := dial(t, socketPath)
	r := bufio.NewReader(conn)

	sendRequest(t, conn, api.ClientRequest{Type: api.ReqSubscribe})
	if evt := readEvent(t, r); evt.Type != api.EvtStateSnapshot {
		t.Fatalf("got %+v, want StateSnapshot after subscribe", evt)
	}

	sendRequest(t, conn, api.ClientRequest{Type: api.ReqSubmitPrompt, Text: "hello", Mode: api.ModeOneShot})

	deadline := time.Now().Add(2 * time.Second)
	for {
		evt := readEvent(t, r)
		if evt.Type == api.EvtPromptAdded {
			if evt.Prompt == nil || evt.Prompt.Text != "hello" {
				t.Fatalf("got %+v, want prompt text hello", evt)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for PromptAdded, last event %+v", evt)
		}
	}
}

func TestSendPtyBytesFrameIsForwarded(t *testing.T) {
	socketPath := testServer(t)
	conn := dial(t, socketPath)

	if err := frame.WritePTY(conn, 1, []byte("ignored, no active worker")); err != nil {
		t.Fatalf("write pty frame: %v", err)
	}

	// The frame reaches the orchestrator, which answers the bogus prompt id
	// with an Error event; the connection stays open for the next request.
	sendRequest(t, conn, api.ClientRequest{Type: api.ReqPing})
	r := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	evt := readEvent(t, r)
	if evt.Type != api.EvtError {
		t.Fatalf("got %+v, want Error for unknown prompt id", evt)
	}
	evt = readEvent(t, r)
	if evt.Type != api.EvtPong {
		t.Fatalf("got %+v, want Pong", evt)
	}
}
