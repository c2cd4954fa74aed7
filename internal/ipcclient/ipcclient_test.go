package ipcclient

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/frame"
)

// fakeDaemon accepts a single connection and runs respond against it,
// letting tests script what the daemon side sends back without standing
// up a real orchestrator.
func fakeDaemon(t *testing.T, respond func(r *bufio.Reader, w net.Conn)) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		respond(bufio.NewReader(conn), conn)
	}()
	return path
}

func TestRequestReturnsFirstEvent(t *testing.T) {
	path := fakeDaemon(t, func(r *bufio.Reader, w net.Conn) {
		if _, err := frame.ReadFrame(r); err != nil {
			t.Errorf("reading request: %v", err)
			return
		}
		payload, _ := json.Marshal(api.DaemonEvent{Type: api.EvtPong})
		frame.WriteJSON(w, payload)
	})

	evt, err := Request(path, api.ClientRequest{Type: api.ReqPing})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if evt.Type != api.EvtPong {
		t.Fatalf("got %+v, want Pong", evt)
	}
}

func TestRequestSkipsPTYFramesAndReturnsError(t *testing.T) {
	path := fakeDaemon(t, func(r *bufio.Reader, w net.Conn) {
		if _, err := frame.ReadFrame(r); err != nil {
			t.Errorf("reading request: %v", err)
			return
		}
		frame.WritePTY(w, 1, []byte("noise"))
		payload, _ := json.Marshal(api.DaemonEvent{Type: api.EvtError, Message: "boom"})
		frame.WriteJSON(w, payload)
	})

	_, err := Request(path, api.ClientRequest{Type: api.ReqGetState})
	if err == nil {
		t.Fatal("expected error from daemon")
	}
}
