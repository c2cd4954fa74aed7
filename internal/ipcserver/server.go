// Package ipcserver listens on the daemon's Unix socket and bridges each
// connection to the orchestrator's event loop: accept,
// assign a session id, spawn a reader and a writer goroutine sharing the
// connection, joined to the orchestrator by RegisterSession/Submit.
package ipcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/frame"
	"github.com/clhorde/clhorde/internal/orchestrator"
)

// Submitter is the subset of *orchestrator.Orchestrator the server needs.
type Submitter interface {
	Submit(sessionID int, req api.ClientRequest, reply chan api.DaemonEvent)
	RegisterSession(id int, events chan api.DaemonEvent, ptyOut chan orchestrator.PTYChunk)
	UnregisterSession(id int)
}

// Server owns the listening socket and the single-instance PID lock.
type Server struct {
	orch       Submitter
	socketPath string
	lock       *pidLock
	logger     *log.Logger

	ln net.Listener

	mu       sync.Mutex
	nextConn int
	conns    map[net.Conn]struct{}
}

// New builds a Server bound to socketPath, guarded by a PID file at pidPath.
func New(orch Submitter, socketPath, pidPath string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	return &Server{
		orch:       orch,
		socketPath: socketPath,
		lock:       newPIDLock(pidPath),
		logger:     logger,
		nextConn:   1,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Run acquires the single-instance lock, opens the socket, and accepts
// connections until ctx is canceled. It always releases the lock and
// unlinks the socket before returning.
func (s *Server) Run(ctx context.Context) error {
	if err := s.lock.acquire(s.socketPath); err != nil {
		return err
	}
	defer s.lock.release()

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	s.ln = ln
	defer func() {
		_ = ln.Close()
		_ = os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		s.closeAll()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			default:
				return fmt.Errorf("accepting connection: %w", err)
			}
		}
		s.trackConn(conn)
		id := s.nextSessionID()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.untrackConn(conn)
			s.handleConn(id, conn)
		}()
	}
}

// closeAll closes the listener and every currently open client connection,
// unblocking each connection's readLoop out of its blocking frame read so
// Run's WaitGroup can drain on shutdown.
func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.ln.Close()
	for c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) nextSessionID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextConn
	s.nextConn++
	return id
}

// handleConn runs one connection's reader and writer pipeline: a reader
// task decodes ClientRequest frames and forwards them
// to the orchestrator labeled with the session id; a writer task drains a
// bounded outbound queue, encoding DaemonEvents as JSON frames and PTY
// chunks as binary frames. Either side exiting tears down the other. Run's
// accept loop closes conn out from under a blocked readLoop on shutdown, so
// neither this nor readLoop needs its own ctx.
func (s *Server) handleConn(id int, conn net.Conn) {
	defer conn.Close()

	events := make(chan api.DaemonEvent, 256)
	ptyOut := make(chan orchestrator.PTYChunk, 256)
	s.orch.RegisterSession(id, events, ptyOut)
	defer s.orch.UnregisterSession(id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(conn, events, ptyOut)
	}()

	s.readLoop(id, conn)
	<-done
}

func (s *Server) readLoop(id int, conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		payload, err := frame.ReadFrame(r)
		if err != nil {
			return
		}
		if frame.IsPTYFrame(payload) {
			promptID, data, err := frame.DecodePTY(payload)
			if err != nil {
				s.logger.Printf("ipcserver: decoding pty frame from session %d: %v", id, err)
				continue
			}
			s.orch.Submit(id, api.ClientRequest{
				Type:     api.ReqSendPtyBytes,
				PromptID: promptID,
				Data:     data,
			}, nil)
			continue
		}
		var req api.ClientRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			s.logger.Printf("ipcserver: decoding request from session %d: %v", id, err)
			continue
		}
		s.orch.Submit(id, req, nil)
	}
}

// writeLoop drains both outbound channels until they are closed by
// UnregisterSession, encoding each as its wire frame kind.
func (s *Server) writeLoop(conn net.Conn, events chan api.DaemonEvent, ptyOut chan orchestrator.PTYChunk) {
	w := bufio.NewWriter(conn)
	defer w.Flush()

	eventsOpen, ptyOpen := true, true
	for eventsOpen || ptyOpen {
		select {
		case chunk, ok := <-ptyOut:
			if !ok {
				ptyOpen = false
				ptyOut = nil
				continue
			}
			if err := frame.WritePTY(w, chunk.PromptID, chunk.Data); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		case evt, ok := <-events:
			if !ok {
				eventsOpen = false
				events = nil
				continue
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				s.logger.Printf("ipcserver: encoding event: %v", err)
				continue
			}
			if err := frame.WriteJSON(w, payload); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}
