// Package ipcclient is a thin client for the daemon's Unix socket,
// encoding/decoding the same length-prefixed frames internal/ipcserver
// speaks. It has no retry or reconnect logic: cmd/clhorde
// dials fresh per invocation and exits on error.
package ipcclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/frame"
)

// Conn is one connection to the daemon.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to the daemon's Unix socket at socketPath.
func Dial(socketPath string) (*Conn, error) {
	c, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon at %s: %w", socketPath, err)
	}
	return &Conn{conn: c, r: bufio.NewReader(c)}, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Send writes one ClientRequest frame.
func (c *Conn) Send(req api.ClientRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return frame.WriteJSON(c.conn, payload)
}

// SendPtyBytes writes raw PTY input as a binary frame, bypassing JSON
// encoding for the hot path.
func (c *Conn) SendPtyBytes(promptID int, data []byte) error {
	return frame.WritePTY(c.conn, promptID, data)
}

// Recv reads one frame and decodes it as either a DaemonEvent or, if it is
// a binary PTY frame, surfaces the prompt id and raw bytes via evt.PromptID
// and ptyData — callers distinguish the two by checking isPTY.
func (c *Conn) Recv() (evt api.DaemonEvent, ptyData []byte, isPTY bool, err error) {
	payload, err := frame.ReadFrame(c.r)
	if err != nil {
		return api.DaemonEvent{}, nil, false, err
	}
	if frame.IsPTYFrame(payload) {
		promptID, data, err := frame.DecodePTY(payload)
		if err != nil {
			return api.DaemonEvent{}, nil, false, err
		}
		return api.DaemonEvent{PromptID: promptID}, data, true, nil
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return api.DaemonEvent{}, nil, false, fmt.Errorf("decoding event: %w", err)
	}
	return evt, nil, false, nil
}

// Request sends req and waits for the first JSON event back — used by the
// CLI's synchronous one-shot commands (Submit, Ping, GetState, ...), which
// never need to share the connection with a PTY stream.
func Request(socketPath string, req api.ClientRequest) (api.DaemonEvent, error) {
	c, err := Dial(socketPath)
	if err != nil {
		return api.DaemonEvent{}, err
	}
	defer c.Close()

	if err := c.Send(req); err != nil {
		return api.DaemonEvent{}, err
	}
	for {
		evt, _, isPTY, err := c.Recv()
		if err != nil {
			return api.DaemonEvent{}, fmt.Errorf("reading response: %w", err)
		}
		if isPTY {
			continue
		}
		if evt.Type == api.EvtError {
			return evt, fmt.Errorf("daemon: %s", evt.Message)
		}
		return evt, nil
	}
}
