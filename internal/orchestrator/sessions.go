package orchestrator

import "github.com/clhorde/clhorde/internal/api"

// PTYChunk is one span of raw PTY output destined for a client's binary
// frame path; it never travels as a DaemonEvent.
type PTYChunk struct {
	PromptID int
	Data     []byte
}

// clientSession is one connected client as seen by the orchestrator: two
// outbound channels (JSON events, PTY byte chunks) plus a subscription flag
//. Because the orchestrator is the
// single owner of all prompt state, sessionManager needs no mutex of its
// own — it is only ever touched from the orchestrator's event loop
// goroutine.
type clientSession struct {
	id         int
	events     chan api.DaemonEvent
	ptyOut     chan PTYChunk
	subscribed bool
}

type sessionManager struct {
	sessions []*clientSession
}

func newSessionManager() *sessionManager {
	return &sessionManager{}
}

// add registers a client with a pre-assigned session id (assigned by the
// IPC server on accept).
func (m *sessionManager) add(id int, events chan api.DaemonEvent, ptyOut chan PTYChunk) {
	m.sessions = append(m.sessions, &clientSession{id: id, events: events, ptyOut: ptyOut})
}

// remove drops a client session by id and closes its outbound channels so
// the connection's writer goroutine exits.
func (m *sessionManager) remove(id int) {
	for i, s := range m.sessions {
		if s.id == id {
			close(s.events)
			close(s.ptyOut)
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			return
		}
	}
}

// setSubscribed toggles a client's subscription flag.
func (m *sessionManager) setSubscribed(id int, subscribed bool) {
	for _, s := range m.sessions {
		if s.id == id {
			s.subscribed = subscribed
			return
		}
	}
}

// broadcast delivers event to every subscribed client. State-change events
// are not droppable: a client whose
// outbound queue is full is disconnected rather than silently falling
// behind.
func (m *sessionManager) broadcast(event api.DaemonEvent) {
	live := m.sessions[:0]
	for _, s := range m.sessions {
		if !s.subscribed {
			live = append(live, s)
			continue
		}
		select {
		case s.events <- event:
			live = append(live, s)
		default:
			close(s.events)
			close(s.ptyOut)
		}
	}
	m.sessions = live
}

// broadcastPTY delivers a PTY byte chunk to every subscribed client. PTY
// bytes are droppable: the ring buffer will
// re-snapshot on reconnect, so a full queue just drops this chunk for that
// client rather than disconnecting it.
func (m *sessionManager) broadcastPTY(chunk PTYChunk) {
	for _, s := range m.sessions {
		if !s.subscribed {
			continue
		}
		select {
		case s.ptyOut <- chunk:
		default:
		}
	}
}

// sendTo delivers event to one client by id regardless of its subscription
// flag (used for direct request/response pairs, e.g. StateSnapshot on
// Subscribe). Returns false if the client is gone or its queue is full.
func (m *sessionManager) sendTo(id int, event api.DaemonEvent) bool {
	for _, s := range m.sessions {
		if s.id != id {
			continue
		}
		select {
		case s.events <- event:
			return true
		default:
			return false
		}
	}
	return false
}

func (m *sessionManager) count() int {
	return len(m.sessions)
}
