package debughttp

import (
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clhorde/clhorde/internal/api"
)

type fakeOrch struct{ state api.DaemonState }

func (f *fakeOrch) Submit(sessionID int, req api.ClientRequest, reply chan api.DaemonEvent) {
	if req.Type != api.ReqGetState {
		return
	}
	state := f.state
	reply <- api.DaemonEvent{Type: api.EvtStateSnapshot, State: &state}
}

func newTestServer(orch StateSource) *Server {
	return New("127.0.0.1:0", orch, log.New(testDiscard{}, "", 0))
}

type testDiscard struct{}

func (testDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestHealthzReportsOK(t *testing.T) {
	s := newTestServer(&fakeOrch{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok\n" {
		t.Fatalf("got body %q", rec.Body.String())
	}
}

func TestMetricsReportsCountsByStatus(t *testing.T) {
	orch := &fakeOrch{state: api.DaemonState{
		MaxWorkers:    4,
		ActiveWorkers: 1,
		Prompts: []api.PromptInfo{
			{ID: 1, Status: api.StatusRunning},
			{ID: 2, Status: api.StatusPending},
			{ID: 3, Status: api.StatusPending},
		},
	}}
	s := newTestServer(orch)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"pending":2`) || !strings.Contains(body, `"running":1`) {
		t.Fatalf("got body %q, want pending=2 running=1", body)
	}
}
