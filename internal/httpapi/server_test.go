package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ryym/procfleet/internal/auth"
	"github.com/ryym/procfleet/internal/config"
	"github.com/ryym/procfleet/internal/registry"
	"github.com/ryym/procfleet/internal/supervisor"
)

func newTestServer() *Server {
	reg := registry.New()
	checker := auth.New(&config.Settings{})
	return New(reg, checker)
}

func TestHandleCreate_StartsByDefault(t *testing.T) {
	s := newTestServer()

	body, _ := json.Marshal(createRequest{Name: "echoer", Command: []string{"sh", "-c", "echo hi; sleep 5"}})
	req := httptest.NewRequest(http.MethodPost, "/procs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var d supervisor.Descriptor
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.PID == nil {
		t.Error("expected a non-nil PID for a started process")
	}

	sv, err := s.reg.Get("echoer")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	_ = sv.Stop(true)
}

func TestHandleCreate_DuplicateNameIs400(t *testing.T) {
	s := newTestServer()
	if _, err := s.reg.Insert("web", []string{"sleep", "5"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	body, _ := json.Marshal(createRequest{Name: "web", Command: []string{"sleep", "5"}})
	req := httptest.NewRequest(http.MethodPost, "/procs?start=false", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGet_UnknownIs404(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/procs/ghost", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandleList_ReturnsAllDescriptors(t *testing.T) {
	s := newTestServer()
	if _, err := s.reg.Insert("a", []string{"sleep", "5"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.reg.Insert("b", []string{"sleep", "5"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/procs", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var descriptors []supervisor.Descriptor
	if err := json.Unmarshal(rec.Body.Bytes(), &descriptors); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(descriptors) != 2 {
		t.Errorf("expected 2 descriptors, got %d", len(descriptors))
	}
}

func TestHandleTail_ReturnsBufferedRecords(t *testing.T) {
	s := newTestServer()
	sv, err := s.reg.Insert("lines", []string{"sh", "-c", "echo one; echo two"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := sv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitUntilStopped(t, sv)

	req := httptest.NewRequest(http.MethodGet, "/procs/lines/tail?n=10", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var records []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestHandleDelete_WhileRunningIs400(t *testing.T) {
	s := newTestServer()
	sv, err := s.reg.Insert("web", []string{"sleep", "5"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := sv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sv.Stop(true)

	req := httptest.NewRequest(http.MethodDelete, "/procs/web", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleWrite_NotRunningIs400(t *testing.T) {
	s := newTestServer()
	if _, err := s.reg.Insert("idle", []string{"sleep", "5"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/procs/idle/write", bytes.NewReader([]byte("ping")))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestAuthMiddleware_MissingAPIKeyIs401(t *testing.T) {
	reg := registry.New()
	checker := auth.New(&config.Settings{APIKey: "secret"})
	s := New(reg, checker)

	req := httptest.NewRequest(http.MethodGet, "/procs", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

// The global auth middleware only checks headers, but tail-stream must stay
// reachable via query-param credentials since a browser WebSocket upgrade
// cannot carry custom headers.
func TestTailStream_QueryAuthBypassesHeaderOnlyMiddleware(t *testing.T) {
	reg := registry.New()
	checker := auth.New(&config.Settings{APIKey: "secret"})
	s := New(reg, checker)

	sv, err := reg.Insert("web", []string{"sleep", "5"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := sv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sv.Stop(true)

	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/procs/web/tail-stream?n=0&api_key=secret"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("expected the upgrade to succeed with a query-param API key, got %v (status %v)", err, statusOf(resp))
	}
	conn.Close()
}

// Without any credentials at all, tail-stream must still reject the upgrade
// rather than silently skipping auth because it sits outside the global
// middleware.
func TestTailStream_MissingCredentialsIsRejected(t *testing.T) {
	reg := registry.New()
	checker := auth.New(&config.Settings{APIKey: "secret"})
	s := New(reg, checker)

	if _, err := reg.Insert("web", []string{"sleep", "5"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/procs/web/tail-stream?n=0"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected the upgrade to be rejected without credentials")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", statusOf(resp))
	}
}

func statusOf(resp *http.Response) any {
	if resp == nil {
		return nil
	}
	return resp.StatusCode
}

func waitUntilStopped(t *testing.T, sv *supervisor.Supervisor) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for sv.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("process did not exit in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
