package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/numera-ai/numera/internal/agent"
	"github.com/numera-ai/numera/internal/observability"
	"github.com/numera-ai/numera/internal/sessions"
	"github.com/numera-ai/numera/pkg/models"
)

// scriptedProvider returns one canned text-only completion per call.
type scriptedProvider struct {
	replies []string
	calls   int
}

func (p *scriptedProvider) Name() string          { return "scripted" }
func (p *scriptedProvider) Models() []agent.Model { return nil }

func (p *scriptedProvider) Complete(_ context.Context, _ *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	reply := "done"
	if p.calls < len(p.replies) {
		reply = p.replies[p.calls]
	}
	p.calls++

	out := make(chan *agent.CompletionChunk, 2)
	out <- &agent.CompletionChunk{Text: reply}
	out <- &agent.CompletionChunk{Done: true}
	close(out)
	return out, nil
}

func newTestServer(t *testing.T, store sessions.Store) *Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	loop, err := agent.NewLoop(&scriptedProvider{replies: []string{"the books balance"}}, agent.NewToolRegistry(), store, nil, logger, nil)
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	server, err := NewServer(Config{}, loop, store, logger, nil, nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, nil)
	ts := httptest.NewServer(server.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestChatStreamSSE(t *testing.T) {
	store := sessions.NewMemoryStore()
	server := newTestServer(t, store)
	ts := httptest.NewServer(server.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/chat/stream", "application/json",
		strings.NewReader(`{"session_key": "web:test", "message": "do the books balance?"}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	var eventTypes []string
	var sawDelta bool
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if after, ok := strings.CutPrefix(line, "event: "); ok {
			eventTypes = append(eventTypes, after)
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, "the books balance") {
			sawDelta = true
		}
	}

	want := []string{"run.started", "step.started", "model.delta", "step.finished", "run.terminated"}
	if len(eventTypes) != len(want) {
		t.Fatalf("event types = %v, want %v", eventTypes, want)
	}
	for i := range want {
		if eventTypes[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, eventTypes[i], want[i])
		}
	}
	if !sawDelta {
		t.Errorf("model.delta payload did not carry the reply text")
	}

	// The exchange was persisted against the keyed session.
	session, err := store.GetByKey(context.Background(), "web:test")
	if err != nil {
		t.Fatalf("session not created: %v", err)
	}
	history, err := store.GetHistory(context.Background(), session.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 2 || history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Errorf("persisted history = %+v", history)
	}
}

func TestChatStreamRejectsEmptyMessage(t *testing.T) {
	server := newTestServer(t, nil)
	ts := httptest.NewServer(server.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/chat/stream", "application/json",
		strings.NewReader(`{"message": "   "}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChatStreamUnknownSession(t *testing.T) {
	server := newTestServer(t, sessions.NewMemoryStore())
	ts := httptest.NewServer(server.Routes())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/chat/stream", "application/json",
		strings.NewReader(`{"session_id": "nope", "message": "hi"}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestChatWebSocket(t *testing.T) {
	server := newTestServer(t, sessions.NewMemoryStore())
	ts := httptest.NewServer(server.Routes())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	request := wsFrame{Type: "chat", Chat: &chatRequest{SessionKey: "ws:test", Message: "summarize march"}}
	if err := conn.WriteJSON(request); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var eventTypes []string
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read failed after %v: %v", eventTypes, err)
		}
		switch frame.Type {
		case "event":
			eventTypes = append(eventTypes, string(frame.Event.Type))
		case "done":
			want := []string{"run.started", "step.started", "model.delta", "step.finished", "run.terminated"}
			if len(eventTypes) != len(want) {
				t.Fatalf("event types = %v, want %v", eventTypes, want)
			}
			return
		case "error":
			t.Fatalf("unexpected error frame: %s", frame.Error)
		}
	}
}

func TestListSessions(t *testing.T) {
	store := sessions.NewMemoryStore()
	server := newTestServer(t, store)
	ts := httptest.NewServer(server.Routes())
	defer ts.Close()

	if _, err := store.GetOrCreate(context.Background(), "a"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := store.GetOrCreate(context.Background(), "b"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	resp, err := http.Get(ts.URL + "/v1/sessions?limit=1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Sessions []models.Session `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(body.Sessions) != 1 {
		t.Errorf("sessions = %+v", body.Sessions)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	logger := slog.New(slog.DiscardHandler)

	loop, err := agent.NewLoop(&scriptedProvider{}, agent.NewToolRegistry(), nil, nil, logger, metrics)
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	server, err := NewServer(Config{}, loop, nil, logger, metrics, registry)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(server.Routes())
	defer ts.Close()

	// One request through an instrumented route populates the HTTP metrics.
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(body), "numera_http_requests_total") {
		t.Errorf("metrics output missing numera_http_requests_total")
	}
}
