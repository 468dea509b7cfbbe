package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Campus/internal/app/orch"
	"github.com/dkeye/Campus/internal/auth"
	"github.com/dkeye/Campus/internal/config"
	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/store"
	"github.com/dkeye/Campus/internal/store/sqlite"
	handlers "github.com/dkeye/Campus/internal/transport/http"
)

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		pattern string
		host    string
		want    bool
	}{
		{"*", "anything.example", true},
		{"campus.edu", "campus.edu", true},
		{"campus.edu", "evil.edu", false},
		{"*.campus.edu", "app.campus.edu", true},
		{"*.campus.edu", "campus.edu.evil.com", false},
		{"localhost:*", "localhost:5173", true},
		{"localhost:*", "localhost.evil.com", false},
	}
	for _, tt := range tests {
		if got := matchOrigin(tt.pattern, tt.host); got != tt.want {
			t.Fatalf("matchOrigin(%q, %q) = %v, want %v", tt.pattern, tt.host, got, tt.want)
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	check := CheckOrigin([]string{"localhost:*"})

	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	if !check(req) {
		t.Fatalf("requests without Origin are allowed")
	}
	req.Header.Set("Origin", "http://localhost:3000")
	if !check(req) {
		t.Fatalf("allowlisted origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Fatalf("foreign origin accepted")
	}
}

type nopSignal struct{}

func (nopSignal) TrySend(core.Frame) error { return nil }
func (nopSignal) Close()                   {}

type testRouter struct {
	http.Handler
	auth  *auth.JWTGateway
	store store.PersistenceGateway
	orch  *orch.Orchestrator
}

// joinChat registers a live connection for user and joins it to room.
func (r *testRouter) joinChat(t *testing.T, conn domain.ConnID, user domain.UserID, room domain.RoomID) {
	t.Helper()
	r.orch.Registry.Register(conn, nopSignal{}, nil)
	r.orch.Registry.Identify(conn, domain.Identity{UserID: user})
	if !r.orch.Chat.Join(room, user, conn) {
		t.Fatalf("%s could not join %s", user, room)
	}
}

func newRouter(t *testing.T) *testRouter {
	t.Helper()
	gw, err := auth.NewJWTGateway(auth.JWTConfig{Secret: "router-secret", TTL: time.Hour})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	o := orch.New(orch.Options{}, nil, st)
	t.Cleanup(o.Shutdown)

	cfg := config.Default()
	cfg.Mode = "test"
	return &testRouter{Handler: SetupRouter(context.Background(), &cfg, o, gw), auth: gw, store: st, orch: o}
}

func TestHealth(t *testing.T) {
	r := newRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHistoryRequiresToken(t *testing.T) {
	r := newRouter(t)
	for _, token := range []string{"", "Bearer garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/api/chat/rooms/lobby/messages", nil)
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d, want 401", token, w.Code)
		}
	}
}

func TestHistoryReturnsStoredMessages(t *testing.T) {
	r := newRouter(t)
	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3"} {
		err := r.store.CreateMessage(ctx, &store.Message{
			ID:     id,
			RoomID: "lobby",
			UserID: "alice",
			Body:   json.RawMessage(`{"text":"` + id + `"}`),
		})
		if err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	r.joinChat(t, "b1", "bob", "lobby")
	token, err := r.auth.Issue("bob", "Bob")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chat/rooms/lobby/messages?limit=2&token="+token, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp handlers.HistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].ID != "m2" || resp.Messages[1].ID != "m3" {
		t.Fatalf("want the newest two oldest-first, got %+v", resp.Messages)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/chat/rooms/lobby/messages?limit=zero", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status = %d", w.Code)
	}
}

func TestHistoryRequiresMembership(t *testing.T) {
	r := newRouter(t)
	ctx := context.Background()
	err := r.store.CreateMessage(ctx, &store.Message{
		ID:     "secret",
		RoomID: "private",
		UserID: "alice",
		Body:   json.RawMessage(`{"text":"psst"}`),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	r.joinChat(t, "m1", "mallory", "lobby")
	token, err := r.auth.Issue("mallory", "Mallory")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/chat/rooms/private/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-member history: status = %d, want 403", w.Code)
	}
}
