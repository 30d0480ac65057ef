package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/vovakirdan/roomsync/internal/proto"
	"github.com/vovakirdan/roomsync/internal/store"
)

func doRequest(t *testing.T, env *testEnv, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	env.ts.Config.Handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)

	if resp := doRequest(t, env, http.MethodGet, "/health", "", nil); resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("health: %d %q", resp.Code, resp.Body.String())
	}
	if resp := doRequest(t, env, http.MethodGet, "/ready", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("ready: %d", resp.Code)
	}

	_ = env.store.Close()
	if resp := doRequest(t, env, http.MethodGet, "/ready", "", nil); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with closed store: %d", resp.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	doRequest(t, env, http.MethodGet, "/health", "", nil)
	resp := doRequest(t, env, http.MethodGet, "/metrics", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics: %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte("http_requests_total")) {
		t.Fatalf("metrics output misses request counter")
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	creds := CredentialsRequest{Username: "frank", Password: "password123"}
	if resp := doRequest(t, env, http.MethodPost, "/api/register", "", creds); resp.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", resp.Code, resp.Body.String())
	}
	if resp := doRequest(t, env, http.MethodPost, "/api/register", "", creds); resp.Code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", resp.Code)
	}

	resp := doRequest(t, env, http.MethodPost, "/api/login", "", creds)
	if resp.Code != http.StatusOK {
		t.Fatalf("login: %d %s", resp.Code, resp.Body.String())
	}
	var auth AuthResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &auth); err != nil || auth.Token == "" {
		t.Fatalf("login response: %q, %v", resp.Body.String(), err)
	}

	bad := CredentialsRequest{Username: "frank", Password: "wrong-pass"}
	if resp := doRequest(t, env, http.MethodPost, "/api/login", "", bad); resp.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: %d", resp.Code)
	}
}

func TestCreateAndListRooms(t *testing.T) {
	env := newTestEnv(t, nil)

	token, err := env.auth.Register(context.Background(), "testuser", "password123")
	if err != nil {
		t.Fatalf("failed to register user: %v", err)
	}

	resp := doRequest(t, env, http.MethodPost, "/api/rooms", token, CreateRoomRequest{Name: "my-test-room"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var room RoomResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &room); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if room.Name != "my-test-room" || room.OwnerID == nil {
		t.Fatalf("unexpected room: %+v", room)
	}

	if resp := doRequest(t, env, http.MethodPost, "/api/rooms", "", CreateRoomRequest{Name: "nope"}); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}
	if resp := doRequest(t, env, http.MethodPost, "/api/rooms", token, CreateRoomRequest{Name: "my-test-room"}); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", resp.Code)
	}

	resp = doRequest(t, env, http.MethodGet, "/api/rooms", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list rooms: %d", resp.Code)
	}
	var rooms []RoomResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &rooms); err != nil {
		t.Fatalf("failed to unmarshal rooms: %v", err)
	}
	names := make([]string, 0, len(rooms))
	for _, r := range rooms {
		names = append(names, r.Name)
	}
	if len(names) != 2 || !slices.Contains(names, "general") || !slices.Contains(names, "my-test-room") {
		t.Fatalf("unexpected rooms: %v", names)
	}
}

func TestRoomMessagesEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var ids []int64
	for i := range 3 {
		msg, err := env.store.CreateMessage(ctx, &store.Message{
			Room:      "general",
			Author:    "alice",
			Body:      fmt.Sprintf("m%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("seed message: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	page := func(query string) []string {
		t.Helper()
		resp := doRequest(t, env, http.MethodGet, "/api/rooms/general/messages"+query, "", nil)
		if resp.Code != http.StatusOK {
			t.Fatalf("messages%s: %d %s", query, resp.Code, resp.Body.String())
		}
		var body MessagesResponse
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		texts := make([]string, 0, len(body.Messages))
		for _, m := range body.Messages {
			texts = append(texts, m.Text)
		}
		return texts
	}

	if got := page(""); !slices.Equal(got, []string{"m0", "m1", "m2"}) {
		t.Fatalf("all: %v", got)
	}
	if got := page("?limit=2"); !slices.Equal(got, []string{"m1", "m2"}) {
		t.Fatalf("limit=2: %v", got)
	}
	if got := page(fmt.Sprintf("?before=%d", ids[2])); !slices.Equal(got, []string{"m0", "m1"}) {
		t.Fatalf("before: %v", got)
	}
	if got := page("?limit=1000"); len(got) != 3 {
		t.Fatalf("capped limit: %v", got)
	}

	for _, query := range []string{"?limit=0", "?limit=abc", "?before=-1"} {
		if resp := doRequest(t, env, http.MethodGet, "/api/rooms/general/messages"+query, "", nil); resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, resp.Code)
		}
	}
}

func TestRoomPresenceEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	send(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{User: "gina"})
	send(t, ctx, conn, proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: "general"})
	readUntil(t, ctx, conn, proto.OutboundTypeEvent, proto.EventLoadMessages)

	resp := doRequest(t, env, http.MethodGet, "/api/rooms/general/presence", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("presence: %d", resp.Code)
	}
	var data proto.EventPresenceData
	if err := json.Unmarshal(resp.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !slices.Equal(data.Users, []string{"gina"}) {
		t.Fatalf("presence = %v", data.Users)
	}

	resp = doRequest(t, env, http.MethodGet, "/api/rooms/empty/presence", "", nil)
	if resp.Code != http.StatusOK || !bytes.Contains(resp.Body.Bytes(), []byte(`"users":[]`)) {
		t.Fatalf("empty room presence: %d %s", resp.Code, resp.Body.String())
	}
}

func TestWebSocketEndpointServedOutsideRouter(t *testing.T) {
	env := newTestEnv(t, nil)

	// A plain GET reaches the websocket handler itself, which refuses it.
	rec := doRequest(t, env, http.MethodGet, "/ws", "", nil)
	if rec.Code != http.StatusUpgradeRequired {
		t.Fatalf("GET /ws status = %d, want %d", rec.Code, http.StatusUpgradeRequired)
	}

	rec = doRequest(t, env, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}
}
