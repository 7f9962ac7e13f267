package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nstogner/autodev/pkg/domain"
	"github.com/nstogner/autodev/pkg/model"
	"github.com/nstogner/autodev/pkg/session"
	"github.com/nstogner/autodev/pkg/tools"
)

type scriptedChat struct {
	replies []domain.Message
	sends   int
}

func (c *scriptedChat) Send(ctx context.Context, history []domain.Message) (domain.Message, error) {
	i := c.sends
	if i >= len(c.replies) {
		i = len(c.replies) - 1
	}
	c.sends++
	return c.replies[i], nil
}

func (c *scriptedChat) Close() error { return nil }

type scriptedProvider struct {
	replies []domain.Message
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) NewChat(ctx context.Context, cfg model.ChatConfig) (model.Chat, error) {
	return &scriptedChat{replies: p.replies}, nil
}

func assistantText(text string) domain.Message {
	return domain.Message{
		Role:    domain.RoleAssistant,
		Content: []domain.Content{domain.TextContent(text)},
	}
}

func newTestServer(t *testing.T, replies ...domain.Message) (*Server, string) {
	t.Helper()
	if len(replies) == 0 {
		replies = []domain.Message{assistantText("ok")}
	}
	dir := t.TempDir()
	provider := &scriptedProvider{replies: replies}
	reg := session.NewRegistry(func(project string) (*session.Session, error) {
		return session.New(project, session.Config{
			Provider: provider,
			Tools:    tools.NewRegistry(filepath.Join(dir, project)),
			Model:    "test-model",
		}), nil
	})
	t.Cleanup(reg.CleanupAll)

	srv := New(dir, reg, func(ctx context.Context, project string) (domain.FeatureStats, error) {
		return domain.FeatureStats{Passing: 2, InProgress: 1, Total: 5}, nil
	})
	return srv, dir
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateProject(t *testing.T) {
	srv, dir := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/api/projects", map[string]string{"name": "myapp"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if info, err := os.Stat(filepath.Join(dir, "myapp")); err != nil || !info.IsDir() {
		t.Fatalf("project directory not created: %v", err)
	}

	// Creating it again conflicts.
	rec = doJSON(t, h, "POST", "/api/projects", map[string]string{"name": "myapp"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", rec.Code)
	}
}

func TestCreateProjectInvalidName(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	for _, name := range []string{"", "has space", "dot.dot", strings.Repeat("a", 51), "../escape"} {
		rec := doJSON(t, h, "POST", "/api/projects", map[string]string{"name": name})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("name %q: status = %d, want 400", name, rec.Code)
		}
	}
}

func TestListProjects(t *testing.T) {
	srv, dir := newTestServer(t)
	h := srv.Handler()

	for _, name := range []string{"bravo", "alpha"} {
		if err := os.MkdirAll(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	rec := doJSON(t, h, "GET", "/api/projects", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var projects []projectInfo
	if err := json.NewDecoder(rec.Body).Decode(&projects); err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 || projects[0].Name != "alpha" || projects[1].Name != "bravo" {
		t.Fatalf("projects = %+v", projects)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), "GET", "/api/projects/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteProject(t *testing.T) {
	srv, dir := newTestServer(t)
	h := srv.Handler()

	if err := os.MkdirAll(filepath.Join(dir, "myapp"), 0o755); err != nil {
		t.Fatal(err)
	}
	rec := doJSON(t, h, "DELETE", "/api/projects/myapp", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if _, err := os.Stat(filepath.Join(dir, "myapp")); !os.IsNotExist(err) {
		t.Error("project directory still exists")
	}
}

func TestDeleteProjectLocked(t *testing.T) {
	srv, dir := newTestServer(t)
	h := srv.Handler()

	if err := os.MkdirAll(filepath.Join(dir, "myapp"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "myapp", lockFile), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	rec := doJSON(t, h, "DELETE", "/api/projects/myapp", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestDeleteProjectActiveSession(t *testing.T) {
	srv, dir := newTestServer(t)
	h := srv.Handler()

	if err := os.MkdirAll(filepath.Join(dir, "myapp"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := srv.registry.Create("myapp"); err != nil {
		t.Fatal(err)
	}
	rec := doJSON(t, h, "DELETE", "/api/projects/myapp", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestProjectStats(t *testing.T) {
	srv, dir := newTestServer(t)
	h := srv.Handler()

	if err := os.MkdirAll(filepath.Join(dir, "myapp"), 0o755); err != nil {
		t.Fatal(err)
	}
	rec := doJSON(t, h, "GET", "/api/projects/myapp/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var stats domain.FeatureStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Passing != 2 || stats.Total != 5 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestChatWebSocketReconnectSurvivesStaleDisconnect(t *testing.T) {
	srv, dir := newTestServer(t, assistantText("hello"))
	if err := os.MkdirAll(filepath.Join(dir, "myapp"), 0o755); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.Path = "/api/projects/myapp/chat"

	dial := func() *websocket.Conn {
		t.Helper()
		ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		return ws
	}
	readUntilDone := func(ws *websocket.Conn) {
		t.Helper()
		for {
			var c session.Chunk
			if err := ws.ReadJSON(&c); err != nil {
				t.Fatalf("read: %v", err)
			}
			if c.Type == session.ChunkError {
				t.Fatalf("error chunk: %s", c.Content)
			}
			if c.Type == session.ChunkResponseDone {
				return
			}
		}
	}

	// First client connects, then a second connection replaces its session.
	wsA := dial()
	readUntilDone(wsA)

	wsB := dial()
	defer wsB.Close()
	readUntilDone(wsB)

	// The stale first connection disconnects. Its teardown must not tear
	// down the replacement session the second connection is using.
	wsA.Close()
	time.Sleep(50 * time.Millisecond)

	if _, ok := srv.registry.Get("myapp"); !ok {
		t.Fatal("live session removed by stale connection's disconnect")
	}
	if err := wsB.WriteJSON(map[string]string{"content": "still there?"}); err != nil {
		t.Fatal(err)
	}
	readUntilDone(wsB)
}

func TestChatWebSocket(t *testing.T) {
	srv, dir := newTestServer(t, assistantText("hello from the agent"))
	if err := os.MkdirAll(filepath.Join(dir, "myapp"), 0o755); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.Path = "/api/projects/myapp/chat"

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	readUntilDone := func() []session.Chunk {
		var chunks []session.Chunk
		for {
			var c session.Chunk
			if err := ws.ReadJSON(&c); err != nil {
				t.Fatalf("read: %v", err)
			}
			chunks = append(chunks, c)
			if c.Type == session.ChunkResponseDone {
				return chunks
			}
		}
	}

	first := readUntilDone()
	if len(first) < 2 || first[0].Type != session.ChunkText || first[0].Content != "hello from the agent" {
		t.Fatalf("bootstrap chunks = %+v", first)
	}

	if err := ws.WriteJSON(map[string]string{"content": "keep going"}); err != nil {
		t.Fatal(err)
	}
	second := readUntilDone()
	if len(second) < 2 || second[0].Type != session.ChunkText {
		t.Fatalf("reply chunks = %+v", second)
	}
}
