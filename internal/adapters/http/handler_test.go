package httpadapter_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/chatrelay/internal/adapters/gateway"
	httpadapter "github.com/PabloGalante/chatrelay/internal/adapters/http"
	"github.com/PabloGalante/chatrelay/internal/adapters/llm"
	"github.com/PabloGalante/chatrelay/internal/app/chatsession"
	"github.com/PabloGalante/chatrelay/internal/app/relay"
	"github.com/PabloGalante/chatrelay/internal/domain"
)

type stubLLM struct {
	reply string
	err   error
}

func (s stubLLM) GenerateReply(context.Context, string) (string, error) {
	return s.reply, s.err
}

func newTestServer(t *testing.T, client domain.LLMClient, opts ...httpadapter.Option) (http.Handler, *chatsession.Store) {
	t.Helper()

	relaySvc := relay.NewService(client)
	store := chatsession.NewStore(relaySvc,
		chatsession.WithInitialThreads("Project Ideas", "Python Help"),
		chatsession.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	return httpadapter.NewServer(relaySvc, store, opts...), store
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body=%s", w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockLLM())

	w := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

// ─────────────────────────────────────────────
// POST /api/chat
// ─────────────────────────────────────────────

func TestChatSuccess(t *testing.T) {
	srv, _ := newTestServer(t, stubLLM{reply: "hi there"})

	w := do(t, srv, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"reply": "hi there"}, decode[map[string]string](t, w))
}

func TestChatNoResponse(t *testing.T) {
	srv, _ := newTestServer(t, stubLLM{})

	w := do(t, srv, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, relay.NoResponse, decode[map[string]string](t, w)["reply"])
}

func TestChatUpstreamError(t *testing.T) {
	srv, _ := newTestServer(t, stubLLM{err: errors.New("API key not valid")})

	w := do(t, srv, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["reply"], "API key not valid")
}

func TestChatInvalidBody(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockLLM())

	w := do(t, srv, http.MethodPost, "/api/chat", `{"message":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid JSON body", decode[map[string]string](t, w)["reply"])
}

func TestChatWrongMethod(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockLLM())

	w := do(t, srv, http.MethodGet, "/api/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestGatewayClientAgainstServer(t *testing.T) {
	okSrv, _ := newTestServer(t, stubLLM{reply: "hi there"})
	ts := httptest.NewServer(okSrv)
	defer ts.Close()

	reply, err := gateway.NewClient(ts.URL).Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)

	failSrv, _ := newTestServer(t, stubLLM{err: errors.New("quota exceeded")})
	ts2 := httptest.NewServer(failSrv)
	defer ts2.Close()

	_, err = gateway.NewClient(ts2.URL).Complete(context.Background(), "hello")
	require.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Contains(t, err.Error(), "quota exceeded")
}

// ─────────────────────────────────────────────
// GET /api/test
// ─────────────────────────────────────────────

func TestKeyStatus(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockLLM())
	w := do(t, srv, http.MethodGet, "/api/test", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "NOT FOUND", decode[map[string]string](t, w)["key"])

	srv, _ = newTestServer(t, llm.NewMockLLM(), httpadapter.WithGeminiKey("AIzaSyExample1234"))
	w = do(t, srv, http.MethodGet, "/api/test", "")
	key := decode[map[string]string](t, w)["key"]
	assert.Equal(t, "AIza...1234", key)
	assert.NotContains(t, key, "SyExample")
}

// ─────────────────────────────────────────────
// Session API
// ─────────────────────────────────────────────

type threadJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type messageJSON struct {
	ID       int64  `json:"id"`
	ThreadID int64  `json:"thread_id"`
	Sender   string `json:"sender"`
	Text     string `json:"text"`
}

type sessionJSON struct {
	Threads        []threadJSON  `json:"threads"`
	ActiveThreadID int64         `json:"active_thread_id"`
	Messages       []messageJSON `json:"messages"`
	Pending        bool          `json:"pending"`
}

type sendJSON struct {
	ThreadID         int64       `json:"thread_id"`
	UserMessage      messageJSON `json:"user_message"`
	AssistantMessage messageJSON `json:"assistant_message"`
}

func TestGetSessionInitialState(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockLLM())

	w := do(t, srv, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, w.Code)

	state := decode[sessionJSON](t, w)
	require.Len(t, state.Threads, 2)
	assert.Equal(t, "Project Ideas", state.Threads[0].Name)
	assert.Equal(t, state.Threads[0].ID, state.ActiveThreadID)
	assert.Empty(t, state.Messages)
	assert.False(t, state.Pending)
}

func TestCreateThreadAndSendMessage(t *testing.T) {
	srv, store := newTestServer(t, stubLLM{reply: "hi there"})

	w := do(t, srv, http.MethodPost, "/api/threads", `{"name":"A"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	thread := decode[threadJSON](t, w)
	assert.Equal(t, "A", thread.Name)

	w = do(t, srv, http.MethodPost, "/api/session/messages", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sent := decode[sendJSON](t, w)
	assert.Equal(t, thread.ID, sent.ThreadID)
	assert.Equal(t, "user", sent.UserMessage.Sender)
	assert.Equal(t, "hello", sent.UserMessage.Text)
	assert.Equal(t, "assistant", sent.AssistantMessage.Sender)
	assert.Equal(t, "hi there", sent.AssistantMessage.Text)

	w = do(t, srv, http.MethodGet, "/api/session", "")
	state := decode[sessionJSON](t, w)
	require.Len(t, state.Threads, 3)
	assert.Equal(t, thread.ID, state.Threads[0].ID)
	require.Len(t, state.Messages, 2)

	msgs, err := store.Messages(domain.ThreadID(thread.ID))
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestCreateThreadWithoutBody(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockLLM())

	w := do(t, srv, http.MethodPost, "/api/threads", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, domain.DefaultThreadName, decode[threadJSON](t, w).Name)
}

func TestSendMessageBlankText(t *testing.T) {
	srv, store := newTestServer(t, llm.NewMockLLM())

	w := do(t, srv, http.MethodPost, "/api/session/messages", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.Snapshot().ActiveMessages())
}

func TestSendMessageGatewayFailure(t *testing.T) {
	srv, _ := newTestServer(t, stubLLM{err: errors.New("unreachable")})

	w := do(t, srv, http.MethodPost, "/api/session/messages", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, chatsession.DefaultPlaceholder, decode[sendJSON](t, w).AssistantMessage.Text)
}

func TestSetActiveThread(t *testing.T) {
	srv, store := newTestServer(t, llm.NewMockLLM())
	second := store.Threads()[1].ID

	w := do(t, srv, http.MethodPut, "/api/threads/active", `{"id":`+jsonInt(int64(second))+`}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, second, store.ActiveThreadID())

	w = do(t, srv, http.MethodPut, "/api/threads/active", `{"id":999}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, second, store.ActiveThreadID())
}

func TestRenameThread(t *testing.T) {
	srv, store := newTestServer(t, llm.NewMockLLM())
	id := store.ActiveThreadID()

	w := do(t, srv, http.MethodPatch, "/api/threads/"+jsonInt(int64(id)), `{"name":"Renamed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renamed", decode[threadJSON](t, w).Name)

	w = do(t, srv, http.MethodPatch, "/api/threads/999", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestThreadMessagesAndClear(t *testing.T) {
	srv, store := newTestServer(t, stubLLM{reply: "pong"})
	threads := store.Threads()
	first, second := threads[0].ID, threads[1].ID

	_, err := store.SendMessage(context.Background(), "ping")
	require.NoError(t, err)
	require.NoError(t, store.SetActiveThread(second))
	_, err = store.SendMessage(context.Background(), "other")
	require.NoError(t, err)

	path := "/api/threads/" + jsonInt(int64(first)) + "/messages"
	w := do(t, srv, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode[[]messageJSON](t, w)
	require.Len(t, msgs, 2)
	assert.Equal(t, "ping", msgs[0].Text)
	assert.Equal(t, "pong", msgs[1].Text)

	w = do(t, srv, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodGet, path, "")
	assert.Empty(t, decode[[]messageJSON](t, w))

	other, err := store.Messages(second)
	require.NoError(t, err)
	assert.Len(t, other, 2)
}

func TestThreadRoutesUnknownID(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockLLM())

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/threads/999/messages"},
		{http.MethodDelete, "/api/threads/999/messages"},
		{http.MethodGet, "/api/threads/abc/messages"},
	} {
		w := do(t, srv, tc.method, tc.path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", tc.method, tc.path)
	}
}

// ─────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockLLM())

	w := do(t, srv, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockLLM())

	w := do(t, srv, http.MethodOptions, "/api/chat", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

type panicLLM struct{}

func (panicLLM) GenerateReply(context.Context, string) (string, error) {
	panic("boom")
}

func TestRecoverFromPanic(t *testing.T) {
	srv, _ := newTestServer(t, panicLLM{})

	w := do(t, srv, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
