package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/PabloGalante/chatrelay/internal/app/chatsession"
	"github.com/PabloGalante/chatrelay/internal/app/relay"
	"github.com/PabloGalante/chatrelay/internal/domain"
	"github.com/PabloGalante/chatrelay/internal/observability"
)

const maxRequestBody = 1 << 20

type Server struct {
	relay     *relay.Service
	store     *chatsession.Store
	geminiKey string
}

type Option func(*Server)

// WithGeminiKey lets GET /api/test report whether a key is configured.
func WithGeminiKey(key string) Option {
	return func(s *Server) {
		s.geminiKey = key
	}
}

// NewServer exposes the chat proxy route and the session API of store.
func NewServer(relaySvc *relay.Service, store *chatsession.Store, opts ...Option) http.Handler {
	s := &Server{relay: relaySvc, store: store}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	// proxy route in front of the completion service
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/test", s.handleTest)

	// session API
	mux.HandleFunc("GET /api/session", s.handleGetSession)
	mux.HandleFunc("POST /api/session/messages", s.handleSendMessage)
	mux.HandleFunc("POST /api/threads", s.handleCreateThread)
	mux.HandleFunc("PUT /api/threads/active", s.handleSetActiveThread)
	mux.HandleFunc("PATCH /api/threads/{id}", s.handleRenameThread)
	mux.HandleFunc("GET /api/threads/{id}/messages", s.handleGetMessages)
	mux.HandleFunc("DELETE /api/threads/{id}/messages", s.handleClearThread)

	return chainMiddlewares(mux, withRecover, withLogging, withRequestID, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type threadResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type messageResponse struct {
	ID        int64     `json:"id"`
	ThreadID  int64     `json:"thread_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	Threads        []threadResponse  `json:"threads"`
	ActiveThreadID int64             `json:"active_thread_id"`
	Messages       []messageResponse `json:"messages"`
	Pending        bool              `json:"pending"`
}

type createThreadRequest struct {
	Name string `json:"name"`
}

type setActiveThreadRequest struct {
	ID int64 `json:"id"`
}

type renameThreadRequest struct {
	Name string `json:"name"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	ThreadID         int64           `json:"thread_id"`
	UserMessage      messageResponse `json:"user_message"`
	AssistantMessage messageResponse `json:"assistant_message"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, chatResponse{Reply: "invalid JSON body"})
		return
	}

	reply, err := s.relay.Reply(r.Context(), req.Message)
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "Internal error"
		}
		writeJSON(w, http.StatusInternalServerError, chatResponse{Reply: msg})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"key": maskKey(s.geminiKey)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state := s.store.Snapshot()

	resp := sessionResponse{
		Threads:        toThreadsResponse(state.Threads),
		ActiveThreadID: int64(state.ActiveThreadID),
		Messages:       toMessagesResponse(state.ActiveMessages()),
		Pending:        state.Pending,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	out, err := s.store.SendMessage(r.Context(), req.Text)
	if errors.Is(err, domain.ErrEmptyInput) {
		badRequest(w, "text is required")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}

	resp := sendMessageResponse{
		ThreadID:         int64(out.ThreadID),
		UserMessage:      toMessageResponse(out.UserMessage),
		AssistantMessage: toMessageResponse(out.AssistantMessage),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
	}

	thread, err := s.store.Thread(s.store.CreateThread(req.Name))
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toThreadResponse(thread))
}

func (s *Server) handleSetActiveThread(w http.ResponseWriter, r *http.Request) {
	var req setActiveThreadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if err := s.store.SetActiveThread(domain.ThreadID(req.ID)); err != nil {
		s.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameThread(w http.ResponseWriter, r *http.Request) {
	id, ok := threadIDFromPath(w, r)
	if !ok {
		return
	}

	var req renameThreadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if err := s.store.RenameThread(id, req.Name); err != nil {
		s.storeError(w, r, err)
		return
	}

	thread, err := s.store.Thread(id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toThreadResponse(thread))
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := threadIDFromPath(w, r)
	if !ok {
		return
	}

	msgs, err := s.store.Messages(id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessagesResponse(msgs))
}

func (s *Server) handleClearThread(w http.ResponseWriter, r *http.Request) {
	id, ok := threadIDFromPath(w, r)
	if !ok {
		return
	}

	if err := s.store.ClearThread(id); err != nil {
		s.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrInvalidThreadID) {
		notFound(w, "thread not found")
		return
	}
	internalError(w, r, err)
}

// ─────────────────────────────────────────────
// Conversion Helpers
// ─────────────────────────────────────────────

func toThreadResponse(t domain.ChatThread) threadResponse {
	return threadResponse{
		ID:        int64(t.ID),
		Name:      t.Name,
		CreatedAt: t.CreatedAt,
	}
}

func toThreadsResponse(threads []domain.ChatThread) []threadResponse {
	out := make([]threadResponse, 0, len(threads))
	for _, t := range threads {
		out = append(out, toThreadResponse(t))
	}
	return out
}

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		ID:        int64(m.ID),
		ThreadID:  int64(m.ThreadID),
		Sender:    string(m.Sender),
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

func toMessagesResponse(msgs []domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

// maskKey keeps the first and last four characters of key.
func maskKey(key string) string {
	if key == "" {
		return "NOT FOUND"
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func threadIDFromPath(w http.ResponseWriter, r *http.Request) (domain.ThreadID, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		notFound(w, "thread not found")
		return 0, false
	}
	return domain.ThreadID(id), true
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}
