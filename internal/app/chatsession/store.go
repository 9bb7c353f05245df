package chatsession

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PabloGalante/chatrelay/internal/domain"
	"github.com/PabloGalante/chatrelay/internal/observability"
)

const (
	DefaultPlaceholder    = "Backend not reachable"
	DefaultRequestTimeout = 60 * time.Second
)

// Store owns the chat session state: threads, the active thread and every
// thread's messages. It is safe for concurrent use. Each transition is
// applied under one lock; the lock is never held across a gateway call.
type Store struct {
	gateway     domain.CompletionGateway
	placeholder string
	timeout     time.Duration
	now         func() time.Time
	log         *slog.Logger

	mu            sync.Mutex
	threads       []domain.ChatThread // newest first
	active        domain.ThreadID
	messages      map[domain.ThreadID][]domain.Message
	nextMessageID map[domain.ThreadID]domain.MessageID
	lastThreadID  domain.ThreadID
	inFlight      int

	// lanes holds, per thread, the completion channel of the most recent
	// send. A send waits on its predecessor before calling the gateway, so
	// replies of one thread land in send order.
	lanes map[domain.ThreadID]chan struct{}
}

type Option func(*Store)

// WithInitialThreads seeds the store with threads in the given order; the
// first one becomes active.
func WithInitialThreads(names ...string) Option {
	return func(s *Store) {
		for _, name := range names {
			s.addThreadLocked(name, false)
		}
	}
}

// WithPlaceholder sets the assistant text used when the gateway fails.
func WithPlaceholder(text string) Option {
	return func(s *Store) {
		if text != "" {
			s.placeholder = text
		}
	}
}

// WithRequestTimeout bounds each gateway call. Zero or negative disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore builds a store on top of gateway. Without WithInitialThreads it
// starts with a single empty thread, so there is always an active thread.
func NewStore(gateway domain.CompletionGateway, opts ...Option) *Store {
	s := &Store{
		gateway:       gateway,
		placeholder:   DefaultPlaceholder,
		timeout:       DefaultRequestTimeout,
		now:           time.Now,
		log:           observability.Logger(),
		messages:      make(map[domain.ThreadID][]domain.Message),
		nextMessageID: make(map[domain.ThreadID]domain.MessageID),
		lanes:         make(map[domain.ThreadID]chan struct{}),
	}

	// options
	for _, opt := range opts {
		opt(s)
	}

	if len(s.threads) == 0 {
		s.addThreadLocked(domain.DefaultThreadName, false)
	}
	s.active = s.threads[0].ID

	return s
}

// CreateThread adds an empty thread at the front of the list and makes it
// active. A blank name becomes domain.DefaultThreadName.
func (s *Store) CreateThread(name string) domain.ThreadID {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread := s.addThreadLocked(name, true)
	s.active = thread.ID

	s.log.Info("thread created", "thread_id", thread.ID, "name", thread.Name)
	return thread.ID
}

func (s *Store) SetActiveThread(id domain.ThreadID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasThreadLocked(id) {
		return fmt.Errorf("set active thread %d: %w", id, domain.ErrInvalidThreadID)
	}
	s.active = id
	return nil
}

func (s *Store) RenameThread(id domain.ThreadID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.threads {
		if s.threads[i].ID == id {
			s.threads[i].Name = threadName(name)
			return nil
		}
	}
	return fmt.Errorf("rename thread %d: %w", id, domain.ErrInvalidThreadID)
}

// ClearThread empties the message list of id. The thread itself stays, and
// replies still in flight for it are appended when they arrive.
func (s *Store) ClearThread(id domain.ThreadID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(id)
}

func (s *Store) ClearActiveThread() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(s.active)
}

func (s *Store) clearLocked(id domain.ThreadID) error {
	if !s.hasThreadLocked(id) {
		return fmt.Errorf("clear thread %d: %w", id, domain.ErrInvalidThreadID)
	}
	s.messages[id] = []domain.Message{}

	s.log.Info("thread cleared", "thread_id", id)
	return nil
}

type SendOutput struct {
	ThreadID         domain.ThreadID
	UserMessage      domain.Message
	AssistantMessage domain.Message

	// Err is the gateway failure that was replaced by the placeholder, nil on success.
	Err error
}

// SendMessage appends text as a user message to the active thread, asks the
// gateway for a reply and appends it to that same thread, whatever thread is
// active by then. Gateway failures are not returned: they produce a
// placeholder assistant message and are reported in SendOutput.Err.
//
// Blank text returns domain.ErrEmptyInput without touching any state. The
// gateway call ignores ctx cancellation; it is only bounded by the store's
// request timeout.
func (s *Store) SendMessage(ctx context.Context, text string) (*SendOutput, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyInput
	}

	s.mu.Lock()
	threadID := s.active
	userMsg := s.appendLocked(threadID, domain.SenderUser, text)
	s.inFlight++
	prev := s.lanes[threadID]
	done := make(chan struct{})
	s.lanes[threadID] = done
	s.mu.Unlock()

	log := s.log.With("thread_id", threadID)
	if reqID := observability.RequestID(ctx); reqID != "" {
		log = log.With("request_id", reqID)
	}
	log.Info("sending message", "message_id", userMsg.ID)

	if prev != nil {
		<-prev
	}

	start := s.now()
	reply, err := s.complete(ctx, text)
	if err != nil {
		log.Error("completion failed, using placeholder", "error", err)
		reply = s.placeholder
	}

	s.mu.Lock()
	assistantMsg := s.appendLocked(threadID, domain.SenderAssistant, reply)
	s.inFlight--
	if s.lanes[threadID] == done {
		delete(s.lanes, threadID)
	}
	s.mu.Unlock()
	close(done)

	log.Info("send message completed",
		"message_id", assistantMsg.ID,
		"elapsed_ms", s.now().Sub(start).Milliseconds(),
		"placeholder", err != nil,
	)

	return &SendOutput{
		ThreadID:         threadID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Err:              err,
	}, nil
}

func (s *Store) complete(ctx context.Context, prompt string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: gateway panic: %v", domain.ErrGatewayUnavailable, r)
		}
	}()

	callCtx := context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, s.timeout)
		defer cancel()
	}

	return s.gateway.Complete(callCtx, prompt)
}

// ─────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	byThread := make(map[domain.ThreadID][]domain.Message, len(s.messages))
	for id, msgs := range s.messages {
		byThread[id] = cloneMessages(msgs)
	}

	return domain.SessionState{
		Threads:            s.threadsLocked(),
		ActiveThreadID:     s.active,
		MessagesByThreadID: byThread,
		Pending:            s.inFlight > 0,
	}
}

func (s *Store) Threads() []domain.ChatThread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadsLocked()
}

func (s *Store) ActiveThreadID() domain.ThreadID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Store) ActiveThread() domain.ChatThread {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.threads {
		if t.ID == s.active {
			return t
		}
	}
	return domain.ChatThread{}
}

func (s *Store) Thread(id domain.ThreadID) (domain.ChatThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.threads {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.ChatThread{}, fmt.Errorf("thread %d: %w", id, domain.ErrInvalidThreadID)
}

func (s *Store) Messages(id domain.ThreadID) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("messages of thread %d: %w", id, domain.ErrInvalidThreadID)
	}
	return cloneMessages(msgs), nil
}

// Pending reports whether any send is waiting for its reply.
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight > 0
}

// ThreadPending reports whether a send on id is waiting for its reply.
func (s *Store) ThreadPending(id domain.ThreadID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lanes[id]
	return ok
}

// ─────────────────────────────────────────────
// Helpers (callers hold s.mu)
// ─────────────────────────────────────────────

func (s *Store) addThreadLocked(name string, front bool) domain.ChatThread {
	s.lastThreadID++
	thread := domain.ChatThread{
		ID:        s.lastThreadID,
		Name:      threadName(name),
		CreatedAt: s.now(),
	}

	if front {
		s.threads = append([]domain.ChatThread{thread}, s.threads...)
	} else {
		s.threads = append(s.threads, thread)
	}
	s.messages[thread.ID] = []domain.Message{}
	return thread
}

func (s *Store) hasThreadLocked(id domain.ThreadID) bool {
	_, ok := s.messages[id]
	return ok
}

func (s *Store) appendLocked(threadID domain.ThreadID, sender domain.Sender, text string) domain.Message {
	s.nextMessageID[threadID]++
	msg := domain.Message{
		ID:        s.nextMessageID[threadID],
		ThreadID:  threadID,
		Sender:    sender,
		Text:      text,
		CreatedAt: s.now(),
	}
	s.messages[threadID] = append(s.messages[threadID], msg)
	return msg
}

func (s *Store) threadsLocked() []domain.ChatThread {
	out := make([]domain.ChatThread, len(s.threads))
	copy(out, s.threads)
	return out
}

func cloneMessages(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

func threadName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.DefaultThreadName
	}
	return name
}
