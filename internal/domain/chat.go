package domain

// ChatThread is one independent conversation with its own message list.
type ChatThread struct {
	ID        ThreadID
	Name      string
	CreatedAt Timestamp
}

// Message is a single entry of a thread's timeline (user or assistant).
// It is never mutated after being appended.
type Message struct {
	ID        MessageID
	ThreadID  ThreadID
	Sender    Sender
	Text      string
	CreatedAt Timestamp
}

// SessionState is a point-in-time copy of everything the presentation layer renders.
type SessionState struct {
	// Threads are ordered newest first, like the sidebar shows them
	Threads            []ChatThread
	ActiveThreadID     ThreadID
	MessagesByThreadID map[ThreadID][]Message
	Pending            bool
}

// ActiveMessages returns the message list of the active thread.
func (s SessionState) ActiveMessages() []Message {
	return s.MessagesByThreadID[s.ActiveThreadID]
}

// ActiveThread returns the active thread, false if it is not in Threads.
func (s SessionState) ActiveThread() (ChatThread, bool) {
	for _, t := range s.Threads {
		if t.ID == s.ActiveThreadID {
			return t, true
		}
	}
	return ChatThread{}, false
}
