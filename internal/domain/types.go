package domain

import "time"

type ThreadID int64
type MessageID int64

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// DefaultThreadName is used when a thread is created or renamed without a name.
const DefaultThreadName = "New Chat"

type Timestamp = time.Time
