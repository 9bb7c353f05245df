package domain

import "context"

// LLMClient defines how the relay talks to the hosted completion service.
type LLMClient interface {
	// GenerateReply sends prompt as a single user turn. An empty reply with a
	// nil error means the service returned no usable text.
	GenerateReply(ctx context.Context, prompt string) (string, error)
}

// CompletionGateway is the contract the chat session store depends on:
// one prompt in, one reply out, or an error.
type CompletionGateway interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
