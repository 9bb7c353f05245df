package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/PabloGalante/chatrelay/internal/domain"
	"github.com/PabloGalante/chatrelay/internal/observability"
)

// NoResponse is the reply used when the upstream returns no usable text.
const NoResponse = "No response"

// Service is the logic behind POST /api/chat: one message in, one reply out.
type Service struct {
	llm domain.LLMClient
}

func NewService(llm domain.LLMClient) *Service {
	return &Service{llm: llm}
}

func (s *Service) Reply(ctx context.Context, message string) (string, error) {
	log := observability.LoggerFromContext(ctx)
	start := time.Now()

	text, err := s.llm.GenerateReply(ctx, message)
	if err != nil {
		log.Error("upstream completion failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("generate reply: %w", err)
	}

	if text == "" {
		log.Warn("upstream returned no text")
		text = NoResponse
	}

	log.Info("relayed completion", "prompt_len", len(message), "reply_len", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}

// Complete implements domain.CompletionGateway so a session store can use
// the relay without an HTTP hop.
func (s *Service) Complete(ctx context.Context, prompt string) (string, error) {
	reply, err := s.Reply(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)
	}
	return reply, nil
}
