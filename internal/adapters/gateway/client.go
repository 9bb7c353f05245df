package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PabloGalante/chatrelay/internal/domain"
)

const (
	chatPath        = "/api/chat"
	jsonContentType = "application/json"
	maxBodySize     = 1 << 20
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the body of every /api/chat answer, success or failure.
type ChatResponse struct {
	Reply *string `json:"reply"`
}

// Client calls a remote /api/chat endpoint. It implements domain.CompletionGateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete posts prompt and returns the reply. Every failure wraps
// domain.ErrGatewayUnavailable.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(ChatRequest{Message: prompt})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %w", domain.ErrGatewayUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", domain.ErrGatewayUnavailable, err)
	}
	req.Header.Set("Content-Type", jsonContentType)
	req.Header.Set("Accept", jsonContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: chat request: %w", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", domain.ErrGatewayUnavailable, err)
	}

	var chatResp ChatResponse
	decodeErr := json.Unmarshal(body, &chatResp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if decodeErr == nil && chatResp.Reply != nil {
			msg = *chatResp.Reply
		}
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrGatewayUnavailable, resp.StatusCode, msg)
	}

	if decodeErr != nil {
		return "", fmt.Errorf("%w: parse response: %w", domain.ErrGatewayUnavailable, decodeErr)
	}
	if chatResp.Reply == nil {
		return "", fmt.Errorf("%w: response has no reply field", domain.ErrGatewayUnavailable)
	}

	return *chatResp.Reply, nil
}
