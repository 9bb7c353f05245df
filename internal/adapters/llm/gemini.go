package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// GeminiConfig selects the genai backend. With an APIKey the Gemini API is
// used, otherwise Vertex AI with Project and Location.
type GeminiConfig struct {
	APIKey    string
	Project   string
	Location  string
	ModelName string
}

type GeminiClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiClient creates an LLMClient backed by Gemini.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	clientCfg := &genai.ClientConfig{}
	switch {
	case cfg.APIKey != "":
		clientCfg.APIKey = cfg.APIKey
		clientCfg.Backend = genai.BackendGeminiAPI
	case cfg.Project != "" && cfg.Location != "":
		clientCfg.Project = cfg.Project
		clientCfg.Location = cfg.Location
		clientCfg.Backend = genai.BackendVertexAI
	default:
		return nil, fmt.Errorf("gemini: either an API key or a project and location must be set")
	}

	modelName := cfg.ModelName
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiClient{
		client:    client,
		modelName: modelName,
	}, nil
}

// GenerateReply implements domain.LLMClient. The prompt goes out as a single
// user turn; no history and no system instruction.
func (g *GeminiClient) GenerateReply(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	return firstText(res), nil
}

// firstText extracts the first candidate's first text part, "" if there is none.
func firstText(res *genai.GenerateContentResponse) string {
	if res == nil || len(res.Candidates) == 0 {
		return ""
	}
	cand := res.Candidates[0]
	if cand == nil || cand.Content == nil || len(cand.Content.Parts) == 0 {
		return ""
	}
	part := cand.Content.Parts[0]
	if part == nil {
		return ""
	}
	return part.Text
}
