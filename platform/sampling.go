package platform

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/netra-systems/zen-sub153/mcp"
)

// CannedModel is the model name reported by CannedSampler.
const CannedModel = "netra-canned"

// CannedSampler answers every sampling request with fixed text. It is the
// default when no model backend is configured.
type CannedSampler struct{}

// CreateMessage implements Sampler.
func (CannedSampler) CreateMessage(_ context.Context, _ *mcp.CreateMessageRequest) (*mcp.CreateMessageResult, error) {
	return &mcp.CreateMessageResult{
		Role:       mcp.RoleAssistant,
		Content:    mcp.TextContent("Sampling is not configured on this server; this is a placeholder response."),
		Model:      CannedModel,
		StopReason: "endTurn",
	}, nil
}

// OpenAISampler forwards sampling requests to an OpenAI-compatible chat
// completions endpoint.
type OpenAISampler struct {
	client *openai.Client
	model  string
}

// OpenAIConfig configures NewOpenAISampler.
type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a gateway or a test server.
	BaseURL string
	// Model is used when the request carries no model hint.
	Model string
}

// NewOpenAISampler returns a sampler backed by go-openai.
func NewOpenAISampler(cfg OpenAIConfig) (*OpenAISampler, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAISampler{client: openai.NewClientWithConfig(oc), model: cfg.Model}, nil
}

// CreateMessage implements Sampler.
func (s *OpenAISampler) CreateMessage(ctx context.Context, req *mcp.CreateMessageRequest) (*mcp.CreateMessageResult, error) {
	model := s.model
	if req.ModelPreferences != nil {
		for _, h := range req.ModelPreferences.Hints {
			if h.Name != "" {
				model = h.Name
				break
			}
		}
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == mcp.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content.Text})
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Stop:        req.StopSequences,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}
	choice := resp.Choices[0]
	return &mcp.CreateMessageResult{
		Role:       mcp.RoleAssistant,
		Content:    mcp.TextContent(choice.Message.Content),
		Model:      resp.Model,
		StopReason: stopReason(choice.FinishReason),
	}, nil
}

func stopReason(r openai.FinishReason) string {
	switch r {
	case openai.FinishReasonStop:
		return "endTurn"
	case openai.FinishReasonLength:
		return "maxTokens"
	case "":
		return ""
	default:
		return string(r)
	}
}
