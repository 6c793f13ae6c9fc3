package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	ctxpkg "github.com/parleychat/parley/internal/context"
	"github.com/parleychat/parley/internal/models"
)

// Token budget for the generation model. The input budget stays below the
// hard context limit by the full output budget, so input plus output never
// exceeds MaxTotalTokens; SafeInputTokens adds further headroom below that.
const (
	MaxTotalTokens  = 8192
	MaxOutputTokens = 1024
	MaxInputTokens  = MaxTotalTokens - MaxOutputTokens
	SafeInputTokens = 7000
)

// messageOverheadTokens approximates the per-message framing the backend
// adds on top of the raw content tokens.
const messageOverheadTokens = 4

const generateTimeout = 30 * time.Second

// Service is the client for the external generation backend. It implements
// both halves of the backend contract: token counting (via the backend's
// tokenizer) and completion generation.
type Service struct {
	llm      llms.Model
	encoding *tiktoken.Tiktoken
}

func New(baseURL, token, model string) (*Service, error) {
	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}

	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	return &Service{llm: llm, encoding: encoding}, nil
}

// CountTokens measures the full window plus the pending message with the
// backend's tokenizer.
func (s *Service) CountTokens(window ctxpkg.Window) (int, error) {
	total := len(s.encoding.Encode(window.Preamble, nil, nil)) + messageOverheadTokens
	for _, m := range window.History {
		total += len(s.encoding.Encode(m.Content, nil, nil)) + messageOverheadTokens
	}
	total += len(s.encoding.Encode(window.Pending, nil, nil)) + messageOverheadTokens
	return total, nil
}

// Generate sends the assembled window to the backend and returns the reply
// text. The call is bounded by a timeout; a timeout surfaces as an error
// like any other backend failure.
func (s *Service) Generate(ctx context.Context, window ctxpkg.Window) (string, error) {
	messages := toMessageContent(window)

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	resp, err := s.llm.GenerateContent(ctx, messages, llms.WithMaxTokens(MaxOutputTokens))
	if err != nil {
		return "", fmt.Errorf("failed to generate completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generation backend returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func toMessageContent(window ctxpkg.Window) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(window.History)+2)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, window.Preamble))
	for _, m := range window.History {
		role := schema.ChatMessageTypeHuman
		if m.Role == models.SenderAssistant {
			role = schema.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, window.Pending))
	return messages
}
