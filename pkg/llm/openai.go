package llm

import (
	"context"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/oauth2"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
)

// OpenAICompatClient talks to any OpenAI-compatible chat completion
// endpoint through langchaingo — used for both OpenAI and xAI, which
// share the same wire format and differ only in base URL and model name.
type OpenAICompatClient struct {
	llm *openai.LLM
}

// NewOpenAICompatClient builds a client authenticated with a static
// bearer token (via golang.org/x/oauth2, SPEC_FULL.md §4.15) against
// baseURL — OpenAI's or xAI's API base.
func NewOpenAICompatClient(ctx context.Context, apiKey, baseURL, model string) (*OpenAICompatClient, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(ctx, source)

	llmClient, err := openai.New(
		openai.WithHTTPClient(httpClient),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "constructing openai-compatible client")
	}
	return &OpenAICompatClient{llm: llmClient}, nil
}

func (c *OpenAICompatClient) Complete(ctx context.Context, req Request) (Response, error) {
	messages := []llms.MessageContent{}
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithMaxTokens(maxTokensOrDefault(req.MaxTokens)),
		llms.WithTemperature(float64(req.Temperature)),
	)
	if err != nil {
		return Response{}, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "openai-compatible completion failed")
	}
	if len(resp.Choices) == 0 {
		return Response{}, apperrors.New(apperrors.ErrorTypeNetwork, "openai-compatible completion returned no choices")
	}

	choice := resp.Choices[0]
	return Response{
		Text:       choice.Content,
		StopReason: choice.StopReason,
	}, nil
}
