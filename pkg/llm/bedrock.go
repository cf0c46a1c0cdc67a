package llm

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	apperrors "github.com/wavehq/orchestrator/internal/errors"
)

const anthropicBedrockVersion = "bedrock-2023-05-31"

// bedrockRequest mirrors Anthropic's Messages API request shape as
// expected by the Bedrock InvokeModel body for Anthropic models.
type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// BedrockClient invokes an Anthropic model through AWS Bedrock.
type BedrockClient struct {
	runtime *bedrockruntime.Client
}

// NewBedrockClient loads the default AWS config chain (env vars, shared
// config, IAM role) and constructs a Bedrock runtime client.
func NewBedrockClient(ctx context.Context, region string) (*BedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "loading AWS config for bedrock")
	}
	return &BedrockClient{runtime: bedrockruntime.NewFromConfig(cfg)}, nil
}

func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: anthropicBedrockVersion,
		MaxTokens:        maxTokensOrDefault(req.MaxTokens),
		System:           req.System,
		Messages:         []bedrockMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return Response{}, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "marshaling bedrock request")
	}

	out, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return Response{}, apperrors.Wrap(err, apperrors.ErrorTypeNetwork, "bedrock invoke model failed")
	}

	var parsed bedrockResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return Response{}, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "parsing bedrock response")
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return Response{
		Text:         text,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		StopReason:   parsed.StopReason,
	}, nil
}
