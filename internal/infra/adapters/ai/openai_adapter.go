package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.IdeaAnalyzer = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.IdeaAnalyzer using the Chat Completions API.
type OpenAIAdapter struct {
	client openai.Client
	model  string
	maxOut int
}

// NewOpenAIAdapter builds the adapter. An empty base keeps the SDK default;
// OpenAI-compatible gateways can be targeted by setting it.
func NewOpenAIAdapter(apiKey, modelName, base string, maxOut int, timeout time.Duration) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(1),
	}
	if base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		model:  modelName,
		maxOut: maxOut,
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	if o.maxOut > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.maxOut))
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errEmptyReply
}

func (o *OpenAIAdapter) Analyze(ctx context.Context, idea string) (*model.IdeaReport, error) {
	reply, err := o.complete(ctx, analyzeSystemPrompt, idea)
	if err != nil {
		return nil, err
	}
	return parseReport(reply)
}

func (o *OpenAIAdapter) Improve(ctx context.Context, plan, request string) (*model.Improvement, error) {
	reply, err := o.complete(ctx, improveSystemPrompt, improvePrompt(plan, request))
	if err != nil {
		return nil, err
	}
	return parseImprovement(reply)
}
