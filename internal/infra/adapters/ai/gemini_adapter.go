// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"ideaforge-billing/internal/domain/model"
	"ideaforge-billing/internal/domain/ports/adapter"
)

var _ adapter.IdeaAnalyzer = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = "gemini-2.0-flash"
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

func (g *GeminiAdapter) Analyze(ctx context.Context, idea string) (*model.IdeaReport, error) {
	reply, err := g.generate(ctx, analyzeSystemPrompt, idea, "application/json")
	if err != nil {
		return nil, err
	}
	return parseReport(reply)
}

func (g *GeminiAdapter) Improve(ctx context.Context, plan, request string) (*model.Improvement, error) {
	reply, err := g.generate(ctx, improveSystemPrompt, improvePrompt(plan, request), "")
	if err != nil {
		return nil, err
	}
	return parseImprovement(reply)
}

// --- internal ---

func (g *GeminiAdapter) generate(ctx context.Context, system, prompt, mime string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  mime,
	}
	if g.maxOut > 0 {
		cfg.MaxOutputTokens = int32(g.maxOut)
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.defaultModel, genai.Text(prompt), cfg)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errEmptyReply
	}
	return text, nil
}
