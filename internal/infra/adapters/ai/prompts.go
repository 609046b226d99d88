package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ideaforge-billing/internal/domain/model"
)

const analyzeSystemPrompt = `You are a startup analyst. Evaluate the business idea the user sends.
Reply with a single JSON object and nothing else, using exactly these fields:
{"score": <integer 0-100>, "verdict": "<one of: promising, needs work, weak>",
 "summary": "<two or three sentences>", "strengths": ["..."], "risks": ["..."]}`

const improveSystemPrompt = `You are a startup advisor. The user sends a business plan and a request
for how to improve it. Reply with concise, actionable suggestions in plain text.`

func improvePrompt(plan, request string) string {
	if request == "" {
		request = "Suggest the most important improvements."
	}
	return fmt.Sprintf("Business plan:\n%s\n\nRequest:\n%s", plan, request)
}

var errEmptyReply = errors.New("empty model reply")

// parseReport extracts the JSON object from a model reply. Models sometimes
// wrap it in prose or code fences.
func parseReport(reply string) (*model.IdeaReport, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no json object in reply: %w", errEmptyReply)
	}
	var r model.IdeaReport
	if err := json.Unmarshal([]byte(reply[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	r.Score = min(max(r.Score, 0), 100)
	if r.Strengths == nil {
		r.Strengths = []string{}
	}
	if r.Risks == nil {
		r.Risks = []string{}
	}
	return &r, nil
}

func parseImprovement(reply string) (*model.Improvement, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, errEmptyReply
	}
	return &model.Improvement{Suggestions: reply}, nil
}
