package model

import (
	"strings"

	"ideaforge-billing/internal/domain"
)

// MinIdeaLength is the shortest idea accepted for analysis.
const MinIdeaLength = 10

// IdeaReport is the analysis service's verdict on an idea.
type IdeaReport struct {
	Score     int      `json:"score"`
	Verdict   string   `json:"verdict"`
	Summary   string   `json:"summary"`
	Strengths []string `json:"strengths"`
	Risks     []string `json:"risks"`
}

// Improvement is the analysis service's answer to a plan improvement request.
type Improvement struct {
	Suggestions string `json:"suggestions"`
}

// NormalizeIdea trims and validates free-form idea text.
func NormalizeIdea(idea string) (string, error) {
	idea = strings.TrimSpace(idea)
	if len(idea) < MinIdeaLength {
		return "", domain.ErrInvalidArgument
	}
	return idea, nil
}
