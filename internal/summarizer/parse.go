package summarizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/meetingbox/meetingbox/internal/domain"
)

const summaryPrompt = `You are analyzing a meeting transcript. Please provide:

1. A short synopsis (2-3 sentences)
2. Decisions made
3. Action items with assignees and due dates if available
4. 3-5 topic hashtags
5. Overall sentiment (single word or short phrase)

Return **only** valid JSON in this shape:
{
  "synopsis": "...",
  "decisions": ["...", "..."],
  "action_items": [{"task": "...", "assignee": "...", "due_date": "..."}],
  "topics": ["#topic1", "#topic2"],
  "sentiment": "Productive"
}

Transcript:

%s`

type summaryPayload struct {
	Synopsis    string `json:"synopsis" validate:"required"`
	Decisions   []string `json:"decisions"`
	ActionItems []struct {
		Task     string `json:"task" validate:"required"`
		Assignee string `json:"assignee"`
		DueDate  string `json:"due_date"`
	} `json:"action_items" validate:"dive"`
	Topics    []string `json:"topics"`
	Sentiment string   `json:"sentiment" validate:"required"`
}

var validate = validator.New()

// decodeSummary parses a backend response into a Summary. Model output is
// untrusted: markdown code fences are stripped, then the payload must both
// parse as JSON and pass structural validation. Any failure yields
// ErrMalformedSummary and nothing reaches the store.
func decodeSummary(raw string) (domain.Summary, error) {
	jsonStr := stripCodeFences(raw)

	var payload summaryPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return domain.Summary{}, fmt.Errorf("%w: %v", domain.ErrMalformedSummary, err)
	}

	if err := validate.Struct(payload); err != nil {
		return domain.Summary{}, fmt.Errorf("%w: %v", domain.ErrMalformedSummary, err)
	}

	sum := domain.Summary{
		Synopsis:  payload.Synopsis,
		Decisions: payload.Decisions,
		Topics:    payload.Topics,
		Sentiment: payload.Sentiment,
	}
	for _, item := range payload.ActionItems {
		sum.ActionItems = append(sum.ActionItems, domain.ActionItem{
			Task:     item.Task,
			Assignee: item.Assignee,
			DueDate:  item.DueDate,
		})
	}
	return sum, nil
}

func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end >= 0 {
			return strings.TrimSpace(text[start : start+end])
		}
	}
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	return strings.TrimSpace(text)
}
