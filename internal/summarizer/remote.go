package summarizer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/meetingbox/meetingbox/internal/domain"
	"github.com/meetingbox/meetingbox/internal/logger"
)

type implRemote struct {
	mu         sync.Mutex
	apiKeys    []string
	currentKey int
	model      string
	logger     logger.Logger
}

// NewRemote creates the network-bound Summarizer backend. It rotates through
// the supplied Gemini API keys on rate-limit errors.
func NewRemote(apiKeys []string, model string, log logger.Logger) Summarizer {
	return &implRemote{
		apiKeys: apiKeys,
		model:   model,
		logger:  log,
	}
}

// Summarize sends the transcript to Gemini and parses the structured reply.
// One shot per key: network and API errors surface to the caller.
func (s *implRemote) Summarize(ctx context.Context, transcript string) (domain.Summary, error) {
	if len(s.apiKeys) == 0 {
		return domain.Summary{}, fmt.Errorf("no remote API keys configured")
	}

	text, err := s.callGemini(ctx, transcript)
	if err != nil {
		return domain.Summary{}, err
	}

	sum, err := decodeSummary(text)
	if err != nil {
		return domain.Summary{}, err
	}
	sum.Kind = domain.SummaryKindRemote
	return sum, nil
}

// callGemini generates content with the current key, rotating on
// 429 / quota errors.
func (s *implRemote) callGemini(ctx context.Context, transcript string) (string, error) {
	prompt := fmt.Sprintf(summaryPrompt, transcript)

	attempts := len(s.apiKeys)
	var lastErr error

	for range attempts {
		key := s.currentAPIKey()

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			lastErr = fmt.Errorf("create client: %w", err)
			s.rotateKey()
			continue
		}

		result, err := client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), nil)
		if err != nil {
			errMsg := err.Error()
			if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "quota") || strings.Contains(errMsg, "RESOURCE_EXHAUSTED") {
				s.logger.Warn(ctx, "Summarizer key rate limited, rotating...")
				s.rotateKey()
				lastErr = err
				continue
			}
			return "", fmt.Errorf("generate content: %w", err)
		}

		if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
			var text string
			for _, part := range result.Candidates[0].Content.Parts {
				if part.Text != "" {
					text += part.Text
				}
			}
			return text, nil
		}

		return "", fmt.Errorf("empty response from model")
	}

	return "", fmt.Errorf("all API keys exhausted: %w", lastErr)
}

func (s *implRemote) currentAPIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKeys[s.currentKey]
}

func (s *implRemote) rotateKey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentKey = (s.currentKey + 1) % len(s.apiKeys)
}
