package summarizer

import (
	"context"

	"github.com/meetingbox/meetingbox/internal/domain"
)

// Summarizer turns a rendered transcript into a structured summary. Remote
// and local backends are interchangeable implementations of this capability.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (domain.Summary, error)
}
