package summarizer

import (
	"context"
	"fmt"
	"time"

	"github.com/meetingbox/meetingbox/internal/domain"
	"github.com/meetingbox/meetingbox/internal/events"
	"github.com/meetingbox/meetingbox/internal/logger"
	"github.com/meetingbox/meetingbox/internal/store"
)

// Dispatcher routes summary requests to the backend the caller names.
// There is no automatic fallback between backends: mixing quality tiers
// silently would hide what the user actually asked for. Calls are one-shot
// and idempotent to re-invoke.
type Dispatcher struct {
	backends map[domain.SummaryKind]Summarizer
	store    *store.Store
	bus      *events.Bus
	logger   logger.Logger
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher with no registered backends.
func NewDispatcher(st *store.Store, bus *events.Bus, log logger.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Dispatcher{
		backends: make(map[domain.SummaryKind]Summarizer),
		store:    st,
		bus:      bus,
		logger:   log,
		timeout:  timeout,
	}
}

// Register adds a backend for one summary kind.
func (d *Dispatcher) Register(kind domain.SummaryKind, backend Summarizer) {
	d.backends[kind] = backend
}

// Request generates, persists and publishes a summary of the given kind for
// one session. Persisting is all-or-nothing: a backend error or a malformed
// payload surfaces to the caller and leaves no summary record behind.
func (d *Dispatcher) Request(ctx context.Context, sessionID string, kind domain.SummaryKind) (domain.Summary, error) {
	backend, ok := d.backends[kind]
	if !ok {
		return domain.Summary{}, fmt.Errorf("%w: %q", domain.ErrUnknownSummaryKind, kind)
	}

	if _, err := d.store.Session(sessionID); err != nil {
		return domain.Summary{}, err
	}

	transcript, err := d.store.TranscriptText(sessionID)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("load transcript: %w", err)
	}
	if transcript == "" {
		return domain.Summary{}, domain.ErrEmptyTranscript
	}

	d.logger.Info(ctx, "Generating %s summary for session %s", kind, sessionID)

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	sum, err := backend.Summarize(callCtx, transcript)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summarize session %s: %w", sessionID, err)
	}

	sum.SessionID = sessionID
	sum.Kind = kind
	sum.GeneratedAt = time.Now().UTC()

	if err := d.store.UpsertSummary(sum); err != nil {
		return domain.Summary{}, fmt.Errorf("persist summary: %w", err)
	}

	d.bus.Publish(events.Event{
		Type:      events.TypeSummaryReady,
		SessionID: sessionID,
		Payload: map[string]any{
			"kind":      string(kind),
			"sentiment": sum.Sentiment,
		},
	})

	return sum, nil
}
