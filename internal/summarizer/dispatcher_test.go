package summarizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meetingbox/meetingbox/internal/domain"
	"github.com/meetingbox/meetingbox/internal/events"
	"github.com/meetingbox/meetingbox/internal/logger"
	"github.com/meetingbox/meetingbox/internal/store"
)

type stubSummarizer struct {
	sum        domain.Summary
	err        error
	transcript string
}

func (s *stubSummarizer) Summarize(ctx context.Context, transcript string) (domain.Summary, error) {
	s.transcript = transcript
	if s.err != nil {
		return domain.Summary{}, s.err
	}
	return s.sum, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Store, *events.Subscriber, *events.Bus) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := events.NewBus(16)
	sub := bus.Subscribe()
	t.Cleanup(func() { bus.Unsubscribe(sub) })

	d := NewDispatcher(st, bus, logger.New("error", "text"), time.Second)
	return d, st, sub, bus
}

func seedSession(t *testing.T, st *store.Store, withSegments bool) {
	t.Helper()
	if err := st.CreateSession(domain.Session{
		ID: "s1", Title: "Standup", Status: domain.SessionStatusCompleted, StartedAt: time.Now(),
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !withSegments {
		return
	}
	if err := st.UpsertSegment(domain.Segment{
		SessionID: "s1", Seq: 0, StartSec: 0, EndSec: 3, Text: "good morning everyone",
	}); err != nil {
		t.Fatalf("upsert segment: %v", err)
	}
}

func TestRequestPersistsAndPublishes(t *testing.T) {
	d, st, sub, _ := newTestDispatcher(t)
	seedSession(t, st, true)

	stub := &stubSummarizer{sum: domain.Summary{
		Synopsis:  "Short standup.",
		Sentiment: "Neutral",
		Kind:      domain.SummaryKindRemote,
	}}
	d.Register(domain.SummaryKindRemote, stub)

	sum, err := d.Request(context.Background(), "s1", domain.SummaryKindRemote)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if sum.SessionID != "s1" || sum.Kind != domain.SummaryKindRemote {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.GeneratedAt.IsZero() {
		t.Fatal("GeneratedAt not set")
	}
	if stub.transcript == "" {
		t.Fatal("backend never saw the transcript")
	}

	stored, err := st.SummaryForSession("s1", domain.SummaryKindRemote)
	if err != nil {
		t.Fatalf("load summary: %v", err)
	}
	if stored == nil || stored.Synopsis != "Short standup." {
		t.Fatalf("stored summary = %+v", stored)
	}

	select {
	case ev := <-sub.C:
		if ev.Type != events.TypeSummaryReady {
			t.Fatalf("event type = %s", ev.Type)
		}
		if ev.SessionID != "s1" || ev.Payload["kind"] != string(domain.SummaryKindRemote) {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no summary_ready event")
	}
}

func TestRequestBackendErrorLeavesNoRecord(t *testing.T) {
	d, st, _, _ := newTestDispatcher(t)
	seedSession(t, st, true)

	d.Register(domain.SummaryKindRemote, &stubSummarizer{err: errors.New("api unreachable")})

	if _, err := d.Request(context.Background(), "s1", domain.SummaryKindRemote); err == nil {
		t.Fatal("expected error from failing backend")
	}

	stored, err := st.SummaryForSession("s1", domain.SummaryKindRemote)
	if err != nil {
		t.Fatalf("load summary: %v", err)
	}
	if stored != nil {
		t.Fatalf("summary persisted despite backend error: %+v", stored)
	}
}

func TestRequestUnknownKind(t *testing.T) {
	d, st, _, _ := newTestDispatcher(t)
	seedSession(t, st, true)

	_, err := d.Request(context.Background(), "s1", domain.SummaryKind("cloudy"))
	if !errors.Is(err, domain.ErrUnknownSummaryKind) {
		t.Fatalf("err = %v, want ErrUnknownSummaryKind", err)
	}
}

func TestRequestUnknownSession(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)
	d.Register(domain.SummaryKindRemote, &stubSummarizer{})

	_, err := d.Request(context.Background(), "missing", domain.SummaryKindRemote)
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestRequestEmptyTranscript(t *testing.T) {
	d, st, _, _ := newTestDispatcher(t)
	seedSession(t, st, false)

	d.Register(domain.SummaryKindRemote, &stubSummarizer{})

	_, err := d.Request(context.Background(), "s1", domain.SummaryKindRemote)
	if !errors.Is(err, domain.ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
}

func TestRequestReplacesExistingSummary(t *testing.T) {
	d, st, _, _ := newTestDispatcher(t)
	seedSession(t, st, true)

	stub := &stubSummarizer{sum: domain.Summary{Synopsis: "First pass.", Sentiment: "Neutral"}}
	d.Register(domain.SummaryKindRemote, stub)

	if _, err := d.Request(context.Background(), "s1", domain.SummaryKindRemote); err != nil {
		t.Fatalf("first request: %v", err)
	}

	stub.sum.Synopsis = "Second pass."
	if _, err := d.Request(context.Background(), "s1", domain.SummaryKindRemote); err != nil {
		t.Fatalf("second request: %v", err)
	}

	stored, err := st.SummaryForSession("s1", domain.SummaryKindRemote)
	if err != nil {
		t.Fatalf("load summary: %v", err)
	}
	if stored.Synopsis != "Second pass." {
		t.Fatalf("synopsis = %q, want the regenerated summary", stored.Synopsis)
	}
}
