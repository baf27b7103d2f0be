package transcriber

import (
	"context"
	"fmt"
	"time"

	"github.com/meetingbox/meetingbox/internal/domain"
	"github.com/meetingbox/meetingbox/internal/events"
	"github.com/meetingbox/meetingbox/internal/logger"
	"github.com/meetingbox/meetingbox/internal/store"
)

// speakerGapSec is the inter-segment silence beyond which the speaker hint
// alternates.
const speakerGapSec = 1.5

// WorkerConfig bounds the worker's retry and timeout behavior.
type WorkerConfig struct {
	RetryAttempts     int
	RetryBackoff      time.Duration
	TranscribeTimeout time.Duration
	SampleRate        int
}

// Worker is the single ordered consumer of a session's segment queue. Each
// segment is transcribed, persisted synchronously, then published. A segment
// whose retries exhaust is persisted with empty text and a failure marker so
// the pipeline never stalls on one bad segment.
type Worker struct {
	cfg     WorkerConfig
	backend Backend
	store   *store.Store
	bus     *events.Bus
	logger  logger.Logger
	queue   <-chan domain.Segment

	// onDrained fires once the queue is closed and every segment has been
	// handled; the state machine uses it to move processing to completed.
	onDrained func()

	lastEndSec float64
	speaker    int
}

// NewWorker creates a worker for one session's intake queue.
func NewWorker(cfg WorkerConfig, backend Backend, st *store.Store, bus *events.Bus, log logger.Logger, queue <-chan domain.Segment, onDrained func()) *Worker {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 2 * time.Minute
	}
	return &Worker{
		cfg:       cfg,
		backend:   backend,
		store:     st,
		bus:       bus,
		logger:    log,
		queue:     queue,
		onDrained: onDrained,
	}
}

// Run consumes the queue until it is closed or ctx is cancelled. Cancellation
// abandons in-flight work without signalling drain; that path belongs to
// reset, which discards the session anyway.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case seg, ok := <-w.queue:
			if !ok {
				if w.onDrained != nil {
					w.onDrained()
				}
				return
			}
			w.process(ctx, seg)
		}
	}
}

func (w *Worker) process(ctx context.Context, seg domain.Segment) {
	result, err := w.transcribeWithRetry(ctx, seg)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn(ctx, "Segment %d of session %s failed transcription: %v", seg.Seq, seg.SessionID, err)
		seg.Failed = true
		seg.Text = ""
		seg.Confidence = 0
	} else {
		seg.Text = result.Text
		seg.Confidence = result.Confidence
	}

	w.assignSpeaker(&seg)
	seg.PCM = nil

	// Durability point: persist before publishing.
	if err := w.store.UpsertSegment(seg); err != nil {
		w.logger.Error(ctx, "Failed to persist segment %d of session %s: %v", seg.Seq, seg.SessionID, err)
		return
	}

	w.bus.Publish(events.Event{
		Type:      events.TypeSegmentReady,
		SessionID: seg.SessionID,
		Payload: map[string]any{
			"seq":                  seg.Seq,
			"start_sec":            seg.StartSec,
			"end_sec":              seg.EndSec,
			"text":                 seg.Text,
			"confidence":           seg.Confidence,
			"speaker":              seg.Speaker,
			"transcription_failed": seg.Failed,
		},
	})
}

func (w *Worker) transcribeWithRetry(ctx context.Context, seg domain.Segment) (Result, error) {
	var lastErr error

	for attempt := 0; attempt < w.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := w.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, w.cfg.TranscribeTimeout)
		result, err := w.backend.Transcribe(callCtx, seg.PCM, w.cfg.SampleRate)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		w.logger.Debug(ctx, "Transcription attempt %d for segment %d failed: %v", attempt+1, seg.Seq, err)
	}

	return Result{}, fmt.Errorf("all %d attempts failed: %w", w.cfg.RetryAttempts, lastErr)
}

// assignSpeaker alternates the speaker hint when the silence gap between
// segments exceeds the threshold. Heuristic only; real diarization is a
// backend concern.
func (w *Worker) assignSpeaker(seg *domain.Segment) {
	changed := false
	if w.speaker == 0 {
		w.speaker = 1
		changed = true
	} else if seg.StartSec-w.lastEndSec > speakerGapSec {
		if w.speaker == 1 {
			w.speaker = 2
		} else {
			w.speaker = 1
		}
		changed = true
	}

	w.lastEndSec = seg.EndSec
	seg.Speaker = fmt.Sprintf("Speaker %d", w.speaker)

	if changed {
		w.bus.Publish(events.Event{
			Type:      events.TypeSpeakerDetected,
			SessionID: seg.SessionID,
			Payload: map[string]any{
				"seq":     seg.Seq,
				"speaker": seg.Speaker,
			},
		})
	}
}
