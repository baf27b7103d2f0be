// Package session owns the lifecycle of one meeting recording. The Machine
// is the single serialization point every other component synchronizes
// against: all transitions happen under one mutex, and at most one session is
// recording or processing at any time.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/meetingbox/meetingbox/internal/audio"
	"github.com/meetingbox/meetingbox/internal/config"
	"github.com/meetingbox/meetingbox/internal/domain"
	"github.com/meetingbox/meetingbox/internal/events"
	"github.com/meetingbox/meetingbox/internal/logger"
	"github.com/meetingbox/meetingbox/internal/segmenter"
	"github.com/meetingbox/meetingbox/internal/store"
	"github.com/meetingbox/meetingbox/internal/transcriber"
)

// SourceFactory opens the capture source for a new session.
type SourceFactory func(ctx context.Context) (audio.Source, error)

// Status is a point-in-time snapshot for pollers. Safe to request frequently;
// producing it takes the mutex and nothing else.
type Status struct {
	State          domain.SessionStatus `json:"state"`
	SessionID      string               `json:"session_id,omitempty"`
	ElapsedSeconds float64              `json:"elapsed_seconds"`
}

// Machine drives idle -> recording -> processing -> completed|failed, plus
// the administrative force reset back to idle.
type Machine struct {
	mu            sync.Mutex
	cfg           *config.Config
	logger        logger.Logger
	store         *store.Store
	bus           *events.Bus
	backend       transcriber.Backend
	sourceFactory SourceFactory

	// current mirrors the persisted record of the most recent session. A
	// terminal status here (completed/failed) means the machine can start a
	// new session; active holds the runtime of a live one.
	current *domain.Session
	active  *activeSession
}

type activeSession struct {
	id      string
	cancel  context.CancelFunc
	source  audio.Source
	seg     *segmenter.Segmenter
	queue   chan domain.Segment
	archive []byte

	stopOnce  sync.Once
	stopCh    chan struct{}
	flushOnce sync.Once
}

// NewMachine creates an idle machine.
func NewMachine(cfg *config.Config, log logger.Logger, st *store.Store, bus *events.Bus, backend transcriber.Backend, factory SourceFactory) *Machine {
	return &Machine{
		cfg:           cfg,
		logger:        log,
		store:         st,
		bus:           bus,
		backend:       backend,
		sourceFactory: factory,
	}
}

// Start begins a new session capturing from the configured device source.
// Fails with ErrAlreadyRecording while a session is recording or processing.
func (m *Machine) Start(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy() {
		return "", domain.ErrAlreadyRecording
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	src, err := m.sourceFactory(sessionCtx)
	if err != nil {
		cancel()
		return "", fmt.Errorf("open capture source: %w", err)
	}

	return m.begin(sessionCtx, cancel, src)
}

// StartWithSource begins a session over a caller-supplied source. Used by
// the ingest watcher and by tests.
func (m *Machine) StartWithSource(src audio.Source) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy() {
		return "", domain.ErrAlreadyRecording
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	return m.begin(sessionCtx, cancel, src)
}

// begin allocates the session and launches the pipeline goroutines.
// Caller holds the mutex.
func (m *Machine) begin(ctx context.Context, cancel context.CancelFunc, src audio.Source) (string, error) {
	sess, err := m.createSession()
	if err != nil {
		cancel()
		src.Close()
		return "", err
	}

	act := &activeSession{
		id:     sess.ID,
		cancel: cancel,
		source: src,
		queue:  make(chan domain.Segment, m.cfg.Pipeline.QueueSize),
		stopCh: make(chan struct{}),
	}

	act.seg = segmenter.New(sess.ID, segmenter.Config{
		SampleRate:      m.cfg.Audio.SampleRate,
		FrameDuration:   m.cfg.FrameDuration(),
		EnergyThreshold: m.cfg.VAD.EnergyThreshold,
		HangoverFrames:  m.cfg.VAD.HangoverFrames,
		MinVoicedFrames: m.cfg.VAD.MinSegmentMs / m.cfg.Audio.FrameMs,
		MaxFrames:       m.cfg.VAD.MaxSegmentSec * 1000 / m.cfg.Audio.FrameMs,
	}, func(seg domain.Segment) {
		m.enqueue(act, seg)
	})

	worker := transcriber.NewWorker(transcriber.WorkerConfig{
		RetryAttempts:     m.cfg.Pipeline.RetryAttempts,
		RetryBackoff:      time.Duration(m.cfg.Pipeline.RetryBackoffMs) * time.Millisecond,
		TranscribeTimeout: time.Duration(m.cfg.Pipeline.TranscribeTimeoutSec) * time.Second,
		SampleRate:        m.cfg.Audio.SampleRate,
	}, m.backend, m.store, m.bus, m.logger, act.queue, func() {
		m.onDrained(act)
	})

	m.current = &sess
	m.active = act

	go m.captureLoop(ctx, act)
	go worker.Run(ctx)

	m.logger.Info(ctx, "Recording started - session %s", sess.ID)
	return sess.ID, nil
}

func (m *Machine) createSession() (domain.Session, error) {
	base := time.Now().UTC().Format("20060102_150405")
	id := base

	// Time-derived ids can collide when sessions start within one second.
	for i := 1; ; i++ {
		sess := domain.Session{
			ID:        id,
			Title:     fmt.Sprintf("Meeting %s", id),
			Status:    domain.SessionStatusRecording,
			StartedAt: time.Now().UTC(),
		}
		err := m.store.CreateSession(sess)
		if err == nil {
			return sess, nil
		}
		if i > 5 {
			return domain.Session{}, fmt.Errorf("allocate session id: %w", err)
		}
		id = fmt.Sprintf("%s_%d", base, i)
	}
}

// Stop moves recording to processing: the segmenter flushes, no new segments
// are accepted, and in-flight transcription keeps running until the queue
// drains. Idempotent while already processing.
func (m *Machine) Stop() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return "", domain.ErrNotRecording
	}

	switch m.current.Status {
	case domain.SessionStatusRecording:
		if err := m.transition(domain.SessionStatusProcessing); err != nil {
			return "", err
		}
		m.active.stopOnce.Do(func() { close(m.active.stopCh) })
		m.bus.Publish(events.Event{
			Type:      events.TypeSessionStopped,
			SessionID: m.current.ID,
			Payload:   map[string]any{"status": string(domain.SessionStatusProcessing)},
		})
		m.logger.Info(context.Background(), "Recording stopped - session %s now processing", m.current.ID)
		return m.current.ID, nil

	case domain.SessionStatusProcessing:
		return m.current.ID, nil

	default:
		return "", domain.ErrNotRecording
	}
}

// Status reports the machine state. Side-effect free.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return Status{State: domain.SessionStatusIdle}
	}

	st := Status{
		State:     m.current.Status,
		SessionID: m.current.ID,
	}
	if m.current.EndedAt != nil {
		st.ElapsedSeconds = m.current.EndedAt.Sub(m.current.StartedAt).Seconds()
	} else {
		st.ElapsedSeconds = time.Since(m.current.StartedAt).Seconds()
	}
	return st
}

// Reset is the operator escape hatch for stuck sessions. It always succeeds:
// everything in flight is cancelled immediately, the abandoned session is
// marked failed (already-persisted segments are kept), and the machine
// returns to idle.
func (m *Machine) Reset(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		m.logger.Warn(ctx, "Force reset requested with no active session")
		m.current = nil
		return
	}

	id := m.active.id
	m.logger.Warn(ctx, "Force reset - abandoning session %s", id)

	m.active.cancel()
	m.active.source.Close()
	m.active = nil
	m.current = nil

	if err := m.store.FinishSession(id, domain.SessionStatusFailed, time.Now().UTC()); err != nil {
		m.logger.Error(ctx, "Failed to mark reset session %s failed: %v", id, err)
	}

	m.bus.Publish(events.Event{
		Type:      events.TypeError,
		SessionID: id,
		Payload:   map[string]any{"reason": "force_reset"},
	})
}

// busy reports whether a session is recording or processing.
// Caller holds the mutex.
func (m *Machine) busy() bool {
	if m.current == nil {
		return false
	}
	switch m.current.Status {
	case domain.SessionStatusRecording, domain.SessionStatusProcessing:
		return true
	default:
		return false
	}
}

// transition validates and applies a status change for the current session.
// Caller holds the mutex.
func (m *Machine) transition(to domain.SessionStatus) error {
	from := m.current.Status
	if !isValidTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	m.current.Status = to
	if err := m.store.UpdateSessionStatus(m.current.ID, to); err != nil {
		return err
	}
	return nil
}

// isValidTransition enforces the forward-only lifecycle edges. Force reset
// bypasses this table deliberately.
func isValidTransition(from, to domain.SessionStatus) bool {
	switch from {
	case domain.SessionStatusRecording:
		return to == domain.SessionStatusProcessing || to == domain.SessionStatusFailed
	case domain.SessionStatusProcessing:
		return to == domain.SessionStatusCompleted || to == domain.SessionStatusFailed
	default:
		return false
	}
}

// --- Pipeline goroutines ----------------------------------------------

// captureLoop reads frames and feeds the segmenter. It never blocks on
// downstream work: segment emission enqueues with a drop-oldest policy.
func (m *Machine) captureLoop(ctx context.Context, act *activeSession) {
	defer act.source.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-act.stopCh:
			m.flushAndClose(act)
			return
		default:
		}

		frame, err := act.source.ReadFrame(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return
			case errors.Is(err, io.EOF):
				// Clean end of stream (file sources): behave like a stop
				// request so the session drains and completes.
				m.Stop()
				m.flushAndClose(act)
				return
			default:
				m.failSession(act, err)
				return
			}
		}

		act.archive = append(act.archive, frame...)
		act.seg.Push(frame)
	}
}

func (m *Machine) flushAndClose(act *activeSession) {
	act.flushOnce.Do(func() {
		act.seg.Flush()
		close(act.queue)
	})
}

// enqueue hands a segment to the worker without ever blocking capture. When
// the queue is full the oldest unprocessed segment is dropped and recorded
// as a backpressure_drop event.
func (m *Machine) enqueue(act *activeSession, seg domain.Segment) {
	for {
		select {
		case act.queue <- seg:
			return
		default:
		}

		select {
		case dropped := <-act.queue:
			m.logger.Warn(context.Background(), "Backpressure - dropping segment %d of session %s", dropped.Seq, dropped.SessionID)
			m.bus.Publish(events.Event{
				Type:      events.TypeBackpressureDrop,
				SessionID: dropped.SessionID,
				Payload:   map[string]any{"seq": dropped.Seq},
			})
		default:
			// Worker freed a slot between the two selects; retry the send.
		}
	}
}

// failSession terminates the current session after an unrecoverable error
// such as a lost capture device. Already-persisted segments stay queryable.
func (m *Machine) failSession(act *activeSession, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != act {
		return
	}

	ctx := context.Background()
	m.logger.Error(ctx, "Session %s failed: %v", act.id, cause)

	act.cancel()
	m.active = nil
	m.current.Status = domain.SessionStatusFailed
	now := time.Now().UTC()
	m.current.EndedAt = &now

	if err := m.store.FinishSession(act.id, domain.SessionStatusFailed, now); err != nil {
		m.logger.Error(ctx, "Failed to persist failure of session %s: %v", act.id, err)
	}

	m.bus.Publish(events.Event{
		Type:      events.TypeError,
		SessionID: act.id,
		Payload:   map[string]any{"reason": cause.Error()},
	})
}

// onDrained fires when the worker has handled every segment after a flush.
// It completes the session and publishes the completion event.
func (m *Machine) onDrained(act *activeSession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A reset or failure may have raced the drain.
	if m.active != act || m.current == nil || m.current.Status != domain.SessionStatusProcessing {
		return
	}

	ctx := context.Background()
	now := time.Now().UTC()

	m.current.Status = domain.SessionStatusCompleted
	m.current.EndedAt = &now
	if err := m.store.FinishSession(act.id, domain.SessionStatusCompleted, now); err != nil {
		m.logger.Error(ctx, "Failed to persist completion of session %s: %v", act.id, err)
	}

	m.writeArchive(ctx, act)
	act.cancel()
	m.active = nil

	m.bus.Publish(events.Event{
		Type:      events.TypeSessionStopped,
		SessionID: act.id,
		Payload:   map[string]any{"status": string(domain.SessionStatusCompleted)},
	})
	m.logger.Info(ctx, "Session %s completed", act.id)
}

// writeArchive persists the session's full audio as one WAV under the
// recordings directory. Best effort: archive failures never fail the session.
func (m *Machine) writeArchive(ctx context.Context, act *activeSession) {
	if len(act.archive) == 0 || m.cfg.Storage.RecordingsDir == "" {
		return
	}
	path := filepath.Join(m.cfg.Storage.RecordingsDir, act.id+".wav")
	if err := audio.WriteWAV(path, act.archive, m.cfg.Audio.SampleRate); err != nil {
		m.logger.Warn(ctx, "Failed to archive recording for session %s: %v", act.id, err)
		return
	}
	m.logger.Info(ctx, "Archived recording: %s", path)
}
