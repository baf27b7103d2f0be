// Package domain holds the core data types shared across the pipeline.
package domain

import "time"

// SessionStatus is the lifecycle state of one recorded meeting.
type SessionStatus string

const (
	SessionStatusIdle       SessionStatus = "idle"
	SessionStatusRecording  SessionStatus = "recording"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// Session is one recorded meeting, from start to completion or failure.
// At most one session may be recording or processing at a time.
type Session struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

// Segment is one contiguous speech utterance detected within a session.
// Sequence numbers are gapless and strictly increasing from 0 per session.
type Segment struct {
	SessionID  string  `json:"session_id"`
	Seq        int     `json:"seq"`
	StartSec   float64 `json:"start_sec"`
	EndSec     float64 `json:"end_sec"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
	// Failed marks a segment whose transcription exhausted its retries.
	// Such segments are persisted with empty text so the log stays gapless.
	Failed bool `json:"transcription_failed,omitempty"`

	// PCM carries the raw 16-bit mono samples between the segmenter and the
	// transcriber worker. It is never persisted.
	PCM []byte `json:"-"`
}

// SummaryKind names the backend that produced a summary.
type SummaryKind string

const (
	SummaryKindRemote SummaryKind = "remote"
	SummaryKindLocal  SummaryKind = "local"
)

// ActionItem is a single task extracted from the meeting.
type ActionItem struct {
	Task     string `json:"task" validate:"required"`
	Assignee string `json:"assignee,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
	Done     bool   `json:"done,omitempty"`
}

// Summary is the structured output derived from a session's transcript.
// A session holds at most one summary per kind.
type Summary struct {
	SessionID   string       `json:"session_id"`
	Kind        SummaryKind  `json:"kind"`
	Synopsis    string       `json:"synopsis" validate:"required"`
	Decisions   []string     `json:"decisions"`
	ActionItems []ActionItem `json:"action_items" validate:"dive"`
	Topics      []string     `json:"topics"`
	Sentiment   string       `json:"sentiment" validate:"required"`
	// ModelID identifies the generating model for local summaries.
	ModelID     string    `json:"model_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}
