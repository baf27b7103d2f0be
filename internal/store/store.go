// Package store provides SQLite persistence for sessions, segments and
// summaries. It is the source of truth on restart.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meetingbox/meetingbox/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at   TEXT
);

CREATE TABLE IF NOT EXISTS segments (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	start_sec  REAL NOT NULL,
	end_sec    REAL NOT NULL,
	text       TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	speaker    TEXT NOT NULL DEFAULT '',
	failed     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS summaries (
	session_id   TEXT NOT NULL,
	kind         TEXT NOT NULL,
	synopsis     TEXT NOT NULL,
	decisions    TEXT NOT NULL,
	action_items TEXT NOT NULL,
	topics       TEXT NOT NULL,
	sentiment    TEXT NOT NULL,
	model_id     TEXT NOT NULL DEFAULT '',
	generated_at TEXT NOT NULL,
	PRIMARY KEY (session_id, kind)
);
`

// Store wraps the appliance database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path with WAL enabled
// and ensures the schema exists. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	if path == ":memory:" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes all writers; the appliance records a single
	// session at a time and this keeps SQLITE_BUSY out of the pipeline.
	// It also makes ":memory:" behave as one database across queries.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Sessions ---------------------------------------------------------

// CreateSession inserts a new session row.
func (s *Store) CreateSession(sess domain.Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, title, status, started_at, ended_at)
		VALUES (?, ?, ?, ?, NULL)
	`, sess.ID, sess.Title, string(sess.Status), sess.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpdateSessionStatus sets the status for an existing session.
func (s *Store) UpdateSessionStatus(id string, status domain.SessionStatus) error {
	res, err := s.db.Exec(`UPDATE sessions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// FinishSession sets a terminal status and the end timestamp.
func (s *Store) FinishSession(id string, status domain.SessionStatus, endedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?
	`, string(status), endedAt.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// Session returns one session by id.
func (s *Store) Session(id string) (*domain.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, title, status, started_at, ended_at
		FROM sessions WHERE id = ?
	`, id)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

// Sessions returns sessions ordered most recent first.
func (s *Store) Sessions(limit, offset int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, title, status, started_at, ended_at
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var status, startedAt string
	var endedAt sql.NullString

	if err := row.Scan(&sess.ID, &sess.Title, &status, &startedAt, &endedAt); err != nil {
		return nil, err
	}

	sess.Status = domain.SessionStatus(status)
	sess.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err == nil {
			sess.EndedAt = &t
		}
	}
	return &sess, nil
}

// --- Segments ---------------------------------------------------------

// UpsertSegment writes one segment keyed by (session_id, seq).
func (s *Store) UpsertSegment(seg domain.Segment) error {
	failed := 0
	if seg.Failed {
		failed = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO segments (session_id, seq, start_sec, end_sec, text, confidence, speaker, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO UPDATE SET
			start_sec = excluded.start_sec,
			end_sec = excluded.end_sec,
			text = excluded.text,
			confidence = excluded.confidence,
			speaker = excluded.speaker,
			failed = excluded.failed
	`, seg.SessionID, seg.Seq, seg.StartSec, seg.EndSec, seg.Text, seg.Confidence, seg.Speaker, failed)
	if err != nil {
		return fmt.Errorf("upsert segment: %w", err)
	}
	return nil
}

// SegmentsForSession returns all segments for a session in sequence order.
func (s *Store) SegmentsForSession(sessionID string) ([]domain.Segment, error) {
	rows, err := s.db.Query(`
		SELECT session_id, seq, start_sec, end_sec, text, confidence, speaker, failed
		FROM segments
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var out []domain.Segment
	for rows.Next() {
		var seg domain.Segment
		var failed int
		if err := rows.Scan(&seg.SessionID, &seg.Seq, &seg.StartSec, &seg.EndSec,
			&seg.Text, &seg.Confidence, &seg.Speaker, &failed); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		seg.Failed = failed != 0
		out = append(out, seg)
	}
	return out, rows.Err()
}

// TranscriptText renders the session's transcript for summarization:
// one "[mm:ss] Segment N: text" line per transcribed segment.
func (s *Store) TranscriptText(sessionID string) (string, error) {
	segments, err := s.SegmentsForSession(sessionID)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		mins := int(seg.StartSec) / 60
		secs := int(seg.StartSec) % 60
		parts = append(parts, fmt.Sprintf("[%02d:%02d] Segment %d: %s", mins, secs, seg.Seq, seg.Text))
	}
	return strings.Join(parts, "\n\n"), nil
}

// --- Summaries --------------------------------------------------------

// UpsertSummary writes one summary keyed by (session_id, kind). The caller
// must only invoke this with a fully validated summary.
func (s *Store) UpsertSummary(sum domain.Summary) error {
	decisions, err := json.Marshal(emptyIfNil(sum.Decisions))
	if err != nil {
		return fmt.Errorf("encode decisions: %w", err)
	}
	actionItems, err := json.Marshal(sum.ActionItems)
	if err != nil {
		return fmt.Errorf("encode action items: %w", err)
	}
	if sum.ActionItems == nil {
		actionItems = []byte("[]")
	}
	topics, err := json.Marshal(emptyIfNil(sum.Topics))
	if err != nil {
		return fmt.Errorf("encode topics: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO summaries (session_id, kind, synopsis, decisions, action_items, topics, sentiment, model_id, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, kind) DO UPDATE SET
			synopsis = excluded.synopsis,
			decisions = excluded.decisions,
			action_items = excluded.action_items,
			topics = excluded.topics,
			sentiment = excluded.sentiment,
			model_id = excluded.model_id,
			generated_at = excluded.generated_at
	`, sum.SessionID, string(sum.Kind), sum.Synopsis, string(decisions), string(actionItems),
		string(topics), sum.Sentiment, sum.ModelID, sum.GeneratedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

// SummaryForSession returns the summary of one kind, or nil when absent.
func (s *Store) SummaryForSession(sessionID string, kind domain.SummaryKind) (*domain.Summary, error) {
	row := s.db.QueryRow(`
		SELECT session_id, kind, synopsis, decisions, action_items, topics, sentiment, model_id, generated_at
		FROM summaries
		WHERE session_id = ? AND kind = ?
	`, sessionID, string(kind))

	sum, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan summary: %w", err)
	}
	return sum, nil
}

// SummariesForSession returns every summary stored for a session.
func (s *Store) SummariesForSession(sessionID string) ([]domain.Summary, error) {
	rows, err := s.db.Query(`
		SELECT session_id, kind, synopsis, decisions, action_items, topics, sentiment, model_id, generated_at
		FROM summaries
		WHERE session_id = ?
		ORDER BY kind ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []domain.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, *sum)
	}
	return out, rows.Err()
}

func scanSummary(row rowScanner) (*domain.Summary, error) {
	var sum domain.Summary
	var kind, decisions, actionItems, topics, generatedAt string

	if err := row.Scan(&sum.SessionID, &kind, &sum.Synopsis, &decisions, &actionItems,
		&topics, &sum.Sentiment, &sum.ModelID, &generatedAt); err != nil {
		return nil, err
	}

	sum.Kind = domain.SummaryKind(kind)
	if err := json.Unmarshal([]byte(decisions), &sum.Decisions); err != nil {
		return nil, fmt.Errorf("decode decisions: %w", err)
	}
	if err := json.Unmarshal([]byte(actionItems), &sum.ActionItems); err != nil {
		return nil, fmt.Errorf("decode action items: %w", err)
	}
	if err := json.Unmarshal([]byte(topics), &sum.Topics); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	sum.GeneratedAt, _ = time.Parse(time.RFC3339Nano, generatedAt)

	return &sum, nil
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
