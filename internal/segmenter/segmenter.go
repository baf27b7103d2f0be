// Package segmenter turns a raw frame stream into discrete speech segments
// using energy-based voice activity detection with hangover.
package segmenter

import "github.com/meetingbox/meetingbox/internal/domain"

// EmitFunc receives finished segments in emission order. It must not block:
// the caller runs on the capture path.
type EmitFunc func(domain.Segment)

// Config controls segmentation behavior. All durations are derived from the
// frame cadence so the segmenter itself never consults a clock.
type Config struct {
	SampleRate      int
	FrameDuration   float64 // seconds per frame
	EnergyThreshold float64
	// HangoverFrames is how many consecutive unvoiced frames close a segment.
	HangoverFrames int
	// MinVoicedFrames discards hangover-closed segments with less voiced
	// audio than this. Flush only requires a single voiced frame.
	MinVoicedFrames int
	// MaxFrames force-closes a segment; the next one opens without gap.
	MaxFrames int
}

// Segmenter consumes frames from a single goroutine and emits segments with
// gapless sequence numbers starting at 0.
type Segmenter struct {
	cfg  Config
	vad  vad
	emit EmitFunc

	sessionID string
	seq       int
	frame     int // index of the next frame to be consumed

	open       bool
	startFrame int
	buf        []byte
	voiced     int
	unvoiced   int
}

// New creates a Segmenter for one session.
func New(sessionID string, cfg Config, emit EmitFunc) *Segmenter {
	if cfg.HangoverFrames <= 0 {
		cfg.HangoverFrames = 25
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = 1500
	}
	return &Segmenter{
		cfg:       cfg,
		vad:       vad{threshold: cfg.EnergyThreshold},
		emit:      emit,
		sessionID: sessionID,
	}
}

// Push consumes one frame. Segments are emitted synchronously from here, so
// the registered EmitFunc carries the non-blocking requirement.
func (s *Segmenter) Push(frame []byte) {
	isVoiced := s.vad.IsVoiced(frame)

	if !s.open {
		if !isVoiced {
			s.frame++
			return
		}
		s.openAt(s.frame)
	}

	s.buf = append(s.buf, frame...)
	if isVoiced {
		s.voiced++
		s.unvoiced = 0
	} else {
		s.unvoiced++
	}
	s.frame++

	if s.unvoiced >= s.cfg.HangoverFrames {
		s.close(false)
		return
	}

	if s.frameCount() >= s.cfg.MaxFrames {
		// Cap reached: force-close and keep capturing without gap.
		s.close(true)
		s.openAt(s.frame)
	}
}

// Flush emits the open segment if it holds at least one voiced frame;
// otherwise the partial buffer is discarded. Called when recording stops.
func (s *Segmenter) Flush() {
	if !s.open {
		return
	}
	if s.voiced == 0 {
		s.reset()
		return
	}
	s.emitSegment()
}

// Seq returns the next sequence number, which equals the count of segments
// emitted so far.
func (s *Segmenter) Seq() int {
	return s.seq
}

func (s *Segmenter) openAt(frame int) {
	s.open = true
	s.startFrame = frame
	s.buf = nil
	s.voiced = 0
	s.unvoiced = 0
}

func (s *Segmenter) frameCount() int {
	return s.frame - s.startFrame
}

func (s *Segmenter) close(forced bool) {
	if !forced && s.voiced < s.cfg.MinVoicedFrames {
		// Noise blip, not speech. Discard so seq stays gapless.
		s.reset()
		return
	}
	if s.voiced == 0 {
		s.reset()
		return
	}
	s.emitSegment()
}

func (s *Segmenter) emitSegment() {
	seg := domain.Segment{
		SessionID: s.sessionID,
		Seq:       s.seq,
		StartSec:  float64(s.startFrame) * s.cfg.FrameDuration,
		EndSec:    float64(s.frame) * s.cfg.FrameDuration,
		PCM:       s.buf,
	}
	s.seq++
	s.reset()
	s.emit(seg)
}

func (s *Segmenter) reset() {
	s.open = false
	s.buf = nil
	s.voiced = 0
	s.unvoiced = 0
}
