package segmenter

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/meetingbox/meetingbox/internal/domain"
)

const testFrameDur = 0.02

func testConfig() Config {
	return Config{
		SampleRate:      1000,
		FrameDuration:   testFrameDur,
		EnergyThreshold: 500,
		HangoverFrames:  3,
		MinVoicedFrames: 2,
		MaxFrames:       10,
	}
}

// frame builds one 20-sample PCM frame of constant amplitude.
func frame(amplitude int16) []byte {
	buf := make([]byte, 40)
	for i := 0; i < 20; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func voicedFrame() []byte   { return frame(3000) }
func unvoicedFrame() []byte { return frame(0) }

// feed pushes a voiced/unvoiced pattern where each rune is v or s.
func feed(s *Segmenter, pattern string) {
	for _, c := range pattern {
		if c == 'v' {
			s.Push(voicedFrame())
		} else {
			s.Push(unvoicedFrame())
		}
	}
}

func collect() (*[]domain.Segment, EmitFunc) {
	var out []domain.Segment
	return &out, func(seg domain.Segment) {
		out = append(out, seg)
	}
}

func TestSegmentBoundariesMatchVoicedRegion(t *testing.T) {
	out, emit := collect()
	s := New("sess", testConfig(), emit)

	// 5 silent, 10 voiced, then enough silence to trip the hangover.
	feed(s, "sssssvvvvvvvvvvssssss")

	if len(*out) != 1 {
		t.Fatalf("emitted %d segments, want 1", len(*out))
	}

	seg := (*out)[0]
	if seg.Seq != 0 {
		t.Errorf("seq = %d, want 0", seg.Seq)
	}
	wantStart := 5 * testFrameDur
	if math.Abs(seg.StartSec-wantStart) > 1e-9 {
		t.Errorf("start = %v, want %v", seg.StartSec, wantStart)
	}
	// The close happens one hangover window after the voiced region ends.
	wantEnd := (5 + 10 + 3) * testFrameDur
	if math.Abs(seg.EndSec-wantEnd) > 1e-9 {
		t.Errorf("end = %v, want %v", seg.EndSec, wantEnd)
	}
	if len(seg.PCM) == 0 {
		t.Error("segment has no PCM")
	}
}

func TestMaxDurationForceSplitsWithoutGap(t *testing.T) {
	out, emit := collect()
	s := New("sess", testConfig(), emit)

	// 25 voiced frames against a 10-frame cap, then flush.
	for i := 0; i < 25; i++ {
		s.Push(voicedFrame())
	}
	s.Flush()

	if len(*out) != 3 {
		t.Fatalf("emitted %d segments, want 3", len(*out))
	}
	for i, seg := range *out {
		if seg.Seq != i {
			t.Errorf("segment %d seq = %d", i, seg.Seq)
		}
		if i > 0 {
			prev := (*out)[i-1]
			if math.Abs(seg.StartSec-prev.EndSec) > 1e-9 {
				t.Errorf("gap between segment %d end (%v) and %d start (%v)", i-1, prev.EndSec, i, seg.StartSec)
			}
		}
	}
}

func TestFlushEmitsPartialWithVoicedAudio(t *testing.T) {
	out, emit := collect()
	s := New("sess", testConfig(), emit)

	feed(s, "vvv")
	s.Flush()

	if len(*out) != 1 {
		t.Fatalf("emitted %d segments, want 1", len(*out))
	}
}

func TestFlushDiscardsSilentPartial(t *testing.T) {
	out, emit := collect()
	s := New("sess", testConfig(), emit)

	feed(s, "sssss")
	s.Flush()

	if len(*out) != 0 {
		t.Fatalf("emitted %d segments, want 0", len(*out))
	}
}

func TestNoiseBlipDiscardedAndSeqStaysGapless(t *testing.T) {
	out, emit := collect()
	s := New("sess", testConfig(), emit)

	// One voiced frame is below MinVoicedFrames; it must be discarded and
	// must not consume a sequence number.
	feed(s, "vsss")
	feed(s, "vvvvvsss")
	s.Flush()

	if len(*out) != 1 {
		t.Fatalf("emitted %d segments, want 1", len(*out))
	}
	if (*out)[0].Seq != 0 {
		t.Errorf("seq = %d, want 0", (*out)[0].Seq)
	}
}

func TestSequenceNumbersGapless(t *testing.T) {
	out, emit := collect()
	s := New("sess", testConfig(), emit)

	for i := 0; i < 4; i++ {
		feed(s, "vvvvvsss")
	}
	s.Flush()

	if len(*out) != 4 {
		t.Fatalf("emitted %d segments, want 4", len(*out))
	}
	for i, seg := range *out {
		if seg.Seq != i {
			t.Errorf("segment %d has seq %d", i, seg.Seq)
		}
	}
}

func TestVADClassification(t *testing.T) {
	v := vad{threshold: 500}

	if v.IsVoiced(unvoicedFrame()) {
		t.Error("silence classified as voiced")
	}
	if !v.IsVoiced(voicedFrame()) {
		t.Error("speech classified as unvoiced")
	}
}
