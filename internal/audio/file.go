package audio

import (
	"context"
	"io"
)

// FileSource replays a WAV file as a frame stream. It is used by the ingest
// watcher and by tests; frames are delivered as fast as the consumer asks.
type FileSource struct {
	pcm        []byte
	frameBytes int
	pos        int
}

// NewFileSource loads a WAV file for frame-by-frame replay.
func NewFileSource(path string, frameBytes int) (*FileSource, error) {
	pcm, _, err := ReadWAV(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{pcm: pcm, frameBytes: frameBytes}, nil
}

// ReadFrame returns the next frame, zero-padding the final partial frame.
func (s *FileSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.pcm) {
		return nil, io.EOF
	}

	end := s.pos + s.frameBytes
	if end > len(s.pcm) {
		end = len(s.pcm)
	}

	frame := make([]byte, s.frameBytes)
	copy(frame, s.pcm[s.pos:end])
	s.pos = end

	return frame, nil
}

func (s *FileSource) Close() error {
	return nil
}
