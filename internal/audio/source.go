// Package audio defines the frame-delivery contract the pipeline captures
// from, plus WAV helpers shared by the file source and the transcriber.
package audio

import "context"

// Source yields fixed-size PCM frames (16-bit little-endian mono). ReadFrame
// returns io.EOF on a clean end of stream and domain.ErrDeviceLost when the
// capture device disappears; the two must stay distinguishable.
type Source interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}
