// Package transcriber converts speech segments to text through a pluggable
// backend and an ordered, failure-absorbing worker.
package transcriber

import "context"

// Result is one backend transcription outcome.
type Result struct {
	Text       string
	Confidence float64
}

// Backend is a pluggable speech-to-text implementation.
type Backend interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error)
}
