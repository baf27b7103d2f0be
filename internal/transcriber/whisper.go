package transcriber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/meetingbox/meetingbox/internal/audio"
	"github.com/meetingbox/meetingbox/internal/config"
	"github.com/meetingbox/meetingbox/internal/logger"
	"github.com/meetingbox/meetingbox/pkg/executor"
)

type whisperBackend struct {
	cfg      config.WhisperConfig
	executor executor.Executor
	logger   logger.Logger
}

// NewWhisperBackend creates a Backend that shells out to whisper.cpp.
func NewWhisperBackend(cfg config.WhisperConfig, exec executor.Executor, log logger.Logger) Backend {
	return &whisperBackend{cfg: cfg, executor: exec, logger: log}
}

// Transcribe writes the segment to a temp WAV and runs whisper.cpp on it.
func (b *whisperBackend) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error) {
	tempDir, err := os.MkdirTemp("", "meetingbox-stt-*")
	if err != nil {
		return Result{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	wavPath := filepath.Join(tempDir, "segment.wav")
	if err := audio.WriteWAV(wavPath, pcm, sampleRate); err != nil {
		return Result{}, fmt.Errorf("write segment wav: %w", err)
	}

	outputPrefix := filepath.Join(tempDir, "segment")

	// Whisper arguments:
	// -m: Model path
	// -f: Input audio file
	// -otxt: Plain text output
	// -l: Force language (prevents hallucination)
	// -t: Number of threads
	// --output-file: Output file prefix
	args := []string{
		"-m", b.cfg.ModelPath,
		"-f", wavPath,
		"-otxt",
		"-l", b.cfg.Language,
		"-t", strconv.Itoa(b.cfg.Threads),
		"--output-file", outputPrefix,
	}

	if _, err := b.executor.Execute(ctx, b.cfg.BinaryPath, args...); err != nil {
		return Result{}, fmt.Errorf("whisper transcribe: %w", err)
	}

	text, err := os.ReadFile(outputPrefix + ".txt")
	if err != nil {
		return Result{}, fmt.Errorf("read whisper output: %w", err)
	}

	// whisper.cpp does not report per-segment confidence; a successful run
	// is treated as full confidence.
	return Result{
		Text:       strings.TrimSpace(string(text)),
		Confidence: 1.0,
	}, nil
}
