package summarizer

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/meetingbox/meetingbox/internal/config"
	"github.com/meetingbox/meetingbox/internal/domain"
	"github.com/meetingbox/meetingbox/internal/logger"
	"github.com/meetingbox/meetingbox/pkg/executor"
)

type implLocal struct {
	cfg      config.LocalSummarizerConfig
	executor executor.Executor
	logger   logger.Logger
}

// NewLocal creates the on-device Summarizer backend, which shells out to a
// llama.cpp binary. Compute-bound rather than network-bound, but the same
// capability as the remote backend.
func NewLocal(cfg config.LocalSummarizerConfig, exec executor.Executor, log logger.Logger) Summarizer {
	return &implLocal{cfg: cfg, executor: exec, logger: log}
}

func (s *implLocal) Summarize(ctx context.Context, transcript string) (domain.Summary, error) {
	if s.cfg.BinaryPath == "" || s.cfg.ModelPath == "" {
		return domain.Summary{}, fmt.Errorf("local summarizer is not configured")
	}

	prompt := fmt.Sprintf(summaryPrompt, transcript)

	args := []string{
		"-m", s.cfg.ModelPath,
		"-t", strconv.Itoa(s.cfg.Threads),
		"-p", prompt,
		"--no-display-prompt",
	}

	out, err := s.executor.Execute(ctx, s.cfg.BinaryPath, args...)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("local model: %w", err)
	}

	sum, err := decodeSummary(out)
	if err != nil {
		return domain.Summary{}, err
	}
	sum.Kind = domain.SummaryKindLocal
	sum.ModelID = filepath.Base(s.cfg.ModelPath)
	return sum, nil
}
