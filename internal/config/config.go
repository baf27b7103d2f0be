package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Whisper    WhisperConfig    `yaml:"whisper"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
	Events     EventsConfig     `yaml:"events"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	FrameMs    int    `yaml:"frame_ms"`
	Device     string `yaml:"device"`
}

type VADConfig struct {
	// EnergyThreshold is the RMS level above which a frame counts as voiced.
	EnergyThreshold float64 `yaml:"energy_threshold"`
	// HangoverFrames is the number of consecutive unvoiced frames that
	// closes an open segment.
	HangoverFrames int `yaml:"hangover_frames"`
	// MinSegmentMs discards segments with less voiced audio than this on flush.
	MinSegmentMs int `yaml:"min_segment_ms"`
	// MaxSegmentSec force-closes a segment to bound latency and memory.
	MaxSegmentSec int `yaml:"max_segment_sec"`
}

type PipelineConfig struct {
	QueueSize            int `yaml:"queue_size"`
	RetryAttempts        int `yaml:"retry_attempts"`
	RetryBackoffMs       int `yaml:"retry_backoff_ms"`
	TranscribeTimeoutSec int `yaml:"transcribe_timeout_sec"`
}

type WhisperConfig struct {
	BinaryPath string `yaml:"binary_path"`
	ModelPath  string `yaml:"model_path"`
	Language   string `yaml:"language"`
	Threads    int    `yaml:"threads"`
}

type SummarizerConfig struct {
	TimeoutSec int                    `yaml:"timeout_sec"`
	Remote     RemoteSummarizerConfig `yaml:"remote"`
	Local      LocalSummarizerConfig  `yaml:"local"`
}

type RemoteSummarizerConfig struct {
	APIKeys []string `yaml:"api_keys"`
	Model   string   `yaml:"model"`
}

type LocalSummarizerConfig struct {
	BinaryPath string `yaml:"binary_path"`
	ModelPath  string `yaml:"model_path"`
	Threads    int    `yaml:"threads"`
}

type StorageConfig struct {
	DBPath        string `yaml:"db_path"`
	RecordingsDir string `yaml:"recordings_dir"`
	IngestDir     string `yaml:"ingest_dir"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type EventsConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Whisper.BinaryPath == "" {
		return fmt.Errorf("whisper.binary_path is required")
	}
	if c.Whisper.ModelPath == "" {
		return fmt.Errorf("whisper.model_path is required")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.FrameMs == 0 {
		c.Audio.FrameMs = 20
	}
	if c.Audio.Device == "" {
		c.Audio.Device = "default"
	}
	if c.VAD.EnergyThreshold == 0 {
		c.VAD.EnergyThreshold = 500
	}
	if c.VAD.HangoverFrames == 0 {
		c.VAD.HangoverFrames = 25
	}
	if c.VAD.MinSegmentMs == 0 {
		c.VAD.MinSegmentMs = 400
	}
	if c.VAD.MaxSegmentSec == 0 {
		c.VAD.MaxSegmentSec = 30
	}
	if c.Pipeline.QueueSize == 0 {
		c.Pipeline.QueueSize = 32
	}
	if c.Pipeline.RetryAttempts == 0 {
		c.Pipeline.RetryAttempts = 3
	}
	if c.Pipeline.RetryBackoffMs == 0 {
		c.Pipeline.RetryBackoffMs = 500
	}
	if c.Pipeline.TranscribeTimeoutSec == 0 {
		c.Pipeline.TranscribeTimeoutSec = 120
	}
	if c.Whisper.Language == "" {
		c.Whisper.Language = "en"
	}
	if c.Whisper.Threads == 0 {
		c.Whisper.Threads = 4
	}
	if c.Summarizer.TimeoutSec == 0 {
		c.Summarizer.TimeoutSec = 60
	}
	if c.Summarizer.Remote.Model == "" {
		c.Summarizer.Remote.Model = "gemini-2.5-flash"
	}
	if c.Summarizer.Local.Threads == 0 {
		c.Summarizer.Local.Threads = 4
	}
	if c.Storage.RecordingsDir == "" {
		c.Storage.RecordingsDir = "data/recordings"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Events.SubscriberBuffer == 0 {
		c.Events.SubscriberBuffer = 64
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	return nil
}

// FrameBytes returns the size in bytes of one capture frame (16-bit samples).
func (c *Config) FrameBytes() int {
	return c.Audio.SampleRate * c.Audio.FrameMs / 1000 * 2 * c.Audio.Channels
}

// FrameDuration returns one frame's length in seconds.
func (c *Config) FrameDuration() float64 {
	return float64(c.Audio.FrameMs) / 1000.0
}
