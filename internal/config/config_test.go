package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Whisper: WhisperConfig{
			BinaryPath: "/usr/local/bin/whisper-cli",
			ModelPath:  "/opt/models/ggml-base.en.bin",
		},
		Storage: StorageConfig{DBPath: "data/meetingbox.db"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "minimal valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing whisper binary",
			mutate:  func(c *Config) { c.Whisper.BinaryPath = "" },
			wantErr: true,
		},
		{
			name:    "missing whisper model",
			mutate:  func(c *Config) { c.Whisper.ModelPath = "" },
			wantErr: true,
		},
		{
			name:    "missing db path",
			mutate:  func(c *Config) { c.Storage.DBPath = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 || cfg.Audio.FrameMs != 20 {
		t.Fatalf("audio defaults = %+v", cfg.Audio)
	}
	if cfg.VAD.EnergyThreshold != 500 || cfg.VAD.HangoverFrames != 25 {
		t.Fatalf("vad defaults = %+v", cfg.VAD)
	}
	if cfg.VAD.MinSegmentMs != 400 || cfg.VAD.MaxSegmentSec != 30 {
		t.Fatalf("vad segment defaults = %+v", cfg.VAD)
	}
	if cfg.Pipeline.QueueSize != 32 || cfg.Pipeline.RetryAttempts != 3 || cfg.Pipeline.RetryBackoffMs != 500 {
		t.Fatalf("pipeline defaults = %+v", cfg.Pipeline)
	}
	if cfg.Summarizer.Remote.Model != "gemini-2.5-flash" {
		t.Fatalf("remote model default = %q", cfg.Summarizer.Remote.Model)
	}
	if cfg.Server.Addr != ":8000" {
		t.Fatalf("server addr default = %q", cfg.Server.Addr)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Fatalf("logging defaults = %+v", cfg.Logging)
	}
}

func TestValidateKeepsExplicitValues(t *testing.T) {
	cfg := validConfig()
	cfg.Audio.SampleRate = 48000
	cfg.VAD.HangoverFrames = 10
	cfg.Server.Addr = ":9000"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.VAD.HangoverFrames != 10 || cfg.Server.Addr != ":9000" {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
}

func TestFrameHelpers(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	// 16 kHz mono, 20 ms, 16-bit: 320 samples, 640 bytes.
	if got := cfg.FrameBytes(); got != 640 {
		t.Fatalf("FrameBytes = %d, want 640", got)
	}
	if got := cfg.FrameDuration(); got != 0.02 {
		t.Fatalf("FrameDuration = %v, want 0.02", got)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
audio:
  sample_rate: 16000
  device: hw:1,0
vad:
  energy_threshold: 350
whisper:
  binary_path: /usr/local/bin/whisper-cli
  model_path: /opt/models/ggml-base.en.bin
storage:
  db_path: data/meetingbox.db
  ingest_dir: data/ingest
server:
  addr: ":8080"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Audio.Device != "hw:1,0" {
		t.Fatalf("device = %q", cfg.Audio.Device)
	}
	if cfg.VAD.EnergyThreshold != 350 {
		t.Fatalf("energy threshold = %v", cfg.VAD.EnergyThreshold)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Storage.IngestDir != "data/ingest" {
		t.Fatalf("ingest dir = %q", cfg.Storage.IngestDir)
	}
	// Defaults fill what the file omits.
	if cfg.VAD.HangoverFrames != 25 {
		t.Fatalf("hangover default = %d", cfg.VAD.HangoverFrames)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load("does/not/exist.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("audio: ["), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatal("expected error for malformed yaml")
	}

	incomplete := filepath.Join(dir, "incomplete.yaml")
	if err := os.WriteFile(incomplete, []byte("storage:\n  db_path: x.db\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(incomplete); err == nil {
		t.Fatal("expected validation error")
	}
}
