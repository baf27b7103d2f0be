package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meetingbox/meetingbox/internal/audio"
	"github.com/meetingbox/meetingbox/internal/config"
	"github.com/meetingbox/meetingbox/internal/domain"
	"github.com/meetingbox/meetingbox/internal/events"
	"github.com/meetingbox/meetingbox/internal/ingest"
	"github.com/meetingbox/meetingbox/internal/logger"
	"github.com/meetingbox/meetingbox/internal/server"
	"github.com/meetingbox/meetingbox/internal/session"
	"github.com/meetingbox/meetingbox/internal/store"
	"github.com/meetingbox/meetingbox/internal/summarizer"
	"github.com/meetingbox/meetingbox/internal/transcriber"
	"github.com/meetingbox/meetingbox/pkg/executor"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info(ctx, "========================================")
	log.Info(ctx, "MeetingBox Recording Appliance")
	log.Info(ctx, "========================================")
	log.Info(ctx, "Audio: %dHz, %dms frames, device %s", cfg.Audio.SampleRate, cfg.Audio.FrameMs, cfg.Audio.Device)
	log.Info(ctx, "Database: %s", cfg.Storage.DBPath)

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Error(ctx, "Failed to open store: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	bus := events.NewBus(cfg.Events.SubscriberBuffer)
	exec := executor.New()

	backend := transcriber.NewWhisperBackend(cfg.Whisper, exec, log)

	machine := session.NewMachine(cfg, log, st, bus, backend, func(srcCtx context.Context) (audio.Source, error) {
		return audio.NewDeviceSource(srcCtx, cfg.Audio.Device, cfg.Audio.SampleRate, cfg.FrameBytes())
	})

	dispatcher := summarizer.NewDispatcher(st, bus, log, time.Duration(cfg.Summarizer.TimeoutSec)*time.Second)
	dispatcher.Register(domain.SummaryKindRemote, summarizer.NewRemote(cfg.Summarizer.Remote.APIKeys, cfg.Summarizer.Remote.Model, log))
	dispatcher.Register(domain.SummaryKindLocal, summarizer.NewLocal(cfg.Summarizer.Local, exec, log))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Optional WAV drop-folder ingest
	if cfg.Storage.IngestDir != "" {
		if err := os.MkdirAll(cfg.Storage.IngestDir, 0755); err != nil {
			log.Error(ctx, "Failed to create ingest dir: %v", err)
			os.Exit(1)
		}
		w, err := ingest.New(cfg.Storage.IngestDir, cfg.FrameBytes(), machine, log)
		if err != nil {
			log.Error(ctx, "Failed to create ingest watcher: %v", err)
			os.Exit(1)
		}
		defer w.Stop()
		go func() {
			if err := w.Start(ctx); err != nil && err != context.Canceled {
				log.Error(ctx, "Ingest watcher error: %v", err)
			}
		}()
	}

	srv := server.New(log, machine, st, dispatcher, bus)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Listen(cfg.Server.Addr); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info(ctx, "========================================")
	log.Info(ctx, "MeetingBox is ready!")
	log.Info(ctx, "API listening on %s", cfg.Server.Addr)
	if cfg.Storage.IngestDir != "" {
		log.Info(ctx, "Ingest folder: %s", cfg.Storage.IngestDir)
	}
	log.Info(ctx, "Press Ctrl+C to stop")
	log.Info(ctx, "========================================")

	select {
	case <-sigChan:
		log.Info(ctx, "Shutdown signal received")
	case err := <-errChan:
		log.Error(ctx, "Server error: %v", err)
	}

	log.Info(ctx, "Shutting down gracefully...")
	cancel()
	if err := srv.Shutdown(); err != nil {
		log.Error(ctx, "Server shutdown: %v", err)
	}

	log.Info(ctx, "MeetingBox stopped")
}
