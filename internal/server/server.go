// Package server exposes the pipeline over HTTP and WebSocket. This layer is
// deliberately thin: every handler delegates to the state machine, the store,
// the dispatcher, or the event bus.
package server

import (
	"context"
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/meetingbox/meetingbox/internal/domain"
	"github.com/meetingbox/meetingbox/internal/events"
	"github.com/meetingbox/meetingbox/internal/logger"
	"github.com/meetingbox/meetingbox/internal/session"
	"github.com/meetingbox/meetingbox/internal/store"
	"github.com/meetingbox/meetingbox/internal/summarizer"
)

// Server wires the HTTP surface.
type Server struct {
	app        *fiber.App
	logger     logger.Logger
	machine    *session.Machine
	store      *store.Store
	dispatcher *summarizer.Dispatcher
	bus        *events.Bus
}

// New builds the fiber app and registers all routes.
func New(log logger.Logger, machine *session.Machine, st *store.Store, dispatcher *summarizer.Dispatcher, bus *events.Bus) *Server {
	s := &Server{
		app:        fiber.New(fiber.Config{DisableStartupMessage: true}),
		logger:     log,
		machine:    machine,
		store:      st,
		dispatcher: dispatcher,
		bus:        bus,
	}

	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	})

	api := s.app.Group("/api")
	api.Post("/sessions/start", s.startSession)
	api.Post("/sessions/stop", s.stopSession)
	api.Post("/sessions/reset", s.resetSession)
	api.Get("/status", s.status)
	api.Get("/meetings", s.listMeetings)
	api.Get("/meetings/:id", s.getMeeting)
	api.Post("/meetings/:id/summary", s.requestSummary)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.subscribe))

	return s
}

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// --- Handlers ---------------------------------------------------------

func (s *Server) startSession(c *fiber.Ctx) error {
	id, err := s.machine.Start(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session_id": id})
}

func (s *Server) stopSession(c *fiber.Ctx) error {
	id, err := s.machine.Stop()
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"session_id": id})
}

func (s *Server) resetSession(c *fiber.Ctx) error {
	s.machine.Reset(c.Context())
	return c.JSON(fiber.Map{"status": "reset"})
}

func (s *Server) status(c *fiber.Ctx) error {
	return c.JSON(s.machine.Status())
}

func (s *Server) listMeetings(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	sessions, err := s.store.Sessions(limit, offset)
	if err != nil {
		return s.fail(c, err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return c.JSON(fiber.Map{"meetings": sessions})
}

func (s *Server) getMeeting(c *fiber.Ctx) error {
	id := c.Params("id")

	sess, err := s.store.Session(id)
	if err != nil {
		return s.fail(c, err)
	}

	segments, err := s.store.SegmentsForSession(id)
	if err != nil {
		return s.fail(c, err)
	}
	if segments == nil {
		segments = []domain.Segment{}
	}

	summaries, err := s.store.SummariesForSession(id)
	if err != nil {
		return s.fail(c, err)
	}
	if summaries == nil {
		summaries = []domain.Summary{}
	}

	return c.JSON(fiber.Map{
		"meeting":   sess,
		"segments":  segments,
		"summaries": summaries,
	})
}

type summaryRequest struct {
	Kind string `json:"kind"`
}

func (s *Server) requestSummary(c *fiber.Ctx) error {
	var req summaryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Kind == "" {
		req.Kind = string(domain.SummaryKindRemote)
	}

	sum, err := s.dispatcher.Request(c.Context(), c.Params("id"), domain.SummaryKind(req.Kind))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(sum)
}

// subscribe streams bus events over one WebSocket connection. A slow client
// only ever loses its own events; publishers are never blocked.
func (s *Server) subscribe(conn *websocket.Conn) {
	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	s.logger.Info(context.Background(), "Event subscriber connected (%d total)", s.bus.SubscriberCount())
	defer s.logger.Info(context.Background(), "Event subscriber disconnected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrAlreadyRecording),
		errors.Is(err, domain.ErrNotRecording),
		errors.Is(err, domain.ErrEmptyTranscript):
		status = fiber.StatusConflict
	case errors.Is(err, domain.ErrSessionNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, domain.ErrUnknownSummaryKind):
		status = fiber.StatusBadRequest
	case errors.Is(err, domain.ErrMalformedSummary):
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
