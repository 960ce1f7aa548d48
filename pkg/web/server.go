// Package web is the orchestrator's serving surface: the carrier's
// media-stream websocket, a live event feed for dashboards, health
// and metrics endpoints, and a small admin API over live calls.
package web

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vocaliq/go-vocaliq/pkg/event"
	"github.com/vocaliq/go-vocaliq/pkg/session"
	"github.com/vocaliq/go-vocaliq/pkg/telephony"
)

// Server hosts the orchestrator's HTTP and websocket endpoints.
type Server struct {
	app     *fiber.App
	manager *session.Manager
	events  *event.Bus
	addr    string
	logger  *slog.Logger
}

// callSummary is the admin view of one live session.
type callSummary struct {
	CallID        string    `json:"call_id"`
	OrgID         string    `json:"org_id"`
	State         string    `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	Turns         int       `json:"turns"`
	Interruptions int       `json:"interruptions"`
}

// NewServer creates the serving surface over a session manager.
func NewServer(addr string, manager *session.Manager, events *event.Bus) *Server {
	s := &Server{
		manager: manager,
		events:  events,
		addr:    addr,
		logger:  slog.Default().With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "vocaliq-orchestrator",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get("/healthz", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/calls", s.handleListCalls)
	app.Post("/calls/:id/terminate", s.handleTerminate)

	// Websocket upgrade middleware
	upgrade := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
	app.Use("/media-stream", upgrade)
	app.Use("/ws", upgrade)

	app.Get("/media-stream", websocket.New(s.handleMediaStream))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"sessions": s.manager.Count(),
	})
}

func (s *Server) handleListCalls(c *fiber.Ctx) error {
	sessions := s.manager.Sessions()
	out := make([]callSummary, 0, len(sessions))
	for _, sess := range sessions {
		stats := sess.Stats()
		out = append(out, callSummary{
			CallID:        sess.CallID(),
			OrgID:         sess.OrgID(),
			State:         string(sess.State()),
			StartedAt:     sess.StartedAt(),
			Turns:         stats.Turns,
			Interruptions: stats.Interruptions,
		})
	}
	return c.JSON(out)
}

func (s *Server) handleTerminate(c *fiber.Ctx) error {
	callID := c.Params("id")
	if !s.manager.Terminate(callID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no such call"})
	}
	return c.JSON(fiber.Map{"status": "terminating"})
}

// handleMediaStream runs one call. The carrier opens the socket and
// must announce itself with a start event; the handler blocks until
// the session ends so fiber keeps the connection open.
func (s *Server) handleMediaStream(conn *websocket.Conn) {
	leg, err := telephony.Accept(conn)
	if err != nil {
		s.logger.Warn("media-stream handshake failed", "error", err)
		conn.Close()
		return
	}

	info := leg.Info()
	sess, err := s.manager.GetOrCreate(context.Background(), info.CallSID, info.OrgID, leg)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrCapacityExceeded):
			s.logger.Warn("call rejected at capacity", "call_sid", info.CallSID, "org_id", info.OrgID)
		default:
			s.logger.Error("session creation failed", "call_sid", info.CallSID, "error", err)
		}
		leg.Close()
		return
	}

	<-sess.Done()
}

// handleEventsWS streams the live event feed to a dashboard client.
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	sub := s.events.Subscribe(event.DefaultBuffer)
	defer sub.Cancel()
	defer conn.Close()

	// Reads only serve to notice the peer going away.
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
		case ev, ok := <-sub.Events():
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
