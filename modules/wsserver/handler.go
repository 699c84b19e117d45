package wsserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/realtime-chat-server/metrics"
	"github.com/example/realtime-chat-server/modules/router"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrRateLimited is reported to clients that send frames too quickly.
var ErrRateLimited = errors.New("rate limit exceeded, please slow down")

// Config holds the per-connection transport settings.
type Config struct {
	EventsPerSecond float64
	EventBurst      int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
	SendBufferSize  int
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		EventsPerSecond: 10,
		EventBurst:      20,
		PingInterval:    54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		MaxMessageSize:  4096,
		SendBufferSize:  256,
	}
}

// Handler bridges websocket connections to the router.
type Handler struct {
	router *router.Router
	cfg    Config
	logger types.Logger
	conns  sync.WaitGroup
}

// NewHandler creates a websocket handler.
func NewHandler(r *router.Router, cfg Config, logger types.Logger) *Handler {
	return &Handler{router: r, cfg: cfg, logger: logger}
}

// Upgrade rejects requests to the websocket endpoint that are not upgrades.
func (h *Handler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Serve returns the fiber handler for the websocket endpoint.
func (h *Handler) Serve() fiber.Handler {
	return websocket.New(h.handleConn)
}

func (h *Handler) handleConn(c *websocket.Conn) {
	h.conns.Add(1)
	defer h.conns.Done()

	connID := uuid.New().String()
	cl := newClient(connID, c, h.cfg, h.logger)
	defer cl.Wait()
	defer cl.Close()

	ctx := context.Background()
	if err := h.router.Connect(ctx, cl, c.Query("username")); err != nil {
		return
	}
	defer h.router.Disconnect(ctx, connID)

	c.SetReadLimit(h.cfg.MaxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(h.cfg.EventsPerSecond), h.cfg.EventBurst)

	for {
		msgType, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", "connID", connID, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if !limiter.Allow() {
			metrics.RateLimitedFrames.Inc()
			_ = cl.Send(router.Event{Name: router.EventError, Data: ErrRateLimited.Error()})
			continue
		}

		if err := h.router.Handle(ctx, connID, raw); err != nil {
			h.logger.Debug("Frame rejected", "connID", connID, "error", err)
		}
	}
}

// Wait blocks until every connection handler has returned or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
