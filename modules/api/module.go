package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/example/realtime-chat-server/metrics"
	"github.com/example/realtime-chat-server/modules/activity"
	"github.com/example/realtime-chat-server/modules/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Gateway is the websocket side of the server as seen by the HTTP layer.
type Gateway interface {
	UpgradeMiddleware() fiber.Handler
	Handler() fiber.Handler
	BroadcastRoomList()
	ConnectionCount() int
}

// Presence answers whether a username is currently connected.
type Presence interface {
	IsActive(ctx context.Context, username string) (bool, error)
}

// ActivityFeed serves recent chat activity.
type ActivityFeed interface {
	Recent(limit int) []activity.Entry
}

// APIModule is the HTTP API module. It owns the Fiber listener and mounts
// the websocket endpoint of the gateway.
type APIModule struct {
	app         *fiber.App
	chatAdapter chat.ChatPort
	gateway     Gateway
	presence    Presence
	activity    ActivityFeed
	port        string
	corsOrigins string
	logger      types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// Option configures the API module.
type Option func(*APIModule)

// WithPort sets the listen port.
func WithPort(port string) Option {
	return func(m *APIModule) { m.port = port }
}

// WithCORSOrigins sets the comma separated list of allowed origins.
func WithCORSOrigins(origins string) Option {
	return func(m *APIModule) { m.corsOrigins = origins }
}

// NewModule creates a new APIModule.
func NewModule(logger types.Logger, opts ...Option) *APIModule {
	m := &APIModule{
		port:        "3000",
		corsOrigins: "http://localhost:3000,http://localhost:8080",
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"chat"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "chat":
		m.chatAdapter = chat.NewChatAdapter(container)
	}
}

// SetGateway sets the websocket gateway (called from main.go).
func (m *APIModule) SetGateway(gateway Gateway) {
	m.gateway = gateway
}

// SetPresence sets the presence store used by the session check.
func (m *APIModule) SetPresence(p Presence) {
	m.presence = p
}

// SetActivity sets the activity feed.
func (m *APIModule) SetActivity(feed ActivityFeed) {
	m.activity = feed
}

// Start builds the Fiber app and starts listening.
func (m *APIModule) Start(_ context.Context) error {
	if m.chatAdapter == nil {
		return fmt.Errorf("chat adapter dependency not set")
	}
	if m.gateway == nil {
		return fmt.Errorf("websocket gateway dependency not set")
	}
	if m.presence == nil {
		return fmt.Errorf("presence dependency not set")
	}
	if m.activity == nil {
		return fmt.Errorf("activity dependency not set")
	}

	m.app = m.buildApp()

	// Wait briefly to catch immediate startup errors
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(":" + m.port); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "port", m.port)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server")
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"port": m.port}
	if m.gateway != nil {
		details["connected_clients"] = m.gateway.ConnectionCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

func (m *APIModule) buildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.corsOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	app.Use(m.loggerMiddleware())
	app.Use(metricsMiddleware())

	m.setupRoutes(app)
	return app
}

// errorHandler handles Fiber errors.
func (m *APIModule) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	} else {
		m.logger.Error("Unhandled HTTP error", "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

// loggerMiddleware logs every request except websocket upgrades.
func (m *APIModule) loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Upgrade") == "websocket" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		m.logger.Info("HTTP request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start).String())
		return err
	}
}

// metricsMiddleware records request counts and latency by route pattern.
func metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}
