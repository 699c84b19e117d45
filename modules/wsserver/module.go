package wsserver

import (
	"context"
	"fmt"

	"github.com/example/realtime-chat-server/modules/presence"
	"github.com/example/realtime-chat-server/modules/router"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

// Module owns the connection router and the websocket handler. The HTTP
// listener belongs to the api module, which mounts Upgrade and Serve.
type Module struct {
	router   *router.Router
	handler  *Handler
	presence presence.Store
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// Option configures the module.
type Option func(*options)

type options struct {
	cfg      Config
	presence presence.Store
}

// WithConfig overrides the transport settings.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithPresence sets the presence store that tracks connected usernames.
// The module closes it on Stop.
func WithPresence(store presence.Store) Option {
	return func(o *options) { o.presence = store }
}

// NewModule creates a websocket server module over the given rooms.
func NewModule(rooms router.Rooms, logger types.Logger, opts ...Option) *Module {
	o := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.presence == nil {
		o.presence = presence.NewMemoryStore()
	}

	r := router.New(rooms, logger, router.WithPresence(o.presence))
	return &Module{
		router:   r,
		handler:  NewHandler(r, o.cfg, logger),
		presence: o.presence,
		logger:   logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "wsserver"
}

// Start logs the transport settings.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("WebSocket module started",
		"eventsPerSecond", m.handler.cfg.EventsPerSecond,
		"eventBurst", m.handler.cfg.EventBurst)
	return nil
}

// Stop closes every connection, waits for their handlers and closes the
// presence store.
func (m *Module) Stop(ctx context.Context) error {
	clients := m.router.ConnectionCount()
	m.router.CloseAll()

	if err := m.handler.Wait(ctx); err != nil {
		m.logger.Warn("Timed out waiting for websocket handlers", "error", err)
	}

	if err := m.presence.Close(); err != nil {
		return fmt.Errorf("failed to close presence store: %w", err)
	}
	m.logger.Info("WebSocket module stopped", "clients", clients)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.router.ConnectionCount(),
		},
	}
}

// UpgradeMiddleware returns the middleware guarding the websocket route.
func (m *Module) UpgradeMiddleware() fiber.Handler {
	return m.handler.Upgrade
}

// Handler returns the websocket route handler.
func (m *Module) Handler() fiber.Handler {
	return m.handler.Serve()
}

// BroadcastRoomList pushes the current room list to every connection.
func (m *Module) BroadcastRoomList() {
	m.router.BroadcastRoomList()
}

// ConnectionCount returns the number of connected clients.
func (m *Module) ConnectionCount() int {
	return m.router.ConnectionCount()
}

// Presence returns the presence store.
func (m *Module) Presence() presence.Store {
	return m.presence
}
