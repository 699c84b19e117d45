package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/example/realtime-chat-server/modules/activity"
	"github.com/example/realtime-chat-server/modules/api"
	"github.com/example/realtime-chat-server/modules/chat"
	"github.com/example/realtime-chat-server/modules/presence"
	"github.com/example/realtime-chat-server/modules/wsserver"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== Realtime Chat Server - Fiber WebSocket + EventBus ===")

	cfg := loadConfig()

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	store, err := newPresenceStore(cfg)
	if err != nil {
		log.Fatalf("Failed to create presence store: %v", err)
	}

	wsCfg := wsserver.DefaultConfig()
	wsCfg.EventsPerSecond = cfg.WSEventsPerSecond
	wsCfg.EventBurst = cfg.WSEventBurst

	// Create modules
	chatModule := chat.NewModule(logger.WithModule("chat"))
	activityModule := activity.NewModule(logger.WithModule("activity"), activity.DefaultFeedSize)
	wsModule := wsserver.NewModule(chatModule, logger.WithModule("wsserver"),
		wsserver.WithConfig(wsCfg),
		wsserver.WithPresence(store),
	)
	apiModule := api.NewModule(logger.WithModule("api"),
		api.WithPort(cfg.Port),
		api.WithCORSOrigins(cfg.CORSAllowedOrigins),
	)

	// The gateway, presence store and activity feed are in-process objects,
	// not ServiceContainer services, so they are wired by hand.
	apiModule.SetGateway(wsModule)
	apiModule.SetPresence(store)
	apiModule.SetActivity(activityModule)

	// Order: independent modules first, then modules with dependencies
	// - chat: room registry (ServiceProviderModule + EventEmitterModule)
	// - activity: event consumer (feed + counters)
	// - wsserver: connection router over the chat module
	// - api: Fiber HTTP server, mounts /ws, depends on chat
	app.Register(chatModule)
	app.Register(activityModule)
	app.Register(wsModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

// newPresenceStore uses Redis when REDIS_ADDR is set and memory otherwise.
func newPresenceStore(cfg config) (presence.Store, error) {
	if cfg.RedisAddr == "" {
		return presence.NewMemoryStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return presence.NewRedisStore(ctx,
		presence.WithRedisAddr(cfg.RedisAddr),
		presence.WithRedisPassword(cfg.RedisPassword),
		presence.WithRedisDB(cfg.RedisDB),
		presence.WithTTL(cfg.PresenceTTL),
	)
}

func printStartupInfo(cfg config) {
	presenceBackend := "memory"
	if cfg.RedisAddr != "" {
		presenceBackend = "redis (" + cfg.RedisAddr + ")"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("  - Presence store: %s", presenceBackend)
	log.Printf("  - WebSocket rate limit: %g events/s, burst %d", cfg.WSEventsPerSecond, cfg.WSEventBurst)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", cfg.Port)
	log.Println("  GET    /health                     - Health check")
	log.Println("  GET    /metrics                    - Prometheus metrics")
	log.Println("  GET    /api/v1/rooms               - List all rooms")
	log.Println("  POST   /api/v1/rooms               - Create a new room")
	log.Println("  GET    /api/v1/rooms/:id           - Get room details")
	log.Println("  GET    /api/v1/rooms/:id/history   - Get message history")
	log.Println("  POST   /api/v1/session             - Check username availability")
	log.Println("  GET    /api/v1/activity            - Recent activity")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws?username=yourname):", cfg.Port)
	log.Println("  Client events: get_rooms, join_room, leave_room, send_message, create_room")
	log.Println("  Server events: rooms_list, room_joined, new_message, user_joined, user_left, error")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
