package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-realtime/internal/chat"
	"chat-realtime/internal/config"
	"chat-realtime/internal/cryptox"
	"chat-realtime/internal/db"
	grpchealth "chat-realtime/internal/grpc"
	"chat-realtime/internal/handlers"
	"chat-realtime/internal/logging"
	"chat-realtime/internal/middleware"
	"chat-realtime/internal/notify"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/presence"
	"chat-realtime/internal/rabbitmq"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/supervisor"
	"chat-realtime/internal/telemetry"
	"chat-realtime/internal/ws"
)

const serviceName = "chat-realtime"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTel.Endpoint)
	if err != nil {
		logging.Warn().Err(err).Msg("tracing disabled")
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(flushCtx)
		}()
	}

	database, err := db.Connect(ctx, cfg.DB.DSN, cfg.Notify.Channel, cfg.DB.RunMigrations)
	if err != nil {
		logging.Error().Err(err).Msg("failed to connect to db")
		os.Exit(1)
	}
	defer database.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Presence is advisory; messaging works without it.
		logging.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("presence cache unreachable")
	}

	codec, err := cryptox.NewCodec(cfg.Crypto.Secret, cfg.Crypto.Salt)
	if err != nil {
		logging.Error().Err(err).Msg("failed to derive encryption key")
		os.Exit(1)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "", serviceName, cfg.Env)
	logging.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")

	conversations := repositories.NewConversationRepo(database)
	sessions := repositories.NewSessionRepo(database)

	hub := ws.NewHub()
	service := chat.NewService(chat.Deps{
		Conversations:  conversations,
		Messages:       repositories.NewMessageRepo(database),
		Users:          repositories.NewUserRepo(database),
		Presence:       presence.NewStore(redisClient, cfg.Presence.TTL),
		Codec:          codec,
		Hub:            hub,
		Audit:          audit,
		PersistTimeout: cfg.Pipeline.PersistTimeout,
	})

	wsHandler := ws.NewHandler(hub, service, ws.HandlerConfig{
		AllowedOrigins:  cfg.WS.Origins(),
		EventsPerSecond: cfg.WS.EventsPerSecond,
		EventBurst:      cfg.WS.EventBurst,
		Heartbeat:       cfg.Presence.HeartbeatInterval,
	})
	chatHandler := handlers.NewChatHandler(service, conversations)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(handlers.RequestID())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, hub, cfg.HTTP.DebugRoutes)

	authMiddleware := middleware.SessionAuth(sessions, cfg.Session.CookieName)
	router.GET("/ws", authMiddleware, wsHandler.Handle)
	chatHandler.Register(router.Group("/api", authMiddleware))

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: cfg.HTTP.ShutdownTimeout})
	tree.AddDataService(notify.NewBridge(cfg.DB.DSN, cfg.Notify.Channel, hub))
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.HTTP.ShutdownTimeout, hub.Shutdown))
	tree.AddAPIService(grpchealth.NewHealthServer(cfg.GRPC.Addr, database, 0))

	logging.Info().
		Str("http_addr", cfg.HTTP.Addr).
		Str("grpc_addr", cfg.GRPC.Addr).
		Str("env", cfg.Env).
		Msg("chat-realtime starting")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("supervisor exited")
	}

	// Let fire-and-forget persistence finish before the pool closes.
	service.Wait()
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("services did not stop in time")
	}
	logging.Info().Msg("chat-realtime stopped")
}
