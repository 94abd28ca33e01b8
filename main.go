package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"rtc-service/internal/auth"
	"rtc-service/internal/db"
	"rtc-service/internal/handlers"
	"rtc-service/internal/middleware"
	"rtc-service/internal/observability"
	"rtc-service/internal/rabbitmq"
	"rtc-service/internal/repositories"
	"rtc-service/internal/telemetry"
	"rtc-service/internal/ws"
)

func main() {
	ctx := context.Background()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	otlpEndpoint := getEnv("OTLP_ENDPOINT", "localhost:4317")
	shutdownTracing, err := observability.SetupTracing(ctx, "rtc-service", otlpEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	amqpURL := getEnv("AMQP_URL", "")
	exchange := getEnv("AMQP_EXCHANGE", "rtc.events")
	if amqpURL != "" {
		eventPublisher, err := observability.NewAMQPPublisher(amqpURL, exchange)
		if err != nil {
			log.Printf("event publisher disabled: %v", err)
		} else {
			observability.SetPublisher(eventPublisher)
			defer eventPublisher.Close()
		}
	}

	auditPublisher := rabbitmq.NewPublisher(amqpURL, getEnv("AUDIT_EXCHANGE", "audit.logs"))
	defer auditPublisher.Close()
	if mode := rabbitmq.PublisherMode(auditPublisher); mode == "noop" {
		log.Printf("audit publisher mode=%s reason=%q", mode, rabbitmq.PublisherNoopReason(auditPublisher))
	}
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, "audit.rtc", "rtc-service", getEnv("ENVIRONMENT", "development"))

	messageRepo := repositories.NewMessageRepo(database)
	membershipRepo := repositories.NewMembershipRepo(database)
	userRepo := repositories.NewUserRepo(database)

	verifier := auth.NewVerifier(getEnv("AUTH_SECRET", "dev-secret"))
	authenticator := auth.NewAuthenticator(verifier, userRepo, 5*time.Second)

	registry := ws.NewRegistry()
	broadcaster := ws.NewBridgedBroadcaster(registry)

	presence := ws.NewPresenceTracker(broadcaster, ws.DefaultPresenceExpiry)
	go presence.Run(ctx, 15*time.Second)

	typing := ws.NewTypingManager(broadcaster, ws.DefaultTypingTimeout)
	relay := ws.NewMessageRelay(messageRepo, broadcaster, ws.DefaultStoreTimeout)
	huddles := ws.NewHuddleEngine(broadcaster, registry)

	sessionHandler := ws.NewSessionHandler(registry, presence, typing, relay, huddles, authenticator, membershipRepo, auditEmitter)
	historyHandler := handlers.NewHistoryHandler(relay, membershipRepo)
	presenceHandler := handlers.NewPresenceHandler(presence, membershipRepo)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("rtc-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(authenticator)

	router.GET("/channels/:channel_id/messages", authMiddleware, historyHandler.GetChannelMessages)
	router.GET("/workspaces/:workspace_id/presence", authMiddleware, presenceHandler.GetWorkspacePresence)

	router.GET("/ws", sessionHandler.Handle)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, auditEmitter, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
