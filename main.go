package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"birthday-chat-service/internal/auth"
	"birthday-chat-service/internal/config"
	"birthday-chat-service/internal/db"
	"birthday-chat-service/internal/handlers"
	"birthday-chat-service/internal/middleware"
	"birthday-chat-service/internal/notify"
	"birthday-chat-service/internal/observability"
	"birthday-chat-service/internal/presence"
	"birthday-chat-service/internal/rabbitmq"
	"birthday-chat-service/internal/repositories"
	"birthday-chat-service/internal/ws"
)

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := observability.SetupTracing(context.Background(), cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	if obsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		log.Printf("ws event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(obsPublisher)
		defer obsPublisher.Close()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("notification publisher mode=%s", rabbitmq.PublisherMode(publisher))
	notifier := notify.NewEmitter(publisher, cfg.ServiceName, cfg.Environment)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	convRepo := repositories.NewConversationRepo(database)
	msgRepo := repositories.NewMessageRepo(database)
	friendRepo := repositories.NewFriendshipRepo(database)

	registry := presence.NewRegistry()
	hub := ws.NewHub()
	eventRouter := ws.NewRouter(hub, registry, convRepo, msgRepo, notifier)
	wsHandler := ws.NewHandler(hub, eventRouter, registry, verifier)

	convHandler := handlers.NewConversationHandler(convRepo, msgRepo, friendRepo, hub, notifier)
	msgHandler := handlers.NewMessageHandler(convRepo, msgRepo, hub, registry, notifier)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/conversations", authMiddleware, convHandler.ListConversations)
	router.POST("/conversations/start", authMiddleware, convHandler.StartConversation)
	router.POST("/conversations/:conversation_id/read", authMiddleware, convHandler.MarkRead)
	router.DELETE("/conversations/:conversation_id", authMiddleware, convHandler.DeleteConversation)
	router.GET("/conversations/:conversation_id/unread", authMiddleware, convHandler.ListUnread)

	router.GET("/conversations/:conversation_id/messages", authMiddleware, msgHandler.ListMessages)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, msgHandler.PostMessage)
	router.PATCH("/conversations/:conversation_id/messages/:message_id", authMiddleware, msgHandler.EditMessage)
	router.DELETE("/conversations/:conversation_id/messages/:message_id", authMiddleware, msgHandler.DeleteMessage)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
