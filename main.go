package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chat-gateway/internal/attachments"
	"chat-gateway/internal/auth"
	"chat-gateway/internal/bus"
	"chat-gateway/internal/config"
	"chat-gateway/internal/db"
	grpcserver "chat-gateway/internal/grpc"
	"chat-gateway/internal/handlers"
	"chat-gateway/internal/jobs"
	"chat-gateway/internal/middleware"
	"chat-gateway/internal/observability"
	"chat-gateway/internal/rabbitmq"
	"chat-gateway/internal/repositories"
	"chat-gateway/internal/session"
	"chat-gateway/internal/staff"
	"chat-gateway/internal/telemetry"
	"chat-gateway/internal/ws"
)

const serviceName = "chat-gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}

	database, err := db.Connect(cfg.DBDSN, logger.Named("db"))
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	attachmentRepo := repositories.NewAttachmentRepo(database)
	favoriteRepo := repositories.NewFavoriteRepo(database)
	userRepo := repositories.NewUserRepo(database, cfg.DBDSN, logger.Named("users"))

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger.Named("rabbitmq"))
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.Environment, logger.Named("audit"))

	local := bus.NewLocal(logger.Named("bus"))
	var groupBus bus.Bus = local
	busMode := "local"
	if cfg.AMQPURL != "" {
		cluster, err := bus.DialAMQP(cfg.AMQPURL, cfg.BusExchange, local, logger.Named("bus"))
		if err != nil {
			logger.Warn("cluster bus unavailable, delivering locally only", zap.Error(err))
		} else {
			defer cluster.Close()
			groupBus, busMode = cluster, "amqp"
			go func() {
				if err := cluster.Run(ctx); err != nil {
					logger.Error("cluster bus stopped", zap.Error(err))
				}
			}()
		}
	}

	registry := staff.NewRegistry(logger.Named("staff"))
	go func() {
		if err := registry.Run(ctx, userRepo); err != nil {
			logger.Error("staff registry stopped", zap.Error(err))
		}
	}()

	deps := session.Deps{
		Rooms:       roomRepo,
		Messages:    messageRepo,
		Attachments: attachmentRepo,
		Favorites:   favoriteRepo,
		Bus:         groupBus,
		Staff:       registry,
		Validator:   attachments.NewValidator(cfg.MaxAttachmentSize, cfg.AllowedAttachmentTypes),
		Audit:       audit,
		Log:         logger.Named("session"),
		PageSize:    cfg.PageSize,
		ActionRate:  rate.Limit(cfg.ActionRate),
		ActionBurst: cfg.ActionBurst,
	}
	authenticator := auth.NewAuthenticator(cfg.JWTSecret, userRepo, logger.Named("auth"))

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName), observability.HTTPMetricsMiddleware())

	authed := router.Group("", middleware.AuthMiddleware(authenticator))
	authed.GET("/ws/chat/", ws.NewHandler(session.UserProfile(), deps, logger.Named("ws")).Handle)
	authed.GET("/ws/admin-chat/", ws.NewHandler(session.AdminProfile(), deps, logger.Named("ws")).Handle)
	handlers.RegisterDebugRoutes(authed, audit, cfg.DebugRoutes)
	handlers.RegisterOpsRoutes(router, handlers.NewOpsHandler(database, map[string]handlers.StatusReporter{
		"publisher": func() string { return rabbitmq.PublisherMode(publisher) },
		"bus":       func() string { return busMode },
	}))

	scheduler, err := jobs.NewScheduler(cfg.CleanupCron, logger.Named("jobs"),
		jobs.CleanupJobs(roomRepo, attachmentRepo, cfg.AttachmentDanglingTTL, time.Now)...)
	if err != nil {
		logger.Fatal("failed to build scheduler", zap.Error(err))
	}
	go scheduler.Run(ctx)

	healthServer := grpcserver.NewHealthServer(logger.Named("grpc"))
	go func() {
		if err := healthServer.ListenAndServe(cfg.GRPCAddr); err != nil {
			logger.Error("grpc server stopped", zap.Error(err))
		}
	}()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()
	healthServer.SetServing(true)

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	healthServer.Stop()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
}
