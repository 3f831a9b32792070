package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/dinehub/realtime-core/internal/config"
	"github.com/dinehub/realtime-core/internal/database"
	"github.com/dinehub/realtime-core/internal/handler"
	"github.com/dinehub/realtime-core/internal/middleware"
	"github.com/dinehub/realtime-core/internal/models"
	"github.com/dinehub/realtime-core/internal/observability"
	"github.com/dinehub/realtime-core/internal/repository"
	"github.com/dinehub/realtime-core/internal/router"
	"github.com/dinehub/realtime-core/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	observability.RegisterMetrics()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Order{}, &models.ChatRoom{}, &models.ChatMessage{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	orderRepo := repository.NewOrderRepository(db)
	chatRepo := repository.NewChatRepository(db)

	realtimeService := service.NewRealtimeService(redisClient, cfg.ChannelBase, natsConn, cfg.TypingClearInterval, validate, logger)
	orderService := service.NewOrderService(orderRepo, redisClient, cfg.ChannelBase, cfg.DuplicateWindow, cfg.PlacementTimeout, realtimeService, validate, logger)
	chatService := service.NewChatService(chatRepo, redisClient, cfg.ChannelBase, realtimeService, validate, logger)

	realtimeService.SetMessageSink(chatService)
	realtimeService.SetRoomGreeter(chatService)

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	realtimeService.Start(runCtx)

	orderHandler := handler.NewOrderHandler(orderService, logger)
	chatHandler := handler.NewChatHandler(chatService, logger)
	realtimeHandler := handler.NewRealtimeHandler(realtimeService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		OrderHandler:    orderHandler,
		ChatHandler:     chatHandler,
		RealtimeHandler: realtimeHandler,
		StaffMiddleware: middleware.StaffProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopRun)
}

func waitForShutdown(app *fiber.App, stopRun context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopRun()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
