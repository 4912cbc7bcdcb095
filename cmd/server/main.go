package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linked-app/linked/backend/internal/chat"
	"github.com/linked-app/linked/backend/internal/config"
	"github.com/linked-app/linked/backend/internal/contract"
	"github.com/linked-app/linked/backend/internal/delivery"
	"github.com/linked-app/linked/backend/internal/handlers"
	"github.com/linked-app/linked/backend/internal/logging"
	"github.com/linked-app/linked/backend/internal/realtime"
	"github.com/linked-app/linked/backend/internal/services"
	"github.com/linked-app/linked/backend/internal/supabase"
	"github.com/linked-app/linked/backend/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env and the environment
	cfg, dotenv, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if !dotenv {
		logger.Info("[Config] No .env file found, using environment variables")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize Supabase clients
	db := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.RequestTimeout, logger)
	push, err := realtime.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.RealtimeHeartbeat, logger)
	if err != nil {
		return fmt.Errorf("failed to create realtime client: %w", err)
	}

	// Initialize services
	messageService := services.NewMessageService(db, services.MessageConfig{
		RequestTimeout: cfg.RequestTimeout,
		MaxLength:      cfg.MaxMessageLength,
		Broadcast:      cfg.BroadcastOnSend,
	}, logger)

	mux := delivery.NewMultiplexer(messageService, push, delivery.Config{
		PollInterval:      cfg.PollInterval,
		RequestTimeout:    cfg.RequestTimeout,
		PushRetryMaxDelay: cfg.PushRetryMaxDelay,
	}, delivery.NewMetrics(registry), logger)

	sessions := services.NewSessionService(func() *chat.Conversation {
		return chat.New(messageService, mux, logger)
	}, logger)

	hub := websocket.NewHub(sessions, logger)
	sessions.SetNotifier(hub)
	go hub.Run()

	cleanupService := services.NewCleanupService(sessions, cfg.CleanupInterval, cfg.SessionTimeout, logger)

	// Start background cleanup worker
	go cleanupService.Start()

	userService := services.NewUserService(db, cfg.RequestTimeout, logger)
	uploadService := services.NewUploadService(db, cfg.UploadBucket, 0, logger)

	var contactService *services.ContactService
	var matchmakingService *services.MatchmakingService
	if cfg.ContractEnabled() {
		reader, closeChain, err := contract.Dial(ctx, cfg.EthRPCURL, cfg.ContractAddress, cfg.RequestTimeout, logger)
		if err != nil {
			return err
		}
		defer closeChain()
		contactService = services.NewContactService(reader, messageService, logger)
		matchmakingService = services.NewMatchmakingService(reader, logger)
		logger.Info("[Contract] Reader bound", zap.String("address", reader.Address().Hex()))
	} else {
		logger.Info("[Contract] ETH_RPC_URL or CONTRACT_ADDRESS not set, contacts and matchmaking endpoints disabled")
	}

	logger.Info("[Config] CORS allowed origins", zap.Strings("origins", cfg.CorsOrigins))

	router := handlers.NewRouter(handlers.RouterConfig{
		CorsOrigins:   cfg.CorsOrigins,
		Sessions:      sessions,
		Conversations: handlers.NewConversationHandler(sessions, logger),
		Messages:      handlers.NewMessageHandler(sessions, logger),
		Users:         handlers.NewUserHandler(userService),
		Uploads:       handlers.NewUploadHandler(uploadService),
		Contacts:      handlers.NewContactsHandler(contactService),
		Matchmaking:   handlers.NewMatchmakingHandler(matchmakingService),
		WebSocket:     websocket.NewHandler(hub).ServeWS,
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Linked chat gateway starting", zap.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	cleanupService.Stop()
	sessions.CloseAll()
	hub.Stop()
	return nil
}
