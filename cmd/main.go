package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/server"
	"chat-relay/services"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer (database close, index
// close) executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		log.Info("Closing user index...")
		_ = blugeWriter.Close()
	}()

	// 3. Repositories
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages, lo.ToPtr(config.GlobalRetention))
	roomRepository := repositories.NewRoomRepository(db)
	friendRepository := repositories.NewFriendRepository(db)
	userRepository := repositories.NewUserRepository(db)
	userIndex := repositories.NewUserIndex(blugeWriter)

	// 4. Runtime: registry, router, broker, content moderation
	registry := runtime.NewRegistry(log, roomRepository)
	router := runtime.NewChannelRouter(log, registry, roomRepository, config.WriteTimeout)

	var moderator *moderation.Moderator
	if len(config.CensoredWords) > 0 {
		built, err := moderation.NewModerator(config.CensoredWords, '*', log)
		if err != nil {
			return fmt.Errorf("moderation dictionary error: %w", err)
		}
		moderator = &built
	}
	broker := runtime.NewBroker(log, messageRepository, router, moderator)

	// 5. Services
	authService := services.NewAuthService(userRepository, userIndex, config.AuthTokenDuration)
	chatService := services.NewChatService(broker, registry, messageRepository, roomRepository)
	roomService := services.NewRoomService(log, roomRepository, router)
	friendService := services.NewFriendService(log, friendRepository, router)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Health monitoring under supervision
	monitor, err := observability.NewMonitor(log, registry)
	if err != nil {
		return fmt.Errorf("monitor init failed: %w", err)
	}
	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	supervisor.Add(workers.NewHealthWorker(log, monitor, config.HealthInterval))
	go supervisor.Run(ctx)

	// 8. HTTP + Websocket surface
	srv := server.New(log, authService, chatService, roomService, friendService, userIndex, monitor)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: srv.Routes()}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "address", address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 9. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 10. Final Cleanup: drain workers, then the HTTP surface
	supervisor.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	log.Info("Program stopped cleanly")

	return nil
}
