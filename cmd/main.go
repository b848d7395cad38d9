package main

import (
	"chat-core/auth"
	"chat-core/contract"
	"chat-core/errors"
	"chat-core/infrastructure/http/server"
	"chat-core/moderation"
	"chat-core/repositories"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/services"
	"chat-core/storage"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/rs/cors"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Deferred cleanups run before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env is fine, the environment may already be set.
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := config.CharacterRune()
	if err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Store and user index
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.IndexFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		log.Info("Closing user index...")
		_ = indexWriter.Close()
	}()

	userRepository := repositories.NewUserRepository(db, log)
	userIndex := repositories.NewUserIndex(indexWriter, log)
	chatRepository := repositories.NewChatRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log)

	// 3. Attachments and moderation
	attachments, uploads, err := openAttachmentStorage(config, log)
	if err != nil {
		return exitConfig, err
	}
	censor, err := openModerator(config, charReplacement, log)
	if err != nil {
		return exitConfig, err
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Live delivery
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log), registry, runtime.Config{
		FanoutShards:         config.FanoutShards,
		BufferSize:           config.BufferSize,
		DeliveryTimeout:      config.DeliveryTimeout,
		MetricInterval:       config.MetricInterval,
		LowCapacityThreshold: config.LowCapacityThreshold,
	})
	orchestrator.Start(ctx)
	defer orchestrator.Stop()

	// 6. Services & HTTP
	tokens := auth.NewTokenManager(config.TokenSecret, config.TokenTTL)
	api := server.NewServer(log,
		services.NewAuthService(userRepository, userIndex, tokens, log),
		services.NewUserService(userRepository, userIndex),
		services.NewChatService(chatRepository, messageRepository, userRepository, orchestrator, attachments, log),
		services.NewMessageService(chatRepository, messageRepository, userRepository, orchestrator, attachments, censor, log),
		auth.NewAuthenticator(tokens, userRepository, log),
		orchestrator,
		server.WebsocketConfig{
			BufferSize:   config.ConnectionBuffer,
			WriteTimeout: config.WriteTimeout,
			PingInterval: config.PingInterval,
		},
		server.Limits{AttachmentSize: config.MaxAttachmentSize},
	)
	handler := cors.New(cors.Options{
		AllowedOrigins:   config.AllowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(api.Router(uploads))

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// websocket sessions derive from ctx so that they end on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("HTTP shutdown failed: %w", err)
	}
	log.Info("Program stopped cleanly")
	return exitOK, nil
}

// openAttachmentStorage picks S3 when a bucket is configured. The returned
// handler serves local files and is nil for S3.
func openAttachmentStorage(config Config, log *slog.Logger) (contract.IAttachmentStorage, http.Handler, error) {
	if config.S3Bucket != "" {
		client, err := storage.NewS3Client(config.S3())
		if err != nil {
			return nil, nil, err
		}
		log.Info("Attachments stored in S3", "bucket", config.S3Bucket)
		return storage.NewS3Storage(client, config.S3(), log), nil, nil
	}
	disk, err := storage.NewDiskStorage(config.UploadsDir, config.UploadsURL, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Attachments stored on disk", "directory", disk.Root())
	return disk, disk.Handler(), nil
}

// openModerator returns nil when moderation is disabled. An external
// dictionary replaces the embedded one.
func openModerator(config Config, charReplacement rune, log *slog.Logger) (services.Censor, error) {
	if !config.ModerationEnabled {
		return nil, nil
	}
	var words []string
	if config.ModerationDictionary != "" {
		file, err := os.Open(config.ModerationDictionary)
		if err != nil {
			return nil, fmt.Errorf("open moderation dictionary: %w", err)
		}
		defer file.Close()
		if words, err = moderation.ReadDictionary(file); err != nil {
			return nil, fmt.Errorf("read moderation dictionary: %w", err)
		}
	} else {
		dictionary, err := moderation.DefaultDictionary()
		if err != nil {
			return nil, err
		}
		log.Info("Moderation dictionaries loaded", "languages", dictionary.Languages)
		words = dictionary.Words
	}
	return moderation.NewModerator(words, charReplacement, log)
}
