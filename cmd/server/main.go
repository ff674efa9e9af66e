package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"lanshare/access"
	"lanshare/auth"
	"lanshare/infrastructure/files"
	"lanshare/infrastructure/ws"
	"lanshare/internal"
	"lanshare/repositories"
	"lanshare/runtime"
	"lanshare/runtime/workers"
	"lanshare/security"
	"lanshare/services"
	"lanshare/sink"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run owns the whole lifecycle so deferred cleanup always executes and
// the exit code is decided in exactly one place.
func run() (int, error) {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := internal.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	key, err := security.LoadOrCreateKey(config.CipherKeyPath)
	if err != nil {
		return exitRuntime, fmt.Errorf("cipher key: %w", err)
	}
	cipher, err := security.NewCipher(key)
	if err != nil {
		return exitRuntime, fmt.Errorf("cipher init: %w", err)
	}

	messageRepository, err := repositories.NewMessageRepository(db, cipher, logger, config.LimitMessages)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = messageRepository.Close() }()

	groupRepository := repositories.NewGroupRepository(db, messageRepository, logger)
	identityRepository := repositories.NewIdentityRepository(db, logger)
	searchRepository := repositories.NewSearchRepository(blugeWriter, logger)

	sup := workers.NewSupervisor(logger)
	registry := runtime.NewRegistry()
	evaluator := access.NewEvaluator(groupRepository, logger)
	presence := runtime.NewPresence(identityRepository, logger)

	engine := runtime.NewEngine(logger, sup, registry, evaluator, messageRepository,
		config.NumberOfWorkers, config.BufferSize, config.SinkTimeout, charReplacement)
	engine.Add(sink.NewSearchSink(searchRepository, logger))
	if logger.Enabled(ctx, slog.LevelDebug) {
		engine.Add(sink.NewLogSink(logger))
	}

	if config.DebugPort > 0 && logger.Enabled(ctx, slog.LevelDebug) {
		logger.Info("Debug store inspector available",
			"url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
		internal.StartDebugServer(db, config.DebugPort, nil, func() map[string]any {
			rooms, conns := registry.Stats()
			return map[string]any{"rooms": rooms, "connections": conns}
		})
	}

	fileStore := files.NewLocalStore(config.FilesDir, logger)
	admins := lo.Compact(lo.Map(strings.Split(config.AdminIdentities, ","),
		func(s string, _ int) string { return strings.TrimSpace(s) }))
	chatService := services.NewChatService(engine, messageRepository, identityRepository,
		groupRepository, searchRepository, presence, fileStore, admins, logger)
	groupService := services.NewGroupService(groupRepository, evaluator, engine, logger)

	tokens := auth.NewTokenManager([]byte(config.AuthSecret), config.AuthTokenDuration)
	server := ws.NewServer(chatService, groupService, tokens,
		config.MessagesPerSecond, config.MessageBurst, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	go func() {
		logger.Info("Starting engine...")
		if err := engine.Start(ctx); err != nil {
			errChan <- fmt.Errorf("engine error: %w", err)
		}
	}()

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	engine.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}
	return options
}
