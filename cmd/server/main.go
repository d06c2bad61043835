package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magefree/tcg-server-go/internal/config"
	"github.com/magefree/tcg-server-go/internal/data"
	"github.com/magefree/tcg-server-go/internal/game"
	"github.com/magefree/tcg-server-go/internal/server"
	"github.com/magefree/tcg-server-go/internal/storage"
	"github.com/magefree/tcg-server-go/internal/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting tcg server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := data.LoadFile(cfg.Data.Definitions, logger)
	if err != nil {
		logger.Fatal("failed to load definitions", zap.Error(err))
	}

	dsn := cfg.Storage.SQLitePath
	if cfg.Storage.Driver == storage.DriverPostgres {
		dsn = cfg.Database.DSN()
	}
	store, err := storage.Open(ctx, cfg.Storage.Driver, dsn, logger)
	if err != nil {
		logger.Fatal("failed to open match storage", zap.Error(err))
	}
	if store != nil {
		defer store.Close()
	}

	var recorder *game.ReplayRecorder
	if cfg.Server.ReplayDir != "" {
		recorder = game.NewReplayRecorder(logger, cfg.Server.ReplayDir)
	}

	behavior, err := cfg.Game.VersionBehavior()
	if err != nil {
		logger.Fatal("invalid game behavior", zap.Error(err))
	}
	manager := server.NewManager(registry, store, recorder, server.Settings{
		MaxMatches: cfg.Server.MaxMatches,
		Rules:      cfg.Game.Rules,
		Behavior:   behavior,
		AlwaysOmni: cfg.Game.AlwaysOmni,
	}, logger)

	wsOpts := transport.WebsocketOptions{
		RPCTimeout:     cfg.WebSocket.RPCTimeout,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
	}
	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: server.NewServer(manager, wsOpts, cfg.WebSocket.AllowedOrigins, logger),
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(serveErr))
			stop()
		}
	}()

	logger.Info("tcg server initialized",
		zap.String("version", version),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Strings("decks", registry.DeckNames()),
		zap.Int("max_matches", cfg.Server.MaxMatches),
	)

	<-ctx.Done()
	logger.Info("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("matches still running at shutdown", zap.Error(err))
	}

	logger.Info("tcg server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
