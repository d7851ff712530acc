package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"codecollab/internal/config"
	"codecollab/internal/http/http_server"
	"codecollab/internal/rooms"
	"codecollab/internal/services/executor"
	"codecollab/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Room registry (the only shared mutable state)
	registry := rooms.NewRegistry()

	// 4. Optional: Redis event bridge for multi-instance fan-out
	if cfg.RedisEventsHost != "" {
		redisClient, err := rooms.NewEventsClient(cfg.RedisEventsHost, int(cfg.RedisEventsPort))
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		rooms.NewEventBridge(ctx, redisClient, registry)
		Log.Info("Event bridge enabled", zap.String("host", cfg.RedisEventsHost))
	}

	// 5. Execution proxy towards the external runner
	execSvc := executor.NewPistonService(cfg.ExecApiUrl,
		time.Duration(cfg.ExecTimeoutSeconds)*time.Second)

	// 6. WS server (sessions + event routing)
	wsSrv := ws.NewWsServer(registry, execSvc, cfg.SendBufferSize)

	// 7. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, registry, execSvc)
	go func() {
		<-ctx.Done()
		_ = httpServer.Dispose()
	}()
	if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
