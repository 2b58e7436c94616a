package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sandbridge/sandbridge/internal/api"
	"github.com/sandbridge/sandbridge/internal/common/config"
	"github.com/sandbridge/sandbridge/internal/common/logger"
	"github.com/sandbridge/sandbridge/internal/common/tracing"
	"github.com/sandbridge/sandbridge/internal/events/bus"
	"github.com/sandbridge/sandbridge/internal/popout"
	dockerruntime "github.com/sandbridge/sandbridge/internal/runtime/docker"
	"github.com/sandbridge/sandbridge/internal/surface"
	"github.com/sandbridge/sandbridge/internal/transcript"
	"github.com/sandbridge/sandbridge/internal/transport"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting sandbridge surface daemon...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect the sync bus. An empty NATS URL keeps sync in-process.
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
		log.Info("Connected to NATS sync bus", zap.String("url", cfg.NATS.URL))
	} else {
		eventBus = bus.NewMemoryEventBus(log)
		log.Info("Using in-memory sync bus")
	}
	defer eventBus.Close()

	// 5. Initialize Docker client and sandbox runtime
	dockerClient, err := dockerruntime.NewClient(cfg.Docker, log)
	if err != nil {
		log.Fatal("Failed to initialize Docker client", zap.Error(err))
	}
	defer dockerClient.Close()

	if err := dockerClient.Ping(ctx); err != nil {
		log.Fatal("Failed to connect to Docker daemon", zap.Error(err))
	}
	log.Info("Connected to Docker daemon")

	sandbox := dockerruntime.NewSandbox(dockerClient, cfg.Sandbox, log)

	// 6. Open the transcript store
	store, err := transcript.New(cfg.Transcript)
	if err != nil {
		log.Fatal("Failed to open transcript store", zap.Error(err))
	}
	defer store.Close()
	log.Info("Opened transcript store", zap.String("backend", cfg.Transcript.Backend))

	// 7. Assemble and mount the surface
	host := popout.NewProcessHost(cfg.Popout.OpenCommand, log)
	surf, err := surface.New(cfg, eventBus, sandbox, host, store, log)
	if err != nil {
		log.Fatal("Failed to assemble surface", zap.Error(err))
	}

	if err := surf.Mount(ctx); err != nil {
		log.Fatal("Failed to mount surface", zap.Error(err))
	}
	log.Info("Surface mounted",
		zap.String("mode", string(surf.Mode())),
		zap.String("session_id", surf.SessionID()))

	// 8. Start the upstream feed when configured
	if cfg.Transport.URL != "" {
		feed := transport.NewFeed(cfg.Transport, surf, log)
		go func() {
			if err := feed.Run(ctx); err != nil {
				log.Error("Upstream feed stopped", zap.Error(err))
			}
		}()
		log.Info("Upstream feed started", zap.String("url", cfg.Transport.URL))
	}

	// 9. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(surf, store, cfg, log)

	port := cfg.Server.Port
	if port == 0 {
		port = 8086
	}
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 10. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 11. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down sandbridge...")

	// 12. Graceful shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := surf.Unmount(shutdownCtx); err != nil {
		log.Error("Surface unmount error", zap.Error(err))
	}

	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracing shutdown error", zap.Error(err))
	}

	log.Info("Sandbridge stopped")
}
