package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"keyhub/internal/api"
	"keyhub/internal/config"
	"keyhub/internal/db"
	"keyhub/internal/keygen"
	"keyhub/internal/keys"
	"keyhub/internal/logger"
	"keyhub/internal/metrics"
	"keyhub/internal/quota"
	"keyhub/internal/scheduler"
	"keyhub/internal/summarizer"
	"keyhub/internal/usage"

	"github.com/gin-gonic/gin"
)

// customRecovery is a middleware that recovers from panics and handles http.ErrAbortHandler gracefully.
func customRecovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					log.Warn("Client connection aborted", "path", c.Request.URL.Path)
					c.Abort()
					return
				}

				log.Error("Panic recovered",
					"error", recovered,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error, please try again"})
			}
		}()
		c.Next()
	}
}

// application holds everything main wires together.
type application struct {
	router    *gin.Engine
	store     *db.Store
	recorder  *usage.Recorder
	scheduler *scheduler.Scheduler
	closers   []io.Closer
}

// Close stops background work and releases resources in reverse order of creation.
func (a *application) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	// Drain pending usage events before the database goes away.
	a.recorder.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.store.Close()
}

func newSummaryCache(cfg config.CacheConfig, log *slog.Logger) (summarizer.Cache, io.Closer, error) {
	ttl := config.Duration(cfg.TTL)
	switch cfg.Type {
	case config.CacheTypeNone:
		return summarizer.NoCache{}, nil, nil
	case config.CacheTypeRedis:
		c, err := summarizer.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, ttl, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return c, c, nil
	default:
		return summarizer.NewMemoryCache(ttl), nil, nil
	}
}

func newExtractor(ctx context.Context, cfg config.SummarizerConfig) (summarizer.Extractor, io.Closer, error) {
	if cfg.Mode != config.SummarizerModeLLM {
		return summarizer.ManualExtractor{}, nil, nil
	}
	ex, err := summarizer.NewGeminiExtractor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, nil, err
	}
	return ex, ex, nil
}

// buildApplication wires storage, services and routes from cfg.
func buildApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	store, err := db.NewService(cfg.Database,
		db.WithUsageLimit(cfg.Keys.UsageLimit),
		db.WithGenerator(keygen.New(cfg.Keys.Prefix)),
	)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	log.Info("Database initialized", "type", cfg.Database.Type)

	app := &application{store: store}
	app.recorder = usage.NewRecorder(store, log)

	cache, cacheCloser, err := newSummaryCache(cfg.Cache, log)
	if err != nil {
		app.Close()
		return nil, err
	}
	if cacheCloser != nil {
		app.closers = append(app.closers, cacheCloser)
	}

	extractor, extractorCloser, err := newExtractor(ctx, cfg.Summarizer)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error creating extractor: %w", err)
	}
	if extractorCloser != nil {
		app.closers = append(app.closers, extractorCloser)
	}
	log.Info("Summarizer configured", "mode", cfg.Summarizer.Mode, "cache", cfg.Cache.Type)

	fetcher := summarizer.NewFetcher(log,
		summarizer.WithBaseURL(cfg.Summarizer.RawBaseURL),
		summarizer.WithToken(cfg.Summarizer.GitHubToken),
		summarizer.WithBranches(cfg.Summarizer.Branches),
		summarizer.WithHTTPClient(&http.Client{Timeout: config.Duration(cfg.Summarizer.HTTPTimeout)}),
	)
	summary := summarizer.NewService(fetcher, extractor, cache, log)

	handler := api.NewHandler(
		store,
		keys.NewService(store, log),
		quota.NewGuard(store, app.recorder, log),
		metrics.NewAggregator(store, log),
		summary,
		log,
	)

	app.scheduler = scheduler.NewScheduler(store, summary.Cache(), scheduler.Specs{
		OrphanPurge: cfg.Scheduler.OrphanPurgeSpec,
		CachePurge:  cfg.Scheduler.CachePurgeSpec,
	}, log)

	// Create a Gin router
	router := gin.New()
	// Use our custom recovery middleware instead of the default one.
	router.Use(customRecovery(log))
	router.Use(logger.RequestLogger(log))
	api.SetupRoutes(router, handler, cfg.Auth.SessionSecret)
	app.router = router

	return app, nil
}

func main() {
	configPath := os.Getenv("KEYHUB_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Load configuration
	cfg, warnings, err := config.LoadConfig(configPath)
	if err != nil {
		// Use a temporary logger for startup errors
		slog.Error("Error loading configuration", "error", err)
		os.Exit(1)
	}

	// Setup logger
	log := logger.New(cfg.Debug)
	log.Info("Logger initialized", "debug_mode", cfg.Debug)
	for _, warning := range warnings {
		log.Warn(warning)
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	app, err := buildApplication(ctx, cfg, log)
	if err != nil {
		log.Error("Error building application", "error", err)
		os.Exit(1)
	}

	if err := app.scheduler.Start(); err != nil {
		log.Error("Error starting scheduler", "error", err)
		app.Close()
		os.Exit(1)
	}

	// Create and start the main server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      app.router,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
	}

	// Graceful shutdown
	go func() {
		log.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, config.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	// Stop background tasks after in-flight requests have finished.
	app.Close()
	log.Info("Server exiting")
}
