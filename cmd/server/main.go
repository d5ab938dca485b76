// Package main is the entry point for the HaptiSync Go server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/haptisync/haptisync-go/internal/api"
	"github.com/haptisync/haptisync-go/internal/config"
	"github.com/haptisync/haptisync-go/internal/database"
	"github.com/haptisync/haptisync-go/internal/database/repositories"
	"github.com/haptisync/haptisync-go/internal/device"
	"github.com/haptisync/haptisync-go/internal/services/autoplay"
	"github.com/haptisync/haptisync-go/internal/services/library"
	"github.com/haptisync/haptisync-go/internal/services/playsync"
	"github.com/haptisync/haptisync-go/internal/services/pubsub"
	"github.com/haptisync/haptisync-go/internal/services/sequence"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Print startup banner
	printBanner(cfg)

	// Connect to database
	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 5,
		MaxOpenConn: 10,
		Debug:       cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	// Auto-migrate database schema
	log.Println("Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migrations complete")

	// Repositories
	scriptRepo := repositories.NewScriptRepository(db)
	playlistRepo := repositories.NewPlaylistRepository(db)
	settingRepo := repositories.NewSettingRepository(db)

	// Event bus feeding WebSocket clients
	bus := pubsub.New()

	// Script library with an initial scan of the scripts directory
	libraryService := library.NewService(scriptRepo, playlistRepo)
	libraryService.SetChangeCallback(func() { bus.Publish(pubsub.TopicLibraryUpdated, nil) })
	if n, err := libraryService.ImportDir(context.Background(), cfg.ScriptsDir); err != nil {
		log.Printf("Warning: initial script scan failed: %v", err)
	} else if n > 0 {
		log.Printf("Imported %d scripts from %s", n, cfg.ScriptsDir)
	}

	// Directory watcher for dropped funscript files
	var watcher *library.Watcher
	if cfg.WatchScripts {
		watcher = library.NewWatcher(libraryService, cfg.ScriptsDir, cfg.WatchDebounce)
		if err := watcher.Start(); err != nil {
			log.Printf("Warning: script watcher failed to start: %v", err)
			watcher = nil
		}
	}

	// Synchronization engine
	syncService := playsync.NewService(playsync.Config{
		TickInterval:     cfg.DriftTickInterval,
		CheckInterval:    cfg.DriftCheckInterval,
		LocalThresholdMs: cfg.DriftLocalThresholdMs,
		EmbedThresholdMs: cfg.DriftEmbedThresholdMs,
		CorrectionCapMs:  cfg.DriftCorrectionCapMs,
	})
	syncService.SetUpdateCallback(func(st playsync.Status) { bus.Publish(pubsub.TopicSyncStatus, st) })
	syncService.SetDriftCallback(func(sample playsync.DriftSample) { bus.Publish(pubsub.TopicDriftSample, sample) })

	// Autoplay loop controller
	loopService := autoplay.NewService(autoplay.Config{
		EarlyMargin:   cfg.LoopEarlyMargin,
		RetryInterval: cfg.LoopRetryInterval,
	}, libraryService)
	loopService.SetUpdateCallback(func(st autoplay.Status) { bus.Publish(pubsub.TopicAutoplayStatus, st) })

	// Device manager over the simulated device; a pairing change feeds both
	// engines.
	sim := device.NewSim(device.SimConfig{LatencyMs: cfg.SimLatencyMs})
	deviceManager := device.NewManager(sim)
	deviceManager.SetChangeCallback(func(dev device.Device) {
		syncService.SetDevice(context.Background(), dev)
		loopService.SetDevice(dev)
	})

	// Restore persisted preferences
	restoreSettings(context.Background(), settingRepo, syncService, loopService)

	// API server
	apiServer := api.NewServer(libraryService, syncService, loopService, deviceManager, settingRepo, bus)

	// Create router
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin, "http://localhost:3000", "http://localhost:4000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		Debug:            cfg.IsDevelopment(),
	})
	router.Use(corsMiddleware.Handler)

	// Routes
	router.Get("/health", healthCheckHandler)
	router.Mount("/", apiServer.Routes())

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%s\n", cfg.Port)
		log.Printf("API endpoint: http://localhost:%s/api\n", cfg.Port)
		log.Printf("WebSocket endpoint: ws://localhost:%s/ws\n", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Cleanup services in reverse order
	if watcher != nil {
		watcher.Stop()
	}
	loopService.Cleanup()
	syncService.Cleanup()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// restoreSettings applies persisted preferences to freshly built services.
func restoreSettings(ctx context.Context, settings *repositories.SettingRepository, sync *playsync.Service, loop *autoplay.Service) {
	if offset, err := settings.Int64(ctx, api.SettingEmbedOffset, 0); err == nil && offset != 0 {
		log.Printf("Restoring manual offset: %dms", offset)
		sync.SetManualOffset(offset)
	}

	if saved, err := settings.FindByKey(ctx, api.SettingAutoplayMode); err == nil && saved != nil && saved.Value != "" {
		if mode, err := sequence.ParseMode(saved.Value); err == nil {
			log.Printf("Restoring autoplay mode: %s", mode)
			loop.SetMode(mode)
		} else {
			log.Printf("Warning: ignoring saved autoplay mode %q", saved.Value)
		}
	}

	if saved, err := settings.FindByKey(ctx, api.SettingAutoplayPlaylist); err == nil && saved != nil && saved.Value != "" {
		log.Printf("Restoring autoplay playlist: %s", saved.Value)
		loop.SetPlaylist(saved.Value)
	}
}

// healthCheckHandler returns the server health status.
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := fmt.Sprintf(`{
  "status": "ok",
  "timestamp": "%s",
  "version": "%s",
  "uptime": "N/A"
}`, time.Now().UTC().Format(time.RFC3339), Version)

	_, _ = w.Write([]byte(response))
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  HaptiSync Go Server")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Port:        %s\n", cfg.Port)
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	fmt.Printf("  Scripts:     %s\n", cfg.ScriptsDir)
	fmt.Println("============================================")
}
