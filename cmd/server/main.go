package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"face-gate-go/config"
	"face-gate-go/internal/api/handlers"
	"face-gate-go/internal/core/processor"
	"face-gate-go/internal/db"
	"face-gate-go/internal/db/repository"
	"face-gate-go/internal/db/vectorsearch"
	"face-gate-go/internal/integrations/extractor"
	"face-gate-go/internal/integrations/extractor/dlibsvc"
	"face-gate-go/internal/integrations/mqtt"
	"face-gate-go/internal/integrations/storage"
	"face-gate-go/internal/logger"
	"face-gate-go/internal/services/access"
	"face-gate-go/internal/services/cleanup"
	"face-gate-go/internal/services/enrollment"
	"face-gate-go/internal/services/matching"
	"face-gate-go/internal/util/timezone"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Konfiguration laden
	configPath := os.Getenv("FACEGATE_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Logger initialisieren
	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	// Zeitzone initialisieren
	timezone.Initialize(cfg.Server.Timezone)

	// Datenbank öffnen und migrieren
	log.Info("Initializing database...")
	database, err := db.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	repo := repository.NewGormRepository(database)

	// Nächste-Nachbarn-Suche anhand der Datenbank-Fähigkeiten wählen
	searcher, err := vectorsearch.Select(database, cfg.Matching, cfg.DB)
	if err != nil {
		log.Fatalf("Failed to initialize nearest-neighbour search: %v", err)
	}
	log.Infof("Nearest-neighbour search backend: %s", searcher.Name())

	// Objektspeicher wählen
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store storage.ObjectStore
	switch cfg.Storage.Provider {
	case "gcs":
		gcsStore, err := storage.NewGCSStore(ctx, cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to initialize GCS storage: %v", err)
		}
		defer gcsStore.Close()
		store = gcsStore
	default:
		localStore, err := storage.NewLocalStore(cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to initialize local storage: %v", err)
		}
		store = localStore
	}
	log.Infof("Object storage provider: %s", cfg.Storage.Provider)

	// Template-Extraktor registrieren
	registry := extractor.NewRegistry()
	dlibService := dlibsvc.NewService(cfg.Extractor)
	registry.Register(dlibService)
	if !registry.SetActive(dlibService.Name()) {
		log.Fatalf("Failed to activate extractor provider %s", dlibService.Name())
	}
	active, _ := registry.Active()
	if !active.IsAvailable(ctx) {
		log.Warnf("Extractor service at %s is not reachable yet; continuing anyway", cfg.Extractor.URL)
	}

	// Worker-Pool für die Extraktion starten
	pool := processor.NewWorkerPool(active)
	defer pool.Shutdown()

	// MQTT-Publisher starten, falls aktiviert
	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewPublisher(cfg.MQTT)
		if err := publisher.Start(); err != nil {
			log.Warnf("Failed to start MQTT publisher: %v. Continuing without MQTT.", err)
			publisher = nil
		} else {
			defer publisher.Stop()
		}
	} else {
		log.Info("MQTT is disabled in config.")
	}

	// Dienste verdrahten. Ein nil-Publisher würde als non-nil-Interface
	// ankommen, deshalb die explizite Unterscheidung.
	var enrollmentPublisher enrollment.EventPublisher
	var matchingPublisher matching.EventPublisher
	if publisher != nil {
		enrollmentPublisher = publisher
		matchingPublisher = publisher
	}

	enrollmentSvc := enrollment.NewService(repo, store, pool, enrollmentPublisher, cfg.Extractor)
	matchingSvc := matching.NewService(repo, searcher, pool, matchingPublisher, cfg.Matching)
	gate := access.NewGate()

	// Bereinigung im Hintergrund starten
	tempDir := filepath.Join(cfg.Storage.LocalDir, "temp")
	cleanupSvc := cleanup.NewCleanupService(database, cfg.Cleanup, tempDir)
	go cleanupSvc.Start(ctx)

	// HTTP-Router aufbauen
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "X-User-Id")
	router.Use(cors.New(corsConfig))

	// Lokale Speicher-Objekte statisch ausliefern
	if cfg.Storage.Provider == "local" {
		router.Static(cfg.Storage.LocalBaseURL, cfg.Storage.LocalDir)
	}

	apiHandler := handlers.NewAPIHandler(repo, cfg, enrollmentSvc, matchingSvc, gate, store, pool)
	apiHandler.RegisterRoutes(router.Group("/api"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Server starten
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Auf Beendigungssignal warten
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}
