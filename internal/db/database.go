package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"face-gate-go/config"
	"face-gate-go/internal/core/models"
	"face-gate-go/internal/db/vectorsearch"

	"github.com/glebarez/sqlite" // Pure Go SQLite Treiber
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open öffnet die Datenbankverbindung gemäß Konfiguration und führt die
// Auto-Migrationen durch. Die Verbindung wird explizit zurückgegeben und
// von den Aufrufern weitergereicht; es gibt keinen globalen Zustand.
func Open(cfg *config.Config) (*gorm.DB, error) {
	// Konfiguration des GORM-Loggers
	gormLogger := logger.New(
		log.StandardLogger(), // Verwende den konfigurierten logrus-Logger
		logger.Config{
			SlowThreshold:             time.Second * 2, // SQL-Abfragen langsamer als 2 Sekunden werden geloggt
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true, // ErrRecordNotFound wird nicht geloggt
			Colorful:                  false,
		},
	)

	var (
		database *gorm.DB
		err      error
	)

	switch cfg.DB.Driver {
	case "postgres":
		log.Infof("Connecting to database: postgres://%s:%d/%s", cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
		database, err = gorm.Open(postgres.Open(cfg.DB.PostgresDSN()), &gorm.Config{
			Logger: gormLogger,
		})
	case "sqlite":
		// Sicherstellen, dass das Verzeichnis für die Datenbankdatei existiert
		dbDir := filepath.Dir(cfg.DB.File)
		if mkErr := os.MkdirAll(dbDir, 0750); mkErr != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", mkErr)
		}
		log.Infof("Connecting to database: %s", cfg.DB.File)
		database, err = gorm.Open(sqlite.Open(cfg.DB.File), &gorm.Config{
			Logger: gormLogger,
		})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.DB.Driver)
	}

	if err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Verbindungs-Pool-Einstellungen
	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Database connection established successfully")

	// Unter Postgres die pgvector-Erweiterung aktivieren, bevor die
	// Embedding-Tabelle mit ihrer vector-Spalte migriert wird. Fehlende
	// Rechte sind kein harter Fehler; ohne Erweiterung wird die Spalte
	// portabel als Text angelegt und die Suche läuft über den
	// Brute-Force-Pfad.
	vectorColumn := true
	if cfg.DB.Driver == "postgres" {
		if err := database.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			log.Warnf("Could not enable pgvector extension: %v", err)
		}
		vectorColumn = vectorsearch.HasPgVector(database)
		if !vectorColumn {
			log.Warn("pgvector extension not available, storing embeddings in a plain text column")
		}
	}

	// Auto-Migrationen durchführen
	log.Info("Running database migrations...")
	if err := migrateSchema(database, vectorColumn); err != nil {
		log.Errorf("Database migration failed: %v", err)
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	log.Info("Database migrations completed successfully")
	return database, nil
}

// migrateSchema legt das Schema an. Der vector-Spaltentyp wird nur benutzt,
// wenn die Datenbank ihn kennt; sonst bekommt die Embedding-Tabelle eine
// Textspalte, in der pgvector.Vector als Literal ("[0.1,0.2,...]") abgelegt
// wird. Die Textform liest und schreibt der Treiber über Scan/Value genauso.
func migrateSchema(database *gorm.DB, vectorColumn bool) error {
	if err := database.AutoMigrate(&models.User{}, &models.UserImage{}); err != nil {
		return err
	}
	if vectorColumn {
		return database.AutoMigrate(&models.FaceEmbedding{})
	}
	if database.Migrator().HasTable(&models.FaceEmbedding{}) {
		return nil
	}
	stmts := []string{
		`CREATE TABLE face_embeddings (
			id uuid PRIMARY KEY,
			user_id uuid NOT NULL,
			embedding text,
			source text,
			created_at timestamptz
		)`,
		`CREATE INDEX idx_face_embeddings_user_id ON face_embeddings(user_id)`,
		`CREATE INDEX idx_face_embeddings_source ON face_embeddings(source)`,
	}
	for _, stmt := range stmts {
		if err := database.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
