package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	DataDir     string   `mapstructure:"data_dir"`
	Timezone    string   `mapstructure:"timezone"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	Driver   string `mapstructure:"driver"`   // "sqlite" oder "postgres"
	File     string `mapstructure:"file"`     // für SQLite
	Host     string `mapstructure:"host"`     // für PostgreSQL
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// StorageConfig enthält Einstellungen für den Objektspeicher
type StorageConfig struct {
	Provider        string `mapstructure:"provider"` // "gcs" oder "local"
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
	SignedURLDays   int    `mapstructure:"signed_url_days"` // Gültigkeit signierter URLs
	LocalDir        string `mapstructure:"local_dir"`
	LocalBaseURL    string `mapstructure:"local_base_url"` // Basis-URL für lokal gespeicherte Dateien
}

// ExtractorConfig enthält Einstellungen für den Encoder-Dienst
type ExtractorConfig struct {
	URL            string  `mapstructure:"url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	Dimension      int     `mapstructure:"dimension"` // feste Vektorlänge des Encoders
	MinConfidence  float64 `mapstructure:"min_confidence"`
}

// MatchingConfig enthält Einstellungen für den Login-Abgleich
type MatchingConfig struct {
	Threshold float64 `mapstructure:"threshold"` // maximale L2-Distanz für einen Treffer
	Limit     int     `mapstructure:"limit"`
	Search    string  `mapstructure:"search"` // "auto", "indexed" oder "brute_force"
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// CleanupConfig enthält Bereinigungseinstellungen für temporäre Uploads
type CleanupConfig struct {
	TempRetentionHours int `mapstructure:"temp_retention_hours"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Standardwerte festlegen
	setDefaults(v)

	// Konfigurationsdatei laden, wenn vorhanden
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.AutomaticEnv()
	v.SetEnvPrefix("FACEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Konfiguration in Struct umwandeln
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	// Sicherstellen, dass erforderliche Verzeichnisse existieren
	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server-Standardwerte
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("server.cors_origins", []string{"*"})

	// Log-Standardwerte
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/face-gate.log")

	// DB-Standardwerte
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.file", "/data/face-gate.db")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.ssl_mode", "disable")

	// Storage-Standardwerte
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.signed_url_days", 365)
	v.SetDefault("storage.local_dir", "/data/files")
	v.SetDefault("storage.local_base_url", "/files")

	// Extractor-Standardwerte
	v.SetDefault("extractor.url", "http://encoder:5100")
	v.SetDefault("extractor.timeout_seconds", 30)
	v.SetDefault("extractor.dimension", 128)
	v.SetDefault("extractor.min_confidence", 0.0)

	// Matching-Standardwerte
	v.SetDefault("matching.threshold", 0.5)
	v.SetDefault("matching.limit", 1)
	v.SetDefault("matching.search", "auto")

	// MQTT-Standardwerte
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "face-gate-go")
	v.SetDefault("mqtt.topic_prefix", "facegate")

	// Cleanup-Standardwerte
	v.SetDefault("cleanup.temp_retention_hours", 24)
}

// validate prüft Kombinationen, die nicht erst zur Laufzeit auffallen sollen
func validate(cfg *Config) error {
	switch cfg.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db driver: %q", cfg.DB.Driver)
	}

	switch cfg.Storage.Provider {
	case "gcs":
		if cfg.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs provider")
		}
	case "local":
	default:
		return fmt.Errorf("unsupported storage provider: %q", cfg.Storage.Provider)
	}

	switch cfg.Matching.Search {
	case "auto", "indexed", "brute_force":
	default:
		return fmt.Errorf("unsupported matching.search mode: %q", cfg.Matching.Search)
	}

	if cfg.Extractor.Dimension <= 0 {
		return fmt.Errorf("extractor.dimension must be positive")
	}

	return nil
}

// PostgresDSN baut den DSN für die PostgreSQL-Verbindung zusammen
func (c DBConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Name, c.SSLMode)
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	// Daten-Basisverzeichnis
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// Verzeichnis für lokale Dateiablage
	if cfg.Storage.Provider == "local" && cfg.Storage.LocalDir != "" {
		if err := os.MkdirAll(cfg.Storage.LocalDir, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	// Log-Verzeichnis
	if cfg.Log.File != "" {
		logDir := filepath.Dir(cfg.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Datenbank-Verzeichnis (für SQLite)
	if cfg.DB.Driver == "sqlite" && cfg.DB.File != "" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
