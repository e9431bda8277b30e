package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"face-gate-go/config"
	"face-gate-go/internal/core/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CleanupService räumt liegengebliebene Daten des Erfassen-zuerst-Ablaufs
// auf: temporäre Upload-Dateien und provisorische Profile, die nie mit
// echten Profildaten vervollständigt wurden und kein Embedding tragen.
type CleanupService struct {
	db            *gorm.DB
	config        config.CleanupConfig
	tempDir       string
	checkInterval time.Duration
}

// NewCleanupService erstellt einen neuen Cleanup-Service
func NewCleanupService(db *gorm.DB, cfg config.CleanupConfig, tempDir string) *CleanupService {
	return &CleanupService{
		db:            db,
		config:        cfg,
		tempDir:       tempDir,
		checkInterval: time.Hour,
	}
}

// Start startet den Bereinigungsdienst im Hintergrund
func (s *CleanupService) Start(ctx context.Context) {
	log.Info("Cleanup service started")

	// Sofort eine erste Bereinigung durchführen
	if err := s.RunCleanup(ctx); err != nil {
		log.Errorf("Initial cleanup failed: %v", err)
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Debug("Running scheduled cleanup")
			if err := s.RunCleanup(ctx); err != nil {
				log.Errorf("Scheduled cleanup failed: %v", err)
			}
		case <-ctx.Done():
			log.Info("Cleanup service stopped")
			return
		}
	}
}

// RunCleanup führt die eigentliche Bereinigung durch
func (s *CleanupService) RunCleanup(ctx context.Context) error {
	if s.config.TempRetentionHours <= 0 {
		log.Debug("Cleanup disabled (retention hours <= 0)")
		return nil
	}

	cutoff := time.Now().Add(-time.Duration(s.config.TempRetentionHours) * time.Hour)

	if err := s.cleanupTempFiles(cutoff); err != nil {
		return err
	}
	return s.cleanupProvisionalProfiles(cutoff)
}

// cleanupTempFiles löscht temporäre Upload-Dateien, die älter als der
// Stichzeitpunkt sind
func (s *CleanupService) cleanupTempFiles(cutoff time.Time) error {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read temp directory: %w", err)
	}

	var deleteCount int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.tempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warnf("Failed to delete temp file %s: %v", path, err)
			continue
		}
		deleteCount++
	}

	if deleteCount > 0 {
		log.Infof("Cleanup removed %d stale temp files", deleteCount)
	}
	return nil
}

// cleanupProvisionalProfiles löscht provisorische Profile ohne Embedding,
// die älter als der Stichzeitpunkt sind. Profile mit Embedding bleiben
// bestehen, weil sie noch per Gesicht identifizierbar sind.
func (s *CleanupService) cleanupProvisionalProfiles(cutoff time.Time) error {
	var stale []models.User
	err := s.db.
		Where("provisional = ? AND created_at < ?", true, cutoff).
		Where("id NOT IN (?)", s.db.Model(&models.FaceEmbedding{}).Select("user_id")).
		Find(&stale).Error
	if err != nil {
		return fmt.Errorf("failed to find stale provisional profiles: %w", err)
	}

	for _, user := range stale {
		if err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("user_id = ?", user.ID).Delete(&models.UserImage{}).Error; err != nil {
				return err
			}
			return tx.Delete(&user).Error
		}); err != nil {
			log.Errorf("Failed to delete provisional profile %s: %v", user.ID, err)
		}
	}

	if len(stale) > 0 {
		log.Infof("Cleanup removed %d stale provisional profiles", len(stale))
	}
	return nil
}
