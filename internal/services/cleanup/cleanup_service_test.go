package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"face-gate-go/config"
	"face-gate-go/internal/core/models"

	"github.com/glebarez/sqlite"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.UserImage{}, &models.FaceEmbedding{}))
	return db
}

func TestRunCleanupRemovesStaleTempFiles(t *testing.T) {
	tempDir := t.TempDir()
	db := newTestDB(t)

	stale := filepath.Join(tempDir, "old.jpg")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(tempDir, "new.jpg")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0644))

	svc := NewCleanupService(db, config.CleanupConfig{TempRetentionHours: 24}, tempDir)
	require.NoError(t, svc.RunCleanup(context.Background()))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestRunCleanupRemovesStaleProvisionalProfiles(t *testing.T) {
	db := newTestDB(t)
	tempDir := t.TempDir()

	old := time.Now().Add(-48 * time.Hour)

	// Provisorisch, alt, ohne Embedding: wird entfernt
	staleUser := models.User{ID: "u-stale", Username: "temp_aaaa1111", DisplayName: "temp_aaaa1111", Provisional: true, CreatedAt: old}
	require.NoError(t, db.Create(&staleUser).Error)

	// Provisorisch, alt, mit Embedding: bleibt
	keptUser := models.User{ID: "u-kept", Username: "temp_bbbb2222", DisplayName: "temp_bbbb2222", Provisional: true, CreatedAt: old}
	require.NoError(t, db.Create(&keptUser).Error)
	require.NoError(t, db.Create(&models.FaceEmbedding{
		ID: "e-1", UserID: keptUser.ID,
		Embedding: pgvector.NewVector([]float32{1}),
		Source:    models.EmbeddingSourceCapture,
	}).Error)

	// Regulärer Benutzer: bleibt
	regular := models.User{ID: "u-reg", Username: "anna", DisplayName: "Anna", CreatedAt: old}
	require.NoError(t, db.Create(&regular).Error)

	svc := NewCleanupService(db, config.CleanupConfig{TempRetentionHours: 24}, tempDir)
	require.NoError(t, svc.RunCleanup(context.Background()))

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(2), count)

	var gone models.User
	err := db.Where("id = ?", "u-stale").First(&gone).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRunCleanupDisabled(t *testing.T) {
	db := newTestDB(t)
	svc := NewCleanupService(db, config.CleanupConfig{TempRetentionHours: 0}, t.TempDir())
	assert.NoError(t, svc.RunCleanup(context.Background()))
}
