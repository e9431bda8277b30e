package vectorsearch

import (
	"context"
	"math"
	"testing"

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
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.FaceEmbedding{}))
	return db
}

func seedEmbedding(t *testing.T, db *gorm.DB, id, userID string, vec []float32) {
	t.Helper()
	require.NoError(t, db.Create(&models.FaceEmbedding{
		ID:        id,
		UserID:    userID,
		Embedding: pgvector.NewVector(vec),
		Source:    models.EmbeddingSourceRegister,
	}).Error)
}

func configMatching(mode string) config.MatchingConfig {
	return config.MatchingConfig{Threshold: 0.5, Limit: 1, Search: mode}
}

func configDB(driver string) config.DBConfig {
	return config.DBConfig{Driver: driver}
}

func TestL2Distance(t *testing.T) {
	assert.Equal(t, 0.0, L2Distance([]float32{1, 2, 3}, []float32{1, 2, 3}))
	assert.InDelta(t, 5.0, L2Distance([]float32{0, 0}, []float32{3, 4}), 1e-9)
	assert.True(t, math.IsInf(L2Distance([]float32{1}, []float32{1, 2}), 1))
}

func TestBruteForceNearestOrdersByDistance(t *testing.T) {
	db := newTestDB(t)
	seedEmbedding(t, db, "e-far", "u-far", []float32{10, 10})
	seedEmbedding(t, db, "e-near", "u-near", []float32{1, 1})
	seedEmbedding(t, db, "e-mid", "u-mid", []float32{3, 3})

	s := NewBruteForceSearcher(db)
	got, err := s.Nearest(context.Background(), []float32{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "e-near", got[0].EmbeddingID)
	assert.Equal(t, "u-near", got[0].UserID)
	assert.Equal(t, 0.0, got[0].Distance)
	assert.Equal(t, "e-mid", got[1].EmbeddingID)
}

func TestBruteForceNearestTieBreaksByID(t *testing.T) {
	db := newTestDB(t)
	// Zwei identische Vektoren: die kleinere ID gewinnt
	seedEmbedding(t, db, "e-b", "u-2", []float32{1, 1})
	seedEmbedding(t, db, "e-a", "u-1", []float32{1, 1})

	s := NewBruteForceSearcher(db)
	got, err := s.Nearest(context.Background(), []float32{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e-a", got[0].EmbeddingID)
	assert.Equal(t, "e-b", got[1].EmbeddingID)
}

func TestBruteForceNearestEmptySet(t *testing.T) {
	db := newTestDB(t)

	s := NewBruteForceSearcher(db)
	got, err := s.Nearest(context.Background(), []float32{1, 1}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBruteForceDimensionMismatchNeverMatches(t *testing.T) {
	db := newTestDB(t)
	seedEmbedding(t, db, "e-short", "u-1", []float32{1, 1})

	s := NewBruteForceSearcher(db)
	got, err := s.Nearest(context.Background(), []float32{1, 1, 1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, math.IsInf(got[0].Distance, 1))
}

func TestSelectFallsBackWithoutPgVector(t *testing.T) {
	db := newTestDB(t)

	s, err := Select(db, configMatching("auto"), configDB("sqlite"))
	require.NoError(t, err)
	assert.Equal(t, "brute_force", s.Name())
}

func TestSelectIndexedWithoutPgVectorReportsUnsupported(t *testing.T) {
	db := newTestDB(t)

	// Der Start schlägt nicht fehl; erst die Suche meldet den Fähigkeitsfehler
	s, err := Select(db, configMatching("indexed"), configDB("sqlite"))
	require.NoError(t, err)
	assert.Equal(t, "unsupported", s.Name())

	_, err = s.Nearest(context.Background(), []float32{1, 1}, 1)
	assert.ErrorIs(t, err, ErrSearchUnsupported)
}

func TestSelectUnknownModeRejected(t *testing.T) {
	db := newTestDB(t)

	_, err := Select(db, configMatching("approximate"), configDB("sqlite"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown matching.search mode")
}

func TestSelectBruteForceForced(t *testing.T) {
	db := newTestDB(t)

	s, err := Select(db, configMatching("brute_force"), configDB("sqlite"))
	require.NoError(t, err)
	assert.Equal(t, "brute_force", s.Name())
}
