package vectorsearch

import (
	"context"
	"fmt"
	"sort"

	"face-gate-go/internal/core/models"

	"gorm.io/gorm"
)

// BruteForceSearcher lädt alle Embeddings und berechnet die Distanzen in Go.
// Der Scan ist linear in der Zahl der Embeddings und für SQLite sowie für
// Postgres ohne pgvector-Erweiterung gedacht.
type BruteForceSearcher struct {
	db *gorm.DB
}

// NewBruteForceSearcher erstellt eine Brute-Force-Such-Instanz
func NewBruteForceSearcher(db *gorm.DB) *BruteForceSearcher {
	return &BruteForceSearcher{db: db}
}

// Name gibt den Namen der Such-Implementierung zurück
func (s *BruteForceSearcher) Name() string {
	return "brute_force"
}

// Nearest liefert die limit nächstgelegenen Embeddings zum Probenvektor.
// Die Sortierung ist wie beim pgvector-Pfad: aufsteigende Distanz, bei
// Gleichstand aufsteigende Embedding-ID.
func (s *BruteForceSearcher) Nearest(ctx context.Context, vector []float32, limit int) ([]Candidate, error) {
	var embeddings []models.FaceEmbedding
	if err := s.db.WithContext(ctx).Find(&embeddings).Error; err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}

	candidates := make([]Candidate, 0, len(embeddings))
	for _, e := range embeddings {
		candidates = append(candidates, Candidate{
			EmbeddingID: e.ID,
			UserID:      e.UserID,
			Distance:    L2Distance(vector, e.Embedding.Slice()),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].EmbeddingID < candidates[j].EmbeddingID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return candidates, nil
}

var _ NearestSearcher = (*BruteForceSearcher)(nil)
