package vectorsearch

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// PgVectorSearcher nutzt den <->-Operator der pgvector-Erweiterung für die
// Nächste-Nachbarn-Suche direkt in der Datenbank.
type PgVectorSearcher struct {
	db *gorm.DB
}

// NewPgVectorSearcher erstellt eine indexierte Such-Instanz
func NewPgVectorSearcher(db *gorm.DB) *PgVectorSearcher {
	return &PgVectorSearcher{db: db}
}

// Name gibt den Namen der Such-Implementierung zurück
func (s *PgVectorSearcher) Name() string {
	return "pgvector"
}

// Nearest liefert die limit nächstgelegenen Embeddings zum Probenvektor.
// Bei Distanz-Gleichstand entscheidet die Embedding-ID, damit die
// Reihenfolge deterministisch bleibt.
func (s *PgVectorSearcher) Nearest(ctx context.Context, vector []float32, limit int) ([]Candidate, error) {
	vec := pgvector.NewVector(vector)

	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT id, user_id, embedding <-> ? AS distance
		FROM face_embeddings
		ORDER BY embedding <-> ?, id
		LIMIT ?
	`, vec, vec, limit).Rows()
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbour query failed: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.EmbeddingID, &c.UserID, &c.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

var _ NearestSearcher = (*PgVectorSearcher)(nil)
