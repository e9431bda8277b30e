// Package vectorsearch bündelt die Nächste-Nachbarn-Suche über gespeicherte
// Gesichts-Embeddings. Je nach Datenbank-Fähigkeiten wird die Suche auf den
// pgvector-Operator der Datenbank oder auf einen Brute-Force-Scan in Go
// abgebildet.
package vectorsearch

import (
	"context"
	"errors"
	"fmt"
	"math"

	"face-gate-go/config"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrSearchUnsupported wird zurückgegeben, wenn die konfigurierte Suchart
// vom Datenbank-Backend nicht getragen wird. Das ist ein Fähigkeitsfehler
// und kein "kein Treffer".
var ErrSearchUnsupported = errors.New("nearest-neighbour search not supported by this backend")

// Candidate ist ein Suchergebnis mit seiner L2-Distanz zum Probenvektor
type Candidate struct {
	EmbeddingID string
	UserID      string
	Distance    float64
}

// NearestSearcher findet die nächstgelegenen gespeicherten Embeddings zu
// einem Probenvektor, aufsteigend nach Distanz sortiert.
type NearestSearcher interface {
	Nearest(ctx context.Context, vector []float32, limit int) ([]Candidate, error)
	Name() string
}

// L2Distance berechnet die euklidische Distanz zweier Vektoren.
// Ungleich lange Vektoren haben unendliche Distanz und matchen nie.
func L2Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// HasPgVector prüft, ob die pgvector-Erweiterung in der verbundenen
// Postgres-Datenbank installiert ist.
func HasPgVector(db *gorm.DB) bool {
	var exists bool
	err := db.Raw("SELECT EXISTS(SELECT 1 FROM pg_type WHERE typname = 'vector')").Scan(&exists).Error
	if err != nil {
		log.Debugf("pgvector probe failed: %v", err)
		return false
	}
	return exists
}

// UnsupportedSearcher meldet bei jeder Suche ErrSearchUnsupported. Er wird
// eingesetzt, wenn die Konfiguration die indizierte Suche verlangt, die
// Datenbank sie aber nicht trägt: der Server startet trotzdem, nur die
// Anmeldung per Gesicht antwortet dann mit dem Fähigkeitsfehler.
type UnsupportedSearcher struct{}

// Nearest gibt immer ErrSearchUnsupported zurück
func (u *UnsupportedSearcher) Nearest(ctx context.Context, vector []float32, limit int) ([]Candidate, error) {
	return nil, ErrSearchUnsupported
}

// Name gibt den Namen der Such-Implementierung zurück
func (u *UnsupportedSearcher) Name() string {
	return "unsupported"
}

// Select wählt anhand von Konfiguration und Datenbank-Fähigkeiten die
// Such-Implementierung aus. Im Modus "auto" wird pgvector benutzt, wenn
// die Erweiterung vorhanden ist, sonst der Brute-Force-Scan. Der Modus
// "indexed" erzwingt pgvector; ohne die Erweiterung meldet die gewählte
// Suche zur Laufzeit ErrSearchUnsupported.
func Select(db *gorm.DB, cfg config.MatchingConfig, dbCfg config.DBConfig) (NearestSearcher, error) {
	indexed := dbCfg.Driver == "postgres" && HasPgVector(db)

	switch cfg.Search {
	case "indexed":
		if !indexed {
			log.Warn("Indexed search requested but pgvector is unavailable, face login will report unsupported")
			return &UnsupportedSearcher{}, nil
		}
		log.Info("Using indexed pgvector nearest-neighbour search")
		return NewPgVectorSearcher(db), nil
	case "brute_force":
		log.Info("Using brute-force nearest-neighbour search")
		return NewBruteForceSearcher(db), nil
	case "auto", "":
		if indexed {
			log.Info("pgvector extension detected, using indexed nearest-neighbour search")
			return NewPgVectorSearcher(db), nil
		}
		log.Info("pgvector not available, falling back to brute-force nearest-neighbour search")
		return NewBruteForceSearcher(db), nil
	default:
		return nil, fmt.Errorf("unknown matching.search mode: %q", cfg.Search)
	}
}
