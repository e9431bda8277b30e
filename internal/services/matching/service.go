// Package matching beantwortet die Frage "wessen Gesicht ist das?" über
// die Nächste-Nachbarn-Suche auf den gespeicherten Embeddings.
package matching

import (
	"context"
	"fmt"

	"face-gate-go/config"
	"face-gate-go/internal/core/models"
	"face-gate-go/internal/db/vectorsearch"
	"face-gate-go/internal/integrations/extractor"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "matching",
}

// Extractor abstrahiert die Template-Extraktion (Worker-Pool im Betrieb)
type Extractor interface {
	Extract(ctx context.Context, imageBytes []byte, source string) (*extractor.TemplateResult, error)
}

// Repository ist der benötigte Ausschnitt der Datenbank-Schnittstelle
type Repository interface {
	GetUserByID(id string) (*models.User, error)
}

// EventPublisher meldet Anmelde-Ereignisse nach außen; darf nil sein
type EventPublisher interface {
	PublishLogin(userID string, matched bool, distance float64)
}

// UserSummary ist die Profil-Projektion eines Treffers
type UserSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Provisional bool   `json:"provisional,omitempty"`
}

// MatchResult ist das Ergebnis eines Identifikationsversuchs. Matched ist
// nur dann wahr, wenn die Distanz strikt unter der Schwelle liegt; exakt
// auf der Schwelle gilt als kein Treffer.
type MatchResult struct {
	Matched   bool         `json:"matched"`
	User      *UserSummary `json:"user,omitempty"`
	Distance  float64      `json:"distance,omitempty"`
	Threshold float64      `json:"threshold"`
}

// Options übersteuert Schwellwert und Trefferanzahl für einen einzelnen
// Identifikationsversuch. Nullwerte bedeuten die konfigurierten Vorgaben;
// der Schwellwert 0 ist als Übersteuerung sinnlos und zählt deshalb als
// "nicht gesetzt".
type Options struct {
	Threshold float64
	Limit     int
}

// Service führt Identifikationsversuche aus
type Service struct {
	repo      Repository
	searcher  vectorsearch.NearestSearcher
	extractor Extractor
	publisher EventPublisher
	cfg       config.MatchingConfig
}

// NewService erstellt den Matching-Dienst. publisher darf nil sein.
func NewService(repo Repository, searcher vectorsearch.NearestSearcher, ex Extractor, publisher EventPublisher, cfg config.MatchingConfig) *Service {
	return &Service{
		repo:      repo,
		searcher:  searcher,
		extractor: ex,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Match extrahiert das Template aus dem Probenbild und sucht den nächsten
// Nachbarn. Fehler der Extraktion (etwa extractor.ErrNoFaceDetected) und
// der Suche (etwa vectorsearch.ErrSearchUnsupported) werden unverändert
// durchgereicht; "kein Treffer" ist dagegen ein normales Ergebnis.
func (s *Service) Match(ctx context.Context, probeBytes []byte, opts Options) (*MatchResult, error) {
	template, err := s.extractor.Extract(ctx, probeBytes, "login")
	if err != nil {
		return nil, err
	}

	return s.MatchVector(ctx, template.Vector, opts)
}

// MatchVector sucht den nächsten Nachbarn zu einem bereits extrahierten Vektor
func (s *Service) MatchVector(ctx context.Context, vector []float32, opts Options) (*MatchResult, error) {
	threshold := s.cfg.Threshold
	if opts.Threshold > 0 {
		threshold = opts.Threshold
	}
	limit := s.cfg.Limit
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	if limit <= 0 {
		limit = 1
	}

	candidates, err := s.searcher.Nearest(ctx, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbour search failed: %w", err)
	}

	result := &MatchResult{Threshold: threshold}

	if len(candidates) == 0 {
		log.WithFields(logFields).Debug("No stored embeddings, nothing to match against")
		return result, nil
	}

	best := candidates[0]
	result.Distance = best.Distance

	if best.Distance >= threshold {
		log.WithFields(logFields).Infof("Nearest candidate at distance %.4f exceeds threshold %.4f, no match",
			best.Distance, threshold)
		if s.publisher != nil {
			s.publisher.PublishLogin("", false, best.Distance)
		}
		return result, nil
	}

	user, err := s.repo.GetUserByID(best.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load matched user: %w", err)
	}
	if user == nil {
		// Das Embedding zeigt auf ein inzwischen gelöschtes Profil
		log.WithFields(logFields).Warnf("Embedding %s references missing user %s", best.EmbeddingID, best.UserID)
		return result, nil
	}

	result.Matched = true
	result.User = &UserSummary{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Provisional: user.Provisional,
	}

	log.WithFields(logFields).Infof("Matched user %s at distance %.4f", user.Username, best.Distance)
	if s.publisher != nil {
		s.publisher.PublishLogin(user.ID, true, best.Distance)
	}

	return result, nil
}
