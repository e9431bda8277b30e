package dlibsvc

import (
	"bytes"
	"context"
	"fmt"

	"face-gate-go/config"
	"face-gate-go/internal/integrations/extractor"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

// Log-Felder für die Encoder-Komponente
var logFields = log.Fields{
	"component": "dlibsvc",
}

// Service implementiert extractor.Provider gegen den externen dlib-Encoder-Dienst
type Service struct {
	client    *APIClient
	dimension int
}

// NewService erstellt einen neuen Extraktor-Service
func NewService(cfg config.ExtractorConfig) *Service {
	return &Service{
		client:    NewAPIClient(cfg),
		dimension: cfg.Dimension,
	}
}

// Name gibt den Namen des Providers zurück
func (s *Service) Name() string {
	return "dlibsvc"
}

// Dimension gibt die feste Vektorlänge des Encoders zurück
func (s *Service) Dimension() int {
	return s.dimension
}

// IsAvailable prüft, ob der Encoder-Dienst erreichbar ist
func (s *Service) IsAvailable(ctx context.Context) bool {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		log.WithFields(logFields).Debugf("Encoder service not available: %v", err)
		return false
	}
	return ok
}

// Extract berechnet das Template für die übergebenen Bildbytes
func (s *Service) Extract(ctx context.Context, imageBytes []byte) (*extractor.TemplateResult, error) {
	// Bytes lokal dekodieren, bevor sie über das Netz gehen: ungültige
	// Bilder sollen als DecodeError auffallen, nicht als Dienstfehler
	if _, err := imaging.Decode(bytes.NewReader(imageBytes)); err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrDecodeFailed, err)
	}

	resp, err := s.client.Encode(ctx, imageBytes, true)
	if err != nil {
		return nil, fmt.Errorf("encoder call failed: %w", err)
	}

	if resp.FacesCount == 0 || len(resp.Faces) == 0 {
		return nil, extractor.ErrNoFaceDetected
	}

	// Erstes/größtes Gesicht wird kodiert, alle Boxen werden gemeldet
	boxes := make([]extractor.BoundingBox, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		boxes = append(boxes, extractor.BoundingBox(f.Box))
	}

	vector := resp.Faces[0].Embedding
	if len(vector) == 0 {
		// Erkennung und Kodierung sind gekoppelt; ein erkanntes Gesicht
		// ohne Vektor ist ein Dienstfehler
		return nil, fmt.Errorf("encoder returned face without embedding")
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("encoder returned vector of length %d, expected %d", len(vector), s.dimension)
	}

	log.WithFields(logFields).Debugf("Extracted template from %d detected face(s) in %.3fs", resp.FacesCount, resp.ProcessTime)

	return &extractor.TemplateResult{
		Vector: vector,
		Boxes:  boxes,
	}, nil
}

// DetectFaces liefert nur die Begrenzungsrahmen, ohne Kodierung
func (s *Service) DetectFaces(ctx context.Context, imageBytes []byte) ([]extractor.BoundingBox, error) {
	if _, err := imaging.Decode(bytes.NewReader(imageBytes)); err != nil {
		return nil, fmt.Errorf("%w: %v", extractor.ErrDecodeFailed, err)
	}

	resp, err := s.client.Encode(ctx, imageBytes, false)
	if err != nil {
		return nil, fmt.Errorf("encoder call failed: %w", err)
	}

	boxes := make([]extractor.BoundingBox, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		boxes = append(boxes, extractor.BoundingBox(f.Box))
	}
	return boxes, nil
}

// Compile-Zeit-Prüfung der Schnittstelle
var _ extractor.Provider = (*Service)(nil)
