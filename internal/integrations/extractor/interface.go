package extractor

import (
	"context"
	"errors"
)

// ErrNoFaceDetected wird gemeldet, wenn im Bild kein Gesicht gefunden wurde.
// Für Aufrufer ist das kein fataler Fehler: Enrollment überspringt dann nur den
// Embedding-Schritt, Login bricht mit genau diesem Signal ab.
var ErrNoFaceDetected = errors.New("no face detected")

// ErrDecodeFailed wird gemeldet, wenn die Bytes kein gültiges Bild sind
var ErrDecodeFailed = errors.New("image decode failed")

// BoundingBox enthält die Koordinaten eines Gesichts im Bild
type BoundingBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// TemplateResult enthält das Ergebnis einer Template-Extraktion.
// Erkennung und Kodierung sind gekoppelt: Wird mindestens ein Gesicht erkannt,
// wird das erste/größte kodiert.
type TemplateResult struct {
	// Vector ist der Gesichtsvektor mit fester Länge D
	Vector []float32 `json:"vector"`

	// Boxes enthält die Begrenzungsrahmen aller erkannten Gesichter
	Boxes []BoundingBox `json:"boxes"`
}

// Provider definiert die Schnittstelle für Template-Extraktoren.
// Implementierungen sind frei von Seiteneffekten über den Eingabebytes.
type Provider interface {
	// Name gibt den Namen des Providers zurück
	Name() string

	// IsAvailable prüft, ob der Dienst erreichbar ist
	IsAvailable(ctx context.Context) bool

	// Extract berechnet das Template für die übergebenen Bildbytes.
	// Meldet ErrNoFaceDetected, wenn kein Gesicht gefunden wurde, und
	// ErrDecodeFailed, wenn die Bytes kein gültiges Bild sind.
	Extract(ctx context.Context, imageBytes []byte) (*TemplateResult, error)

	// DetectFaces liefert nur die Begrenzungsrahmen, ohne Kodierung.
	// Ein Bild ohne Gesichter ist hier kein Fehler (leere Liste).
	DetectFaces(ctx context.Context, imageBytes []byte) ([]BoundingBox, error)

	// Dimension gibt die feste Vektorlänge D des Providers zurück
	Dimension() int
}

// Registry verwaltet die registrierten Template-Extraktoren
type Registry struct {
	providers map[string]Provider
	active    string
}

// NewRegistry erstellt eine neue, leere Registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register registriert einen neuen Provider
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// SetActive setzt den aktiven Provider
func (r *Registry) SetActive(name string) bool {
	if _, exists := r.providers[name]; exists {
		r.active = name
		return true
	}
	return false
}

// Active gibt den aktuell aktiven Provider zurück
func (r *Registry) Active() (Provider, bool) {
	if r.active == "" {
		return nil, false
	}
	p, exists := r.providers[r.active]
	return p, exists
}

// Available gibt die Namen aller erreichbaren Provider zurück
func (r *Registry) Available(ctx context.Context) []string {
	var available []string
	for name, p := range r.providers {
		if p.IsAvailable(ctx) {
			available = append(available, name)
		}
	}
	return available
}
