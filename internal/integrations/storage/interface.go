package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrUnresolvable wird gemeldet, wenn für einen Schlüssel weder eine öffentliche
// noch eine signierte URL ermittelt werden konnte
var ErrUnresolvable = errors.New("storage reference cannot be resolved")

// ObjectStore definiert die Schnittstelle zum Objektspeicher.
// Ein Upload auf einen bereits vorhandenen Schlüssel überschreibt das Objekt;
// Aufrufer vergeben deshalb grundsätzlich frische Schlüssel.
type ObjectStore interface {
	// Upload legt die Bytes unter dem angegebenen Schlüssel ab
	Upload(ctx context.Context, key string, data []byte, contentType string) error

	// ResolveURL ermittelt eine abrufbare URL für einen Schlüssel. Erst wird die
	// stabile öffentliche URL versucht, dann eine zeitlich begrenzte signierte URL.
	// Beide Wege müssen fehlschlagen, bevor ErrUnresolvable gemeldet wird.
	ResolveURL(ctx context.Context, key string) (string, error)

	// Download lädt Bytes anhand eines rohen Schlüssels oder einer zuvor
	// aufgelösten URL (http/https wird per GET geholt, alles andere direkt)
	Download(ctx context.Context, refOrKey string) ([]byte, error)

	// Remove löscht die Objekte hinter den angegebenen Schlüsseln
	Remove(ctx context.Context, keys ...string) error
}

// IsURL prüft, ob eine Referenz eine http(s)-URL und kein roher Schlüssel ist
func IsURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
