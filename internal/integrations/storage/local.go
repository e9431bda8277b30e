package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"face-gate-go/config"

	log "github.com/sirupsen/logrus"
)

var localLogFields = log.Fields{
	"component": "local_storage",
}

// LocalStore implementiert ObjectStore auf dem lokalen Dateisystem.
// Gedacht für Entwicklung und kleine Installationen ohne Cloud-Bucket;
// die Dateien werden über den statischen /files-Pfad des Servers ausgeliefert.
type LocalStore struct {
	baseDir    string
	baseURL    string
	httpClient *http.Client
}

// NewLocalStore erstellt einen Objektspeicher unterhalb von cfg.LocalDir
func NewLocalStore(cfg config.StorageConfig) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %q: %w", cfg.LocalDir, err)
	}

	return &LocalStore{
		baseDir: cfg.LocalDir,
		baseURL: strings.TrimRight(cfg.LocalBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// pathFor bildet einen Schlüssel auf einen Pfad unterhalb des Basisverzeichnisses ab.
// Schlüssel mit Pfad-Traversal werden abgewiesen.
func (s *LocalStore) pathFor(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

// Upload schreibt die Bytes unter dem angegebenen Schlüssel
func (s *LocalStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", key, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}

	log.WithFields(localLogFields).Debugf("Stored %d bytes at %s", len(data), path)
	return nil
}

// ResolveURL liefert die vom statischen Handler ausgelieferte URL.
// Existiert das Objekt nicht, kann keine URL aufgelöst werden.
func (s *LocalStore) ResolveURL(ctx context.Context, key string) (string, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnresolvable, key)
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnresolvable, key)
	}

	return s.baseURL + "/" + strings.TrimLeft(key, "/"), nil
}

// Download liest Bytes anhand eines rohen Schlüssels oder einer URL
func (s *LocalStore) Download(ctx context.Context, refOrKey string) ([]byte, error) {
	if IsURL(refOrKey) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, refOrKey, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %q: %w", refOrKey, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d fetching %q", resp.StatusCode, refOrKey)
		}
		return io.ReadAll(resp.Body)
	}

	path, err := s.pathFor(refOrKey)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", refOrKey, err)
	}
	return data, nil
}

// Remove löscht die Dateien hinter den angegebenen Schlüsseln
func (s *LocalStore) Remove(ctx context.Context, keys ...string) error {
	var firstErr error
	for _, key := range keys {
		path, err := s.pathFor(key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithFields(localLogFields).Warnf("Failed to delete %s: %v", path, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to delete %q: %w", key, err)
			}
		}
	}
	return firstErr
}

var _ ObjectStore = (*LocalStore)(nil)
