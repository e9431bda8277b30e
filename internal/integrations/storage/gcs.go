package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"face-gate-go/config"

	gcs "cloud.google.com/go/storage"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

var gcsLogFields = log.Fields{
	"component": "gcs_storage",
}

// GCSStore implementiert ObjectStore gegen Google Cloud Storage
type GCSStore struct {
	client        *gcs.Client
	bucket        string
	signedURLDays int
	httpClient    *http.Client
}

// NewGCSStore erstellt einen neuen GCS-Objektspeicher
func NewGCSStore(ctx context.Context, cfg config.StorageConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSStore{
		client:        client,
		bucket:        cfg.Bucket,
		signedURLDays: cfg.SignedURLDays,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Close schließt den zugrunde liegenden Client
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Upload legt die Bytes unter dem angegebenen Schlüssel ab.
// Ein vorhandenes Objekt unter demselben Schlüssel wird überschrieben.
func (s *GCSStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish upload of %q: %w", key, err)
	}

	log.WithFields(gcsLogFields).Debugf("Uploaded %d bytes to %s", len(data), key)
	return nil
}

// publicURL baut die stabile öffentliche URL für einen Schlüssel
func (s *GCSStore) publicURL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

// ResolveURL ermittelt eine abrufbare URL für einen Schlüssel.
// Zuerst wird die öffentliche URL geprüft; ist der Bucket nicht öffentlich
// lesbar, wird auf eine langlebige signierte URL ausgewichen. Ob ein Bucket
// öffentlich ist, entscheidet der Betrieb, nicht diese Komponente – deshalb
// sind beide Wege verpflichtend.
func (s *GCSStore) ResolveURL(ctx context.Context, key string) (string, error) {
	public := s.publicURL(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, public, nil)
	if err == nil {
		resp, err := s.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return public, nil
			}
			log.WithFields(gcsLogFields).Debugf("Public URL for %s not readable (status %d), trying signed URL", key, resp.StatusCode)
		}
	}

	signed, err := s.client.Bucket(s.bucket).SignedURL(key, &gcs.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(time.Duration(s.signedURLDays) * 24 * time.Hour),
	})
	if err != nil {
		log.WithFields(gcsLogFields).Warnf("Signing URL for %s failed: %v", key, err)
		return "", fmt.Errorf("%w: %s", ErrUnresolvable, key)
	}

	return signed, nil
}

// Download lädt Bytes anhand eines rohen Schlüssels oder einer URL
func (s *GCSStore) Download(ctx context.Context, refOrKey string) ([]byte, error) {
	if IsURL(refOrKey) {
		return s.downloadHTTP(ctx, refOrKey)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	r, err := s.client.Bucket(s.bucket).Object(refOrKey).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open object %q: %w", refOrKey, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %q: %w", refOrKey, err)
	}
	return data, nil
}

// downloadHTTP holt eine zuvor aufgelöste URL per GET
func (s *GCSStore) downloadHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %q", resp.StatusCode, url)
	}

	return io.ReadAll(resp.Body)
}

// Remove löscht die Objekte hinter den angegebenen Schlüsseln
func (s *GCSStore) Remove(ctx context.Context, keys ...string) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Minute)
	defer cancel()

	var firstErr error
	for _, key := range keys {
		if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
			log.WithFields(gcsLogFields).Warnf("Failed to delete object %s: %v", key, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to delete object %q: %w", key, err)
			}
		}
	}
	return firstErr
}

var _ ObjectStore = (*GCSStore)(nil)
