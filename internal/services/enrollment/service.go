// Package enrollment orchestriert die dreistufige Registrierungs-Pipeline:
// Profil speichern, Bild ablegen, Embedding extrahieren. Jeder Schritt
// committet für sich; ein Fehlschlag in einem späteren Schritt macht die
// früheren Schritte nie rückgängig. Das Ergebnis benennt pro Schritt, ob
// er gelungen, übersprungen oder fehlgeschlagen ist.
package enrollment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"face-gate-go/config"
	"face-gate-go/internal/core/models"
	"face-gate-go/internal/integrations/extractor"
	"face-gate-go/internal/integrations/storage"
	"face-gate-go/internal/util/timezone"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

var logFields = log.Fields{
	"component": "enrollment",
}

// Schritt-Namen der Pipeline
const (
	StepProfile   = "profile"
	StepImage     = "image"
	StepEmbedding = "embedding"
)

// Status eines Pipeline-Schritts
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// ValidationError meldet fehlende oder unbrauchbare Eingabefelder.
// Die Handler bilden ihn auf HTTP 400 ab.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Extractor abstrahiert die Template-Extraktion. Im Betrieb steht dahinter
// der Worker-Pool, in Tests ein Fake.
type Extractor interface {
	Extract(ctx context.Context, imageBytes []byte, source string) (*extractor.TemplateResult, error)
}

// EventPublisher meldet abgeschlossene Registrierungen nach außen.
// Die Veröffentlichung ist optional und nie Teil des Saga-Ergebnisses.
type EventPublisher interface {
	PublishEnrollment(userID, username, source string)
}

// Repository ist der von diesem Dienst benötigte Ausschnitt der
// Datenbank-Schnittstelle.
type Repository interface {
	UpsertUserByUsername(user *models.User) error
	GetUserByID(id string) (*models.User, error)
	SaveImage(image *models.UserImage) error
	SaveEmbedding(embedding *models.FaceEmbedding) error
}

// StepOutcome beschreibt das Ergebnis eines einzelnen Pipeline-Schritts
type StepOutcome struct {
	Step   string `json:"step"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ImageRef verweist auf das gespeicherte Bild
type ImageRef struct {
	ID          string `json:"id"`
	StoragePath string `json:"storage_path"`
	PublicURL   string `json:"public_url,omitempty"`
}

// Result ist das Gesamtergebnis eines Registrierungs-Durchlaufs
type Result struct {
	UserID       string        `json:"user_id"`
	Username     string        `json:"username"`
	Provisional  bool          `json:"provisional,omitempty"`
	ProfileSaved bool          `json:"profile_saved"`
	Image        *ImageRef     `json:"image,omitempty"`
	Steps        []StepOutcome `json:"steps"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// RegisterInput sind die Eingabefelder der Registrierung
type RegisterInput struct {
	Username           string
	DisplayName        string
	Email              string
	Phone              string
	DateOfBirth        string
	EmergencyContact   []byte // JSON
	Medications        []byte // JSON
	Allergies          []byte // JSON
	AccessibilityNeeds string
	PreferredLanguage  string
	ConsentTerms       bool
	ImageBytes         []byte // optional; ohne Bild endet die Pipeline nach dem Profil
}

// Service führt die Registrierungs-Pipeline aus
type Service struct {
	repo      Repository
	store     storage.ObjectStore
	extractor Extractor
	publisher EventPublisher
	cfg       config.ExtractorConfig
}

// NewService erstellt den Registrierungs-Dienst. publisher darf nil sein.
func NewService(repo Repository, store storage.ObjectStore, ex Extractor, publisher EventPublisher, cfg config.ExtractorConfig) *Service {
	return &Service{
		repo:      repo,
		store:     store,
		extractor: ex,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Register führt die vollständige Pipeline für einen Benutzer aus.
// Ein bestehender Benutzer mit demselben Benutzernamen wird aktualisiert,
// nicht dupliziert.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Result, error) {
	if strings.TrimSpace(input.Username) == "" || strings.TrimSpace(input.DisplayName) == "" {
		return nil, &ValidationError{Message: "username and display_name are required"}
	}
	// Ohne Einwilligung wird nichts gespeichert, auch kein Profil
	if !input.ConsentTerms {
		return nil, &ValidationError{Message: "consent to the terms is required"}
	}

	result := &Result{Username: input.Username}

	// 1. Profil speichern (eigene Transaktion)
	user := &models.User{
		Username:           input.Username,
		DisplayName:        input.DisplayName,
		Email:              input.Email,
		Phone:              input.Phone,
		DateOfBirth:        input.DateOfBirth,
		EmergencyContact:   datatypes.JSON(input.EmergencyContact),
		Medications:        datatypes.JSON(input.Medications),
		Allergies:          datatypes.JSON(input.Allergies),
		AccessibilityNeeds: input.AccessibilityNeeds,
		PreferredLanguage:  input.PreferredLanguage,
		ConsentTerms:       input.ConsentTerms,
	}
	if err := s.repo.UpsertUserByUsername(user); err != nil {
		log.WithFields(logFields).Errorf("Failed to save profile for %s: %v", input.Username, err)
		result.Steps = append(result.Steps, StepOutcome{Step: StepProfile, Status: StatusFailed, Detail: err.Error()})
		return result, fmt.Errorf("profile step failed: %w", err)
	}
	result.UserID = user.ID
	result.ProfileSaved = true
	result.Steps = append(result.Steps, StepOutcome{Step: StepProfile, Status: StatusOK})
	log.WithFields(logFields).Infof("Profile saved for user %s (%s)", user.Username, user.ID)

	// Ohne Bild ist die Registrierung hier fertig
	if len(input.ImageBytes) == 0 {
		result.Steps = append(result.Steps,
			StepOutcome{Step: StepImage, Status: StatusSkipped, Detail: "no image provided"},
			StepOutcome{Step: StepEmbedding, Status: StatusSkipped, Detail: "no image provided"})
		return result, nil
	}

	s.runImageSteps(ctx, user, input.ImageBytes, models.EmbeddingSourceRegister, result)

	if s.publisher != nil && result.ProfileSaved {
		s.publisher.PublishEnrollment(user.ID, user.Username, models.EmbeddingSourceRegister)
	}

	return result, nil
}

// AttachImage hängt ein weiteres Bild an ein bestehendes Profil an und
// extrahiert daraus ein Embedding.
func (s *Service) AttachImage(ctx context.Context, userID string, imageBytes []byte) (*Result, error) {
	if len(imageBytes) == 0 {
		return nil, &ValidationError{Message: "image is required"}
	}

	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, &ValidationError{Message: "unknown user"}
	}

	result := &Result{
		UserID:       user.ID,
		Username:     user.Username,
		ProfileSaved: true,
		Steps:        []StepOutcome{{Step: StepProfile, Status: StatusSkipped, Detail: "existing profile"}},
	}

	s.runImageSteps(ctx, user, imageBytes, models.EmbeddingSourceAttach, result)

	if s.publisher != nil && result.Image != nil {
		s.publisher.PublishEnrollment(user.ID, user.Username, models.EmbeddingSourceAttach)
	}

	return result, nil
}

// CaptureFace legt ein provisorisches Profil an und durchläuft dann die
// Bild- und Embedding-Schritte. Gedacht für den Erfassen-zuerst-Ablauf,
// bei dem die Profildaten später nachgetragen werden.
func (s *Service) CaptureFace(ctx context.Context, imageBytes []byte) (*Result, error) {
	if len(imageBytes) == 0 {
		return nil, &ValidationError{Message: "image is required"}
	}

	name := provisionalUsername()
	user := &models.User{
		Username:    name,
		DisplayName: name,
		Provisional: true,
	}
	if err := s.repo.UpsertUserByUsername(user); err != nil {
		return nil, fmt.Errorf("profile step failed: %w", err)
	}

	result := &Result{
		UserID:       user.ID,
		Username:     user.Username,
		Provisional:  true,
		ProfileSaved: true,
		Steps:        []StepOutcome{{Step: StepProfile, Status: StatusOK, Detail: "provisional profile created"}},
	}

	s.runImageSteps(ctx, user, imageBytes, models.EmbeddingSourceCapture, result)

	if s.publisher != nil {
		s.publisher.PublishEnrollment(user.ID, user.Username, models.EmbeddingSourceCapture)
	}

	return result, nil
}

// runImageSteps führt die Schritte 2 (Bild) und 3 (Embedding) aus und
// hängt ihre Ergebnisse an result an. Fehler fließen in die Schritt-Liste,
// nicht in den Fehler-Rückgabewert: das Profil bleibt in jedem Fall bestehen.
func (s *Service) runImageSteps(ctx context.Context, user *models.User, imageBytes []byte, source string, result *Result) {
	// 2. Bild normalisieren und ablegen (eigene Transaktion)
	normalized, width, height, err := normalizeJPEG(imageBytes)
	if err != nil {
		log.WithFields(logFields).Warnf("Image decode failed for user %s: %v", user.ID, err)
		result.Steps = append(result.Steps,
			StepOutcome{Step: StepImage, Status: StatusFailed, Detail: "image decode failed"},
			StepOutcome{Step: StepEmbedding, Status: StatusSkipped, Detail: "no stored image"})
		result.Warnings = append(result.Warnings, "image could not be decoded")
		return
	}

	key := storageKey(user.ID)
	if err := s.store.Upload(ctx, key, normalized, "image/jpeg"); err != nil {
		log.WithFields(logFields).Errorf("Image upload failed for user %s: %v", user.ID, err)
		result.Steps = append(result.Steps,
			StepOutcome{Step: StepImage, Status: StatusFailed, Detail: err.Error()},
			StepOutcome{Step: StepEmbedding, Status: StatusSkipped, Detail: "no stored image"})
		result.Warnings = append(result.Warnings, "image upload failed")
		return
	}

	publicURL, err := s.store.ResolveURL(ctx, key)
	if err != nil {
		// Eine fehlende URL ist nur kosmetisch; der Schlüssel bleibt gültig
		log.WithFields(logFields).Warnf("Could not resolve URL for %s: %v", key, err)
		publicURL = ""
	}

	image := &models.UserImage{
		UserID:      user.ID,
		StoragePath: key,
		PublicURL:   publicURL,
		Width:       width,
		Height:      height,
		MimeType:    "image/jpeg",
		IsProfile:   source == models.EmbeddingSourceRegister,
		FileSize:    len(normalized),
		UploadedAt:  timezone.Now(),
	}
	if err := s.repo.SaveImage(image); err != nil {
		log.WithFields(logFields).Errorf("Failed to save image record for user %s: %v", user.ID, err)
		result.Steps = append(result.Steps,
			StepOutcome{Step: StepImage, Status: StatusFailed, Detail: err.Error()},
			StepOutcome{Step: StepEmbedding, Status: StatusSkipped, Detail: "no stored image"})
		result.Warnings = append(result.Warnings, "image record could not be saved")
		return
	}
	result.Image = &ImageRef{ID: image.ID, StoragePath: key, PublicURL: publicURL}
	result.Steps = append(result.Steps, StepOutcome{Step: StepImage, Status: StatusOK})

	// 3. Embedding extrahieren und speichern (eigene Transaktion)
	template, err := s.extractor.Extract(ctx, normalized, source)
	if err != nil {
		if errors.Is(err, extractor.ErrNoFaceDetected) {
			// Kein Gesicht ist kein Fehlschlag der Registrierung: Profil und
			// Bild bleiben, nur der biometrische Teil fehlt.
			log.WithFields(logFields).Warnf("No face detected for user %s, skipping embedding", user.ID)
			result.Steps = append(result.Steps, StepOutcome{Step: StepEmbedding, Status: StatusSkipped, Detail: "no face detected"})
			result.Warnings = append(result.Warnings, "no face detected in image")
			return
		}
		log.WithFields(logFields).Errorf("Template extraction failed for user %s: %v", user.ID, err)
		result.Steps = append(result.Steps, StepOutcome{Step: StepEmbedding, Status: StatusFailed, Detail: err.Error()})
		result.Warnings = append(result.Warnings, "template extraction failed")
		return
	}

	embedding := &models.FaceEmbedding{
		UserID:    user.ID,
		Embedding: pgvector.NewVector(template.Vector),
		Source:    source,
	}
	if err := s.repo.SaveEmbedding(embedding); err != nil {
		log.WithFields(logFields).Errorf("Failed to save embedding for user %s: %v", user.ID, err)
		result.Steps = append(result.Steps, StepOutcome{Step: StepEmbedding, Status: StatusFailed, Detail: err.Error()})
		result.Warnings = append(result.Warnings, "embedding could not be saved")
		return
	}

	result.Steps = append(result.Steps, StepOutcome{Step: StepEmbedding, Status: StatusOK})
	log.WithFields(logFields).Infof("Embedding stored for user %s (source: %s)", user.ID, source)
}

// normalizeJPEG dekodiert beliebige Bildformate und kodiert sie als JPEG
// neu. Zurück kommen die Bytes sowie Breite und Höhe.
func normalizeJPEG(imageBytes []byte) ([]byte, int, int, error) {
	img, err := imaging.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", extractor.ErrDecodeFailed, err)
	}

	bounds := img.Bounds()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, 0, 0, fmt.Errorf("jpeg encode failed: %w", err)
	}

	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

// storageKey bildet den Objektschlüssel für ein Benutzerbild
func storageKey(userID string) string {
	return fmt.Sprintf("%s/%d_%s.jpg", userID, time.Now().Unix(), uuid.NewString()[:8])
}

// provisionalUsername erzeugt einen eindeutigen Platzhalter-Benutzernamen
func provisionalUsername() string {
	return "temp_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
