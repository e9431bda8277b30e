package handlers

import (
	"encoding/base64"
	"fmt"
	"strings"

	"face-gate-go/config"
	"face-gate-go/internal/core/processor"
	"face-gate-go/internal/db/repository"
	"face-gate-go/internal/integrations/storage"
	"face-gate-go/internal/services/access"
	"face-gate-go/internal/services/enrollment"
	"face-gate-go/internal/services/matching"

	"github.com/gin-gonic/gin"
)

// APIHandler behandelt API-Anfragen für das System
type APIHandler struct {
	repo       repository.Repository
	cfg        *config.Config
	enrollment *enrollment.Service
	matching   *matching.Service
	gate       *access.Gate
	store      storage.ObjectStore
	workerPool *processor.WorkerPool
}

// NewAPIHandler erstellt einen neuen API-Handler
func NewAPIHandler(repo repository.Repository, cfg *config.Config, enrollmentSvc *enrollment.Service,
	matchingSvc *matching.Service, gate *access.Gate, store storage.ObjectStore, pool *processor.WorkerPool) *APIHandler {
	return &APIHandler{
		repo:       repo,
		cfg:        cfg,
		enrollment: enrollmentSvc,
		matching:   matchingSvc,
		gate:       gate,
		store:      store,
		workerPool: pool,
	}
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Registrierungs-Endpunkte
	router.POST("/register", h.Register)
	router.POST("/attach_image", h.AttachImage)
	router.POST("/capture_face", h.CaptureFace)
	router.POST("/upload_face_temp", h.UploadFaceTemp)
	// Alias, damit ältere Frontends weiter funktionieren
	router.POST("/upload_face", h.UploadFaceTemp)

	// Identifikations-Endpunkte
	router.POST("/login_face", h.LoginFace)
	router.POST("/detect_face", h.DetectFace)

	// Profil-Endpunkte
	router.GET("/users/:id", h.GetUser)
	router.PUT("/users/:id", h.UpdateUser)
	router.DELETE("/users/:id", h.DeleteUser)
	router.DELETE("/user_images/:id", h.DeleteUserImage)

	// Verwaltungs- und System-Endpunkte
	router.GET("/admin/embeddings", h.AdminEmbeddings)
	router.GET("/system/stats", h.SystemStats)
}

// respondError schreibt die einheitliche Fehler-Hülle
func respondError(c *gin.Context, status int, code string, detail string) {
	body := gin.H{"ok": false, "error": code}
	if detail != "" {
		body["detail"] = detail
	}
	c.JSON(status, body)
}

// resolveActor ermittelt die Identität des Aufrufers aus dem
// X-User-Id-Header oder dem Feld actor_user_id.
func resolveActor(c *gin.Context, payloadActor string) access.ActorContext {
	if id := strings.TrimSpace(c.GetHeader("X-User-Id")); id != "" {
		return access.ActorContext{UserID: id}
	}
	if payloadActor != "" {
		return access.ActorContext{UserID: strings.TrimSpace(payloadActor)}
	}
	if id := strings.TrimSpace(c.Query("actor_user_id")); id != "" {
		return access.ActorContext{UserID: id}
	}
	return access.ActorContext{}
}

// resolveImageBytes akzeptiert eine Daten-URL, eine HTTP(S)-URL oder einen
// Speicher-Schlüssel und liefert die Bild-Bytes.
func (h *APIHandler) resolveImageBytes(c *gin.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty image reference")
	}

	// Daten-URL: Base64-Teil nach dem Komma dekodieren
	if strings.HasPrefix(ref, "data:") {
		idx := strings.Index(ref, ",")
		if idx < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		data, err := base64.StdEncoding.DecodeString(ref[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("invalid base64 image data: %w", err)
		}
		return data, nil
	}

	// HTTP(S)-URL oder Speicher-Schlüssel: beides kann der Objektspeicher laden
	if data, err := h.store.Download(c.Request.Context(), ref); err == nil {
		return data, nil
	}

	// Letzter Versuch: nackte Base64-Daten ohne Daten-URL-Präfix
	data, err := base64.StdEncoding.DecodeString(ref)
	if err != nil {
		return nil, fmt.Errorf("image reference could not be resolved")
	}
	return data, nil
}
