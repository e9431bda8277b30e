package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"face-gate-go/internal/integrations/extractor"
	"face-gate-go/internal/services/enrollment"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// registerRequest sind die Felder der Registrierung. Listenfelder wie
// medications und allergies kommen entweder als JSON-Array oder als
// kommagetrennte Zeichenkette an.
type registerRequest struct {
	Username           string `form:"username" json:"username"`
	DisplayName        string `form:"display_name" json:"display_name"`
	Name               string `form:"name" json:"name"` // Alias für display_name
	Email              string `form:"email" json:"email"`
	Phone              string `form:"phone" json:"phone"`
	DateOfBirth        string `form:"date_of_birth" json:"date_of_birth"`
	EmergencyContact   string `form:"emergency_contact" json:"emergency_contact"`
	Medications        string `form:"medications" json:"medications"`
	Allergies          string `form:"allergies" json:"allergies"`
	AccessibilityNeeds string `form:"accessibility_needs" json:"accessibility_needs"`
	PreferredLanguage  string `form:"preferred_language" json:"preferred_language"`
	ConsentTerms       string `form:"consent_terms" json:"consent_terms"`
	FaceImage          string `form:"face_image" json:"face_image"`
	Image              string `form:"image" json:"image"` // Alias für face_image
}

// bindRequest bindet JSON- oder Formular-Payloads auf dieselbe Struktur
func bindRequest(c *gin.Context, target interface{}) error {
	if strings.Contains(c.ContentType(), "application/json") {
		return c.ShouldBindJSON(target)
	}
	return c.ShouldBind(target)
}

// coerceBool interpretiert die üblichen Wahrheits-Schreibweisen von Formularen
func coerceBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// listToJSON wandelt ein JSON-Array oder eine kommagetrennte Liste in
// normalisiertes JSON um. Leere Eingaben ergeben nil.
func listToJSON(v string) []byte {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if strings.HasPrefix(v, "[") {
		return []byte(v)
	}
	parts := strings.Split(v, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	var b strings.Builder
	b.WriteString("[")
	for i, item := range items {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("%q", item))
	}
	b.WriteString("]")
	return []byte(b.String())
}

// objectToJSON reicht ein JSON-Objekt durch oder verpackt Freitext
func objectToJSON(v string) []byte {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if strings.HasPrefix(v, "{") || strings.HasPrefix(v, "[") {
		return []byte(v)
	}
	return []byte(fmt.Sprintf(`{"raw":%q}`, v))
}

// imageRef liefert die Bild-Referenz aus face_image oder image
func (r *registerRequest) imageRef() string {
	if r.FaceImage != "" {
		return r.FaceImage
	}
	return r.Image
}

// Register legt ein Profil an und durchläuft bei mitgeliefertem Bild die
// volle Pipeline. Das Ergebnis benennt jeden Schritt einzeln.
func (h *APIHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := bindRequest(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Name
	}
	if req.Username == "" || displayName == "" || !coerceBool(req.ConsentTerms) {
		respondError(c, http.StatusBadRequest, "missing_fields", "")
		return
	}

	input := enrollment.RegisterInput{
		Username:           req.Username,
		DisplayName:        displayName,
		Email:              req.Email,
		Phone:              req.Phone,
		DateOfBirth:        req.DateOfBirth,
		EmergencyContact:   objectToJSON(req.EmergencyContact),
		Medications:        listToJSON(req.Medications),
		Allergies:          listToJSON(req.Allergies),
		AccessibilityNeeds: req.AccessibilityNeeds,
		PreferredLanguage:  req.PreferredLanguage,
		ConsentTerms:       coerceBool(req.ConsentTerms),
	}

	if ref := req.imageRef(); ref != "" {
		data, err := h.resolveImageBytes(c, ref)
		if err != nil {
			respondError(c, http.StatusBadRequest, "bad_image", err.Error())
			return
		}
		input.ImageBytes = data
	}

	result, err := h.enrollment.Register(c.Request.Context(), input)
	if err != nil {
		var verr *enrollment.ValidationError
		if errors.As(err, &verr) {
			respondError(c, http.StatusBadRequest, "missing_fields", verr.Message)
			return
		}
		log.Errorf("Register failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"user_id":  result.UserID,
		"username": result.Username,
		"steps":    result.Steps,
		"image":    result.Image,
		"warnings": result.Warnings,
	})
}

// attachRequest sind die Felder für das Anhängen eines Bildes
type attachRequest struct {
	UserID    string `form:"user_id" json:"user_id"`
	FaceImage string `form:"face_image" json:"face_image"`
	Image     string `form:"image" json:"image"`
}

// AttachImage hängt ein Bild an ein bestehendes Profil an
func (h *APIHandler) AttachImage(c *gin.Context) {
	var req attachRequest
	if err := bindRequest(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	ref := req.FaceImage
	if ref == "" {
		ref = req.Image
	}
	if req.UserID == "" || ref == "" {
		respondError(c, http.StatusBadRequest, "missing_fields", "")
		return
	}

	data, err := h.resolveImageBytes(c, ref)
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_image", err.Error())
		return
	}

	result, err := h.enrollment.AttachImage(c.Request.Context(), req.UserID, data)
	if err != nil {
		var verr *enrollment.ValidationError
		if errors.As(err, &verr) {
			respondError(c, http.StatusNotFound, "user_missing", verr.Message)
			return
		}
		log.Errorf("AttachImage failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"user_id":  result.UserID,
		"steps":    result.Steps,
		"image":    result.Image,
		"warnings": result.Warnings,
	})
}

// captureRequest sind die Felder der Sofort-Erfassung
type captureRequest struct {
	FaceImage string `form:"face_image" json:"face_image"`
	Image     string `form:"image" json:"image"`
}

// CaptureFace erfasst ein Gesicht ohne vorhandenes Profil. Es entsteht ein
// provisorisches Profil, das später vervollständigt werden kann.
func (h *APIHandler) CaptureFace(c *gin.Context) {
	var req captureRequest
	if err := bindRequest(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	ref := req.FaceImage
	if ref == "" {
		ref = req.Image
	}
	if ref == "" {
		respondError(c, http.StatusBadRequest, "missing_image", "")
		return
	}

	data, err := h.resolveImageBytes(c, ref)
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_image", err.Error())
		return
	}

	result, err := h.enrollment.CaptureFace(c.Request.Context(), data)
	if err != nil {
		log.Errorf("CaptureFace failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"user_id":     result.UserID,
		"username":    result.Username,
		"provisional": result.Provisional,
		"steps":       result.Steps,
		"image":       result.Image,
		"warnings":    result.Warnings,
	})
}

// UploadFaceTemp legt ein Bild unter temp/ ab und gibt Schlüssel und URL
// zurück. Gedacht für Frontends, die vor der Registrierung einen separaten
// Upload-Schritt erwarten.
func (h *APIHandler) UploadFaceTemp(c *gin.Context) {
	var req captureRequest
	if err := bindRequest(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	ref := req.FaceImage
	if ref == "" {
		ref = req.Image
	}
	if ref == "" {
		respondError(c, http.StatusBadRequest, "missing_image", "")
		return
	}

	data, err := h.resolveImageBytes(c, ref)
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_image", err.Error())
		return
	}

	key := fmt.Sprintf("temp/%s.jpg", strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err := h.store.Upload(c.Request.Context(), key, data, "image/jpeg"); err != nil {
		log.Errorf("Temp upload failed: %v", err)
		respondError(c, http.StatusInternalServerError, "upload_failed", "")
		return
	}

	url, err := h.store.ResolveURL(c.Request.Context(), key)
	if err != nil {
		log.Warnf("Could not resolve URL for %s: %v", key, err)
		url = key
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"temp_storage_path": key,
		"public_url":        url,
		"preview_data_url":  "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
	})
}

// DetectFace liefert die Begrenzungsrahmen aller Gesichter im Bild,
// ohne etwas zu speichern.
func (h *APIHandler) DetectFace(c *gin.Context) {
	var req captureRequest
	if err := bindRequest(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	ref := req.FaceImage
	if ref == "" {
		ref = req.Image
	}
	if ref == "" {
		respondError(c, http.StatusBadRequest, "missing_image", "")
		return
	}

	data, err := h.resolveImageBytes(c, ref)
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_image", err.Error())
		return
	}

	start := time.Now()
	boxes, err := h.workerPool.DetectFaces(c.Request.Context(), data, "detect")
	if err != nil {
		if errors.Is(err, extractor.ErrDecodeFailed) {
			respondError(c, http.StatusBadRequest, "bad_image", "")
			return
		}
		log.Errorf("DetectFace failed: %v", err)
		respondError(c, http.StatusInternalServerError, "detection_failed", "")
		return
	}
	log.Debugf("Face detection took %v", time.Since(start))

	faces := make([]gin.H, 0, len(boxes))
	for _, b := range boxes {
		faces = append(faces, gin.H{"top": b.Top, "right": b.Right, "bottom": b.Bottom, "left": b.Left})
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "faces": faces})
}
