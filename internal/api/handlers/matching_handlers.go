package handlers

import (
	"errors"
	"net/http"

	"face-gate-go/internal/db/vectorsearch"
	"face-gate-go/internal/integrations/extractor"
	"face-gate-go/internal/services/matching"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// loginRequest sind die Felder der Gesichts-Anmeldung
type loginRequest struct {
	FaceImage string `form:"face_image" json:"face_image"`
	Image     string `form:"image" json:"image"`
}

// LoginFace identifiziert das Gesicht im Probenbild. "Kein Treffer" ist
// eine reguläre 200-Antwort mit ok=false; nur Eingabe- und
// Fähigkeitsfehler bekommen Fehler-Statuscodes.
func (h *APIHandler) LoginFace(c *gin.Context) {
	var req loginRequest
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

	// Schwellwert und Trefferanzahl sind bewusst nicht über die Anfrage
	// steuerbar; ein Client könnte sich sonst eine akzeptierende Schwelle
	// aussuchen.
	result, err := h.matching.Match(c.Request.Context(), data, matching.Options{})
	if err != nil {
		switch {
		case errors.Is(err, extractor.ErrNoFaceDetected):
			c.JSON(http.StatusOK, gin.H{
				"ok":      false,
				"error":   "no_face",
				"message": "No face detected. Ensure good lighting, clear focus on face, and try again.",
			})
		case errors.Is(err, extractor.ErrDecodeFailed):
			respondError(c, http.StatusBadRequest, "bad_image", "")
		case errors.Is(err, vectorsearch.ErrSearchUnsupported):
			respondError(c, http.StatusNotImplemented, "nearest_embeddings_not_supported",
				"pgvector extension / vector type is not available in the database")
		default:
			log.Errorf("LoginFace failed: %v", err)
			respondError(c, http.StatusInternalServerError, "db_error", "")
		}
		return
	}

	if !result.Matched {
		body := gin.H{"ok": false, "error": "no_match"}
		if result.Distance > 0 {
			body["min_distance"] = result.Distance
		}
		c.JSON(http.StatusOK, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"user": gin.H{
			"id":           result.User.ID,
			"username":     result.User.Username,
			"display_name": result.User.DisplayName,
		},
		"distance": result.Distance,
	})
}
