package handlers

import (
	"net/http"

	"face-gate-go/internal/core/models"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// userResponse ist die Profil-Projektion für die API
func userResponse(user *models.User) gin.H {
	return gin.H{
		"id":                  user.ID,
		"display_name":        user.DisplayName,
		"username":            user.Username,
		"email":               user.Email,
		"phone":               user.Phone,
		"date_of_birth":       user.DateOfBirth,
		"emergency_contact":   user.EmergencyContact,
		"medications":         user.Medications,
		"allergies":           user.Allergies,
		"accessibility_needs": user.AccessibilityNeeds,
		"preferred_language":  user.PreferredLanguage,
		"provisional":         user.Provisional,
		"created_at":          user.CreatedAt,
	}
}

// GetUser liefert Profil, Bilder und Embedding-Zähler eines Benutzers.
// Nur der Eigentümer darf lesen; die Besitz-Prüfung läuft vor der
// Existenz-Prüfung, damit fremde IDs nicht ausgeforscht werden können.
func (h *APIHandler) GetUser(c *gin.Context) {
	userID := c.Param("id")

	actor := resolveActor(c, "")
	if err := h.gate.AuthorizeProfileAccess(actor, userID); err != nil {
		respondError(c, http.StatusForbidden, "forbidden", "actor must match user_id")
		return
	}

	user, err := h.repo.GetUserByID(userID)
	if err != nil {
		log.Errorf("GetUser failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}
	if user == nil {
		respondError(c, http.StatusNotFound, "user_missing", "")
		return
	}

	images, err := h.repo.GetImagesByUserID(userID)
	if err != nil {
		log.Errorf("GetUser images failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}

	imageList := make([]gin.H, 0, len(images))
	for _, img := range images {
		imageList = append(imageList, gin.H{
			"id":           img.ID,
			"storage_path": img.StoragePath,
			"public_url":   img.PublicURL,
			"is_profile":   img.IsProfile,
			"uploaded_at":  img.UploadedAt,
		})
	}

	embeddingCount, err := h.repo.CountEmbeddingsByUserID(userID)
	if err != nil {
		log.Errorf("GetUser embedding count failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":              true,
		"user":            userResponse(user),
		"images":          imageList,
		"embedding_count": embeddingCount,
	})
}

// updateUserRequest sind die änderbaren Profilfelder
type updateUserRequest struct {
	DisplayName        string `form:"display_name" json:"display_name"`
	Email              string `form:"email" json:"email"`
	Phone              string `form:"phone" json:"phone"`
	DateOfBirth        string `form:"date_of_birth" json:"date_of_birth"`
	EmergencyContact   string `form:"emergency_contact" json:"emergency_contact"`
	Medications        string `form:"medications" json:"medications"`
	Allergies          string `form:"allergies" json:"allergies"`
	AccessibilityNeeds string `form:"accessibility_needs" json:"accessibility_needs"`
	PreferredLanguage  string `form:"preferred_language" json:"preferred_language"`
	ActorUserID        string `form:"actor_user_id" json:"actor_user_id"`
}

// UpdateUser aktualisiert die Profilfelder des eigenen Benutzers
func (h *APIHandler) UpdateUser(c *gin.Context) {
	userID := c.Param("id")

	var req updateUserRequest
	if err := bindRequest(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	actor := resolveActor(c, req.ActorUserID)
	if err := h.gate.AuthorizeProfileAccess(actor, userID); err != nil {
		respondError(c, http.StatusForbidden, "forbidden", "actor must match user_id")
		return
	}

	user, err := h.repo.GetUserByID(userID)
	if err != nil {
		log.Errorf("UpdateUser failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}
	if user == nil {
		respondError(c, http.StatusNotFound, "user_missing", "")
		return
	}

	if req.DisplayName != "" {
		user.DisplayName = req.DisplayName
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}
	if req.DateOfBirth != "" {
		user.DateOfBirth = req.DateOfBirth
	}
	if contact := objectToJSON(req.EmergencyContact); contact != nil {
		user.EmergencyContact = datatypes.JSON(contact)
	}
	if meds := listToJSON(req.Medications); meds != nil {
		user.Medications = datatypes.JSON(meds)
	}
	if allergies := listToJSON(req.Allergies); allergies != nil {
		user.Allergies = datatypes.JSON(allergies)
	}
	if req.AccessibilityNeeds != "" {
		user.AccessibilityNeeds = req.AccessibilityNeeds
	}
	if req.PreferredLanguage != "" {
		user.PreferredLanguage = req.PreferredLanguage
	}

	// Ein vervollständigtes provisorisches Profil wird regulär
	if user.Provisional && req.DisplayName != "" {
		user.Provisional = false
	}

	if err := h.repo.UpdateUser(user); err != nil {
		log.Errorf("UpdateUser save failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "user": userResponse(user)})
}

// deleteRequest trägt nur die Aufrufer-Identität
type deleteRequest struct {
	ActorUserID string `form:"actor_user_id" json:"actor_user_id"`
}

// DeleteUser löscht Profil, Bilder und Embeddings eines Benutzers sowie
// die zugehörigen Objekte im Speicher
func (h *APIHandler) DeleteUser(c *gin.Context) {
	userID := c.Param("id")

	var req deleteRequest
	_ = bindRequest(c, &req)

	actor := resolveActor(c, req.ActorUserID)
	if err := h.gate.AuthorizeProfileAccess(actor, userID); err != nil {
		respondError(c, http.StatusForbidden, "forbidden", "actor must match user_id")
		return
	}

	user, err := h.repo.GetUserByID(userID)
	if err != nil {
		log.Errorf("DeleteUser failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}
	if user == nil {
		respondError(c, http.StatusNotFound, "user_missing", "")
		return
	}

	images, err := h.repo.GetImagesByUserID(userID)
	if err != nil {
		log.Errorf("DeleteUser image lookup failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}

	if err := h.repo.DeleteUser(userID); err != nil {
		log.Errorf("DeleteUser delete failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}

	// Speicher-Objekte erst nach dem Datenbank-Commit entfernen; ein
	// Fehlschlag hier lässt höchstens verwaiste Blobs zurück
	keys := make([]string, 0, len(images))
	for _, img := range images {
		if img.StoragePath != "" {
			keys = append(keys, img.StoragePath)
		}
	}
	removed := true
	if len(keys) > 0 {
		if err := h.store.Remove(c.Request.Context(), keys...); err != nil {
			log.Warnf("Storage cleanup for user %s incomplete: %v", userID, err)
			removed = false
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "removed_from_storage": removed})
}

// DeleteUserImage löscht ein einzelnes Bild. Nur der Eigentümer des
// Bildes darf löschen.
func (h *APIHandler) DeleteUserImage(c *gin.Context) {
	imageID := c.Param("id")

	var req deleteRequest
	_ = bindRequest(c, &req)

	actor := resolveActor(c, req.ActorUserID)
	if actor.UserID == "" {
		respondError(c, http.StatusForbidden, "forbidden", "missing actor identity")
		return
	}

	image, err := h.repo.GetImageByID(imageID)
	if err != nil {
		log.Errorf("DeleteUserImage failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}
	if image == nil {
		respondError(c, http.StatusNotFound, "image_missing", "")
		return
	}

	if err := h.gate.AuthorizeProfileAccess(actor, image.UserID); err != nil {
		respondError(c, http.StatusForbidden, "forbidden", "not image owner")
		return
	}

	if err := h.repo.DeleteImage(imageID); err != nil {
		log.Errorf("DeleteUserImage delete failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}

	removed := false
	if image.StoragePath != "" {
		if err := h.store.Remove(c.Request.Context(), image.StoragePath); err != nil {
			log.Warnf("Storage remove failed for %s: %v", image.StoragePath, err)
		} else {
			removed = true
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":                   true,
		"removed_from_storage": removed,
		"storage_path":         image.StoragePath,
	})
}
