package handlers

import (
	"net/http"

	"face-gate-go/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// AdminEmbeddings liefert Embedding-Metadaten eines Benutzers. Gedacht
// für lokale Diagnose, nicht für den öffentlichen Betrieb.
func (h *APIHandler) AdminEmbeddings(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		respondError(c, http.StatusBadRequest, "missing_user_id", "")
		return
	}

	embeddings, err := h.repo.GetEmbeddingsByUserID(userID)
	if err != nil {
		log.Errorf("AdminEmbeddings failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}

	items := make([]gin.H, 0, len(embeddings))
	for _, e := range embeddings {
		items = append(items, gin.H{
			"id":            e.ID,
			"user_id":       e.UserID,
			"source":        e.Source,
			"created_at":    e.CreatedAt,
			"has_embedding": len(e.Embedding.Slice()) > 0,
		})
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "items": items})
}

// SystemStats liefert System-, Datenbank- und Worker-Pool-Statistiken
func (h *APIHandler) SystemStats(c *gin.Context) {
	stats := utils.GetSystemStats(h.workerPool)

	dbStats, err := h.repo.GetStatistics()
	if err != nil {
		log.Errorf("SystemStats failed: %v", err)
		respondError(c, http.StatusInternalServerError, "db_error", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"system": stats,
		"database": gin.H{
			"total_users":       dbStats.TotalUsers,
			"total_images":      dbStats.TotalImages,
			"total_embeddings":  dbStats.TotalEmbeddings,
			"provisional_users": dbStats.ProvisionalUsers,
		},
	})
}
