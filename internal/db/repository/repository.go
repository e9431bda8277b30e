package repository

import (
	"errors"

	"face-gate-go/internal/core/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository definiert die Schnittstelle für die Datenbank-Operationen
type Repository interface {
	// User-Methoden
	UpsertUserByUsername(user *models.User) error
	GetUserByID(id string) (*models.User, error)
	GetUserByUsername(username string) (*models.User, error)
	GetUsers(limit, offset int) ([]models.User, int64, error)
	UpdateUser(user *models.User) error
	DeleteUser(id string) error

	// Bild-Methoden
	SaveImage(image *models.UserImage) error
	GetImageByID(id string) (*models.UserImage, error)
	GetImagesByUserID(userID string) ([]models.UserImage, error)
	DeleteImage(id string) error

	// Embedding-Methoden
	SaveEmbedding(embedding *models.FaceEmbedding) error
	GetEmbeddings() ([]models.FaceEmbedding, error)
	GetEmbeddingsByUserID(userID string) ([]models.FaceEmbedding, error)
	CountEmbeddingsByUserID(userID string) (int64, error)

	// Statistik-Methoden
	GetStatistics() (models.Statistics, error)
}

// GormRepository implementiert die Repository-Schnittstelle über GORM
// und funktioniert damit für SQLite wie für Postgres.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository erstellt eine neue Repository-Instanz
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// User-Methoden

// UpsertUserByUsername legt einen Benutzer an oder aktualisiert die
// Profilfelder des bestehenden Eintrags mit demselben Benutzernamen.
// Nach dem Aufruf trägt user die ID der tatsächlich gespeicherten Zeile.
func (r *GormRepository) UpsertUserByUsername(user *models.User) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "email", "phone", "date_of_birth",
			"emergency_contact", "medications", "allergies",
			"accessibility_needs", "preferred_language",
			"consent_terms", "provisional", "updated_at",
		}),
	}).Create(user).Error
	if err != nil {
		return err
	}

	// Bei einem Konflikt behält die Datenbank die ID der bestehenden Zeile;
	// die ID im übergebenen Struct wäre dann die frisch generierte. Deshalb
	// die maßgebliche Zeile nachladen.
	var saved models.User
	if err := r.db.Where("username = ?", user.Username).First(&saved).Error; err != nil {
		return err
	}
	*user = saved
	return nil
}

// GetUserByID holt einen Benutzer anhand seiner ID
func (r *GormRepository) GetUserByID(id string) (*models.User, error) {
	var user models.User
	result := r.db.Where("id = ?", id).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

// GetUserByUsername holt einen Benutzer anhand seines Benutzernamens
func (r *GormRepository) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	result := r.db.Where("username = ?", username).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

// GetUsers holt Benutzer mit Pagination
func (r *GormRepository) GetUsers(limit, offset int) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	r.db.Model(&models.User{}).Count(&total)
	result := r.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&users)

	if result.Error != nil {
		return nil, 0, result.Error
	}

	return users, total, nil
}

// UpdateUser speichert geänderte Profilfelder eines Benutzers
func (r *GormRepository) UpdateUser(user *models.User) error {
	return r.db.Save(user).Error
}

// DeleteUser löscht einen Benutzer samt seiner Bilder und Embeddings.
// Die Löschungen laufen in einer Transaktion, damit kein verwaister
// Datensatz zurückbleibt.
func (r *GormRepository) DeleteUser(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.FaceEmbedding{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.UserImage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.User{}).Error
	})
}

// Bild-Methoden

// SaveImage speichert ein Benutzerbild
func (r *GormRepository) SaveImage(image *models.UserImage) error {
	return r.db.Save(image).Error
}

// GetImageByID holt ein Bild anhand seiner ID
func (r *GormRepository) GetImageByID(id string) (*models.UserImage, error) {
	var image models.UserImage
	result := r.db.Where("id = ?", id).First(&image)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &image, nil
}

// GetImagesByUserID holt alle Bilder eines Benutzers
func (r *GormRepository) GetImagesByUserID(userID string) ([]models.UserImage, error) {
	var images []models.UserImage
	result := r.db.Where("user_id = ?", userID).Order("uploaded_at DESC").Find(&images)
	if result.Error != nil {
		return nil, result.Error
	}
	return images, nil
}

// DeleteImage löscht ein Bild
func (r *GormRepository) DeleteImage(id string) error {
	return r.db.Where("id = ?", id).Delete(&models.UserImage{}).Error
}

// Embedding-Methoden

// SaveEmbedding speichert ein Gesichts-Embedding
func (r *GormRepository) SaveEmbedding(embedding *models.FaceEmbedding) error {
	return r.db.Save(embedding).Error
}

// GetEmbeddings holt alle gespeicherten Embeddings
func (r *GormRepository) GetEmbeddings() ([]models.FaceEmbedding, error) {
	var embeddings []models.FaceEmbedding
	result := r.db.Order("created_at DESC").Find(&embeddings)
	if result.Error != nil {
		return nil, result.Error
	}
	return embeddings, nil
}

// GetEmbeddingsByUserID holt alle Embeddings eines Benutzers
func (r *GormRepository) GetEmbeddingsByUserID(userID string) ([]models.FaceEmbedding, error) {
	var embeddings []models.FaceEmbedding
	result := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&embeddings)
	if result.Error != nil {
		return nil, result.Error
	}
	return embeddings, nil
}

// CountEmbeddingsByUserID zählt die Embeddings eines Benutzers
func (r *GormRepository) CountEmbeddingsByUserID(userID string) (int64, error) {
	var count int64
	result := r.db.Model(&models.FaceEmbedding{}).Where("user_id = ?", userID).Count(&count)
	return count, result.Error
}

// Statistik-Methoden

// GetStatistics sammelt Zähler für die Systemübersicht
func (r *GormRepository) GetStatistics() (models.Statistics, error) {
	var stats models.Statistics

	if err := r.db.Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.UserImage{}).Count(&stats.TotalImages).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.FaceEmbedding{}).Count(&stats.TotalEmbeddings).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.User{}).Where("provisional = ?", true).Count(&stats.ProvisionalUsers).Error; err != nil {
		return stats, err
	}

	return stats, nil
}

var _ Repository = (*GormRepository)(nil)
