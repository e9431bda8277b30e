package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Quellen, aus denen ein Embedding entstanden sein kann
const (
	EmbeddingSourceRegister  = "register"
	EmbeddingSourceAttach    = "attach"
	EmbeddingSourceCapture   = "capture"
	EmbeddingSourceMigration = "migration"
)

// User repräsentiert ein registriertes Profil (getrennt vom biometrischen Template)
type User struct {
	ID                 string         `gorm:"type:uuid;primaryKey" json:"id"`
	DisplayName        string         `gorm:"not null" json:"display_name"`
	Username           string         `gorm:"uniqueIndex;not null" json:"username"`
	Email              string         `json:"email,omitempty"`
	Phone              string         `json:"phone,omitempty"`
	DateOfBirth        string         `json:"date_of_birth,omitempty"`
	EmergencyContact   datatypes.JSON `gorm:"type:json" json:"emergency_contact,omitempty"`
	Medications        datatypes.JSON `gorm:"type:json" json:"medications,omitempty"`
	Allergies          datatypes.JSON `gorm:"type:json" json:"allergies,omitempty"`
	AccessibilityNeeds string         `json:"accessibility_needs,omitempty"`
	PreferredLanguage  string         `json:"preferred_language,omitempty"`
	ConsentTerms       bool           `json:"consent_terms"`
	Provisional        bool           `gorm:"index" json:"provisional"` // Platzhalter-Profil aus dem Capture-First-Flow
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"-"`

	Images     []UserImage     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	Embeddings []FaceEmbedding `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
}

// BeforeCreate vergibt eine UUID, falls noch keine gesetzt ist
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// UserImage repräsentiert ein hochgeladenes Bild eines Profils
type UserImage struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string    `gorm:"type:uuid;index;not null" json:"user_id"`
	StoragePath string    `gorm:"not null" json:"storage_path"` // Schlüssel im Objektspeicher
	PublicURL   string    `json:"public_url"`                   // aufgelöste Abruf-URL (ggf. signiert)
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	MimeType    string    `json:"mime_type"`
	IsProfile   bool      `json:"is_profile"`
	FileSize    int       `json:"file_size"`
	UploadedAt  time.Time `gorm:"index" json:"uploaded_at"`
}

// BeforeCreate vergibt eine UUID, falls noch keine gesetzt ist
func (i *UserImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// FaceEmbedding repräsentiert einen gespeicherten Gesichtsvektor.
// Ein einmal gespeicherter Vektor wird nie verändert, nur gelöscht (Kaskade mit dem Profil).
type FaceEmbedding struct {
	ID        string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string          `gorm:"type:uuid;index;not null" json:"user_id"`
	Embedding pgvector.Vector `gorm:"type:vector(128)" json:"-"`
	Source    string          `gorm:"index" json:"source"` // register, attach, capture, migration
	CreatedAt time.Time       `json:"created_at"`
}

// BeforeCreate vergibt eine UUID, falls noch keine gesetzt ist
func (e *FaceEmbedding) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// Statistics repräsentiert Zähler über Profile, Bilder und Embeddings
type Statistics struct {
	TotalUsers       int64 // Gesamtzahl der Benutzerprofile
	TotalImages      int64 // Gesamtzahl der gespeicherten Bilder
	TotalEmbeddings  int64 // Gesamtzahl der gespeicherten Embeddings
	ProvisionalUsers int64 // Anzahl der provisorisch angelegten Profile
}
