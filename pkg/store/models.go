package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Conversation logs, plan cards, and
// dossiers are JSONB documents; everything queried on is a plain column.
type UserModel struct {
	ID            string `gorm:"primaryKey"`
	Email         string `gorm:"uniqueIndex;not null"`
	DisplayName   string
	OAuthProvider string
	OAuthSubject  string
	PromoCode     string
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time
}

type TranscriptModel struct {
	ID              string         `gorm:"primaryKey"`
	UserID          string         `gorm:"uniqueIndex;not null"`
	SessionToken    string         `gorm:"index"`
	Interview       datatypes.JSON `gorm:"type:jsonb"`
	Modules         datatypes.JSON `gorm:"type:jsonb"`
	PlanCard        datatypes.JSON `gorm:"type:jsonb"`
	Dossier         datatypes.JSON `gorm:"type:jsonb"`
	PaymentVerified bool           `gorm:"not null;default:false"`
	CreatedAt       time.Time      `gorm:"not null"`
	UpdatedAt       time.Time      `gorm:"not null"`
}

type PlanModel struct {
	ID               string `gorm:"primaryKey"`
	UserID           string `gorm:"uniqueIndex;not null"`
	Status           string `gorm:"not null"`
	LetterStatus     string `gorm:"not null"`
	LetterContent    string `gorm:"type:text"`
	BundlePDFStatus  string
	BundlePDFURL     string
	ClientName       string
	Horizon          string `gorm:"not null"`
	HorizonRationale string
	Tone             string
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type ArtifactModel struct {
	ID           string `gorm:"primaryKey"`
	PlanID       string `gorm:"not null;index;uniqueIndex:idx_artifact_plan_key"`
	Key          string `gorm:"not null;uniqueIndex:idx_artifact_plan_key"`
	Title        string `gorm:"not null"`
	Type         string `gorm:"not null"`
	Importance   string
	WhyImportant string `gorm:"type:text"`
	Status       string `gorm:"not null;index"`
	Content      string `gorm:"type:text"`
	PDFStatus    string
	PDFURL       string
	DisplayOrder int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type CoachMessageModel struct {
	ID        string    `gorm:"primaryKey"`
	PlanID    string    `gorm:"not null;index"`
	Role      string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}
