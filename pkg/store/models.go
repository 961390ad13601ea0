package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.

type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Username     string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	Quota        int    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ConversationModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Title     string `gorm:"not null"`
	TopicID   string
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

type MessageModel struct {
	ID             string         `gorm:"primaryKey"`
	ConversationID string         `gorm:"not null;index"`
	Role           string         `gorm:"not null"`
	Content        string         `gorm:"type:text;not null"`
	Hidden         bool           `gorm:"not null;default:false"`
	IsStreaming    bool           `gorm:"not null;default:false"`
	Sources        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;index"`
}
