package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the profile projection the messaging subsystem needs. Account
// creation and session issuance live in a separate auth service; rows here
// are synced from it and never mutated beyond profile fields.
type User struct {
	ID        string         `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Username  string `gorm:"uniqueIndex" json:"username"`
	Name      string `json:"name"`
	Email     string `gorm:"uniqueIndex" json:"-"`
	AvatarURL string `json:"avatarUrl"`
}
