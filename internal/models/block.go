package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserBlock is a directed block edge. Sending is gated when an edge exists in
// either direction; the blocked side is only ever told "you cannot message
// this user", never who created the edge.
type UserBlock struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	BlockerID string `gorm:"uniqueIndex:idx_blocker_blocked;type:text;not null" json:"blockerId"`
	Blocker   User   `gorm:"foreignKey:BlockerID" json:"-"`

	BlockedID string `gorm:"uniqueIndex:idx_blocker_blocked;type:text;not null" json:"blockedId"`
	Blocked   User   `gorm:"foreignKey:BlockedID" json:"-"`
}

func (b *UserBlock) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return
}

// IsBlockedEither reports whether a block edge exists between a and b in
// either direction.
func IsBlockedEither(db *gorm.DB, a, b string) (bool, error) {
	var count int64
	err := db.Model(&UserBlock{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// HasBlocked reports whether blocker has an edge towards blocked.
func HasBlocked(db *gorm.DB, blocker, blocked string) (bool, error) {
	var count int64
	err := db.Model(&UserBlock{}).
		Where("blocker_id = ? AND blocked_id = ?", blocker, blocked).
		Count(&count).Error
	return count > 0, err
}
