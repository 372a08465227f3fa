package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const ReportTargetMessage = "message"

// Report is an append-only audit record for moderation review. Filing one
// never alters the reported message.
type Report struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	ReporterID string `gorm:"index;type:text;not null" json:"reporterId"`
	TargetType string `gorm:"type:text;not null" json:"targetType"`
	TargetID   string `gorm:"index;type:text;not null" json:"targetId"`
	ThreadID   string `gorm:"index;type:text" json:"threadId"`
	Reason     string `gorm:"type:text" json:"reason"`

	Reporter User `gorm:"foreignKey:ReporterID" json:"-"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}
