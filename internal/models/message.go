package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Delivery status lattice: pending -> {sent, failed}, sent -> delivered -> read.
// Any non-terminal status may additionally move to deleted. The server only
// persists statuses from sent onward; pending/failed exist purely client-side.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
	StatusDeleted   = "deleted"
)

var statusRank = map[string]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// StatusRank returns the forward-progress rank of a status, or -1 for
// statuses outside the sent->read chain (failed, deleted).
func StatusRank(s string) int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminalStatus reports whether no further delivery transition applies.
func IsTerminalStatus(s string) bool {
	return s == StatusRead || s == StatusDeleted || s == StatusFailed
}

// CanTransition reports whether moving from -> to respects the lattice.
// Same-status re-application is rejected so duplicate events are no-ops.
func CanTransition(from, to string) bool {
	if from == StatusDeleted || from == StatusRead {
		return false
	}
	if to == StatusDeleted {
		return true
	}
	if to == StatusFailed {
		return from == StatusPending
	}
	fr, tr := StatusRank(from), StatusRank(to)
	if fr < 0 || tr < 0 {
		return false
	}
	return tr > fr
}

// Message is one entry in a thread's ledger. Exactly one of Text/ImageURL is
// set. ClientMessageID carries the client's localId; its unique index is what
// makes send reconciliation exactly-once under retry races.
type Message struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	ThreadID    string `gorm:"index;type:text;not null" json:"threadId"`
	SenderID    string `gorm:"index;type:text;not null" json:"senderId"`
	RecipientID string `gorm:"index;type:text;not null" json:"recipientId"`

	Text     string `gorm:"type:text" json:"text,omitempty"`
	ImageURL string `gorm:"type:text" json:"imageUrl,omitempty"`

	Status    string     `gorm:"type:text;default:'sent';not null" json:"status"`
	IsDeleted bool       `gorm:"default:false" json:"isDeleted"`
	ReadAt    *time.Time `json:"readAt,omitempty"`

	// Client-generated correlation token for optimistic-send deduplication.
	ClientMessageID *string `gorm:"uniqueIndex;type:text" json:"localId,omitempty"`

	// Relations
	Sender    User   `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Recipient User   `gorm:"foreignKey:RecipientID" json:"-"`
	Thread    Thread `gorm:"foreignKey:ThreadID" json:"-"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// PreviewText is what the thread directory shows for this message.
func (m *Message) PreviewText() string {
	if m.IsDeleted {
		return ""
	}
	return m.Text
}
