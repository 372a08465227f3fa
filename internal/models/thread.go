package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Thread is a strictly two-party conversation, optionally anchored to a
// listing. Created on first contact, never physically deleted; archiving
// only hides it from the owner's default list.
type Thread struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// BuyerID is the user who initiated the thread, SellerID the listing
	// owner (or plain recipient for listing-less threads).
	BuyerID  string `gorm:"index;type:text;not null;uniqueIndex:idx_thread_pair_listing" json:"buyerId"`
	SellerID string `gorm:"index;type:text;not null;uniqueIndex:idx_thread_pair_listing" json:"sellerId"`

	// Listing reference is immutable once set. Title/thumbnail are
	// denormalized from the listing service for list rendering.
	ListingID    *string `gorm:"type:text;uniqueIndex:idx_thread_pair_listing" json:"listingId"`
	ListingTitle string  `gorm:"type:text" json:"listingTitle,omitempty"`
	ListingThumb string  `gorm:"type:text" json:"listingThumb,omitempty"`

	// Denormalized last-message snapshot for the directory view.
	LastMessageText  string     `gorm:"type:text" json:"lastMessageText"`
	LastMessageImage bool       `gorm:"default:false" json:"lastMessageImage"`
	LastMessageAt    *time.Time `gorm:"index" json:"lastMessageAt"`

	// Per-participant unread counters. Server-authoritative.
	UnreadBuyer  int `gorm:"default:0" json:"-"`
	UnreadSeller int `gorm:"default:0" json:"-"`

	ArchivedByBuyer  bool `gorm:"default:false" json:"-"`
	ArchivedBySeller bool `gorm:"default:false" json:"-"`

	// Relations
	Buyer  User `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	Seller User `gorm:"foreignKey:SellerID" json:"seller,omitempty"`
}

func (t *Thread) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return
}

// HasParticipant reports whether userID is one of the two parties.
func (t *Thread) HasParticipant(userID string) bool {
	return t.BuyerID == userID || t.SellerID == userID
}

// OtherParticipant returns the peer of userID, or "" if userID is not a party.
func (t *Thread) OtherParticipant(userID string) string {
	switch userID {
	case t.BuyerID:
		return t.SellerID
	case t.SellerID:
		return t.BuyerID
	}
	return ""
}

// UnreadFor returns the unread counter scoped to userID.
func (t *Thread) UnreadFor(userID string) int {
	if userID == t.BuyerID {
		return t.UnreadBuyer
	}
	return t.UnreadSeller
}

// ArchivedBy reports whether userID archived this thread.
func (t *Thread) ArchivedBy(userID string) bool {
	if userID == t.BuyerID {
		return t.ArchivedByBuyer
	}
	return t.ArchivedBySeller
}

// UnreadColumnFor returns the DB column holding userID's unread counter,
// for targeted UPDATEs without loading the row.
func (t *Thread) UnreadColumnFor(userID string) string {
	if userID == t.BuyerID {
		return "unread_buyer"
	}
	return "unread_seller"
}

// ArchivedColumnFor returns the DB column holding userID's archived flag.
func (t *Thread) ArchivedColumnFor(userID string) string {
	if userID == t.BuyerID {
		return "archived_by_buyer"
	}
	return "archived_by_seller"
}
