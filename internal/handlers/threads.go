package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imedhamdi/mapmarket-backend/internal/database"
	"github.com/imedhamdi/mapmarket-backend/internal/models"
	"github.com/imedhamdi/mapmarket-backend/internal/services"
	"github.com/imedhamdi/mapmarket-backend/pkg/logger"
	"gorm.io/gorm"
)

// threadSummary is the directory projection of a thread for one user.
type threadSummary struct {
	ID           string         `json:"id"`
	OtherUser    models.User    `json:"otherUser"`
	ListingID    *string        `json:"listingId,omitempty"`
	ListingTitle string         `json:"listingTitle,omitempty"`
	ListingThumb string         `json:"listingThumb,omitempty"`
	LastMessage  *latestMessage `json:"lastMessage,omitempty"`
	UnreadCount  int            `json:"unreadCount"`
	Archived     bool           `json:"archived"`
	BlockedByMe  bool           `json:"blockedByMe"`
	BlockingMe   bool           `json:"blockingMe"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type latestMessage struct {
	Text      string    `json:"text,omitempty"`
	ImageFlag bool      `json:"imageFlag"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListThreads GET /threads
// Returns the caller's non-archived threads ordered by recency, plus the
// global unread badge recomputed as the sum of per-thread counts.
func ListThreads(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	var threads []models.Thread
	err := database.DB.
		Preload("Buyer").Preload("Seller").
		Where("(buyer_id = ? AND archived_by_buyer = ?) OR (seller_id = ? AND archived_by_seller = ?)",
			userID, false, userID, false).
		Order("COALESCE(last_message_at, created_at) DESC").
		Find(&threads).Error
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch threads")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch threads"})
		return
	}

	blockedByMe, blockingMe, err := blockMaps(database.DB, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch block status"})
		return
	}

	summaries := make([]threadSummary, 0, len(threads))
	var globalUnread int64
	for i := range threads {
		t := &threads[i]
		s := summarizeThread(t, userID, blockedByMe, blockingMe)
		globalUnread += int64(s.UnreadCount)
		summaries = append(summaries, s)
	}

	c.JSON(http.StatusOK, gin.H{
		"threads":           summaries,
		"unreadGlobalCount": globalUnread,
	})
}

func summarizeThread(t *models.Thread, userID string, blockedByMe, blockingMe map[string]bool) threadSummary {
	other := t.Seller
	if userID == t.SellerID {
		other = t.Buyer
	}

	s := threadSummary{
		ID:           t.ID,
		OtherUser:    other,
		ListingID:    t.ListingID,
		ListingTitle: t.ListingTitle,
		ListingThumb: t.ListingThumb,
		UnreadCount:  t.UnreadFor(userID),
		Archived:     t.ArchivedBy(userID),
		BlockedByMe:  blockedByMe[other.ID],
		BlockingMe:   blockingMe[other.ID],
		CreatedAt:    t.CreatedAt,
	}
	if t.LastMessageAt != nil {
		s.LastMessage = &latestMessage{
			Text:      t.LastMessageText,
			ImageFlag: t.LastMessageImage,
			CreatedAt: *t.LastMessageAt,
		}
	}
	return s
}

// blockMaps loads every block edge touching userID in one query.
func blockMaps(db *gorm.DB, userID string) (blockedByMe, blockingMe map[string]bool, err error) {
	var edges []models.UserBlock
	if err = db.Where("blocker_id = ? OR blocked_id = ?", userID, userID).Find(&edges).Error; err != nil {
		return nil, nil, err
	}
	blockedByMe = make(map[string]bool)
	blockingMe = make(map[string]bool)
	for _, e := range edges {
		if e.BlockerID == userID {
			blockedByMe[e.BlockedID] = true
		} else {
			blockingMe[e.BlockerID] = true
		}
	}
	return blockedByMe, blockingMe, nil
}

// InitiateThread POST /threads/initiate
// Idempotent get-or-create of the thread between the caller and a recipient,
// optionally anchored to a listing.
func InitiateThread(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	var req struct {
		RecipientID string      `json:"recipientId" binding:"required"`
		ListingRef  *listingRef `json:"listingRef"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.RecipientID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot start a thread with yourself"})
		return
	}

	var recipient models.User
	if err := database.DB.First(&recipient, "id = ?", req.RecipientID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipient not found"})
		return
	}

	var listingID *string
	if req.ListingRef != nil {
		listingID = &req.ListingRef.ID
	}

	thread, _, err := getOrCreateThread(userID, req.RecipientID, listingID, req.ListingRef)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("Failed to initiate thread")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to initiate thread"})
		return
	}

	blockedByMe, blockingMe, err := blockMaps(database.DB, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch block status"})
		return
	}

	// Reload with participant relations for the summary projection.
	database.DB.Preload("Buyer").Preload("Seller").First(thread, "id = ?", thread.ID)

	c.JSON(http.StatusOK, gin.H{
		"thread":    summarizeThread(thread, userID, blockedByMe, blockingMe),
		"recipient": recipient,
	})
}

// listingRef carries display metadata supplied by the listing service.
type listingRef struct {
	ID        string `json:"id" binding:"required"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// getOrCreateThread finds the unique thread for (initiator, recipient,
// listing) regardless of which side initiated, creating it when absent.
func getOrCreateThread(initiatorID, recipientID string, listingID *string, ref *listingRef) (*models.Thread, bool, error) {
	q := database.DB.Where(
		"(buyer_id = ? AND seller_id = ?) OR (buyer_id = ? AND seller_id = ?)",
		initiatorID, recipientID, recipientID, initiatorID,
	)
	if listingID != nil {
		q = q.Where("listing_id = ?", *listingID)
	} else {
		q = q.Where("listing_id IS NULL")
	}

	var thread models.Thread
	err := q.First(&thread).Error
	if err == nil {
		return &thread, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	thread = models.Thread{
		BuyerID:   initiatorID,
		SellerID:  recipientID,
		ListingID: listingID,
	}
	if ref != nil {
		thread.ListingTitle = ref.Title
		thread.ListingThumb = ref.Thumbnail
	}
	if err := database.DB.Create(&thread).Error; err != nil {
		// A concurrent initiate may have won the unique index; re-read.
		if rerr := q.First(&thread).Error; rerr == nil {
			return &thread, false, nil
		}
		return nil, false, err
	}
	return &thread, true, nil
}

// ArchiveThread POST /threads/:id/archive
// Hides the thread from the caller's directory without deleting messages.
func ArchiveThread(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	threadID := c.Param("id")

	var thread models.Thread
	if err := database.DB.First(&thread, "id = ?", threadID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Thread not found"})
		return
	}
	if !thread.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this thread"})
		return
	}

	if err := database.DB.Model(&thread).Update(thread.ArchivedColumnFor(userID), true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive thread"})
		return
	}

	// Archived threads no longer count towards the badge.
	services.InvalidateUnread(userID)
	PushUnread(userID)

	c.JSON(http.StatusOK, gin.H{"archived": true})
}

// MarkThreadRead POST /threads/:id/read
// Zeroes the caller's unread counter, marks the peer's messages read, and
// pushes the authoritative recount back over the live channel.
func MarkThreadRead(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	threadID := c.Param("id")

	marked, err := markThreadReadCore(userID, threadID)
	if err != nil {
		c.Error(err)
		return
	}

	unread, uerr := services.GlobalUnread(database.DB, userID)
	if uerr != nil {
		logger.Warn().Err(uerr).Str("user_id", userID).Msg("Failed to recount unread after mark read")
	}

	c.JSON(http.StatusOK, gin.H{
		"markedRead":        marked,
		"unreadGlobalCount": unread,
	})
}
