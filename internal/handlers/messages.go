package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imedhamdi/mapmarket-backend/internal/database"
	"github.com/imedhamdi/mapmarket-backend/internal/models"
	"github.com/imedhamdi/mapmarket-backend/internal/services"
	apperrors "github.com/imedhamdi/mapmarket-backend/pkg/errors"
	"github.com/imedhamdi/mapmarket-backend/pkg/logger"
	"github.com/imedhamdi/mapmarket-backend/pkg/utils"
	"gorm.io/gorm"
)

// DefaultPageSize is the fixed history page size. A response shorter than
// this signals the start of the conversation.
const DefaultPageSize = 20

// Per-user send quota over Redis, on top of the IP limiter.
const (
	sendQuota       = 30
	sendQuotaWindow = time.Minute
)

// GetThreadMessages GET /threads/:id/messages?limit=20&before=cursor
// Cursor-based backward pagination: returns up to limit messages strictly
// older than the cursor, newest first. The cursor is the createdAt of the
// oldest message from the previous page, RFC3339Nano encoded.
func GetThreadMessages(c *gin.Context) {
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

	limit := DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= DefaultPageSize {
			limit = n
		}
	}

	q := database.DB.Preload("Sender").Where("thread_id = ?", threadID)
	if cursor := c.Query("before"); cursor != "" {
		before, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
			return
		}
		q = q.Where("created_at < ?", before)
	}

	var messages []models.Message
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&messages).Error; err != nil {
		logger.Error().Err(err).Str("thread_id", threadID).Msg("Failed to fetch messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	// Deleted messages keep their slot but never ship their body.
	for i := range messages {
		if messages[i].IsDeleted {
			messages[i].Text = ""
			messages[i].ImageURL = ""
		}
	}

	var nextCursor string
	if len(messages) == limit {
		nextCursor = messages[len(messages)-1].CreatedAt.Format(time.RFC3339Nano)
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":   messages,
		"hasMore":    len(messages) == limit,
		"nextCursor": nextCursor,
	})
}

type sendRequest struct {
	ThreadID    string `json:"threadId"`
	RecipientID string `json:"recipientId" binding:"required"`
	Text        string `json:"text" binding:"required"`
	LocalID     string `json:"localId"`
}

// SendMessage POST /messages
// Text sends over the lightweight JSON endpoint; images use the multipart
// endpoint in upload.go. Both funnel into persistAndFanOut.
func SendMessage(c *gin.Context) {
	senderID := c.MustGet("userId").(string)

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	msg, appErr := deliverText(senderID, req)
	if appErr != nil {
		c.JSON(appErr.Code, gin.H{"error": appErr.Message, "kind": appErr.Kind, "localId": req.LocalID})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// deliverText runs the full server-side send pipeline for a text message.
// Shared by the REST handler and the sendMessage socket event.
func deliverText(senderID string, req sendRequest) (*models.Message, *apperrors.AppError) {
	text, err := SanitizeMessageText(req.Text)
	if err != nil {
		return nil, apperrors.ValidationRejected(err.Error())
	}
	msg := &models.Message{
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Text:        text,
	}
	return persistAndFanOut(senderID, req.ThreadID, req.LocalID, msg)
}

// preflightSend runs the checks that must pass before a send causes any side
// effect at all: self-send rejection, the either-direction block gate, and the
// localId exactly-once lookup. The image path calls it before the storage
// upload so a rejected or duplicate send never writes a bucket object. A
// non-nil message means the localId is already persisted and that row answers
// the send.
func preflightSend(senderID, recipientID, localID string) (*models.Message, *apperrors.AppError) {
	if recipientID == senderID {
		return nil, apperrors.ValidationRejected("cannot message yourself")
	}

	blocked, err := models.IsBlockedEither(database.DB, senderID, recipientID)
	if err != nil {
		return nil, apperrors.Internal("Failed to check block status")
	}
	if blocked {
		return nil, apperrors.Blocked("You cannot message this user")
	}

	if localID != "" {
		if !utils.IsUUID(localID) {
			return nil, apperrors.ValidationRejected("localId must be a UUID")
		}
		var existing models.Message
		if err := database.DB.Preload("Sender").First(&existing, "client_message_id = ?", localID).Error; err == nil {
			return &existing, nil
		}
	}
	return nil, nil
}

// persistAndFanOut is the single write path for new messages: preflight
// checks, send quota, thread resolution, localId deduplication, persistence,
// thread denormalization and live fan-out, in that order.
func persistAndFanOut(senderID, threadID, localID string, msg *models.Message) (*models.Message, *apperrors.AppError) {
	if existing, appErr := preflightSend(senderID, msg.RecipientID, localID); appErr != nil {
		return nil, appErr
	} else if existing != nil {
		return existing, nil
	}

	ok, err := database.CheckSendLimit(senderID, sendQuota, sendQuotaWindow)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", senderID).Msg("Send quota check failed, allowing")
	} else if !ok {
		return nil, &apperrors.AppError{Code: http.StatusTooManyRequests, Message: "Sending too fast, slow down"}
	}

	var thread *models.Thread
	if threadID != "" {
		var t models.Thread
		if err := database.DB.First(&t, "id = ?", threadID).Error; err != nil {
			return nil, apperrors.NotFound("Thread not found")
		}
		if !t.HasParticipant(senderID) || t.OtherParticipant(senderID) != msg.RecipientID {
			return nil, apperrors.Forbidden("Not a participant of this thread")
		}
		thread = &t
	} else {
		t, _, err := getOrCreateThread(senderID, msg.RecipientID, nil, nil)
		if err != nil {
			return nil, apperrors.Internal("Failed to resolve thread")
		}
		thread = t
	}

	// Exactly-once by localId: preflight already answered a duplicate with the
	// persisted row; the unique index below settles any race that slips past.
	if localID != "" {
		msg.ClientMessageID = &localID
	}

	msg.ThreadID = thread.ID
	msg.Status = models.StatusSent
	msg.CreatedAt = time.Now()

	if err := database.DB.Create(msg).Error; err != nil {
		// Unique index on client_message_id rejects the insert when two
		// retries race; the winner's row is the canonical one.
		if localID != "" {
			var existing models.Message
			if rerr := database.DB.Preload("Sender").First(&existing, "client_message_id = ?", localID).Error; rerr == nil {
				return &existing, nil
			}
		}
		logger.Error().Err(err).Str("thread_id", thread.ID).Msg("Failed to persist message")
		return nil, apperrors.SendFailed("Failed to send message")
	}

	// Denormalized thread snapshot + recipient unread bump.
	unreadCol := thread.UnreadColumnFor(msg.RecipientID)
	updates := map[string]interface{}{
		"last_message_text":  msg.PreviewText(),
		"last_message_image": msg.ImageURL != "",
		"last_message_at":    msg.CreatedAt,
		"updated_at":         msg.CreatedAt,
		unreadCol:            gorm.Expr(unreadCol + " + 1"),
		// A new message resurfaces the thread for both sides.
		"archived_by_buyer":  false,
		"archived_by_seller": false,
	}
	if err := database.DB.Model(thread).Updates(updates).Error; err != nil {
		logger.Error().Err(err).Str("thread_id", thread.ID).Msg("Failed to update thread snapshot")
	}

	services.InvalidateUnread(msg.RecipientID)

	database.DB.Preload("Sender").First(msg, "id = ?", msg.ID)

	// Live fan-out: both participants' rooms get the new message, the
	// recipient additionally gets the authoritative unread recount.
	EmitToUser(msg.RecipientID, "newMessage", gin.H{"message": msg, "threadId": thread.ID})
	EmitToUser(senderID, "newMessage", gin.H{"message": msg, "threadId": thread.ID})
	PushUnread(msg.RecipientID)

	services.Notify(msg.RecipientID, msg)

	return msg, nil
}

// DeleteMessage DELETE /messages/:id
// Soft delete for everyone: the row keeps its timestamp and position, the
// body is elided, and both participants are told over the live channel.
func DeleteMessage(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	messageID := c.Param("id")

	var req struct {
		Scope string `json:"scope"`
	}
	// Scope defaults to "everyone"; it is the only supported scope.
	_ = c.ShouldBindJSON(&req)
	if req.Scope != "" && req.Scope != "everyone" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported delete scope"})
		return
	}

	var msg models.Message
	if err := database.DB.First(&msg, "id = ?", messageID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the sender can delete a message"})
		return
	}
	if msg.IsDeleted {
		c.JSON(http.StatusOK, gin.H{"deleted": true})
		return
	}

	if err := database.DB.Model(&msg).Updates(map[string]interface{}{
		"is_deleted": true,
		"status":     models.StatusDeleted,
		"text":       "",
		"image_url":  "",
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete message"})
		return
	}

	payload := gin.H{"messageId": msg.ID, "threadId": msg.ThreadID}
	EmitToUser(msg.SenderID, "messageDeleted", payload)
	EmitToUser(msg.RecipientID, "messageDeleted", payload)

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ReportMessage POST /reports
// Creates an audit record for moderation review. The message is untouched.
func ReportMessage(c *gin.Context) {
	userID := c.MustGet("userId").(string)

	var req struct {
		TargetType string `json:"targetType" binding:"required"`
		TargetID   string `json:"targetId" binding:"required"`
		ThreadID   string `json:"threadId"`
		Reason     string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.TargetType != models.ReportTargetMessage {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported report target"})
		return
	}

	var msg models.Message
	if err := database.DB.First(&msg, "id = ?", req.TargetID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if msg.SenderID != userID && msg.RecipientID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant of this thread"})
		return
	}

	report := models.Report{
		ReporterID: userID,
		TargetType: models.ReportTargetMessage,
		TargetID:   msg.ID,
		ThreadID:   msg.ThreadID,
		Reason:     req.Reason,
	}
	if err := database.DB.Create(&report).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to file report"})
		return
	}

	logger.Info().
		Str("report_id", report.ID).
		Str("reporter_id", userID).
		Str("message_id", msg.ID).
		Msg("Message reported")

	c.JSON(http.StatusCreated, gin.H{"report": report})
}

// markThreadReadCore zeroes the caller's unread counter for a thread, marks
// the peer's non-terminal messages read, and notifies both sides. Shared by
// the REST handler and the markThreadRead socket event.
func markThreadReadCore(userID, threadID string) (int64, error) {
	var thread models.Thread
	if err := database.DB.First(&thread, "id = ?", threadID).Error; err != nil {
		return 0, apperrors.NotFound("Thread not found")
	}
	if !thread.HasParticipant(userID) {
		return 0, apperrors.Forbidden("Not a participant of this thread")
	}

	// Collect ids first so the peer gets one status event per message.
	var ids []string
	if err := database.DB.Model(&models.Message{}).
		Where("thread_id = ? AND recipient_id = ? AND status NOT IN ?", threadID, userID,
			[]string{models.StatusRead, models.StatusDeleted}).
		Pluck("id", &ids).Error; err != nil {
		return 0, apperrors.Internal("Failed to mark thread read")
	}

	if len(ids) > 0 {
		now := time.Now()
		if err := database.DB.Model(&models.Message{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":  models.StatusRead,
				"read_at": now,
			}).Error; err != nil {
			return 0, apperrors.Internal("Failed to mark thread read")
		}
	}

	if err := database.DB.Model(&thread).Update(thread.UnreadColumnFor(userID), 0).Error; err != nil {
		return 0, apperrors.Internal("Failed to reset unread counter")
	}

	services.InvalidateUnread(userID)

	peer := thread.OtherParticipant(userID)
	for _, id := range ids {
		EmitToUser(peer, "messageStatusUpdate", gin.H{"messageId": id, "status": models.StatusRead})
	}
	// Authoritative recount; the client overwrites any optimistic decrement.
	PushUnread(userID)

	return int64(len(ids)), nil
}
