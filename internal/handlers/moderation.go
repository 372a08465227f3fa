package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imedhamdi/mapmarket-backend/internal/database"
	"github.com/imedhamdi/mapmarket-backend/internal/models"
	"github.com/imedhamdi/mapmarket-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlockUser POST /users/:id/block
// Creates a directed block edge and tells the other side only that the
// relationship is now blocked, never who created the edge.
func BlockUser(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	targetID := c.Param("id")

	if targetID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot block yourself"})
		return
	}

	var target models.User
	if err := database.DB.First(&target, "id = ?", targetID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	block := models.UserBlock{BlockerID: userID, BlockedID: targetID}
	// Second block of the same user is a no-op, not an error.
	if err := database.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&block).Error; err != nil {
		logger.Error().Err(err).Str("user_id", userID).Str("target_id", targetID).Msg("Failed to create block")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to block user"})
		return
	}

	// Both clients disable the composer for this pair. The payload names the
	// peer from each receiver's perspective only.
	EmitToUser(targetID, "userBlockedStatus", gin.H{"userId": userID, "isBlocked": true})
	EmitToUser(userID, "userBlockedStatus", gin.H{"userId": targetID, "isBlocked": true})

	c.JSON(http.StatusOK, gin.H{"blocked": true})
}

// UnblockUser POST /users/:id/unblock
func UnblockUser(c *gin.Context) {
	userID := c.MustGet("userId").(string)
	targetID := c.Param("id")

	result := database.DB.Where("blocker_id = ? AND blocked_id = ?", userID, targetID).
		Delete(&models.UserBlock{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unblock user"})
		return
	}

	// The pair may still be blocked in the other direction; only report
	// unblocked when no edge remains.
	stillBlocked, err := models.IsBlockedEither(database.DB, userID, targetID)
	if err != nil && err != gorm.ErrRecordNotFound {
		stillBlocked = true
	}
	EmitToUser(targetID, "userBlockedStatus", gin.H{"userId": userID, "isBlocked": stillBlocked})
	EmitToUser(userID, "userBlockedStatus", gin.H{"userId": targetID, "isBlocked": stillBlocked})

	c.JSON(http.StatusOK, gin.H{"blocked": stillBlocked})
}
