package services

import (
	"fmt"
	"time"

	"github.com/imedhamdi/mapmarket-backend/internal/database"
	"github.com/imedhamdi/mapmarket-backend/pkg/logger"
	"gorm.io/gorm"
)

const unreadCacheTTL = 30 * time.Second

func unreadCacheKey(userID string) string {
	return fmt.Sprintf("unread:%s", userID)
}

// GlobalUnread returns the authoritative global unread count for a user:
// the sum of per-thread unread counters over non-archived threads. It is
// always a full recount, never an incremental adjustment, so it cannot
// drift from the thread rows.
func GlobalUnread(db *gorm.DB, userID string) (int64, error) {
	if database.Redis != nil {
		var cached int64
		if err := database.CacheGet(unreadCacheKey(userID), &cached); err == nil {
			return cached, nil
		}
	}

	var total int64
	row := db.Raw(`
		SELECT COALESCE(SUM(
			CASE
				WHEN buyer_id = ? AND archived_by_buyer = ? THEN unread_buyer
				WHEN seller_id = ? AND archived_by_seller = ? THEN unread_seller
				ELSE 0
			END
		), 0)
		FROM threads
		WHERE buyer_id = ? OR seller_id = ?
	`, userID, false, userID, false, userID, userID).Row()
	if err := row.Scan(&total); err != nil {
		return 0, err
	}

	if database.Redis != nil {
		if err := database.CacheSet(unreadCacheKey(userID), total, unreadCacheTTL); err != nil {
			logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to cache unread count")
		}
	}
	return total, nil
}

// InvalidateUnread drops the cached count after any write that touches a
// thread's unread counters.
func InvalidateUnread(userID string) {
	if database.Redis == nil {
		return
	}
	if err := database.CacheInvalidate(unreadCacheKey(userID)); err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to invalidate unread cache")
	}
}
