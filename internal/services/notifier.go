package services

import (
	"github.com/imedhamdi/mapmarket-backend/internal/models"
	"github.com/imedhamdi/mapmarket-backend/pkg/logger"
)

// Notifier is the contract towards the push-notification collaborator. The
// transport (FCM, APNs, mail digests) lives in a separate service; the
// messaging subsystem only reports that a user has a new unseen message.
type Notifier interface {
	NotifyNewMessage(userID string, msg *models.Message)
}

var activeNotifier Notifier = noopNotifier{}

// SetNotifier installs the push collaborator. Tests install fakes here.
func SetNotifier(n Notifier) {
	if n == nil {
		activeNotifier = noopNotifier{}
		return
	}
	activeNotifier = n
}

// Notify forwards a new-message signal to the installed notifier.
func Notify(userID string, msg *models.Message) {
	activeNotifier.NotifyNewMessage(userID, msg)
}

type noopNotifier struct{}

func (noopNotifier) NotifyNewMessage(userID string, msg *models.Message) {
	logger.Debug().Str("user_id", userID).Str("message_id", msg.ID).Msg("No notifier installed, dropping push")
}
