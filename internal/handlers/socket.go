package handlers

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/imedhamdi/mapmarket-backend/internal/database"
	"github.com/imedhamdi/mapmarket-backend/internal/models"
	"github.com/imedhamdi/mapmarket-backend/internal/services"
	"github.com/imedhamdi/mapmarket-backend/pkg/logger"
	"github.com/imedhamdi/mapmarket-backend/pkg/utils"
)

var SocketServer *socketio.Server

// Online tracking
var (
	onlineUsers   = make(map[string]string) // userId -> socketId
	onlineUsersMu sync.RWMutex
)

// Typing throttle: at most one isTyping=true relay per sender+thread per
// window. Stops are never throttled.
var (
	lastTypingEmit         = make(map[string]time.Time) // userId:threadId -> last emit
	lastTypingMu           sync.Mutex
	typingThrottleDuration = 3 * time.Second
	typingExpiry           = 4 * time.Second // receivers clear the indicator themselves after this
)

// IsUserOnline checks if a user currently holds a live connection
func IsUserOnline(userId string) bool {
	onlineUsersMu.RLock()
	defer onlineUsersMu.RUnlock()
	_, exists := onlineUsers[userId]
	return exists
}

// EmitToUser sends an event to every connection in a user's personal room.
func EmitToUser(userID, event string, data interface{}) {
	if SocketServer != nil {
		SocketServer.BroadcastToRoom("/", userID, event, data)
	}
}

// PushUnread emits the authoritative global unread recount to a user.
// Clients must overwrite any optimistic local value with this one.
func PushUnread(userID string) {
	if SocketServer == nil {
		return
	}
	count, err := services.GlobalUnread(database.DB, userID)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to recount unread for push")
		return
	}
	EmitToUser(userID, "unreadCountUpdate", gin.H{"unreadGlobalCount": count})
}

func InitSocketServer() *socketio.Server {
	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: func(r *http.Request) bool { return true },
			},
			&polling.Transport{
				CheckOrigin: func(r *http.Request) bool { return true },
			},
		},
	})

	// Handshake fails closed: no valid token, no connection, no state.
	server.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext("")
		url := s.URL()

		token := url.Query().Get("token")
		if token == "" {
			token = url.Query().Get("auth_token") // Fallback
		}
		if token == "" {
			logger.Warn().Str("socket_id", s.ID()).Msg("Socket rejected: no token")
			return fmt.Errorf("authentication required")
		}

		claims, err := utils.ValidateToken(token)
		if err != nil {
			logger.Warn().Str("socket_id", s.ID()).Msg("Socket rejected: invalid token")
			return fmt.Errorf("invalid token")
		}

		userId := claims.UserID
		s.SetContext(userId)

		onlineUsersMu.Lock()
		onlineUsers[userId] = s.ID()
		onlineUsersMu.Unlock()

		// Personal room: all fan-out for this user lands here.
		s.Join(userId)

		logger.Info().Str("socket_id", s.ID()).Str("user_id", userId).Msg("Socket authenticated")
		return nil
	})

	server.OnEvent("/", "joinThread", func(s socketio.Conn, data map[string]interface{}) {
		userId, _ := s.Context().(string)
		threadId, _ := data["threadId"].(string)
		if userId == "" || threadId == "" {
			return
		}
		var thread models.Thread
		if err := database.DB.First(&thread, "id = ?", threadId).Error; err != nil {
			return
		}
		if !thread.HasParticipant(userId) {
			s.Emit("error", gin.H{"message": "Not a participant of this thread"})
			return
		}
		// All chat fan-out deliberately goes through personal rooms: a
		// participant whose thread view is closed (or a second device)
		// must still receive new messages and unread bumps. The thread
		// room exists so presence tooling can enumerate who has the
		// thread open.
		s.Join(threadId)
	})

	server.OnEvent("/", "leaveThread", func(s socketio.Conn, data map[string]interface{}) {
		threadId, _ := data["threadId"].(string)
		if threadId == "" {
			return
		}
		s.Leave(threadId)
	})

	server.OnEvent("/", "sendMessage", func(s socketio.Conn, data map[string]interface{}) {
		senderId, _ := s.Context().(string)
		if senderId == "" {
			return
		}

		req := sendRequest{}
		req.ThreadID, _ = data["threadId"].(string)
		req.RecipientID, _ = data["recipientId"].(string)
		req.Text, _ = data["text"].(string)
		req.LocalID, _ = data["localId"].(string)

		if req.RecipientID == "" || req.Text == "" {
			s.Emit("error", gin.H{"message": "recipientId and text are required", "localId": req.LocalID})
			return
		}

		if _, appErr := deliverText(senderId, req); appErr != nil {
			// Per-message failure stays scoped to this localId; the sender's
			// client marks exactly that optimistic entry failed.
			s.Emit("error", gin.H{"message": appErr.Message, "kind": appErr.Kind, "localId": req.LocalID})
		}
	})

	server.OnEvent("/", "typing", func(s socketio.Conn, data map[string]interface{}) {
		senderId, _ := s.Context().(string)
		if senderId == "" {
			return
		}
		threadId, _ := data["threadId"].(string)
		isTyping, _ := data["isTyping"].(bool)
		if threadId == "" {
			return
		}

		var thread models.Thread
		if err := database.DB.First(&thread, "id = ?", threadId).Error; err != nil {
			return
		}
		peer := thread.OtherParticipant(senderId)
		if peer == "" {
			return
		}

		if isTyping {
			key := senderId + ":" + threadId
			lastTypingMu.Lock()
			last, exists := lastTypingEmit[key]
			if exists && time.Since(last) < typingThrottleDuration {
				lastTypingMu.Unlock()
				return // throttled
			}
			lastTypingEmit[key] = time.Now()
			lastTypingMu.Unlock()
		}

		EmitToUser(peer, "typing", gin.H{
			"threadId":  threadId,
			"userId":    senderId,
			"isTyping":  isTyping,
			"expiresAt": time.Now().Add(typingExpiry).Unix(),
		})
	})

	server.OnEvent("/", "markThreadRead", func(s socketio.Conn, data map[string]interface{}) {
		userId, _ := s.Context().(string)
		threadId, _ := data["threadId"].(string)
		if userId == "" || threadId == "" {
			return
		}
		if _, err := markThreadReadCore(userId, threadId); err != nil {
			s.Emit("error", gin.H{"message": err.Error()})
		}
	})

	// markMessageRead doubles as the delivery ack: status is "delivered" or
	// "read". Unknown ids and terminal states are silent no-ops so duplicate
	// or out-of-order acks cannot corrupt anything.
	server.OnEvent("/", "markMessageRead", func(s socketio.Conn, data map[string]interface{}) {
		userId, _ := s.Context().(string)
		messageId, _ := data["messageId"].(string)
		status, _ := data["status"].(string)
		if userId == "" || messageId == "" {
			return
		}
		if status == "" {
			status = models.StatusRead
		}
		if status != models.StatusDelivered && status != models.StatusRead {
			return
		}

		var msg models.Message
		if err := database.DB.First(&msg, "id = ?", messageId).Error; err != nil {
			return // unknown id: no-op
		}
		// Only the recipient acks delivery/read.
		if msg.RecipientID != userId {
			return
		}
		if !models.CanTransition(msg.Status, status) {
			return // already there, or terminal: no-op
		}

		updates := map[string]interface{}{"status": status}
		if status == models.StatusRead {
			now := time.Now()
			updates["read_at"] = &now
		}
		if err := database.DB.Model(&models.Message{}).Where("id = ?", messageId).Updates(updates).Error; err != nil {
			logger.Error().Err(err).Str("message_id", messageId).Msg("Failed to persist status transition")
			return
		}

		EmitToUser(msg.SenderID, "messageStatusUpdate", gin.H{
			"messageId": messageId,
			"status":    status,
		})
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		onlineUsersMu.Lock()
		for userId, socketId := range onlineUsers {
			if socketId == s.ID() {
				delete(onlineUsers, userId)
				break
			}
		}
		onlineUsersMu.Unlock()
		logger.Debug().Str("socket_id", s.ID()).Str("reason", reason).Msg("Socket closed")
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		logger.Warn().Err(e).Msg("Socket error")
	})

	go server.Serve()
	SocketServer = server
	return server
}

// SocketHandler wraps the socket.io server for gin.
func SocketHandler(server *socketio.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		server.ServeHTTP(c.Writer, c.Request)
	}
}
