package chatclient

import (
	"context"

	"github.com/imedhamdi/mapmarket-backend/pkg/logger"
)

// Client is the top-level client state machine: one Session, one Directory,
// one Ledger, one SendPipeline and one TypingCoordinator, with a Pager per
// open thread. All inbound live-channel events flow through HandleEvent,
// which routes each one to the interested components; rendering is a
// projection of the resulting state.
type Client struct {
	UserID string

	Session   *Session
	Directory *Directory
	Ledger    *Ledger
	Pipeline  *SendPipeline
	Typing    *TypingCoordinator

	api    API
	pagers map[string]*Pager
}

// New wires a client around its collaborators. clock may be nil for the
// system clock.
func New(userID string, api API, transport Transport, clock Clock) *Client {
	c := &Client{
		UserID: userID,
		api:    api,
		pagers: make(map[string]*Pager),
	}
	c.Directory = NewDirectory(api)
	c.Ledger = NewLedger()
	c.Pipeline = NewSendPipeline(api, c.Ledger, clock, userID, c.Directory.Blocked)
	c.Session = NewSession(transport, clock)
	c.Typing = NewTypingCoordinator(clock, func(threadID string, isTyping bool) {
		if err := c.Session.Emit("typing", map[string]interface{}{
			"threadId": threadID,
			"isTyping": isTyping,
		}); err != nil {
			logger.Debug().Err(err).Str("thread_id", threadID).Msg("Typing emit dropped")
		}
	}, nil)

	// Missed events are not replayed; every (re)connect resyncs the
	// directory wholesale instead.
	c.Session.OnConnected = func() {
		if err := c.Directory.Refresh(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Directory refresh after connect failed")
		}
	}
	return c
}

// Connect establishes the live session.
func (c *Client) Connect(ctx context.Context, token string) error {
	return c.Session.Connect(ctx, token, c.UserID)
}

// Logout tears the whole client scope down: the connection, the thread
// directory, the message mirror and all pagers. Nothing survives to the
// next login; state is rebuilt from the server.
func (c *Client) Logout() error {
	err := c.Session.Disconnect()
	c.Directory.Teardown()
	c.Ledger.Teardown()
	c.pagers = make(map[string]*Pager)
	return err
}

// Pager returns (creating on first use) the history pager for a thread.
func (c *Client) Pager(threadID string) *Pager {
	p, ok := c.pagers[threadID]
	if !ok {
		p = NewPager(c.api, c.Ledger, threadID)
		c.pagers[threadID] = p
	}
	return p
}

// OpenThread is the view-open reconciliation: join the thread room, mark it
// read (optimistic badge decrement, server recount wins) and make sure a
// pager exists.
func (c *Client) OpenThread(ctx context.Context, threadID string) error {
	if err := c.Session.Emit("joinThread", map[string]interface{}{"threadId": threadID}); err != nil {
		logger.Debug().Err(err).Str("thread_id", threadID).Msg("joinThread emit dropped")
	}
	c.Pager(threadID)
	return c.Directory.MarkRead(ctx, threadID)
}

// CloseThread leaves the thread room and flushes any in-flight typing state
// so the peer never sees a stuck indicator after the view closes.
func (c *Client) CloseThread(threadID string) {
	c.Typing.StopTyping(threadID)
	if err := c.Session.Emit("leaveThread", map[string]interface{}{"threadId": threadID}); err != nil {
		logger.Debug().Err(err).Str("thread_id", threadID).Msg("leaveThread emit dropped")
	}
}

// Block gates the pair locally and on the server.
func (c *Client) Block(ctx context.Context, peerID string) error {
	if err := c.api.BlockUser(ctx, peerID); err != nil {
		return err
	}
	c.Directory.SetBlockedByMe(peerID, true)
	return nil
}

// Unblock removes this side's edge. The peer may still block.
func (c *Client) Unblock(ctx context.Context, peerID string) error {
	if err := c.api.UnblockUser(ctx, peerID); err != nil {
		return err
	}
	c.Directory.SetBlockedByMe(peerID, false)
	return nil
}

// DeleteForEveryone soft-deletes a message for both participants. The local
// elision happens when the messageDeleted event comes back, keeping both
// clients on the same path.
func (c *Client) DeleteForEveryone(ctx context.Context, messageID string) error {
	return c.api.DeleteMessage(ctx, messageID)
}

// Report files a moderation report; the message itself is untouched.
func (c *Client) Report(ctx context.Context, messageID, threadID, reason string) error {
	return c.api.ReportMessage(ctx, messageID, threadID, reason)
}

// HandleEvent is the single reducer entry point for inbound events. Each
// event mutates only the components that own its state; everything else is
// untouched, so a failure in one thread can never cascade to another.
func (c *Client) HandleEvent(ev Event) {
	switch e := ev.(type) {
	case NewMessageEvent:
		c.Ledger.ApplyNewMessage(e)
		c.Directory.ApplyNewMessage(e, c.UserID)
		// Receiving a message over the live channel is the delivery ack.
		if e.Message.SenderID != c.UserID && e.Message.ID != "" {
			if err := c.Session.Emit("markMessageRead", map[string]interface{}{
				"messageId": e.Message.ID,
				"status":    "delivered",
			}); err != nil {
				logger.Debug().Err(err).Str("message_id", e.Message.ID).Msg("Delivery ack dropped")
			}
		}
	case MessageStatusEvent:
		c.Ledger.ApplyStatus(e)
	case TypingEvent:
		c.Typing.ApplyTyping(e)
	case UnreadCountEvent:
		c.Directory.ApplyUnreadCount(e)
	case BlockedStatusEvent:
		c.Directory.ApplyBlockedStatus(e)
	case MessageDeletedEvent:
		c.Ledger.ApplyDeleted(e)
	case ErrorEvent:
		// Per-message errors are localized to that message's status; they
		// never cascade to other messages or threads.
		if e.LocalID != "" {
			c.Ledger.MarkFailed(e.LocalID)
		} else {
			logger.Warn().Str("kind", e.Kind).Str("message", e.Message).Msg("Live channel error")
		}
	}
}
