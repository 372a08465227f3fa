package chatclient

import "time"

// Message is the client-side mirror of one ledger entry. While a send is in
// flight only LocalID is set; ID appears once the server confirms. LocalID
// maps to at most one eventual ID.
type Message struct {
	ID        string    `json:"id,omitempty"`
	LocalID   string    `json:"localId,omitempty"`
	ThreadID  string    `json:"threadId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Status    string    `json:"status"`
	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
}

// ThreadSummary is one entry of the thread directory.
type ThreadSummary struct {
	ID           string       `json:"id"`
	OtherUser    UserProfile  `json:"otherUser"`
	ListingID    string       `json:"listingId,omitempty"`
	ListingTitle string       `json:"listingTitle,omitempty"`
	LastMessage  *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount  int          `json:"unreadCount"`
	Archived     bool         `json:"archived"`
	BlockedByMe  bool         `json:"blockedByMe"`
	BlockingMe   bool         `json:"blockingMe"`
}

type UserProfile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

type LastMessage struct {
	Text      string    `json:"text,omitempty"`
	ImageFlag bool      `json:"imageFlag"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListingRef identifies the ad a thread is anchored to.
type ListingRef struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Event is the closed union of everything the live channel can deliver.
// Every inbound payload becomes exactly one of these and flows through
// Client.HandleEvent, so each transition is exhaustively testable.
type Event interface{ isEvent() }

type NewMessageEvent struct {
	ThreadID string
	Message  Message
}

type MessageStatusEvent struct {
	MessageID string
	Status    string
}

type TypingEvent struct {
	ThreadID string
	UserID   string
	IsTyping bool
}

type UnreadCountEvent struct {
	UnreadGlobalCount int64
}

type BlockedStatusEvent struct {
	UserID    string
	IsBlocked bool
}

type MessageDeletedEvent struct {
	MessageID string
	ThreadID  string
}

type ErrorEvent struct {
	Message string
	Kind    string
	LocalID string
}

func (NewMessageEvent) isEvent()     {}
func (MessageStatusEvent) isEvent()  {}
func (TypingEvent) isEvent()         {}
func (UnreadCountEvent) isEvent()    {}
func (BlockedStatusEvent) isEvent()  {}
func (MessageDeletedEvent) isEvent() {}
func (ErrorEvent) isEvent()          {}
