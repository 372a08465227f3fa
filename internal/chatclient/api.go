package chatclient

import "context"

// MessagePage is one backward page of history.
type MessagePage struct {
	Messages   []Message // newest first, as shipped by the server
	HasMore    bool
	NextCursor string
}

// SendPayload carries one outbound message. Exactly one of Text/Image is set.
type SendPayload struct {
	ThreadID    string
	RecipientID string
	LocalID     string
	Text        string
	Image       *ImageUpload
}

// ImageUpload describes an image picked by the user, validated locally
// before any upload is attempted.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// API is the REST collaborator. Implementations wrap the HTTP layer; tests
// substitute fakes. Context cancellation aborts history fetches when the
// user navigates away, but sends are always dispatched with a context that
// outlives the view.
type API interface {
	ListThreads(ctx context.Context) ([]ThreadSummary, int64, error)
	InitiateThread(ctx context.Context, recipientID string, listing *ListingRef) (ThreadSummary, UserProfile, error)
	ArchiveThread(ctx context.Context, threadID string) error
	MarkThreadRead(ctx context.Context, threadID string) (int64, error)
	LoadMessages(ctx context.Context, threadID, before string, limit int) (MessagePage, error)
	SendText(ctx context.Context, p SendPayload) (Message, error)
	SendImage(ctx context.Context, p SendPayload) (Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	ReportMessage(ctx context.Context, messageID, threadID, reason string) error
	BlockUser(ctx context.Context, userID string) error
	UnblockUser(ctx context.Context, userID string) error
}

// Transport is the live-channel collaborator. Connect must fail closed: an
// authentication rejection leaves no partial state behind. Inbound events
// are delivered by the transport binding via Client.HandleEvent.
type Transport interface {
	Connect(ctx context.Context, token, userID string) error
	Disconnect() error
	Emit(event string, payload map[string]interface{}) error
}
