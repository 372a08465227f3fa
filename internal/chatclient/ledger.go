package chatclient

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/imedhamdi/mapmarket-backend/internal/models"
	apperrors "github.com/imedhamdi/mapmarket-backend/pkg/errors"
)

// MaxImageBytes is the local pre-upload cap for image messages.
const MaxImageBytes = 2 << 20

var allowedUploadTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// Ledger is the in-memory mirror of per-thread message history, ordered by
// createdAt then id. Rendering is a projection of this state; the transport
// never touches the DOM-equivalent directly.
type Ledger struct {
	byThread  map[string][]*Message
	byID      map[string]*Message
	byLocalID map[string]*Message
}

func NewLedger() *Ledger {
	return &Ledger{
		byThread:  make(map[string][]*Message),
		byID:      make(map[string]*Message),
		byLocalID: make(map[string]*Message),
	}
}

// Messages returns the thread's messages oldest first.
func (l *Ledger) Messages(threadID string) []Message {
	entries := l.byThread[threadID]
	out := make([]Message, len(entries))
	for i, m := range entries {
		out[i] = *m
	}
	return out
}

// Get returns a message by server id.
func (l *Ledger) Get(messageID string) (Message, bool) {
	m, ok := l.byID[messageID]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// GetByLocalID returns a message by its client correlation token.
func (l *Ledger) GetByLocalID(localID string) (Message, bool) {
	m, ok := l.byLocalID[localID]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

func (l *Ledger) sortThread(threadID string) {
	entries := l.byThread[threadID]
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// appendPending adds an optimistic local entry.
func (l *Ledger) appendPending(m *Message) {
	l.byThread[m.ThreadID] = append(l.byThread[m.ThreadID], m)
	l.byLocalID[m.LocalID] = m
}

// PrependPage merges an older history page (server order: newest first) into
// the thread mirror. Messages whose id is already present are skipped, so
// overlapping pages cannot duplicate entries. Returns how many were added.
func (l *Ledger) PrependPage(threadID string, page []Message) int {
	added := 0
	for i := range page {
		m := page[i]
		if m.ID != "" {
			if _, exists := l.byID[m.ID]; exists {
				continue
			}
		}
		entry := &m
		l.byThread[threadID] = append(l.byThread[threadID], entry)
		if m.ID != "" {
			l.byID[m.ID] = entry
		}
		added++
	}
	l.sortThread(threadID)
	return added
}

// ApplyNewMessage folds an inbound newMessage event into the mirror.
// An echo of this client's own optimistic send reconciles by localId instead
// of appending; a duplicate server id is a no-op.
func (l *Ledger) ApplyNewMessage(ev NewMessageEvent) {
	m := ev.Message
	if m.LocalID != "" {
		if pending, ok := l.byLocalID[m.LocalID]; ok {
			l.reconcile(pending, m)
			return
		}
	}
	if m.ID != "" {
		if _, exists := l.byID[m.ID]; exists {
			return
		}
	}
	entry := &m
	l.byThread[m.ThreadID] = append(l.byThread[m.ThreadID], entry)
	if m.ID != "" {
		l.byID[m.ID] = entry
	}
	l.sortThread(m.ThreadID)
}

// reconcile replaces an optimistic entry's fields with the server-confirmed
// record, exactly once. A second confirmation for the same localId finds the
// entry already carrying a server id and does nothing.
func (l *Ledger) reconcile(pending *Message, confirmed Message) {
	if pending.ID != "" {
		return // already reconciled; duplicate ack
	}
	pending.ID = confirmed.ID
	pending.CreatedAt = confirmed.CreatedAt
	if confirmed.Text != "" {
		pending.Text = confirmed.Text
	}
	if confirmed.ImageURL != "" {
		// The server may rewrite the image URL to its stored location.
		pending.ImageURL = confirmed.ImageURL
	}
	if models.CanTransition(pending.Status, models.StatusSent) || pending.Status == models.StatusFailed {
		pending.Status = models.StatusSent
	}
	l.byID[confirmed.ID] = pending
	l.sortThread(pending.ThreadID)
}

// ApplyStatus advances a message along the delivery lattice. Unknown ids and
// transitions out of terminal states are no-ops, which makes duplicate and
// out-of-order status events harmless.
func (l *Ledger) ApplyStatus(ev MessageStatusEvent) {
	m, ok := l.byID[ev.MessageID]
	if !ok {
		return
	}
	if !models.CanTransition(m.Status, ev.Status) {
		return
	}
	m.Status = ev.Status
}

// ApplyDeleted elides a message's body in place. Timestamp and position are
// untouched: deletion is a visibility transform, not a ledger removal.
func (l *Ledger) ApplyDeleted(ev MessageDeletedEvent) {
	m, ok := l.byID[ev.MessageID]
	if !ok {
		return
	}
	m.IsDeleted = true
	m.Text = ""
	m.ImageURL = ""
	m.Status = models.StatusDeleted
}

// MarkFailed moves a pending entry to failed, keyed by localId. The entry
// stays visible with a retry affordance; it is never silently dropped.
func (l *Ledger) MarkFailed(localID string) {
	m, ok := l.byLocalID[localID]
	if !ok || m.ID != "" {
		return // unknown, or the send actually succeeded first
	}
	m.Status = models.StatusFailed
}

// Teardown drops all mirrored history. Nothing survives logout.
func (l *Ledger) Teardown() {
	l.byThread = make(map[string][]*Message)
	l.byID = make(map[string]*Message)
	l.byLocalID = make(map[string]*Message)
}

// SendPipeline turns a user send action into an optimistic ledger entry,
// dispatches it, and reconciles the outcome. One instance per client.
type SendPipeline struct {
	api    API
	ledger *Ledger
	clock  Clock

	// gate reports whether sending towards a peer is blocked in either
	// direction. Checked locally before any network activity.
	gate func(peerID string) bool

	// timeout is how long a dispatched send may wait before the entry is
	// marked failed. There is no automatic retry; retry is a user action.
	timeout time.Duration

	ownUserID  string
	newLocalID func() string

	// pendingImages keeps the original upload keyed by localId for as long
	// as the entry is unconfirmed, so a retry re-dispatches the same image
	// through the image endpoint instead of degrading to a text send.
	pendingImages map[string]*ImageUpload
}

const defaultSendTimeout = 15 * time.Second

// NewSendPipeline wires the pipeline. gate is typically Directory.Blocked.
func NewSendPipeline(api API, ledger *Ledger, clock Clock, ownUserID string, gate func(string) bool) *SendPipeline {
	if clock == nil {
		clock = SystemClock()
	}
	return &SendPipeline{
		api:           api,
		ledger:        ledger,
		clock:         clock,
		gate:          gate,
		timeout:       defaultSendTimeout,
		ownUserID:     ownUserID,
		newLocalID:    func() string { return uuid.New().String() },
		pendingImages: make(map[string]*ImageUpload),
	}
}

// Send dispatches a text or image message. The returned message is the
// optimistic pending entry; its later transitions land in the ledger.
func (p *SendPipeline) Send(ctx context.Context, threadID, recipientID string, text string, image *ImageUpload) (Message, error) {
	// Local gate first: a blocked relationship rejects before any network
	// call, and before an optimistic entry exists.
	if p.gate != nil && p.gate(recipientID) {
		return Message{}, apperrors.Blocked("you cannot message this user")
	}

	if text == "" && image == nil {
		return Message{}, apperrors.ValidationRejected("message must carry text or an image")
	}
	if image != nil {
		if err := validateImage(image); err != nil {
			return Message{}, err
		}
	}

	localID := p.newLocalID()
	pending := &Message{
		LocalID:   localID,
		ThreadID:  threadID,
		SenderID:  p.ownUserID,
		Text:      text,
		Status:    models.StatusPending,
		CreatedAt: p.clock.Now(),
	}
	if image != nil {
		pending.ImageURL = "local:" + image.Filename
		p.pendingImages[localID] = image
	}
	p.ledger.appendPending(pending)
	optimistic := *pending

	payload := SendPayload{
		ThreadID:    threadID,
		RecipientID: recipientID,
		LocalID:     localID,
		Text:        text,
		Image:       image,
	}
	p.dispatch(ctx, payload, image != nil)

	return optimistic, nil
}

// Retry re-dispatches a failed entry with its original localId, so a
// duplicate on the wire still reconciles to the same single message.
func (p *SendPipeline) Retry(ctx context.Context, localID string, recipientID string) error {
	m, ok := p.ledger.byLocalID[localID]
	if !ok {
		return apperrors.NotFound("no message with this localId")
	}
	if m.Status != models.StatusFailed {
		return apperrors.BadRequest("only failed messages can be retried")
	}
	if p.gate != nil && p.gate(recipientID) {
		return apperrors.Blocked("you cannot message this user")
	}

	m.Status = models.StatusPending
	payload := SendPayload{
		ThreadID:    m.ThreadID,
		RecipientID: recipientID,
		LocalID:     localID,
		Text:        m.Text,
		Image:       p.pendingImages[localID],
	}
	p.dispatch(ctx, payload, payload.Image != nil)
	return nil
}

// dispatch performs the network send. Once dispatched a send completes or
// explicitly fails; view navigation never aborts it, so the timeout context
// here is detached from the caller's.
func (p *SendPipeline) dispatch(ctx context.Context, payload SendPayload, isImage bool) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	var confirmed Message
	var err error
	if isImage {
		// Images go through the heavier multipart endpoint.
		confirmed, err = p.api.SendImage(sendCtx, payload)
	} else {
		confirmed, err = p.api.SendText(sendCtx, payload)
	}

	if err != nil {
		p.ledger.MarkFailed(payload.LocalID)
		return
	}
	if pending, ok := p.ledger.byLocalID[payload.LocalID]; ok {
		p.ledger.reconcile(pending, confirmed)
	}
	// Confirmed: the upload can no longer be retried, release it.
	delete(p.pendingImages, payload.LocalID)
}

func validateImage(img *ImageUpload) error {
	if img.Size > MaxImageBytes {
		return apperrors.ValidationRejected("image exceeds the maximum allowed size")
	}
	if img.Size <= 0 {
		return apperrors.ValidationRejected("image file is empty")
	}
	if !allowedUploadTypes[img.ContentType] {
		return apperrors.ValidationRejected("unsupported image type (png, jpeg, webp, gif)")
	}
	return nil
}
