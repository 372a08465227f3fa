package chatclient

import (
	"context"
	"sort"
	"time"
)

// Directory is the client mirror of the thread list. Server-authoritative:
// every refresh replaces its contents wholesale, and the global badge is
// always the sum of per-thread unread counts over non-archived threads,
// recomputed rather than incrementally drifted. The one exception is a pushed
// unreadCountUpdate, which overwrites the badge (server wins) until the
// next refresh restores the sum invariant.
type Directory struct {
	api API

	threads  map[string]*ThreadSummary
	badge    int64
	loaded   bool
	lastSeen map[string]time.Time // threadID -> recency key for ordering
}

// NewDirectory creates an empty directory backed by the REST collaborator.
func NewDirectory(api API) *Directory {
	return &Directory{
		api:      api,
		threads:  make(map[string]*ThreadSummary),
		lastSeen: make(map[string]time.Time),
	}
}

// Refresh replaces the directory from the server. An empty result is valid
// state (the UI renders an empty list), not an error.
func (d *Directory) Refresh(ctx context.Context) error {
	summaries, _, err := d.api.ListThreads(ctx)
	if err != nil {
		return err
	}

	d.threads = make(map[string]*ThreadSummary, len(summaries))
	d.lastSeen = make(map[string]time.Time, len(summaries))
	for i := range summaries {
		s := summaries[i]
		d.threads[s.ID] = &s
		if s.LastMessage != nil {
			d.lastSeen[s.ID] = s.LastMessage.CreatedAt
		}
	}
	d.loaded = true
	d.recomputeBadge()
	return nil
}

// Loaded reports whether at least one refresh completed.
func (d *Directory) Loaded() bool { return d.loaded }

// Threads returns non-archived summaries ordered by recency.
func (d *Directory) Threads() []ThreadSummary {
	out := make([]ThreadSummary, 0, len(d.threads))
	for _, t := range d.threads {
		if !t.Archived {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return d.lastSeen[out[i].ID].After(d.lastSeen[out[j].ID])
	})
	return out
}

// Thread returns one summary by id.
func (d *Directory) Thread(threadID string) (ThreadSummary, bool) {
	t, ok := d.threads[threadID]
	if !ok {
		return ThreadSummary{}, false
	}
	return *t, true
}

// Badge returns the global unread count backing the app badge.
func (d *Directory) Badge() int64 { return d.badge }

func (d *Directory) recomputeBadge() {
	var sum int64
	for _, t := range d.threads {
		if !t.Archived {
			sum += int64(t.UnreadCount)
		}
	}
	d.badge = sum
}

// Initiate asks the server for the thread towards a recipient, creating it
// if needed. Idempotent: re-initiating yields the same thread.
func (d *Directory) Initiate(ctx context.Context, recipientID string, listing *ListingRef) (ThreadSummary, UserProfile, error) {
	summary, recipient, err := d.api.InitiateThread(ctx, recipientID, listing)
	if err != nil {
		return ThreadSummary{}, UserProfile{}, err
	}
	d.threads[summary.ID] = &summary
	if summary.LastMessage != nil {
		d.lastSeen[summary.ID] = summary.LastMessage.CreatedAt
	}
	d.recomputeBadge()
	return summary, recipient, nil
}

// Archive hides a thread locally and on the server. Messages are kept.
func (d *Directory) Archive(ctx context.Context, threadID string) error {
	if err := d.api.ArchiveThread(ctx, threadID); err != nil {
		return err
	}
	if t, ok := d.threads[threadID]; ok {
		t.Archived = true
	}
	d.recomputeBadge()
	return nil
}

// MarkRead runs the open-thread reconciliation: the badge drops by the
// thread's pre-open unread count immediately, then the server's recount
// (the MarkThreadRead response, or a later unreadCountUpdate push)
// overwrites whatever the optimistic value was.
func (d *Directory) MarkRead(ctx context.Context, threadID string) error {
	t, ok := d.threads[threadID]
	if ok && t.UnreadCount > 0 {
		t.UnreadCount = 0
		d.recomputeBadge() // optimistic decrement by the pre-open count
	}

	serverCount, err := d.api.MarkThreadRead(ctx, threadID)
	if err != nil {
		return err
	}
	d.badge = serverCount // server wins, even against the optimistic value
	return nil
}

// ApplyNewMessage folds an inbound newMessage into the summary: last-message
// snapshot, recency, and, when the message is from the peer, the unread
// counter. ownUserID distinguishes echoes of this client's own sends.
func (d *Directory) ApplyNewMessage(ev NewMessageEvent, ownUserID string) {
	t, ok := d.threads[ev.ThreadID]
	if !ok {
		// First message of a brand-new thread; the next refresh fills in the
		// full summary, a stub keeps the badge honest meanwhile.
		t = &ThreadSummary{ID: ev.ThreadID, OtherUser: UserProfile{ID: ev.Message.SenderID}}
		d.threads[ev.ThreadID] = t
	}
	t.Archived = false
	t.LastMessage = &LastMessage{
		Text:      ev.Message.Text,
		ImageFlag: ev.Message.ImageURL != "",
		CreatedAt: ev.Message.CreatedAt,
	}
	d.lastSeen[ev.ThreadID] = ev.Message.CreatedAt
	if ev.Message.SenderID != ownUserID {
		t.UnreadCount++
	}
	d.recomputeBadge()
}

// ApplyUnreadCount applies the authoritative pushed recount. Server wins.
func (d *Directory) ApplyUnreadCount(ev UnreadCountEvent) {
	d.badge = ev.UnreadGlobalCount
}

// ApplyBlockedStatus flips the capability gate for every thread shared with
// the peer. The event never says who created the block.
func (d *Directory) ApplyBlockedStatus(ev BlockedStatusEvent) {
	for _, t := range d.threads {
		if t.OtherUser.ID == ev.UserID {
			t.BlockingMe = ev.IsBlocked
		}
	}
}

// Blocked reports whether sending towards peerID is gated in either
// direction, from what this client knows.
func (d *Directory) Blocked(peerID string) bool {
	for _, t := range d.threads {
		if t.OtherUser.ID == peerID && (t.BlockedByMe || t.BlockingMe) {
			return true
		}
	}
	return false
}

// SetBlockedByMe records the local side of a block/unblock action.
func (d *Directory) SetBlockedByMe(peerID string, blocked bool) {
	for _, t := range d.threads {
		if t.OtherUser.ID == peerID {
			t.BlockedByMe = blocked
		}
	}
}

// Teardown drops all state. Called on logout; the directory is rebuilt from
// the server on next login, never from local persistence.
func (d *Directory) Teardown() {
	d.threads = make(map[string]*ThreadSummary)
	d.lastSeen = make(map[string]time.Time)
	d.badge = 0
	d.loaded = false
}
