package chatclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefresh_BadgeIsSumOfNonArchivedUnread(t *testing.T) {
	api := &fakeAPI{}
	api.listThreadsFn = func(ctx context.Context) ([]ThreadSummary, int64, error) {
		return []ThreadSummary{
			{ID: "t1", OtherUser: UserProfile{ID: "u2"}, UnreadCount: 3},
			{ID: "t2", OtherUser: UserProfile{ID: "u3"}, UnreadCount: 2},
			{ID: "t3", OtherUser: UserProfile{ID: "u4"}, UnreadCount: 7, Archived: true},
		}, 5, nil
	}
	d := NewDirectory(api)

	assert.NoError(t, d.Refresh(context.Background()))
	assert.True(t, d.Loaded())
	assert.EqualValues(t, 5, d.Badge(), "archived threads do not count towards the badge")
	assert.Len(t, d.Threads(), 2)
}

func TestRefresh_EmptyResultIsValidState(t *testing.T) {
	api := &fakeAPI{}
	d := NewDirectory(api)

	assert.NoError(t, d.Refresh(context.Background()))
	assert.True(t, d.Loaded(), "an empty thread list is still a completed load")
	assert.Empty(t, d.Threads())
	assert.EqualValues(t, 0, d.Badge())
}

func TestThreads_OrderedByRecency(t *testing.T) {
	api := &fakeAPI{}
	base := time.Now()
	api.listThreadsFn = func(ctx context.Context) ([]ThreadSummary, int64, error) {
		return []ThreadSummary{
			{ID: "old", OtherUser: UserProfile{ID: "u2"}, LastMessage: &LastMessage{Text: "a", CreatedAt: base.Add(-time.Hour)}},
			{ID: "new", OtherUser: UserProfile{ID: "u3"}, LastMessage: &LastMessage{Text: "b", CreatedAt: base}},
		}, 0, nil
	}
	d := NewDirectory(api)
	assert.NoError(t, d.Refresh(context.Background()))

	threads := d.Threads()
	assert.Equal(t, "new", threads[0].ID)
	assert.Equal(t, "old", threads[1].ID)

	// A newer message on the older thread bumps it to the front.
	d.ApplyNewMessage(NewMessageEvent{
		ThreadID: "old",
		Message:  serverMessage("m9", "old", "u2", "re", base.Add(time.Minute)),
	}, "u1")
	threads = d.Threads()
	assert.Equal(t, "old", threads[0].ID)
}

func TestMarkRead_ServerCountOverridesOptimistic(t *testing.T) {
	api := &fakeAPI{}
	api.listThreadsFn = func(ctx context.Context) ([]ThreadSummary, int64, error) {
		return []ThreadSummary{
			{ID: "t1", OtherUser: UserProfile{ID: "u2"}, UnreadCount: 4},
			{ID: "t2", OtherUser: UserProfile{ID: "u3"}, UnreadCount: 1},
		}, 5, nil
	}
	// The server recount disagrees with the optimistic arithmetic (a message
	// landed elsewhere in between). The server value stands.
	api.markReadFn = func(ctx context.Context, threadID string) (int64, error) { return 2, nil }

	d := NewDirectory(api)
	assert.NoError(t, d.Refresh(context.Background()))

	assert.NoError(t, d.MarkRead(context.Background(), "t1"))
	assert.EqualValues(t, 2, d.Badge())

	thread, _ := d.Thread("t1")
	assert.Zero(t, thread.UnreadCount)
}

func TestApplyNewMessage_OwnEchoDoesNotBumpUnread(t *testing.T) {
	api := &fakeAPI{}
	api.listThreadsFn = func(ctx context.Context) ([]ThreadSummary, int64, error) {
		return []ThreadSummary{{ID: "t1", OtherUser: UserProfile{ID: "u2"}}}, 0, nil
	}
	d := NewDirectory(api)
	assert.NoError(t, d.Refresh(context.Background()))

	d.ApplyNewMessage(NewMessageEvent{
		ThreadID: "t1",
		Message:  serverMessage("m1", "t1", "u1", "moi", time.Now()),
	}, "u1")
	assert.EqualValues(t, 0, d.Badge())

	d.ApplyNewMessage(NewMessageEvent{
		ThreadID: "t1",
		Message:  serverMessage("m2", "t1", "u2", "toi", time.Now()),
	}, "u1")
	assert.EqualValues(t, 1, d.Badge())
}

func TestApplyNewMessage_UnknownThreadCreatesStub(t *testing.T) {
	d := NewDirectory(&fakeAPI{})

	d.ApplyNewMessage(NewMessageEvent{
		ThreadID: "t-new",
		Message:  serverMessage("m1", "t-new", "u9", "premier contact", time.Now()),
	}, "u1")

	thread, ok := d.Thread("t-new")
	assert.True(t, ok)
	assert.Equal(t, "u9", thread.OtherUser.ID)
	assert.Equal(t, 1, thread.UnreadCount)
	assert.EqualValues(t, 1, d.Badge())
}

func TestApplyNewMessage_UnarchivesThread(t *testing.T) {
	api := &fakeAPI{}
	api.listThreadsFn = func(ctx context.Context) ([]ThreadSummary, int64, error) {
		return []ThreadSummary{{ID: "t1", OtherUser: UserProfile{ID: "u2"}, Archived: true}}, 0, nil
	}
	d := NewDirectory(api)
	assert.NoError(t, d.Refresh(context.Background()))
	assert.Empty(t, d.Threads())

	d.ApplyNewMessage(NewMessageEvent{
		ThreadID: "t1",
		Message:  serverMessage("m1", "t1", "u2", "toujours là ?", time.Now()),
	}, "u1")
	assert.Len(t, d.Threads(), 1, "a new message surfaces an archived thread")
}

func TestArchive_RemovesFromListAndBadge(t *testing.T) {
	api := &fakeAPI{}
	api.listThreadsFn = func(ctx context.Context) ([]ThreadSummary, int64, error) {
		return []ThreadSummary{{ID: "t1", OtherUser: UserProfile{ID: "u2"}, UnreadCount: 3}}, 3, nil
	}
	d := NewDirectory(api)
	assert.NoError(t, d.Refresh(context.Background()))
	assert.EqualValues(t, 3, d.Badge())

	assert.NoError(t, d.Archive(context.Background(), "t1"))
	assert.Empty(t, d.Threads())
	assert.EqualValues(t, 0, d.Badge())
}

func TestApplyUnreadCount_ServerWins(t *testing.T) {
	api := &fakeAPI{}
	api.listThreadsFn = func(ctx context.Context) ([]ThreadSummary, int64, error) {
		return []ThreadSummary{{ID: "t1", OtherUser: UserProfile{ID: "u2"}, UnreadCount: 1}}, 1, nil
	}
	d := NewDirectory(api)
	assert.NoError(t, d.Refresh(context.Background()))

	d.ApplyUnreadCount(UnreadCountEvent{UnreadGlobalCount: 9})
	assert.EqualValues(t, 9, d.Badge())
}

func TestBlocked_GatesEitherDirection(t *testing.T) {
	api := &fakeAPI{}
	api.listThreadsFn = func(ctx context.Context) ([]ThreadSummary, int64, error) {
		return []ThreadSummary{{ID: "t1", OtherUser: UserProfile{ID: "u2"}}}, 0, nil
	}
	d := NewDirectory(api)
	assert.NoError(t, d.Refresh(context.Background()))
	assert.False(t, d.Blocked("u2"))

	// Peer blocked me.
	d.ApplyBlockedStatus(BlockedStatusEvent{UserID: "u2", IsBlocked: true})
	assert.True(t, d.Blocked("u2"))

	d.ApplyBlockedStatus(BlockedStatusEvent{UserID: "u2", IsBlocked: false})
	assert.False(t, d.Blocked("u2"))

	// I blocked the peer.
	d.SetBlockedByMe("u2", true)
	assert.True(t, d.Blocked("u2"))
	d.SetBlockedByMe("u2", false)
	assert.False(t, d.Blocked("u2"))
}

func TestInitiate_AddsThread(t *testing.T) {
	d := NewDirectory(&fakeAPI{})

	summary, recipient, err := d.Initiate(context.Background(), "u7", nil)
	assert.NoError(t, err)
	assert.Equal(t, "u7", recipient.ID)

	got, ok := d.Thread(summary.ID)
	assert.True(t, ok)
	assert.Equal(t, "u7", got.OtherUser.ID)
}

func TestDirectoryTeardown(t *testing.T) {
	api := &fakeAPI{}
	api.listThreadsFn = func(ctx context.Context) ([]ThreadSummary, int64, error) {
		return []ThreadSummary{{ID: "t1", OtherUser: UserProfile{ID: "u2"}, UnreadCount: 2}}, 2, nil
	}
	d := NewDirectory(api)
	assert.NoError(t, d.Refresh(context.Background()))

	d.Teardown()
	assert.False(t, d.Loaded())
	assert.Empty(t, d.Threads())
	assert.EqualValues(t, 0, d.Badge())
}
