package chatclient

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/imedhamdi/mapmarket-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func newTestPipeline(api *fakeAPI, gate func(string) bool) (*SendPipeline, *Ledger, *fakeClock) {
	clock := newFakeClock()
	ledger := NewLedger()
	p := NewSendPipeline(api, ledger, clock, "u1", gate)
	return p, ledger, clock
}

func TestSend_OptimisticThenReconciled(t *testing.T) {
	api := &fakeAPI{}
	api.sendTextFn = func(ctx context.Context, p SendPayload) (Message, error) {
		return Message{ID: "srv1", LocalID: p.LocalID, ThreadID: p.ThreadID, SenderID: "u1", Text: p.Text, Status: "sent", CreatedAt: time.Now()}, nil
	}
	p, ledger, _ := newTestPipeline(api, nil)

	optimistic, err := p.Send(context.Background(), "t1", "u2", "Bonjour", nil)
	assert.NoError(t, err)
	assert.Equal(t, "pending", optimistic.Status)
	assert.NotEmpty(t, optimistic.LocalID)
	assert.Empty(t, optimistic.ID)

	// After the ack the same entry carries the server id and is sent.
	got, ok := ledger.GetByLocalID(optimistic.LocalID)
	assert.True(t, ok)
	assert.Equal(t, "srv1", got.ID)
	assert.Equal(t, "sent", got.Status)
	assert.Len(t, ledger.Messages("t1"), 1)
}

func TestReconcile_DuplicateAckIsExactlyOnce(t *testing.T) {
	api := &fakeAPI{}
	api.sendTextFn = func(ctx context.Context, p SendPayload) (Message, error) {
		return Message{ID: "srv1", LocalID: p.LocalID, ThreadID: "t1", SenderID: "u1", Text: p.Text, Status: "sent"}, nil
	}
	p, ledger, _ := newTestPipeline(api, nil)

	optimistic, err := p.Send(context.Background(), "t1", "u2", "Bonjour", nil)
	assert.NoError(t, err)

	// The server echoes the confirmed message over the live channel too;
	// the echo must reconcile, not append.
	echo := Message{ID: "srv1", LocalID: optimistic.LocalID, ThreadID: "t1", SenderID: "u1", Text: "Bonjour", Status: "sent"}
	ledger.ApplyNewMessage(NewMessageEvent{ThreadID: "t1", Message: echo})
	ledger.ApplyNewMessage(NewMessageEvent{ThreadID: "t1", Message: echo})

	assert.Len(t, ledger.Messages("t1"), 1)
}

func TestSend_BlockedIsLocalAndMakesNoNetworkCall(t *testing.T) {
	api := &fakeAPI{}
	gate := func(peerID string) bool { return peerID == "u2" }
	p, ledger, _ := newTestPipeline(api, gate)

	_, err := p.Send(context.Background(), "t1", "u2", "hé", nil)
	assert.True(t, apperrors.IsKind(err, apperrors.KindBlocked))
	assert.Empty(t, api.sendCalls, "blocked send must not reach the network")
	assert.Empty(t, ledger.Messages("t1"), "blocked send leaves no optimistic entry")
}

func TestSend_OversizedImageRejectedBeforeUpload(t *testing.T) {
	api := &fakeAPI{}
	p, ledger, _ := newTestPipeline(api, nil)

	img := &ImageUpload{Filename: "photo.jpg", ContentType: "image/jpeg", Size: 3 << 20}
	_, err := p.Send(context.Background(), "t1", "u2", "", img)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidationRejected))
	assert.Empty(t, api.sendCalls)
	assert.Empty(t, ledger.Messages("t1"))
}

func TestSend_BadImageTypeRejected(t *testing.T) {
	api := &fakeAPI{}
	p, _, _ := newTestPipeline(api, nil)

	img := &ImageUpload{Filename: "doc.pdf", ContentType: "application/pdf", Size: 1024}
	_, err := p.Send(context.Background(), "t1", "u2", "", img)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidationRejected))
}

func TestSend_FailureThenRetrySameLocalID(t *testing.T) {
	api := &fakeAPI{}
	fail := true
	api.sendTextFn = func(ctx context.Context, p SendPayload) (Message, error) {
		if fail {
			return Message{}, apperrors.SendFailed("disconnected")
		}
		return Message{ID: "srv1", LocalID: p.LocalID, ThreadID: "t1", SenderID: "u1", Text: p.Text, Status: "sent"}, nil
	}
	p, ledger, _ := newTestPipeline(api, nil)

	optimistic, err := p.Send(context.Background(), "t1", "u2", "Bonjour", nil)
	assert.NoError(t, err)

	got, _ := ledger.GetByLocalID(optimistic.LocalID)
	assert.Equal(t, "failed", got.Status, "failed send stays visible with failed status")

	// Retry re-dispatches the SAME localId.
	fail = false
	assert.NoError(t, p.Retry(context.Background(), optimistic.LocalID, "u2"))

	assert.Len(t, api.sendCalls, 2)
	assert.Equal(t, api.sendCalls[0].LocalID, api.sendCalls[1].LocalID)

	got, _ = ledger.GetByLocalID(optimistic.LocalID)
	assert.Equal(t, "sent", got.Status)
	assert.Equal(t, "srv1", got.ID)
	assert.Len(t, ledger.Messages("t1"), 1)
}

func TestSend_ImageFailureThenRetryStaysOnImageEndpoint(t *testing.T) {
	api := &fakeAPI{}
	textCalls := 0
	api.sendTextFn = func(ctx context.Context, p SendPayload) (Message, error) {
		textCalls++
		return Message{}, apperrors.SendFailed("wrong endpoint")
	}
	fail := true
	imageCalls := 0
	api.sendImageFn = func(ctx context.Context, p SendPayload) (Message, error) {
		imageCalls++
		if fail {
			return Message{}, apperrors.SendFailed("upload interrupted")
		}
		return Message{ID: "srv1", LocalID: p.LocalID, ThreadID: "t1", SenderID: "u1", ImageURL: "https://cdn/img1.jpg", Status: "sent"}, nil
	}
	p, ledger, _ := newTestPipeline(api, nil)

	img := &ImageUpload{Filename: "photo.jpg", ContentType: "image/jpeg", Size: 1024}
	optimistic, err := p.Send(context.Background(), "t1", "u2", "", img)
	assert.NoError(t, err)

	got, _ := ledger.GetByLocalID(optimistic.LocalID)
	assert.Equal(t, "failed", got.Status)

	// The retry carries the original upload and the same localId.
	fail = false
	assert.NoError(t, p.Retry(context.Background(), optimistic.LocalID, "u2"))

	assert.Equal(t, 2, imageCalls)
	assert.Zero(t, textCalls, "an image retry never degrades to a text send")
	assert.Equal(t, api.sendCalls[0].LocalID, api.sendCalls[1].LocalID)
	assert.Same(t, img, api.sendCalls[1].Image)

	got, _ = ledger.GetByLocalID(optimistic.LocalID)
	assert.Equal(t, "sent", got.Status)
	assert.Equal(t, "https://cdn/img1.jpg", got.ImageURL)
	assert.Len(t, ledger.Messages("t1"), 1)
}

func TestRetry_OnlyFailedMessages(t *testing.T) {
	api := &fakeAPI{}
	api.sendTextFn = func(ctx context.Context, p SendPayload) (Message, error) {
		return Message{ID: "srv1", LocalID: p.LocalID, ThreadID: "t1", SenderID: "u1", Status: "sent"}, nil
	}
	p, _, _ := newTestPipeline(api, nil)

	optimistic, _ := p.Send(context.Background(), "t1", "u2", "ok", nil)
	err := p.Retry(context.Background(), optimistic.LocalID, "u2")
	assert.Error(t, err, "a delivered message cannot be retried")
}

func TestApplyStatus_LatticeIsForwardOnly(t *testing.T) {
	ledger := NewLedger()
	now := time.Now()
	ledger.PrependPage("t1", []Message{serverMessage("m1", "t1", "u1", "a", now)})

	ledger.ApplyStatus(MessageStatusEvent{MessageID: "m1", Status: "delivered"})
	got, _ := ledger.Get("m1")
	assert.Equal(t, "delivered", got.Status)

	// Regression to an earlier state is a no-op.
	ledger.ApplyStatus(MessageStatusEvent{MessageID: "m1", Status: "sent"})
	got, _ = ledger.Get("m1")
	assert.Equal(t, "delivered", got.Status)

	ledger.ApplyStatus(MessageStatusEvent{MessageID: "m1", Status: "read"})
	got, _ = ledger.Get("m1")
	assert.Equal(t, "read", got.Status)

	// Terminal state: further events are no-ops.
	ledger.ApplyStatus(MessageStatusEvent{MessageID: "m1", Status: "delivered"})
	got, _ = ledger.Get("m1")
	assert.Equal(t, "read", got.Status)
}

func TestApplyStatus_UnknownIDIsNoOp(t *testing.T) {
	ledger := NewLedger()
	assert.NotPanics(t, func() {
		ledger.ApplyStatus(MessageStatusEvent{MessageID: "ghost", Status: "read"})
	})
}

func TestApplyDeleted_KeepsPositionAndTimestamp(t *testing.T) {
	ledger := NewLedger()
	base := time.Now()
	ledger.PrependPage("t1", []Message{
		serverMessage("m3", "t1", "u1", "trois", base.Add(2*time.Second)),
		serverMessage("m2", "t1", "u2", "deux", base.Add(time.Second)),
		serverMessage("m1", "t1", "u1", "un", base),
	})

	ledger.ApplyDeleted(MessageDeletedEvent{MessageID: "m2", ThreadID: "t1"})

	msgs := ledger.Messages("t1")
	assert.Len(t, msgs, 3)
	assert.Equal(t, "m2", msgs[1].ID, "deleted message keeps its slot")
	assert.True(t, msgs[1].IsDeleted)
	assert.Empty(t, msgs[1].Text)
	assert.Equal(t, base.Add(time.Second).Unix(), msgs[1].CreatedAt.Unix())
}

func TestPrependPage_SkipsKnownIDs(t *testing.T) {
	ledger := NewLedger()
	base := time.Now()
	first := []Message{
		serverMessage("m2", "t1", "u1", "b", base.Add(time.Second)),
		serverMessage("m1", "t1", "u2", "a", base),
	}
	assert.Equal(t, 2, ledger.PrependPage("t1", first))

	// An overlapping page (cursor race) must not duplicate entries.
	overlap := []Message{
		serverMessage("m1", "t1", "u2", "a", base),
		serverMessage("m0", "t1", "u2", "z", base.Add(-time.Second)),
	}
	assert.Equal(t, 1, ledger.PrependPage("t1", overlap))
	msgs := ledger.Messages("t1")
	assert.Len(t, msgs, 3)
	assert.Equal(t, "m0", msgs[0].ID)
	assert.Equal(t, "m2", msgs[2].ID)
}
