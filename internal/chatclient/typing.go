package chatclient

import (
	"sync"
	"time"
)

const (
	// typingQuietPeriod is how long after the last keystroke the automatic
	// stop is emitted, and how long a received indicator survives without a
	// follow-up before it clears itself.
	typingQuietPeriod = 3 * time.Second
	// typingThrottle is the minimum interval between two isTyping=true
	// emissions for the same thread.
	typingThrottle = 3 * time.Second
)

// TypingCoordinator owns both directions of the ephemeral typing signal as
// an explicit timer-owning state machine per thread: idle, or typing with an
// expiry. Nothing here is persisted; last write wins and everything expires.
type TypingCoordinator struct {
	clock Clock

	// emit sends the outbound typing event, normally via Session.Emit.
	emit func(threadID string, isTyping bool)
	// onChange notifies the UI of a peer's indicator flipping.
	onChange func(threadID, userID string, active bool)

	mu  sync.Mutex
	out map[string]*outboundTyping           // threadID -> local typing state
	in  map[string]map[string]*inboundTyping // threadID -> userID -> indicator
}

type outboundTyping struct {
	lastTrue   time.Time
	quietTimer Timer
}

type inboundTyping struct {
	expiry Timer
}

// NewTypingCoordinator wires the coordinator. Both callbacks may be nil.
func NewTypingCoordinator(clock Clock, emit func(threadID string, isTyping bool), onChange func(threadID, userID string, active bool)) *TypingCoordinator {
	if clock == nil {
		clock = SystemClock()
	}
	return &TypingCoordinator{
		clock:    clock,
		emit:     emit,
		onChange: onChange,
		out:      make(map[string]*outboundTyping),
		in:       make(map[string]map[string]*inboundTyping),
	}
}

// NotifyTyping is called on every keystroke. It emits isTyping=true at most
// once per throttle window and (re)schedules the automatic stop after the
// quiet period, so the wire sees rate-limited signals, not keystrokes.
func (t *TypingCoordinator) NotifyTyping(threadID string) {
	t.mu.Lock()
	state, ok := t.out[threadID]
	if !ok {
		state = &outboundTyping{}
		t.out[threadID] = state
	}

	now := t.clock.Now()
	shouldEmit := state.lastTrue.IsZero() || now.Sub(state.lastTrue) >= typingThrottle
	if shouldEmit {
		state.lastTrue = now
	}

	// Every keystroke pushes the quiet deadline out.
	if state.quietTimer != nil {
		state.quietTimer.Stop()
	}
	state.quietTimer = t.clock.AfterFunc(typingQuietPeriod, func() {
		t.stopTyping(threadID)
	})
	t.mu.Unlock()

	if shouldEmit && t.emit != nil {
		t.emit(threadID, true)
	}
}

// StopTyping emits an explicit stop, e.g. when the composer is cleared or
// the message is sent.
func (t *TypingCoordinator) StopTyping(threadID string) {
	t.mu.Lock()
	if state, ok := t.out[threadID]; ok && state.quietTimer != nil {
		state.quietTimer.Stop()
	}
	t.mu.Unlock()
	t.stopTyping(threadID)
}

func (t *TypingCoordinator) stopTyping(threadID string) {
	t.mu.Lock()
	state, ok := t.out[threadID]
	if !ok || state.lastTrue.IsZero() {
		t.mu.Unlock()
		return
	}
	state.lastTrue = time.Time{}
	t.mu.Unlock()

	if t.emit != nil {
		t.emit(threadID, false)
	}
}

// ApplyTyping folds an inbound typing event into the indicator state, keyed
// by (threadId, userId). A true schedules its own local expiry so a lost
// stop event can never leave the indicator stuck.
func (t *TypingCoordinator) ApplyTyping(ev TypingEvent) {
	t.mu.Lock()
	byUser, ok := t.in[ev.ThreadID]
	if !ok {
		byUser = make(map[string]*inboundTyping)
		t.in[ev.ThreadID] = byUser
	}

	existing, active := byUser[ev.UserID]
	if active && existing.expiry != nil {
		existing.expiry.Stop()
	}

	if !ev.IsTyping {
		delete(byUser, ev.UserID)
		t.mu.Unlock()
		if active && t.onChange != nil {
			t.onChange(ev.ThreadID, ev.UserID, false)
		}
		return
	}

	ind := &inboundTyping{}
	ind.expiry = t.clock.AfterFunc(typingQuietPeriod, func() {
		t.expireIndicator(ev.ThreadID, ev.UserID)
	})
	byUser[ev.UserID] = ind
	t.mu.Unlock()

	if !active && t.onChange != nil {
		t.onChange(ev.ThreadID, ev.UserID, true)
	}
}

func (t *TypingCoordinator) expireIndicator(threadID, userID string) {
	t.mu.Lock()
	byUser, ok := t.in[threadID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if _, active := byUser[userID]; !active {
		t.mu.Unlock()
		return
	}
	delete(byUser, userID)
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(threadID, userID, false)
	}
}

// IsTyping reports whether the peer's indicator is currently visible.
func (t *TypingCoordinator) IsTyping(threadID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	byUser, ok := t.in[threadID]
	if !ok {
		return false
	}
	_, active := byUser[userID]
	return active
}
