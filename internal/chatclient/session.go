package chatclient

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/imedhamdi/mapmarket-backend/pkg/errors"
)

// SessionState is the lifecycle of the one shared connection.
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateConnected    SessionState = "connected"
	// StateOffline means reconnection attempts are exhausted. Recoverable:
	// a fresh Connect call starts over.
	StateOffline SessionState = "offline"
	// StateAuthError is fatal to the session; the user must log in again.
	StateAuthError SessionState = "authError"
)

const (
	defaultMaxReconnects = 5
	defaultBaseBackoff   = 500 * time.Millisecond
)

// Session owns the persistent bidirectional connection. One instance per
// logged-in user; all open thread views multiplex over it. The transport is
// injected so tests can drive the lifecycle with a fake.
type Session struct {
	transport Transport
	clock     Clock

	mu            sync.Mutex
	state         SessionState
	token         string
	userID        string
	attempts      int
	maxReconnects int
	baseBackoff   time.Duration
	retryTimer    Timer
	manualClose   bool

	// OnState receives every lifecycle transition.
	OnState func(SessionState)
	// OnConnected fires after every successful (re)connection. Events missed
	// while disconnected are not replayed, so the wiring uses this to run a
	// full directory refresh.
	OnConnected func()
}

// NewSession creates a disconnected session around a transport.
func NewSession(transport Transport, clock Clock) *Session {
	if clock == nil {
		clock = SystemClock()
	}
	return &Session{
		transport:     transport,
		clock:         clock,
		state:         StateDisconnected,
		maxReconnects: defaultMaxReconnects,
		baseBackoff:   defaultBaseBackoff,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st SessionState) {
	s.state = st
	if s.OnState != nil {
		s.OnState(st)
	}
}

// Connect establishes the connection and joins the user-scoped room. An
// authentication rejection fails closed: state becomes StateAuthError and
// nothing else is touched. Transient failures enter the reconnect loop.
func (s *Session) Connect(ctx context.Context, token, userID string) error {
	s.mu.Lock()
	s.token = token
	s.userID = userID
	s.manualClose = false
	s.attempts = 0
	s.setState(StateConnecting)
	s.mu.Unlock()

	return s.tryConnect(ctx)
}

func (s *Session) tryConnect(ctx context.Context) error {
	s.mu.Lock()
	token, userID := s.token, s.userID
	s.mu.Unlock()

	err := s.transport.Connect(ctx, token, userID)

	s.mu.Lock()
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindAuthRejected) {
			s.setState(StateAuthError)
			s.mu.Unlock()
			return err
		}
		s.mu.Unlock()
		s.scheduleRetry(ctx)
		return err
	}

	s.attempts = 0
	s.setState(StateConnected)
	onConnected := s.OnConnected
	s.mu.Unlock()

	if onConnected != nil {
		onConnected()
	}
	return nil
}

// HandleDisconnect is invoked by the transport binding when the connection
// drops. Manual disconnects stay disconnected; anything else reconnects
// with increasing backoff until attempts run out.
func (s *Session) HandleDisconnect() {
	s.mu.Lock()
	if s.manualClose {
		s.setState(StateDisconnected)
		s.mu.Unlock()
		return
	}
	s.setState(StateConnecting)
	s.mu.Unlock()
	s.scheduleRetry(context.Background())
}

func (s *Session) scheduleRetry(ctx context.Context) {
	s.mu.Lock()
	if s.manualClose {
		s.mu.Unlock()
		return
	}
	if s.attempts >= s.maxReconnects {
		// Exhausted: surface a recoverable offline state, not a fatal error.
		s.setState(StateOffline)
		s.mu.Unlock()
		return
	}
	s.attempts++
	backoff := s.baseBackoff << uint(s.attempts-1)
	s.retryTimer = s.clock.AfterFunc(backoff, func() {
		s.tryConnect(ctx)
	})
	s.mu.Unlock()
}

// Disconnect is idempotent.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.manualClose = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.setState(StateDisconnected)
	s.mu.Unlock()

	return s.transport.Disconnect()
}

// Emit forwards an outbound event over the live channel.
func (s *Session) Emit(event string, payload map[string]interface{}) error {
	s.mu.Lock()
	connected := s.state == StateConnected
	s.mu.Unlock()
	if !connected {
		return apperrors.TransientNetwork("not connected")
	}
	return s.transport.Emit(event, payload)
}
