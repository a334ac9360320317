/*
Package signal contains the server side of the signaling subsystem.

This file defines the Session, the per-connection protocol state machine:
Connecting -> Authenticating -> Joined -> Closed. A session authenticates the
bearer token, enters its room, and from then on classifies and routes inbound
messages until the connection closes.
*/
package signal

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"meshpad/internal/auth"
	"meshpad/internal/pkg/errs"
	"meshpad/internal/pkg/logx"
)

// ErrSessionOpen reports a second Open call on a session that already left
// the Connecting state.
var ErrSessionOpen = errors.New("session already opened")

// State is the lifecycle phase of one session.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateJoined
	StateClosed
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session drives one client connection through authentication, room
// membership, and message relay. All authentication failures are terminal:
// the connection is closed with a policy reason and the server offers no
// retry.
type Session struct {
	registry   *Registry
	verifier   auth.Verifier
	authorizer auth.Authorizer
	transport  Transport

	mu    sync.Mutex
	state State
	conn  *Connection

	logger zerolog.Logger
}

// NewSession creates a session in the Connecting state.
func NewSession(registry *Registry, verifier auth.Verifier, authorizer auth.Authorizer, transport Transport) *Session {
	return &Session{
		registry:   registry,
		verifier:   verifier,
		authorizer: authorizer,
		transport:  transport,
		state:      StateConnecting,
		logger:     logx.Logger().With().Str("component", "session").Logger(),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open advances the session from Connecting to Joined: it validates the room
// path and token, verifies the token, applies the authorization policy, and
// joins the room. The registry welcomes the new connection and announces it
// to the other members as part of the join itself, so no second joiner can
// slip in between the two. On any failure the transport is closed with the
// specific policy reason and the session ends in Closed; the returned error
// carries the same reason for logging.
func (s *Session) Open(ctx context.Context, roomID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return ErrSessionOpen
	}

	if roomID == "" {
		return s.refuse(errs.ErrInvalidPath)
	}

	s.state = StateAuthenticating

	if token == "" {
		return s.refuse(errs.ErrMissingToken)
	}

	claims, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Msg("Token verification failed.")
		return s.refuse(errs.ErrTokenInvalid)
	}

	identity := claims.Identity()

	if !identity.EmailVerified {
		return s.refuse(errs.ErrEmailNotVerified)
	}

	if !s.authorizer.Allow(identity) {
		return s.refuse(errs.ErrNotAuthorized)
	}

	s.conn = NewConnection(identity, roomID, s.transport)
	s.logger = s.logger.With().
		Str("conn_id", s.conn.ID).
		Str("email", identity.Email).
		Str("room_id", roomID).
		Logger()

	_, replaced := s.registry.Join(s.conn)
	if replaced != nil {
		replaced.transport.ClosePolicy(errs.Reason(errs.ErrSessionReplaced))
	}

	s.state = StateJoined
	return nil
}

// refuse closes the transport with the policy reason for code and moves the
// session to Closed. Caller holds s.mu.
func (s *Session) refuse(code int) error {
	refusal := errs.NewError(code)
	s.transport.ClosePolicy(refusal.Message)
	s.state = StateClosed
	return refusal
}

// HandleInbound classifies one message received while Joined and routes it.
// Handshake messages with a to field are relayed to the single matching
// member; a missing target drops the message without any error to the sender.
// Without a to field the message is broadcast to the room excluding the
// sender. In both cases from is stamped with the sender's verified identity.
// Malformed payloads and non-handshake types are logged and ignored; the
// connection stays open.
func (s *Session) HandleInbound(raw []byte) {
	s.mu.Lock()
	if s.state != StateJoined {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.mu.Unlock()

	env, err := parseEnvelope(raw)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Client sent malformed message. Ignored.")
		return
	}

	if !relayable(env.Type) {
		s.logger.Warn().Str("msg_type", env.Type).Msg("Client sent unsupported message type. Ignored.")
		return
	}

	env.stampFrom(conn.Identity.Email)

	payload, err := env.encode()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to re-encode relay message.")
		return
	}

	if env.To != "" {
		target := s.registry.FindByIdentity(conn.RoomID, env.To)
		if target == nil {
			s.logger.Debug().Str("to", env.To).Str("msg_type", env.Type).Msg("Relay target not in room. Message dropped.")
			return
		}
		target.Send(payload)
		return
	}

	s.registry.Broadcast(conn.RoomID, conn, payload)
}

// Close ends the session. For a Joined session it leaves the room; the
// registry announces peer-left to the remaining members unless this
// connection was already displaced by a replacement. Close is idempotent and
// safe from any state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}

	prev := s.state
	s.state = StateClosed

	if prev != StateJoined || s.conn == nil {
		return
	}

	s.registry.Leave(s.conn)
}
