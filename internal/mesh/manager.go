/*
Package mesh implements the client side of the peer-mesh coordination subsystem.

This file defines the Manager, which owns the set of peer links for the local
session and enforces the role-assignment invariant: the member that OBSERVES a
peer-joined event initiates toward the newcomer, and the newcomer only ever
responds to inbound offers. Join events reach every existing member exactly
once, so each unordered pair produces exactly one offer and one link.
*/
package mesh

import (
	"sync"

	"github.com/rs/zerolog"

	"meshpad/internal/pkg/logx"
)

// Manager coordinates the peer links of one local session.
type Manager struct {
	self    string
	signals SignalSender
	factory LinkFactory

	mu     sync.Mutex
	links  map[string]Link
	closed bool

	// peer handlers, installed by the replication bridge.
	onData      func(remote string, data []byte)
	onConnected func(remote string, initiator bool)

	logger zerolog.Logger
}

// NewManager creates a mesh manager for the local identity self.
func NewManager(self string, signals SignalSender, factory LinkFactory) *Manager {
	return &Manager{
		self:    self,
		signals: signals,
		factory: factory,
		links:   make(map[string]Link),
		logger:  logx.Logger().With().Str("component", "mesh").Str("self", self).Logger(),
	}
}

// SetPeerHandlers installs the callbacks fired when a link connects and when
// peer data arrives. Install before signaling traffic starts flowing.
func (m *Manager) SetPeerHandlers(onData func(remote string, data []byte), onConnected func(remote string, initiator bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onData = onData
	m.onConnected = onConnected
}

// HandleSignal dispatches one envelope from the signaling channel.
func (m *Manager) HandleSignal(env Envelope) {
	switch env.Type {
	case TypeWelcome:
		m.logger.Info().Str("room_id", env.RoomID).Int("peers_in_room", env.PeersInRoom).Msg("Joined room.")

	case TypePeerJoined:
		m.handlePeerJoined(env.Email)

	case TypePeerLeft:
		m.handlePeerLeft(env.Email)

	case TypeOffer:
		m.handleOffer(env)

	case TypeAnswer, TypeICECandidate:
		m.forwardToLink(env)

	case TypeSignal:
		// Room broadcasts carry nothing the mesh needs; document traffic
		// travels over the direct links.
		m.logger.Debug().Str("from", env.From).Msg("Ignoring room broadcast.")

	default:
		m.logger.Debug().Str("msg_type", env.Type).Msg("Ignoring signaling message.")
	}
}

// handlePeerJoined creates an initiator link toward the newcomer. This side
// observed the join, so this side offers; the newcomer never does.
func (m *Manager) handlePeerJoined(email string) {
	if email == m.self || email == "" {
		return
	}

	link, err := m.createLink(email, RoleInitiator)
	if err != nil {
		m.logger.Error().Err(err).Str("remote", email).Msg("Failed to create initiator link.")
		return
	}
	if link == nil {
		return // already linked
	}

	if err := link.Start(); err != nil {
		m.logger.Error().Err(err).Str("remote", email).Msg("Failed to start handshake.")
		link.Close()
	}
}

// handlePeerLeft closes and removes the link for a departed identity.
func (m *Manager) handlePeerLeft(email string) {
	m.mu.Lock()
	link, ok := m.links[email]
	m.mu.Unlock()

	if !ok {
		return
	}

	m.logger.Info().Str("remote", email).Msg("Peer left room. Closing link.")
	link.Close()
}

// handleOffer reacts to an inbound offer: a missing link means this side is
// the newcomer, so a responder link is created; answers and candidates never
// create links.
func (m *Manager) handleOffer(env Envelope) {
	if env.From == "" {
		m.logger.Warn().Msg("Offer without a sender. Ignored.")
		return
	}

	link, err := m.createLink(env.From, RoleResponder)
	if err != nil {
		m.logger.Error().Err(err).Str("remote", env.From).Msg("Failed to create responder link.")
		return
	}

	if link == nil {
		// An offer for an existing link: feed it into that link's handshake.
		m.mu.Lock()
		link = m.links[env.From]
		m.mu.Unlock()
		if link == nil {
			return
		}
	}

	if err := link.HandleSignal(env); err != nil {
		m.logger.Error().Err(err).Str("remote", env.From).Msg("Offer handling failed.")
	}
}

// forwardToLink routes an answer or candidate into the existing link's
// handshake. No link, no action: these types never create one.
func (m *Manager) forwardToLink(env Envelope) {
	if env.From == "" {
		return
	}

	m.mu.Lock()
	link, ok := m.links[env.From]
	m.mu.Unlock()

	if !ok {
		m.logger.Debug().Str("remote", env.From).Str("msg_type", env.Type).Msg("Signal for unknown link. Ignored.")
		return
	}

	if err := link.HandleSignal(env); err != nil {
		m.logger.Warn().Err(err).Str("remote", env.From).Str("msg_type", env.Type).Msg("Signal handling failed.")
	}
}

// createLink builds and registers a link toward remote. It returns (nil, nil)
// when a link for that identity already exists: at most one link per remote
// identity per session.
func (m *Manager) createLink(remote string, role Role) (Link, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil
	}
	if _, ok := m.links[remote]; ok {
		m.mu.Unlock()
		return nil, nil
	}
	m.mu.Unlock()

	events := LinkEvents{
		Connected: m.linkConnected,
		Data:      m.linkData,
		Closed:    m.linkClosed,
	}

	link, err := m.factory(remote, role, m.signals, events)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		link.Close()
		return nil, nil
	}
	if _, ok := m.links[remote]; ok {
		// Lost a race with another creation for the same remote.
		m.mu.Unlock()
		link.Close()
		return nil, nil
	}
	m.links[remote] = link
	m.mu.Unlock()

	m.logger.Info().Str("remote", remote).Stringer("role", role).Msg("Peer link created.")
	return link, nil
}

// linkConnected relays the connect event to the installed handler.
func (m *Manager) linkConnected(l Link) {
	m.mu.Lock()
	handler := m.onConnected
	m.mu.Unlock()

	if handler != nil {
		handler(l.Remote(), l.Role() == RoleInitiator)
	}
}

// linkData relays inbound peer data to the installed handler.
func (m *Manager) linkData(l Link, data []byte) {
	m.mu.Lock()
	handler := m.onData
	m.mu.Unlock()

	if handler != nil {
		handler(l.Remote(), data)
	}
}

// linkClosed drops the link from the set. No reconnection is attempted; the
// pair re-links only through a fresh peer-joined/offer cycle.
func (m *Manager) linkClosed(l Link) {
	m.mu.Lock()
	if current, ok := m.links[l.Remote()]; ok && current == l {
		delete(m.links, l.Remote())
	}
	m.mu.Unlock()
}

// Broadcast sends data over every connected link. The link set is snapshotted
// first, so connect and disconnect events during the send never tear the
// iteration.
func (m *Manager) Broadcast(data []byte) {
	for _, link := range m.snapshot() {
		if link.State() != LinkConnected {
			continue
		}
		if err := link.Send(data); err != nil {
			m.logger.Warn().Err(err).Str("remote", link.Remote()).Msg("Broadcast send failed.")
		}
	}
}

// SendTo sends data over the link to one remote identity, if connected.
func (m *Manager) SendTo(remote string, data []byte) error {
	m.mu.Lock()
	link, ok := m.links[remote]
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return link.Send(data)
}

// LinkCount returns the number of live links.
func (m *Manager) LinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// Close tears down every link. The manager accepts no new links afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	for _, link := range m.snapshot() {
		link.Close()
	}
}

// snapshot copies the current link set under the lock.
func (m *Manager) snapshot() []Link {
	m.mu.Lock()
	defer m.mu.Unlock()

	links := make([]Link, 0, len(m.links))
	for _, link := range m.links {
		links = append(links, link)
	}
	return links
}
