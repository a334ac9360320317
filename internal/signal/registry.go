/*
Package signal contains the server side of the signaling subsystem.

This file defines the Registry, the authoritative mapping of room identifier to
the set of authenticated connections currently in that room. Rooms exist only
while they have members: the first join creates a room, the last leave deletes
it.
*/
package signal

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meshpad/internal/auth"
	"meshpad/internal/pkg/logx"
)

// Transport is the outbound half of one client connection as the registry and
// session see it. The WebSocket implementation lives in conn.go; tests
// substitute fakes.
type Transport interface {
	// Enqueue queues a payload for delivery. It must not block; it reports
	// false when the transport is closed or its queue is full, in which case
	// the payload is dropped.
	Enqueue(payload []byte) bool

	// Open reports whether the transport can still deliver.
	Open() bool

	// ClosePolicy terminates the connection with a policy-violation close
	// carrying the given reason. Safe to call more than once.
	ClosePolicy(reason string)
}

// Connection is one authenticated member of a room.
// It belongs to exactly one room for its whole lifetime.
type Connection struct {
	// ID is a server-generated identifier used only for logging.
	ID string

	// Identity is the verified identity; Identity.Email addresses this
	// connection within its room.
	Identity auth.Identity

	// RoomID names the room this connection belongs to.
	RoomID string

	transport Transport
}

// NewConnection binds a verified identity and a room to a transport.
func NewConnection(identity auth.Identity, roomID string, transport Transport) *Connection {
	return &Connection{
		ID:        uuid.New().String(),
		Identity:  identity,
		RoomID:    roomID,
		transport: transport,
	}
}

// Send queues a payload toward this connection, reporting whether it was
// accepted.
func (c *Connection) Send(payload []byte) bool {
	return c.transport.Enqueue(payload)
}

// Registry tracks room membership for the whole server.
//
// All operations serialize on one mutex, so joins, leaves, and broadcasts
// against any given room are observed in a single total order and the member
// count returned by Join is an atomic snapshot. Delivery itself is an enqueue
// onto per-connection buffered queues, so holding the lock across a broadcast
// never blocks on a slow client.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]map[*Connection]struct{}
	logger zerolog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[*Connection]struct{}),
		logger: logx.Logger().With().Str("component", "registry").Logger(),
	}
}

// Join adds conn to its room, creating the room if this is the first member.
// The welcome to conn and the peer-joined announcement to the other members
// are delivered in the same critical section as the membership change, so any
// two joins resolve to one total order: exactly one side of a pair ever
// observes the other as a newcomer, which is what keeps exactly one side the
// handshake initiator. Delivery is a non-blocking enqueue, so holding the
// lock across it never stalls on a slow client.
//
// It returns the number of members present before conn joined and, when the
// same identity was already connected in the room, the connection that was
// displaced. The caller is responsible for closing the displaced connection's
// transport.
func (r *Registry) Join(conn *Connection) (peers int, replaced *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[conn.RoomID]
	if !ok {
		members = make(map[*Connection]struct{})
		r.rooms[conn.RoomID] = members
	}

	for member := range members {
		if member.Identity.Email == conn.Identity.Email {
			delete(members, member)
			replaced = member
			break
		}
	}

	peers = len(members)
	members[conn] = struct{}{}

	welcome, err := encodeJSON(Welcome{
		Type:        TypeWelcome,
		Email:       conn.Identity.Email,
		RoomID:      conn.RoomID,
		PeersInRoom: peers,
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to encode welcome message.")
	} else {
		conn.Send(welcome)
	}

	joined, err := encodeJSON(PeerEvent{Type: TypePeerJoined, Email: conn.Identity.Email})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to encode peer-joined message.")
	} else {
		r.broadcastLocked(conn.RoomID, conn, joined)
	}

	r.logger.Info().
		Str("conn_id", conn.ID).
		Str("email", conn.Identity.Email).
		Str("room_id", conn.RoomID).
		Int("peers", peers).
		Msg("Connection joined room.")

	return peers, replaced
}

// Leave removes conn from its room, announces peer-left to the remaining
// members under the same lock, and deletes the room if it became empty.
// It is idempotent: removing a connection that already left (or was displaced
// by a replacement) is a no-op with no announcement, and the return value
// reports whether this call actually removed it.
func (r *Registry) Leave(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[conn.RoomID]
	if !ok {
		return false
	}

	if _, ok := members[conn]; !ok {
		return false
	}

	delete(members, conn)

	if len(members) == 0 {
		delete(r.rooms, conn.RoomID)
		r.logger.Info().Str("room_id", conn.RoomID).Msg("Last member left. Room removed.")
	} else {
		left, err := encodeJSON(PeerEvent{Type: TypePeerLeft, Email: conn.Identity.Email})
		if err != nil {
			r.logger.Error().Err(err).Msg("Failed to encode peer-left message.")
		} else {
			r.broadcastLocked(conn.RoomID, conn, left)
		}
	}

	r.logger.Info().
		Str("conn_id", conn.ID).
		Str("email", conn.Identity.Email).
		Str("room_id", conn.RoomID).
		Msg("Connection left room.")

	return true
}

// Broadcast delivers payload to every member of the room except excluding.
// Members whose transport is not open, or whose queue is full, are skipped
// silently.
func (r *Registry) Broadcast(roomID string, excluding *Connection, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(roomID, excluding, payload)
}

// broadcastLocked is Broadcast's body. Caller holds r.mu.
func (r *Registry) broadcastLocked(roomID string, excluding *Connection, payload []byte) {
	for member := range r.rooms[roomID] {
		if member == excluding {
			continue
		}
		if !member.transport.Open() {
			continue
		}
		if !member.Send(payload) {
			r.logger.Warn().
				Str("conn_id", member.ID).
				Str("room_id", roomID).
				Msg("Member queue full during broadcast. Message dropped for member.")
		}
	}
}

// FindByIdentity returns the connection addressed by email within the room,
// or nil when no such member exists.
func (r *Registry) FindByIdentity(roomID, email string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	for member := range r.rooms[roomID] {
		if member.Identity.Email == email {
			return member
		}
	}
	return nil
}

// RoomCount returns the number of rooms currently alive. Mostly useful for
// tests and the health endpoint.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Shutdown closes every connected transport. Used during graceful server
// shutdown; the per-connection close paths take care of membership cleanup.
func (r *Registry) Shutdown(reason string) {
	r.mu.Lock()
	var all []*Connection
	for _, members := range r.rooms {
		for member := range members {
			all = append(all, member)
		}
	}
	r.mu.Unlock()

	for _, conn := range all {
		conn.transport.ClosePolicy(reason)
	}
}
