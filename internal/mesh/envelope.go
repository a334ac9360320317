/*
Package mesh implements the client side of the peer-mesh coordination
subsystem: the signaling channel to the relay, the per-peer link lifecycle,
and the manager that turns room membership events into a fully-connected mesh
of direct peer links.
*/
package mesh

import "github.com/pion/webrtc/v4"

// Message types exchanged with the relay. They mirror the server's vocabulary.
const (
	TypeWelcome      = "welcome"
	TypePeerJoined   = "peer-joined"
	TypePeerLeft     = "peer-left"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"

	// TypeSignal is an application-level room broadcast relayed verbatim by
	// the server. The mesh never originates or consumes these.
	TypeSignal = "signal"
)

// Envelope is the JSON message envelope used on the signaling channel.
// Only the fields relevant to a given type are populated; to and from address
// individual identities within the room, and from is always stamped by the
// server.
type Envelope struct {
	Type string `json:"type"`
	To   string `json:"to,omitempty"`
	From string `json:"from,omitempty"`

	// welcome / peer-joined / peer-left
	Email       string `json:"email,omitempty"`
	RoomID      string `json:"roomId,omitempty"`
	PeersInRoom int    `json:"peersInRoom,omitempty"`

	// offer / answer
	SDP string `json:"sdp,omitempty"`

	// ice-candidate
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// SignalSender is the outbound half of the signaling channel. The manager and
// links use it to address handshake messages to specific peers through the
// relay.
type SignalSender interface {
	Send(env Envelope) error
}
