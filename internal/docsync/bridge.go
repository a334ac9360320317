/*
Package docsync forwards local document deltas to peers and applies inbound
deltas locally.

This file defines the Bridge, the glue between the document engine and the
peer mesh. Its one hard invariant is no-echo: a delta applied because it
arrived from a peer must never itself trigger the send-to-all-peers path, or
the mesh would relay the same delta forever.
*/
package docsync

import (
	"github.com/rs/zerolog"

	"meshpad/internal/pkg/logx"
)

// PeerNetwork is the mesh as the bridge consumes it.
type PeerNetwork interface {
	// Broadcast sends data over every connected peer link.
	Broadcast(data []byte)

	// SendTo sends data over the link to one remote identity.
	SendTo(remote string, data []byte) error

	// SetPeerHandlers installs the inbound-data and link-connected callbacks.
	SetPeerHandlers(onData func(remote string, data []byte), onConnected func(remote string, initiator bool))
}

// Bridge connects a document engine to the peer mesh.
type Bridge struct {
	doc    Engine
	peers  PeerNetwork
	logger zerolog.Logger
}

// NewBridge wires engine and mesh together and returns the bridge.
//
// Wiring is symmetric: engine updates flow out to the mesh, peer data flows
// into the engine. The remote-origin flag breaks the cycle — only updates
// with remote == false are broadcast.
func NewBridge(doc Engine, peers PeerNetwork) *Bridge {
	b := &Bridge{
		doc:    doc,
		peers:  peers,
		logger: logx.Logger().With().Str("component", "bridge").Logger(),
	}

	doc.OnUpdate(b.handleDocUpdate)
	peers.SetPeerHandlers(b.handlePeerData, b.handlePeerConnected)

	return b
}

// handleDocUpdate fans a locally authored delta out to every connected peer.
// Deltas whose origin is remote are already everywhere they need to be; they
// must not re-enter the mesh.
func (b *Bridge) handleDocUpdate(delta []byte, remote bool) {
	if remote {
		return
	}

	b.peers.Broadcast(delta)
}

// handlePeerData applies a delta received from a peer, tagged with the
// remote-origin marker.
func (b *Bridge) handlePeerData(remote string, data []byte) {
	if err := b.doc.ApplyDelta(data, true); err != nil {
		b.logger.Warn().Err(err).Str("remote", remote).Msg("Failed to apply peer delta.")
	}
}

// handlePeerConnected bootstraps a newly connected peer. The initiator side
// sends its full document snapshot, so the newcomer converges immediately
// instead of waiting for organic edits.
func (b *Bridge) handlePeerConnected(remote string, initiator bool) {
	if !initiator {
		return
	}

	snapshot, err := b.doc.Snapshot()
	if err != nil {
		b.logger.Error().Err(err).Str("remote", remote).Msg("Failed to encode snapshot.")
		return
	}

	if err := b.peers.SendTo(remote, snapshot); err != nil {
		b.logger.Warn().Err(err).Str("remote", remote).Msg("Failed to send snapshot.")
	}
}
