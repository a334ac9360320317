/*
Package docsync forwards local document deltas to connected peers and applies
inbound deltas to the local document, without ever echoing a received delta
back into the mesh.

The document itself is an external CRDT engine consumed through the Engine
interface: anything with commutative, idempotent, associative delta merging
works. The package ships OpLog, a deliberately small engine used by the demo
client and the tests.
*/
package docsync

// Engine is the document replication engine as the bridge consumes it.
//
// The remote flag is the origin marker: ApplyDelta(delta, true) records that
// the delta arrived from a peer, and the engine must pass the same flag back
// through OnUpdate so the bridge can tell peer-applied deltas from locally
// authored ones. Implementations must merge deltas commutatively and
// idempotently regardless of delivery order.
type Engine interface {
	// ApplyDelta merges an encoded delta into the document. remote marks
	// deltas that arrived from a peer rather than from a local edit.
	ApplyDelta(delta []byte, remote bool) error

	// OnUpdate registers a callback fired for every delta merged into the
	// document, local edits included, carrying the same origin flag that
	// ApplyDelta received.
	OnUpdate(fn func(delta []byte, remote bool))

	// Snapshot encodes the full current document state as one delta, used to
	// bootstrap newly connected peers.
	Snapshot() ([]byte, error)
}
