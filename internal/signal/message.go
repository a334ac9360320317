/*
Package signal contains the server side of the signaling subsystem: the room
registry, the per-connection WebSocket pumps, and the session state machine
that authenticates connections and relays handshake messages between peers.
*/
package signal

import "encoding/json"

// Message types understood by the relay. The server originates welcome,
// peer-joined, and peer-left; the handshake types originate at clients and are
// only ever relayed, never interpreted.
const (
	TypeWelcome      = "welcome"
	TypePeerJoined   = "peer-joined"
	TypePeerLeft     = "peer-left"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeSignal       = "signal"
)

// Welcome is sent to a connection immediately after it joins a room.
// PeersInRoom is the member count at the moment of joining, excluding the
// new member itself.
type Welcome struct {
	Type        string `json:"type"`
	Email       string `json:"email"`
	RoomID      string `json:"roomId"`
	PeersInRoom int    `json:"peersInRoom"`
}

// PeerEvent announces a membership change (peer-joined or peer-left) to the
// other members of a room.
type PeerEvent struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}

// relayable reports whether inbound messages of this type are forwarded to
// peers. Anything else a client sends is logged and dropped.
func relayable(msgType string) bool {
	switch msgType {
	case TypeOffer, TypeAnswer, TypeICECandidate, TypeSignal:
		return true
	}
	return false
}

// envelope is the parsed form of an inbound relay message. Fields holds every
// JSON member untouched, so type-specific payloads (sdp, candidate, ...) pass
// through the relay opaquely; Type and To are decoded for classification.
type envelope struct {
	Type   string
	To     string
	Fields map[string]json.RawMessage
}

// parseEnvelope decodes raw into an envelope. It fails on malformed JSON or a
// missing/non-string type member.
func parseEnvelope(raw []byte) (*envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	env := &envelope{Fields: fields}

	if err := json.Unmarshal(fields["type"], &env.Type); err != nil {
		return nil, err
	}

	if toRaw, ok := fields["to"]; ok {
		if err := json.Unmarshal(toRaw, &env.To); err != nil {
			return nil, err
		}
	}

	return env, nil
}

// stampFrom overwrites the from member with the server's record of the
// sender's verified identity. Client-supplied from values never survive relay.
func (e *envelope) stampFrom(email string) {
	from, _ := json.Marshal(email)
	e.Fields["from"] = from
}

// encode serializes the envelope for delivery.
func (e *envelope) encode() ([]byte, error) {
	return json.Marshal(e.Fields)
}

// encodeJSON marshals a server-originated message for delivery.
func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
