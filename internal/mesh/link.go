/*
Package mesh implements the client side of the peer-mesh coordination subsystem.

This file defines the PeerLink: one direct link toward a remote identity,
driven through the offer/answer/candidate handshake and carrying document
deltas once connected. The production implementation rides a pion WebRTC data
channel; the Link interface exists so the manager's policy is testable with
fakes.
*/
package mesh

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"meshpad/internal/pkg/logx"
)

// Role records which side of the handshake this link plays. The member that
// observes a peer-joined event initiates; the newcomer only responds.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// String implements fmt.Stringer for log output.
func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// LinkState is the lifecycle phase of a peer link.
type LinkState int

const (
	LinkNew LinkState = iota
	LinkOffering
	LinkAnswering
	LinkConnected
	LinkClosed
)

// String implements fmt.Stringer for log output.
func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "new"
	case LinkOffering:
		return "offering"
	case LinkAnswering:
		return "answering"
	case LinkConnected:
		return "connected"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// connectTimeout bounds how long a link may sit in the handshake before it is
// torn down. Without it a lost answer would leak the PeerConnection forever.
const connectTimeout = 30 * time.Second

// LinkEvents are the callbacks a link raises toward its manager.
type LinkEvents struct {
	// Connected fires once when the data channel opens.
	Connected func(l Link)

	// Data fires for every payload received from the remote peer.
	Data func(l Link, data []byte)

	// Closed fires once when the link dies for any reason.
	Closed func(l Link)
}

// Link is one direct peer link as the manager sees it.
type Link interface {
	// Remote is the identity this link points at.
	Remote() string

	// Role reports which side of the handshake this link plays.
	Role() Role

	// State reports the current lifecycle phase.
	State() LinkState

	// Start begins the handshake. For an initiator it produces and sends the
	// offer; responders do nothing until an offer arrives via HandleSignal.
	Start() error

	// HandleSignal feeds a relayed offer, answer, or ice-candidate into the
	// handshake machinery.
	HandleSignal(env Envelope) error

	// Send transmits a payload over the connected link.
	Send(data []byte) error

	// Close tears the link down. Idempotent.
	Close() error
}

// LinkFactory builds a link toward remote playing the given role, sending
// handshake messages through out and reporting lifecycle through events.
type LinkFactory func(remote string, role Role, out SignalSender, events LinkEvents) (Link, error)

// WebRTCLinkFactory returns a LinkFactory producing pion-backed links with
// the given ICE configuration. Each link owns one PeerConnection and a single
// ordered, reliable data channel labelled "doc"; ICE candidates trickle
// through the relay as they are gathered.
func WebRTCLinkFactory(config webrtc.Configuration) LinkFactory {
	return func(remote string, role Role, out SignalSender, events LinkEvents) (Link, error) {
		pc, err := webrtc.NewPeerConnection(config)
		if err != nil {
			return nil, fmt.Errorf("creating PeerConnection for %s: %w", remote, err)
		}

		l := &webrtcLink{
			remote: remote,
			role:   role,
			out:    out,
			events: events,
			pc:     pc,
			state:  LinkNew,
			logger: logx.Logger().With().
				Str("component", "peerlink").
				Str("remote", remote).
				Stringer("role", role).
				Logger(),
		}

		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil {
				return // end of gathering
			}
			candidate := c.ToJSON()
			if err := out.Send(Envelope{Type: TypeICECandidate, To: remote, Candidate: &candidate}); err != nil {
				l.logger.Warn().Err(err).Msg("Failed to relay ICE candidate.")
			}
		})

		pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			switch state {
			case webrtc.PeerConnectionStateFailed,
				webrtc.PeerConnectionStateDisconnected,
				webrtc.PeerConnectionStateClosed:
				l.logger.Info().Stringer("pc_state", state).Msg("Peer connection lost.")
				l.Close()
			}
		})

		if role == RoleResponder {
			pc.OnDataChannel(func(dc *webrtc.DataChannel) {
				l.adoptChannel(dc)
			})
		}

		// The handshake either completes or the link is reaped; there is no
		// limbo state for a peer whose answer never arrives.
		l.connectTimer = time.AfterFunc(connectTimeout, func() {
			if l.State() != LinkConnected {
				l.logger.Warn().Msg("Handshake timed out. Closing link.")
				l.Close()
			}
		})

		return l, nil
	}
}

// webrtcLink is the pion-backed Link implementation.
type webrtcLink struct {
	remote string
	role   Role
	out    SignalSender
	events LinkEvents

	mu    sync.Mutex
	state LinkState
	pc    *webrtc.PeerConnection
	dc    *webrtc.DataChannel

	// pending buffers remote candidates that arrive before the remote
	// description is set; pion rejects them otherwise.
	pending   []webrtc.ICECandidateInit
	remoteSet bool

	connectTimer *time.Timer
	closeOnce    sync.Once

	logger zerolog.Logger
}

func (l *webrtcLink) Remote() string { return l.remote }
func (l *webrtcLink) Role() Role     { return l.role }

func (l *webrtcLink) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start produces the offer on an initiator link. Responder links wait for the
// inbound offer instead.
func (l *webrtcLink) Start() error {
	if l.role != RoleInitiator {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dc, err := l.pc.CreateDataChannel("doc", nil)
	if err != nil {
		return fmt.Errorf("creating data channel to %s: %w", l.remote, err)
	}
	l.wireChannelLocked(dc)

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating offer for %s: %w", l.remote, err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local description for %s: %w", l.remote, err)
	}

	l.state = LinkOffering

	return l.out.Send(Envelope{Type: TypeOffer, To: l.remote, SDP: offer.SDP})
}

// HandleSignal routes a relayed handshake message into the PeerConnection.
func (l *webrtcLink) HandleSignal(env Envelope) error {
	switch env.Type {
	case TypeOffer:
		return l.handleOffer(env.SDP)
	case TypeAnswer:
		return l.handleAnswer(env.SDP)
	case TypeICECandidate:
		return l.handleCandidate(env.Candidate)
	}
	return fmt.Errorf("unexpected signal type %q for link to %s", env.Type, l.remote)
}

func (l *webrtcLink) handleOffer(sdp string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.role != RoleResponder {
		return fmt.Errorf("initiator link to %s received an offer", l.remote)
	}

	if err := l.setRemoteLocked(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("creating answer for %s: %w", l.remote, err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("setting local description for %s: %w", l.remote, err)
	}

	l.state = LinkAnswering

	return l.out.Send(Envelope{Type: TypeAnswer, To: l.remote, SDP: answer.SDP})
}

func (l *webrtcLink) handleAnswer(sdp string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.role != RoleInitiator {
		return fmt.Errorf("responder link to %s received an answer", l.remote)
	}

	return l.setRemoteLocked(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (l *webrtcLink) handleCandidate(candidate *webrtc.ICECandidateInit) error {
	if candidate == nil {
		return fmt.Errorf("ice-candidate from %s carried no candidate", l.remote)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.remoteSet {
		l.pending = append(l.pending, *candidate)
		return nil
	}

	return l.pc.AddICECandidate(*candidate)
}

// setRemoteLocked installs the remote description and flushes any candidates
// buffered before it arrived. Caller holds l.mu.
func (l *webrtcLink) setRemoteLocked(desc webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("setting remote description for %s: %w", l.remote, err)
	}

	l.remoteSet = true

	for _, candidate := range l.pending {
		if err := l.pc.AddICECandidate(candidate); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to apply buffered ICE candidate.")
		}
	}
	l.pending = nil

	return nil
}

// adoptChannel wires the data channel opened by the remote initiator.
func (l *webrtcLink) adoptChannel(dc *webrtc.DataChannel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wireChannelLocked(dc)
}

// wireChannelLocked installs the data channel callbacks. Caller holds l.mu.
func (l *webrtcLink) wireChannelLocked(dc *webrtc.DataChannel) {
	l.dc = dc

	dc.OnOpen(func() {
		l.mu.Lock()
		l.state = LinkConnected
		l.mu.Unlock()

		if l.connectTimer != nil {
			l.connectTimer.Stop()
		}

		l.logger.Info().Msg("Peer link connected.")
		if l.events.Connected != nil {
			l.events.Connected(l)
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if l.events.Data != nil {
			l.events.Data(l, msg.Data)
		}
	})

	dc.OnClose(func() {
		l.Close()
	})
}

// Send transmits data over the open data channel.
func (l *webrtcLink) Send(data []byte) error {
	l.mu.Lock()
	dc := l.dc
	state := l.state
	l.mu.Unlock()

	if state != LinkConnected || dc == nil {
		return fmt.Errorf("link to %s is %s, not connected", l.remote, state)
	}

	return dc.Send(data)
}

// Close tears the link down and reports it closed exactly once.
func (l *webrtcLink) Close() error {
	var err error

	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.state = LinkClosed
		l.mu.Unlock()

		if l.connectTimer != nil {
			l.connectTimer.Stop()
		}

		err = l.pc.Close()

		l.logger.Info().Msg("Peer link closed.")
		if l.events.Closed != nil {
			l.events.Closed(l)
		}
	})

	return err
}
