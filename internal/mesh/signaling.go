/*
Package mesh implements the client side of the peer-mesh coordination subsystem.

This file defines the SignalClient, the WebSocket connection to the relay. It
serializes outbound envelopes and runs the inbound read loop.
*/
package mesh

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"meshpad/internal/pkg/logx"
)

// SignalClient is a connection to the signaling relay for one room.
type SignalClient struct {
	conn *websocket.Conn

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	logger zerolog.Logger
}

// compile-time interface check
var _ SignalSender = (*SignalClient)(nil)

// DialRoom connects to the relay at serverURL (e.g. "ws://localhost:8080"),
// joining roomID with the given bearer token. A refusal by the server
// surfaces as a close error carrying the policy reason.
func DialRoom(ctx context.Context, serverURL, roomID, token string) (*SignalClient, error) {
	endpoint := fmt.Sprintf("%s/room/%s?token=%s",
		strings.TrimRight(serverURL, "/"),
		url.PathEscape(roomID),
		url.QueryEscape(token),
	)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing signaling relay: %w", err)
	}

	return &SignalClient{
		conn:   conn,
		logger: logx.Logger().With().Str("component", "signaling").Str("room_id", roomID).Logger(),
	}, nil
}

// Send writes one envelope to the relay.
func (c *SignalClient) Send(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// Run reads envelopes until the connection closes, handing each to handler.
// It returns the read error that ended the loop; a server policy close is
// returned as a *websocket.CloseError whose Text carries the reason.
func (c *SignalClient) Run(handler func(env Envelope)) error {
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return err
		}

		handler(env)
	}
}

// Close closes the signaling connection with a normal-closure frame.
func (c *SignalClient) Close() error {
	c.writeMu.Lock()
	frame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, frame); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to write close frame.")
	}
	c.writeMu.Unlock()

	return c.conn.Close()
}
