/*
Package signal contains the server side of the signaling subsystem.

This file defines Conn, the WebSocket-backed Transport. It owns the read and
write pumps for one connection, the ping/pong keepalive, and the buffered
outbound queue.
*/
package signal

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"meshpad/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of an inbound message. SDP offers from
	// candidate-rich hosts run to tens of kilobytes.
	maxMessageSize = 64 * 1024

	// capacity of the outbound queue before broadcasts start dropping.
	sendQueueSize = 256
)

// Conn adapts a gorilla WebSocket connection to the Transport interface.
type Conn struct {
	ws *websocket.Conn

	// send queues outbound payloads for the write pump.
	send chan []byte

	// closed is closed exactly once when the connection is torn down.
	closed    chan struct{}
	closeOnce sync.Once

	logger zerolog.Logger
}

// compile-time interface check
var _ Transport = (*Conn)(nil)

// NewConn wraps an upgraded WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
		logger: logx.Logger().With().Str("component", "conn").Str("remote_addr", ws.RemoteAddr().String()).Logger(),
	}
}

// Enqueue implements Transport. It never blocks; a full queue or a closed
// connection drops the payload and reports false.
func (c *Conn) Enqueue(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full, dropping message.")
		return false
	}
}

// Open implements Transport.
func (c *Conn) Open() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// ClosePolicy implements Transport. It sends a policy-violation close frame
// carrying reason, then tears the connection down. Subsequent calls are no-ops.
func (c *Conn) ClosePolicy(reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)

		frame := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.CloseMessage, frame); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to write close frame.")
		}

		if err := c.ws.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error.")
		}
	})
}

// shutdown tears the connection down without a policy frame, used when the
// peer disappeared or a write failed.
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if err := c.ws.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error.")
		}
	})
}

// ReadPump reads messages from the WebSocket until the connection dies,
// handing each payload to onMessage. It maintains the pong deadline so stale
// connections are reaped. onClose runs exactly once on the way out.
func (c *Conn) ReadPump(onMessage func(payload []byte), onClose func()) {
	defer func() {
		c.shutdown()
		onClose()
	}()

	c.ws.SetReadLimit(maxMessageSize)

	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline.")
		return
	}

	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Read loop ended.")
			}
			return
		}

		onMessage(payload)
	}
}

// WritePump drains the send queue onto the WebSocket and emits periodic pings.
// It exits when the connection is closed or a write fails.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug().Err(err).Msg("Write failed.")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("Ping failed.")
				return
			}

		case <-c.closed:
			return
		}
	}
}
