/*
Package handler provides the HTTP handlers and routing setup for the signaling server.

This file contains the WebSocket handlers: rate limiting, connection upgrading,
and handing the upgraded connection to its session state machine.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"meshpad/internal/pkg/errs"
	"meshpad/internal/pkg/limiter"
	"meshpad/internal/pkg/logx"
	"meshpad/internal/pkg/resp"
	"meshpad/internal/signal"
)

// HandleRoomSocket creates the HandlerFunc for GET /room/{roomID}. It applies
// the per-IP join limit, upgrades the connection, and runs the session: path
// and token validation, verification, authorization, and the relay loop. All
// refusals after the upgrade surface as policy close frames with a reason the
// client can display.
func HandleRoomSocket(upgrader websocket.Upgrader, joinLimiter *limiter.IPRateLimiter, deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !joinLimiter.Allow(r.RemoteAddr) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "remote_addr", r.RemoteAddr)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		roomID := chi.URLParam(r, "roomID")
		token := r.URL.Query().Get("token")

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		conn := signal.NewConn(ws)
		session := signal.NewSession(deps.Registry, deps.Verifier, deps.Authorizer, conn)

		go conn.WritePump()

		if err := session.Open(r.Context(), roomID, token); err != nil {
			logx.Warn("WebSocket connection refused.", "room_id", roomID, "reason", err.Error())
			return
		}

		// Blocks for the lifetime of the connection; Close runs when the
		// read loop ends for any reason.
		conn.ReadPump(session.HandleInbound, session.Close)
	}
}

// HandleInvalidPath refuses WebSocket dials on unknown paths. The upgrade is
// completed first so the policy close frame (and its reason) reaches the
// client; plain HTTP requests get a JSON 404.
func HandleInvalidPath(upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidPath))
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection on invalid path")
			return
		}

		conn := signal.NewConn(ws)
		conn.ClosePolicy(errs.Reason(errs.ErrInvalidPath))
	}
}
