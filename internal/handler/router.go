/*
Package handler provides the HTTP handlers and routing setup for the signaling server.

This file defines the main Router, applying middleware like logging, CORS, and
IP-based rate limiting before delegating requests to the WebSocket handler.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"meshpad/internal/auth"
	"meshpad/internal/configs"
	"meshpad/internal/pkg/limiter"
	"meshpad/internal/pkg/logx"
	"meshpad/internal/pkg/resp"
	"meshpad/internal/signal"
)

// Join attempts per IP on the WebSocket endpoint.
const (
	JoinRate  = 0.2
	JoinBurst = 5
)

// Deps bundles everything the handlers need.
type Deps struct {
	Registry   *signal.Registry
	Verifier   auth.Verifier
	Authorizer auth.Authorizer
	Config     *configs.AppConfig
}

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes the IP-based join limiter, configures CORS and the WebSocket
// origin check, and wires the room endpoint plus a catch-all that refuses
// WebSocket dials on any other path.
func Router(deps *Deps) http.Handler {
	joinLimiter := limiter.NewIPRateLimiter(rate.Limit(JoinRate), JoinBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status": "ok",
			"rooms":  deps.Registry.RoomCount(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Get("/room/{roomID}", HandleRoomSocket(upgrader, joinLimiter, deps))

	// A WebSocket dial on any other path completes the upgrade and is then
	// closed with the invalid-path policy reason, so browser clients see a
	// close reason instead of a failed handshake.
	r.NotFound(HandleInvalidPath(upgrader))

	return r
}
