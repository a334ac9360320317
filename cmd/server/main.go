/*
Package main is the entry point for the meshpad signaling server.

It is responsible for loading configuration, initializing the global logging
system, constructing the identity verifier and room registry, setting up the
HTTP server, and gracefully handling operating system interrupt signals
(SIGINT, SIGTERM) to ensure a smooth shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meshpad/internal/auth"
	"meshpad/internal/configs"
	"meshpad/internal/handler"
	"meshpad/internal/pkg/logx"
	signalrelay "meshpad/internal/signal"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("jwks_url", cfg.JWKSURL).
		Strs("issuers", cfg.Issuers).
		Int("allowed_emails", len(cfg.AllowedEmails)).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The verifier fetches the issuer's key set up front; refusing to start
	// without it beats accepting connections that can never authenticate.
	verifier, err := auth.NewJWKSVerifier(ctx, cfg.JWKSURL, cfg.Issuers, cfg.Audience)
	if err != nil {
		logx.Fatal(err, "Failed to initialize token verifier")
	}

	registry := signalrelay.NewRegistry()

	router := handler.Router(&handler.Deps{
		Registry:   registry,
		Verifier:   verifier,
		Authorizer: auth.PolicyFor(cfg.AllowedEmails),
		Config:     cfg,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Signaling server starting on http://localhost%s", serverAddr))
		logx.Info(fmt.Sprintf("WebSocket endpoint: ws://localhost:%d/room/{roomId}?token={bearer}", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	registry.Shutdown("Server shutting down")

	logx.Info("Server gracefully stopped.")
}
