/*
Package main is a headless meshpad collaborator.

It joins a room through the signaling relay, forms direct peer links with
every other member, and keeps a shared append-only document synchronized:
lines typed on stdin are appended locally and replicated to all peers, and
peer edits are printed as the document converges.
*/
package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"meshpad/internal/docsync"
	"meshpad/internal/mesh"
	"meshpad/internal/pkg/logx"
)

func main() {
	var (
		serverURL = flag.String("server", "ws://localhost:8080", "signaling server URL")
		roomID    = flag.String("room", "demo", "room to join")
		token     = flag.String("token", os.Getenv("MESHPAD_TOKEN"), "bearer token (defaults to MESHPAD_TOKEN)")
		stunURL   = flag.String("stun", "stun:stun.l.google.com:19302", "STUN server for ICE")
		verbose   = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logx.InitGlobalLogger(*verbose)

	if *token == "" {
		fmt.Fprintln(os.Stderr, "a bearer token is required (-token or MESHPAD_TOKEN)")
		os.Exit(1)
	}

	// The local identity comes from the token payload. This is display-only
	// addressing; the server verifies the signature and stamps every relayed
	// message itself.
	email, err := emailFromToken(*token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not read identity from token: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signals, err := mesh.DialRoom(ctx, *serverURL, *roomID, *token)
	if err != nil {
		logx.Fatal(err, "Failed to connect to signaling relay")
	}

	factory := mesh.WebRTCLinkFactory(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{*stunURL}}},
	})

	manager := mesh.NewManager(email, signals, factory)
	doc := docsync.NewOpLog(email)
	docsync.NewBridge(doc, manager)

	// Print the converged document whenever a peer edit lands.
	doc.OnUpdate(func(delta []byte, remote bool) {
		if remote {
			fmt.Printf("--- document (%d lines) ---\n%s", doc.Len(), doc.Text())
		}
	})

	go readStdin(doc)

	go func() {
		<-ctx.Done()
		signals.Close()
	}()

	fmt.Printf("joined %q as %s — type lines to append\n", *roomID, email)

	err = signals.Run(manager.HandleSignal)
	manager.Close()

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation {
		fmt.Fprintf(os.Stderr, "connection refused: %s\n", closeErr.Text)
		os.Exit(1)
	}

	logx.Info("Signaling connection closed.")
}

// readStdin appends each typed line to the shared document.
func readStdin(doc *docsync.OpLog) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := doc.Append(line); err != nil {
			logx.Error(err, "Failed to append line")
		}
	}
}

// emailFromToken decodes the email claim from the token payload without
// verifying it.
func emailFromToken(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("token is not a JWT")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decoding token payload: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("parsing token payload: %w", err)
	}
	if claims.Email == "" {
		return "", fmt.Errorf("token payload carries no email")
	}

	return claims.Email, nil
}
