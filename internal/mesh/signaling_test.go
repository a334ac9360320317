package mesh

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relayStub upgrades connections and lets the test script the server side of
// the signaling channel.
func relayStub(t *testing.T, handle func(r *http.Request, ws *websocket.Conn)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer ws.Close()
		handle(r, ws)
	}))
	t.Cleanup(server.Close)

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDialRoomBuildsEndpoint(t *testing.T) {
	var gotPath, gotToken string
	done := make(chan struct{})

	server := relayStub(t, func(r *http.Request, ws *websocket.Conn) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("token")
		close(done)
		ws.ReadMessage()
	})

	client, err := DialRoom(context.Background(), wsURL(server)+"/", "demo room", "tok&en")
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("relay never saw the dial")
	}

	// Room and token survive URL building, including characters that need
	// escaping; the trailing slash on the server URL does not double up.
	assert.Equal(t, "/room/demo room", gotPath)
	assert.Equal(t, "tok&en", gotToken)
}

func TestSendAndRunRoundTrip(t *testing.T) {
	server := relayStub(t, func(_ *http.Request, ws *websocket.Conn) {
		// Read one envelope and echo it back with from stamped, the way the
		// relay would deliver it to a peer.
		var env Envelope
		require.NoError(t, ws.ReadJSON(&env))
		env.From = "server-stamped"
		require.NoError(t, ws.WriteJSON(env))

		frame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		ws.WriteMessage(websocket.CloseMessage, frame)
	})

	client, err := DialRoom(context.Background(), wsURL(server), "demo", "token")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(Envelope{Type: TypeOffer, To: "b@x.com", SDP: "v=0"}))

	var received []Envelope
	err = client.Run(func(env Envelope) { received = append(received, env) })

	// The loop ends with the server's normal closure.
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)

	require.Len(t, received, 1)
	assert.Equal(t, TypeOffer, received[0].Type)
	assert.Equal(t, "server-stamped", received[0].From)
	assert.Equal(t, "v=0", received[0].SDP)
}

func TestRunSurfacesPolicyClose(t *testing.T) {
	server := relayStub(t, func(_ *http.Request, ws *websocket.Conn) {
		frame := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Invalid or expired token")
		ws.WriteMessage(websocket.CloseMessage, frame)
	})

	client, err := DialRoom(context.Background(), wsURL(server), "demo", "bad")
	require.NoError(t, err)
	defer client.Close()

	err = client.Run(func(Envelope) {})

	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "Invalid or expired token", closeErr.Text)
}
