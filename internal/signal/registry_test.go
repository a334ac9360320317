package signal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshpad/internal/auth"
)

// fakeTransport records everything the registry and session do to a
// connection's outbound half.
type fakeTransport struct {
	mu          sync.Mutex
	sent        [][]byte
	open        bool
	full        bool
	closeReason string
	closeCalls  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{open: true}
}

func (f *fakeTransport) Enqueue(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open || f.full {
		return false
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	f.sent = append(f.sent, buf)
	return true
}

func (f *fakeTransport) Open() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) ClosePolicy(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closeCalls++
	if !f.open {
		return
	}
	f.open = false
	f.closeReason = reason
}

func (f *fakeTransport) payloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.sent))
	for i, p := range f.sent {
		out[i] = string(p)
	}
	return out
}

func (f *fakeTransport) reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeReason
}

func member(email, roomID string) (*Connection, *fakeTransport) {
	transport := newFakeTransport()
	conn := NewConnection(auth.Identity{Email: email, EmailVerified: true}, roomID, transport)
	return conn, transport
}

func TestJoinCreatesRoomAndCountsPeers(t *testing.T) {
	registry := NewRegistry()

	a, _ := member("a@x.com", "demo")
	peers, replaced := registry.Join(a)
	assert.Equal(t, 0, peers)
	assert.Nil(t, replaced)
	assert.Equal(t, 1, registry.RoomCount())

	b, _ := member("b@x.com", "demo")
	peers, replaced = registry.Join(b)
	assert.Equal(t, 1, peers)
	assert.Nil(t, replaced)
	assert.Equal(t, 1, registry.RoomCount())

	c, _ := member("c@x.com", "other")
	peers, _ = registry.Join(c)
	assert.Equal(t, 0, peers)
	assert.Equal(t, 2, registry.RoomCount())
}

func TestLastLeaveRemovesRoom(t *testing.T) {
	registry := NewRegistry()

	a, _ := member("a@x.com", "demo")
	b, _ := member("b@x.com", "demo")
	registry.Join(a)
	registry.Join(b)

	assert.True(t, registry.Leave(a))
	assert.Equal(t, 1, registry.RoomCount())

	assert.True(t, registry.Leave(b))
	assert.Equal(t, 0, registry.RoomCount())
}

func TestLeaveIsIdempotent(t *testing.T) {
	registry := NewRegistry()

	a, _ := member("a@x.com", "demo")
	registry.Join(a)

	assert.True(t, registry.Leave(a))
	assert.False(t, registry.Leave(a))

	stranger, _ := member("z@x.com", "demo")
	assert.False(t, registry.Leave(stranger))
}

func TestJoinDeliversWelcomeAndAnnouncement(t *testing.T) {
	registry := NewRegistry()

	a, ta := member("a@x.com", "demo")
	registry.Join(a)

	msgs := decode(t, ta)
	require.Len(t, msgs, 1)
	assert.Equal(t, "welcome", msgs[0]["type"])
	assert.Equal(t, "a@x.com", msgs[0]["email"])
	assert.Equal(t, "demo", msgs[0]["roomId"])
	assert.Equal(t, float64(0), msgs[0]["peersInRoom"])

	b, tb := member("b@x.com", "demo")
	registry.Join(b)

	msgs = decode(t, tb)
	require.Len(t, msgs, 1)
	assert.Equal(t, "welcome", msgs[0]["type"])
	assert.Equal(t, float64(1), msgs[0]["peersInRoom"])

	msgs = decode(t, ta)
	require.Len(t, msgs, 2)
	assert.Equal(t, "peer-joined", msgs[1]["type"])
	assert.Equal(t, "b@x.com", msgs[1]["email"])
}

func TestLeaveAnnouncesPeerLeft(t *testing.T) {
	registry := NewRegistry()

	a, ta := member("a@x.com", "demo")
	b, _ := member("b@x.com", "demo")
	registry.Join(a)
	registry.Join(b)

	require.True(t, registry.Leave(b))

	msgs := decode(t, ta)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "peer-left", last["type"])
	assert.Equal(t, "b@x.com", last["email"])

	// The last member leaving an emptied room announces to no one.
	before := len(ta.payloads())
	require.True(t, registry.Leave(a))
	assert.Len(t, ta.payloads(), before)
}

func TestBroadcastExcludesSender(t *testing.T) {
	registry := NewRegistry()

	a, ta := member("a@x.com", "demo")
	b, tb := member("b@x.com", "demo")
	c, tc := member("c@x.com", "demo")
	registry.Join(a)
	registry.Join(b)
	registry.Join(c)

	aBefore, bBefore, cBefore := len(ta.payloads()), len(tb.payloads()), len(tc.payloads())

	registry.Broadcast("demo", a, []byte(`{"type":"signal"}`))

	assert.Len(t, ta.payloads(), aBefore)
	require.Len(t, tb.payloads(), bBefore+1)
	require.Len(t, tc.payloads(), cBefore+1)
	assert.Equal(t, `{"type":"signal"}`, tb.payloads()[bBefore])
	assert.Equal(t, `{"type":"signal"}`, tc.payloads()[cBefore])
}

func TestBroadcastSkipsClosedAndFullMembers(t *testing.T) {
	registry := NewRegistry()

	a, _ := member("a@x.com", "demo")
	b, tb := member("b@x.com", "demo")
	c, tc := member("c@x.com", "demo")
	registry.Join(a)
	registry.Join(b)
	registry.Join(c)

	tb.ClosePolicy("gone")
	tc.full = true

	bBefore, cBefore := len(tb.payloads()), len(tc.payloads())

	// Neither the closed nor the full member may block or receive delivery.
	registry.Broadcast("demo", a, []byte(`{"type":"signal"}`))

	assert.Len(t, tb.payloads(), bBefore)
	assert.Len(t, tc.payloads(), cBefore)
}

func TestBroadcastToUnknownRoomIsNoop(t *testing.T) {
	registry := NewRegistry()
	registry.Broadcast("nowhere", nil, []byte("x"))
}

func TestFindByIdentity(t *testing.T) {
	registry := NewRegistry()

	a, _ := member("a@x.com", "demo")
	b, _ := member("b@x.com", "demo")
	registry.Join(a)
	registry.Join(b)

	assert.Same(t, b, registry.FindByIdentity("demo", "b@x.com"))
	assert.Nil(t, registry.FindByIdentity("demo", "nobody@x.com"))
	assert.Nil(t, registry.FindByIdentity("other", "a@x.com"))
}

func TestJoinReplacesSameIdentity(t *testing.T) {
	registry := NewRegistry()

	old, _ := member("a@x.com", "demo")
	registry.Join(old)

	fresh, _ := member("a@x.com", "demo")
	peers, replaced := registry.Join(fresh)

	require.Same(t, old, replaced)
	// The displaced member is gone before the count is taken.
	assert.Equal(t, 0, peers)
	assert.Same(t, fresh, registry.FindByIdentity("demo", "a@x.com"))

	// The displaced connection is no longer a member, so its leave is a no-op.
	assert.False(t, registry.Leave(old))
	assert.True(t, registry.Leave(fresh))
}

func TestShutdownClosesEveryTransport(t *testing.T) {
	registry := NewRegistry()

	a, ta := member("a@x.com", "demo")
	b, tb := member("b@x.com", "other")
	registry.Join(a)
	registry.Join(b)

	registry.Shutdown("Server shutting down")

	assert.Equal(t, "Server shutting down", ta.reason())
	assert.Equal(t, "Server shutting down", tb.reason())
}
