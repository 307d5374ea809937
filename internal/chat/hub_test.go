package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encore/pkg/types"
)

type testGateway struct {
	rooms   *Rooms
	hub     *Hub
	server  *httptest.Server
	cancel  context.CancelFunc
	clients []*websocket.Conn
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	rooms := NewRooms()
	hub := NewHub(rooms)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, hub.Start(ctx))

	handler := NewHandler(hub, 100)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleChat))

	g := &testGateway{rooms: rooms, hub: hub, server: server, cancel: cancel}
	t.Cleanup(func() {
		for _, c := range g.clients {
			_ = c.Close()
		}
		server.Close()
		_ = hub.Stop()
		cancel()
	})

	return g
}

func (g *testGateway) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(g.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	g.clients = append(g.clients, conn)
	return conn
}

func (g *testGateway) join(t *testing.T, conn *websocket.Conn, sessionID, name, role string) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(inboundEvent{
		Event:       eventJoinRoom,
		SessionID:   sessionID,
		Participant: name,
		Role:        role,
	}))

	// joins are processed by the read pump; wait for membership to land
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, member := range g.rooms.Members(sessionID) {
			if member.Name() == name {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("participant %s never joined room %s", name, sessionID)
}

func readMessage(t *testing.T, conn *websocket.Conn) types.ChatMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event outboundEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "message", event.Event)
	return event.Data
}

func assertNoMessage(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestBroadcastReachesRoomIncludingSender(t *testing.T) {
	g := newTestGateway(t)

	alice := g.dial(t)
	bob := g.dial(t)
	g.join(t, alice, "s1", "alice", "student")
	g.join(t, bob, "s1", "bob", "student")

	require.NoError(t, alice.WriteJSON(inboundEvent{
		Event:       eventSendMessage,
		SessionID:   "s1",
		Participant: "alice",
		Message:     "hello room",
		Role:        "student",
	}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readMessage(t, conn)
		assert.Equal(t, "alice", msg.Sender)
		assert.Equal(t, "hello room", msg.Message)
		assert.Equal(t, "student", msg.Role)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestBroadcastScopedToRoom(t *testing.T) {
	g := newTestGateway(t)

	alice := g.dial(t)
	carol := g.dial(t)
	g.join(t, alice, "s1", "alice", "student")
	g.join(t, carol, "s2", "carol", "student")

	require.NoError(t, g.hub.SendMessage("s1", "alice", "for s1 only", "student"))

	msg := readMessage(t, alice)
	assert.Equal(t, "for s1 only", msg.Message)

	assertNoMessage(t, carol)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	g := newTestGateway(t)

	alice := g.dial(t)
	bob := g.dial(t)
	g.join(t, alice, "s1", "alice", "student")
	g.join(t, bob, "s1", "bob", "student")

	require.NoError(t, bob.WriteJSON(inboundEvent{
		Event:       eventLeaveRoom,
		SessionID:   "s1",
		Participant: "bob",
	}))

	deadline := time.Now().Add(2 * time.Second)
	for g.rooms.Count("s1") != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, g.rooms.Count("s1"))

	require.NoError(t, g.hub.SendMessage("s1", "alice", "still here?", "student"))

	msg := readMessage(t, alice)
	assert.Equal(t, "still here?", msg.Message)
	assertNoMessage(t, bob)
}

func TestMessagesDeliveredInOrder(t *testing.T) {
	g := newTestGateway(t)

	alice := g.dial(t)
	bob := g.dial(t)
	g.join(t, alice, "s1", "alice", "instructor")
	g.join(t, bob, "s1", "bob", "student")

	const count = 10
	sent := make([]string, 0, count)
	for i := 0; i < count; i++ {
		text := "note-" + string(rune('a'+i))
		sent = append(sent, text)
		require.NoError(t, g.hub.SendMessage("s1", "alice", text, "instructor"))
	}

	for i := 0; i < count; i++ {
		msg := readMessage(t, bob)
		assert.Equal(t, sent[i], msg.Message)
	}
}

func TestDisconnectLeavesAllRooms(t *testing.T) {
	g := newTestGateway(t)

	alice := g.dial(t)
	g.join(t, alice, "s1", "alice", "student")
	g.join(t, alice, "s2", "alice", "student")

	require.NoError(t, alice.Close())

	deadline := time.Now().Add(2 * time.Second)
	for (g.rooms.Count("s1") != 0 || g.rooms.Count("s2") != 0) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 0, g.rooms.Count("s1"))
	assert.Equal(t, 0, g.rooms.Count("s2"))
}

func TestSendMessageRequiresRunningHub(t *testing.T) {
	hub := NewHub(NewRooms())

	err := hub.SendMessage("s1", "alice", "too early", "student")
	assert.Equal(t, ErrHubNotRunning, err)
}

func TestHubStartStop(t *testing.T) {
	hub := NewHub(NewRooms())
	ctx := context.Background()

	require.NoError(t, hub.Start(ctx))
	assert.Equal(t, ErrHubAlreadyRunning, hub.Start(ctx))
	require.NoError(t, hub.Stop())
	assert.Equal(t, ErrHubNotRunning, hub.Stop())
}
