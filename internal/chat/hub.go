package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"encore/pkg/types"
)

// broadcast is one queued sendMessage call.
type broadcast struct {
	roomKey string
	message types.ChatMessage
}

// outboundEvent is the frame delivered to room members.
type outboundEvent struct {
	Event string            `json:"event"` // always "message"
	Data  types.ChatMessage `json:"data"`
}

// Hub fans chat messages out to room members. All broadcasts drain through
// one goroutine, which gives every room single-threaded delivery order:
// members see messages in the order SendMessage calls were accepted. Room
// membership itself lives in Rooms and is updated synchronously.
type Hub struct {
	rooms *Rooms

	broadcastCh chan broadcast
	shutdownCh  chan struct{}

	running bool
	mu      sync.RWMutex
	now     func() time.Time
}

// NewHub creates a hub over the given room registry.
func NewHub(rooms *Rooms) *Hub {
	return &Hub{
		rooms:       rooms,
		broadcastCh: make(chan broadcast, 1000), // absorbs message bursts
		shutdownCh:  make(chan struct{}),
		now:         time.Now,
	}
}

// Start begins hub processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting chat hub...")
	go h.run(ctx)

	return nil
}

// Stop shuts the hub down. Queued messages are dropped; chat is transient.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping chat hub...")

	select {
	case <-h.shutdownCh:
	default:
		close(h.shutdownCh)
	}

	return nil
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case b := <-h.broadcastCh:
			h.deliver(b)
		case <-h.shutdownCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) deliver(b broadcast) {
	event := outboundEvent{Event: "message", Data: b.message}
	for _, conn := range h.rooms.Members(b.roomKey) {
		if err := conn.WriteJSON(event); err != nil {
			// A dead member must not stall the room.
			log.Printf("Chat delivery failed: room=%s err=%v", b.roomKey, err)
		}
	}
}

// Connect is the connection lifecycle hook. Log-only; the transport keeps
// its own bookkeeping.
func (h *Hub) Connect(conn *Connection) {
	log.Printf("Chat client connected")
}

// Disconnect drops the connection from every room it joined.
func (h *Hub) Disconnect(conn *Connection) {
	h.rooms.LeaveAll(conn)
	log.Printf("Chat client disconnected")
}

// JoinRoom adds the connection to the room keyed by session id. This never
// touches the session registry's participant counter.
func (h *Hub) JoinRoom(sessionID string, conn *Connection, participantName string) {
	conn.SetIdentity(participantName, conn.Role())
	h.rooms.Join(sessionID, conn)
	log.Printf("Chat join: room=%s participant=%s", sessionID, participantName)
}

// LeaveRoom removes the connection from the room.
func (h *Hub) LeaveRoom(sessionID string, conn *Connection, participantName string) {
	h.rooms.Leave(sessionID, conn)
	log.Printf("Chat leave: room=%s participant=%s", sessionID, participantName)
}

// SendMessage stamps a server-side timestamp and queues the message for
// every current member of the room, including the sender. Messages are
// never persisted.
func (h *Hub) SendMessage(sessionID, sender, message, role string) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	b := broadcast{
		roomKey: sessionID,
		message: types.ChatMessage{
			Sender:    sender,
			Message:   message,
			Role:      role,
			Timestamp: h.now().UTC(),
		},
	}

	select {
	case h.broadcastCh <- b:
		return nil
	default:
		return ErrEventChannelFull
	}
}
