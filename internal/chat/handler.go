package chat

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking belongs to the deployment's edge, not here.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Inbound event names accepted on the chat namespace.
const (
	eventJoinRoom    = "join_room"
	eventLeaveRoom   = "leave_room"
	eventSendMessage = "send_message"
)

// inboundEvent mirrors the wire frames the chat namespace accepts.
type inboundEvent struct {
	Event       string `json:"event"`
	SessionID   string `json:"session_id"`
	Participant string `json:"participant,omitempty"`
	Message     string `json:"message,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Handler upgrades HTTP requests on the chat namespace and pumps inbound
// events into the hub. Connections need no prior authentication here:
// chat presence is an ephemeral view independent of the session registry.
type Handler struct {
	hub        *Hub
	bufferSize int
}

// NewHandler creates a chat websocket handler.
func NewHandler(hub *Hub, bufferSize int) *Handler {
	return &Handler{hub: hub, bufferSize: bufferSize}
}

// HandleChat is the /ws/chat endpoint.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Chat upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, h.bufferSize)
	h.hub.Connect(conn)

	go h.readPump(conn, wsConn)
}

func (h *Handler) readPump(conn *Connection, wsConn *websocket.Conn) {
	defer func() {
		h.hub.Disconnect(conn)
		_ = conn.Close()
	}()

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Chat read error: %v", err)
			}
			return
		}

		var event inboundEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("Chat frame rejected: %v", err)
			continue
		}
		if event.SessionID == "" {
			continue
		}

		switch event.Event {
		case eventJoinRoom:
			conn.SetIdentity(event.Participant, event.Role)
			h.hub.JoinRoom(event.SessionID, conn, event.Participant)
		case eventLeaveRoom:
			h.hub.LeaveRoom(event.SessionID, conn, event.Participant)
		case eventSendMessage:
			sender := event.Participant
			if sender == "" {
				sender = conn.Name()
			}
			role := event.Role
			if role == "" {
				role = conn.Role()
			}
			if err := h.hub.SendMessage(event.SessionID, sender, event.Message, role); err != nil {
				log.Printf("Chat send failed: room=%s err=%v", event.SessionID, err)
			}
		default:
			log.Printf("Chat frame with unknown event %q dropped", event.Event)
		}
	}
}
