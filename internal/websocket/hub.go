package notifyws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/mindbridge-health/MindBridgeBack/internal/models"
	"github.com/mindbridge-health/MindBridgeBack/internal/services"
)

// Hub fans realtime events out to connected clients. Messages target
// specific participants; crisis alerts target every connected clinician.
type Hub struct {
	clients    map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *event
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	role   string

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// trySend queues a payload unless the client is already closed or its
// buffer is full. The mutex keeps the queue and the close in
// closeSend mutually exclusive; ReadPump and the hub goroutine both
// write here.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

type sender interface {
	SendToConversation(
		ctx context.Context,
		senderID int64,
		conversationID int64,
		content string,
	) (*models.Message, error)
}

type event struct {
	payload []byte
	userIDs []int64
	role    string
}

type MessageEvent struct {
	Type           string `json:"type"`
	EventID        string `json:"event_id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username,omitempty"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
}

type AlertEvent struct {
	Type       string  `json:"type"`
	EventID    string  `json:"event_id"`
	AlertID    int64   `json:"alert_id"`
	PatientID  int64   `json:"patient_id"`
	Severity   string  `json:"severity"`
	AlertType  string  `json:"alert_type"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *event, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64, role string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		role:   role,
		send:   make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				client.closeSend()
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// NotifyMessage implements services.DeliveryNotifier. The sender gets a
// copy too so their other sessions stay in sync.
func (h *Hub) NotifyMessage(message *models.Message, recipientIDs []int64) {
	payload, err := json.Marshal(MessageEvent{
		Type:           "message",
		EventID:        uuid.NewString(),
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		SenderUsername: message.SenderUsername,
		Content:        message.Content,
		Timestamp:      services.FormatTimestamp(message.SentAt),
	})
	if err != nil {
		log.Printf("notify hub encode message: %v", err)
		return
	}

	targets := make([]int64, 0, len(recipientIDs)+1)
	targets = append(targets, message.SenderID)
	targets = append(targets, recipientIDs...)

	h.enqueue(&event{payload: payload, userIDs: targets})
}

// NotifyAlert implements services.AlertNotifier.
func (h *Hub) NotifyAlert(alert *models.CrisisAlert) {
	payload, err := json.Marshal(AlertEvent{
		Type:       "crisis_alert",
		EventID:    uuid.NewString(),
		AlertID:    alert.ID,
		PatientID:  alert.PatientID,
		Severity:   alert.Severity,
		AlertType:  alert.AlertType,
		Source:     alert.Source,
		Confidence: alert.Confidence,
		Timestamp:  services.FormatTimestamp(alert.CreatedAt),
	})
	if err != nil {
		log.Printf("notify hub encode alert: %v", err)
		return
	}

	h.enqueue(&event{payload: payload, role: "clinician"})
}

func (h *Hub) enqueue(ev *event) {
	select {
	case h.broadcast <- ev:
	default:
		log.Print("notify hub broadcast buffer full, dropping event")
	}
}

func (h *Hub) deliver(ev *event) {
	if ev.role != "" {
		for userID, set := range h.clients {
			for client := range set {
				if client.role == ev.role {
					h.sendToClient(userID, client, ev.payload)
				}
			}
		}
		return
	}

	seen := make(map[int64]struct{}, len(ev.userIDs))
	for _, userID := range ev.userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		h.sendToUser(userID, ev.payload)
	}
}

func (h *Hub) sendToUser(userID int64, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		h.sendToClient(userID, client, payload)
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) sendToClient(userID int64, client *Client, payload []byte) {
	if !client.trySend(payload) {
		delete(h.clients[userID], client)
		client.closeSend()
	}
}

func (c *Client) ReadPump(service sender) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type           string `json:"type"`
			ConversationID int64  `json:"conversation_id"`
			Content        string `json:"content"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil {
			writeError(c, "invalid message payload")
			continue
		}
		if incoming.Type != "message" {
			writeError(c, "unsupported message type")
			continue
		}
		if incoming.ConversationID <= 0 {
			writeError(c, "invalid conversation id")
			continue
		}

		// Delivery fan-out happens through NotifyMessage on success.
		_, err = service.SendToConversation(
			context.Background(),
			c.userID,
			incoming.ConversationID,
			incoming.Content,
		)
		if err != nil {
			writeError(c, sendErrorText(err))
		}
	}
}

func sendErrorText(err error) string {
	switch {
	case errors.Is(err, services.ErrBlocked):
		return "message could not be delivered"
	case errors.Is(err, services.ErrNotParticipant):
		return "conversation not found"
	case errors.Is(err, services.ErrInvalidInput):
		return "invalid message content"
	default:
		return "failed to send message"
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func writeError(client *Client, message string) {
	payload, err := json.Marshal(MessageEvent{
		Type:      "error",
		EventID:   uuid.NewString(),
		Content:   message,
		Timestamp: services.FormatTimestamp(time.Now().UTC()),
	})
	if err != nil {
		return
	}
	if !client.trySend(payload) {
		client.hub.Unregister(client)
	}
}
