package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"tradepost/internal/db"
)

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type hub struct {
	intentID string
	clients  map[*websocket.Conn]bool
	mu       sync.RWMutex
}

var (
	hubsMu sync.RWMutex
	hubs   = make(map[string]*hub)
)

func getHub(intentID string) *hub {
	hubsMu.Lock()
	defer hubsMu.Unlock()
	if h, ok := hubs[intentID]; ok {
		return h
	}
	h := &hub{intentID: intentID, clients: make(map[*websocket.Conn]bool)}
	hubs[intentID] = h
	return h
}

func (h *hub) broadcast(evt wsEvent) {
	payload, _ := json.Marshal(evt)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		_ = c.WriteMessage(websocket.TextMessage, payload)
	}
}

func (h *hub) register(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *hub) unregister(c *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ThreadWS - websocket for realtime updates on a negotiation thread
func ThreadWS(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	intentID := c.Param("id")
	if intentID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing intent id"})
	}

	// Verify participation
	var buyerID, sellerID string
	err := db.Conn.QueryRow(context.Background(),
		`SELECT buyer_id, seller_id FROM purchase_intents WHERE id = $1`, intentID,
	).Scan(&buyerID, &sellerID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "negotiation not found or inaccessible"})
	}
	if userID != buyerID && userID != sellerID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a participant in this negotiation"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	h := getHub(intentID)
	h.register(ws)

	h.broadcast(wsEvent{Type: "presence_join", Data: echo.Map{"user_id": userID}})

	// Read loop (discard client messages; protocol is server push for now)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.unregister(ws)
			_ = ws.Close()
			h.broadcast(wsEvent{Type: "presence_leave", Data: echo.Map{"user_id": userID}})
			break
		}
	}
	return nil
}

// BroadcastNewMessage - publish a new message event to the thread hub
func BroadcastNewMessage(intentID string, message interface{}) {
	h := getHub(intentID)
	h.broadcast(wsEvent{Type: "message_new", Data: message})
}

// BroadcastMessageRead - publish a message read event
func BroadcastMessageRead(intentID string, payload interface{}) {
	h := getHub(intentID)
	h.broadcast(wsEvent{Type: "message_read", Data: payload})
}

// BroadcastStateChange - nudge connected clients that the negotiation
// or order state moved so they refetch the snapshot without waiting
// for the next poll tick. The payload carries only the trigger, never
// the snapshot itself, because snapshots are viewer-specific.
func BroadcastStateChange(intentID string, payload interface{}) {
	h := getHub(intentID)
	h.broadcast(wsEvent{Type: "state_change", Data: payload})
}
