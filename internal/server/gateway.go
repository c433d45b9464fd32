package server

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type chatMessage struct {
	Content        string   `json:"content"`
	ContextFiles   []string `json:"contextFiles,omitempty"`
	Model          string   `json:"model,omitempty"`
	ConversationID *int64   `json:"conversationId,omitempty"`
	MessageID      *int64   `json:"messageId,omitempty"`
}

type chatReply struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Gateway relays chat messages from a websocket connection to the bridge and
// sends the outcome back to the originating connection only. Each connection
// is served by its own reader loop, so invocations from different clients run
// concurrently while replies on one connection stay ordered.
type Gateway struct {
	store   *Store
	bridge  *Bridge
	monitor *Monitor
}

func NewGateway(store *Store, bridge *Bridge, monitor *Monitor) *Gateway {
	return &Gateway{store: store, bridge: bridge, monitor: monitor}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	log.Printf("Client connected: %s", clientID)
	if g.monitor != nil {
		g.monitor.ClientConnected()
	}
	defer func() {
		log.Printf("Client disconnected: %s", clientID)
		if g.monitor != nil {
			g.monitor.ClientDisconnected()
		}
	}()

	for {
		var msg chatMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		settings := g.store.CLISettings()
		res, err := g.bridge.Invoke(r.Context(), settings, InvokeRequest{
			Message:        msg.Content,
			ContextFiles:   msg.ContextFiles,
			Model:          msg.Model,
			ConversationID: msg.ConversationID,
			MessageID:      msg.MessageID,
		})
		if err != nil {
			if werr := conn.WriteJSON(chatReply{Type: "error", Error: err.Error()}); werr != nil {
				return
			}
			continue
		}
		if werr := conn.WriteJSON(chatReply{Type: "response", Content: res.Content, SessionID: res.SessionID}); werr != nil {
			return
		}
	}
}
