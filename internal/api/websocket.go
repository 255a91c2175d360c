package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MessageType distinguishes the kinds of events pushed over the feed.
type MessageType string

const (
	MessageTypeBlock    MessageType = "block"
	MessageTypeBundle   MessageType = "bundle"
	MessageTypeStatus   MessageType = "status"
)

// WebSocketMessage is the envelope every pushed event is wrapped in.
type WebSocketMessage struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// BlockEvent is the new-head payload sent by BroadcastBlock. Nothing in the
// engine calls BroadcastBlock; clients receive only the events callers push.
type BlockEvent struct {
	Number  uint64 `json:"number"`
	BaseFee string `json:"base_fee"`
}

// BundleEvent is the dispatched-bundle payload sent by BroadcastBundle.
// Nothing in the engine calls BroadcastBundle.
type BundleEvent struct {
	TargetBlock uint64 `json:"target_block"`
	VictimHash  string `json:"victim_hash"`
	BundleHash  string `json:"bundle_hash"`
}

// WebSocketServer fans out block/bundle events to connected operators,
// adapted from the teacher's opportunity-streaming hub: the
// register/unregister/ping machinery is kept verbatim in shape, the
// per-client role/auth fields are dropped since this engine has a single
// operator, not a multi-role user base.
type WebSocketServer struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*Client
	mutex    sync.RWMutex

	blockBroadcast  chan BlockEvent
	bundleBroadcast chan BundleEvent

	register   chan *Client
	unregister chan *Client
	shutdown   chan struct{}
}

// Client represents a single connected operator dashboard.
type Client struct {
	conn     *websocket.Conn
	send     chan *WebSocketMessage
	lastPing time.Time
}

// NewWebSocketServer creates a new WebSocket hub.
func NewWebSocketServer() *WebSocketServer {
	return &WebSocketServer{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:         make(map[*websocket.Conn]*Client),
		blockBroadcast:  make(chan BlockEvent, 16),
		bundleBroadcast: make(chan BundleEvent, 64),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		shutdown:        make(chan struct{}),
	}
}

// Start runs the hub's event loop in a background goroutine.
func (ws *WebSocketServer) Start(ctx context.Context) error {
	go ws.run(ctx)
	return nil
}

// Stop closes every connected client.
func (ws *WebSocketServer) Stop(ctx context.Context) error {
	close(ws.shutdown)

	ws.mutex.Lock()
	for conn, client := range ws.clients {
		close(client.send)
		conn.Close()
	}
	ws.mutex.Unlock()

	return nil
}

// HandleWebSocket upgrades an HTTP connection and registers the client.
func (ws *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan *WebSocketMessage, 256),
		lastPing: time.Now(),
	}

	ws.register <- client

	go ws.writePump(client)
	go ws.readPump(client)
}

// BroadcastBlock pushes a new-head event to every connected client.
func (ws *WebSocketServer) BroadcastBlock(event BlockEvent) error {
	select {
	case ws.blockBroadcast <- event:
		return nil
	default:
		return fmt.Errorf("block broadcast channel full")
	}
}

// BroadcastBundle pushes a dispatched-bundle event to every connected client.
func (ws *WebSocketServer) BroadcastBundle(event BundleEvent) error {
	select {
	case ws.bundleBroadcast <- event:
		return nil
	default:
		return fmt.Errorf("bundle broadcast channel full")
	}
}

// GetConnectedClients returns the number of connected clients.
func (ws *WebSocketServer) GetConnectedClients() int {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	return len(ws.clients)
}

func (ws *WebSocketServer) run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ws.shutdown:
			return
		case client := <-ws.register:
			ws.registerClient(client)
		case client := <-ws.unregister:
			ws.unregisterClient(client)
		case block := <-ws.blockBroadcast:
			ws.broadcastToClients(&WebSocketMessage{Type: MessageTypeBlock, Data: block, Timestamp: time.Now()})
		case bundle := <-ws.bundleBroadcast:
			ws.broadcastToClients(&WebSocketMessage{Type: MessageTypeBundle, Data: bundle, Timestamp: time.Now()})
		case <-ticker.C:
			ws.pingClients()
		}
	}
}

func (ws *WebSocketServer) registerClient(client *Client) {
	ws.mutex.Lock()
	ws.clients[client.conn] = client
	ws.mutex.Unlock()

	welcome := &WebSocketMessage{
		Type:      MessageTypeStatus,
		Data:      map[string]interface{}{"message": "connected"},
		Timestamp: time.Now(),
	}

	select {
	case client.send <- welcome:
	default:
		close(client.send)
		delete(ws.clients, client.conn)
	}
}

func (ws *WebSocketServer) unregisterClient(client *Client) {
	ws.mutex.Lock()
	if _, ok := ws.clients[client.conn]; ok {
		delete(ws.clients, client.conn)
		close(client.send)
		client.conn.Close()
	}
	ws.mutex.Unlock()
}

func (ws *WebSocketServer) broadcastToClients(message *WebSocketMessage) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	for conn, client := range ws.clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(ws.clients, conn)
		}
	}
}

func (ws *WebSocketServer) pingClients() {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	for conn, client := range ws.clients {
		if time.Since(client.lastPing) > 60*time.Second {
			close(client.send)
			delete(ws.clients, conn)
			continue
		}
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			close(client.send)
			delete(ws.clients, conn)
		}
	}
}

func (ws *WebSocketServer) readPump(client *Client) {
	defer func() {
		ws.unregister <- client
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.lastPing = time.Now()
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			break
		}
	}
}

func (ws *WebSocketServer) writePump(client *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(message); err != nil {
				log.Printf("websocket write error: %v", err)
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
