package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// wireMessage is the outbound envelope for every event on the wire
// (spec.md §6.1).
type wireMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Client is one connected socket, registered under the user id its
// session token resolved to. Every outbound write — broadcast or
// targeted — is enqueued onto outbox and drained by the single writeLoop
// goroutine below, so a client can never observe two events out of the
// order they were enqueued in (spec.md §5 "all clients observe engine
// events in the same total order for a given round").
type Client struct {
	conn   *websocket.Conn
	userID string
	connID string

	outbox chan wireMessage
	done   chan struct{}
}

// Hub fans engine events out to every connected socket, or to one
// user's sockets for a targeted event. Adapted from
// nutcas3-aviator-fun/internal/game/hub.go: the map[*Client]bool client
// set is kept for broadcasts, a second index by user id (multiple sockets
// per user are supported) serves targeted events, and Hub implements game.EventSink directly
// instead of exposing a single untyped Broadcast method. Unlike the
// teacher's hub, fan-out no longer spawns a goroutine per client per
// message — that raced two concurrently-scheduled writers for the same
// socket with no guarantee on delivery order. Enqueuing onto each
// client's own ordered outbox instead preserves the order messages were
// published in.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	byUser  map[string]map[*Client]bool

	broadcast  chan wireMessage
	targeted   chan targetedMessage
	register   chan *Client
	unregister chan *Client
}

type targetedMessage struct {
	userID  string
	message wireMessage
}

// NewHub returns an idle Hub; call Run to start fanning out events.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
		broadcast:  make(chan wireMessage, 256),
		targeted:   make(chan targetedMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run drives the hub's registration and fan-out loop. It never returns;
// run it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			set, ok := h.byUser[client.userID]
			if !ok {
				set = make(map[*Client]bool)
				h.byUser[client.userID] = set
			}
			set[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS] client connected: user=%s (total=%d)", client.userID, count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if set, ok := h.byUser[client.userID]; ok {
					delete(set, client)
					if len(set) == 0 {
						delete(h.byUser, client.userID)
					}
				}
				close(client.done)
				client.conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("[WS] client disconnected: user=%s (total=%d)", client.userID, count)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				client.enqueue(msg)
			}
			h.mu.RUnlock()

		case tm := <-h.targeted:
			h.mu.RLock()
			for client := range h.byUser[tm.userID] {
				client.enqueue(tm.message)
			}
			h.mu.RUnlock()
		}
	}
}

// Publish fans event out to every connected socket (game.EventSink).
func (h *Hub) Publish(event string, payload interface{}) {
	select {
	case h.broadcast <- wireMessage{Event: event, Payload: payload}:
	default:
		log.Println("[WS] broadcast channel full, dropping message")
	}
}

// PublishTo sends event only to userID's sockets (game.EventSink).
func (h *Hub) PublishTo(userID, event string, payload interface{}) {
	select {
	case h.targeted <- targetedMessage{userID: userID, message: wireMessage{Event: event, Payload: payload}}:
	default:
		log.Printf("[WS] targeted channel full, dropping message to %s", userID)
	}
}

// ClientCount reports the number of currently connected sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds conn to the hub under userID, starts its write loop, and
// returns its Client.
func (h *Hub) Register(conn *websocket.Conn, userID, connID string) *Client {
	client := &Client{
		conn:   conn,
		userID: userID,
		connID: connID,
		outbox: make(chan wireMessage, 256),
		done:   make(chan struct{}),
	}
	go client.writeLoop()
	h.register <- client
	return client
}

// Unregister removes client from the hub, stops its write loop, and
// closes its socket.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Send enqueues event for this client's own socket, sharing the same
// ordered outbox the hub's broadcast fan-out writes into — so a targeted
// reply from the gateway's dispatch loop is delivered in the same
// relative order it and any broadcasts were enqueued in.
func (c *Client) Send(event string, payload interface{}) {
	c.enqueue(wireMessage{Event: event, Payload: payload})
}

func (c *Client) enqueue(msg wireMessage) {
	select {
	case c.outbox <- msg:
	default:
		log.Printf("[WS] outbox full for user %s, dropping message", c.userID)
	}
}

// writeLoop is the single goroutine permitted to call WriteMessage on
// this client's connection. Draining outbox in order is what guarantees
// total delivery order per socket.
func (c *Client) writeLoop() {
	for {
		select {
		case msg := <-c.outbox:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[WS] marshal error for user %s: %v", c.userID, err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[WS] write error for user %s: %v", c.userID, err)
			}
		case <-c.done:
			return
		}
	}
}
