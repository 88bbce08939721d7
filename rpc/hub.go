package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/colorfulnotion/ismp/log"
	"github.com/colorfulnotion/ismp/types"
	"github.com/gorilla/websocket"
)

const (
	SubEvents   = "subscribeEvents"
	UnsubEvents = "unsubscribeEvents"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// SubscriptionRequest is sent by websocket clients. Params.events filters by event
// name; an empty filter receives every event.
type SubscriptionRequest struct {
	Method string `json:"method"`
	Params struct {
		Events []string `json:"events"`
	} `json:"params"`
}

// EventNotification is pushed to subscribers for every matching host event.
type EventNotification struct {
	Method string                  `json:"method"`
	Result types.EventWithMetadata `json:"result"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type directMessage struct {
	client *wsClient
	data   []byte
}

// Hub fans host events out to websocket clients.
type Hub struct {
	clients    map[*wsClient]struct{}
	register   chan *wsClient
	unregister chan *wsClient
	events     chan types.EventWithMetadata
	direct     chan directMessage
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewHub(ctx context.Context) *Hub {
	cctx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		events:     make(chan types.EventWithMetadata, 1024),
		direct:     make(chan directMessage),
		ctx:        cctx,
		cancel:     cancel,
	}
}

// Publish queues ev for delivery. It never blocks the caller: the host calls it
// while holding its lock, so events are dropped when the hub falls behind.
func (h *Hub) Publish(ev types.EventWithMetadata) {
	select {
	case h.events <- ev:
	default:
		log.Warn(log.RPCModule, "event hub full, dropping event", "event", ev.Event.EventName())
	}
}

func (h *Hub) Run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			for client := range h.clients {
				close(client.send)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case m := <-h.direct:
			if _, ok := h.clients[m.client]; ok {
				select {
				case m.client.send <- m.data:
				default:
				}
			}

		case ev := <-h.events:
			data, err := json.Marshal(EventNotification{Method: SubEvents, Result: ev})
			if err != nil {
				log.Error(log.RPCModule, "event marshal", "event", ev.Event.EventName(), "err", err)
				continue
			}
			for client := range h.clients {
				if !client.wants(ev.Event.EventName()) {
					continue
				}
				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu         sync.Mutex
	subscribed bool
	filter     map[string]bool
}

func (c *wsClient) wants(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscribed {
		return false
	}
	return len(c.filter) == 0 || c.filter[name]
}

func (c *wsClient) subscribe(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = true
	c.filter = make(map[string]bool, len(names))
	for _, n := range names {
		c.filter[n] = true
	}
}

func (c *wsClient) unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = false
	c.filter = nil
}

// readPump handles subscription management until the connection closes.
func (c *wsClient) readPump(wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug(log.RPCModule, "websocket closed", "err", err)
			}
			return
		}
		var req SubscriptionRequest
		if err := json.Unmarshal(message, &req); err != nil {
			log.Warn(log.RPCModule, "invalid subscription message", "err", err)
			continue
		}
		switch req.Method {
		case SubEvents:
			c.subscribe(req.Params.Events)
			c.ack(req.Method)
		case UnsubEvents:
			c.unsubscribe()
			c.ack(req.Method)
		default:
			log.Warn(log.RPCModule, "unknown subscription method", "method", req.Method)
		}
	}
}

// ack confirms a subscription change. The hub owns send, so the ack goes through it.
func (c *wsClient) ack(method string) {
	data, _ := json.Marshal(struct {
		Method string `json:"method"`
		Result bool   `json:"result"`
	}{method, true})
	select {
	case c.hub.direct <- directMessage{client: c, data: data}:
	case <-c.hub.ctx.Done():
	}
}

func (c *wsClient) writePump(wg *sync.WaitGroup) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		wg.Done()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades r to a websocket and registers the connection with the hub.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, wg *sync.WaitGroup) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(log.RPCModule, "websocket upgrade", "err", err)
		return
	}
	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, 256)}
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	wg.Add(2)
	go client.writePump(wg)
	go client.readPump(wg)
}
