package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	sendBufSize = 32
)

// Message is the frame written to websocket clients
type Message struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Data    any    `json:"data"`
}

type client struct {
	id      string
	channel string
	conn    *websocket.Conn
	send    chan []byte
}

// Hub fans events out to the websocket clients subscribed to each channel
type Hub struct {
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	channels map[string]map[*client]struct{}
}

var _ Publisher = (*Hub)(nil)

func NewHub(logger logrus.FieldLogger, checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		channels: make(map[string]map[*client]struct{}),
	}
}

// Publish queues payload for every client of channel. A client whose buffer is full is dropped.
func (h *Hub) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(Message{Channel: channel, Event: event, Data: payload})
	if err != nil {
		return err
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.channels[channel] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.WithFields(logrus.Fields{"client_id": c.id, "channel": channel}).Warn("Dropping slow websocket client")
		h.unsubscribe(c)
	}
	return nil
}

// Subscribers returns the number of clients listening on channel
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) subscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[c.channel]
	if !ok {
		subs = make(map[*client]struct{})
		h.channels[c.channel] = subs
	}
	subs[c] = struct{}{}
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[c.channel]
	if !ok {
		return
	}
	if _, ok := subs[c]; !ok {
		return
	}
	delete(subs, c)
	close(c.send)
	if len(subs) == 0 {
		delete(h.channels, c.channel)
	}
}

// Serve upgrades the request and streams channel events to it until the client goes away.
// The caller must authorize the subscription first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, channel string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	c := &client{
		id:      uuid.NewString(),
		channel: channel,
		conn:    conn,
		send:    make(chan []byte, sendBufSize),
	}
	h.subscribe(c)
	h.logger.WithFields(logrus.Fields{"client_id": c.id, "channel": channel}).Debug("Websocket client subscribed")

	go h.writePump(c)
	h.readPump(c)
}

// readPump only watches for the connection closing; clients never send events
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unsubscribe(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.WithError(err).WithField("client_id", c.id).Warn("Failed to send message")
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
