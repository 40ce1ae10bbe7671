package handler

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"devicegateway/internal/broadcast"
)

const streamWriteTimeout = 10 * time.Second

// EventSource is the broadcaster side a push client attaches to.
type EventSource interface {
	Attach(name string) *broadcast.Subscription
	Detach(sub *broadcast.Subscription)
}

// StreamHandler pushes every broadcast event to WebSocket clients as JSON.
type StreamHandler struct {
	events EventSource
}

func NewStreamHandler(events EventSource) *StreamHandler {
	return &StreamHandler{events: events}
}

// Upgrade only lets WebSocket upgrade requests through to Serve.
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Serve attaches the client for the lifetime of the connection. Client
// messages are read only to notice disconnects; "ping" is ignored.
func (h *StreamHandler) Serve(c *websocket.Conn) {
	sub := h.events.Attach("ws")
	clientLog := log.WithFields(log.Fields{"client": sub.ID(), "remote": c.RemoteAddr().String()})
	clientLog.Info("WS client connected")

	done := make(chan struct{})
	go h.readLoop(c, clientLog, done)

	defer func() {
		h.events.Detach(sub)
		c.Close()
		<-done
		clientLog.WithField("dropped", sub.Dropped()).Info("WS client disconnected")
	}()

	for {
		select {
		case <-done:
			return
		case e, ok := <-sub.Events():
			if !ok {
				c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			c.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := c.WriteJSON(e); err != nil {
				clientLog.WithError(err).Error("Error sending WS message")
				return
			}
		}
	}
}

func (h *StreamHandler) readLoop(c *websocket.Conn, clientLog *log.Entry, done chan<- struct{}) {
	defer close(done)
	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				clientLog.WithError(err).Debug("Websocket read ended")
			}
			return
		}
		if mt == websocket.TextMessage && string(msg) == "ping" {
			continue
		}
		clientLog.WithField("type", mt).Debug("Ignoring WS client message")
	}
}
