package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"direct-chat/internal/models"
	"direct-chat/internal/services"
	"direct-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// eventTimeout bounds the storage work done for one inbound event.
const eventTimeout = 10 * time.Second

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is one accepted socket. Its read pump consumes inbound events
// one at a time; its write pump is the only writer to the socket.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	send chan []byte
	log  *logger.Logger

	// userID is written once by the read pump during authenticate.
	userID string

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		hub:  hub,
		conn: conn,
		id:   id,
		send: make(chan []byte, hub.cfg.SendBuffer),
		log:  logger.With("client_id", id),
	}
}

// Serve starts both pumps and returns immediately.
func (c *Client) Serve() {
	if !c.hub.attach(c) {
		c.conn.Close()
		return
	}
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump after it flushes what is already queued.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) ReadPump() {
	defer c.disconnect()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	// Until the handshake succeeds the socket only gets the auth window.
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.AuthTimeout))
	c.conn.SetPongHandler(func(string) error {
		if c.userID == "" {
			return nil
		}
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.IdleTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("WebSocket read error: %v", err)
			}
			return
		}

		if c.userID != "" {
			c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.IdleTimeout))
		}

		c.handle(data)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle processes one inbound frame.
func (c *Client) handle(data []byte) {
	var event models.InboundEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.replyError("invalid event")
		return
	}

	if event.Type == models.EventAuthenticate {
		c.authenticate(event.Data)
		return
	}
	if c.userID == "" {
		c.replyError("authenticate first")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch event.Type {
	case models.EventSendMessage:
		var req models.SendMessageRequest
		if err := json.Unmarshal(event.Data, &req); err != nil {
			c.replyError("invalid sendMessage payload")
			return
		}
		msg, err := c.hub.messages.Send(ctx, c.userID, &req)
		if err != nil {
			c.replyError(errorMessage(err))
			return
		}
		c.reply(&models.Event{Type: models.EventMessageSent, Data: msg})

	case models.EventTyping:
		var p models.TypingPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			c.replyError("invalid typing payload")
			return
		}
		c.hub.Typing.Relay(c.userID, p.RecipientID, p.IsTyping)

	case models.EventMarkRead:
		var p models.MarkReadPayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			c.replyError("invalid markRead payload")
			return
		}
		if _, err := c.hub.messages.MarkRead(ctx, c.userID, p.SenderID); err != nil {
			c.replyError(errorMessage(err))
		}

	default:
		c.replyError("unsupported event type")
	}
}

// authenticate binds the socket to a verified user and registers it.
// A failed handshake closes the socket without touching the registry.
func (c *Client) authenticate(data json.RawMessage) {
	if c.userID != "" {
		c.replyError("already authenticated")
		return
	}

	var p models.AuthenticatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.replyError("invalid authenticate payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	user, err := c.hub.auth.GetUserFromToken(ctx, p.Token)
	if err == nil && p.UserID != "" && p.UserID != user.ID {
		err = errors.New("userId does not match token")
	}
	if err != nil {
		c.log.Info("Rejected authenticate handshake: %v", err)
		c.replyError("unauthenticated")
		// The write pump flushes the error, then closes the socket and
		// ends the read pump.
		c.Close()
		return
	}

	c.userID = user.ID
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.IdleTimeout))

	c.reply(&models.Event{Type: models.EventAuthenticated, Data: models.AuthenticatedPayload{UserID: user.ID}})
	if previous := c.hub.Registry.Register(user.ID, c); previous != nil {
		c.log.Info("User %s: connection %s superseded by %s", user.ID, previous.ID(), c.id)
	}
}

func (c *Client) disconnect() {
	if c.userID != "" {
		c.hub.Registry.Unregister(c.userID, c)
	}
	c.hub.detach(c)
	c.Close()
	c.conn.Close()
}

func (c *Client) reply(event *models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.log.Error("Error marshaling %s event: %v", event.Type, err)
		return
	}
	if err := c.Send(payload); err != nil {
		c.log.Debug("Dropped %s reply: %v", event.Type, err)
	}
}

func (c *Client) replyError(message string) {
	c.reply(models.NewErrorEvent(message))
}

func errorMessage(err error) string {
	if errors.Is(err, services.ErrStorage) {
		return "Server error"
	}
	return err.Error()
}
