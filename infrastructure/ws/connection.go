package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"lanshare/domain"
	"lanshare/domain/event"
	"lanshare/errors"
	"lanshare/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

// Connection binds one websocket to one identity. It is an EventSink:
// the fanout worker queues encoded frames into send, the write pump
// drains them. A connection that cannot keep up is closed rather than
// allowed to block delivery for everyone else.
type Connection struct {
	id       string
	identity string
	conn     *websocket.Conn
	send     chan []byte
	chat     services.IChatService
	limiter  *rate.Limiter
	log      *slog.Logger
	cancel   context.CancelFunc
}

func NewConnection(conn *websocket.Conn, identity string,
	chat services.IChatService, messagesPerSecond float64, burst int,
	log *slog.Logger) *Connection {
	return &Connection{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		chat:     chat,
		limiter:  rate.NewLimiter(rate.Limit(messagesPerSecond), burst),
		log:      log.With("conn", identity),
	}
}

func (c *Connection) ID() string { return c.id }

// Consume implements contract.EventSink. Group lifecycle events also
// adjust this connection's room subscriptions so routing stays aligned
// with the directory without a reconnect.
func (c *Connection) Consume(_ context.Context, e event.DomainEvent) error {
	c.reconcileRooms(e)

	frame, err := encodeEvent(e)
	if err != nil || frame == nil {
		return err
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case c.send <- raw:
		return nil
	default:
		return fmt.Errorf("send queue full for %s", c.identity)
	}
}

func (c *Connection) reconcileRooms(e event.DomainEvent) {
	switch evt := e.(type) {
	case event.GroupCreated:
		if lo.Contains(evt.Members, c.identity) {
			c.chat.JoinRoom(c.id, domain.GroupRoom(evt.GroupID))
		}
	case event.GroupMembershipChanged:
		if evt.Identity != c.identity {
			return
		}
		if evt.Added {
			c.chat.JoinRoom(c.id, domain.GroupRoom(evt.GroupID))
		} else {
			c.chat.LeaveRoom(c.id, domain.GroupRoom(evt.GroupID))
		}
	case event.GroupDeleted:
		c.chat.LeaveRoom(c.id, domain.GroupRoom(evt.GroupID))
	}
}

// Run starts both pumps and blocks until the connection dies. It always
// leaves the engine clean: Disconnect drops registry state and flips
// presence.
func (c *Connection) Run(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	defer c.cancel()

	if err := c.chat.Connect(ctx, c.id, c.identity, c); err != nil {
		c.log.Error("Failed to attach connection", "error", err)
		_ = c.conn.Close()
		return
	}
	defer c.chat.Disconnect(ctx, c.id, c.identity)

	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Connection) readPump(ctx context.Context) {
	defer func() {
		c.cancel()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Unexpected close", "error", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !c.limiter.Allow() {
			c.reject("rate_limited", "too many messages, slow down")
			continue
		}
		c.handleFrame(ctx, raw)
	}
}

func (c *Connection) handleFrame(ctx context.Context, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.reject("invalid_input", "malformed frame")
		return
	}

	var err error
	switch frame.Type {
	case "send":
		var p sendPayload
		if err = json.Unmarshal(frame.Payload, &p); err == nil {
			if err = validateSendPayload(p); err == nil {
				err = c.chat.Send(c.id, c.identity, p.Destination, p.Content, p.File, p.ReplyTo)
			}
		}
	case "typing":
		var p typingPayload
		if err = json.Unmarshal(frame.Payload, &p); err == nil {
			err = c.chat.Typing(c.id, c.identity, p.Destination, p.Stop)
		}
	case "react":
		var p reactPayload
		if err = json.Unmarshal(frame.Payload, &p); err == nil {
			err = c.chat.React(c.identity, p.MessageID, p.Emoji)
		}
	case "unreact":
		var p reactPayload
		if err = json.Unmarshal(frame.Payload, &p); err == nil {
			err = c.chat.Unreact(c.identity, p.MessageID, p.Emoji)
		}
	case "mark_read":
		var p markReadPayload
		if err = json.Unmarshal(frame.Payload, &p); err == nil {
			err = c.chat.MarkRead(c.identity, p.MessageID)
		}
	case "delete_message":
		var p deletePayload
		if err = json.Unmarshal(frame.Payload, &p); err == nil {
			err = c.chat.DeleteMessage(ctx, c.identity, p.MessageID)
		}
	default:
		c.log.Debug("Ignoring unknown frame type", "type", frame.Type)
		return
	}

	if err != nil {
		c.log.Info("Frame refused", "type", frame.Type, "error", err)
		c.reject(errors.Code(err), err.Error())
	}
}

func (c *Connection) reject(code, reason string) {
	frame, err := newFrame("rejected", rejectedPayload{Code: code, Reason: reason})
	if err != nil {
		return
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case raw := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
