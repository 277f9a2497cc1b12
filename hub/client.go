package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/brunogblum/sindicoOnline-sub001/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced at the HTTP layer.
	},
}

const moveTimeout = 10 * time.Second

// Client represents one authenticated websocket connection.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	role   string

	mu      sync.Mutex
	boardID string
}

// ServeWS upgrades the request and registers the connection with the hub.
// userID and role come from the verified token, never from the client
// payloads.
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request, userID, role string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("ws upgrade: %v", err)
		return
	}

	client := &Client{
		id:     uuid.NewString(),
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		role:   role,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump consumes frames from the connection and applies the board
// protocol. It runs until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.WithFields(log.Fields{"conn": c.id}).Debugf("unexpected close: %v", err)
			}
			return
		}

		var env domain.Envelope
		if err := sonic.Unmarshal(msg, &env); err != nil {
			c.hub.logger.Warnf("invalid frame from %s: %v", c.id, err)
			continue
		}

		switch env.Event {
		case domain.EventBoardJoin:
			c.handleJoin(env.Data)
		case domain.EventBoardLeave:
			c.handleLeave()
		case domain.EventCardMove:
			c.handleMove(env.Data)
		default:
			c.hub.logger.Warnf("unknown event %q from %s", env.Event, c.id)
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	// Channel closed; say goodbye.
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleJoin(data []byte) {
	var join domain.BoardJoin
	if err := sonic.Unmarshal(data, &join); err != nil {
		c.hub.logger.Warnf("invalid board:join from %s: %v", c.id, err)
		return
	}
	if join.BoardID == "" {
		c.hub.logger.Warnf("board:join without board id from %s", c.id)
		return
	}

	previous := c.hub.join(c, join.BoardID)
	if previous != "" && previous != join.BoardID {
		c.hub.presenceLeft(previous, c.userID)
	}
	c.hub.presenceJoined(join.BoardID, c.userID, c.role)
}

func (c *Client) handleLeave() {
	boardID := c.hub.leave(c)
	if boardID == "" {
		return
	}
	c.hub.presenceLeft(boardID, c.userID)
}

func (c *Client) handleMove(data []byte) {
	metrics := newMoveMetrics(c.hub.logger)

	var mv domain.CardMove
	if err := sonic.Unmarshal(data, &mv); err != nil {
		c.hub.logger.Warnf("invalid card:move from %s: %v", c.id, err)
		return
	}
	metrics.SetMove(mv, c.userID)

	c.mu.Lock()
	member := c.boardID == mv.BoardID && mv.BoardID != ""
	c.mu.Unlock()
	if !member {
		metrics.Reject("not_a_member")
		return
	}
	if mv.FromColumnID == mv.ToColumnID || !domain.CanTransition(mv.FromColumnID, mv.ToColumnID) {
		metrics.Reject("illegal_transition")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), moveTimeout)
	defer cancel()

	orderStart := time.Now()
	index, err := c.hub.orders.ApplyMove(ctx, mv.BoardID, mv.CardID, mv.ToColumnID, mv.NewIndex)
	metrics.ObserveOrder(time.Since(orderStart))
	if err != nil {
		metrics.Fail("order_store", err)
		return
	}

	frame, err := encodeFrame(domain.EventCardMoved, domain.CardMoved{
		CardID:       mv.CardID,
		FromColumnID: mv.FromColumnID,
		ToColumnID:   mv.ToColumnID,
		NewOrder:     index,
		BoardID:      mv.BoardID,
		MovedBy:      c.userID,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		metrics.Fail("encode", err)
		return
	}

	c.hub.deliver(mv.BoardID, frame)
	metrics.Accept(index)
}
