// Package hub fans board frames out over websocket connections. Each
// connection is a participant in at most one board; accepted moves are
// assigned their authoritative order, then broadcast to every participant
// of the board including the mover.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/brunogblum/sindicoOnline-sub001/domain"
)

// Orders assigns the authoritative column position of an accepted move.
type Orders interface {
	ApplyMove(ctx context.Context, boardID, cardID string, to domain.Status, index int) (int, error)
}

// PublishFunc relays an encoded frame to the board members of every
// service instance, the local one included.
type PublishFunc func(ctx context.Context, boardID string, frame []byte) error

type boardFrame struct {
	boardID string
	data    []byte
}

// Hub maintains the set of active clients and their board membership.
type Hub struct {
	logger  *log.Logger
	orders  Orders
	publish PublishFunc

	clients map[*Client]bool
	boards  map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan boardFrame

	mu sync.RWMutex
}

// New creates a hub. publish may be nil, in which case frames are
// delivered to local board members only; with a publish function the hub
// expects the relay subscription to call Broadcast for delivery.
func New(orders Orders, publish PublishFunc, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		logger:     logger,
		orders:     orders,
		publish:    publish,
		clients:    make(map[*Client]bool),
		boards:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan boardFrame, 256),
	}
}

// Run starts the hub's main event loop. It must be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				boardID := h.dropClientLocked(client)
				h.mu.Unlock()
				if boardID != "" {
					go h.presenceLeft(boardID, client.userID)
				}
			} else {
				h.mu.Unlock()
			}

		case msg := <-h.broadcast:
			h.deliverLocal(msg.boardID, msg.data)
		}
	}
}

// Broadcast delivers a frame to the local members of the board. The relay
// subscription feeds relayed frames through here.
func (h *Hub) Broadcast(boardID string, data []byte) {
	h.broadcast <- boardFrame{boardID: boardID, data: data}
}

func (h *Hub) deliverLocal(boardID string, data []byte) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.boards[boardID]))
	for client := range h.boards[boardID] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		select {
		case client.send <- data:
		default:
			// Send buffer full; the client is too slow to keep.
			h.mu.Lock()
			h.dropClientLocked(client)
			h.mu.Unlock()
			h.logger.WithFields(log.Fields{"conn": client.id, "user": client.userID}).
				Warn("dropping slow client")
		}
	}
}

// dropClientLocked removes the client from all maps and closes its send
// channel. It returns the board the client was in, if any.
func (h *Hub) dropClientLocked(client *Client) string {
	if _, ok := h.clients[client]; !ok {
		return ""
	}
	delete(h.clients, client)
	close(client.send)

	client.mu.Lock()
	boardID := client.boardID
	client.boardID = ""
	client.mu.Unlock()

	if boardID != "" {
		h.removeMemberLocked(boardID, client)
	}
	return boardID
}

func (h *Hub) removeMemberLocked(boardID string, client *Client) {
	if members, ok := h.boards[boardID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.boards, boardID)
		}
	}
}

func (h *Hub) join(client *Client, boardID string) (previous string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	previous = client.boardID
	client.boardID = boardID
	client.mu.Unlock()

	if previous != "" && previous != boardID {
		h.removeMemberLocked(previous, client)
	}
	if h.boards[boardID] == nil {
		h.boards[boardID] = make(map[*Client]bool)
	}
	h.boards[boardID][client] = true
	return previous
}

func (h *Hub) leave(client *Client) (boardID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	boardID = client.boardID
	client.boardID = ""
	client.mu.Unlock()

	if boardID != "" {
		h.removeMemberLocked(boardID, client)
	}
	return boardID
}

// deliver routes a frame either through the cross-instance relay or, when
// no relay is configured, straight to local members.
func (h *Hub) deliver(boardID string, data []byte) {
	if h.publish != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.publish(ctx, boardID, data); err != nil {
			h.logger.Errorf("relay publish failed, delivering locally: %v", err)
			h.Broadcast(boardID, data)
		}
		return
	}
	h.Broadcast(boardID, data)
}

func (h *Hub) presenceJoined(boardID, userID, role string) {
	data, err := encodeFrame(domain.EventUserJoined, domain.UserJoined{
		UserID:    userID,
		UserRole:  role,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Errorf("encode userJoined: %v", err)
		return
	}
	h.deliver(boardID, data)
}

func (h *Hub) presenceLeft(boardID, userID string) {
	data, err := encodeFrame(domain.EventUserLeft, domain.UserLeft{
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Errorf("encode userLeft: %v", err)
		return
	}
	h.deliver(boardID, data)
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(domain.Envelope{Event: event, Data: data})
}
