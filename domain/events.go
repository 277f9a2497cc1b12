package domain

import "github.com/bytedance/sonic"

// Wire event names exchanged over the board channel.
const (
	EventBoardJoin  = "board:join"
	EventBoardLeave = "board:leave"
	EventCardMove   = "card:move"
	EventCardMoved  = "card:moved"
	EventUserJoined = "board:userJoined"
	EventUserLeft   = "board:userLeft"
)

// Envelope frames every message on the channel.
type Envelope struct {
	Event string                 `json:"event"`
	Data  sonic.NoCopyRawMessage `json:"data,omitempty"`
}

// BoardJoin enrolls the connection in a board's broadcast group.
type BoardJoin struct {
	BoardID       string `json:"boardId"`
	ParticipantID string `json:"participantId"`
	Role          string `json:"role,omitempty"`
}

// BoardLeave removes the connection from a board's broadcast group.
type BoardLeave struct {
	BoardID string `json:"boardId"`
}

// CardMove is the client request to move a card between columns.
type CardMove struct {
	CardID       string `json:"cardId"`
	FromColumnID Status `json:"fromColumnId"`
	ToColumnID   Status `json:"toColumnId"`
	NewIndex     int    `json:"newIndex"`
	BoardID      string `json:"boardId"`
}

// CardMoved is the authoritative fact broadcast to every board participant,
// echo to the mover included. It is the sole convergence mechanism for
// board projections across clients.
type CardMoved struct {
	CardID       string `json:"cardId"`
	FromColumnID Status `json:"fromColumnId"`
	ToColumnID   Status `json:"toColumnId"`
	NewOrder     int    `json:"newOrder"`
	BoardID      string `json:"boardId"`
	MovedBy      string `json:"movedBy"`
	Timestamp    int64  `json:"timestamp"`
}

// UserJoined and UserLeft carry presence facts. Presence is observational
// only and never feeds board state reconciliation.
type UserJoined struct {
	UserID    string `json:"userId"`
	UserRole  string `json:"userRole,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type UserLeft struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}
