// Package kanban assembles the client-side board engine: one realtime
// channel, one session and one move coordinator, explicitly constructed
// and wired so ownership and lifecycle stay visible to the caller.
package kanban

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/brunogblum/sindicoOnline-sub001/board"
	"github.com/brunogblum/sindicoOnline-sub001/coordinator"
	"github.com/brunogblum/sindicoOnline-sub001/realtime"
	"github.com/brunogblum/sindicoOnline-sub001/records"
	"github.com/brunogblum/sindicoOnline-sub001/session"
)

// Config describes one board session for one participant.
type Config struct {
	Endpoint      string // ws:// or wss:// URL of the board service
	Token         string // bearer token, forwarded on the upgrade request
	RecordsURL    string // base URL of the complaint CRUD service
	BoardID       string
	ParticipantID string
	Role          string
	Logger        *log.Logger
}

// Engine is the assembled client-side synchronization engine.
type Engine struct {
	Channel     *realtime.Client
	Session     *session.Manager
	Coordinator *coordinator.Coordinator
}

// New builds an engine from the config. Nothing connects until Open.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	var opts []realtime.Option
	if cfg.Token != "" {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+cfg.Token)
		opts = append(opts, realtime.WithHeader(header))
	}
	ch := realtime.New(cfg.Endpoint, logger, opts...)

	src := records.New(cfg.RecordsURL, cfg.Token)
	coord := coordinator.New(ch, src, cfg.BoardID, logger)

	sess := session.NewManager(ch, logger)
	sess.OnPeerJoined(func(participantID, role string) {
		logger.WithFields(log.Fields{"peer": participantID, "role": role}).Debug("peer joined board")
	})
	sess.OnPeerLeft(func(participantID string) {
		logger.WithFields(log.Fields{"peer": participantID}).Debug("peer left board")
	})

	e := &Engine{Channel: ch, Session: sess, Coordinator: coord}
	ch.OnConnect(func() {
		sess.Enter(cfg.BoardID, cfg.ParticipantID, cfg.Role)
	})
	return e
}

// Open starts the coordinator, seeds the projection from the record
// source and connects the channel. The session joins the board as soon as
// the connection is up.
func (e *Engine) Open(ctx context.Context) error {
	e.Coordinator.Start(ctx)
	if err := e.Coordinator.Refresh(ctx); err != nil {
		return err
	}
	e.Channel.Connect()
	return nil
}

// Close leaves the board and tears the channel down.
func (e *Engine) Close() {
	e.Session.Leave()
	e.Channel.Close()
}

// Drop resolves a drag outcome against the current projection and, when
// it maps to a legal move, applies it optimistically and emits it.
func (e *Engine) Drop(cardID, dropTarget string) {
	proj := board.FromColumns(e.Coordinator.Snapshot())
	intent, ok := board.ResolveDrop(proj, cardID, dropTarget)
	if !ok {
		return
	}
	e.Coordinator.Move(intent)
}
