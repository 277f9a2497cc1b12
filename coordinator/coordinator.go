// Package coordinator owns the board projection and is its only writer.
// Drag gestures, inbound channel events and connectivity changes all
// funnel through one dispatch loop, so mutations run to completion one at
// a time and readers only ever see consistent snapshots.
package coordinator

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/brunogblum/sindicoOnline-sub001/board"
	"github.com/brunogblum/sindicoOnline-sub001/domain"
	"github.com/brunogblum/sindicoOnline-sub001/realtime"
	"github.com/brunogblum/sindicoOnline-sub001/records"
)

const persistTimeout = 30 * time.Second

// Source is the complaint CRUD collaborator.
type Source interface {
	ListComplaints(ctx context.Context, q records.Query) ([]domain.Complaint, records.Pagination, error)
	UpdateStatus(ctx context.Context, id string, newStatus domain.Status, reason string) error
}

// Channel is the slice of the realtime client the coordinator needs.
type Channel interface {
	Emit(event string, payload any)
	OnEvent(name string, h realtime.Handler)
	OnConnect(fn func())
	OnDisconnect(fn func(reason error))
}

type pendingMove struct {
	from  domain.Status
	index int
}

// Coordinator applies moves optimistically, persists them through the
// record source and reconciles against authoritative card:moved events.
// The last authoritative event received for a card wins; there is no
// operation-level merging of concurrent moves.
type Coordinator struct {
	ch      Channel
	src     Source
	boardID string
	logger  *log.Logger

	cmds chan func()

	// Owned by the dispatch loop.
	proj    *board.Projection
	pending map[string]pendingMove
}

// New wires a coordinator for one board onto the channel. Start must be
// called before Move, Refresh or Snapshot.
func New(ch Channel, src Source, boardID string, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	c := &Coordinator{
		ch:      ch,
		src:     src,
		boardID: boardID,
		logger:  logger,
		cmds:    make(chan func(), 256),
		proj:    board.Project(nil),
		pending: make(map[string]pendingMove),
	}
	ch.OnEvent(domain.EventCardMoved, c.handleCardMoved)
	ch.OnDisconnect(c.handleDisconnect)
	ch.OnConnect(c.handleConnect)
	return c
}

// Start runs the dispatch loop until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-c.cmds:
				fn()
			}
		}
	}()
}

// do runs fn on the dispatch loop and waits for it to complete.
func (c *Coordinator) do(fn func()) {
	done := make(chan struct{})
	c.cmds <- func() {
		fn()
		close(done)
	}
	<-done
}

// Refresh replaces the projection with a fresh listing from the record
// source. Pending optimistic moves are discarded; the server's next
// card:moved events re-establish any placement this listing missed.
func (c *Coordinator) Refresh(ctx context.Context) error {
	recs, _, err := c.src.ListComplaints(ctx, records.Query{})
	if err != nil {
		return err
	}
	c.do(func() {
		c.proj = board.Project(recs)
		c.pending = make(map[string]pendingMove)
	})
	return nil
}

// Snapshot returns a deep copy of the current projection.
func (c *Coordinator) Snapshot() map[domain.Status][]domain.Complaint {
	var snap map[domain.Status][]domain.Complaint
	c.do(func() {
		snap = c.proj.Snapshot()
	})
	return snap
}

// Move validates and applies one drag outcome. Illegal intents are logged
// and dropped without side effects; they are UI affordance gaps, not
// faults. Legal intents are applied to the projection immediately, emitted
// over the channel and persisted through the record source.
func (c *Coordinator) Move(intent board.MoveIntent) {
	c.do(func() {
		c.applyMove(intent)
	})
}

func (c *Coordinator) applyMove(intent board.MoveIntent) {
	fields := log.Fields{
		"card": intent.CardID,
		"from": string(intent.From),
		"to":   string(intent.To),
	}
	if intent.From == intent.To {
		c.logger.WithFields(fields).Warn("dropping move within the same column")
		return
	}
	if !domain.CanTransition(intent.From, intent.To) {
		c.logger.WithFields(fields).Warn("dropping illegal workflow transition")
		return
	}
	from, idx, ok := c.proj.Locate(intent.CardID)
	if !ok {
		c.logger.WithFields(fields).Warn("dropping move of unknown card")
		return
	}
	if from != intent.From {
		// The gesture was resolved against a stale render.
		c.logger.WithFields(fields).Warn("dropping move with stale origin column")
		return
	}

	c.proj.Place(intent.CardID, intent.To, intent.Index)
	c.pending[intent.CardID] = pendingMove{from: from, index: idx}

	c.ch.Emit(domain.EventCardMove, domain.CardMove{
		CardID:       intent.CardID,
		FromColumnID: intent.From,
		ToColumnID:   intent.To,
		NewIndex:     intent.Index,
		BoardID:      c.boardID,
	})

	go c.persist(intent)
}

// persist pushes the authoritative status change. Reversion after a
// rejection is a UI correction, not a domain transition, so it restores
// the snapshot locally instead of issuing a mirrored update call.
func (c *Coordinator) persist(intent board.MoveIntent) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	err := c.src.UpdateStatus(ctx, intent.CardID, intent.To, "")
	if err == nil {
		return
	}
	c.logger.WithFields(log.Fields{"card": intent.CardID, "err": err}).
		Error("status update rejected, reverting optimistic move")

	c.do(func() {
		c.revertCard(intent.CardID)
	})
	c.resync()
}

func (c *Coordinator) revertCard(cardID string) {
	p, ok := c.pending[cardID]
	if !ok {
		return
	}
	delete(c.pending, cardID)
	c.proj.Place(cardID, p.from, p.index)
}

func (c *Coordinator) handleCardMoved(data []byte) {
	var ev domain.CardMoved
	if err := sonic.Unmarshal(data, &ev); err != nil {
		c.logger.Warnf("discarding malformed card:moved: %v", err)
		return
	}
	if ev.BoardID != c.boardID {
		return
	}
	c.do(func() {
		delete(c.pending, ev.CardID)
		if !c.proj.Place(ev.CardID, ev.ToColumnID, ev.NewOrder) {
			c.logger.WithFields(log.Fields{"card": ev.CardID}).
				Debug("card:moved for a card not in the projection")
		}
	})
}

// handleDisconnect treats in-flight moves as lost: each is reverted to its
// pre-move placement so the board never silently diverges while offline.
func (c *Coordinator) handleDisconnect(reason error) {
	c.do(func() {
		for cardID := range c.pending {
			c.revertCard(cardID)
		}
	})
}

// handleConnect resynchronizes after every (re)connection, covering events
// broadcast while the channel was down.
func (c *Coordinator) handleConnect() {
	go c.resync()
}

func (c *Coordinator) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.Refresh(ctx); err != nil {
		c.logger.Errorf("board resync failed: %v", err)
	}
}
