package session

import (
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/brunogblum/sindicoOnline-sub001/domain"
	"github.com/brunogblum/sindicoOnline-sub001/realtime"
)

// Channel is the slice of the realtime client the session manager needs.
type Channel interface {
	Emit(event string, payload any)
	OnEvent(name string, h realtime.Handler)
	OnConnect(fn func())
}

// Membership describes the board the local client is currently in.
type Membership struct {
	BoardID       string
	ParticipantID string
	Role          string
}

// Manager tracks membership in at most one shared board and surfaces
// presence facts to observers. Presence is purely observational and never
// feeds board state reconciliation.
type Manager struct {
	ch     Channel
	logger *log.Logger

	mu      sync.Mutex
	current *Membership

	peerJoined []func(participantID, role string)
	peerLeft   []func(participantID string)
}

// NewManager wires a manager onto the channel. The current board is
// re-joined automatically after every reconnect so broadcasts resume
// without user action.
func NewManager(ch Channel, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	m := &Manager{ch: ch, logger: logger}

	ch.OnEvent(domain.EventUserJoined, m.handleUserJoined)
	ch.OnEvent(domain.EventUserLeft, m.handleUserLeft)
	ch.OnConnect(m.rejoin)
	return m
}

// Enter joins the given board. Being a member of a different board first
// performs an implicit Leave.
func (m *Manager) Enter(boardID, participantID, role string) {
	m.mu.Lock()
	if cur := m.current; cur != nil && cur.BoardID != boardID {
		m.mu.Unlock()
		m.Leave()
		m.mu.Lock()
	}
	m.current = &Membership{BoardID: boardID, ParticipantID: participantID, Role: role}
	m.mu.Unlock()

	m.ch.Emit(domain.EventBoardJoin, domain.BoardJoin{
		BoardID:       boardID,
		ParticipantID: participantID,
		Role:          role,
	})
}

// Leave exits the current board. It is a no-op when not a member.
func (m *Manager) Leave() {
	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.mu.Unlock()

	if cur == nil {
		return
	}
	m.ch.Emit(domain.EventBoardLeave, domain.BoardLeave{BoardID: cur.BoardID})
}

// Current returns the active membership, if any.
func (m *Manager) Current() (Membership, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Membership{}, false
	}
	return *m.current, true
}

// OnPeerJoined registers a presence observer.
func (m *Manager) OnPeerJoined(fn func(participantID, role string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerJoined = append(m.peerJoined, fn)
}

// OnPeerLeft registers a presence observer.
func (m *Manager) OnPeerLeft(fn func(participantID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerLeft = append(m.peerLeft, fn)
}

func (m *Manager) rejoin() {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur == nil {
		return
	}
	m.logger.WithFields(log.Fields{"board": cur.BoardID}).Debug("re-joining board after reconnect")
	m.ch.Emit(domain.EventBoardJoin, domain.BoardJoin{
		BoardID:       cur.BoardID,
		ParticipantID: cur.ParticipantID,
		Role:          cur.Role,
	})
}

func (m *Manager) handleUserJoined(data []byte) {
	var ev domain.UserJoined
	if err := sonic.Unmarshal(data, &ev); err != nil {
		m.logger.Warnf("discarding malformed userJoined: %v", err)
		return
	}
	m.mu.Lock()
	fns := make([]func(string, string), len(m.peerJoined))
	copy(fns, m.peerJoined)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev.UserID, ev.UserRole)
	}
}

func (m *Manager) handleUserLeft(data []byte) {
	var ev domain.UserLeft
	if err := sonic.Unmarshal(data, &ev); err != nil {
		m.logger.Warnf("discarding malformed userLeft: %v", err)
		return
	}
	m.mu.Lock()
	fns := make([]func(string), len(m.peerLeft))
	copy(fns, m.peerLeft)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev.UserID)
	}
}
