package hub

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/brunogblum/sindicoOnline-sub001/domain"
)

// moveMetrics collects timings and outcome of one card:move and writes a
// single structured log entry when the handling finishes.
type moveMetrics struct {
	logger        *log.Logger
	start         time.Time
	orderDuration time.Duration
	board         string
	card          string
	from          string
	to            string
	actor         string
	outcome       string
	reason        string
	index         int
	err           error
}

func newMoveMetrics(logger *log.Logger) *moveMetrics {
	return &moveMetrics{logger: logger, start: time.Now(), index: -1}
}

func (m *moveMetrics) SetMove(mv domain.CardMove, actor string) {
	m.board = mv.BoardID
	m.card = mv.CardID
	m.from = string(mv.FromColumnID)
	m.to = string(mv.ToColumnID)
	m.actor = actor
}

func (m *moveMetrics) ObserveOrder(d time.Duration) {
	if d > 0 {
		m.orderDuration = d
	}
}

func (m *moveMetrics) Accept(index int) {
	m.outcome = "accepted"
	m.index = index
	m.log()
}

func (m *moveMetrics) Reject(reason string) {
	m.outcome = "rejected"
	m.reason = reason
	m.log()
}

func (m *moveMetrics) Fail(stage string, err error) {
	m.outcome = "failed"
	m.reason = stage
	m.err = err
	m.log()
}

func (m *moveMetrics) log() {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"board":    m.board,
		"card":     m.card,
		"from":     m.from,
		"to":       m.to,
		"actor":    m.actor,
		"outcome":  m.outcome,
		"total_ms": float64(time.Since(m.start)) / float64(time.Millisecond),
	}
	if m.orderDuration > 0 {
		fields["order_ms"] = float64(m.orderDuration) / float64(time.Millisecond)
	}
	if m.index >= 0 {
		fields["new_order"] = m.index
	}
	if m.reason != "" {
		fields["reason"] = m.reason
	}
	if m.err != nil {
		fields["error"] = m.err.Error()
	}

	entry := m.logger.WithFields(fields)
	if m.outcome == "accepted" {
		entry.Info("board.move.metrics")
		return
	}
	entry.Warn("board.move.metrics")
}
