package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/brunogblum/sindicoOnline-sub001/board"
	"github.com/brunogblum/sindicoOnline-sub001/domain"
	"github.com/brunogblum/sindicoOnline-sub001/realtime"
	"github.com/brunogblum/sindicoOnline-sub001/records"
)

type fakeSource struct {
	mu      sync.Mutex
	records []domain.Complaint
	updates []string
	fail    bool
}

func (f *fakeSource) ListComplaints(ctx context.Context, q records.Query) ([]domain.Complaint, records.Pagination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Complaint, len(f.records))
	copy(out, f.records)
	return out, records.Pagination{Total: len(out)}, nil
}

func (f *fakeSource) UpdateStatus(ctx context.Context, id string, newStatus domain.Status, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("persistence rejected")
	}
	f.updates = append(f.updates, id+":"+string(newStatus))
	return nil
}

func (f *fakeSource) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

type fakeChannel struct {
	mu           sync.Mutex
	emits        []domain.CardMove
	handlers     map[string][]realtime.Handler
	onConnect    []func()
	onDisconnect []func(error)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]realtime.Handler)}
}

func (f *fakeChannel) Emit(event string, payload any) {
	if event != domain.EventCardMove {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, payload.(domain.CardMove))
}

func (f *fakeChannel) OnEvent(name string, h realtime.Handler) {
	f.handlers[name] = append(f.handlers[name], h)
}

func (f *fakeChannel) OnConnect(fn func())         { f.onConnect = append(f.onConnect, fn) }
func (f *fakeChannel) OnDisconnect(fn func(error)) { f.onDisconnect = append(f.onDisconnect, fn) }

func (f *fakeChannel) emitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emits)
}

func (f *fakeChannel) deliverMoved(t *testing.T, ev domain.CardMoved) {
	t.Helper()
	data, err := sonic.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	for _, h := range f.handlers[domain.EventCardMoved] {
		h(data)
	}
}

func (f *fakeChannel) disconnect(reason error) {
	for _, fn := range f.onDisconnect {
		fn(reason)
	}
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetLevel(log.PanicLevel)
	return l
}

func newCoordinator(t *testing.T, src *fakeSource, ch *fakeChannel) *Coordinator {
	t.Helper()
	c := New(ch, src, "condo-1", quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c.Start(ctx)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("seed projection: %v", err)
	}
	return c
}

func seededSource() *fakeSource {
	return &fakeSource{records: []domain.Complaint{
		{ID: "c1", Status: domain.StatusPendente, CreatedAt: 10},
		{ID: "c2", Status: domain.StatusPendente, CreatedAt: 20},
		{ID: "c3", Status: domain.StatusEmAnalise, CreatedAt: 30},
	}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMoveAppliesOptimisticallyAndEmits(t *testing.T) {
	src := seededSource()
	ch := newFakeChannel()
	c := newCoordinator(t, src, ch)

	c.Move(board.MoveIntent{CardID: "c1", From: domain.StatusPendente, To: domain.StatusEmAnalise, Index: 0})

	snap := c.Snapshot()
	if len(snap[domain.StatusPendente]) != 1 || snap[domain.StatusPendente][0].ID != "c2" {
		t.Fatalf("origin column wrong: %+v", snap[domain.StatusPendente])
	}
	if snap[domain.StatusEmAnalise][0].ID != "c1" {
		t.Fatalf("card not placed at destination index: %+v", snap[domain.StatusEmAnalise])
	}
	if snap[domain.StatusEmAnalise][0].Status != domain.StatusEmAnalise {
		t.Fatal("record status field not updated")
	}
	if ch.emitCount() != 1 {
		t.Fatalf("expected one card:move emit, got %d", ch.emitCount())
	}
	waitFor(t, "status persistence", func() bool { return src.updateCount() == 1 })
}

func TestSingleCardScenario(t *testing.T) {
	src := &fakeSource{records: []domain.Complaint{{ID: "c1", Status: domain.StatusPendente, CreatedAt: 1}}}
	ch := newFakeChannel()
	c := newCoordinator(t, src, ch)

	snap := c.Snapshot()
	if len(snap[domain.StatusPendente]) != 1 || snap[domain.StatusPendente][0].ID != "c1" {
		t.Fatalf("seed projection wrong: %+v", snap[domain.StatusPendente])
	}

	c.Move(board.MoveIntent{CardID: "c1", From: domain.StatusPendente, To: domain.StatusEmAnalise, Index: 0})

	snap = c.Snapshot()
	if len(snap[domain.StatusPendente]) != 0 {
		t.Fatal("PENDENTE must be empty after the move")
	}
	col := snap[domain.StatusEmAnalise]
	if len(col) != 1 || col[0].ID != "c1" || col[0].Status != domain.StatusEmAnalise {
		t.Fatalf("unexpected EM_ANALISE column: %+v", col)
	}
}

func TestIllegalMoveRejectedSilently(t *testing.T) {
	src := &fakeSource{records: []domain.Complaint{{ID: "c1", Status: domain.StatusResolvida, CreatedAt: 1}}}
	ch := newFakeChannel()
	c := newCoordinator(t, src, ch)

	before := c.Snapshot()
	c.Move(board.MoveIntent{CardID: "c1", From: domain.StatusResolvida, To: domain.StatusPendente, Index: 0})
	after := c.Snapshot()

	if len(after[domain.StatusResolvida]) != len(before[domain.StatusResolvida]) {
		t.Fatal("projection changed by rejected move")
	}
	if ch.emitCount() != 0 {
		t.Fatal("rejected move must not emit a wire event")
	}
	time.Sleep(20 * time.Millisecond)
	if src.updateCount() != 0 {
		t.Fatal("rejected move must not reach the record source")
	}
}

func TestSameColumnMoveRejected(t *testing.T) {
	src := seededSource()
	ch := newFakeChannel()
	c := newCoordinator(t, src, ch)

	c.Move(board.MoveIntent{CardID: "c1", From: domain.StatusPendente, To: domain.StatusPendente, Index: 1})

	if ch.emitCount() != 0 {
		t.Fatal("same-column move must not emit")
	}
}

func TestEchoIsIdempotent(t *testing.T) {
	src := seededSource()
	ch := newFakeChannel()
	c := newCoordinator(t, src, ch)

	c.Move(board.MoveIntent{CardID: "c1", From: domain.StatusPendente, To: domain.StatusEmAnalise, Index: 0})
	optimistic := c.Snapshot()

	ch.deliverMoved(t, domain.CardMoved{
		CardID:       "c1",
		FromColumnID: domain.StatusPendente,
		ToColumnID:   domain.StatusEmAnalise,
		NewOrder:     0,
		BoardID:      "condo-1",
		MovedBy:      "u1",
		Timestamp:    1,
	})
	echoed := c.Snapshot()

	for _, s := range domain.Columns() {
		if len(optimistic[s]) != len(echoed[s]) {
			t.Fatalf("column %s length changed by echo", s)
		}
		for i := range optimistic[s] {
			if optimistic[s][i].ID != echoed[s][i].ID {
				t.Fatalf("column %s order changed by echo", s)
			}
		}
	}
}

func TestLastEventWins(t *testing.T) {
	src := seededSource()
	ch := newFakeChannel()
	c := newCoordinator(t, src, ch)

	ch.deliverMoved(t, domain.CardMoved{
		CardID: "c1", FromColumnID: domain.StatusPendente, ToColumnID: domain.StatusEmAnalise,
		NewOrder: 0, BoardID: "condo-1", MovedBy: "u1", Timestamp: 1,
	})
	ch.deliverMoved(t, domain.CardMoved{
		CardID: "c1", FromColumnID: domain.StatusPendente, ToColumnID: domain.StatusRejeitada,
		NewOrder: 0, BoardID: "condo-1", MovedBy: "u2", Timestamp: 2,
	})

	snap := c.Snapshot()
	if len(snap[domain.StatusRejeitada]) != 1 || snap[domain.StatusRejeitada][0].ID != "c1" {
		t.Fatalf("expected c1 placed per the last event: %+v", snap[domain.StatusRejeitada])
	}
	for _, rec := range snap[domain.StatusEmAnalise] {
		if rec.ID == "c1" {
			t.Fatal("c1 still present in the superseded column")
		}
	}
}

func TestEventForOtherBoardIgnored(t *testing.T) {
	src := seededSource()
	ch := newFakeChannel()
	c := newCoordinator(t, src, ch)

	ch.deliverMoved(t, domain.CardMoved{
		CardID: "c1", FromColumnID: domain.StatusPendente, ToColumnID: domain.StatusEmAnalise,
		NewOrder: 0, BoardID: "condo-other", MovedBy: "u1", Timestamp: 1,
	})

	snap := c.Snapshot()
	if snap[domain.StatusPendente][0].ID != "c1" {
		t.Fatal("event for another board mutated the projection")
	}
}

func TestPersistenceFailureRevertsAndResyncs(t *testing.T) {
	src := seededSource()
	src.fail = true
	ch := newFakeChannel()
	c := newCoordinator(t, src, ch)

	c.Move(board.MoveIntent{CardID: "c1", From: domain.StatusPendente, To: domain.StatusEmAnalise, Index: 0})

	waitFor(t, "reversion and resync", func() bool {
		snap := c.Snapshot()
		return len(snap[domain.StatusPendente]) == 2 && snap[domain.StatusPendente][0].ID == "c1"
	})
	snap := c.Snapshot()
	for _, rec := range snap[domain.StatusEmAnalise] {
		if rec.ID == "c1" {
			t.Fatal("c1 left in destination after failed persistence")
		}
	}
}

func TestDisconnectRevertsPendingMoves(t *testing.T) {
	src := seededSource()
	ch := newFakeChannel()
	c := newCoordinator(t, src, ch)

	c.Move(board.MoveIntent{CardID: "c1", From: domain.StatusPendente, To: domain.StatusEmAnalise, Index: 0})
	ch.disconnect(errors.New("transport gone"))

	snap := c.Snapshot()
	if len(snap[domain.StatusPendente]) != 2 || snap[domain.StatusPendente][0].ID != "c1" {
		t.Fatalf("pending move not reverted: %+v", snap[domain.StatusPendente])
	}
}
