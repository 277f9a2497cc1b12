package kanban

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/brunogblum/sindicoOnline-sub001/domain"
	"github.com/brunogblum/sindicoOnline-sub001/hub"
)

// fixedOrders always places the card at index 0 so the tests can tell an
// authoritative placement from the optimistic one.
type fixedOrders struct{}

func (fixedOrders) ApplyMove(ctx context.Context, boardID, cardID string, to domain.Status, index int) (int, error) {
	return 0, nil
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetLevel(log.PanicLevel)
	return l
}

// fakeRecords serves the complaint CRUD surface the engine depends on:
// a listing to seed projections and a status patch for persistence.
type fakeRecords struct {
	mu      sync.Mutex
	records []domain.Complaint
	patches []string
	lists   int
}

func (f *fakeRecords) listed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *fakeRecords) patched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.patches))
	copy(out, f.patches)
	return out
}

func (f *fakeRecords) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/complaints":
			f.mu.Lock()
			f.lists++
			body, err := sonic.Marshal(map[string]any{
				"records":    f.records,
				"pagination": map[string]int{"page": 1, "pageSize": 50, "total": len(f.records)},
			})
			f.mu.Unlock()
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(body)
		case r.Method == http.MethodPatch && strings.HasSuffix(r.URL.Path, "/status"):
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/complaints/"), "/status")
			f.mu.Lock()
			f.patches = append(f.patches, id)
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// startBoardService runs a real hub behind an httptest server. The bearer
// token doubles as the user id so each engine gets a distinct identity.
func startBoardService(t *testing.T) *httptest.Server {
	t.Helper()
	h := hub.New(fixedOrders{}, nil, quietLogger())
	go h.Run()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if user == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		hub.ServeWS(h, w, r, user, "MORADOR")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openEngine(t *testing.T, boardSrv, recordsSrv *httptest.Server, user string) *Engine {
	t.Helper()
	e := New(Config{
		Endpoint:      "ws" + strings.TrimPrefix(boardSrv.URL, "http"),
		Token:         user,
		RecordsURL:    recordsSrv.URL,
		BoardID:       "condo-1",
		ParticipantID: user,
		Role:          "MORADOR",
		Logger:        quietLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := e.Open(ctx); err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

// settle waits until the engine has finished both its initial seed and the
// resync triggered by the connect callback, so a later drop cannot be
// overwritten by an in-flight listing.
func settle(t *testing.T, e *Engine, src *fakeRecords) {
	t.Helper()
	waitFor(t, func() bool { return src.listed() >= 2 }, "connect resync never ran")
	time.Sleep(50 * time.Millisecond)
	e.Coordinator.Snapshot()
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func seedRecords() []domain.Complaint {
	return []domain.Complaint{
		{ID: "c1", Category: "limpeza", Status: domain.StatusPendente, CreatedAt: 10},
		{ID: "c2", Category: "obras", Status: domain.StatusPendente, CreatedAt: 20},
		{ID: "c3", Category: "barulho", Status: domain.StatusEmAnalise, CreatedAt: 30},
	}
}

func columnIDs(e *Engine, s domain.Status) []string {
	snap := e.Coordinator.Snapshot()
	ids := make([]string, 0, len(snap[s]))
	for _, rec := range snap[s] {
		ids = append(ids, rec.ID)
	}
	return ids
}

func TestDropConvergesToAuthoritativePlacement(t *testing.T) {
	src := &fakeRecords{records: seedRecords()}
	recordsSrv := httptest.NewServer(src.handler())
	defer recordsSrv.Close()
	boardSrv := startBoardService(t)

	e := openEngine(t, boardSrv, recordsSrv, "alice")
	settle(t, e, src)

	e.Drop("c1", string(domain.StatusEmAnalise))

	// The order store pins every move at index 0, so the echoed event must
	// place c1 ahead of c3 regardless of the optimistic append.
	waitFor(t, func() bool {
		ids := columnIDs(e, domain.StatusEmAnalise)
		return len(ids) == 2 && ids[0] == "c1" && ids[1] == "c3"
	}, "move did not converge to the authoritative placement")
	waitFor(t, func() bool {
		ids := columnIDs(e, domain.StatusPendente)
		return len(ids) == 1 && ids[0] == "c2"
	}, "origin column not updated")
	waitFor(t, func() bool {
		p := src.patched()
		return len(p) == 1 && p[0] == "c1"
	}, "status change not persisted")
}

func TestIllegalDropIsSilentlyDiscarded(t *testing.T) {
	src := &fakeRecords{records: seedRecords()}
	recordsSrv := httptest.NewServer(src.handler())
	defer recordsSrv.Close()
	boardSrv := startBoardService(t)

	e := openEngine(t, boardSrv, recordsSrv, "alice")
	settle(t, e, src)

	e.Drop("c3", string(domain.StatusPendente))
	e.Drop("c1", "ghost-target")

	time.Sleep(100 * time.Millisecond)
	if got := columnIDs(e, domain.StatusEmAnalise); len(got) != 1 || got[0] != "c3" {
		t.Fatalf("illegal drop mutated the board: %v", got)
	}
	if p := src.patched(); len(p) != 0 {
		t.Fatalf("illegal drop reached the record source: %v", p)
	}
}

func TestTwoEnginesConvergeOnTheSameBoard(t *testing.T) {
	src := &fakeRecords{records: seedRecords()}
	recordsSrv := httptest.NewServer(src.handler())
	defer recordsSrv.Close()
	boardSrv := startBoardService(t)

	alice := openEngine(t, boardSrv, recordsSrv, "alice")
	bob := openEngine(t, boardSrv, recordsSrv, "bob")
	waitFor(t, func() bool { return src.listed() >= 4 }, "connect resyncs never ran")
	time.Sleep(50 * time.Millisecond)
	for _, e := range []*Engine{alice, bob} {
		e.Coordinator.Snapshot()
	}

	alice.Drop("c2", "c3") // drop onto a card: insert before it

	for _, e := range []*Engine{alice, bob} {
		waitFor(t, func() bool {
			ids := columnIDs(e, domain.StatusEmAnalise)
			return len(ids) == 2 && ids[0] == "c2" && ids[1] == "c3"
		}, "engines did not converge on the echoed placement")
	}
}
