package board

import (
	"sort"

	"github.com/brunogblum/sindicoOnline-sub001/domain"
)

// Projection is the per-column ordered partition of a board's complaints.
// It is owned by a single writer (the move coordinator); everything else
// reads immutable snapshots. Every complaint id appears in exactly one
// column, the one matching its current status.
type Projection struct {
	columns map[domain.Status][]domain.Complaint
}

// Project partitions records into columns. The sort is stable: creation
// timestamp ascending, ties broken by id, so re-projecting the same
// collection always yields the same order. Records with a status outside
// the closed set are dropped rather than failing the whole board.
func Project(records []domain.Complaint) *Projection {
	sorted := make([]domain.Complaint, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].ID < sorted[j].ID
	})

	p := &Projection{columns: make(map[domain.Status][]domain.Complaint, len(domain.Columns()))}
	for _, s := range domain.Columns() {
		p.columns[s] = []domain.Complaint{}
	}
	for _, rec := range sorted {
		if !domain.KnownStatus(rec.Status) {
			continue
		}
		p.columns[rec.Status] = append(p.columns[rec.Status], rec)
	}
	return p
}

// FromColumns rebuilds a projection from a column snapshot, preserving the
// per-column order exactly as given. Keys outside the closed status set are
// dropped. The input slices are copied, so the caller keeps ownership.
func FromColumns(columns map[domain.Status][]domain.Complaint) *Projection {
	p := &Projection{columns: make(map[domain.Status][]domain.Complaint, len(domain.Columns()))}
	for _, s := range domain.Columns() {
		col := columns[s]
		cp := make([]domain.Complaint, len(col))
		copy(cp, col)
		p.columns[s] = cp
	}
	return p
}

// Column returns a copy of the ordered records in the given column.
func (p *Projection) Column(s domain.Status) []domain.Complaint {
	col := p.columns[s]
	out := make([]domain.Complaint, len(col))
	copy(out, col)
	return out
}

// Len returns the number of cards in the given column.
func (p *Projection) Len(s domain.Status) int {
	return len(p.columns[s])
}

// Locate finds the column and index currently holding the card.
func (p *Projection) Locate(cardID string) (domain.Status, int, bool) {
	for _, s := range domain.Columns() {
		for i, rec := range p.columns[s] {
			if rec.ID == cardID {
				return s, i, true
			}
		}
	}
	return "", 0, false
}

// Get returns the card by id, wherever it currently sits.
func (p *Projection) Get(cardID string) (domain.Complaint, bool) {
	s, i, ok := p.Locate(cardID)
	if !ok {
		return domain.Complaint{}, false
	}
	return p.columns[s][i], true
}

// Place moves the card to the target column at the given index, updating
// its status to match the column. The card is removed from wherever it
// currently is, so replaying an authoritative event over an optimistic
// placement converges instead of duplicating. Placing a card that is
// already at the stated column and index is a no-op. Indexes out of range
// are clamped to the column bounds. Returns false when the card is unknown
// or the column is not part of the closed status set.
func (p *Projection) Place(cardID string, to domain.Status, index int) bool {
	if !domain.KnownStatus(to) {
		return false
	}
	cur, curIdx, ok := p.Locate(cardID)
	if !ok {
		return false
	}
	if cur == to && curIdx == index {
		return true
	}

	rec := p.columns[cur][curIdx]
	p.columns[cur] = append(p.columns[cur][:curIdx], p.columns[cur][curIdx+1:]...)

	if index < 0 {
		index = 0
	}
	if index > len(p.columns[to]) {
		index = len(p.columns[to])
	}
	rec.Status = to
	col := p.columns[to]
	col = append(col, domain.Complaint{})
	copy(col[index+1:], col[index:])
	col[index] = rec
	p.columns[to] = col
	return true
}

// Snapshot returns a deep copy safe for concurrent readers.
func (p *Projection) Snapshot() map[domain.Status][]domain.Complaint {
	out := make(map[domain.Status][]domain.Complaint, len(p.columns))
	for s, col := range p.columns {
		cp := make([]domain.Complaint, len(col))
		copy(cp, col)
		out[s] = cp
	}
	return out
}

// Size returns the total number of cards across all columns.
func (p *Projection) Size() int {
	n := 0
	for _, col := range p.columns {
		n += len(col)
	}
	return n
}
