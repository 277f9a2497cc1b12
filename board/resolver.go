package board

import "github.com/brunogblum/sindicoOnline-sub001/domain"

// MoveIntent is the domain-level outcome of one drag gesture. It is
// consumed immediately by the move coordinator and never persisted.
type MoveIntent struct {
	CardID string
	From   domain.Status
	To     domain.Status
	Index  int
}

// ResolveDrop maps a raw drag-end outcome onto a MoveIntent. dropTarget is
// whatever the pointer was released over: a column key or another card's
// id. A column target appends to the end of that column; a card target
// inserts before that card at its current position. The origin column is
// always read from the dragged card's current status in the projection,
// never from pointer history, since the gesture may span a stale render.
// Resolution fails without error when either the dragged card or the drop
// target cannot be found; the projection is expected to self-correct on
// the next refresh.
func ResolveDrop(p *Projection, cardID, dropTarget string) (MoveIntent, bool) {
	from, _, ok := p.Locate(cardID)
	if !ok {
		return MoveIntent{}, false
	}

	if col := domain.Status(dropTarget); domain.KnownStatus(col) {
		return MoveIntent{CardID: cardID, From: from, To: col, Index: p.Len(col)}, true
	}

	col, idx, ok := p.Locate(dropTarget)
	if !ok {
		return MoveIntent{}, false
	}
	return MoveIntent{CardID: cardID, From: from, To: col, Index: idx}, true
}
