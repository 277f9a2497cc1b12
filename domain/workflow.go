package domain

// Columns returns the board columns in display order. Every complaint status
// maps to exactly one column.
func Columns() []Status {
	return []Status{StatusPendente, StatusEmAnalise, StatusResolvida, StatusRejeitada}
}

// KnownStatus reports whether s belongs to the closed status set.
func KnownStatus(s Status) bool {
	switch s {
	case StatusPendente, StatusEmAnalise, StatusResolvida, StatusRejeitada:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusResolvida || s == StatusRejeitada
}

var transitions = map[Status]map[Status]bool{
	StatusPendente:  {StatusEmAnalise: true, StatusRejeitada: true},
	StatusEmAnalise: {StatusResolvida: true, StatusRejeitada: true},
}

// CanTransition reports whether moving a complaint from one status to
// another is a legal workflow transition. It is false for self transitions,
// for any pair involving an unknown status and for every pair originating
// in a terminal status. This is the single gate deciding which board moves
// may be applied or relayed.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}
