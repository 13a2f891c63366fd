package engine

import "github.com/xtrntr/crash/internal/models"

// Ledger holds the mutable bet/cashout state for the current round only.
// It is owned and mutated exclusively by the Engine under its mutex, so
// it carries no locking of its own.
type Ledger struct {
	activeWagers map[int]models.Wager
	cashedOut    map[int]struct{}
	order        []models.Wager // wagers in placement order
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	l := &Ledger{}
	l.Reset()
	return l
}

// Reset clears all wagers and cashouts. Called once at the start of each
// betting phase.
func (l *Ledger) Reset() {
	l.activeWagers = make(map[int]models.Wager)
	l.cashedOut = make(map[int]struct{})
	l.order = nil
}

// HasWager reports whether the user already wagered this round
func (l *Ledger) HasWager(userID int) bool {
	_, ok := l.activeWagers[userID]
	return ok
}

// Wager returns the user's active wager for this round
func (l *Ledger) Wager(userID int) (models.Wager, bool) {
	w, ok := l.activeWagers[userID]
	return w, ok
}

// AddWager records a wager. The caller has already checked HasWager.
func (l *Ledger) AddWager(w models.Wager) {
	l.activeWagers[w.UserID] = w
	l.order = append(l.order, w)
}

// WagerList returns this round's wagers in placement order
func (l *Ledger) WagerList() []models.Wager {
	out := make([]models.Wager, len(l.order))
	copy(out, l.order)
	return out
}

// HasCashedOut reports whether the user already cashed out this round
func (l *Ledger) HasCashedOut(userID int) bool {
	_, ok := l.cashedOut[userID]
	return ok
}

// MarkCashedOut records that the user cashed out this round
func (l *Ledger) MarkCashedOut(userID int) {
	l.cashedOut[userID] = struct{}{}
}

// WagerCount returns the number of active wagers
func (l *Ledger) WagerCount() int {
	return len(l.activeWagers)
}
