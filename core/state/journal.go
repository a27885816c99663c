// Package state holds the mutable world state shared by the ledgers: native
// currency balances, emitted logs, and the undo journal that makes every
// call commit or revert as a unit.
package state

import "sync"

// Journal is an undo log. Every mutation of shared state appends the
// closure that undoes it; reverting to a snapshot replays those closures
// newest first.
type Journal struct {
	mu   sync.Mutex
	undo []func()
}

func NewJournal() *Journal {
	return &Journal{}
}

// Append records an undo action for a mutation that has just been applied.
func (j *Journal) Append(undo func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.undo = append(j.undo, undo)
}

// Snapshot returns an identifier for the current journal position.
func (j *Journal) Snapshot() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.undo)
}

// RevertToSnapshot undoes every mutation recorded after the snapshot.
func (j *Journal) RevertToSnapshot(id int) {
	j.mu.Lock()
	pending := append([]func(){}, j.undo[id:]...)
	j.undo = j.undo[:id]
	j.mu.Unlock()

	// Undo closures run without the lock so they may touch journaled state.
	for i := len(pending) - 1; i >= 0; i-- {
		pending[i]()
	}
}

// Commit drops all recorded undo actions; nothing before this point can be
// reverted anymore.
func (j *Journal) Commit() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.undo = j.undo[:0]
}

// Len returns the number of pending undo actions.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.undo)
}
