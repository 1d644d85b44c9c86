// Package refs issues and resolves the temporary identifiers that link
// extracted elements across pipeline phases before they have durable store
// identities. One Tracker exists per unit run and is discarded with it.
package refs

import "fmt"

// UnknownReferenceError signals that a phase referenced a temporary id that
// was never issued during this run. It indicates a model-contract violation
// and is handled as a phase failure, never a crash.
type UnknownReferenceError struct {
	ID int
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown temporary reference %d", e.ID)
}

// Tracker is an arena-style allocator of run-scoped integer ids. It is not
// safe for concurrent use; a run executes on a single worker.
type Tracker struct {
	next  int
	elems map[int]any
}

// NewTracker creates an empty tracker. Ids start at 1.
func NewTracker() *Tracker {
	return &Tracker{next: 1, elems: make(map[int]any)}
}

// Register assigns the next temporary id to el and returns it.
func (t *Tracker) Register(el any) int {
	id := t.next
	t.next++
	t.elems[id] = el
	return id
}

// Resolve returns the element registered under id, or an
// UnknownReferenceError if the id was never issued in this run.
func (t *Tracker) Resolve(id int) (any, error) {
	el, ok := t.elems[id]
	if !ok {
		return nil, &UnknownReferenceError{ID: id}
	}
	return el, nil
}

// Known reports whether id was issued during this run.
func (t *Tracker) Known(id int) bool {
	_, ok := t.elems[id]
	return ok
}

// Count returns the number of registered elements.
func (t *Tracker) Count() int { return len(t.elems) }
