package position

import "sync"

// Book holds the latest snapshot of open positions, keyed by position ID.
// The scan loop replaces its contents on every reconcile; positions that
// vanish from the feed are reported back as resolved.
type Book struct {
	mu        sync.RWMutex
	positions map[string]Position
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{positions: make(map[string]Position)}
}

// Reconcile replaces the book with the latest snapshot and returns the
// positions that were open before but are gone now (closed, assigned or
// expired upstream). Invalid snapshot rows are dropped.
func (b *Book) Reconcile(snapshot []Position) (resolved []Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[string]Position, len(snapshot))
	for _, p := range snapshot {
		if err := p.Validate(); err != nil {
			continue
		}
		next[p.ID] = p
	}

	for id, p := range b.positions {
		if _, ok := next[id]; !ok {
			resolved = append(resolved, p)
		}
	}

	b.positions = next
	return resolved
}

// List returns a copy of all open positions.
func (b *Book) List() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out
}

// Get returns the position with the given ID.
func (b *Book) Get(id string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[id]
	return p, ok
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}
