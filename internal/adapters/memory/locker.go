// internal/adapters/memory/locker.go
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// Locker is an in-process ports.ProductLocker. Each product id maps to a
// one-slot channel; idle entries are dropped when their last holder leaves.
type Locker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

var _ ports.ProductLocker = (*Locker)(nil)

// NewLocker returns an empty locker.
func NewLocker() *Locker {
	return &Locker{slots: make(map[string]*slot)}
}

// Lock acquires every id in sorted order so two callers locking overlapping
// sets cannot deadlock.
func (l *Locker) Lock(ctx context.Context, productIDs ...string) (func(), error) {
	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]string, 0, len(ids))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}

	for _, id := range ids {
		s := l.acquireRef(id)
		select {
		case s.ch <- struct{}{}:
			held = append(held, id)
		case <-ctx.Done():
			l.dropRef(id)
			release()
			return nil, fmt.Errorf("failed to lock product %s: %w", id, ctx.Err())
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *Locker) acquireRef(id string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

func (l *Locker) dropRef(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.slots[id]; ok {
		s.refs--
		if s.refs == 0 {
			delete(l.slots, id)
		}
	}
}

func (l *Locker) release(id string) {
	l.mu.Lock()
	s := l.slots[id]
	l.mu.Unlock()
	<-s.ch
	l.dropRef(id)
}
