package secretstore

import (
	"context"
	"sync"
	"time"

	"github.com/escion333/fusion-plus-xlm-sub000/internal/chainmodel"
)

// Memory is an in-process Store, sufficient for tests and for the
// single-process deployments spec.md §4.1 allows for a "pure in-memory
// variant".
type Memory struct {
	mu        sync.Mutex
	byOrder   map[chainmodel.OrderHash]*Record
	byHashlock map[chainmodel.Hashlock]*Record
	now       func() time.Time
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		byOrder:    make(map[chainmodel.OrderHash]*Record),
		byHashlock: make(map[chainmodel.Hashlock]*Record),
		now:        time.Now,
	}
}

func (m *Memory) NewSecret(ctx context.Context) (chainmodel.Preimage, error) {
	return newPreimage()
}

func (m *Memory) BindToOrder(ctx context.Context, orderHash chainmodel.OrderHash, preimage chainmodel.Preimage, hashlock chainmodel.Hashlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.byOrder[orderHash]; ok {
		if rec.hasPreimage() && rec.Preimage != preimage {
			return ErrAlreadyBound
		}
		if rec.hasPreimage() {
			return nil
		}
		rec.Preimage = preimage
		rec.Hashlock = hashlock
		if !hashlock.IsZero() {
			m.byHashlock[hashlock] = rec
		}
		return nil
	}

	rec := &Record{OrderHash: orderHash, Preimage: preimage, Hashlock: hashlock}
	m.byOrder[orderHash] = rec
	if !hashlock.IsZero() {
		m.byHashlock[hashlock] = rec
	}
	return nil
}

func (m *Memory) GetByOrder(ctx context.Context, orderHash chainmodel.OrderHash) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byOrder[orderHash]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

func (m *Memory) GetByHashlock(ctx context.Context, hashlock chainmodel.Hashlock) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byHashlock[hashlock]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// RecordReveal creates or updates a record indexed by both orderHash and
// hashlock, mirroring BindToOrder's indexing.
func (m *Memory) RecordReveal(ctx context.Context, orderHash chainmodel.OrderHash, preimage chainmodel.Preimage, hashlock chainmodel.Hashlock) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byOrder[orderHash]
	if !ok {
		rec = &Record{OrderHash: orderHash, Preimage: preimage, Hashlock: hashlock, RevealedAt: m.now()}
		m.byOrder[orderHash] = rec
		if !hashlock.IsZero() {
			m.byHashlock[hashlock] = rec
		}
		return *rec, nil
	}
	if rec.hasPreimage() && rec.Preimage != preimage {
		return Record{}, ErrPreimageMismatch
	}
	rec.Preimage = preimage
	if rec.Hashlock.IsZero() && !hashlock.IsZero() {
		rec.Hashlock = hashlock
		m.byHashlock[hashlock] = rec
	}
	if !rec.isRevealed() {
		rec.RevealedAt = m.now()
	}
	return *rec, nil
}

func (m *Memory) GC(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, rec := range m.byOrder {
		if rec.isRevealed() && rec.RevealedAt.Before(olderThan) {
			delete(m.byOrder, k)
			if !rec.Hashlock.IsZero() {
				delete(m.byHashlock, rec.Hashlock)
			}
			n++
		}
	}
	return n, nil
}

var _ Store = (*Memory)(nil)
