package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in process. Watch handlers are called
// synchronously from Save.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]Snapshot
	watchers map[string][]*watcher
}

type watcher struct {
	handler func(*Snapshot)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]Snapshot),
		watchers: make(map[string][]*watcher),
	}
}

func (s *MemoryStore) Save(_ context.Context, docID string, snap *Snapshot) error {
	s.mu.Lock()
	if cur, ok := s.docs[docID]; ok && cur.Revision >= snap.Revision {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is at %d, snapshot is %d", ErrStale, docID, cur.Revision, snap.Revision)
	}
	snap.LastModified = time.Now().UnixMilli()
	stored := *snap
	stored.State = slices.Clone(snap.State)
	s.docs[docID] = stored
	watchers := slices.Clone(s.watchers[docID])
	s.mu.Unlock()

	for _, w := range watchers {
		announced := stored
		w.handler(&announced)
	}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, docID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.docs[docID]
	if !ok {
		return nil, ErrNotFound
	}
	snap.State = slices.Clone(snap.State)
	return &snap, nil
}

func (s *MemoryStore) Delete(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, docID)
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context, docID string, handler func(*Snapshot)) error {
	w := &watcher{handler: handler}
	s.mu.Lock()
	s.watchers[docID] = append(s.watchers[docID], w)
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	s.watchers[docID] = slices.DeleteFunc(s.watchers[docID], func(other *watcher) bool { return other == w })
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
