package lending

import (
	"context"
	"sync"
)

// Store persists reserves and positions. Commit must apply the whole snapshot
// atomically or not at all.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Commit(ctx context.Context, changes *Snapshot) error
}

// MemoryStore is a Store kept in process memory. It is mainly useful for tests
// and ephemeral pools.
type MemoryStore struct {
	mu        sync.Mutex
	reserves  map[string]*Reserve
	positions map[string]*Position
	commits   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reserves:  make(map[string]*Reserve),
		positions: make(map[string]*Position),
	}
}

func (s *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &Snapshot{}
	for _, r := range s.reserves {
		out.Reserves = append(out.Reserves, r.Clone())
	}
	for _, p := range s.positions {
		out.Positions = append(out.Positions, p.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Commit(ctx context.Context, changes *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if changes.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range changes.Reserves {
		s.reserves[r.Asset] = r.Clone()
	}
	for _, p := range changes.Positions {
		s.positions[p.User+"/"+p.Asset] = p.Clone()
	}
	s.commits++
	return nil
}

// Commits returns the number of non-empty batches applied.
func (s *MemoryStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}
