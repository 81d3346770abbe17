package donation

import (
	"context"
	"sort"
	"sync"

	"lifelink/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	donations map[string]*Donation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{donations: make(map[string]*Donation)}
}

func (s *InMemoryStore) Save(ctx context.Context, d *Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.donations[d.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, id string) (*Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donations[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *InMemoryStore) ListByDonor(ctx context.Context, donorID string) ([]*Donation, error) {
	return s.list(func(d *Donation) bool { return d.DonorID == donorID })
}

func (s *InMemoryStore) ListByRequest(ctx context.Context, requestID string) ([]*Donation, error) {
	return s.list(func(d *Donation) bool { return d.RequestID == requestID })
}

func (s *InMemoryStore) list(match func(*Donation) bool) ([]*Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Donation
	for _, d := range s.donations {
		if match(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DonatedAt.After(out[j].DonatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) CountCompletedByBloodType(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, d := range s.donations {
		if d.Status == StatusCompleted {
			counts[d.BloodType]++
		}
	}
	return counts, nil
}
