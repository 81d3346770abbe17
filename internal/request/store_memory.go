package request

import (
	"context"
	"sort"
	"sync"
	"time"

	"lifelink/pkg/platform/sentinel"
)

// InMemoryStore keeps requests in a map guarded by a RWMutex. The version
// check under the write lock gives the same CAS semantics as the SQL
// conditional update, so the concurrency tests run without a database.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*BloodRequest
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[string]*BloodRequest)}
}

func (s *InMemoryStore) Save(ctx context.Context, req *BloodRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, id string) (*BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return req.Clone(), nil
}

func (s *InMemoryStore) Update(ctx context.Context, req *BloodRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[req.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != req.Version {
		return sentinel.ErrConflict
	}
	next := req.Clone()
	next.Version++
	s.requests[req.ID] = next
	req.Version = next.Version
	return nil
}

func (s *InMemoryStore) List(ctx context.Context, f Filter) ([]*BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*BloodRequest
	for _, req := range s.requests {
		if f.RequesterID != "" && req.RequesterID != f.RequesterID {
			continue
		}
		if f.Status != "" && req.Status != f.Status {
			continue
		}
		if f.BloodType != "" && string(req.BloodType) != f.BloodType {
			continue
		}
		if f.OnlyActive && !req.IsActive {
			continue
		}
		out = append(out, req.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Urgency.Rank() != out[j].Urgency.Rank() {
			return out[i].Urgency.Rank() > out[j].Urgency.Rank()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) ListExpirable(ctx context.Context, cutoff time.Time) ([]*BloodRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*BloodRequest
	for _, req := range s.requests {
		if req.Status.IsTerminal() {
			continue
		}
		if req.ExpiryDate.After(cutoff) {
			continue
		}
		out = append(out, req.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) CountActiveByBloodType(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, req := range s.requests {
		if !req.IsActive || req.Status.IsTerminal() {
			continue
		}
		counts[string(req.BloodType)]++
	}
	return counts, nil
}
