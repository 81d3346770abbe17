package donor

import (
	"context"
	"strings"
	"sync"
	"time"

	"lifelink/internal/bloodtype"
	"lifelink/pkg/platform/sentinel"
)

// InMemoryStore keeps donors in a mutex-guarded map. It backs unit tests and
// single-node deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	donors map[string]Donor
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{donors: make(map[string]Donor)}
}

func (s *InMemoryStore) Save(_ context.Context, d Donor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donors[d.ID] = cloneDonor(d)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donors[id]
	if !ok {
		return Donor{}, sentinel.ErrNotFound
	}
	return cloneDonor(d), nil
}

func (s *InMemoryStore) ListCompatible(_ context.Context, types []bloodtype.BloodType, excludeID string) ([]Donor, error) {
	wanted := make(map[bloodtype.BloodType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Donor
	for _, d := range s.donors {
		if d.ID == excludeID || !d.IsActive || !d.IsAvailable {
			continue
		}
		if !wanted[d.BloodType] {
			continue
		}
		out = append(out, cloneDonor(d))
	}
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context, f Filter) ([]Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Donor
	for _, d := range s.donors {
		if !d.IsActive || !d.IsAvailable {
			continue
		}
		if f.BloodType != "" && d.BloodType != f.BloodType {
			continue
		}
		if f.City != "" && !strings.EqualFold(d.City, f.City) {
			continue
		}
		if f.State != "" && !strings.EqualFold(d.State, f.State) {
			continue
		}
		if f.OnlyWithLocation && d.Coordinates == nil {
			continue
		}
		out = append(out, cloneDonor(d))
	}
	return out, nil
}

func (s *InMemoryStore) SetLastDonationDate(_ context.Context, id string, donatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donors[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	t := donatedAt
	d.LastDonationDate = &t
	s.donors[id] = d
	return nil
}

func (s *InMemoryStore) CountByBloodType(_ context.Context) (map[bloodtype.BloodType]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[bloodtype.BloodType]int)
	for _, d := range s.donors {
		if d.IsActive {
			counts[d.BloodType]++
		}
	}
	return counts, nil
}

func cloneDonor(d Donor) Donor {
	if d.LastDonationDate != nil {
		t := *d.LastDonationDate
		d.LastDonationDate = &t
	}
	if d.Coordinates != nil {
		p := *d.Coordinates
		d.Coordinates = &p
	}
	return d
}
