package donor

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"lifelink/internal/bloodtype"
	"lifelink/internal/geo"
	dErrors "lifelink/pkg/domain-errors"
	"lifelink/pkg/platform/sentinel"
	"lifelink/pkg/requestcontext"
)

// Service exposes the open donor search surface. Candidate selection for a
// specific request lives in the matching package; this service serves the
// browse/search views that do not belong to any one request.
type Service struct {
	store  Store
	logger *slog.Logger
	limit  int
}

type Option func(*Service)

func WithSearchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{store: store, logger: logger, limit: 20}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// SearchInput narrows the open donor search.
type SearchInput struct {
	BloodType string
	City      string
	State     string
}

// Search lists active, available donors matching the filter, ranked the
// same way matching ranks candidates so both surfaces agree on ordering.
func (s *Service) Search(ctx context.Context, in SearchInput) ([]Summary, error) {
	f := Filter{City: in.City, State: in.State}
	if in.BloodType != "" {
		bt, err := bloodtype.Parse(in.BloodType)
		if err != nil {
			return nil, err
		}
		f.BloodType = bt
	}

	donors, err := s.store.List(ctx, f)
	if err != nil {
		return nil, storeError(err, "failed to search donors")
	}

	SortForMatching(donors)
	if len(donors) > s.limit {
		donors = donors[:s.limit]
	}

	now := requestcontext.Now(ctx)
	out := make([]Summary, 0, len(donors))
	for _, d := range donors {
		out = append(out, Summarize(d, now))
	}
	return out, nil
}

// NearbyInput bounds a radius search around a coordinate.
type NearbyInput struct {
	Latitude  float64
	Longitude float64
	BloodType string
	RadiusKm  float64
}

// Nearby lists donors within the radius sorted by distance. Donors without
// coordinates never appear here; they remain reachable through Search.
func (s *Service) Nearby(ctx context.Context, in NearbyInput) ([]Summary, error) {
	if in.RadiusKm <= 0 {
		in.RadiusKm = 50
	}

	f := Filter{OnlyWithLocation: true}
	if in.BloodType != "" {
		bt, err := bloodtype.Parse(in.BloodType)
		if err != nil {
			return nil, err
		}
		f.BloodType = bt
	}

	donors, err := s.store.List(ctx, f)
	if err != nil {
		return nil, storeError(err, "failed to search nearby donors")
	}

	origin := geo.Point{Latitude: in.Latitude, Longitude: in.Longitude}
	now := requestcontext.Now(ctx)

	type scored struct {
		summary  Summary
		distance float64
	}
	var within []scored
	for _, d := range donors {
		dist := geo.Distance(origin, *d.Coordinates)
		if dist > in.RadiusKm {
			continue
		}
		sum := Summarize(d, now)
		distCopy := dist
		sum.DistanceKm = &distCopy
		within = append(within, scored{summary: sum, distance: dist})
	}

	sort.Slice(within, func(i, j int) bool { return within[i].distance < within[j].distance })
	if len(within) > s.limit {
		within = within[:s.limit]
	}

	out := make([]Summary, 0, len(within))
	for _, sc := range within {
		out = append(out, sc.summary)
	}
	return out, nil
}

// Profile returns one donor with derived eligibility flags.
func (s *Service) Profile(ctx context.Context, id string) (Summary, error) {
	d, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Summary{}, dErrors.New(dErrors.CodeNotFound, "donor not found")
		}
		return Summary{}, storeError(err, "failed to load donor")
	}
	return Summarize(d, requestcontext.Now(ctx)), nil
}

// SortForMatching orders donors by how overdue they are for a donation:
// never-donated first, then oldest LastDonationDate; ties go to newer
// registrations.
func SortForMatching(donors []Donor) {
	sort.SliceStable(donors, func(i, j int) bool {
		a, b := donors[i], donors[j]
		switch {
		case a.LastDonationDate == nil && b.LastDonationDate != nil:
			return true
		case a.LastDonationDate != nil && b.LastDonationDate == nil:
			return false
		case a.LastDonationDate != nil && b.LastDonationDate != nil:
			if !a.LastDonationDate.Equal(*b.LastDonationDate) {
				return a.LastDonationDate.Before(*b.LastDonationDate)
			}
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func storeError(err error, msg string) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
