// Package matching selects and ranks donor candidates for a blood request.
// Selection is read-only; the request lifecycle service decides what to do
// with the candidates.
package matching

import (
	"context"
	"time"

	"lifelink/internal/bloodtype"
	"lifelink/internal/donor"
	"lifelink/internal/geo"
	"lifelink/internal/matching/metrics"
	dErrors "lifelink/pkg/domain-errors"
	"lifelink/pkg/requestcontext"
)

// DonorPool is the slice of the donor store the selector needs.
type DonorPool interface {
	ListCompatible(ctx context.Context, types []bloodtype.BloodType, excludeID string) ([]donor.Donor, error)
}

// Selector applies compatibility, eligibility and ranking rules over the
// donor pool.
type Selector struct {
	pool    DonorPool
	metrics *metrics.Metrics
}

type Option func(*Selector)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Selector) {
		s.metrics = m
	}
}

func NewSelector(pool DonorPool, opts ...Option) *Selector {
	sel := &Selector{pool: pool}
	for _, opt := range opts {
		opt(sel)
	}
	return sel
}

// Query describes one selection run.
type Query struct {
	BloodType bloodtype.BloodType
	// ExcludeUserID removes the requester from the pool even when
	// biologically compatible.
	ExcludeUserID string
	MaxCount      int
	// Origin and RadiusKm optionally bound the pool geographically. Donors
	// without coordinates are dropped only when a radius is set.
	Origin   *geo.Point
	RadiusKm float64
}

// SelectCandidates returns at most MaxCount eligible donors ranked by how
// overdue they are for a donation (never-donated first, then oldest last
// donation, newest registration breaking ties). The eligibility clock is
// requestcontext.Now so a matching pass and its persistence see one time.
func (s *Selector) SelectCandidates(ctx context.Context, q Query) ([]donor.Donor, error) {
	start := time.Now()

	types := bloodtype.CompatibleDonorTypes(q.BloodType)
	if len(types) == 0 {
		// Unknown recipient type; the contract is zero candidates, not an error.
		s.metrics.ObserveSelection(q.BloodType.String(), 0, time.Since(start))
		return nil, nil
	}

	pool, err := s.pool.ListCompatible(ctx, types, q.ExcludeUserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query donor pool")
	}

	now := requestcontext.Now(ctx)
	eligible := pool[:0]
	for _, d := range pool {
		if !d.CanDonate(now) {
			continue
		}
		if q.Origin != nil {
			if d.Coordinates == nil {
				continue
			}
			if geo.Distance(*q.Origin, *d.Coordinates) > q.RadiusKm {
				continue
			}
		}
		eligible = append(eligible, d)
	}

	donor.SortForMatching(eligible)
	if q.MaxCount > 0 && len(eligible) > q.MaxCount {
		eligible = eligible[:q.MaxCount]
	}

	s.metrics.ObserveSelection(q.BloodType.String(), len(eligible), time.Since(start))
	return eligible, nil
}
