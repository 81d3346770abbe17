// Package stats aggregates per-blood-type counts across the donor pool,
// the open requests, and the donation ledger.
package stats

import (
	"context"
	"log/slog"

	"lifelink/internal/bloodtype"
	domainerrors "lifelink/pkg/domain-errors"
)

// BloodTypeStats is one row of the availability dashboard.
type BloodTypeStats struct {
	BloodType          string `json:"bloodType"`
	AvailableDonors    int    `json:"availableDonors"`
	ActiveRequests     int    `json:"activeRequests"`
	CompletedDonations int    `json:"completedDonations"`
}

type DonorCounter interface {
	CountByBloodType(ctx context.Context) (map[bloodtype.BloodType]int, error)
}

type RequestCounter interface {
	CountActiveByBloodType(ctx context.Context) (map[string]int, error)
}

type DonationCounter interface {
	CountCompletedByBloodType(ctx context.Context) (map[string]int, error)
}

type Service struct {
	donors    DonorCounter
	requests  RequestCounter
	donations DonationCounter
	logger    *slog.Logger
}

func NewService(donors DonorCounter, requests RequestCounter, donations DonationCounter, logger *slog.Logger) *Service {
	return &Service{donors: donors, requests: requests, donations: donations, logger: logger}
}

// ByBloodType returns one row per known blood type, zero-filled so the
// dashboard always renders all eight rows.
func (s *Service) ByBloodType(ctx context.Context) ([]BloodTypeStats, error) {
	donorCounts, err := s.donors.CountByBloodType(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to count donors")
	}
	requestCounts, err := s.requests.CountActiveByBloodType(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to count requests")
	}
	donationCounts, err := s.donations.CountCompletedByBloodType(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to count donations")
	}

	out := make([]BloodTypeStats, 0, len(bloodtype.All))
	for _, bt := range bloodtype.All {
		out = append(out, BloodTypeStats{
			BloodType:          bt.String(),
			AvailableDonors:    donorCounts[bt],
			ActiveRequests:     requestCounts[bt.String()],
			CompletedDonations: donationCounts[bt.String()],
		})
	}
	return out, nil
}
