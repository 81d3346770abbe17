package donor

import (
	"context"
	"time"

	"lifelink/internal/bloodtype"
)

// Filter narrows donor listings. Zero values mean "no constraint".
type Filter struct {
	BloodType        bloodtype.BloodType
	City             string
	State            string
	OnlyWithLocation bool
}

// Store is interface-driven to keep the matching logic testable and to allow
// swapping in-memory and PostgreSQL persistence without rewiring services.
// Implementations return pkg/platform/sentinel errors for infrastructure
// facts; callers translate them into domain errors.
type Store interface {
	Save(ctx context.Context, d Donor) error
	FindByID(ctx context.Context, id string) (Donor, error)

	// ListCompatible returns active, available donors whose blood type is in
	// types, excluding excludeID. Order is unspecified; the selector ranks.
	ListCompatible(ctx context.Context, types []bloodtype.BloodType, excludeID string) ([]Donor, error)

	// List returns active, available donors matching the filter.
	List(ctx context.Context, f Filter) ([]Donor, error)

	// SetLastDonationDate records a completed donation for eligibility
	// bookkeeping.
	SetLastDonationDate(ctx context.Context, id string, donatedAt time.Time) error

	// CountByBloodType aggregates active donors per type for the stats view.
	CountByBloodType(ctx context.Context) (map[bloodtype.BloodType]int, error)
}
