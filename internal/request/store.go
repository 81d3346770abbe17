package request

import (
	"context"
	"time"
)

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	RequesterID string
	Status      Status
	BloodType   string
	OnlyActive  bool
}

// Store persists blood requests. Update must be a compare-and-swap on
// Version: it writes only when the stored version equals req.Version, then
// increments it, and returns sentinel.ErrConflict otherwise. Services retry
// on conflict by re-reading; stores never do.
type Store interface {
	Save(ctx context.Context, req *BloodRequest) error
	FindByID(ctx context.Context, id string) (*BloodRequest, error)
	Update(ctx context.Context, req *BloodRequest) error
	List(ctx context.Context, f Filter) ([]*BloodRequest, error)
	// ListExpirable returns non-terminal requests whose deadline is at or
	// before the cutoff. The sweeper uses it; results still go through the
	// CAS Update like every other transition.
	ListExpirable(ctx context.Context, cutoff time.Time) ([]*BloodRequest, error)
	CountActiveByBloodType(ctx context.Context) (map[string]int, error)
}
