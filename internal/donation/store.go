package donation

import "context"

// Store is the ledger. There is no update or delete; completed donations
// are immutable history.
type Store interface {
	Save(ctx context.Context, d *Donation) error
	FindByID(ctx context.Context, id string) (*Donation, error)
	ListByDonor(ctx context.Context, donorID string) ([]*Donation, error)
	ListByRequest(ctx context.Context, requestID string) ([]*Donation, error)
	CountCompletedByBloodType(ctx context.Context) (map[string]int, error)
}
