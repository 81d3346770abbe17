package request_test

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lifelink/internal/bloodtype"
	"lifelink/internal/donor"
	"lifelink/internal/notification"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// recordingDispatcher collects dispatched notifications synchronously so
// tests can assert on them without a worker loop.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, n notification.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingDispatcher) byType(t notification.Type) []notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notification.Notification
	for _, n := range r.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func newDonor(id string, bt bloodtype.BloodType, lastDonation *time.Time) donor.Donor {
	return donor.Donor{
		ID:               id,
		Username:         id,
		BloodType:        bt,
		IsAvailable:      true,
		IsActive:         true,
		LastDonationDate: lastDonation,
		CreatedAt:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}
