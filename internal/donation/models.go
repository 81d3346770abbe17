// Package donation is the append-only ledger of completed donations. A
// record exists only for matches that actually produced blood; declined or
// abandoned matches never reach this table.
package donation

import "time"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusDeferred  Status = "deferred"
)

// Volume bounds in millilitres for a single whole-blood donation.
const (
	MinVolumeML     = 350
	MaxVolumeML     = 450
	DefaultVolumeML = 450
)

// HealthCheck captures the pre-donation screening result.
type HealthCheck struct {
	Passed        bool    `json:"passed"`
	HemoglobinGDL float64 `json:"hemoglobin,omitempty"`
	BloodPressure string  `json:"bloodPressure,omitempty"`
	WeightKG      float64 `json:"weight,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// Donation is one ledger entry linking a donor to the request it served.
type Donation struct {
	ID          string      `json:"id"`
	DonorID     string      `json:"donorId"`
	RequestID   string      `json:"requestId"`
	BloodType   string      `json:"bloodType"`
	VolumeML    int         `json:"volumeMl"`
	Location    string      `json:"location,omitempty"`
	Status      Status      `json:"status"`
	HealthCheck HealthCheck `json:"healthCheck"`
	DonatedAt   time.Time   `json:"donatedAt"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// ClampVolume normalizes a requested volume into the allowed range, using
// the default when unset.
func ClampVolume(ml int) int {
	switch {
	case ml == 0:
		return DefaultVolumeML
	case ml < MinVolumeML:
		return MinVolumeML
	case ml > MaxVolumeML:
		return MaxVolumeML
	default:
		return ml
	}
}
