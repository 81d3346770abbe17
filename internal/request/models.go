// Package request owns the blood request lifecycle: the state machine, the
// embedded match list, and the concurrency-safe fulfillment protocol.
package request

import (
	"time"

	"lifelink/internal/bloodtype"
	"lifelink/internal/geo"
)

// Status is the request lifecycle state. Values are part of the persisted
// contract read directly by dashboards and stats.
type Status string

const (
	StatusPending   Status = "pending"
	StatusMatched   Status = "matched"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusFulfilled || s == StatusCancelled || s == StatusExpired
}

// Urgency orders requests on dashboards; it does not gate any transition.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

var urgencyRank = map[Urgency]int{
	UrgencyLow:      0,
	UrgencyMedium:   1,
	UrgencyHigh:     2,
	UrgencyCritical: 3,
}

// IsValid checks that the value is a supported urgency level.
func (u Urgency) IsValid() bool {
	_, ok := urgencyRank[u]
	return ok
}

// Rank returns the sort weight; higher is more urgent.
func (u Urgency) Rank() int {
	return urgencyRank[u]
}

// MatchStatus tracks one proposed pairing. A match can be declined without
// ever producing a Donation; only `completed` implies one exists.
type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchAccepted  MatchStatus = "accepted"
	MatchDeclined  MatchStatus = "declined"
	MatchCompleted MatchStatus = "completed"
)

// MatchEntry is a proposed pairing embedded in the request document. Keeping
// matches inside the request record means one CAS covers both the unit count
// and the match state.
type MatchEntry struct {
	DonorID   string      `json:"donorId"`
	Status    MatchStatus `json:"matchStatus"`
	MatchedAt time.Time   `json:"matchedAt"`
}

// Hospital is where the units are needed.
type Hospital struct {
	Name        string     `json:"name"`
	City        string     `json:"city,omitempty"`
	State       string     `json:"state,omitempty"`
	Coordinates *geo.Point `json:"coordinates,omitempty"`
}

// ContactPerson is who to reach about the patient.
type ContactPerson struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

// DefaultTTL is the request lifetime when the requester does not set one.
const DefaultTTL = 7 * 24 * time.Hour

// MaxUnitsPerRequest caps a single request; larger drives go through
// multiple requests so matching stays per-patient.
const MaxUnitsPerRequest = 10

// BloodRequest is the aggregate the lifecycle manager advances. Version
// backs the optimistic CAS: every successful update increments it, and a
// writer holding a stale version loses.
type BloodRequest struct {
	ID             string
	RequesterID    string
	PatientName    string
	BloodType      bloodtype.BloodType
	UnitsRequired  int
	Urgency        Urgency
	Hospital       Hospital
	ContactPerson  ContactPerson
	Description    string
	Status         Status
	MatchedDonors  []MatchEntry
	FulfilledUnits int
	ExpiryDate     time.Time
	IsActive       bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsExpired reports whether the deadline has passed, regardless of whether
// the sweeper has flipped the status yet. Both gates are checked everywhere
// so a request never accepts work in the window between deadline and sweep.
func (r *BloodRequest) IsExpired(now time.Time) bool {
	return now.After(r.ExpiryDate)
}

// CanBeFulfilled reports whether another unit may be recorded.
func (r *BloodRequest) CanBeFulfilled(now time.Time) bool {
	return !r.Status.IsTerminal() && r.FulfilledUnits < r.UnitsRequired && !r.IsExpired(now)
}

// UnitsNeeded returns the remaining unit count.
func (r *BloodRequest) UnitsNeeded() int {
	return r.UnitsRequired - r.FulfilledUnits
}

// FindMatch returns the index of the donor's match entry, or -1.
func (r *BloodRequest) FindMatch(donorID string) int {
	for i := range r.MatchedDonors {
		if r.MatchedDonors[i].DonorID == donorID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to mutate before a CAS write.
func (r *BloodRequest) Clone() *BloodRequest {
	cp := *r
	cp.MatchedDonors = append([]MatchEntry(nil), r.MatchedDonors...)
	if r.Hospital.Coordinates != nil {
		p := *r.Hospital.Coordinates
		cp.Hospital.Coordinates = &p
	}
	return &cp
}
