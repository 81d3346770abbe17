// Package donor holds the donor read-model the matching engine works
// against. Account CRUD owns the full profile; this engine reads the fields
// that decide eligibility and writes back LastDonationDate on fulfillment.
package donor

import (
	"time"

	"lifelink/internal/bloodtype"
	"lifelink/internal/geo"
)

// Cooldown is the mandatory rest period after a completed donation.
// The product framing is "3 months"; the engine uses a fixed 90-day window
// so two checks made milliseconds apart can never disagree the way
// calendar-month arithmetic does around month ends.
const Cooldown = 90 * 24 * time.Hour

// Donor is a user in their donor role.
type Donor struct {
	ID               string
	Username         string
	BloodType        bloodtype.BloodType
	IsAvailable      bool
	IsActive         bool
	LastDonationDate *time.Time
	Coordinates      *geo.Point
	City             string
	State            string
	CreatedAt        time.Time
}

// CanDonate reports whether the donor is outside the post-donation cooldown.
// Never-donated donors are always eligible. The boundary is strict: a
// donation exactly 90 days ago still blocks.
func (d Donor) CanDonate(now time.Time) bool {
	if d.LastDonationDate == nil {
		return true
	}
	return d.LastDonationDate.Before(now.Add(-Cooldown))
}

// HasCoordinates reports whether the donor can participate in radius-bounded
// searches.
func (d Donor) HasCoordinates() bool {
	return d.Coordinates != nil
}

// Summary is the donor shape returned from candidate selection and search.
// Contact details stay with the account subsystem.
type Summary struct {
	ID               string              `json:"id"`
	Username         string              `json:"username"`
	BloodType        bloodtype.BloodType `json:"bloodType"`
	City             string              `json:"city,omitempty"`
	State            string              `json:"state,omitempty"`
	LastDonationDate *time.Time          `json:"lastDonationDate,omitempty"`
	CanDonate        bool                `json:"canDonate"`
	DistanceKm       *float64            `json:"distanceKm,omitempty"`
}

// Summarize builds the external donor shape at a given evaluation time.
func Summarize(d Donor, now time.Time) Summary {
	return Summary{
		ID:               d.ID,
		Username:         d.Username,
		BloodType:        d.BloodType,
		City:             d.City,
		State:            d.State,
		LastDonationDate: d.LastDonationDate,
		CanDonate:        d.CanDonate(now),
	}
}
