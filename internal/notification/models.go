// Package notification delivers lifecycle events to users. Dispatch is
// fire-and-forget: a failed or dropped notification never fails the state
// transition that produced it.
package notification

import "time"

// Type discriminates notification payloads for clients.
type Type string

const (
	TypeBloodRequest       Type = "blood_request"
	TypeDonationMatch      Type = "donation_match"
	TypeDonationReminder   Type = "donation_reminder"
	TypeDonationCompleted  Type = "donation_completed"
	TypeRequestFulfilled   Type = "request_fulfilled"
	TypeRequestExpired     Type = "request_expired"
	TypeSystemAnnouncement Type = "system_announcement"
	TypeEmergencyAlert     Type = "emergency_alert"
)

// DefaultTTL is how long an unread notification stays visible.
const DefaultTTL = 30 * 24 * time.Hour

// Notification is one message for one recipient.
type Notification struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipientId"`
	Type        Type           `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	IsRead      bool           `json:"isRead"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExpiresAt   time.Time      `json:"expiresAt"`
}
