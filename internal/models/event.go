package models

import "time"

// EventTypeLeadReceived tags lead events written to streaming stores.
const EventTypeLeadReceived = "lead.received"

// LeadEvent is the envelope appended to event-based lead stores.
type LeadEvent struct {
	EventType string     `json:"event_type"`
	Lead      LeadRecord `json:"lead"`
	Timestamp time.Time  `json:"timestamp"`
}
