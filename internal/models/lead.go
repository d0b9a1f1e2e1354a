package models

import "time"

// Values used when a lead field is absent or empty.
const (
	Placeholder      = "—"
	UnknownName      = "Unknown"
	GreetingFallback = "there"
)

// NormalizedFields is the flat view of an inbound webhook body: lowercase
// field names mapped to their string values.
type NormalizedFields map[string]string

// LeadRecord is the canonical lead built once per inbound request. Every text
// field holds either a real value or its placeholder; it is passed by value
// and never mutated after construction.
type LeadRecord struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	ReceivedAt     time.Time `json:"received_at"`
	Name           string    `json:"name"`
	// Email is the lowercased client address, or the raw submitted value
	// when that is not a usable address. HasClientEmail tells them apart.
	Email          string    `json:"email,omitempty"`
	Company        string    `json:"company"`
	Website        string    `json:"website"`
	Message        string    `json:"message"`
	Budget         string    `json:"budget"`
	Timeline       string    `json:"timeline"`
	HasClientEmail bool      `json:"has_client_email"`
}

// Greeting returns the name used to address the lead in the client reply.
func (l LeadRecord) Greeting() string {
	if l.Name == "" || l.Name == UnknownName {
		return GreetingFallback
	}
	return l.Name
}
