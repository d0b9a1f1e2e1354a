package email

import (
	"context"
	"time"
)

// Payload is the canonical outbound HTML email handed to a provider.
type Payload struct {
	MessageID string
	From      string
	To        []string
	ReplyTo   string
	Subject   string
	HTML      string
	Headers   map[string]string
}

// RawResponse mirrors the low level provider response that adapters inspect to
// derive higher level ProviderResponse values.
type RawResponse struct {
	ID        string
	Code      int
	Body      string
	Timestamp time.Time
}

// Provider is the contract exposed by email provider implementations.
type Provider interface {
	Send(ctx context.Context, payload *Payload) (*RawResponse, error)
}

// Named is implemented by providers that report a backend name for logs.
type Named interface {
	Name() string
}
