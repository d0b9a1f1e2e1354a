package email_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	emailprovider "github.com/example/lead-intake-service/internal/providers/email"
)

func TestMockProviderSuccess(t *testing.T) {
	fixed := time.Date(2026, time.October, 11, 10, 0, 0, 0, time.UTC)
	provider := emailprovider.NewMockProvider(
		zerolog.Nop(),
		emailprovider.WithClock(func() time.Time { return fixed }),
	)

	payload := &emailprovider.Payload{
		MessageID: "message-123",
		From:      "noreply@example.com",
		To:        []string{"user@example.com"},
		Subject:   "hello",
	}

	resp, err := provider.Send(context.Background(), payload)
	if err != nil {
		t.Fatalf("expected success, got error %v", err)
	}
	if resp.Code != 250 || resp.Body != "mock: message queued" {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.Timestamp != fixed || resp.ID != payload.MessageID {
		t.Fatalf("unexpected id or timestamp %#v", resp)
	}

	sent := provider.Sent()
	if len(sent) != 1 || sent[0].Subject != "hello" {
		t.Fatalf("expected recorded payload, got %#v", sent)
	}
}

func TestMockProviderScenarios(t *testing.T) {
	provider := emailprovider.NewMockProvider(zerolog.Nop(),
		emailprovider.WithRecipientScenario("Down@Example.com", emailprovider.ScenarioTransient),
	)

	payload := &emailprovider.Payload{
		To: []string{"user@example.com"},
		Headers: map[string]string{
			"x-mock-provider-scenario": string(emailprovider.ScenarioPermanent),
		},
	}
	resp, err := provider.Send(context.Background(), payload)
	if err == nil || !strings.Contains(err.Error(), "smtp 550") {
		t.Fatalf("expected permanent smtp error, got %v", err)
	}
	if resp == nil || resp.Code != 550 || !strings.HasPrefix(resp.ID, "mock-") {
		t.Fatalf("unexpected permanent response %#v", resp)
	}

	resp, err = provider.Send(context.Background(), &emailprovider.Payload{To: []string{"down@example.com"}})
	if err == nil || resp == nil || resp.Code != 451 {
		t.Fatalf("expected transient failure for recipient scenario, got %v %#v", err, resp)
	}

	if got := len(provider.Sent()); got != 0 {
		t.Fatalf("failed sends must not be recorded, got %d", got)
	}
}

func TestMockProviderTimeoutHonoursContext(t *testing.T) {
	provider := emailprovider.NewMockProvider(zerolog.Nop(),
		emailprovider.WithDefaultScenario(emailprovider.ScenarioTimeout),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := provider.Send(ctx, &emailprovider.Payload{To: []string{"user@example.com"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMockProviderValidation(t *testing.T) {
	provider := emailprovider.NewMockProvider(zerolog.Nop())
	if _, err := provider.Send(context.Background(), nil); err == nil {
		t.Fatalf("expected nil payload error")
	}
	if _, err := provider.Send(context.Background(), &emailprovider.Payload{}); err == nil {
		t.Fatalf("expected missing recipient error")
	}
}

func TestMockProviderLatency(t *testing.T) {
	provider := emailprovider.NewMockProvider(zerolog.Nop(),
		emailprovider.WithLatencyRange(15*time.Millisecond, 15*time.Millisecond),
		emailprovider.WithRandomSeed(7),
	)

	start := time.Now()
	if _, err := provider.Send(context.Background(), &emailprovider.Payload{To: []string{"user@example.com"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("expected simulated latency, took %v", elapsed)
	}
}
