package email

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scenario enumerates the supported mock behaviours.
type Scenario string

const (
	ScenarioSuccess   Scenario = "success"
	ScenarioTransient Scenario = "transient"
	ScenarioPermanent Scenario = "permanent"
	ScenarioTimeout   Scenario = "timeout"

	headerScenario = "X-Mock-Provider-Scenario"
)

// scenarioReplies holds the SMTP reply returned by each failing scenario.
var scenarioReplies = map[Scenario]struct {
	code int
	text string
}{
	ScenarioPermanent: {550, "mock: mailbox unavailable"},
	ScenarioTransient: {451, "mock: requested action aborted, try again later"},
}

// Option customizes the behaviour of the mock provider at construction time.
type Option func(*MockProvider)

// WithLatencyRange overrides the simulated send latency. Negative values are
// clamped to zero and max below min is raised to min.
func WithLatencyRange(min, max time.Duration) Option {
	return func(p *MockProvider) {
		if min < 0 {
			min = 0
		}
		if max < min {
			max = min
		}
		p.minLatency = min
		p.maxLatency = max
	}
}

// WithDefaultScenario configures the behaviour for payloads that match no
// recipient scenario and carry no scenario header.
func WithDefaultScenario(s Scenario) Option {
	return func(p *MockProvider) {
		p.defaultScenario = s
	}
}

// WithRecipientScenario makes every send to recipient behave as s. Recipient
// matching is case-insensitive.
func WithRecipientScenario(recipient string, s Scenario) Option {
	return func(p *MockProvider) {
		p.byRecipient[strings.ToLower(strings.TrimSpace(recipient))] = s
	}
}

// WithRandomSeed swaps the RNG seed used for latency and generated ids.
func WithRandomSeed(seed int64) Option {
	return func(p *MockProvider) {
		p.rnd = rand.New(rand.NewSource(seed)) // #nosec G404 -- deterministic seed for tests.
	}
}

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *MockProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// MockProvider is an in-process provider for local development and tests. It
// records every payload it accepts.
type MockProvider struct {
	logger          zerolog.Logger
	minLatency      time.Duration
	maxLatency      time.Duration
	defaultScenario Scenario
	byRecipient     map[string]Scenario
	now             func() time.Time

	mu   sync.Mutex
	rnd  *rand.Rand
	sent []Payload
}

// NewMockProvider constructs a mock provider. By default every send succeeds
// with no latency.
func NewMockProvider(logger zerolog.Logger, opts ...Option) *MockProvider {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	p := &MockProvider{
		logger:          logger,
		defaultScenario: ScenarioSuccess,
		byRecipient:     make(map[string]Scenario),
		now:             time.Now,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// Name implements Named.
func (p *MockProvider) Name() string { return "mock" }

// Send simulates delivering payload.
func (p *MockProvider) Send(ctx context.Context, payload *Payload) (*RawResponse, error) {
	if payload == nil {
		return nil, errors.New("mock provider: payload is required")
	}
	if len(payload.To) == 0 {
		return nil, errors.New("mock provider: at least one recipient is required")
	}

	if err := p.sleep(ctx, p.sampleLatency()); err != nil {
		return nil, err
	}

	scenario := p.resolveScenario(payload)
	p.logger.Debug().
		Str("provider", "mock").
		Str("scenario", string(scenario)).
		Str("message_id", payload.MessageID).
		Msg("mock email provider invoked")

	if scenario == ScenarioTimeout {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if reply, failed := scenarioReplies[scenario]; failed {
		resp := p.baseResponse(payload, reply.code, reply.text)
		return resp, fmt.Errorf("smtp %d: %s", resp.Code, resp.Body)
	}

	p.mu.Lock()
	p.sent = append(p.sent, clonePayload(payload))
	p.mu.Unlock()
	return p.baseResponse(payload, 250, "mock: message queued"), nil
}

// Sent returns a copy of every successfully sent payload, in send order.
func (p *MockProvider) Sent() []Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Payload, len(p.sent))
	copy(out, p.sent)
	return out
}

func (p *MockProvider) resolveScenario(payload *Payload) Scenario {
	for _, to := range payload.To {
		if s, ok := p.byRecipient[strings.ToLower(strings.TrimSpace(to))]; ok {
			return s
		}
	}

	for key, value := range payload.Headers {
		if !strings.EqualFold(key, headerScenario) {
			continue
		}
		s := Scenario(strings.ToLower(strings.TrimSpace(value)))
		if _, known := scenarioReplies[s]; known || s == ScenarioTimeout {
			return s
		}
		return ScenarioSuccess
	}
	return p.defaultScenario
}

func (p *MockProvider) sampleLatency() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxLatency <= p.minLatency {
		return p.minLatency
	}
	delta := p.maxLatency - p.minLatency
	return p.minLatency + time.Duration(p.rnd.Int63n(int64(delta)+1))
}

func (p *MockProvider) baseResponse(payload *Payload, code int, body string) *RawResponse {
	respID := payload.MessageID
	if respID == "" {
		respID = p.nextID()
	}

	return &RawResponse{
		ID:        respID,
		Code:      code,
		Body:      body,
		Timestamp: p.now(),
	}
}

func (p *MockProvider) nextID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("mock-%08x", p.rnd.Uint32())
}

func (p *MockProvider) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func clonePayload(p *Payload) Payload {
	out := *p
	out.To = append([]string(nil), p.To...)
	if p.Headers != nil {
		out.Headers = make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			out.Headers[k] = v
		}
	}
	return out
}
