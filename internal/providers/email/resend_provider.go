package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/afex/hystrix-go/hystrix"
	"github.com/rs/zerolog"

	"github.com/example/lead-intake-service/internal/config"
)

const (
	// ResendHystrixKey names the circuit guarding the Resend HTTP API.
	ResendHystrixKey     = "resend_send_email"
	defaultResendBaseURL = "https://api.resend.com"
	maxResendBodyBytes   = 64 << 10
)

// HTTPClient is the subset of *http.Client used by HTTP providers.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResendOption configures the Resend provider.
type ResendOption func(*ResendProvider)

// WithResendHTTPClient swaps the HTTP client.
func WithResendHTTPClient(c HTTPClient) ResendOption {
	return func(p *ResendProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithResendCommandName isolates the circuit under a different hystrix key.
func WithResendCommandName(name string) ResendOption {
	return func(p *ResendProvider) {
		if strings.TrimSpace(name) != "" {
			p.command = strings.TrimSpace(name)
		}
	}
}

// WithResendClock replaces the clock used for response timestamps.
func WithResendClock(now func() time.Time) ResendOption {
	return func(p *ResendProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithResendTimeout sets the hystrix command timeout. It should be at least
// the per-send timeout so the context deadline fires first.
func WithResendTimeout(d time.Duration) ResendOption {
	return func(p *ResendProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// ResendProvider sends mail through the Resend HTTP API behind a circuit
// breaker. Only 5xx, 408, 429 and transport failures count against the
// circuit.
type ResendProvider struct {
	logger  zerolog.Logger
	client  HTTPClient
	apiKey  string
	baseURL string
	from    string
	command string
	timeout time.Duration
	now     func() time.Time
}

type resendRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// NewResendProvider constructs a Resend backed Provider and registers its
// circuit configuration.
func NewResendProvider(cfg config.ResendConfig, logger zerolog.Logger, opts ...ResendOption) (*ResendProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("resend provider: api key is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("resend provider: from address is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultResendBaseURL
	}

	p := &ResendProvider{
		logger:  logger,
		client:  &http.Client{Timeout: 30 * time.Second},
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		from:    strings.TrimSpace(cfg.From),
		command: ResendHystrixKey,
		timeout: 15 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	hystrix.ConfigureCommand(p.command, hystrix.CommandConfig{
		Timeout:               int(p.timeout / time.Millisecond),
		MaxConcurrentRequests: positiveOr(cfg.MaxConcurrentRequests, 100),
		ErrorPercentThreshold: positiveOr(cfg.CircuitErrorPercent, 50),
		SleepWindow:           positiveOr(cfg.CircuitSleepWindowMs, 5000),
	})

	return p, nil
}

// Name implements Named.
func (p *ResendProvider) Name() string { return "resend" }

// Send posts payload to the Resend emails endpoint.
func (p *ResendProvider) Send(ctx context.Context, payload *Payload) (*RawResponse, error) {
	if payload == nil {
		return nil, errors.New("resend provider: payload is required")
	}
	if len(payload.To) == 0 {
		return nil, errors.New("resend provider: at least one recipient is required")
	}

	from := strings.TrimSpace(payload.From)
	if from == "" {
		from = p.from
	}
	body, err := json.Marshal(resendRequest{
		From:    from,
		To:      payload.To,
		Subject: sanitizeHeaderValue(payload.Subject),
		HTML:    payload.HTML,
		ReplyTo: strings.TrimSpace(payload.ReplyTo),
		Headers: payload.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("resend provider: encode request: %w", err)
	}

	var (
		resp    *RawResponse
		sendErr error
	)
	circuitErr := hystrix.Do(p.command, func() error {
		resp, sendErr = p.post(ctx, body, payload.Headers["Idempotency-Key"])
		if sendErr != nil && countsAgainstCircuit(resp) {
			return sendErr
		}
		return nil
	}, nil)

	var rejected hystrix.CircuitError
	if errors.As(circuitErr, &rejected) {
		// Open circuit, saturated bulkhead or command timeout. The run
		// function may still be in flight, so its results are not read.
		p.logger.Warn().
			Str("provider", "resend").
			Err(circuitErr).
			Msg("resend circuit rejected send")
		return &RawResponse{ID: payload.MessageID, Timestamp: p.now(), Body: rejected.Error()},
			fmt.Errorf("resend provider: %w", circuitErr)
	}
	return resp, sendErr
}

func (p *ResendProvider) post(ctx context.Context, body []byte, idempotencyKey string) (*RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("resend provider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	httpResp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resend provider: request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResendBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("resend provider: read response: %w", err)
	}

	out := &RawResponse{
		Code:      httpResp.StatusCode,
		Body:      string(raw),
		Timestamp: p.now(),
	}

	var decoded resendResponse
	_ = json.Unmarshal(raw, &decoded)
	out.ID = decoded.ID

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		msg := decoded.Message
		if msg == "" {
			msg = http.StatusText(httpResp.StatusCode)
		}
		return out, fmt.Errorf("resend %d: %s", httpResp.StatusCode, msg)
	}
	return out, nil
}

func countsAgainstCircuit(resp *RawResponse) bool {
	if resp == nil {
		return true
	}
	return resp.Code >= 500 || resp.Code == http.StatusRequestTimeout || resp.Code == http.StatusTooManyRequests
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
