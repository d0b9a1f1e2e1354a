package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	common "github.com/example/lead-intake-service/internal/adapters/common"
	"github.com/example/lead-intake-service/internal/models"
	emailprovider "github.com/example/lead-intake-service/internal/providers/email"
	"github.com/example/lead-intake-service/internal/util"
)

const (
	DefaultSendTimeout        = 10 * time.Second
	DefaultMaxConcurrentSends = 10
)

var (
	smtpErrPattern   = regexp.MustCompile(`smtp\s+(\d{3})`)
	resendErrPattern = regexp.MustCompile(`resend\s+(\d{3})`)
)

// Option customises adapter behaviour.
type Option func(*Adapter)

// WithRawBodyLimit overrides the maximum number of characters retained from the
// provider raw response.
func WithRawBodyLimit(limit int) Option {
	return func(a *Adapter) {
		if limit > 0 {
			a.maxRawChars = limit
		}
	}
}

// WithSendTimeout bounds each send, including the wait for a send slot.
func WithSendTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.sendTimeout = d
		}
	}
}

// WithMaxConcurrentSends bounds the number of in-flight provider calls.
func WithMaxConcurrentSends(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxSends = n
		}
	}
}

// WithMessageIDGenerator overrides the Message-ID generator.
func WithMessageIDGenerator(next func() string) Option {
	return func(a *Adapter) {
		if next != nil {
			a.newMessageID = next
		}
	}
}

// Adapter turns models.Mail into provider payloads and classifies results. It
// is the mail-sending capability used by the notification dispatcher.
type Adapter struct {
	logger       zerolog.Logger
	provider     emailprovider.Provider
	backend      string
	maxRawChars  int
	sendTimeout  time.Duration
	maxSends     int
	sem          *semaphore.Weighted
	newMessageID func() string
}

// NewAdapter constructs an email adapter using the provided dependencies.
func NewAdapter(provider emailprovider.Provider, logger zerolog.Logger, opts ...Option) (*Adapter, error) {
	if provider == nil {
		return nil, errors.New("email adapter: provider dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	a := &Adapter{
		logger:       logger,
		provider:     provider,
		backend:      "custom",
		maxRawChars:  common.DefaultRawBodyLimit,
		sendTimeout:  DefaultSendTimeout,
		maxSends:     DefaultMaxConcurrentSends,
		newMessageID: uuid.NewString,
	}
	if named, ok := provider.(emailprovider.Named); ok {
		a.backend = named.Name()
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.sem = semaphore.NewWeighted(int64(a.maxSends))

	return a, nil
}

// Send delivers m through the provider. Failures come back as *common.SendError
// wrapping an ErrTransient or ErrPermanent classification.
func (a *Adapter) Send(ctx context.Context, m *models.Mail) (*common.ProviderResponse, error) {
	if m == nil {
		return nil, &common.SendError{Err: common.WrapPermanent(errors.New("email adapter: mail is nil"))}
	}
	if strings.TrimSpace(m.To) == "" {
		return nil, a.sendError(m, common.WrapPermanent(errors.New("email adapter: recipient is empty")))
	}

	ctx, cancel := context.WithTimeout(ctx, a.sendTimeout)
	defer cancel()

	if err := a.sem.Acquire(ctx, 1); err != nil {
		a.logger.Warn().
			Str("lead_id", m.LeadID).
			Str("role", m.Role).
			Err(err).
			Msg("email adapter: failed to acquire send slot")
		return nil, a.sendError(m, common.WrapTransient(err))
	}
	defer a.sem.Release(1)

	start := time.Now()
	payload := a.buildPayload(m)
	rawResp, err := a.provider.Send(ctx, payload)
	if err != nil {
		resp := a.buildErrorResponse(rawResp, err)
		a.logger.Info().
			Str("lead_id", m.LeadID).
			Str("role", m.Role).
			Str("provider", a.backend).
			Str("provider_status", resp.Status).
			Str("provider_id", resp.ProviderID()).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("email adapter send failed")
		return resp, a.sendError(m, a.wrapError(err, rawResp))
	}

	resp := a.buildSuccessResponse(rawResp)
	a.logger.Debug().
		Str("lead_id", m.LeadID).
		Str("role", m.Role).
		Str("provider", a.backend).
		Str("provider_id", resp.ProviderID()).
		Dur("duration", time.Since(start)).
		Msg("email adapter send succeeded")
	return resp, nil
}

func (a *Adapter) sendError(m *models.Mail, err error) error {
	return &common.SendError{Role: m.Role, Recipient: m.To, Err: err}
}

func (a *Adapter) buildPayload(m *models.Mail) *emailprovider.Payload {
	id := a.newMessageID()
	headers := map[string]string{
		"Idempotency-Key": id,
	}
	if m.LeadID != "" {
		headers["X-Lead-ID"] = m.LeadID
	}
	if m.Role != "" {
		headers["X-Mail-Role"] = m.Role
	}

	return &emailprovider.Payload{
		MessageID: messageID(id, m.From),
		From:      m.From,
		To:        []string{m.To},
		ReplyTo:   m.ReplyTo,
		Subject:   m.Subject,
		HTML:      m.HTML,
		Headers:   headers,
	}
}

// messageID builds an RFC 5322 id-left@id-right from the sender domain.
func messageID(id, from string) string {
	domain := util.AddressDomain(from)
	if domain == "" {
		domain = "localhost"
	}
	return id + "@" + domain
}

func (a *Adapter) buildSuccessResponse(raw *emailprovider.RawResponse) *common.ProviderResponse {
	meta := make(map[string]string)
	var codePtr *int
	if raw != nil {
		if raw.ID != "" {
			meta["provider_id"] = raw.ID
		}
		if !raw.Timestamp.IsZero() {
			meta["provider_timestamp"] = raw.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		code := raw.Code
		codePtr = &code
	}
	if len(meta) == 0 {
		meta = nil
	}

	return &common.ProviderResponse{
		Status:  "ok",
		Code:    codePtr,
		Message: "sent",
		Raw:     a.truncateRaw(raw),
		Meta:    meta,
	}
}

func (a *Adapter) buildErrorResponse(raw *emailprovider.RawResponse, err error) *common.ProviderResponse {
	meta := make(map[string]string)
	var rawCode *int
	if raw != nil {
		if raw.ID != "" {
			meta["provider_id"] = raw.ID
		}
		if !raw.Timestamp.IsZero() {
			meta["provider_timestamp"] = raw.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		if raw.Code != 0 {
			code := raw.Code
			rawCode = &code
		}
	}

	if rawCode == nil {
		if code, _, ok := extractCode(err); ok {
			rawCode = &code
		}
	}
	if len(meta) == 0 {
		meta = nil
	}

	status := "unknown"
	switch {
	case isPermanent(err, raw):
		status = "rejected"
	case rawCode != nil && *rawCode >= 400, isTimeout(err):
		status = "rate_limited"
	}

	return &common.ProviderResponse{
		Status:  status,
		Code:    rawCode,
		Message: err.Error(),
		Raw:     a.truncateRaw(raw),
		Meta:    meta,
	}
}

func (a *Adapter) wrapError(err error, raw *emailprovider.RawResponse) error {
	if isPermanent(err, raw) {
		return common.WrapPermanent(err)
	}
	return common.WrapTransient(err)
}

func (a *Adapter) truncateRaw(raw *emailprovider.RawResponse) string {
	if raw == nil || raw.Body == "" {
		return ""
	}
	return common.TruncateRaw(raw.Body, a.maxRawChars)
}

// extractCode pulls a status code out of a provider error. The
// isHTTP result distinguishes HTTP API statuses from SMTP reply codes.
func extractCode(err error) (code int, isHTTP bool, ok bool) {
	if err == nil {
		return 0, false, false
	}
	msg := err.Error()
	if m := resendErrPattern.FindStringSubmatch(msg); len(m) == 2 {
		if c, convErr := strconv.Atoi(m[1]); convErr == nil {
			return c, true, true
		}
	}
	if m := smtpErrPattern.FindStringSubmatch(msg); len(m) == 2 {
		if c, convErr := strconv.Atoi(m[1]); convErr == nil {
			return c, false, true
		}
	}
	return 0, false, false
}

func isPermanent(err error, raw *emailprovider.RawResponse) bool {
	if isTimeout(err) {
		return false
	}
	code, httpCode, ok := extractCode(err)
	if !ok && raw != nil && raw.Code != 0 {
		code, ok = raw.Code, true
	}
	if !ok {
		return false
	}
	if httpCode {
		return isPermanentHTTPCode(code)
	}
	return isPermanentSMTPCode(code)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isPermanentSMTPCode(code int) bool {
	switch code {
	case 530, 535, 550, 551, 553, 554:
		return true
	default:
		return false
	}
}

func isPermanentHTTPCode(code int) bool {
	if code == 408 || code == 429 {
		return false
	}
	return code >= 400 && code < 500
}

// String describes the adapter for startup logs.
func (a *Adapter) String() string {
	return fmt.Sprintf("email adapter (%s, timeout=%s, max_sends=%d)", a.backend, a.sendTimeout, a.maxSends)
}
