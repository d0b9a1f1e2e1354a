package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"github.com/example/lead-intake-service/internal/config"
)

// SMTPOption configures the behaviour of the SMTP provider.
type SMTPOption func(*SMTPProvider)

// WithSMTPTLSConfig overrides the TLS configuration used when negotiating
// STARTTLS. A nil config disables STARTTLS.
func WithSMTPTLSConfig(cfg *tls.Config) SMTPOption {
	return func(p *SMTPProvider) {
		p.tlsConfig = cfg
	}
}

// WithSMTPDialer swaps the network dialer used to establish SMTP connections.
func WithSMTPDialer(d Dialer) SMTPOption {
	return func(p *SMTPProvider) {
		if d != nil {
			p.dialer = d
		}
	}
}

// WithSMTPAuth supplies a custom SMTP auth strategy. When omitted the provider
// uses PLAIN auth with the configured credentials.
func WithSMTPAuth(auth smtp.Auth) SMTPOption {
	return func(p *SMTPProvider) {
		p.auth = auth
	}
}

// WithSMTPClock replaces the clock used for Date headers and timestamps.
func WithSMTPClock(now func() time.Time) SMTPOption {
	return func(p *SMTPProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithSMTPHelloName customises the EHLO/HELO identity presented to the server.
func WithSMTPHelloName(name string) SMTPOption {
	return func(p *SMTPProvider) {
		if strings.TrimSpace(name) != "" {
			p.helloName = strings.TrimSpace(name)
		}
	}
}

// Dialer abstracts net.Dialer to simplify testing.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SMTPProvider delivers mail through an SMTP relay.
type SMTPProvider struct {
	logger    zerolog.Logger
	host      string
	port      int
	from      string
	auth      smtp.Auth
	tlsConfig *tls.Config
	dialer    Dialer
	now       func() time.Time
	helloName string
}

// NewSMTPProvider validates cfg and returns a provider that opens one SMTP
// session per message. STARTTLS is used when the server offers it; PLAIN auth
// is used when a user is configured.
func NewSMTPProvider(cfg config.SMTPConfig, logger zerolog.Logger, opts ...SMTPOption) (*SMTPProvider, error) {
	host := strings.TrimSpace(cfg.Host)
	switch {
	case host == "":
		return nil, errors.New("smtp provider: host is required")
	case cfg.Port <= 0 || cfg.Port > 65535:
		return nil, fmt.Errorf("smtp provider: invalid port %d", cfg.Port)
	case strings.TrimSpace(cfg.From) == "":
		return nil, errors.New("smtp provider: from address is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	p := &SMTPProvider{
		logger:    logger,
		host:      host,
		port:      cfg.Port,
		from:      strings.TrimSpace(cfg.From),
		dialer:    &net.Dialer{Timeout: 30 * time.Second},
		now:       time.Now,
		helloName: "localhost",
		tlsConfig: &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12},
	}
	if user := strings.TrimSpace(cfg.User); user != "" {
		p.auth = smtp.PlainAuth("", user, cfg.Pass, host)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Name implements Named.
func (p *SMTPProvider) Name() string { return "smtp" }

// Send renders payload as an HTML message and submits it. On an SMTP reply
// error the RawResponse carries the reply code so callers can classify it.
func (p *SMTPProvider) Send(ctx context.Context, payload *Payload) (*RawResponse, error) {
	if payload == nil {
		return nil, errors.New("smtp provider: payload is required")
	}

	sender := strings.TrimSpace(payload.From)
	if sender == "" {
		sender = p.from
	}
	from, err := mail.ParseAddress(sender)
	if err != nil {
		return nil, fmt.Errorf("smtp provider: invalid from address: %w", err)
	}
	to, err := parseRecipients(payload.To)
	if err != nil {
		return nil, fmt.Errorf("smtp provider: invalid recipient: %w", err)
	}
	if len(to) == 0 {
		return nil, errors.New("smtp provider: at least one recipient is required")
	}

	msg, err := p.buildMessage(payload, from, to)
	if err != nil {
		return nil, err
	}

	rcpts := make([]string, len(to))
	for i, addr := range to {
		rcpts[i] = addr.Address
	}

	resp := &RawResponse{ID: payload.MessageID, Timestamp: p.now()}
	start := time.Now()
	if err := p.deliver(ctx, from.Address, rcpts, msg); err != nil {
		resp.Code, resp.Body = replyCode(err)
		return resp, err
	}

	p.logger.Debug().
		Str("message_id", payload.MessageID).
		Int("recipients", len(rcpts)).
		Int("bytes", len(msg)).
		Dur("duration", time.Since(start)).
		Msg("smtp message accepted")
	resp.Code = 250
	resp.Body = "smtp: message accepted"
	return resp, nil
}

type smtpStep struct {
	name string
	run  func() error
}

// deliver runs one SMTP session. Cancelling ctx closes the connection, and
// the step that was interrupted reports ctx.Err().
func (p *SMTPProvider) deliver(ctx context.Context, from string, rcpts []string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(p.host, strconv.Itoa(p.port)))
	if err != nil {
		return fmt.Errorf("smtp provider: dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		return p.stepError(ctx, "greeting", err)
	}
	defer client.Close()

	steps := []smtpStep{
		{"hello", func() error { return client.Hello(p.helloName) }},
		{"starttls", func() error { return p.startTLS(client) }},
		{"auth", func() error { return p.authenticate(client) }},
		{"mail from", func() error { return client.Mail(from) }},
	}
	for _, rcpt := range rcpts {
		rcpt := rcpt
		steps = append(steps, smtpStep{"rcpt to " + rcpt, func() error { return client.Rcpt(rcpt) }})
	}
	steps = append(steps,
		smtpStep{"data", func() error { return writeData(client, msg) }},
		smtpStep{"quit", func() error {
			if err := client.Quit(); err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			return nil
		}},
	)

	for _, step := range steps {
		if err := step.run(); err != nil {
			return p.stepError(ctx, step.name, err)
		}
	}
	return ctx.Err()
}

func (p *SMTPProvider) stepError(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("smtp provider: %s: %w", step, ctxErr)
	}
	return fmt.Errorf("smtp provider: %s: %w", step, err)
}

func (p *SMTPProvider) startTLS(c *smtp.Client) error {
	if p.tlsConfig == nil {
		return nil
	}
	if ok, _ := c.Extension("STARTTLS"); !ok {
		return nil
	}
	cfg := p.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = p.host
	}
	return c.StartTLS(cfg)
}

func (p *SMTPProvider) authenticate(c *smtp.Client) error {
	if p.auth == nil {
		return nil
	}
	if ok, _ := c.Extension("AUTH"); !ok {
		return nil
	}
	return c.Auth(p.auth)
}

func writeData(c *smtp.Client, msg []byte) error {
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// buildMessage renders a single-part quoted-printable HTML message. Custom
// headers never override the addressing headers.
func (p *SMTPProvider) buildMessage(payload *Payload, from *mail.Address, to []*mail.Address) ([]byte, error) {
	var h mail.Header
	for key, value := range payload.Headers {
		canonical := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(key))
		if canonical == "" || strings.TrimSpace(value) == "" || reservedHeader(canonical) {
			continue
		}
		h.Set(canonical, sanitizeHeaderValue(value))
	}

	h.Set("MIME-Version", "1.0")
	h.SetDate(p.now())
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", to)
	if replyTo := strings.TrimSpace(payload.ReplyTo); replyTo != "" {
		addr, err := mail.ParseAddress(replyTo)
		if err != nil {
			return nil, fmt.Errorf("smtp provider: invalid reply-to address: %w", err)
		}
		h.SetAddressList("Reply-To", []*mail.Address{addr})
	}
	h.SetSubject(sanitizeHeaderValue(payload.Subject))
	if payload.MessageID != "" {
		h.SetMessageID(sanitizeHeaderValue(payload.MessageID))
	}
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("smtp provider: create message: %w", err)
	}
	if _, err := io.WriteString(w, payload.HTML); err != nil {
		return nil, fmt.Errorf("smtp provider: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("smtp provider: close body: %w", err)
	}
	return buf.Bytes(), nil
}

func reservedHeader(key string) bool {
	switch key {
	case "From", "To", "Cc", "Bcc", "Reply-To", "Subject", "Date", "Message-Id",
		"Mime-Version", "Content-Type", "Content-Transfer-Encoding", "Content-Disposition":
		return true
	default:
		return false
	}
}

func sanitizeHeaderValue(value string) string {
	clean := strings.ReplaceAll(value, "\r", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	return strings.TrimSpace(clean)
}

func parseRecipients(list []string) ([]*mail.Address, error) {
	result := make([]*mail.Address, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(addr.Address)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, addr)
	}
	return result, nil
}

// replyCode extracts the SMTP reply code and text from a session error.
func replyCode(err error) (int, string) {
	var reply *textproto.Error
	if errors.As(err, &reply) {
		return reply.Code, strings.TrimSpace(reply.Msg)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, "smtp: timeout"
	}
	return 0, err.Error()
}
