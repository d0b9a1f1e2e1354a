// Package notify renders and sends the emails triggered by a new lead.
package notify

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	common "github.com/example/lead-intake-service/internal/adapters/common"
	"github.com/example/lead-intake-service/internal/config"
	"github.com/example/lead-intake-service/internal/intake"
	"github.com/example/lead-intake-service/internal/models"
)

// LeadMarker prefixes every internal alert subject so inbox rules can match
// lead notifications.
const LeadMarker = "[New Lead]"

// Mailer is the mail-sending capability. Implementations report failures as
// errors; the dispatcher never retries.
type Mailer interface {
	Send(ctx context.Context, m *models.Mail) (*common.ProviderResponse, error)
}

// Status tags the result of a dispatch.
type Status string

const (
	StatusBothSent     Status = "both_sent"
	StatusInternalOnly Status = "internal_only"
	StatusFailed       Status = "failed"
)

// Outcome is the result of dispatching notifications for one lead.
type Outcome struct {
	Status Status
	// Err is set only when Status is StatusFailed.
	Err      error
	Internal *common.ProviderResponse
	Client   *common.ProviderResponse
}

// Success reports whether the outcome should be answered with a success
// response.
func (o Outcome) Success() bool {
	return o.Status == StatusBothSent || o.Status == StatusInternalOnly
}

// Dispatcher sends the internal alert and the client acknowledgment.
type Dispatcher struct {
	mailer   Mailer
	from     string
	admin    string
	internal string
	ackFrom  string
	brand    config.BrandingConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherClock overrides the clock used by the test email.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher builds a Dispatcher. The internal alert is sent from
// mailCfg.From; the client acknowledgment is sent from and replies to
// mailCfg.AdminEmail under the brand name.
func NewDispatcher(mailer Mailer, mailCfg config.MailConfig, brand config.BrandingConfig, logger zerolog.Logger, opts ...DispatcherOption) (*Dispatcher, error) {
	if mailer == nil {
		return nil, errors.New("notify: mailer dependency is required")
	}
	if strings.TrimSpace(mailCfg.From) == "" {
		return nil, errors.New("notify: sender address is required")
	}
	if strings.TrimSpace(mailCfg.InternalNotifyEmail) == "" {
		return nil, errors.New("notify: internal recipient is required")
	}
	if strings.TrimSpace(mailCfg.AdminEmail) == "" {
		return nil, errors.New("notify: admin address is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	ackFrom := (&mail.Address{Name: brand.Name, Address: mailCfg.AdminEmail}).String()

	d := &Dispatcher{
		mailer:   mailer,
		from:     mailCfg.From,
		admin:    mailCfg.AdminEmail,
		internal: mailCfg.InternalNotifyEmail,
		ackFrom:  ackFrom,
		brand:    brand,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Dispatch sends the internal alert and, when the lead left an address, the
// client acknowledgment. The client is never contacted unless the internal
// alert was accepted.
func (d *Dispatcher) Dispatch(ctx context.Context, lead models.LeadRecord) Outcome {
	start := time.Now()
	view := d.leadView(lead)

	internal, err := d.internalAlert(lead, view)
	if err != nil {
		return d.finish(lead, start, Outcome{Status: StatusFailed, Err: err})
	}
	internalResp, err := d.mailer.Send(ctx, internal)
	if err != nil {
		return d.finish(lead, start, Outcome{Status: StatusFailed, Err: err, Internal: internalResp})
	}

	if !lead.HasClientEmail {
		return d.finish(lead, start, Outcome{Status: StatusInternalOnly, Internal: internalResp})
	}

	ack, err := d.clientAck(lead, view)
	if err != nil {
		return d.finish(lead, start, Outcome{Status: StatusFailed, Err: err, Internal: internalResp})
	}
	clientResp, err := d.mailer.Send(ctx, ack)
	if err != nil {
		return d.finish(lead, start, Outcome{Status: StatusFailed, Err: err, Internal: internalResp, Client: clientResp})
	}

	return d.finish(lead, start, Outcome{Status: StatusBothSent, Internal: internalResp, Client: clientResp})
}

// SendTest sends the delivery check email to "to", or to the admin address
// when "to" is empty.
func (d *Dispatcher) SendTest(ctx context.Context, to string) (*common.ProviderResponse, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		to = d.admin
	}
	body, err := render(testMailTmpl, testView{
		Brand:  intake.EscapeHTML(d.brand.Name),
		SentAt: d.now().UTC().Format(time.RFC1123),
	})
	if err != nil {
		return nil, fmt.Errorf("notify: render test email: %w", err)
	}

	resp, err := d.mailer.Send(ctx, &models.Mail{
		From:    d.from,
		To:      to,
		Subject: subjectLine(d.brand.TestSubject),
		HTML:    body,
		Role:    models.MailRoleTest,
	})
	if err != nil {
		d.logger.Error().Str("role", models.MailRoleTest).Err(err).Msg("test email failed")
		return resp, err
	}
	d.logger.Info().
		Str("role", models.MailRoleTest).
		Str("provider_id", resp.ProviderID()).
		Msg("test email sent")
	return resp, nil
}

func (d *Dispatcher) internalAlert(lead models.LeadRecord, view leadView) (*models.Mail, error) {
	body, err := render(internalAlertTmpl, view)
	if err != nil {
		return nil, fmt.Errorf("notify: render internal alert: %w", err)
	}
	m := &models.Mail{
		From:    d.from,
		To:      d.internal,
		Subject: subjectLine(LeadMarker, d.brand.InternalSubject+":", lead.Name),
		HTML:    body,
		Role:    models.MailRoleInternalAlert,
		LeadID:  lead.ID,
	}
	if lead.HasClientEmail {
		m.ReplyTo = lead.Email
	}
	return m, nil
}

func (d *Dispatcher) clientAck(lead models.LeadRecord, view leadView) (*models.Mail, error) {
	body, err := render(clientAckTmpl, view)
	if err != nil {
		return nil, fmt.Errorf("notify: render client ack: %w", err)
	}
	return &models.Mail{
		From:    d.ackFrom,
		To:      lead.Email,
		ReplyTo: d.admin,
		Subject: subjectLine(d.brand.ClientSubject),
		HTML:    body,
		Role:    models.MailRoleClientAck,
		LeadID:  lead.ID,
	}, nil
}

func (d *Dispatcher) finish(lead models.LeadRecord, start time.Time, out Outcome) Outcome {
	evt := d.logger.Info()
	if out.Status == StatusFailed {
		evt = d.logger.Error().Err(out.Err)
	}
	evt.Str("lead_id", lead.ID).
		Str("source", lead.Source).
		Str("outcome", string(out.Status)).
		Bool("has_client_email", lead.HasClientEmail).
		Dur("duration", time.Since(start)).
		Msg("lead notifications dispatched")
	return out
}
