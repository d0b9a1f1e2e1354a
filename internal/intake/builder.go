package intake

import (
	"html"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/lead-intake-service/internal/models"
	"github.com/example/lead-intake-service/internal/util"
)

// emailKeys lists the field names read for the client email, in order.
var emailKeys = []string{"email", "form-email"}

// Option customises a Builder.
type Option func(*Builder)

// WithClock overrides the clock used for ReceivedAt.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator overrides the lead ID generator.
func WithIDGenerator(next func() string) Option {
	return func(b *Builder) {
		if next != nil {
			b.newID = next
		}
	}
}

// Builder turns normalized fields into lead records.
type Builder struct {
	now   func() time.Time
	newID func() string
}

// NewBuilder constructs a Builder that stamps records with random UUIDs and
// the current time.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build applies defaults and trimming to fields. A missing client email is a
// valid state: the record is built with HasClientEmail set to false. So is an
// email that is not a bare address ("ann at example dot com"): it is kept
// verbatim for the internal alert but never used as a recipient or reply-to.
func (b *Builder) Build(source string, fields models.NormalizedFields) models.LeadRecord {
	email, valid := clientEmail(fields)

	return models.LeadRecord{
		ID:             b.newID(),
		Source:         strings.TrimSpace(source),
		ReceivedAt:     b.now().UTC(),
		Name:           valueOr(fields, "name", models.UnknownName),
		Email:          email,
		Company:        valueOr(fields, "company", models.Placeholder),
		Website:        valueOr(fields, "website", models.Placeholder),
		Message:        valueOr(fields, "message", models.Placeholder),
		Budget:         valueOr(fields, "budget", models.Placeholder),
		Timeline:       valueOr(fields, "timeline", models.Placeholder),
		HasClientEmail: valid,
	}
}

func valueOr(fields models.NormalizedFields, key, fallback string) string {
	if v := strings.TrimSpace(fields[key]); v != "" {
		return v
	}
	return fallback
}

// clientEmail returns the first email field that is a usable bare address,
// lowercased. When none is, it returns the first non-empty raw value and
// false.
func clientEmail(fields models.NormalizedFields) (string, bool) {
	raw := ""
	for _, key := range emailKeys {
		v := strings.TrimSpace(fields[key])
		if v == "" {
			continue
		}
		if addr, err := util.NormalizeEmail(v); err == nil {
			return addr, true
		}
		if raw == "" {
			raw = v
		}
	}
	return raw, false
}

// SafeLead is the HTML-escaped view of a lead used by the email templates.
type SafeLead struct {
	ID       string
	Source   string
	Name     string
	Greeting string
	Email    string
	Company  string
	Website  string
	Message  string
	Budget   string
	Timeline string
}

// Safe escapes every field of l for interpolation into HTML.
func Safe(l models.LeadRecord) SafeLead {
	email := l.Email
	if email == "" {
		email = models.Placeholder
	}
	return SafeLead{
		ID:       EscapeHTML(l.ID),
		Source:   EscapeHTML(l.Source),
		Name:     EscapeHTML(l.Name),
		Greeting: EscapeHTML(l.Greeting()),
		Email:    EscapeHTML(email),
		Company:  EscapeHTML(l.Company),
		Website:  EscapeHTML(l.Website),
		Message:  EscapeHTML(l.Message),
		Budget:   EscapeHTML(l.Budget),
		Timeline: EscapeHTML(l.Timeline),
	}
}

var newlineReplacer = strings.NewReplacer("\r\n", "<br>", "\r", "<br>", "\n", "<br>")

// EscapeHTML escapes & < > " ' and converts line breaks to <br>.
func EscapeHTML(s string) string {
	return newlineReplacer.Replace(html.EscapeString(s))
}
