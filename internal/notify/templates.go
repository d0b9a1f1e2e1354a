package notify

import (
	"strings"
	"text/template"
	"time"

	"github.com/example/lead-intake-service/internal/intake"
	"github.com/example/lead-intake-service/internal/models"
)

// Every interpolated value is escaped by intake.Safe or intake.EscapeHTML before it
// reaches these templates, so plain text/template is used. html/template
// would escape the <br> line breaks a second time.

var internalAlertTmpl = template.Must(template.New("internal_alert").Parse(`<h2>New Website Enquiry</h2>
<p><strong>Name:</strong> {{.Lead.Name}}</p>
<p><strong>Email:</strong> {{.Lead.Email}}</p>
<p><strong>Company:</strong> {{.Lead.Company}}</p>
<p><strong>Website:</strong> {{.Lead.Website}}</p>
<p><strong>Budget:</strong> {{.Lead.Budget}}</p>
<p><strong>Timeline:</strong> {{.Lead.Timeline}}</p>
<hr />
<p>{{.Lead.Message}}</p>
<hr />
<p style="color:#888;font-size:12px">Lead {{.Lead.ID}} from {{.Lead.Source}} at {{.ReceivedAt}}</p>
`))

var clientAckTmpl = template.Must(template.New("client_ack").Parse(`<p>Hi {{.Lead.Greeting}},</p>
<p>Thanks for getting in touch with <strong>{{.Brand}}</strong>.</p>
<p>We've received your enquiry and will respond within <strong>{{.ResponseWindow}}</strong>.</p>
<p>If you need anything urgent, just reply to this email.</p>
<p>- {{.Brand}}</p>
`))

var testMailTmpl = template.Must(template.New("test").Parse(`<p>If you see this, {{.Brand}} email delivery is working.</p>
<p style="color:#888;font-size:12px">Sent at {{.SentAt}}</p>
`))

type leadView struct {
	Lead           intake.SafeLead
	ReceivedAt     string
	Brand          string
	ResponseWindow string
}

type testView struct {
	Brand  string
	SentAt string
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (d *Dispatcher) leadView(lead models.LeadRecord) leadView {
	return leadView{
		Lead:           intake.Safe(lead),
		ReceivedAt:     lead.ReceivedAt.UTC().Format(time.RFC1123),
		Brand:          intake.EscapeHTML(d.brand.Name),
		ResponseWindow: intake.EscapeHTML(d.brand.ResponseWindow),
	}
}

// subjectLine strips header-breaking characters from a rendered subject.
func subjectLine(parts ...string) string {
	s := strings.Join(parts, " ")
	s = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
