package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	common "github.com/example/lead-intake-service/internal/adapters/common"
	"github.com/example/lead-intake-service/internal/config"
	"github.com/example/lead-intake-service/internal/intake"
	"github.com/example/lead-intake-service/internal/models"
	"github.com/example/lead-intake-service/internal/notify"
	"github.com/example/lead-intake-service/internal/store"
	"github.com/example/lead-intake-service/internal/webhook"
)

type recordingMailer struct {
	mu     sync.Mutex
	sent   []models.Mail
	failOn map[string]error
}

func (m *recordingMailer) Send(_ context.Context, mail *models.Mail) (*common.ProviderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, *mail)
	if err, ok := m.failOn[mail.Role]; ok {
		return nil, &common.SendError{Role: mail.Role, Recipient: mail.To, Err: err}
	}
	return &common.ProviderResponse{Status: "ok"}, nil
}

func (m *recordingMailer) mails() []models.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Mail(nil), m.sent...)
}

type failingRecorder struct{ err error }

func (f failingRecorder) Record(context.Context, models.LeadRecord) error { return f.err }
func (f failingRecorder) Check(context.Context) error                     { return f.err }

// stallingRecorder blocks until its context ends, like a database that
// stopped answering.
type stallingRecorder struct{ calls chan error }

func (s stallingRecorder) Record(ctx context.Context, _ models.LeadRecord) error {
	<-ctx.Done()
	s.calls <- ctx.Err()
	return ctx.Err()
}

type panickingNotifier struct{}

func (panickingNotifier) Dispatch(context.Context, models.LeadRecord) notify.Outcome {
	panic("boom")
}

func (panickingNotifier) SendTest(context.Context, string) (*common.ProviderResponse, error) {
	panic("boom")
}

type fixture struct {
	server *httptest.Server
	mailer *recordingMailer
	store  *store.Memory
}

func newFixture(t *testing.T, mailer *recordingMailer, recorder store.Recorder, opts ...webhook.Option) *fixture {
	t.Helper()
	if mailer == nil {
		mailer = &recordingMailer{}
	}
	mem, _ := recorder.(*store.Memory)

	dispatcher, err := notify.NewDispatcher(mailer, config.MailConfig{
		From:                "Leads <alerts@example.com>",
		AdminEmail:          "admin@example.com",
		InternalNotifyEmail: "team@example.com",
	}, config.BrandingConfig{
		Name:            "Zypher Agent",
		InternalSubject: "New lead",
		ClientSubject:   "Thanks",
		ResponseWindow:  "one working day",
		TestSubject:     "Test",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}

	builder := intake.NewBuilder(
		intake.WithIDGenerator(func() string { return "lead-1" }),
		intake.WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	)
	h, err := webhook.NewHandler(builder, recorder, dispatcher, zerolog.Nop(), opts...)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &fixture{server: srv, mailer: mailer, store: mem}
}

func post(t *testing.T, url, contentType, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, contentType, strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json response, got %q", ct)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func TestWebhookArrayShapeBothSent(t *testing.T) {
	f := newFixture(t, nil, store.NewMemory())

	status, body := post(t, f.server.URL+"/webhook/netlify-contact", "application/json",
		`{"data":[{"name":"Email","value":"A@B.com"},{"name":"name","value":"Ann"}]}`)
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("unexpected response %d %v", status, body)
	}
	if _, ok := body["error"]; ok {
		t.Fatalf("success response must not carry an error: %v", body)
	}

	mails := f.mailer.mails()
	if len(mails) != 2 || mails[0].Role != models.MailRoleInternalAlert || mails[1].Role != models.MailRoleClientAck {
		t.Fatalf("expected internal alert then client ack, got %+v", mails)
	}
	if mails[1].To != "a@b.com" {
		t.Fatalf("unexpected client recipient %q", mails[1].To)
	}

	leads := f.store.Leads()
	if len(leads) != 1 || leads[0].Source != webhook.SourceNetlifyContact || leads[0].Name != "Ann" {
		t.Fatalf("unexpected recorded leads %+v", leads)
	}
}

func TestWebhookNoEmailInternalOnly(t *testing.T) {
	f := newFixture(t, nil, store.NewMemory())

	status, body := post(t, f.server.URL+"/webhook/netlify-contact", "application/json",
		`{"name":"Bo","message":"<b>hi</b>"}`)
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("unexpected response %d %v", status, body)
	}

	mails := f.mailer.mails()
	if len(mails) != 1 || mails[0].Role != models.MailRoleInternalAlert {
		t.Fatalf("expected only the internal alert, got %+v", mails)
	}
	if !strings.Contains(mails[0].HTML, "&lt;b&gt;hi&lt;/b&gt;") {
		t.Fatalf("expected escaped message in alert:\n%s", mails[0].HTML)
	}
}

func TestWebhookUnusableEmailStillNotifiesTeam(t *testing.T) {
	f := newFixture(t, nil, store.NewMemory())

	status, body := post(t, f.server.URL+"/webhook/netlify-contact", "application/json",
		`{"name":"Ann","email":"ann at example dot com"}`)
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("unexpected response %d %v", status, body)
	}
	mails := f.mailer.mails()
	if len(mails) != 1 || mails[0].Role != models.MailRoleInternalAlert || mails[0].ReplyTo != "" {
		t.Fatalf("expected one internal alert without reply-to, got %+v", mails)
	}
}

func TestWebhookFormAndSourceRoute(t *testing.T) {
	f := newFixture(t, nil, store.NewMemory())

	form := url.Values{"Name": {"Cy"}, "form-email": {"cy@example.com"}}
	status, body := post(t, f.server.URL+"/webhook/Voice-Agent", "application/x-www-form-urlencoded", form.Encode())
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("unexpected response %d %v", status, body)
	}
	leads := f.store.Leads()
	if len(leads) != 1 || leads[0].Source != "voice-agent" || leads[0].Email != "cy@example.com" {
		t.Fatalf("unexpected recorded leads %+v", leads)
	}
}

func TestWebhookInternalFailureReturns500(t *testing.T) {
	mailer := &recordingMailer{failOn: map[string]error{
		models.MailRoleInternalAlert: common.WrapTransient(errors.New("smtp 451: try later")),
	}}
	f := newFixture(t, mailer, store.NewMemory())

	status, body := post(t, f.server.URL+"/webhook/netlify-contact", "application/json",
		`{"name":"Ann","email":"ann@example.com"}`)
	if status != http.StatusInternalServerError || body["success"] != false {
		t.Fatalf("unexpected response %d %v", status, body)
	}
	if body["error"] != "notification delivery failed" {
		t.Fatalf("unexpected error message %v", body["error"])
	}
	if strings.Contains(body["error"].(string), "451") {
		t.Fatalf("provider detail leaked: %v", body["error"])
	}
	if got := mailer.mails(); len(got) != 1 {
		t.Fatalf("client must not be contacted, sends were %+v", got)
	}
	if f.store.Len() != 1 {
		t.Fatalf("lead must be recorded even when delivery fails")
	}
}

func TestWebhookClientFailureReturns500(t *testing.T) {
	mailer := &recordingMailer{failOn: map[string]error{
		models.MailRoleClientAck: common.WrapPermanent(errors.New("resend 422: invalid")),
	}}
	f := newFixture(t, mailer, nil)

	status, body := post(t, f.server.URL+"/webhook/netlify-contact", "application/json",
		`{"email":"ann@example.com"}`)
	if status != http.StatusInternalServerError || body["success"] != false {
		t.Fatalf("unexpected response %d %v", status, body)
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	f := newFixture(t, nil, store.NewMemory())

	status, body := post(t, f.server.URL+"/webhook/netlify-contact", "application/json", `{"name":`)
	if status != http.StatusInternalServerError || body["success"] != false || body["error"] != "malformed payload" {
		t.Fatalf("unexpected response %d %v", status, body)
	}
	if len(f.mailer.mails()) != 0 || f.store.Len() != 0 {
		t.Fatalf("malformed payload must not be processed")
	}
}

func TestWebhookOversizedBody(t *testing.T) {
	f := newFixture(t, nil, store.NewMemory(), webhook.WithMaxBodyBytes(32))

	status, body := post(t, f.server.URL+"/webhook/netlify-contact", "application/json",
		`{"name":"Ann","message":"`+strings.Repeat("x", 64)+`"}`)
	if status != http.StatusInternalServerError || body["error"] != "malformed payload" {
		t.Fatalf("unexpected response %d %v", status, body)
	}
}

func TestWebhookStoreFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil, failingRecorder{err: errors.New("db down")})

	status, body := post(t, f.server.URL+"/webhook/netlify-contact", "application/json", `{"name":"Ann"}`)
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("unexpected response %d %v", status, body)
	}
}

func TestWebhookStalledStoreDoesNotBlockNotification(t *testing.T) {
	recorder := stallingRecorder{calls: make(chan error, 1)}
	f := newFixture(t, nil, recorder, webhook.WithRecordTimeout(50*time.Millisecond))

	status, body := post(t, f.server.URL+"/webhook/netlify-contact", "application/json",
		`{"name":"Ann","email":"ann@example.com"}`)
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("unexpected response %d %v", status, body)
	}
	if got := len(f.mailer.mails()); got != 2 {
		t.Fatalf("expected both notifications despite the stalled store, got %d", got)
	}
	select {
	case err := <-recorder.calls:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected the store call to hit its deadline, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("store call never returned")
	}
}

func TestWebhookRecoversPanics(t *testing.T) {
	builder := intake.NewBuilder()
	h, err := webhook.NewHandler(builder, nil, panickingNotifier{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	status, body := post(t, srv.URL+"/webhook/netlify-contact", "application/json", `{"name":"Ann"}`)
	if status != http.StatusInternalServerError || body["success"] != false || body["error"] != "internal error" {
		t.Fatalf("unexpected response %d %v", status, body)
	}
}

func TestWebhookRejectsGet(t *testing.T) {
	f := newFixture(t, nil, nil)
	resp, err := http.Get(f.server.URL + "/webhook/netlify-contact")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func getText(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestLivenessAndReadiness(t *testing.T) {
	f := newFixture(t, nil, store.NewMemory(), webhook.WithBrandName("Zypher Agent"))
	if status, text := getText(t, f.server.URL+"/"); status != http.StatusOK || !strings.Contains(text, "Zypher Agent lead engine is live") {
		t.Fatalf("unexpected liveness %d %q", status, text)
	}
	if status, text := getText(t, f.server.URL+"/readyz"); status != http.StatusOK || !strings.Contains(text, `"ok"`) {
		t.Fatalf("unexpected readiness %d %q", status, text)
	}

	down := newFixture(t, nil, failingRecorder{err: errors.New("db down")})
	if status, _ := getText(t, down.server.URL+"/readyz"); status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from failing store, got %d", status)
	}
}

func TestTestLeadEndpoint(t *testing.T) {
	f := newFixture(t, nil, nil)

	if status, text := getText(t, f.server.URL+"/test-lead"); status != http.StatusOK || !strings.Contains(text, "Test email sent") {
		t.Fatalf("unexpected response %d %q", status, text)
	}
	if status, text := getText(t, f.server.URL+"/test-lead?to="+url.QueryEscape("Ops@Example.com")); status != http.StatusOK || text != "Test email sent\n" {
		t.Fatalf("unexpected response %d %q", status, text)
	}
	if status, _ := getText(t, f.server.URL+"/test-lead?to=nope"); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid recipient, got %d", status)
	}

	mails := f.mailer.mails()
	if len(mails) != 2 || mails[0].To != "admin@example.com" || mails[1].To != "ops@example.com" {
		t.Fatalf("unexpected test mails %+v", mails)
	}

	failing := newFixture(t, &recordingMailer{failOn: map[string]error{models.MailRoleTest: errors.New("boom")}}, nil)
	if status, text := getText(t, failing.server.URL+"/test-lead"); status != http.StatusInternalServerError || !strings.Contains(text, "Email failed") {
		t.Fatalf("unexpected response %d %q", status, text)
	}
}

func TestNewHandlerValidation(t *testing.T) {
	if _, err := webhook.NewHandler(nil, nil, panickingNotifier{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for nil builder")
	}
	if _, err := webhook.NewHandler(intake.NewBuilder(), nil, nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for nil notifier")
	}
}
