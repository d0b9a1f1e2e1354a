// Package webhook exposes the lead intake HTTP endpoints.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	common "github.com/example/lead-intake-service/internal/adapters/common"
	"github.com/example/lead-intake-service/internal/intake"
	"github.com/example/lead-intake-service/internal/logger"
	"github.com/example/lead-intake-service/internal/models"
	"github.com/example/lead-intake-service/internal/notify"
	"github.com/example/lead-intake-service/internal/store"
	"github.com/example/lead-intake-service/internal/util"
)

// Error strings returned to webhook senders. They never carry provider or
// parser detail.
const (
	errDelivery  = "notification delivery failed"
	errMalformed = "malformed payload"
	errInternal  = "internal error"
)

const (
	// SourceNetlifyContact is the source recorded for the legacy Netlify route.
	SourceNetlifyContact = "netlify-contact"
	defaultMaxBodyBytes  = 1 << 20
	defaultRecordTimeout = 5 * time.Second
	logBodyChars         = 2048
)

// Notifier is the notification side of the pipeline.
type Notifier interface {
	Dispatch(ctx context.Context, lead models.LeadRecord) notify.Outcome
	SendTest(ctx context.Context, to string) (*common.ProviderResponse, error)
}

type response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Option customises a Handler.
type Option func(*Handler)

// WithMaxBodyBytes caps the accepted request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithRecordTimeout bounds the lead store call made before notification.
func WithRecordTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.recordTimeout = d
		}
	}
}

// WithBrandName sets the name shown by the liveness endpoint.
func WithBrandName(name string) Option {
	return func(h *Handler) {
		if strings.TrimSpace(name) != "" {
			h.brand = strings.TrimSpace(name)
		}
	}
}

// Handler runs the intake pipeline: decode, normalize, build, record and
// notify.
type Handler struct {
	builder       *intake.Builder
	recorder      store.Recorder
	notifier      Notifier
	logger        zerolog.Logger
	maxBodyBytes  int64
	recordTimeout time.Duration
	brand         string
}

// NewHandler wires the pipeline stages. A nil recorder disables recording.
func NewHandler(builder *intake.Builder, recorder store.Recorder, notifier Notifier, logger zerolog.Logger, opts ...Option) (*Handler, error) {
	if builder == nil {
		return nil, errors.New("webhook: builder dependency is required")
	}
	if notifier == nil {
		return nil, errors.New("webhook: notifier dependency is required")
	}
	if recorder == nil {
		recorder = store.Nop{}
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	h := &Handler{
		builder:       builder,
		recorder:      recorder,
		notifier:      notifier,
		logger:        logger,
		maxBodyBytes:  defaultMaxBodyBytes,
		recordTimeout: defaultRecordTimeout,
		brand:         "Lead",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Router returns the HTTP routes with recovery and access logging applied.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(logMiddleware(h.logger), recoverMiddleware(h.logger))

	r.HandleFunc("/", h.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.handleReadiness).Methods(http.MethodGet)
	r.HandleFunc("/test-lead", h.handleTestLead).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/webhook/"+SourceNetlifyContact, h.handleLead).Methods(http.MethodPost)
	r.HandleFunc("/webhook/{source:[A-Za-z0-9_-]+}", h.handleLead).Methods(http.MethodPost)

	return r
}

func (h *Handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.brand+" lead engine is live\n")
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	checker, ok := h.recorder.(store.Checker)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if err := checker.Check(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("webhook: lead store not ready")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleTestLead(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if to != "" {
		normalized, err := util.NormalizeEmail(to)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, "Invalid recipient\n")
			return
		}
		to = normalized
	}

	if _, err := h.notifier.SendTest(context.WithoutCancel(r.Context()), to); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "Email failed\n")
		return
	}
	_, _ = io.WriteString(w, "Test email sent\n")
}

func (h *Handler) handleLead(w http.ResponseWriter, r *http.Request) {
	source := SourceNetlifyContact
	if s, ok := mux.Vars(r)["source"]; ok {
		source = strings.ToLower(s)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.logger.Warn().Str("source", source).Err(err).Msg("webhook: read body failed")
		writeJSON(w, http.StatusInternalServerError, response{Error: errMalformed})
		return
	}

	raw, err := intake.Decode(r.Header.Get("Content-Type"), body)
	if err != nil {
		h.logger.Warn().Str("source", source).Err(err).Msg("webhook: decode body failed")
		h.logger.Debug().
			Str("source", source).
			Str("content_type", r.Header.Get("Content-Type")).
			Str("body", logger.Truncate(string(body), logBodyChars)).
			Msg("webhook: undecodable body")
		writeJSON(w, http.StatusInternalServerError, response{Error: errMalformed})
		return
	}

	fields, shape := intake.Normalize(raw)
	lead := h.builder.Build(source, fields)
	h.logger.Info().
		Str("lead_id", lead.ID).
		Str("source", source).
		Str("shape", string(shape)).
		Int("field_count", len(fields)).
		Bool("has_client_email", lead.HasClientEmail).
		Msg("webhook: lead received")

	// Sends continue if the sender hangs up; the per-send timeout still applies.
	ctx := context.WithoutCancel(r.Context())

	h.record(ctx, lead)

	out := h.notifier.Dispatch(ctx, lead)
	if !out.Success() {
		writeJSON(w, http.StatusInternalServerError, response{Error: errDelivery})
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true})
}

// record stores lead within recordTimeout. A slow or failing store is logged
// and never holds back notification.
func (h *Handler) record(ctx context.Context, lead models.LeadRecord) {
	ctx, cancel := context.WithTimeout(ctx, h.recordTimeout)
	defer cancel()

	start := time.Now()
	if err := h.recorder.Record(ctx, lead); err != nil {
		h.logger.Error().
			Str("lead_id", lead.ID).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("webhook: record lead failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
