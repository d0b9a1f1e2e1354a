package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/lead-intake-service/internal/config"
	emailprovider "github.com/example/lead-intake-service/internal/providers/email"
)

// Email constructs the configured email provider. sendTimeout sizes the
// circuit breaker timeout for HTTP backends.
func Email(cfg config.ProviderConfig, sendTimeout time.Duration, logger zerolog.Logger) (emailprovider.Provider, error) {
	backend := normalize(cfg.EmailProvider, config.EmailProviderMock)
	switch backend {
	case config.EmailProviderSMTP:
		provider, err := emailprovider.NewSMTPProvider(cfg.SMTP, logger)
		if err != nil {
			return nil, fmt.Errorf("factory: smtp provider init: %w", err)
		}
		logger.Info().
			Str("backend", backend).
			Str("host", cfg.SMTP.Host).
			Int("port", cfg.SMTP.Port).
			Msg("email provider initialised")
		return provider, nil
	case config.EmailProviderResend:
		provider, err := emailprovider.NewResendProvider(cfg.Resend, logger,
			emailprovider.WithResendTimeout(sendTimeout+time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("factory: resend provider init: %w", err)
		}
		logger.Info().
			Str("backend", backend).
			Msg("email provider initialised")
		return provider, nil
	case config.EmailProviderMock:
		provider := emailprovider.NewMockProvider(logger)
		logger.Info().
			Str("backend", backend).
			Msg("email provider initialised")
		return provider, nil
	default:
		return nil, fmt.Errorf("factory: unsupported email provider backend %q", cfg.EmailProvider)
	}
}

func normalize(value, def string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return def
	}
	return value
}
