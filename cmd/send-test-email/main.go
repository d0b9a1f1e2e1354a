// Command send-test-email pushes one test message through the configured
// provider and exits non-zero on failure.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	emailadapter "github.com/example/lead-intake-service/internal/adapters/email"
	"github.com/example/lead-intake-service/internal/config"
	"github.com/example/lead-intake-service/internal/notify"
	"github.com/example/lead-intake-service/internal/providers/factory"
)

func main() {
	to := flag.String("to", "", "recipient address (defaults to ADMIN_EMAIL)")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	sendTimeout := time.Duration(cfg.Timeouts.SendTimeoutSeconds) * time.Second
	provider, err := factory.Email(cfg.Providers, sendTimeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise email provider")
	}

	adapter, err := emailadapter.NewAdapter(provider, logger, emailadapter.WithSendTimeout(sendTimeout))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise email adapter")
	}

	dispatcher, err := notify.NewDispatcher(adapter, cfg.Mail, cfg.Branding, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise dispatcher")
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout+time.Second)
	defer cancel()

	response, err := dispatcher.SendTest(ctx, *to)
	if err != nil {
		logger.Fatal().Err(err).Msg("test email failed")
	}

	logger.Info().
		Str("provider", adapter.String()).
		Str("provider_id", response.ProviderID()).
		Str("status", response.Status).
		Msg("test email sent")
}
