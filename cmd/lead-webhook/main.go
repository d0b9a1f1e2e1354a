package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	emailadapter "github.com/example/lead-intake-service/internal/adapters/email"
	"github.com/example/lead-intake-service/internal/config"
	"github.com/example/lead-intake-service/internal/intake"
	"github.com/example/lead-intake-service/internal/logger"
	"github.com/example/lead-intake-service/internal/notify"
	"github.com/example/lead-intake-service/internal/providers/factory"
	"github.com/example/lead-intake-service/internal/store"
	"github.com/example/lead-intake-service/internal/webhook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New("lead-webhook", cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := *baseLogger

	sendTimeout := time.Duration(cfg.Timeouts.SendTimeoutSeconds) * time.Second

	provider, err := factory.Email(cfg.Providers, sendTimeout, log.With().Str("component", "email-provider").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise email provider")
	}

	adapter, err := emailadapter.NewAdapter(provider, log.With().Str("component", "email-adapter").Logger(),
		emailadapter.WithSendTimeout(sendTimeout),
		emailadapter.WithMaxConcurrentSends(cfg.Mail.MaxConcurrentSends),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise email adapter")
	}

	dispatcher, err := notify.NewDispatcher(adapter, cfg.Mail, cfg.Branding, log.With().Str("component", "dispatcher").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise dispatcher")
	}

	recorder, closer, err := store.New(ctx, cfg.Store, log.With().Str("component", "store").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise lead store")
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close lead store")
		}
	}()

	handler, err := webhook.NewHandler(intake.NewBuilder(), recorder, dispatcher, log.With().Str("component", "webhook").Logger(),
		webhook.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		webhook.WithBrandName(cfg.Branding.Name),
		webhook.WithRecordTimeout(time.Duration(cfg.Store.RecordTimeoutSeconds)*time.Second),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise webhook handler")
	}

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().
		Str("addr", srv.Addr).
		Str("email", adapter.String()).
		Str("store", cfg.Store.Backend).
		Msg("lead webhook started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server terminated with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("lead webhook init failed")
}
