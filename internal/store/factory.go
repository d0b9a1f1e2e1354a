package store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/lead-intake-service/internal/config"
	"github.com/example/lead-intake-service/internal/kafka/producer"
	"github.com/example/lead-intake-service/internal/kafka/publisher"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var noopCloser = closerFunc(func() error { return nil })

// New builds the configured Recorder. The returned Closer releases any
// backend connection and is never nil.
func New(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (Recorder, io.Closer, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = config.StoreMemory
	}

	var (
		rec    Recorder
		closer io.Closer = noopCloser
	)
	switch backend {
	case config.StoreMemory:
		rec = NewMemory()
	case config.StoreNone:
		rec = Nop{}
	case config.StorePostgres:
		pg, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		rec, closer = pg, pg
	case config.StoreRedis:
		r, err := OpenRedis(ctx, cfg.RedisURL, cfg.RedisKey, cfg.RedisMaxLen)
		if err != nil {
			return nil, nil, err
		}
		rec, closer = r, r
	case config.StoreKafka:
		prod, err := producer.New(cfg.KafkaBrokers, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("store: kafka producer: %w", err)
		}
		rec, closer = publisher.NewLeadPublisher(prod, cfg.KafkaTopic, logger), prod
	default:
		return nil, nil, fmt.Errorf("store: unsupported backend %q", cfg.Backend)
	}

	logger.Info().Str("backend", backend).Msg("lead store initialised")
	return rec, closer, nil
}
