package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/persistence/file"
	"github.com/dukex/autoflow/pkg/persistence/postgresql"
	"github.com/dukex/autoflow/pkg/persistence/redis"
)

// NewPersistence opens the store selected by databaseURL ("file://<dir>",
// a bare directory, or "postgres://..."). A redis:// continuationURL moves
// the continuation queue to Redis.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL, continuationURL string) (persistence.Persistence, error) {
	var (
		base persistence.Persistence
		err  error
	)

	switch parsePersistenceProvider(databaseURL) {
	case "postgres":
		base, err = postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}
	default:
		base = file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}

	if continuationURL == "" {
		return base, nil
	}

	if !redis.IsRedisURL(continuationURL) {
		_ = base.Close(ctx)

		return nil, fmt.Errorf("unsupported continuation store %q", continuationURL)
	}

	continuations, err := redis.Open(ctx, continuationURL, logger.With("module", "redis_continuations"))
	if err != nil {
		_ = base.Close(ctx)

		return nil, err
	}

	return &redisContinuations{Persistence: base, continuations: continuations}, nil
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch provider {
	case "postgres", "postgresql":
		return "postgres"
	default:
		return "file"
	}
}

// redisContinuations serves continuations from Redis and everything else
// from the base store.
type redisContinuations struct {
	persistence.Persistence

	continuations *redis.ContinuationRepository
}

func (p *redisContinuations) Continuations() persistence.ContinuationRepository {
	return p.continuations
}

func (p *redisContinuations) HealthCheck(ctx context.Context) error {
	return errors.Join(p.Persistence.HealthCheck(ctx), p.continuations.HealthCheck(ctx))
}

func (p *redisContinuations) Close(ctx context.Context) error {
	return errors.Join(p.Persistence.Close(ctx), p.continuations.Close())
}
