// Package redis provides a Redis-backed continuation queue for suspended executions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

const defaultNamespace = "autoflow"

var _ persistence.ContinuationRepository = (*ContinuationRepository)(nil)

// ContinuationRepository keeps continuations in a sorted set scored by the
// resume time in unix milliseconds. Payloads live in a hash keyed by id and
// each execution has a set of its pending continuation ids.
type ContinuationRepository struct {
	client    goredis.UniversalClient
	namespace string
	logger    *slog.Logger
}

// NewContinuationRepository creates a repository over an existing client.
func NewContinuationRepository(client goredis.UniversalClient, namespace string, logger *slog.Logger) *ContinuationRepository {
	if namespace == "" {
		namespace = defaultNamespace
	}

	return &ContinuationRepository{client: client, namespace: namespace, logger: logger}
}

// Open parses a redis:// url, connects and pings the server.
func Open(ctx context.Context, url string, logger *slog.Logger) (*ContinuationRepository, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewContinuationRepository(client, defaultNamespace, logger), nil
}

func (r *ContinuationRepository) dueKey() string {
	return r.namespace + ":continuations:due"
}

func (r *ContinuationRepository) dataKey() string {
	return r.namespace + ":continuations:data"
}

func (r *ContinuationRepository) executionKey(executionID string) string {
	return r.namespace + ":continuations:execution:" + executionID
}

func (r *ContinuationRepository) Schedule(ctx context.Context, continuation *models.Continuation) error {
	data, err := json.Marshal(continuation)
	if err != nil {
		return fmt.Errorf("failed to marshal continuation: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, r.dataKey(), continuation.ID, data)
		pipe.SAdd(ctx, r.executionKey(continuation.ExecutionID), continuation.ID)
		pipe.ZAdd(ctx, r.dueKey(), goredis.Z{
			Score:  float64(continuation.ResumeAt.UnixMilli()),
			Member: continuation.ID,
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to schedule continuation %s: %w", continuation.ID, err)
	}

	return nil
}

// claimScript moves due members to the lease expiry in one step, so a member
// is handed to exactly one caller per lease.
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[3])
for _, id in ipairs(ids) do
	redis.call('ZADD', KEYS[1], ARGV[2], id)
end
return ids
`)

// ClaimDue leases due ids by rescoring them to now+lease. The payload stays
// in place until Complete.
func (r *ContinuationRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.Continuation, error) {
	if limit <= 0 {
		limit = 100
	}

	ids, err := claimScript.Run(ctx, r.client, []string{r.dueKey()},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(now.Add(lease).UnixMilli(), 10),
		limit,
	).StringSlice()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return []*models.Continuation{}, nil
		}

		return nil, fmt.Errorf("failed to claim due continuations: %w", err)
	}

	claimed := make([]*models.Continuation, 0, len(ids))

	for _, id := range ids {
		continuation, err := r.load(ctx, id)
		if err != nil {
			r.logger.ErrorContext(ctx, "dropping unreadable continuation", "continuation_id", id, "error", err)

			if err := r.client.ZRem(ctx, r.dueKey(), id).Err(); err != nil {
				return claimed, fmt.Errorf("failed to drop continuation %s: %w", id, err)
			}

			continue
		}

		claimed = append(claimed, continuation)
	}

	return claimed, nil
}

func (r *ContinuationRepository) load(ctx context.Context, id string) (*models.Continuation, error) {
	data, err := r.client.HGet(ctx, r.dataKey(), id).Bytes()
	if err != nil {
		return nil, err
	}

	var continuation models.Continuation
	if err := json.Unmarshal(data, &continuation); err != nil {
		return nil, err
	}

	return &continuation, nil
}

func (r *ContinuationRepository) Complete(ctx context.Context, id string) error {
	continuation, err := r.load(ctx, id)
	if err != nil && !errors.Is(err, goredis.Nil) {
		r.logger.WarnContext(ctx, "completing unreadable continuation", "continuation_id", id, "error", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRem(ctx, r.dueKey(), id)
		pipe.HDel(ctx, r.dataKey(), id)

		if continuation != nil {
			pipe.SRem(ctx, r.executionKey(continuation.ExecutionID), id)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete continuation %s: %w", id, err)
	}

	return nil
}

func (r *ContinuationRepository) DeleteByExecution(ctx context.Context, executionID string) error {
	key := r.executionKey(executionID)

	ids, err := r.client.SMembers(ctx, key).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("failed to list continuations of execution %s: %w", executionID, err)
	}

	if len(ids) == 0 {
		return nil
	}

	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRem(ctx, r.dueKey(), members...)
		pipe.HDel(ctx, r.dataKey(), ids...)
		pipe.Del(ctx, key)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete continuations of execution %s: %w", executionID, err)
	}

	return nil
}

// HealthCheck pings the server.
func (r *ContinuationRepository) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *ContinuationRepository) Close() error {
	return r.client.Close()
}

// IsRedisURL reports whether url selects this store.
func IsRedisURL(url string) bool {
	return strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://")
}
