package trace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jgivc/ftpstage/internal/entity"
	"github.com/redis/go-redis/v9"
)

const (
	KeyTrace     = "tr"  // HASH. trace:execution:task field: value
	KeyRuns      = "trr" // SET. runs:execution task
	KeySeparator = ":"

	fieldRunID      = "run_id"
	defaultTraceTTL = 7 * 24 * time.Hour
)

type redisRepository struct {
	cl  *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func NewRedisRepository(cl *redis.Client, log *slog.Logger) *redisRepository {
	return &redisRepository{
		cl:  cl,
		ttl: defaultTraceTTL,
		log: log.With(slog.String("item", "TraceRedisRepository")),
	}
}

// Save stores the record as a hash and adds the task to the runs of its
// execution, both in one pipeline.
func (r *redisRepository) Save(ctx context.Context, rec *entity.TraceRecord) error {
	key := getKey(KeyTrace, rec.Execution, rec.Task)
	runs := getKey(KeyRuns, rec.Execution)

	values := make([]any, 0, 2*len(rec.Fields)+2)
	for _, field := range rec.Fields {
		values = append(values, field.Key, field.Value)
	}

	if rec.RunID != "" {
		values = append(values, fieldRunID, rec.RunID)
	}

	pipe := r.cl.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, r.ttl)
	pipe.SAdd(ctx, runs, rec.Task)
	pipe.Expire(ctx, runs, r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Cannot save trace", slog.String("key", key), slog.Any("error", err))

		return fmt.Errorf("cannot save trace: %w", err)
	}

	r.log.Debug("Trace saved", slog.String("key", key), slog.Int("fields", len(rec.Fields)))

	return nil
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
