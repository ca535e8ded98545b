package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quartzlabs/ownermatch/internal/domain"
	"github.com/quartzlabs/ownermatch/internal/infrastructure/redis"
)

// runLockKey is shared by every ownermatch process against the same target.
const runLockKey = "ownermatch:run-lock"

// RedisRunLockRepository implements domain.RunLockRepository. The mapping
// table tolerates exactly one writer; the lock turns a second concurrent
// run into a clean startup failure instead of a mid-run mapping conflict.
type RedisRunLockRepository struct {
	redis  *redis.Client
	token  string
	logger *slog.Logger
}

// NewRedisRunLockRepository creates a run lock repository. The token
// identifies this process so Release only removes a lock it owns.
func NewRedisRunLockRepository(redisClient *redis.Client, token string, logger *slog.Logger) *RedisRunLockRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisRunLockRepository{
		redis:  redisClient,
		token:  token,
		logger: logger,
	}
}

// Acquire takes the run lock with a TTL covering the longest plausible run,
// so a crashed process cannot wedge migrations forever.
func (r *RedisRunLockRepository) Acquire(ctx context.Context, ttl time.Duration) error {
	ok, err := r.redis.SetNX(ctx, runLockKey, r.token, ttl)
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		holder, err := r.redis.Get(ctx, runLockKey)
		if err != nil {
			holder = "unknown"
		}
		r.logger.Error("run lock held by another process",
			slog.String("holder", holder),
		)
		return domain.ErrRunLocked
	}

	r.logger.Info("run lock acquired",
		slog.String("token", r.token),
		slog.Duration("ttl", ttl),
	)
	return nil
}

// Release drops the lock if this process still holds it.
func (r *RedisRunLockRepository) Release(ctx context.Context) error {
	holder, err := r.redis.Get(ctx, runLockKey)
	if err != nil {
		// Already expired or never taken; nothing to release.
		return nil
	}
	if holder != r.token {
		r.logger.Warn("run lock held by a different token, leaving it",
			slog.String("holder", holder),
		)
		return nil
	}

	if err := r.redis.Delete(ctx, runLockKey); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	r.logger.Info("run lock released")
	return nil
}
