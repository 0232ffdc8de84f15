// Package callcap limits concurrent calls per workspace using a shared Redis
// counter, so the cap holds across API instances.
package callcap

import (
	"context"
	"log/slog"
	"time"

	"crm-softphone/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisGuard implements the coordinator's cap guard on Redis.
//
// The slot TTL covers the longest call the liveness timeout allows, so a
// crashed process cannot leak slots forever.
type RedisGuard struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
	log   *slog.Logger
}

func NewRedisGuard(rdb *redis.Client, limit int, slotTTL time.Duration, log *slog.Logger) *RedisGuard {
	if slotTTL <= 0 {
		slotTTL = 5 * time.Hour
	}
	return &RedisGuard{rdb: rdb, limit: limit, ttl: slotTTL, log: log}
}

func capKey(workspaceID string) string {
	return "softphone:callcap:" + workspaceID
}

func (g *RedisGuard) Acquire(ctx context.Context, workspaceID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, g.rdb, capKey(workspaceID), g.limit, g.ttl)
}

func (g *RedisGuard) Release(ctx context.Context, workspaceID string) {
	if err := utils.ReleaseConcurrencyCap(ctx, g.rdb, capKey(workspaceID)); err != nil {
		// The TTL reclaims the slot eventually; log and move on.
		g.log.Warn("call cap release failed", "workspace_id", workspaceID, "err", err)
	}
}
