package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "beachtrivia:presence:"
	gamesKey  = keyPrefix + "games"
	// keyTTL lets abandoned games expire even without a janitor sweep.
	keyTTL = 6 * time.Hour
)

// Redis keeps one sorted set per game, scored by last heartbeat in unix
// milliseconds, so several app instances share one view of presence.
type Redis struct {
	client redis.Cmdable
}

// NewRedis wraps client.
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

func gameKey(gameID string) string {
	return keyPrefix + "game:" + gameID
}

// Touch records a heartbeat.
func (r *Redis) Touch(ctx context.Context, gameID, playerID string, at time.Time) error {
	key := gameKey(gameID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddGT(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: playerID})
		pipe.Expire(ctx, key, keyTTL)
		pipe.SAdd(ctx, gamesKey, gameID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence touch: %w", err)
	}
	return nil
}

// CountActive counts players seen at or after since.
func (r *Redis) CountActive(ctx context.Context, gameID string, since time.Time) (int, error) {
	n, err := r.client.ZCount(ctx, gameKey(gameID), strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("presence count: %w", err)
	}
	return int(n), nil
}

// Prune removes players last seen before before from every tracked game.
func (r *Redis) Prune(ctx context.Context, before time.Time) (int64, error) {
	games, err := r.client.SMembers(ctx, gamesKey).Result()
	if err != nil {
		return 0, fmt.Errorf("presence games: %w", err)
	}
	cutoff := "(" + strconv.FormatInt(before.UnixMilli(), 10)

	var removed int64
	for _, gameID := range games {
		key := gameKey(gameID)
		n, err := r.client.ZRemRangeByScore(ctx, key, "-inf", cutoff).Result()
		if err != nil {
			return removed, fmt.Errorf("presence prune %s: %w", gameID, err)
		}
		removed += n

		left, err := r.client.ZCard(ctx, key).Result()
		if err != nil {
			return removed, fmt.Errorf("presence prune %s: %w", gameID, err)
		}
		if left == 0 {
			if err := r.client.SRem(ctx, gamesKey, gameID).Err(); err != nil {
				return removed, fmt.Errorf("presence prune %s: %w", gameID, err)
			}
		}
	}
	return removed, nil
}
