package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/peerconnect/config"
)

// Redis keeps one set per room under room:<id>:peers.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisWithClient(client, cfg.PresenceTTL), nil
}

func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func peersKey(roomID string) string {
	return "room:" + roomID + ":peers"
}

func (r *Redis) Join(ctx context.Context, roomID, sessionID string) error {
	key := peersKey(roomID)

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, sessionID)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add %s to %s: %w", sessionID, key, err)
	}
	return nil
}

func (r *Redis) Leave(ctx context.Context, roomID, sessionID string) error {
	if err := r.client.SRem(ctx, peersKey(roomID), sessionID).Err(); err != nil {
		return fmt.Errorf("remove %s from %s: %w", sessionID, peersKey(roomID), err)
	}
	return nil
}

func (r *Redis) Count(ctx context.Context, roomID string) (int64, error) {
	n, err := r.client.SCard(ctx, peersKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", peersKey(roomID), err)
	}
	return n, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
