package eventbus

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// fieldPayload is the single stream entry field carrying the encoded event.
const fieldPayload = "payload"

// redisConn implements streamConn on Redis Streams: XADD with approximate
// MAXLEN trimming, XREADGROUP for competing consumers, XACK for removal from
// the pending list, and XAUTOCLAIM for crash recovery.
type redisConn struct {
	client *redis.Client
}

func dialRedis(cfg Config) streamConn {
	return &redisConn{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (c *redisConn) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisConn) Append(ctx context.Context, stream string, payload []byte, maxLen int64) (string, error) {
	return c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]any{fieldPayload: payload},
	}).Result()
}

func (c *redisConn) EnsureGroup(ctx context.Context, stream, group string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (c *redisConn) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]streamEntry, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var entries []streamEntry
	for _, s := range streams {
		for _, msg := range s.Messages {
			entries = append(entries, messageToEntry(msg))
		}
	}
	return entries, nil
}

func (c *redisConn) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return c.client.XAck(ctx, stream, group, ids...).Err()
}

func (c *redisConn) AutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]streamEntry, error) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	entries := make([]streamEntry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, messageToEntry(msg))
	}
	return entries, nil
}

func (c *redisConn) Close() error {
	return c.client.Close()
}

func messageToEntry(msg redis.XMessage) streamEntry {
	entry := streamEntry{ID: msg.ID}
	switch value := msg.Values[fieldPayload].(type) {
	case string:
		entry.Payload = []byte(value)
	case []byte:
		entry.Payload = value
	}
	return entry
}
