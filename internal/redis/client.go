package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SkynetNext/serverinfo-rest/internal/cache"
	"github.com/SkynetNext/serverinfo-rest/internal/config"
	"github.com/SkynetNext/serverinfo-rest/internal/events"
	"github.com/SkynetNext/serverinfo-rest/internal/logger"
	"github.com/SkynetNext/serverinfo-rest/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// rosterKey is a hash of xuid -> PlayerInfo JSON maintained by the host
	rosterKey = "players:online"

	// eventsChannel carries events.Event JSON messages published by the host
	eventsChannel = "players:events"
)

// Client is a Redis client wrapper
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient creates a new Redis client
func NewClient(cfg *config.RedisConfig) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &Client{
		rdb:    rdb,
		prefix: cfg.KeyPrefix,
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// key generates full key with prefix
func (c *Client) key(suffix string) string {
	return c.prefix + suffix
}

// LoadRoster loads the players the host currently lists as online.
// Entries that fail to decode are skipped.
func (c *Client) LoadRoster(ctx context.Context) ([]cache.PlayerInfo, error) {
	data, err := c.rdb.HGetAll(ctx, c.key(rosterKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load player roster: %w", err)
	}

	players := make([]cache.PlayerInfo, 0, len(data))
	for xuid, raw := range data {
		var info cache.PlayerInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			metrics.IncEventError("decode")
			logger.L.Warn("skipping malformed roster entry",
				zap.String("xuid", xuid),
				zap.Error(err),
			)
			continue
		}
		if info.XUID == "" {
			info.XUID = xuid
		}
		players = append(players, info)
	}

	return players, nil
}

// WatchPlayerEvents subscribes to host join/leave events and passes each decoded
// event to callback until ctx is done or the subscription is lost.
//
// onSubscribed runs once the subscription is confirmed and before any event is
// delivered, so a roster loaded there cannot miss an event published meanwhile.
// An error from onSubscribed ends the watch.
func (c *Client) WatchPlayerEvents(ctx context.Context, onSubscribed func() error, callback func(events.Event)) error {
	pubsub := c.rdb.Subscribe(ctx, c.key(eventsChannel))
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so startup errors surface here
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to player events: %w", err)
	}

	if onSubscribed != nil {
		if err := onSubscribed(); err != nil {
			return err
		}
	}

	// Blocking reads do not observe ctx; closing the subscription unblocks them
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			pubsub.Close()
		case <-stop:
		}
	}()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("player event subscription lost: %w", err)
		}

		var ev events.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			metrics.IncEventError("decode")
			logger.L.Warn("skipping malformed player event",
				zap.String("channel", msg.Channel),
				zap.Error(err),
			)
			continue
		}
		callback(ev)
	}
}

// PublishEvent publishes an event on the events channel and keeps the roster hash in
// step. Used by host-side integrations and tests.
func (c *Client) PublishEvent(ctx context.Context, ev events.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode player event: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	switch ev.Type {
	case events.TypeJoin:
		player, err := json.Marshal(ev.Player)
		if err != nil {
			return fmt.Errorf("failed to encode player: %w", err)
		}
		pipe.HSet(ctx, c.key(rosterKey), ev.XUID, player)
	case events.TypeLeave:
		pipe.HDel(ctx, c.key(rosterKey), ev.XUID)
	}
	pipe.Publish(ctx, c.key(eventsChannel), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish player event: %w", err)
	}
	return nil
}
