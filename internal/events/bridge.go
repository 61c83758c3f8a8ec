package events

import (
	"context"
	"fmt"

	"github.com/SkynetNext/serverinfo-rest/internal/cache"
	"github.com/SkynetNext/serverinfo-rest/internal/logger"
	"github.com/SkynetNext/serverinfo-rest/internal/metrics"
	"go.uber.org/zap"
)

// Type is the kind of host notification
type Type string

const (
	TypeJoin  Type = "join"
	TypeLeave Type = "leave"
)

// Event is a join or leave notification from the host process.
// Player is required for joins and ignored for leaves.
type Event struct {
	Type   Type              `json:"type"`
	XUID   string            `json:"xuid"`
	Player *cache.PlayerInfo `json:"player,omitempty"`
}

// Validate checks that the event can be applied
func (e Event) Validate() error {
	if e.XUID == "" {
		return fmt.Errorf("event has no xuid")
	}
	switch e.Type {
	case TypeJoin:
		if e.Player == nil {
			return fmt.Errorf("join event for %s has no player", e.XUID)
		}
	case TypeLeave:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// Bridge applies host notifications to the player cache. Its methods may be
// called from any goroutine.
type Bridge struct {
	cache *cache.PlayerCache
}

// NewBridge creates a bridge that updates c
func NewBridge(c *cache.PlayerCache) *Bridge {
	return &Bridge{cache: c}
}

// Join records a connected player under key, replacing any earlier record
func (b *Bridge) Join(key string, info cache.PlayerInfo) {
	if info.XUID == "" {
		info.XUID = key
	}
	b.cache.Upsert(key, info)
	metrics.PlayerEvents.WithLabelValues(string(TypeJoin)).Inc()
	metrics.CachedPlayers.Set(float64(b.cache.Count()))
	logger.L.Debug("player joined",
		zap.String("xuid", key),
		zap.String("name", info.Name),
	)
}

// Leave forgets the player stored under key
func (b *Bridge) Leave(key string) {
	removed := b.cache.Remove(key)
	metrics.PlayerEvents.WithLabelValues(string(TypeLeave)).Inc()
	metrics.CachedPlayers.Set(float64(b.cache.Count()))
	if !removed {
		logger.L.Debug("leave for unknown player ignored", zap.String("xuid", key))
		return
	}
	logger.L.Debug("player left", zap.String("xuid", key))
}

// Apply validates and applies one event
func (b *Bridge) Apply(ev Event) error {
	if err := ev.Validate(); err != nil {
		metrics.IncEventError("invalid")
		return err
	}
	switch ev.Type {
	case TypeJoin:
		b.Join(ev.XUID, *ev.Player)
	case TypeLeave:
		b.Leave(ev.XUID)
	}
	return nil
}

// Seed replaces the cache contents with a full roster, as read from the host
func (b *Bridge) Seed(players []cache.PlayerInfo) {
	if skipped := b.cache.Replace(players); skipped > 0 {
		metrics.EventErrors.WithLabelValues("invalid").Add(float64(skipped))
	}
	metrics.CachedPlayers.Set(float64(b.cache.Count()))
	logger.L.Info("player roster seeded", zap.Int("count", b.cache.Count()))
}

// Run applies events from ch until ch is closed or ctx is done
func (b *Bridge) Run(ctx context.Context, ch <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := b.Apply(ev); err != nil {
				logger.L.Warn("dropping host event", zap.Error(err))
			}
		}
	}
}

// JoinFrom maps a host-native player object with mapper and records the result.
// mapper must be a pure function of its input.
func JoinFrom[T any](b *Bridge, key string, native T, mapper func(T) cache.PlayerInfo) {
	b.Join(key, mapper(native))
}
