package cache

import (
	"sort"
	"sync"
)

// Position is a player's world coordinates
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PlayerInfo is the cached snapshot of one connected player
type PlayerInfo struct {
	// XUID is the account id, the cache key
	XUID string `json:"xuid"`

	Name       string   `json:"name"`
	UUID       string   `json:"uuid"`
	IPAndPort  string   `json:"ipAndPort"`
	Locale     string   `json:"locale"`
	IsOperator bool     `json:"isOperator"`
	Position   Position `json:"position"`
}

// PlayerCache holds the players the host currently considers connected.
// Records are stored and returned by value, so callers never share memory with the cache.
type PlayerCache struct {
	mu      sync.RWMutex
	players map[string]PlayerInfo // xuid -> info
}

// NewPlayerCache creates an empty cache
func NewPlayerCache() *PlayerCache {
	return &PlayerCache{
		players: make(map[string]PlayerInfo),
	}
}

// Upsert inserts or replaces the record for key
func (c *PlayerCache) Upsert(key string, info PlayerInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.players[key] = info
}

// Remove deletes the record for key and reports whether it was present
func (c *PlayerCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.players[key]
	delete(c.players, key)
	return ok
}

// Get returns the record for key
func (c *PlayerCache) Get(key string) (PlayerInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.players[key]
	return info, ok
}

// Snapshot returns a copy of every record ordered by key.
// The copy is consistent but may be stale as soon as it is returned.
func (c *PlayerCache) Snapshot() []PlayerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := c.sortedKeysLocked()
	players := make([]PlayerInfo, 0, len(keys))
	for _, k := range keys {
		players = append(players, c.players[k])
	}
	return players
}

// FindByName returns the first record, in key order, whose Name equals name
func (c *PlayerCache) FindByName(name string) (PlayerInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, k := range c.sortedKeysLocked() {
		if info := c.players[k]; info.Name == name {
			return info, true
		}
	}
	return PlayerInfo{}, false
}

// Replace swaps the whole roster for players, keyed by XUID, in one step. Readers see
// either the old roster or the new one, never a mix. Records without an XUID are
// skipped; the number skipped is returned.
func (c *PlayerCache) Replace(players []PlayerInfo) (skipped int) {
	next := make(map[string]PlayerInfo, len(players))
	for _, p := range players {
		if p.XUID == "" {
			skipped++
			continue
		}
		next[p.XUID] = p
	}

	c.mu.Lock()
	c.players = next
	c.mu.Unlock()
	return skipped
}

// Count returns the number of cached players
func (c *PlayerCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.players)
}

// Clear removes every record
func (c *PlayerCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.players = make(map[string]PlayerInfo)
}

func (c *PlayerCache) sortedKeysLocked() []string {
	keys := make([]string, 0, len(c.players))
	for k := range c.players {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
