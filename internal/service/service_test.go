package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/SkynetNext/serverinfo-rest/internal/cache"
	"github.com/SkynetNext/serverinfo-rest/internal/config"
	"github.com/SkynetNext/serverinfo-rest/internal/events"
	"github.com/SkynetNext/serverinfo-rest/internal/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.GracefulShutdownTimeout = time.Second
	return cfg
}

func startService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	svc, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
		defer cancel()
		assert.NoError(t, svc.Shutdown(ctx))
	})
	return svc
}

func get(t *testing.T, addr net.Addr, target string) (int, string) {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET " + target + " HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

// freePort returns a port that was free a moment ago
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestService_JoinLeave(t *testing.T) {
	svc := startService(t, testConfig())

	svc.Bridge().Join("x1", cache.PlayerInfo{Name: "Alice", UUID: "u1"})

	code, body := get(t, svc.Addr(), "/api/v1/player?name=Alice")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, `"xuid":"x1"`)

	code, body = get(t, svc.Addr(), "/api/v1/players/count")
	assert.Equal(t, 200, code)
	assert.JSONEq(t, `{"count":1}`, body)

	require.NoError(t, svc.Bridge().Apply(events.Event{Type: events.TypeLeave, XUID: "x1"}))

	code, body = get(t, svc.Addr(), "/api/v1/player?name=Alice")
	assert.Equal(t, 404, code)
	assert.JSONEq(t, `{"error":"Player not found"}`, body)
}

func TestService_Auth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, Token: "S"}
	svc := startService(t, cfg)

	code, body := get(t, svc.Addr(), "/api/v1/players")
	assert.Equal(t, 401, code)
	assert.JSONEq(t, `{"error":"Missing token parameter"}`, body)

	code, _ = get(t, svc.Addr(), "/api/v1/players?token=S")
	assert.Equal(t, 200, code)

	code, _ = get(t, svc.Addr(), "/api/v1/health")
	assert.Equal(t, 200, code)
}

func TestService_Reload(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = freePort(t)
	svc := startService(t, cfg)
	svc.Bridge().Join("x1", cache.PlayerInfo{Name: "Alice"})

	next := *cfg
	next.Server.APIPrefix = "/v2"
	next.Server.LevelName = "Bedrock level"
	require.NoError(t, svc.Reload(&next))

	code, body := get(t, svc.Addr(), "/v2/server")
	assert.Equal(t, 200, code)
	assert.JSONEq(t, `{"levelName":"Bedrock level","playerCount":1,"status":"running"}`, body)

	code, _ = get(t, svc.Addr(), "/api/v1/server")
	assert.Equal(t, 404, code)
}

func TestService_ReloadRejectsInvalid(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = freePort(t)
	svc := startService(t, cfg)

	bad := *cfg
	bad.Server.APIPrefix = "no-slash"
	assert.Error(t, svc.Reload(&bad))

	code, _ := get(t, svc.Addr(), "/api/v1/health")
	assert.Equal(t, 200, code)
}

func TestService_BindFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := testConfig()
	cfg.Server.Port = l.Addr().(*net.TCPAddr).Port

	svc, err := New(cfg)
	require.NoError(t, err)
	assert.Error(t, svc.Start(context.Background()))
	assert.Nil(t, svc.Addr())
}

func TestService_ShutdownClearsCache(t *testing.T) {
	svc, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	addr := svc.Addr().String()

	svc.Bridge().Join("x1", cache.PlayerInfo{Name: "Alice"})
	require.NoError(t, svc.Shutdown(context.Background()))

	assert.Equal(t, 0, svc.Cache().Count())
	_, err = net.DialTimeout("tcp", addr, 500*time.Millisecond)
	assert.Error(t, err)
}

func TestAPIURL(t *testing.T) {
	addr := &net.TCPAddr{IP: net.IPv4zero, Port: 60202}
	assert.Equal(t, "http://localhost:60202/api/v1", apiURL(addr, "/api/v1"))

	addr = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8080}
	assert.Equal(t, "http://127.0.0.1:8080/api", apiURL(addr, "/api"))
}

func TestService_ReloadAfterShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = freePort(t)

	svc, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	addr := svc.Addr().String()
	require.NoError(t, svc.Shutdown(context.Background()))

	next := *cfg
	next.Server.APIPrefix = "/v2"
	assert.Error(t, svc.Reload(&next))
	assert.Nil(t, svc.Addr())

	_, err = net.DialTimeout("tcp", addr, 500*time.Millisecond)
	assert.Error(t, err, "nothing listens on the old port after shutdown")

	assert.Error(t, svc.Start(context.Background()))
	assert.NoError(t, svc.Shutdown(context.Background()), "second shutdown is a no-op")
}

// redisConfig points cfg at an in-process Redis server and returns a host-side client
func redisConfig(t *testing.T, cfg *config.Config) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.KeyPrefix = "serverinfo-test:"

	host := redis.NewClient(&cfg.Redis)
	t.Cleanup(func() { host.Close() })
	return mr, host
}

func TestService_RedisFeed(t *testing.T) {
	cfg := testConfig()
	_, host := redisConfig(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Already online before the service starts: picked up by the roster seed
	require.NoError(t, host.PublishEvent(ctx, events.Event{
		Type: events.TypeJoin, XUID: "x1", Player: &cache.PlayerInfo{XUID: "x1", Name: "Alice"},
	}))

	svc := startService(t, cfg)
	assert.Equal(t, 1, svc.Cache().Count())

	// The subscription is live once Start returns, so a single publish is enough
	require.NoError(t, host.PublishEvent(ctx, events.Event{
		Type: events.TypeJoin, XUID: "x2", Player: &cache.PlayerInfo{XUID: "x2", Name: "Bob"},
	}))
	require.Eventually(t, func() bool {
		_, ok := svc.Cache().Get("x2")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	code, body := get(t, svc.Addr(), "/api/v1/players/names")
	assert.Equal(t, 200, code)
	assert.JSONEq(t, `{"names":["Alice","Bob"],"count":2}`, body)

	require.NoError(t, host.PublishEvent(ctx, events.Event{Type: events.TypeLeave, XUID: "x1"}))
	require.Eventually(t, func() bool {
		_, ok := svc.Cache().Get("x1")
		return !ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestService_RedisFeedNoGapAfterStart(t *testing.T) {
	for i := 0; i < 5; i++ {
		cfg := testConfig()
		_, host := redisConfig(t, cfg)

		svc, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, svc.Start(context.Background()))

		xuid := fmt.Sprintf("x%d", i)
		require.NoError(t, host.PublishEvent(context.Background(), events.Event{
			Type: events.TypeJoin, XUID: xuid, Player: &cache.PlayerInfo{XUID: xuid, Name: "Steve"},
		}))
		assert.Eventually(t, func() bool {
			_, ok := svc.Cache().Get(xuid)
			return ok
		}, 2*time.Second, 20*time.Millisecond, "run %d: join published right after Start was lost", i)

		require.NoError(t, svc.Shutdown(context.Background()))
	}
}

func TestService_RedisReseedAfterLostSubscription(t *testing.T) {
	cfg := testConfig()
	mr, host := redisConfig(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, host.PublishEvent(ctx, events.Event{
		Type: events.TypeJoin, XUID: "x1", Player: &cache.PlayerInfo{XUID: "x1", Name: "Alice"},
	}))
	svc := startService(t, cfg)
	require.Equal(t, 1, svc.Cache().Count())

	// The roster changes while the service is cut off; no event reaches it
	mr.Close()
	rosterKey := cfg.Redis.KeyPrefix + "players:online"
	mr.HDel(rosterKey, "x1")
	mr.HSet(rosterKey, "x2", `{"xuid":"x2","name":"Bob"}`)
	mr.HSet(rosterKey, "x3", `{"xuid":"x3","name":"Carol"}`)
	require.NoError(t, mr.Restart())

	require.Eventually(t, func() bool {
		_, gone := svc.Cache().Get("x1")
		return !gone && svc.Cache().Count() == 2
	}, 4*time.Second, 50*time.Millisecond)

	code, body := get(t, svc.Addr(), "/api/v1/players/names")
	assert.Equal(t, 200, code)
	assert.JSONEq(t, `{"names":["Bob","Carol"],"count":2}`, body)
}

func TestService_RedisUnavailable(t *testing.T) {
	cfg := testConfig()
	mr, _ := redisConfig(t, cfg)
	mr.Close()

	_, err := New(cfg)
	assert.Error(t, err)
}
