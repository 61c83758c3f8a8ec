package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/SkynetNext/serverinfo-rest/internal/auth"
	"github.com/SkynetNext/serverinfo-rest/internal/cache"
	"github.com/SkynetNext/serverinfo-rest/internal/config"
	"github.com/SkynetNext/serverinfo-rest/internal/protocol"
	"github.com/SkynetNext/serverinfo-rest/internal/router"
)

const (
	// ServiceName is reported by the root and status endpoints
	ServiceName = "serverinfo-rest"

	description = "REST API for Minecraft Bedrock Server information"
)

// Version is reported by the root and status endpoints; set at build time
var Version = "1.0.0"

// Handlers serves the REST endpoints from the player cache
type Handlers struct {
	cache  *cache.PlayerCache
	config *config.ServerConfig
	gate   *auth.Gate

	// running reports whether the HTTP server is accepting connections
	running func() bool
}

// NewHandlers creates the endpoint handlers. running may be nil.
func NewHandlers(c *cache.PlayerCache, cfg *config.ServerConfig, gate *auth.Gate, running func() bool) *Handlers {
	if running == nil {
		running = func() bool { return true }
	}
	return &Handlers{
		cache:   c,
		config:  cfg,
		gate:    gate,
		running: running,
	}
}

// Register adds every endpoint to rtr. The health endpoint is not behind the token
// gate so monitoring keeps working when the token is wrong or rotated.
func (h *Handlers) Register(rtr *router.Router) {
	prefix := h.config.APIPrefix

	rtr.Get("/", h.root)
	rtr.Get(prefix+"/health", h.health)
	rtr.Get(prefix+"/status", h.gate.Wrap(h.status))
	rtr.Get(prefix+"/server", h.gate.Wrap(h.server))
	rtr.Get(prefix+"/players", h.gate.Wrap(h.players))
	rtr.Get(prefix+"/players/count", h.gate.Wrap(h.playerCount))
	rtr.Get(prefix+"/players/names", h.gate.Wrap(h.playerNames))
	rtr.Get(prefix+"/player", h.gate.Wrap(h.player))
}

type rootResponse struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Endpoints   map[string]string `json:"endpoints"`
}

func (h *Handlers) root(_ *protocol.Request, resp *protocol.Response) error {
	prefix := h.config.APIPrefix
	root := rootResponse{
		Name:        ServiceName,
		Version:     Version,
		Description: description,
		Endpoints: map[string]string{
			"GET " + prefix + "/status":             "Server status overview",
			"GET " + prefix + "/health":             "Health check",
			"GET " + prefix + "/server":             "Server information",
			"GET " + prefix + "/players":            "List all online players",
			"GET " + prefix + "/players/count":      "Get online player count",
			"GET " + prefix + "/players/names":      "Get list of player names",
			"GET " + prefix + "/player?name=<name>": "Get specific player information",
		},
	}

	// Keep "<name>" readable instead of \u003cname\u003e
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(root); err != nil {
		return err
	}
	resp.SetJSON(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return nil
}

func (h *Handlers) health(_ *protocol.Request, resp *protocol.Response) error {
	return resp.WriteJSON(map[string]string{"status": "healthy"})
}

type statusResponse struct {
	Status      string `json:"status"`
	Plugin      string `json:"plugin"`
	Version     string `json:"version"`
	PlayerCount int    `json:"playerCount"`
}

func (h *Handlers) status(_ *protocol.Request, resp *protocol.Response) error {
	return resp.WriteJSON(statusResponse{
		Status:      "online",
		Plugin:      ServiceName,
		Version:     Version,
		PlayerCount: h.cache.Count(),
	})
}

type serverResponse struct {
	LevelName   string `json:"levelName"`
	PlayerCount int    `json:"playerCount"`
	Status      string `json:"status"`
}

func (h *Handlers) server(_ *protocol.Request, resp *protocol.Response) error {
	status := "running"
	if !h.running() {
		status = "stopping"
	}
	return resp.WriteJSON(serverResponse{
		LevelName:   h.config.LevelName,
		PlayerCount: h.cache.Count(),
		Status:      status,
	})
}

type playerSummary struct {
	Name string `json:"name"`
	XUID string `json:"xuid"`
	UUID string `json:"uuid"`
}

type playersResponse struct {
	Players []playerSummary `json:"players"`
	Count   int             `json:"count"`
}

func (h *Handlers) players(_ *protocol.Request, resp *protocol.Response) error {
	snapshot := h.cache.Snapshot()
	players := make([]playerSummary, 0, len(snapshot))
	for _, p := range snapshot {
		players = append(players, playerSummary{Name: p.Name, XUID: p.XUID, UUID: p.UUID})
	}
	return resp.WriteJSON(playersResponse{Players: players, Count: len(players)})
}

func (h *Handlers) playerCount(_ *protocol.Request, resp *protocol.Response) error {
	return resp.WriteJSON(map[string]int{"count": h.cache.Count()})
}

type namesResponse struct {
	Names []string `json:"names"`
	Count int      `json:"count"`
}

func (h *Handlers) playerNames(_ *protocol.Request, resp *protocol.Response) error {
	snapshot := h.cache.Snapshot()
	names := make([]string, 0, len(snapshot))
	for _, p := range snapshot {
		names = append(names, p.Name)
	}
	return resp.WriteJSON(namesResponse{Names: names, Count: len(names)})
}

func (h *Handlers) player(req *protocol.Request, resp *protocol.Response) error {
	name, _ := req.Param("name")
	if name == "" {
		resp.Error(http.StatusBadRequest, "Missing 'name' parameter")
		return nil
	}

	info, ok := h.cache.FindByName(name)
	if !ok {
		resp.Error(http.StatusNotFound, "Player not found")
		return nil
	}

	return resp.WriteJSON(info)
}
