package auth

import (
	"net/http"

	"github.com/SkynetNext/serverinfo-rest/internal/config"
	"github.com/SkynetNext/serverinfo-rest/internal/logger"
	"github.com/SkynetNext/serverinfo-rest/internal/protocol"
	"github.com/SkynetNext/serverinfo-rest/internal/router"
	"go.uber.org/zap"
)

// TokenParam is the query parameter carrying the shared secret
const TokenParam = "token"

// Gate checks the shared-secret token on requests
type Gate struct {
	enabled bool
	token   string
}

// NewGate creates a gate from the auth configuration
func NewGate(cfg config.AuthConfig) *Gate {
	if cfg.Enabled && cfg.Token == "" {
		logger.L.Warn("token authentication is enabled but the token is empty, every gated request will be rejected")
	}
	return &Gate{
		enabled: cfg.Enabled,
		token:   cfg.Token,
	}
}

// Enabled reports whether requests are checked
func (g *Gate) Enabled() bool {
	return g.enabled
}

// Check reports whether req may proceed. On rejection resp already holds
// a 401 (token missing or empty) or 403 (token wrong) error.
func (g *Gate) Check(req *protocol.Request, resp *protocol.Response) bool {
	if !g.enabled {
		return true
	}

	token, _ := req.Param(TokenParam)
	if token == "" {
		resp.Error(http.StatusUnauthorized, "Missing token parameter")
		logger.L.Debug("request rejected: missing token", zap.String("path", req.Path))
		return false
	}

	if token != g.token {
		resp.Error(http.StatusForbidden, "Invalid token")
		logger.L.Debug("request rejected: invalid token", zap.String("path", req.Path))
		return false
	}

	return true
}

// Wrap returns a handler that runs h only for requests passing Check
func (g *Gate) Wrap(h router.Handler) router.Handler {
	return func(req *protocol.Request, resp *protocol.Response) error {
		if !g.Check(req, resp) {
			return nil
		}
		return h(req, resp)
	}
}
