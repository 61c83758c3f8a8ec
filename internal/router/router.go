package router

import (
	"sort"
	"sync"

	"github.com/SkynetNext/serverinfo-rest/internal/protocol"
)

// Handler fills in resp for req. A returned error is turned into a 500 by the server.
type Handler func(req *protocol.Request, resp *protocol.Response) error

// Route identifies a handler by method and exact path
type Route struct {
	Method string
	Path   string
}

// Router maps routes to handlers. Paths match exactly: no parameters, no wildcards,
// and "/a" and "/a/" are different routes.
type Router struct {
	mu     sync.RWMutex
	routes map[Route]Handler
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{
		routes: make(map[Route]Handler),
	}
}

// Register adds a handler, replacing any existing handler for the same method and path
func (r *Router) Register(method, path string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[Route{Method: method, Path: path}] = h
}

// Get registers a GET handler
func (r *Router) Get(path string, h Handler) {
	r.Register("GET", path, h)
}

// Lookup finds the handler for method and path
func (r *Router) Lookup(method, path string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.routes[Route{Method: method, Path: path}]
	return h, ok
}

// Routes returns all registered routes sorted by path, then method (for logging)
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]Route, 0, len(r.routes))
	for rt := range r.routes {
		routes = append(routes, rt)
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}
