package httpapi

import (
	"net/http"
	"sort"
	"strings"
)

// PathOperations maps request paths to operation IDs by longest matching
// prefix. A prefix matches whole path segments only: "/api" matches
// "/api" and "/api/users" but not "/apis".
type PathOperations struct {
	routes []pathRoute
}

type pathRoute struct {
	prefix    string
	operation string
}

// NewPathOperations builds a router from prefix to operation ID. Empty
// prefixes are ignored.
func NewPathOperations(routes map[string]string) *PathOperations {
	p := &PathOperations{routes: make([]pathRoute, 0, len(routes))}
	for prefix, op := range routes {
		if prefix == "" || op == "" {
			continue
		}
		p.routes = append(p.routes, pathRoute{prefix: strings.TrimSuffix(prefix, "/"), operation: op})
	}
	sort.Slice(p.routes, func(i, j int) bool {
		return len(p.routes[i].prefix) > len(p.routes[j].prefix)
	})
	return p
}

// Operation returns the operation for r, or "" when no prefix matches.
// It has the shape of Options.OperationFunc.
func (p *PathOperations) Operation(r *http.Request) string {
	path := r.URL.Path
	for _, route := range p.routes {
		if route.prefix == "" {
			return route.operation
		}
		rest, ok := strings.CutPrefix(path, route.prefix)
		if ok && (rest == "" || rest[0] == '/') {
			return route.operation
		}
	}
	return ""
}
