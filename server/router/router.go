package router

import (
	"github.com/kfcemployee/tinyhttpd/server/protocol"
)

// HTTPRouter holds routes in declared order, first match wins.
// the list is copied at construction and never changed,
// so concurrent reads need no lock.
type HTTPRouter struct {
	routes []Route
}

// init a new router from an ordered route table
func NewHTTPRouter(routes []Route) *HTTPRouter {
	rs := make([]Route, len(routes))
	copy(rs, routes)
	return &HTTPRouter{routes: rs}
}

// Resolve returns handler and captured params of the first matching route.
// ok is false when no route matches, the caller falls back to static files.
func (r *HTTPRouter) Resolve(path string) (Handler, map[string]string, bool) {
	for i := range r.routes {
		if params, ok := r.routes[i].match(path); ok {
			return r.routes[i].Handler, params, true
		}
	}
	return nil, nil, false
}

// Serve resolves req.Path and fills req.Params on match, nil means not found
func (r *HTTPRouter) Serve(req *protocol.Request) Handler {
	h, params, ok := r.Resolve(req.Path)
	if !ok {
		return nil
	}
	req.Params = params
	return h
}

// Patterns lists route patterns in match order
func (r *HTTPRouter) Patterns() []string {
	ps := make([]string, len(r.routes))
	for i := range r.routes {
		ps[i] = r.routes[i].Pattern
	}
	return ps
}
