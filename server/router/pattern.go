package router

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// <name> placeholder inside a route pattern
	placeholder = regexp.MustCompile(`<([^<>]*)>`)
	validName   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Route is a compiled pattern bound to its handler
type Route struct {
	Pattern string
	Handler Handler

	re *regexp.Regexp
}

// NewRoute compiles pattern: every <name> becomes a group matching one or more
// non-slash chars, literal parts are quoted and the whole path must match.
// '/user/<user_id>/profile' => '^/user/(?P<user_id>[^/]+)/profile$'
func NewRoute(pattern string, h Handler) (Route, error) {
	if h == nil {
		return Route{}, fmt.Errorf("route %q: nil handler", pattern)
	}
	if !strings.HasPrefix(pattern, "/") {
		return Route{}, fmt.Errorf("route %q: pattern must start with /", pattern)
	}

	var sb strings.Builder
	sb.WriteByte('^')

	seen := make(map[string]bool)
	last := 0
	for _, loc := range placeholder.FindAllStringSubmatchIndex(pattern, -1) {
		name := pattern[loc[2]:loc[3]]
		if !validName.MatchString(name) {
			return Route{}, fmt.Errorf("route %q: bad param name %q", pattern, name)
		}
		if seen[name] {
			return Route{}, fmt.Errorf("route %q: duplicate param %q", pattern, name)
		}
		seen[name] = true

		sb.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		sb.WriteString("(?P<" + name + ">[^/]+)")
		last = loc[1]
	}
	sb.WriteString(regexp.QuoteMeta(pattern[last:]))
	sb.WriteByte('$')

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return Route{}, fmt.Errorf("route %q: %w", pattern, err)
	}
	return Route{Pattern: pattern, Handler: h, re: re}, nil
}

func MustRoute(pattern string, h Handler) Route {
	r, err := NewRoute(pattern, h)
	if err != nil {
		panic(err)
	}
	return r
}

// match path against the compiled pattern and collect named groups
func (r *Route) match(path string) (map[string]string, bool) {
	m := r.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}

	params := make(map[string]string, len(m)-1)
	for i, name := range r.re.SubexpNames() {
		if name == "" {
			continue
		}
		params[name] = m[i]
	}
	return params, true
}
