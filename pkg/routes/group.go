package routes

import "net/http"

// Group is a set of routes under a shared prefix. Children inherit the prefix.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Wrap decorates the handler registered for path, the full route path without
// the method. Instrumentation uses it to label by route instead of raw URL.
type Wrap func(path string, h http.Handler) http.Handler

// Register adds every route of groups to mux. A nil wrap registers handlers
// as they are.
func Register(mux *http.ServeMux, wrap Wrap, groups ...Group) {
	for _, g := range groups {
		register(mux, wrap, "", g)
	}
}

// Paths lists "METHOD path" for every route of groups, in registration order.
func Paths(groups ...Group) []string {
	var out []string
	var walk func(prefix string, g Group)
	walk = func(prefix string, g Group) {
		prefix += g.Prefix
		for _, r := range g.Routes {
			out = append(out, r.Method+" "+prefix+r.Pattern)
		}
		for _, c := range g.Children {
			walk(prefix, c)
		}
	}
	for _, g := range groups {
		walk("", g)
	}
	return out
}

func register(mux *http.ServeMux, wrap Wrap, prefix string, g Group) {
	prefix += g.Prefix
	for _, r := range g.Routes {
		path := prefix + r.Pattern
		var h http.Handler = r.Handler
		if wrap != nil {
			h = wrap(path, h)
		}
		mux.Handle(r.Method+" "+path, h)
	}
	for _, c := range g.Children {
		register(mux, wrap, prefix, c)
	}
}
