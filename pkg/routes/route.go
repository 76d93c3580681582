// Package routes declares HTTP route groups and registers them on a
// ServeMux using Go 1.22 method patterns.
package routes

import "net/http"

// Route binds an HTTP method and pattern to a handler.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}
