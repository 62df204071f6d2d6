package httpserver

import (
	"strings"

	"github.com/omochice/framed-socket/internal/server"
)

// HandlerFunc serves one routed request by filling in its response.
type HandlerFunc func(c *server.Connection, r *Request)

// Routes maps request paths to handlers. Keys may be given with or
// without a leading slash.
type Routes map[string]HandlerFunc

func (rt Routes) lookup(route string) (HandlerFunc, bool) {
	if h, ok := rt[route]; ok {
		return h, true
	}
	h, ok := rt[strings.TrimPrefix(route, "/")]
	return h, ok
}

// App groups routes under a common name. Mounting it registers each route
// as "name/route", and the empty or "/" route as "name" itself.
type App struct {
	Name   string
	Routes Routes
}

// Mounted returns the app's routes keyed by their full path.
func (a App) Mounted() Routes {
	out := make(Routes, len(a.Routes))
	for key, h := range a.Routes {
		full := a.Name
		switch {
		case key == "" || key == "/":
		case strings.HasPrefix(key, "/"):
			full += key
		default:
			full += "/" + key
		}
		out[full] = h
	}
	return out
}
