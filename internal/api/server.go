// Package api serves the current folder statistics over HTTP.
package api

import (
	"expvar"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/CZERTAINLY/symstat/internal/log"
	"github.com/CZERTAINLY/symstat/internal/model"
)

//go:generate mockgen -destination=./mock/source.go -package=mock github.com/CZERTAINLY/symstat/internal/api SnapshotSource
type SnapshotSource interface {
	// Snapshot returns the current state with at most top symbols per
	// document and folder, all of them when top is negative.
	Snapshot(top int) model.Snapshot
}

type Server struct {
	src SnapshotSource
	top int
}

// New returns a server reading from src. top is the default number of
// symbols, the query parameter top overrides it per request.
func New(src SnapshotSource, top int) *Server {
	if top == 0 {
		top = model.DefaultTop
	}
	return &Server{src: src, top: top}
}

type EndpointDefinition struct {
	Path   string
	Method string
}

func Endpoints() map[string]EndpointDefinition {
	return map[string]EndpointDefinition{
		"checkHealth": {
			Path:   "/v1/health",
			Method: http.MethodGet,
		},
		"getSnapshot": {
			Path:   "/v1/snapshot",
			Method: http.MethodGet,
		},
		"listDocuments": {
			Path:   "/v1/documents",
			Method: http.MethodGet,
		},
		"getDocument": {
			Path:   "/v1/documents/{name}",
			Method: http.MethodGet,
		},
		"vars": {
			Path:   "/debug/vars",
			Method: http.MethodGet,
		},
	}
}

func (s *Server) Handler() *mux.Router {
	r := mux.NewRouter()

	r.Use(httpInfoContext)

	for k, v := range Endpoints() {
		var handler http.HandlerFunc
		switch k {
		case "checkHealth":
			handler = s.checkHealth
		case "getSnapshot":
			handler = s.getSnapshot
		case "listDocuments":
			handler = s.listDocuments
		case "getDocument":
			handler = s.getDocument
		case "vars":
			handler = expvar.Handler().ServeHTTP
		default:
			// a new endpoint without a route is a programmer's mistake
			panic("function 'Endpoints' was extended, but route was not added to Handler() in `internal/api/server.go`")
		}
		r.HandleFunc(v.Path, handler).Methods(v.Method)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		toProblem(r.Context(), w, http.StatusNotFound, "No such endpoint.")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		toProblem(r.Context(), w, http.StatusMethodNotAllowed, "Allowed methods: [ GET ].")
	})

	return r
}

func httpInfoContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.ContextAttrs(r.Context(), slog.Group("http-info",
			slog.String("method", r.Method),
			slog.String("url-path", r.URL.Path),
		))
		slog.DebugContext(ctx, "request")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
