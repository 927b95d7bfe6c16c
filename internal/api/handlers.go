package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	pd "github.com/kodeart/go-problem/v2"
	"go.yaml.in/yaml/v4"

	"github.com/CZERTAINLY/symstat/internal/model"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeYAML    = "application/yaml"
	contentTypeProblem = "application/problem+json"
)

type checkHealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) checkHealth(w http.ResponseWriter, r *http.Request) {
	toJson(r.Context(), w, checkHealthResponse{
		Status: "ok",
	})
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	top, ok := s.topParam(w, r)
	if !ok {
		return
	}
	snap := s.src.Snapshot(top)

	if wantsYAML(r) {
		toYaml(ctx, w, snap)
		return
	}
	toJson(ctx, w, snap)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	top, ok := s.topParam(w, r)
	if !ok {
		return
	}
	docs := s.src.Snapshot(top).Documents
	if docs == nil {
		docs = []model.DocumentView{}
	}
	toJson(r.Context(), w, docs)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]
	top, ok := s.topParam(w, r)
	if !ok {
		return
	}

	for _, doc := range s.src.Snapshot(top).Documents {
		if doc.Name == name {
			toJson(ctx, w, doc)
			return
		}
	}
	slog.DebugContext(ctx, "Document not found.", slog.String("name", name))
	toProblem(ctx, w, http.StatusNotFound, fmt.Sprintf("Document %q is not tracked.", name))
}

// topParam parses the optional top query parameter. -1 means all symbols.
func (s *Server) topParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("top")
	if v == "" {
		return s.top, true
	}
	top, err := strconv.Atoi(v)
	if err != nil || top < -1 {
		toProblem(r.Context(), w, http.StatusBadRequest, fmt.Sprintf("Parameter top must be an integer >= -1, got %q.", v))
		return 0, false
	}
	return top, true
}

func wantsYAML(r *http.Request) bool {
	for _, accept := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(accept))
		if err != nil {
			continue
		}
		switch mediaType {
		case contentTypeYAML, "application/x-yaml", "text/yaml":
			return true
		}
	}
	return false
}

func toJson(ctx context.Context, w http.ResponseWriter, resp any) {
	b, err := json.Marshal(resp)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal structure to json.", slog.String("error", err.Error()))
		toProblem(ctx, w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func toYaml(ctx context.Context, w http.ResponseWriter, resp any) {
	b, err := yaml.Marshal(resp)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal structure to yaml.", slog.String("error", err.Error()))
		toProblem(ctx, w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	w.Header().Set("Content-Type", contentTypeYAML)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func toProblem(ctx context.Context, w http.ResponseWriter, statusCode int, detail string) {
	b, err := json.Marshal(pd.Problem{
		Status: statusCode,
		Detail: detail,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal problem detail.", slog.String("error", err.Error()))
		http.Error(w, "Internal server error.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeProblem)
	w.WriteHeader(statusCode)
	_, _ = w.Write(b)
}
