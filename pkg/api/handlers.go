package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const defaultRunsLimit = 50

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListRuns returns recent run history, newest first.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable,
			errorResponse{"run history is not configured"})

		return
	}

	limit := defaultRunsLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"invalid limit parameter"})

			return
		}

		limit = parsed
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing runs"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleReportFile serves a persisted report file from the results
// directory. The wildcard path is resolved against the directory root and
// rejected if it escapes it.
func (s *server) handleReportFile(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	if rel == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{"missing file path"})

		return
	}

	cleaned := filepath.Clean("/" + rel)
	path := filepath.Join(s.resultsDir, cleaned)

	absRoot, err := filepath.Abs(s.resultsDir)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{"resolving results directory"})

		return
	}

	absPath, err := filepath.Abs(path)
	if err != nil || !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid file path"})

		return
	}

	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, errorResponse{"report not found"})

		return
	}

	http.ServeFile(w, r, absPath)
}
