package api

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"wasteroute/internal/geo"
	"wasteroute/internal/opt"
	"wasteroute/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *opt.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, opt.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "Validation failed", err.Error(), r.URL.Path)
	case errors.Is(err, geo.ErrInvalidCoordinate):
		writeProblem(w, http.StatusBadRequest, "Invalid coordinate", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrInvalidCursor):
		writeProblem(w, http.StatusBadRequest, "Invalid cursor", "cursor does not name an item of this list", r.URL.Path)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not found", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrInvalidTransition):
		writeProblem(w, http.StatusConflict, "Invalid status transition", err.Error(), r.URL.Path)
	case errors.Is(err, opt.ErrComputationTimeout):
		writeProblem(w, http.StatusServiceUnavailable, "Optimization timed out", err.Error(), r.URL.Path)
	default:
		log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal error", "", r.URL.Path)
	}
}

// decodeJSON reads a single JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return false
	}
	return true
}
