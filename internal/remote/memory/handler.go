package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/roach88/tasksync/internal/remote"
	"github.com/roach88/tasksync/internal/task"
)

const (
	// maxPageSize bounds the limit a client may request.
	maxPageSize = 1000

	// maxPushBytes bounds a push request body.
	maxPushBytes = 8 << 20
)

// Handler exposes the authority over HTTP using the wire contract of
// package remote.
func (a *Authority) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks", a.handlePull)
	mux.HandleFunc("POST /tasks/batch", a.handlePush)
	return mux
}

func (a *Authority) handlePull(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since := task.Epoch
	if s := q.Get("changedSince"); s != "" {
		t, err := task.ParseTime(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		since = t
	}

	limit := remote.DefaultPageSize
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxPageSize {
			writeError(w, http.StatusBadRequest, &task.ValidationError{Field: "limit", Reason: "must be between 1 and 1000"})
			return
		}
		limit = n
	}

	page, err := a.Pull(r.Context(), since, limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *Authority) handlePush(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPushBytes)

	var req remote.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validatePush(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.Push(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// validatePush rejects records a replica could not have produced.
func validatePush(req remote.PushRequest) error {
	for i, u := range req.Upserts {
		if err := u.Validate(); err != nil {
			return fmt.Errorf("upserts[%d]: %w", i, err)
		}
	}
	for i, d := range req.Deletes {
		if d.ID == "" {
			return fmt.Errorf("deletes[%d]: %w", i, &task.ValidationError{Field: "id", Reason: "must not be empty"})
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
