package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/docker/go-units"
	"github.com/ethpandaops/dropwatch/pkg/dedup"
	"github.com/ethpandaops/dropwatch/pkg/fsutil"
	"github.com/ethpandaops/dropwatch/pkg/session"
	"github.com/ethpandaops/dropwatch/pkg/store"
	"github.com/shirou/gopsutil/v4/disk"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		return
	}
}

// handleHealth returns a simple health check response.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type diskUsageResponse struct {
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
	FreeHuman   string  `json:"free_human"`
}

type sessionResponse struct {
	session.State
	InFlight int                `json:"in_flight"`
	Done     int                `json:"done"`
	Disk     *diskUsageResponse `json:"disk,omitempty"`
}

// handleSessionState reports the running session with disk usage of the
// watched root.
func (s *server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Sessions.State()
	resp := sessionResponse{State: st}

	if tracker := s.deps.Uploads.Tracker(); tracker != nil {
		resp.InFlight = len(tracker.Snapshot(dedup.InFlight))
		resp.Done = len(tracker.Snapshot(dedup.Done))
	}

	if st.Root != "" && !st.Inert {
		usage, err := disk.UsageWithContext(r.Context(), st.Root)
		if err != nil {
			s.log.WithError(err).WithField("root", st.Root).
				Debug("Failed to read disk usage")
		} else {
			resp.Disk = &diskUsageResponse{
				Total:       usage.Total,
				Free:        usage.Free,
				UsedPercent: usage.UsedPercent,
				FreeHuman:   units.HumanSize(float64(usage.Free)),
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type startSessionRequest struct {
	Root string `json:"root"`
}

// handleSessionStart starts a session on the requested root, or on the
// stored root when the body names none.
func (s *server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"invalid request body"})

			return
		}
	}

	if err := s.deps.Sessions.StartSession(r.Context(), req.Root); err != nil {
		if errors.Is(err, session.ErrNoRoot) {
			writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

			return
		}

		s.log.WithError(err).Error("Failed to start session")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to start session"})

		return
	}

	writeJSON(w, http.StatusOK, s.deps.Sessions.State())
}

// handleSessionStop stops the running session. Stopping an idle
// controller is not an error.
func (s *server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.StopSession(r.Context()); err != nil {
		s.log.WithError(err).Error("Failed to stop session")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"failed to stop session"})

		return
	}

	writeJSON(w, http.StatusOK, s.deps.Sessions.State())
}

// handleListUploads returns recorded uploads, newest first.
func (s *server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	recs, err := s.deps.Store.ListUploads(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list uploads")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if recs == nil {
		recs = []store.UploadRecord{}
	}

	writeJSON(w, http.StatusOK, recs)
}

// handleResetUploads forgets every recorded upload so those files are
// eligible again. With ?path= only that file is forgotten.
func (s *server) handleResetUploads(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("path"); raw != "" {
		s.forgetUpload(w, r, raw)

		return
	}

	removed, err := s.deps.Store.ResetUploads(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to reset uploads")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if tracker := s.deps.Uploads.Tracker(); tracker != nil {
		tracker.Reset()
	}

	s.log.WithField("removed", removed).Info("Upload history reset")

	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// forgetUpload drops a single file from the upload history.
func (s *server) forgetUpload(w http.ResponseWriter, r *http.Request, raw string) {
	path, err := fsutil.Canonical(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid path"})

		return
	}

	if err := s.deps.Store.DeleteUpload(r.Context(), path); err != nil {
		s.log.WithError(err).WithField("path", path).Error("Failed to delete upload record")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if tracker := s.deps.Uploads.Tracker(); tracker != nil {
		tracker.Forget(path)
	}

	s.log.WithField("path", path).Info("Upload forgotten")

	writeJSON(w, http.StatusOK, map[string]string{"forgotten": path})
}

type manualUploadRequest struct {
	Paths []string `json:"paths"`
}

// handleManualUpload uploads the given files and returns the batch result
// once every file was attempted.
func (s *server) handleManualUpload(w http.ResponseWriter, r *http.Request) {
	var req manualUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if len(req.Paths) == 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"paths must not be empty"})

		return
	}

	result := s.deps.Uploads.UploadBatch(r.Context(), req.Paths, nil)

	writeJSON(w, http.StatusOK, result)
}

// handleEvents returns recent status reports, newest first.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	if s.deps.History == nil {
		writeJSON(w, http.StatusOK, []any{})

		return
	}

	writeJSON(w, http.StatusOK, s.deps.History.Recent(limit))
}

// parseLimit reads the ?limit= query parameter. It writes a 400 response
// and returns false when the value is invalid.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"limit must be a positive integer"})

		return 0, false
	}

	if limit > maxListLimit {
		limit = maxListLimit
	}

	return limit, true
}
