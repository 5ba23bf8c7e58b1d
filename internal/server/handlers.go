package server

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/GriffinCanCode/flashguard/backend/platform/internal/errors"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/events"
	"github.com/GriffinCanCode/flashguard/backend/platform/internal/stats"
)

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Stats    stats.Counters `json:"stats"`
	Degraded bool           `json:"degraded"`
	Enabled  bool           `json:"enabled"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Stats.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Stats: c, Degraded: s.deps.Stats.Degraded(), Enabled: s.deps.Control.Enabled()})
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Control.ResetStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Stats: c, Degraded: s.deps.Stats.Degraded(), Enabled: s.deps.Control.Enabled()})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Control.Enable(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.deps.Control.Enabled()})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Control.Disable(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.deps.Control.Enabled()})
}

func (s *Server) handleDetectors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"detectors": s.deps.Control.List()})
}

func (s *Server) handleDetector(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Control.Get(r.PathValue("handle"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	if err := s.deps.Control.Continue(r.Context(), handle); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handle": handle, "success": true})
}

// handleEvents serves the recent event log. ?n= limits the count and
// ?type= takes a comma list of event types.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	n, err := limitParam(r, "n", DefaultEventLimit, MaxEventLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var types []events.Type
	if raw := r.URL.Query().Get("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			types = append(types, events.Type(strings.TrimSpace(t)))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.deps.Hub.Recent(n, types...)})
}

func (s *Server) handleFlashes(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, r, apperrors.New(apperrors.Unavailable, "flash journal disabled"))
		return
	}
	limit, err := limitParam(r, "limit", DefaultFlashLimit, MaxFlashLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	records, err := s.deps.History.RecentFlashes(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"videoId": id, "flashes": records})
}

func limitParam(r *http.Request, name string, def, maxN int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperrors.New(apperrors.InvalidArgument, "invalid "+name).WithMetadata(name, raw)
	}
	return min(n, maxN), nil
}
