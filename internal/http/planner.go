package http

import (
	"net/http"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/planner"
)

// handleForecast projects a goal either at a hypothetical contribution
// rate (rate_cents) or at the rate observed over a trailing window.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	goal, err := s.store.GetGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := time.Now().UTC()

	if r.URL.Query().Has("rate_cents") {
		rate, err := queryInt64(r, "rate_cents", 0)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.forecaster.Project(goal, core.Cents(rate), now))
		return
	}

	windowDays, err := queryInt(r, "window_days", 30)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if windowDays < 1 {
		writeError(w, r, core.Errorf(core.ErrValidation, "window_days must be at least 1"))
		return
	}
	forecast, err := s.forecaster.ProjectObserved(r.Context(), goal, time.Duration(windowDays)*24*time.Hour, now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

func (s *Server) handleRebalanceSuggest(w http.ResponseWriter, r *http.Request) {
	coupleID, err := requireQuery(r, "couple_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	plan, err := s.rebalancer.Suggest(r.Context(), coupleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type commitRequest struct {
	CoupleID   string         `json:"couple_id"`
	ActingUser string         `json:"acting_user"`
	PlanID     string         `json:"plan_id,omitempty"`
	Moves      []planner.Move `json:"moves"`
}

// handleRebalanceCommit applies the client-confirmed moves. A partial
// failure is still a 200: the structured per-move results report which
// steps applied before the halt.
func (s *Server) handleRebalanceCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.CoupleID == "" || req.ActingUser == "" {
		writeError(w, r, core.Errorf(core.ErrValidation, "couple and acting user are required"))
		return
	}
	if len(req.Moves) == 0 {
		writeError(w, r, core.Errorf(core.ErrValidation, "at least one move is required"))
		return
	}

	result, err := s.rebalancer.Commit(r.Context(), req.CoupleID, req.ActingUser, req.PlanID, req.Moves)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSurplus(w http.ResponseWriter, r *http.Request) {
	coupleID, err := requireQuery(r, "couple_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	surplus, err := planner.ComputeSurplus(r.Context(), s.store, coupleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, surplus)
}

// handleDriftScan runs an on-demand scan for one couple and returns the
// flags. The API server's monitor carries no notifier; scheduled publishing
// belongs to the drift worker.
func (s *Server) handleDriftScan(w http.ResponseWriter, r *http.Request) {
	coupleID, err := requireQuery(r, "couple_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	flags, err := s.monitor.ScanCouple(r.Context(), coupleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flags": flags})
}
