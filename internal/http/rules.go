package http

import (
	"net/http"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/core"
)

type createRuleRequest struct {
	CoupleID   string `json:"couple_id"`
	AccountID  string `json:"account_id"`
	GoalID     string `json:"goal_id"`
	PercentBps int    `json:"percent_bps"`
	Trigger    string `json:"trigger,omitempty"`
}

type updateRuleRequest struct {
	PercentBps *int    `json:"percent_bps,omitempty"`
	Trigger    *string `json:"trigger,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
}

type ruleResponse struct {
	ID         string     `json:"id"`
	CoupleID   string     `json:"couple_id"`
	AccountID  string     `json:"account_id"`
	GoalID     string     `json:"goal_id"`
	PercentBps int        `json:"percent_bps"`
	Trigger    string     `json:"trigger"`
	Enabled    bool       `json:"enabled"`
	CreatedAt  time.Time  `json:"created_at"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
}

func toRuleResponse(rule core.AllocationRule) ruleResponse {
	return ruleResponse{
		ID:         rule.ID,
		CoupleID:   rule.CoupleID,
		AccountID:  rule.AccountID,
		GoalID:     rule.GoalID,
		PercentBps: rule.PercentBps,
		Trigger:    string(rule.Trigger),
		Enabled:    rule.Enabled,
		CreatedAt:  rule.CreatedAt,
		LastRunAt:  rule.LastRunAt,
	}
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	rule, err := s.rules.Create(r.Context(), core.AllocationRule{
		CoupleID:   req.CoupleID,
		AccountID:  req.AccountID,
		GoalID:     req.GoalID,
		PercentBps: req.PercentBps,
		Trigger:    core.RuleTrigger(req.Trigger),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	coupleID, err := requireQuery(r, "couple_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.rules.ListByCouple(r.Context(), coupleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ruleResponse, 0, len(list))
	for _, rule := range list {
		out = append(out, toRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": out})
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req updateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var trigger *core.RuleTrigger
	if req.Trigger != nil {
		t := core.RuleTrigger(*req.Trigger)
		trigger = &t
	}
	rule, err := s.rules.Update(r.Context(), r.PathValue("id"), req.PercentBps, trigger, req.Enabled)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
