package http

import (
	"net/http"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/core"
)

type approvalResponse struct {
	ID          string     `json:"id"`
	CoupleID    string     `json:"couple_id"`
	InitiatedBy string     `json:"initiated_by"`
	Action      string     `json:"action"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy  string     `json:"resolved_by,omitempty"`
	Note        string     `json:"note,omitempty"`
}

func toApprovalResponse(a core.PendingApproval) approvalResponse {
	return approvalResponse{
		ID:          a.ID,
		CoupleID:    a.CoupleID,
		InitiatedBy: a.InitiatedBy,
		Action:      string(a.Action),
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		ExpiresAt:   a.ExpiresAt,
		ResolvedAt:  a.ResolvedAt,
		ResolvedBy:  a.ResolvedBy,
		Note:        a.ResolutionNote,
	}
}

type resolveRequest struct {
	UserID  string `json:"user_id"`
	Approve bool   `json:"approve"`
	Note    string `json:"note,omitempty"`
}

func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	approval, err := s.gate.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalResponse(approval))
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	coupleID, err := requireQuery(r, "couple_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := core.ApprovalStatus(r.URL.Query().Get("status"))

	approvals, err := s.gate.List(r.Context(), coupleID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]approvalResponse, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, toApprovalResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": out})
}

func (s *Server) handleResolveApproval(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.UserID == "" {
		writeError(w, r, core.Errorf(core.ErrValidation, "user_id is required"))
		return
	}

	outcome, err := s.gate.Resolve(r.Context(), r.PathValue("id"), req.UserID, req.Approve, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse(outcome))
}
