package http

import (
	"net/http"

	"github.com/Ruzakiff/WealthTogether/internal/approval"
	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/engine"
	"github.com/Ruzakiff/WealthTogether/internal/rules"
)

type allocateRequest struct {
	Token       string `json:"token,omitempty"`
	CoupleID    string `json:"couple_id"`
	AccountID   string `json:"account_id"`
	GoalID      string `json:"goal_id"`
	AmountCents int64  `json:"amount_cents"`
	ActingUser  string `json:"acting_user"`
}

type reallocateRequest struct {
	Token       string `json:"token,omitempty"`
	CoupleID    string `json:"couple_id"`
	AccountID   string `json:"account_id"`
	FromGoalID  string `json:"from_goal_id"`
	ToGoalID    string `json:"to_goal_id"`
	AmountCents int64  `json:"amount_cents"`
	ActingUser  string `json:"acting_user"`
}

type movementRequest struct {
	Token       string `json:"token,omitempty"`
	CoupleID    string `json:"couple_id"`
	AccountID   string `json:"account_id"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	ActingUser  string `json:"acting_user"`
}

type reverseRequest struct {
	CoupleID   string `json:"couple_id"`
	ActingUser string `json:"acting_user"`
}

// mutationResponse is the common envelope for gated writes: either the
// engine result (executed) or the parked approval (pending), never both.
type mutationResponse struct {
	Executed *engine.Result      `json:"executed,omitempty"`
	Pending  *approvalResponse   `json:"pending,omitempty"`
	Rules    []rules.RuleOutcome `json:"rules,omitempty"`
}

func outcomeResponse(outcome approval.Outcome) mutationResponse {
	resp := mutationResponse{Executed: outcome.Executed}
	if outcome.Pending != nil {
		p := toApprovalResponse(*outcome.Pending)
		resp.Pending = &p
	}
	return resp
}

func outcomeStatus(outcome approval.Outcome) int {
	if outcome.Pending != nil {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	outcome, err := s.gate.SubmitAllocation(r.Context(), engine.AllocateRequest{
		Token:      req.Token,
		CoupleID:   req.CoupleID,
		AccountID:  req.AccountID,
		GoalID:     req.GoalID,
		Amount:     core.Cents(req.AmountCents),
		ActingUser: req.ActingUser,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, outcomeStatus(outcome), outcomeResponse(outcome))
}

func (s *Server) handleReallocate(w http.ResponseWriter, r *http.Request) {
	var req reallocateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	outcome, err := s.gate.SubmitReallocation(r.Context(), engine.ReallocateRequest{
		Token:      req.Token,
		CoupleID:   req.CoupleID,
		AccountID:  req.AccountID,
		FromGoalID: req.FromGoalID,
		ToGoalID:   req.ToGoalID,
		Amount:     core.Cents(req.AmountCents),
		ActingUser: req.ActingUser,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, outcomeStatus(outcome), outcomeResponse(outcome))
}

// handleMovement records a deposit or withdrawal. Executed deposits then
// run the account's auto-allocation rules; rule failures are reported in
// the response but never unwind the deposit itself.
func (s *Server) handleMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	outcome, err := s.gate.SubmitMovement(r.Context(), engine.MovementRequest{
		Token:      req.Token,
		CoupleID:   req.CoupleID,
		AccountID:  req.AccountID,
		Kind:       core.EventKind(req.Kind),
		Amount:     core.Cents(req.AmountCents),
		ActingUser: req.ActingUser,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := outcomeResponse(outcome)
	fresh := outcome.Executed != nil && !outcome.Executed.Replayed
	if fresh && core.EventKind(req.Kind) == core.EventDeposit {
		outcomes, err := s.rules.ExecuteForDeposit(r.Context(), req.CoupleID, req.AccountID, req.ActingUser, core.Cents(req.AmountCents))
		if err != nil {
			s.logger.WarnContext(r.Context(), "auto-allocation rules failed after deposit",
				"account_id", req.AccountID, "error", err)
		}
		resp.Rules = outcomes
	}
	writeJSON(w, outcomeStatus(outcome), resp)
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.CoupleID == "" || req.ActingUser == "" {
		writeError(w, r, core.Errorf(core.ErrValidation, "couple and acting user are required"))
		return
	}

	outcome, err := s.gate.SubmitReversal(r.Context(), r.PathValue("id"), req.CoupleID, req.ActingUser)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, outcomeStatus(outcome), outcomeResponse(outcome))
}
