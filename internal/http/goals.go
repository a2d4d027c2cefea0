package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/store"
)

type createGoalRequest struct {
	CoupleID    string     `json:"couple_id"`
	Name        string     `json:"name"`
	TargetCents int64      `json:"target_cents"`
	Priority    int        `json:"priority"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type updateGoalRequest struct {
	Name        *string    `json:"name,omitempty"`
	TargetCents *int64     `json:"target_cents,omitempty"`
	Priority    *int       `json:"priority,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

type goalResponse struct {
	ID             string     `json:"id"`
	CoupleID       string     `json:"couple_id"`
	Name           string     `json:"name"`
	TargetCents    int64      `json:"target_cents"`
	AllocatedCents int64      `json:"allocated_cents"`
	RemainingCents int64      `json:"remaining_cents"`
	Priority       int        `json:"priority"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	Status         string     `json:"status"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toGoalResponse(g core.Goal) goalResponse {
	return goalResponse{
		ID:             g.ID,
		CoupleID:       g.CoupleID,
		Name:           g.Name,
		TargetCents:    g.TargetAmount.Cents,
		AllocatedCents: g.CurrentAllocation.Cents,
		RemainingCents: g.Remaining().Cents,
		Priority:       g.Priority,
		Deadline:       g.Deadline,
		Status:         string(g.Status),
		Notes:          g.Notes,
		CreatedAt:      g.CreatedAt,
	}
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	goal := core.Goal{
		ID:           uuid.NewString(),
		CoupleID:     req.CoupleID,
		Name:         req.Name,
		TargetAmount: core.Cents(req.TargetCents),
		Priority:     req.Priority,
		Deadline:     req.Deadline,
		Status:       core.GoalActive,
		Notes:        req.Notes,
		CreatedAt:    time.Now().UTC(),
	}
	if goal.Priority == 0 {
		goal.Priority = 1
	}
	if err := goal.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.store.InTx(r.Context(), func(tx store.Tx) error {
		return tx.PutGoal(r.Context(), goal)
	}); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalResponse(goal))
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.store.GetGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(goal))
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	coupleID, err := requireQuery(r, "couple_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	goals, err := s.store.ListGoalsByCouple(r.Context(), coupleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]goalResponse, 0, len(goals))
	for _, g := range goals {
		out = append(out, toGoalResponse(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": out})
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req updateGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var updated core.Goal
	err := s.store.InTx(r.Context(), func(tx store.Tx) error {
		goal, err := tx.GetGoal(r.Context(), r.PathValue("id"))
		if err != nil {
			return err
		}
		if req.Name != nil {
			goal.Name = *req.Name
		}
		if req.TargetCents != nil {
			goal.TargetAmount = core.Cents(*req.TargetCents)
		}
		if req.Priority != nil {
			goal.Priority = *req.Priority
		}
		if req.Deadline != nil {
			goal.Deadline = req.Deadline
		}
		if req.Notes != nil {
			goal.Notes = *req.Notes
		}
		if err := goal.Validate(); err != nil {
			return err
		}
		// Raising the target past the cached total reopens the goal; a
		// lowered target below it completes it on the next allocation.
		if goal.Status == core.GoalCompleted && goal.CurrentAllocation.LessThan(goal.TargetAmount) {
			goal.Status = core.GoalActive
		}
		updated = goal
		return tx.PutGoal(r.Context(), goal)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(updated))
}

// handleArchiveGoal retires a goal. Archiving requires the goal to hold no
// allocations; callers reallocate the funds away first.
func (s *Server) handleArchiveGoal(w http.ResponseWriter, r *http.Request) {
	var archived core.Goal
	err := s.store.InTx(r.Context(), func(tx store.Tx) error {
		goal, err := tx.GetGoal(r.Context(), r.PathValue("id"))
		if err != nil {
			return err
		}
		if goal.Status == core.GoalArchived {
			archived = goal
			return nil
		}
		if !goal.CurrentAllocation.IsZero() {
			return core.Errorf(core.ErrValidation,
				"goal %s still holds %d cents; reallocate before archiving", goal.ID, goal.CurrentAllocation.Cents)
		}
		goal.Status = core.GoalArchived
		archived = goal
		return tx.PutGoal(r.Context(), goal)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(archived))
}
