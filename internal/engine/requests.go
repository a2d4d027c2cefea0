package engine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/store"
)

// AllocateRequest earmarks part of an account's balance to a goal.
type AllocateRequest struct {
	Token      string            `json:"token"`
	CoupleID   string            `json:"couple_id"`
	AccountID  string            `json:"account_id"`
	GoalID     string            `json:"goal_id"`
	Amount     core.Money        `json:"amount"`
	ActingUser string            `json:"acting_user"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ReallocateRequest moves an earmark between goals; the underlying account
// balance is untouched.
type ReallocateRequest struct {
	Token      string            `json:"token"`
	CoupleID   string            `json:"couple_id"`
	AccountID  string            `json:"account_id"`
	FromGoalID string            `json:"from_goal_id"`
	ToGoalID   string            `json:"to_goal_id"`
	Amount     core.Money        `json:"amount"`
	ActingUser string            `json:"acting_user"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// MovementRequest records money entering or leaving an account (the
// bank-sync boundary). Amount is always positive; Kind determines sign.
type MovementRequest struct {
	Token      string            `json:"token"`
	CoupleID   string            `json:"couple_id"`
	AccountID  string            `json:"account_id"`
	Kind       core.EventKind    `json:"kind"`
	Amount     core.Money        `json:"amount"`
	ActingUser string            `json:"acting_user"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Result is the outcome of a mutating engine call. Replayed marks a result
// served from the idempotency log rather than a fresh mutation.
type Result struct {
	EventIDs       []string   `json:"event_ids"`
	AccountBalance core.Money `json:"account_balance"`
	GoalAllocation core.Money `json:"goal_allocation"`
	GoalCompleted  bool       `json:"goal_completed,omitempty"`
	Replayed       bool       `json:"-"`
}

func (r AllocateRequest) Validate() error {
	if strings.TrimSpace(r.CoupleID) == "" || strings.TrimSpace(r.ActingUser) == "" {
		return core.Errorf(core.ErrValidation, "couple and acting user are required")
	}
	if strings.TrimSpace(r.AccountID) == "" || strings.TrimSpace(r.GoalID) == "" {
		return core.Errorf(core.ErrValidation, "account and goal are required")
	}
	if r.Amount.Cents <= 0 {
		return core.Errorf(core.ErrValidation, "allocation amount must be positive")
	}
	return nil
}

func (r ReallocateRequest) Validate() error {
	if strings.TrimSpace(r.CoupleID) == "" || strings.TrimSpace(r.ActingUser) == "" {
		return core.Errorf(core.ErrValidation, "couple and acting user are required")
	}
	if strings.TrimSpace(r.AccountID) == "" || strings.TrimSpace(r.FromGoalID) == "" || strings.TrimSpace(r.ToGoalID) == "" {
		return core.Errorf(core.ErrValidation, "account, source goal, and destination goal are required")
	}
	if r.FromGoalID == r.ToGoalID {
		return core.Errorf(core.ErrValidation, "source and destination goal must differ")
	}
	if r.Amount.Cents <= 0 {
		return core.Errorf(core.ErrValidation, "reallocation amount must be positive")
	}
	return nil
}

func (r MovementRequest) Validate() error {
	if strings.TrimSpace(r.CoupleID) == "" || strings.TrimSpace(r.ActingUser) == "" {
		return core.Errorf(core.ErrValidation, "couple and acting user are required")
	}
	if strings.TrimSpace(r.AccountID) == "" {
		return core.Errorf(core.ErrValidation, "account is required")
	}
	if r.Kind != core.EventDeposit && r.Kind != core.EventWithdrawal {
		return core.Errorf(core.ErrValidation, "movement kind must be deposit or withdrawal, got %q", r.Kind)
	}
	if r.Amount.Cents <= 0 {
		return core.Errorf(core.ErrValidation, "movement amount must be positive")
	}
	return nil
}

// recordResult persists the outcome under the idempotency token.
func recordResult(token string, result *Result) (store.RequestRecord, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return store.RequestRecord{}, core.Errorf(core.ErrValidation, "encode result: %v", err)
	}
	return store.RequestRecord{Token: token, Result: payload, CreatedAt: time.Now().UTC()}, nil
}

func decodeResult(record store.RequestRecord) (*Result, error) {
	var result Result
	if err := json.Unmarshal(record.Result, &result); err != nil {
		return nil, core.Errorf(core.ErrStorageUnavailable, "decode recorded result: %v", err)
	}
	result.Replayed = true
	return &result, nil
}
