package core

import "time"

type RuleTrigger string

const (
	// RuleTriggerDeposit fires the rule whenever money lands in the
	// source account.
	RuleTriggerDeposit RuleTrigger = "deposit"
	// RuleTriggerSchedule marks rules run by an external scheduler.
	RuleTriggerSchedule RuleTrigger = "schedule"
)

// AllocationRule routes a share of each deposit on an account to a goal
// automatically. PercentBps is in basis points; 2500 routes a quarter of
// every deposit.
type AllocationRule struct {
	ID         string
	CoupleID   string
	AccountID  string
	GoalID     string
	PercentBps int
	Trigger    RuleTrigger
	Enabled    bool
	CreatedAt  time.Time
	LastRunAt  *time.Time
}

func (t RuleTrigger) IsValid() bool {
	return t == RuleTriggerDeposit || t == RuleTriggerSchedule
}

func (r AllocationRule) Validate() error {
	if r.CoupleID == "" || r.AccountID == "" || r.GoalID == "" {
		return Errorf(ErrValidation, "rule needs couple, account, and goal")
	}
	if r.PercentBps <= 0 || r.PercentBps > 10000 {
		return Errorf(ErrValidation, "rule percent must be in (0, 10000] basis points, got %d", r.PercentBps)
	}
	if !r.Trigger.IsValid() {
		return Errorf(ErrValidation, "unknown rule trigger %q", r.Trigger)
	}
	return nil
}
