package core

import (
	"strings"
	"time"
)

const (
	EventAllocation   EventKind = "allocation"
	EventReallocation EventKind = "reallocation"
	EventDeposit      EventKind = "deposit"
	EventWithdrawal   EventKind = "withdrawal"
	EventSystem       EventKind = "system"
	EventReversal     EventKind = "reversal"
)

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalArchived  GoalStatus = "archived"
)

type (
	EventKind  string
	GoalStatus string

	// Money is an amount in minor units (cents). Signed: ledger events
	// carry negative amounts for withdrawals and reversals.
	Money struct {
		Cents int64
	}

	// Account is a physical money container owned by one partner.
	// Balance changes only through deposit/withdrawal ledger events.
	Account struct {
		ID        string
		UserID    string
		CoupleID  string
		Name      string
		Balance   Money
		IsManual  bool
		CreatedAt time.Time
	}

	// Goal is a logical savings bucket owned by a couple.
	// CurrentAllocation is derived state; it must always equal the sum of
	// the goal's allocation entries and is maintained inside the same
	// transaction as the triggering ledger append.
	Goal struct {
		ID                string
		CoupleID          string
		Name              string
		TargetAmount      Money
		CurrentAllocation Money
		Priority          int
		Deadline          *time.Time
		Status            GoalStatus
		Notes             string
		CreatedAt         time.Time
	}

	// Allocation earmarks part of an account's balance to a goal without
	// moving the underlying money. The sum of an account's allocations may
	// never exceed its balance.
	Allocation struct {
		ID        string
		AccountID string
		GoalID    string
		Amount    Money
		UpdatedAt time.Time
	}

	// LedgerEvent is an immutable fact. Sequence is assigned per couple at
	// append time and defines the total order used for replay and audit.
	LedgerEvent struct {
		ID              string
		CoupleID        string
		Sequence        int64
		Kind            EventKind
		Amount          Money
		SourceAccountID string
		DestGoalID      string
		UserID          string
		Timestamp       time.Time
		Metadata        map[string]string
	}
)

// Metadata keys with structural meaning. MetaReverses on a REVERSAL event
// holds the id of the event it compensates; MetaReversedKind holds that
// event's kind so replay knows which state the compensation touches.
// Reallocations are recorded as a debit/credit pair of REALLOCATION events
// sharing a MetaPairID.
const (
	MetaReverses     = "reverses"
	MetaReversedKind = "reversed_kind"
	MetaPairID       = "pair_id"
	MetaAction       = "action"
	MetaApprovalID   = "approval_id"
	MetaRebalanceID  = "rebalance_id"
	MetaRuleID       = "rule_id"
)

// SystemUser attributes ledger events no human initiated, such as expiry
// sweeps and rule bookkeeping.
const SystemUser = "system"

// Cents builds a Money value from an integer number of cents.
func Cents(n int64) Money { return Money{Cents: n} }

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }

// LessThan reports whether m < o.
func (m Money) LessThan(o Money) bool { return m.Cents < o.Cents }

func (k EventKind) IsValid() bool {
	switch k {
	case EventAllocation, EventReallocation, EventDeposit, EventWithdrawal, EventSystem, EventReversal:
		return true
	}
	return false
}

func (s GoalStatus) IsValid() bool {
	switch s {
	case GoalActive, GoalCompleted, GoalArchived:
		return true
	}
	return false
}

// Unallocated is the account capacity available for new allocations:
// balance minus the given sum of its allocation entries.
func (a Account) Unallocated(allocated Money) Money {
	return a.Balance.Sub(allocated)
}

func (g Goal) Remaining() Money {
	if g.TargetAmount.LessThan(g.CurrentAllocation) {
		return Money{}
	}
	return g.TargetAmount.Sub(g.CurrentAllocation)
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return Errorf(ErrValidation, "account user id is required")
	}
	if strings.TrimSpace(a.CoupleID) == "" {
		return Errorf(ErrValidation, "account couple id is required")
	}
	if a.Balance.IsNegative() {
		return Errorf(ErrValidation, "account balance cannot be negative")
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.CoupleID) == "" {
		return Errorf(ErrValidation, "goal couple id is required")
	}
	if strings.TrimSpace(g.Name) == "" {
		return Errorf(ErrValidation, "goal name is required")
	}
	if g.TargetAmount.Cents <= 0 {
		return Errorf(ErrValidation, "goal target amount must be positive")
	}
	if g.Priority < 1 {
		return Errorf(ErrValidation, "goal priority must be at least 1")
	}
	if g.Status != "" && !g.Status.IsValid() {
		return Errorf(ErrValidation, "invalid goal status %q", g.Status)
	}
	return nil
}

// Validate checks the invariants an event must satisfy before it may be
// appended: a non-zero amount (SYSTEM excepted) and references consistent
// with the kind.
func (e LedgerEvent) Validate() error {
	if !e.Kind.IsValid() {
		return Errorf(ErrValidation, "invalid event kind %q", e.Kind)
	}
	if strings.TrimSpace(e.CoupleID) == "" {
		return Errorf(ErrValidation, "event couple id is required")
	}
	if strings.TrimSpace(e.UserID) == "" {
		return Errorf(ErrValidation, "event user id is required")
	}
	switch e.Kind {
	case EventDeposit, EventWithdrawal:
		if e.Amount.IsZero() {
			return Errorf(ErrValidation, "%s amount cannot be zero", e.Kind)
		}
		if e.SourceAccountID == "" {
			return Errorf(ErrValidation, "%s requires a source account", e.Kind)
		}
		if e.DestGoalID != "" {
			return Errorf(ErrValidation, "%s cannot reference a goal", e.Kind)
		}
	case EventAllocation, EventReallocation:
		if e.Amount.IsZero() {
			return Errorf(ErrValidation, "%s amount cannot be zero", e.Kind)
		}
		if e.DestGoalID == "" {
			return Errorf(ErrValidation, "%s requires a destination goal", e.Kind)
		}
	case EventReversal:
		if e.Amount.IsZero() {
			return Errorf(ErrValidation, "reversal amount cannot be zero")
		}
		if e.Metadata[MetaReverses] == "" {
			return Errorf(ErrValidation, "reversal must reference the original event")
		}
	case EventSystem:
		// System events are free-form audit records.
	}
	return nil
}
