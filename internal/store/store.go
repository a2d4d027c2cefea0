// Package store defines the persistence boundary for allocation state,
// ledger history, approvals, and idempotency records. Implementations live
// in the memory and sqlite subpackages.
package store

import (
	"context"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/core"
)

// EventFilter narrows a ledger read. Zero fields are ignored. Results are
// always ordered by per-couple sequence number.
type EventFilter struct {
	CoupleID  string
	AccountID string
	GoalID    string
	UserID    string
	Kinds     []core.EventKind
	Since     time.Time
	Until     time.Time
	AfterSeq  int64
	Limit     int
}

// ApprovalFilter narrows a pending-approval listing.
type ApprovalFilter struct {
	CoupleID    string
	Status      core.ApprovalStatus
	InitiatedBy string
}

// RequestRecord is the stored outcome of a mutating engine call, keyed by
// the client-supplied idempotency token. A retry with the same token is
// answered from this record without re-mutating state.
type RequestRecord struct {
	Token     string
	Result    []byte
	CreatedAt time.Time
}

// Tx is the set of operations available both inside and outside a
// transaction. All reads return core.ErrNotFound (wrapped) for missing
// rows; all failures of the backing medium wrap core.ErrStorageUnavailable.
type Tx interface {
	GetAccount(ctx context.Context, id string) (core.Account, error)
	PutAccount(ctx context.Context, account core.Account) error
	ListAccountsByCouple(ctx context.Context, coupleID string) ([]core.Account, error)

	// ListCoupleIDs returns every couple that owns at least one account or
	// goal, for background scans that walk all tenants.
	ListCoupleIDs(ctx context.Context) ([]string, error)

	GetGoal(ctx context.Context, id string) (core.Goal, error)
	PutGoal(ctx context.Context, goal core.Goal) error
	ListGoalsByCouple(ctx context.Context, coupleID string) ([]core.Goal, error)

	GetAllocation(ctx context.Context, accountID, goalID string) (core.Allocation, error)
	PutAllocation(ctx context.Context, alloc core.Allocation) error
	ListAllocationsByAccount(ctx context.Context, accountID string) ([]core.Allocation, error)
	ListAllocationsByGoal(ctx context.Context, goalID string) ([]core.Allocation, error)

	// AppendEvent assigns the next per-couple sequence number and persists
	// the event. Events are never updated or deleted afterwards.
	AppendEvent(ctx context.Context, event core.LedgerEvent) (core.LedgerEvent, error)
	GetEvent(ctx context.Context, id string) (core.LedgerEvent, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]core.LedgerEvent, error)
	// ReversalExists reports whether a REVERSAL event referencing eventID
	// has already been appended.
	ReversalExists(ctx context.Context, eventID string) (bool, error)

	GetApproval(ctx context.Context, id string) (core.PendingApproval, error)
	PutApproval(ctx context.Context, approval core.PendingApproval) error
	ListApprovals(ctx context.Context, filter ApprovalFilter) ([]core.PendingApproval, error)
	// ListExpiredPending returns pending approvals whose expiry is at or
	// before now.
	ListExpiredPending(ctx context.Context, now time.Time) ([]core.PendingApproval, error)

	GetRule(ctx context.Context, id string) (core.AllocationRule, error)
	PutRule(ctx context.Context, rule core.AllocationRule) error
	DeleteRule(ctx context.Context, id string) error
	ListRulesByCouple(ctx context.Context, coupleID string) ([]core.AllocationRule, error)
	ListRulesByAccount(ctx context.Context, accountID string) ([]core.AllocationRule, error)

	GetRequest(ctx context.Context, token string) (RequestRecord, error)
	PutRequest(ctx context.Context, record RequestRecord) error
}

// Store is the full persistence contract. InTx runs fn atomically: either
// every write in fn is visible afterwards, or none is. The ledger append
// inside fn is durable before InTx returns nil.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
