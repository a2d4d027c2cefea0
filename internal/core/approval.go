package core

import "time"

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

const (
	ActionAllocate   ApprovalAction = "allocate"
	ActionReallocate ApprovalAction = "reallocate"
	ActionWithdraw   ApprovalAction = "withdraw"
	ActionReverse    ApprovalAction = "reverse"
)

type (
	ApprovalStatus string
	ApprovalAction string

	// PendingApproval is a proposed sensitive mutation held until the
	// non-initiating partner consents, rejects, or the expiry window
	// elapses. Payload carries the serialized engine request so an
	// approved action can be replayed exactly once.
	PendingApproval struct {
		ID             string
		CoupleID       string
		InitiatedBy    string
		Action         ApprovalAction
		Payload        []byte
		Status         ApprovalStatus
		CreatedAt      time.Time
		ExpiresAt      time.Time
		ResolvedAt     *time.Time
		ResolvedBy     string
		ResolutionNote string
	}
)

func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected || s == ApprovalExpired
}

func (a ApprovalAction) IsValid() bool {
	switch a {
	case ActionAllocate, ActionReallocate, ActionWithdraw, ActionReverse:
		return true
	}
	return false
}
