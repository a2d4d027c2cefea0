// Package approval implements the two-party consent gate. Mutations whose
// amount reaches the configured threshold are parked as pending approvals
// and only executed once the partner of the initiating user approves them.
package approval

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/engine"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
	"github.com/Ruzakiff/WealthTogether/internal/store"
	"github.com/Ruzakiff/WealthTogether/pkg/metrics"
)

// Notifier receives approval lifecycle transitions, typically to fan them
// out over the message broker. A nil Notifier is silently skipped.
type Notifier interface {
	NotifyApproval(ctx context.Context, approval core.PendingApproval) error
}

// Config carries the gate's tunables.
type Config struct {
	// Threshold is the smallest amount that requires partner approval.
	Threshold core.Money
	// TTL is how long a pending approval stays actionable.
	TTL time.Duration
}

type Gate struct {
	store    store.Store
	engine   *engine.Engine
	cfg      Config
	logger   *applog.Logger
	metrics  *metrics.Collector
	notifier Notifier
	now      func() time.Time
}

func NewGate(st store.Store, eng *engine.Engine, cfg Config, logger *applog.Logger, collector *metrics.Collector, notifier Notifier) *Gate {
	return &Gate{
		store:    st,
		engine:   eng,
		cfg:      cfg,
		logger:   logger.WithComponent("approval"),
		metrics:  collector,
		notifier: notifier,
		now:      time.Now,
	}
}

// Outcome is the result of submitting a mutation through the gate: either
// the mutation executed immediately, or it is parked pending approval.
type Outcome struct {
	Executed *engine.Result        `json:"executed,omitempty"`
	Pending  *core.PendingApproval `json:"pending,omitempty"`
}

// reversePayload is the stored form of a parked reversal.
type reversePayload struct {
	EventID    string `json:"event_id"`
	CoupleID   string `json:"couple_id"`
	ActingUser string `json:"acting_user"`
}

// SubmitAllocation routes an allocation through the gate.
func (g *Gate) SubmitAllocation(ctx context.Context, req engine.AllocateRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	if req.Amount.LessThan(g.cfg.Threshold) {
		res, err := g.engine.Allocate(ctx, req)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Executed: res}, nil
	}
	return g.park(ctx, req.CoupleID, req.ActingUser, core.ActionAllocate, req)
}

// SubmitReallocation routes a reallocation through the gate.
func (g *Gate) SubmitReallocation(ctx context.Context, req engine.ReallocateRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	if req.Amount.LessThan(g.cfg.Threshold) {
		res, err := g.engine.Reallocate(ctx, req)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Executed: res}, nil
	}
	return g.park(ctx, req.CoupleID, req.ActingUser, core.ActionReallocate, req)
}

// SubmitMovement routes a deposit or withdrawal through the gate. Deposits
// never require approval; only withdrawals are gated.
func (g *Gate) SubmitMovement(ctx context.Context, req engine.MovementRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	if req.Kind == core.EventDeposit || req.Amount.LessThan(g.cfg.Threshold) {
		res, err := g.engine.RecordExternalMovement(ctx, req)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Executed: res}, nil
	}
	return g.park(ctx, req.CoupleID, req.ActingUser, core.ActionWithdraw, req)
}

// SubmitReversal routes a reversal through the gate. The gated amount is
// the magnitude of the event being reversed.
func (g *Gate) SubmitReversal(ctx context.Context, eventID, coupleID, actingUser string) (Outcome, error) {
	original, err := g.store.GetEvent(ctx, eventID)
	if err != nil {
		return Outcome{}, err
	}
	if original.CoupleID != coupleID {
		return Outcome{}, core.Errorf(core.ErrValidation, "event %s does not belong to couple %s", eventID, coupleID)
	}

	magnitude := original.Amount
	if magnitude.IsNegative() {
		magnitude = magnitude.Neg()
	}
	if magnitude.LessThan(g.cfg.Threshold) {
		res, err := g.engine.Reverse(ctx, eventID, coupleID, actingUser, "")
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Executed: res}, nil
	}
	return g.park(ctx, coupleID, actingUser, core.ActionReverse, reversePayload{
		EventID: eventID, CoupleID: coupleID, ActingUser: actingUser,
	})
}

func (g *Gate) park(ctx context.Context, coupleID, initiatedBy string, action core.ApprovalAction, payload any) (Outcome, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Outcome{}, core.Errorf(core.ErrValidation, "encode approval payload: %v", err)
	}

	now := g.now().UTC()
	approval := core.PendingApproval{
		ID:          uuid.NewString(),
		CoupleID:    coupleID,
		InitiatedBy: initiatedBy,
		Action:      action,
		Payload:     encoded,
		Status:      core.ApprovalPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(g.cfg.TTL),
	}

	err = g.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.PutApproval(ctx, approval); err != nil {
			return err
		}
		_, err := tx.AppendEvent(ctx, core.LedgerEvent{
			CoupleID: coupleID,
			Kind:     core.EventSystem,
			UserID:   initiatedBy,
			Metadata: map[string]string{
				core.MetaAction:     "approval_requested",
				core.MetaApprovalID: approval.ID,
				"approval_action":   string(action),
			},
		})
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	g.metrics.ApprovalSubmitted(string(action))
	g.logger.InfoContext(ctx, "mutation parked for approval",
		"approval_id", approval.ID, "action", action, "couple_id", coupleID)
	g.notify(ctx, approval)
	return Outcome{Pending: &approval}, nil
}

// Resolve approves or rejects a pending approval. Only the partner of the
// initiating user may resolve; an approval executes the parked mutation
// with the approval id as idempotency token.
func (g *Gate) Resolve(ctx context.Context, approvalID, resolvingUser string, approve bool, note string) (Outcome, error) {
	var resolved core.PendingApproval

	err := g.store.InTx(ctx, func(tx store.Tx) error {
		approval, err := tx.GetApproval(ctx, approvalID)
		if err != nil {
			return err
		}
		if approval.Status.IsTerminal() {
			return core.Errorf(core.ErrAlreadyResolved, "approval %s is already %s", approvalID, approval.Status)
		}
		now := g.now().UTC()
		if !approval.ExpiresAt.After(now) {
			expired, err := g.markExpired(ctx, tx, approval, now)
			if err != nil {
				return err
			}
			resolved = expired
			return core.Errorf(core.ErrAlreadyResolved, "approval %s expired at %s", approvalID, approval.ExpiresAt.Format(time.RFC3339))
		}
		if resolvingUser == approval.InitiatedBy {
			return core.Errorf(core.ErrValidation, "user %s cannot resolve their own request", resolvingUser)
		}

		approval.Status = core.ApprovalRejected
		if approve {
			approval.Status = core.ApprovalApproved
		}
		approval.ResolvedAt = &now
		approval.ResolvedBy = resolvingUser
		approval.ResolutionNote = note
		if err := tx.PutApproval(ctx, approval); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(ctx, core.LedgerEvent{
			CoupleID: approval.CoupleID,
			Kind:     core.EventSystem,
			UserID:   resolvingUser,
			Metadata: map[string]string{
				core.MetaAction:     "approval_" + string(approval.Status),
				core.MetaApprovalID: approval.ID,
				"approval_action":   string(approval.Action),
			},
		}); err != nil {
			return err
		}
		resolved = approval
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	g.metrics.ApprovalResolved(string(resolved.Status))
	g.notify(ctx, resolved)

	if resolved.Status != core.ApprovalApproved {
		return Outcome{Pending: &resolved}, nil
	}

	// The parked mutation runs outside the resolution transaction; the
	// approval id doubles as idempotency token, so a crash between the
	// two steps is safe to retry.
	result, err := g.execute(ctx, resolved)
	if err != nil {
		return Outcome{Pending: &resolved}, err
	}
	return Outcome{Executed: result, Pending: &resolved}, nil
}

func (g *Gate) execute(ctx context.Context, approval core.PendingApproval) (*engine.Result, error) {
	switch approval.Action {
	case core.ActionAllocate:
		var req engine.AllocateRequest
		if err := json.Unmarshal(approval.Payload, &req); err != nil {
			return nil, core.Errorf(core.ErrValidation, "decode approval payload: %v", err)
		}
		req.Token = approval.ID
		return g.engine.Allocate(ctx, req)
	case core.ActionReallocate:
		var req engine.ReallocateRequest
		if err := json.Unmarshal(approval.Payload, &req); err != nil {
			return nil, core.Errorf(core.ErrValidation, "decode approval payload: %v", err)
		}
		req.Token = approval.ID
		return g.engine.Reallocate(ctx, req)
	case core.ActionWithdraw:
		var req engine.MovementRequest
		if err := json.Unmarshal(approval.Payload, &req); err != nil {
			return nil, core.Errorf(core.ErrValidation, "decode approval payload: %v", err)
		}
		req.Token = approval.ID
		return g.engine.RecordExternalMovement(ctx, req)
	case core.ActionReverse:
		var p reversePayload
		if err := json.Unmarshal(approval.Payload, &p); err != nil {
			return nil, core.Errorf(core.ErrValidation, "decode approval payload: %v", err)
		}
		return g.engine.Reverse(ctx, p.EventID, p.CoupleID, p.ActingUser, approval.ID)
	}
	return nil, core.Errorf(core.ErrValidation, "unknown approval action %q", approval.Action)
}

// Get returns one approval by id.
func (g *Gate) Get(ctx context.Context, approvalID string) (core.PendingApproval, error) {
	return g.store.GetApproval(ctx, approvalID)
}

// List returns a couple's approvals, optionally narrowed by status.
func (g *Gate) List(ctx context.Context, coupleID string, status core.ApprovalStatus) ([]core.PendingApproval, error) {
	return g.store.ListApprovals(ctx, store.ApprovalFilter{CoupleID: coupleID, Status: status})
}

// SweepExpired transitions every overdue pending approval to expired and
// returns how many were swept.
func (g *Gate) SweepExpired(ctx context.Context) (int, error) {
	now := g.now().UTC()
	var swept []core.PendingApproval

	err := g.store.InTx(ctx, func(tx store.Tx) error {
		swept = swept[:0]
		overdue, err := tx.ListExpiredPending(ctx, now)
		if err != nil {
			return err
		}
		for _, approval := range overdue {
			expired, err := g.markExpired(ctx, tx, approval, now)
			if err != nil {
				return err
			}
			swept = append(swept, expired)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, approval := range swept {
		g.metrics.ApprovalResolved(string(core.ApprovalExpired))
		g.notify(ctx, approval)
	}
	if len(swept) > 0 {
		g.logger.InfoContext(ctx, "expired stale approvals", "count", len(swept))
	}
	return len(swept), nil
}

// RunSweeper sweeps on the given interval until ctx is cancelled.
func (g *Gate) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := g.SweepExpired(ctx); err != nil {
				g.logger.ErrorContext(ctx, "approval sweep failed", "error", err)
			}
		}
	}
}

func (g *Gate) markExpired(ctx context.Context, tx store.Tx, approval core.PendingApproval, now time.Time) (core.PendingApproval, error) {
	approval.Status = core.ApprovalExpired
	approval.ResolvedAt = &now
	if err := tx.PutApproval(ctx, approval); err != nil {
		return core.PendingApproval{}, err
	}
	_, err := tx.AppendEvent(ctx, core.LedgerEvent{
		CoupleID: approval.CoupleID,
		Kind:     core.EventSystem,
		UserID:   core.SystemUser,
		Metadata: map[string]string{
			core.MetaAction:     "approval_expired",
			core.MetaApprovalID: approval.ID,
			"approval_action":   string(approval.Action),
		},
	})
	if err != nil {
		return core.PendingApproval{}, err
	}
	return approval, nil
}

func (g *Gate) notify(ctx context.Context, approval core.PendingApproval) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.NotifyApproval(ctx, approval); err != nil {
		g.logger.WarnContext(ctx, "approval notification failed",
			"approval_id", approval.ID, "error", err)
	}
}
