// Package engine implements the allocation engine: the single write path
// that mutates allocation state and appends the paired ledger event as one
// atomic unit, under per-account and per-goal mutual exclusion.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
	"github.com/Ruzakiff/WealthTogether/internal/store"
	"github.com/Ruzakiff/WealthTogether/pkg/metrics"
)

// Config carries the engine's explicit tunables so tests can vary them per
// case.
type Config struct {
	// ConflictRetries bounds internal retries on concurrency conflicts
	// before the error surfaces to the caller.
	ConflictRetries int
}

type Engine struct {
	store   store.Store
	locks   *lockMap
	logger  *applog.Logger
	metrics *metrics.Collector
	cfg     Config
}

func New(st store.Store, cfg Config, logger *applog.Logger, collector *metrics.Collector) *Engine {
	return &Engine{
		store:   st,
		locks:   newLockMap(),
		logger:  logger.WithComponent("engine"),
		metrics: collector,
		cfg:     cfg,
	}
}

// Allocate earmarks amount of the account's unallocated balance to an
// active goal. The capacity check, the allocation-map upsert, the goal's
// cached total, and the ALLOCATION ledger append commit atomically.
func (e *Engine) Allocate(ctx context.Context, req AllocateRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return e.mutate(ctx, req.Token, []string{req.AccountID, req.GoalID}, func(tx store.Tx) (*Result, error) {
		account, err := tx.GetAccount(ctx, req.AccountID)
		if err != nil {
			return nil, err
		}
		goal, err := tx.GetGoal(ctx, req.GoalID)
		if err != nil {
			return nil, err
		}
		if account.CoupleID != req.CoupleID || goal.CoupleID != req.CoupleID {
			return nil, core.Errorf(core.ErrValidation, "account and goal must belong to couple %s", req.CoupleID)
		}
		if goal.Status != core.GoalActive {
			return nil, core.Errorf(core.ErrGoalNotActive, "goal %s is %s", goal.ID, goal.Status)
		}

		allocated, err := accountAllocated(ctx, tx, req.AccountID)
		if err != nil {
			return nil, err
		}
		unallocated := account.Unallocated(allocated)
		if unallocated.LessThan(req.Amount) {
			return nil, core.Errorf(core.ErrInsufficientFunds,
				"account %s has %d unallocated, requested %d", account.ID, unallocated.Cents, req.Amount.Cents)
		}

		if err := upsertAllocation(ctx, tx, req.AccountID, req.GoalID, req.Amount); err != nil {
			return nil, err
		}

		goal.CurrentAllocation = goal.CurrentAllocation.Add(req.Amount)
		completed := e.maybeComplete(&goal)
		if err := tx.PutGoal(ctx, goal); err != nil {
			return nil, err
		}

		event, err := tx.AppendEvent(ctx, core.LedgerEvent{
			CoupleID:        req.CoupleID,
			Kind:            core.EventAllocation,
			Amount:          req.Amount,
			SourceAccountID: req.AccountID,
			DestGoalID:      req.GoalID,
			UserID:          req.ActingUser,
			Metadata:        req.Metadata,
		})
		if err != nil {
			return nil, err
		}

		eventIDs := []string{event.ID}
		if completed {
			milestone, err := e.appendMilestone(ctx, tx, goal, req.ActingUser)
			if err != nil {
				return nil, err
			}
			eventIDs = append(eventIDs, milestone.ID)
		}

		return &Result{
			EventIDs:       eventIDs,
			AccountBalance: account.Balance,
			GoalAllocation: goal.CurrentAllocation,
			GoalCompleted:  completed,
		}, nil
	})
}

// Reallocate moves an earmark from one goal to another. It is recorded as
// a debit/credit pair of REALLOCATION events sharing a pair id, so each
// goal's history carries its own signed leg.
func (e *Engine) Reallocate(ctx context.Context, req ReallocateRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resources := []string{req.AccountID, req.FromGoalID, req.ToGoalID}
	return e.mutate(ctx, req.Token, resources, func(tx store.Tx) (*Result, error) {
		fromGoal, err := tx.GetGoal(ctx, req.FromGoalID)
		if err != nil {
			return nil, err
		}
		toGoal, err := tx.GetGoal(ctx, req.ToGoalID)
		if err != nil {
			return nil, err
		}
		if fromGoal.CoupleID != req.CoupleID || toGoal.CoupleID != req.CoupleID {
			return nil, core.Errorf(core.ErrValidation, "goals must belong to couple %s", req.CoupleID)
		}
		if toGoal.Status != core.GoalActive {
			return nil, core.Errorf(core.ErrGoalNotActive, "destination goal %s is %s", toGoal.ID, toGoal.Status)
		}

		entry, err := tx.GetAllocation(ctx, req.AccountID, req.FromGoalID)
		if errors.Is(err, core.ErrNotFound) || (err == nil && entry.Amount.LessThan(req.Amount)) {
			have := entry.Amount.Cents
			return nil, core.Errorf(core.ErrInsufficientFunds,
				"account %s has %d allocated to goal %s, requested %d", req.AccountID, have, req.FromGoalID, req.Amount.Cents)
		}
		if err != nil {
			return nil, err
		}

		if err := upsertAllocation(ctx, tx, req.AccountID, req.FromGoalID, req.Amount.Neg()); err != nil {
			return nil, err
		}
		if err := upsertAllocation(ctx, tx, req.AccountID, req.ToGoalID, req.Amount); err != nil {
			return nil, err
		}

		fromGoal.CurrentAllocation = fromGoal.CurrentAllocation.Sub(req.Amount)
		e.maybeReopen(&fromGoal)
		if err := tx.PutGoal(ctx, fromGoal); err != nil {
			return nil, err
		}
		toGoal.CurrentAllocation = toGoal.CurrentAllocation.Add(req.Amount)
		completed := e.maybeComplete(&toGoal)
		if err := tx.PutGoal(ctx, toGoal); err != nil {
			return nil, err
		}

		pairID := uuid.NewString()
		debit, err := tx.AppendEvent(ctx, core.LedgerEvent{
			CoupleID:        req.CoupleID,
			Kind:            core.EventReallocation,
			Amount:          req.Amount.Neg(),
			SourceAccountID: req.AccountID,
			DestGoalID:      req.FromGoalID,
			UserID:          req.ActingUser,
			Metadata:        withMeta(req.Metadata, core.MetaPairID, pairID),
		})
		if err != nil {
			return nil, err
		}
		credit, err := tx.AppendEvent(ctx, core.LedgerEvent{
			CoupleID:        req.CoupleID,
			Kind:            core.EventReallocation,
			Amount:          req.Amount,
			SourceAccountID: req.AccountID,
			DestGoalID:      req.ToGoalID,
			UserID:          req.ActingUser,
			Metadata:        withMeta(req.Metadata, core.MetaPairID, pairID),
		})
		if err != nil {
			return nil, err
		}

		eventIDs := []string{debit.ID, credit.ID}
		if completed {
			milestone, err := e.appendMilestone(ctx, tx, toGoal, req.ActingUser)
			if err != nil {
				return nil, err
			}
			eventIDs = append(eventIDs, milestone.ID)
		}

		return &Result{
			EventIDs:       eventIDs,
			GoalAllocation: toGoal.CurrentAllocation,
			GoalCompleted:  completed,
		}, nil
	})
}

// RecordExternalMovement adjusts an account's balance for a deposit or
// withdrawal. Allocations are untouched: deposits land unallocated, and a
// withdrawal may not dip into earmarked funds.
func (e *Engine) RecordExternalMovement(ctx context.Context, req MovementRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return e.mutate(ctx, req.Token, []string{req.AccountID}, func(tx store.Tx) (*Result, error) {
		account, err := tx.GetAccount(ctx, req.AccountID)
		if err != nil {
			return nil, err
		}
		if account.CoupleID != req.CoupleID {
			return nil, core.Errorf(core.ErrValidation, "account %s does not belong to couple %s", req.AccountID, req.CoupleID)
		}

		signed := req.Amount
		if req.Kind == core.EventWithdrawal {
			signed = req.Amount.Neg()

			allocated, err := accountAllocated(ctx, tx, req.AccountID)
			if err != nil {
				return nil, err
			}
			if account.Balance.Sub(req.Amount).LessThan(allocated) {
				return nil, core.Errorf(core.ErrInsufficientFunds,
					"withdrawal of %d would leave balance below the %d allocated on account %s",
					req.Amount.Cents, allocated.Cents, req.AccountID)
			}
		}

		account.Balance = account.Balance.Add(signed)
		if err := tx.PutAccount(ctx, account); err != nil {
			return nil, err
		}

		event, err := tx.AppendEvent(ctx, core.LedgerEvent{
			CoupleID:        req.CoupleID,
			Kind:            req.Kind,
			Amount:          signed,
			SourceAccountID: req.AccountID,
			UserID:          req.ActingUser,
			Metadata:        req.Metadata,
		})
		if err != nil {
			return nil, err
		}

		return &Result{
			EventIDs:       []string{event.ID},
			AccountBalance: account.Balance,
		}, nil
	})
}

// Reverse appends a compensating REVERSAL for the given event and replays
// the inverse state mutation. Reversing either leg of a reallocation pair
// reverses both legs.
func (e *Engine) Reverse(ctx context.Context, eventID, coupleID, actingUser, token string) (*Result, error) {
	if eventID == "" {
		return nil, core.Errorf(core.ErrValidation, "event id is required")
	}

	// The original must be read before locks can be chosen.
	original, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if original.CoupleID != coupleID {
		return nil, core.Errorf(core.ErrValidation, "event %s does not belong to couple %s", eventID, coupleID)
	}

	resources := []string{original.SourceAccountID, original.DestGoalID}
	if original.Kind == core.EventReallocation {
		// Lock the counterpart goal too; its id is only known from the
		// partner leg, so look it up before acquiring.
		partner, err := e.findPairPartner(ctx, e.store, original)
		if err != nil {
			return nil, err
		}
		resources = append(resources, partner.DestGoalID)
	}

	return e.mutate(ctx, token, resources, func(tx store.Tx) (*Result, error) {
		return e.reverseInTx(ctx, tx, original, actingUser)
	})
}

func (e *Engine) reverseInTx(ctx context.Context, tx store.Tx, original core.LedgerEvent, actingUser string) (*Result, error) {
	switch original.Kind {
	case core.EventSystem, core.EventReversal:
		return nil, core.Errorf(core.ErrNotReversible, "%s events cannot be reversed", original.Kind)
	}

	reversed, err := tx.ReversalExists(ctx, original.ID)
	if err != nil {
		return nil, err
	}
	if reversed {
		return nil, core.Errorf(core.ErrNotReversible, "event %s was already reversed", original.ID)
	}

	switch original.Kind {
	case core.EventDeposit, core.EventWithdrawal:
		return e.reverseMovement(ctx, tx, original, actingUser)
	case core.EventAllocation:
		return e.reverseAllocation(ctx, tx, original, actingUser)
	case core.EventReallocation:
		return e.reverseReallocation(ctx, tx, original, actingUser)
	}
	return nil, core.Errorf(core.ErrNotReversible, "unsupported event kind %s", original.Kind)
}

func (e *Engine) reverseMovement(ctx context.Context, tx store.Tx, original core.LedgerEvent, actingUser string) (*Result, error) {
	account, err := tx.GetAccount(ctx, original.SourceAccountID)
	if err != nil {
		return nil, err
	}

	newBalance := account.Balance.Sub(original.Amount)
	if original.Kind == core.EventDeposit {
		allocated, err := accountAllocated(ctx, tx, account.ID)
		if err != nil {
			return nil, err
		}
		if newBalance.LessThan(allocated) {
			return nil, core.Errorf(core.ErrNotReversible,
				"reversing deposit %s would leave balance below the %d allocated", original.ID, allocated.Cents)
		}
	}

	account.Balance = newBalance
	if err := tx.PutAccount(ctx, account); err != nil {
		return nil, err
	}

	event, err := e.appendReversal(ctx, tx, original, actingUser, nil)
	if err != nil {
		return nil, err
	}
	return &Result{EventIDs: []string{event.ID}, AccountBalance: account.Balance}, nil
}

func (e *Engine) reverseAllocation(ctx context.Context, tx store.Tx, original core.LedgerEvent, actingUser string) (*Result, error) {
	entry, err := tx.GetAllocation(ctx, original.SourceAccountID, original.DestGoalID)
	if err != nil || entry.Amount.LessThan(original.Amount) {
		return nil, core.Errorf(core.ErrNotReversible,
			"allocation %s can no longer be unwound from account %s", original.ID, original.SourceAccountID)
	}

	if err := upsertAllocation(ctx, tx, original.SourceAccountID, original.DestGoalID, original.Amount.Neg()); err != nil {
		return nil, err
	}

	goal, err := tx.GetGoal(ctx, original.DestGoalID)
	if err != nil {
		return nil, err
	}
	goal.CurrentAllocation = goal.CurrentAllocation.Sub(original.Amount)
	e.maybeReopen(&goal)
	if err := tx.PutGoal(ctx, goal); err != nil {
		return nil, err
	}

	event, err := e.appendReversal(ctx, tx, original, actingUser, nil)
	if err != nil {
		return nil, err
	}
	return &Result{EventIDs: []string{event.ID}, GoalAllocation: goal.CurrentAllocation}, nil
}

func (e *Engine) reverseReallocation(ctx context.Context, tx store.Tx, original core.LedgerEvent, actingUser string) (*Result, error) {
	partner, err := e.findPairPartner(ctx, tx, original)
	if err != nil {
		return nil, err
	}
	partnerReversed, err := tx.ReversalExists(ctx, partner.ID)
	if err != nil {
		return nil, err
	}
	if partnerReversed {
		return nil, core.Errorf(core.ErrNotReversible, "reallocation pair of %s was already reversed", original.ID)
	}

	pairID := uuid.NewString()
	var eventIDs []string
	for _, leg := range []core.LedgerEvent{original, partner} {
		entry, err := tx.GetAllocation(ctx, leg.SourceAccountID, leg.DestGoalID)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
		if leg.Amount.Cents > 0 && entry.Amount.LessThan(leg.Amount) {
			return nil, core.Errorf(core.ErrNotReversible,
				"reallocation %s can no longer be unwound from goal %s", leg.ID, leg.DestGoalID)
		}

		if err := upsertAllocation(ctx, tx, leg.SourceAccountID, leg.DestGoalID, leg.Amount.Neg()); err != nil {
			return nil, err
		}
		goal, err := tx.GetGoal(ctx, leg.DestGoalID)
		if err != nil {
			return nil, err
		}
		goal.CurrentAllocation = goal.CurrentAllocation.Sub(leg.Amount)
		e.maybeReopen(&goal)
		if err := tx.PutGoal(ctx, goal); err != nil {
			return nil, err
		}

		event, err := e.appendReversal(ctx, tx, leg, actingUser, map[string]string{core.MetaPairID: pairID})
		if err != nil {
			return nil, err
		}
		eventIDs = append(eventIDs, event.ID)
	}

	return &Result{EventIDs: eventIDs}, nil
}

func (e *Engine) appendReversal(ctx context.Context, tx store.Tx, original core.LedgerEvent, actingUser string, extra map[string]string) (core.LedgerEvent, error) {
	meta := map[string]string{
		core.MetaReverses:     original.ID,
		core.MetaReversedKind: string(original.Kind),
	}
	for k, v := range extra {
		meta[k] = v
	}
	return tx.AppendEvent(ctx, core.LedgerEvent{
		CoupleID:        original.CoupleID,
		Kind:            core.EventReversal,
		Amount:          original.Amount.Neg(),
		SourceAccountID: original.SourceAccountID,
		DestGoalID:      original.DestGoalID,
		UserID:          actingUser,
		Metadata:        meta,
	})
}

// findPairPartner locates the other leg of a reallocation pair by its
// shared pair id within the couple's reallocation history.
func (e *Engine) findPairPartner(ctx context.Context, tx store.Tx, leg core.LedgerEvent) (core.LedgerEvent, error) {
	pairID := leg.Metadata[core.MetaPairID]
	if pairID == "" {
		return core.LedgerEvent{}, core.Errorf(core.ErrNotReversible, "reallocation %s has no pair id", leg.ID)
	}
	events, err := tx.ListEvents(ctx, store.EventFilter{
		CoupleID: leg.CoupleID,
		Kinds:    []core.EventKind{core.EventReallocation},
	})
	if err != nil {
		return core.LedgerEvent{}, err
	}
	for _, ev := range events {
		if ev.ID != leg.ID && ev.Metadata[core.MetaPairID] == pairID {
			return ev, nil
		}
	}
	return core.LedgerEvent{}, core.Errorf(core.ErrNotReversible, "pair partner of %s not found", leg.ID)
}

// mutate is the shared write path: keyed locks in canonical order, the
// idempotency check, the transactional body, the idempotency record, and
// bounded retries on concurrency conflicts.
func (e *Engine) mutate(ctx context.Context, token string, resources []string, fn func(tx store.Tx) (*Result, error)) (*Result, error) {
	release := e.locks.acquire(resources...)
	defer release()

	var result *Result
	attempt := func() error {
		return e.store.InTx(ctx, func(tx store.Tx) error {
			if token != "" {
				record, err := tx.GetRequest(ctx, token)
				if err == nil {
					replayed, derr := decodeResult(record)
					if derr != nil {
						return derr
					}
					result = replayed
					return nil
				}
				if !errors.Is(err, core.ErrNotFound) {
					return err
				}
			}

			fresh, err := fn(tx)
			if err != nil {
				return err
			}

			if token != "" {
				record, err := recordResult(token, fresh)
				if err != nil {
					return err
				}
				if err := tx.PutRequest(ctx, record); err != nil {
					return err
				}
			}
			result = fresh
			return nil
		})
	}

	var err error
	for i := 0; i <= e.cfg.ConflictRetries; i++ {
		err = attempt()
		if err == nil {
			break
		}
		if !errors.Is(err, core.ErrConcurrencyConflict) {
			break
		}
		e.metrics.ConflictRetried()
		time.Sleep(time.Duration(i+1) * 5 * time.Millisecond)
	}

	e.observe(ctx, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) observe(ctx context.Context, err error) {
	switch {
	case err == nil:
		e.metrics.MutationApplied()
	case errors.Is(err, core.ErrInsufficientFunds),
		errors.Is(err, core.ErrGoalNotActive),
		errors.Is(err, core.ErrValidation),
		errors.Is(err, core.ErrNotReversible):
		e.metrics.MutationRejected()
	default:
		e.metrics.MutationFailed()
		e.logger.ErrorContext(ctx, "mutation failed", "error", err)
	}
}

// maybeComplete flips a goal to completed once its target is reached.
func (e *Engine) maybeComplete(goal *core.Goal) bool {
	if goal.Status == core.GoalActive && !goal.CurrentAllocation.LessThan(goal.TargetAmount) {
		goal.Status = core.GoalCompleted
		return true
	}
	return false
}

// maybeReopen reactivates a completed goal whose allocation dropped back
// below target, e.g. after a reversal.
func (e *Engine) maybeReopen(goal *core.Goal) {
	if goal.Status == core.GoalCompleted && goal.CurrentAllocation.LessThan(goal.TargetAmount) {
		goal.Status = core.GoalActive
	}
}

func (e *Engine) appendMilestone(ctx context.Context, tx store.Tx, goal core.Goal, actingUser string) (core.LedgerEvent, error) {
	return tx.AppendEvent(ctx, core.LedgerEvent{
		CoupleID:   goal.CoupleID,
		Kind:       core.EventSystem,
		UserID:     actingUser,
		DestGoalID: goal.ID,
		Metadata: map[string]string{
			core.MetaAction: "goal_milestone",
			"milestone":     "complete",
			"goal_name":     goal.Name,
		},
	})
}

// Store exposes the underlying persistence for read-only collaborators.
func (e *Engine) Store() store.Store { return e.store }

func accountAllocated(ctx context.Context, tx store.Tx, accountID string) (core.Money, error) {
	entries, err := tx.ListAllocationsByAccount(ctx, accountID)
	if err != nil {
		return core.Money{}, err
	}
	var total core.Money
	for _, entry := range entries {
		total = total.Add(entry.Amount)
	}
	return total, nil
}

func upsertAllocation(ctx context.Context, tx store.Tx, accountID, goalID string, delta core.Money) error {
	entry, err := tx.GetAllocation(ctx, accountID, goalID)
	if errors.Is(err, core.ErrNotFound) {
		entry = core.Allocation{
			ID:        uuid.NewString(),
			AccountID: accountID,
			GoalID:    goalID,
		}
	} else if err != nil {
		return err
	}

	entry.Amount = entry.Amount.Add(delta)
	if entry.Amount.IsNegative() {
		return core.Errorf(core.ErrConcurrencyConflict,
			"allocation %s -> %s would go negative", accountID, goalID)
	}
	entry.UpdatedAt = time.Now().UTC()
	return tx.PutAllocation(ctx, entry)
}

func withMeta(base map[string]string, key, value string) map[string]string {
	meta := make(map[string]string, len(base)+1)
	for k, v := range base {
		meta[k] = v
	}
	meta[key] = value
	return meta
}
