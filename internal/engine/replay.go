package engine

import (
	"context"
	"fmt"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/store"
)

// ReplayState is the allocation state of a couple computed purely from its
// ledger history, with no reference to the stored snapshots.
type ReplayState struct {
	AccountBalances map[string]core.Money
	GoalAllocations map[string]core.Money
	// Allocations keys are "accountID/goalID".
	Allocations map[string]core.Money
}

// Discrepancy records one divergence between a stored snapshot value and
// the value replayed from the ledger.
type Discrepancy struct {
	Entity   string     `json:"entity"`
	ID       string     `json:"id"`
	Stored   core.Money `json:"stored"`
	Replayed core.Money `json:"replayed"`
}

// ReconcileReport is the outcome of a consistency check over one couple.
type ReconcileReport struct {
	CoupleID      string        `json:"couple_id"`
	EventsFolded  int           `json:"events_folded"`
	Discrepancies []Discrepancy `json:"discrepancies,omitempty"`
}

func (r ReconcileReport) Consistent() bool { return len(r.Discrepancies) == 0 }

// Replay folds a couple's full ledger history into allocation state. A
// history produced solely by this engine replays to exactly the stored
// snapshots.
func (e *Engine) Replay(ctx context.Context, coupleID string) (ReplayState, error) {
	events, err := e.store.ListEvents(ctx, store.EventFilter{CoupleID: coupleID})
	if err != nil {
		return ReplayState{}, err
	}
	return foldEvents(events), nil
}

// Reconcile replays the couple's ledger and compares the result to the
// stored account, goal, and allocation snapshots.
func (e *Engine) Reconcile(ctx context.Context, coupleID string) (ReconcileReport, error) {
	report := ReconcileReport{CoupleID: coupleID}

	err := e.store.InTx(ctx, func(tx store.Tx) error {
		events, err := tx.ListEvents(ctx, store.EventFilter{CoupleID: coupleID})
		if err != nil {
			return err
		}
		report.EventsFolded = len(events)
		state := foldEvents(events)

		accounts, err := tx.ListAccountsByCouple(ctx, coupleID)
		if err != nil {
			return err
		}
		for _, account := range accounts {
			replayed := state.AccountBalances[account.ID]
			if account.Balance != replayed {
				report.Discrepancies = append(report.Discrepancies, Discrepancy{
					Entity: "account", ID: account.ID, Stored: account.Balance, Replayed: replayed,
				})
			}
		}

		goals, err := tx.ListGoalsByCouple(ctx, coupleID)
		if err != nil {
			return err
		}
		for _, goal := range goals {
			replayed := state.GoalAllocations[goal.ID]
			if goal.CurrentAllocation != replayed {
				report.Discrepancies = append(report.Discrepancies, Discrepancy{
					Entity: "goal", ID: goal.ID, Stored: goal.CurrentAllocation, Replayed: replayed,
				})
			}

			// The goal's cached total must also match the sum of its
			// per-account allocation rows.
			entries, err := tx.ListAllocationsByGoal(ctx, goal.ID)
			if err != nil {
				return err
			}
			var rowSum core.Money
			for _, entry := range entries {
				rowSum = rowSum.Add(entry.Amount)
			}
			if goal.CurrentAllocation != rowSum {
				report.Discrepancies = append(report.Discrepancies, Discrepancy{
					Entity: "goal_rows", ID: goal.ID, Stored: goal.CurrentAllocation, Replayed: rowSum,
				})
			}
		}

		// No account may have more earmarked than it holds.
		for _, account := range accounts {
			entries, err := tx.ListAllocationsByAccount(ctx, account.ID)
			if err != nil {
				return err
			}
			var allocated core.Money
			for _, entry := range entries {
				allocated = allocated.Add(entry.Amount)
			}
			if account.Balance.LessThan(allocated) {
				report.Discrepancies = append(report.Discrepancies, Discrepancy{
					Entity: "overcommitted_account", ID: account.ID, Stored: account.Balance, Replayed: allocated,
				})
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileReport{}, err
	}
	return report, nil
}

func foldEvents(events []core.LedgerEvent) ReplayState {
	state := ReplayState{
		AccountBalances: map[string]core.Money{},
		GoalAllocations: map[string]core.Money{},
		Allocations:     map[string]core.Money{},
	}
	for _, event := range events {
		kind := event.Kind
		if kind == core.EventReversal {
			// A reversal is the negated original, so folding it with the
			// original's rules cancels the original's effect.
			kind = core.EventKind(event.Metadata[core.MetaReversedKind])
		}
		switch kind {
		case core.EventDeposit, core.EventWithdrawal:
			state.AccountBalances[event.SourceAccountID] = state.AccountBalances[event.SourceAccountID].Add(event.Amount)
		case core.EventAllocation, core.EventReallocation:
			key := allocationKey(event.SourceAccountID, event.DestGoalID)
			state.Allocations[key] = state.Allocations[key].Add(event.Amount)
			state.GoalAllocations[event.DestGoalID] = state.GoalAllocations[event.DestGoalID].Add(event.Amount)
		}
	}
	return state
}

func allocationKey(accountID, goalID string) string {
	return fmt.Sprintf("%s/%s", accountID, goalID)
}
