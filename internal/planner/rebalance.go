package planner

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/engine"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
	"github.com/Ruzakiff/WealthTogether/internal/store"
)

// Move is one proposed fund movement. An empty FromGoalID means the amount
// comes from the account's unallocated balance.
type Move struct {
	AccountID  string     `json:"account_id"`
	FromGoalID string     `json:"from_goal_id,omitempty"`
	ToGoalID   string     `json:"to_goal_id"`
	Amount     core.Money `json:"amount"`
}

// Plan is an advisory set of moves. Suggesting a plan mutates nothing.
type Plan struct {
	ID        string    `json:"id"`
	CoupleID  string    `json:"couple_id"`
	Moves     []Move    `json:"moves"`
	CreatedAt time.Time `json:"created_at"`
}

// MoveResult reports the fate of one committed move.
type MoveResult struct {
	Move    Move   `json:"move"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// CommitResult is the outcome of a plan commit. Applied moves stay applied
// even when a later move fails; each one was already a durable append.
type CommitResult struct {
	PlanID  string       `json:"plan_id,omitempty"`
	Results []MoveResult `json:"results"`
	Halted  bool         `json:"halted"`
}

// Rebalancer suggests and commits plans that push free or low-priority
// funds toward the couple's most urgent under-funded goals.
type Rebalancer struct {
	store  store.Store
	engine *engine.Engine
	logger *applog.Logger
}

func NewRebalancer(st store.Store, eng *engine.Engine, logger *applog.Logger) *Rebalancer {
	return &Rebalancer{store: st, engine: eng, logger: logger.WithComponent("rebalance")}
}

// Suggest builds an advisory plan: active goals ranked by urgency, each
// filled up to its remaining need, first from unallocated balances and then
// from funds parked on completed or lower-ranked goals.
func (r *Rebalancer) Suggest(ctx context.Context, coupleID string) (Plan, error) {
	plan := Plan{ID: uuid.NewString(), CoupleID: coupleID, CreatedAt: time.Now().UTC()}

	var (
		accounts []core.Account
		goals    []core.Goal
		free     map[string]core.Money            // accountID -> unallocated
		held     map[string]map[string]core.Money // goalID -> accountID -> allocated
	)

	err := r.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		accounts, err = tx.ListAccountsByCouple(ctx, coupleID)
		if err != nil {
			return err
		}
		goals, err = tx.ListGoalsByCouple(ctx, coupleID)
		if err != nil {
			return err
		}

		free = make(map[string]core.Money, len(accounts))
		for _, account := range accounts {
			entries, err := tx.ListAllocationsByAccount(ctx, account.ID)
			if err != nil {
				return err
			}
			var allocated core.Money
			for _, entry := range entries {
				allocated = allocated.Add(entry.Amount)
			}
			free[account.ID] = account.Unallocated(allocated)
		}

		held = make(map[string]map[string]core.Money)
		for _, goal := range goals {
			entries, err := tx.ListAllocationsByGoal(ctx, goal.ID)
			if err != nil {
				return err
			}
			perAccount := make(map[string]core.Money, len(entries))
			for _, entry := range entries {
				perAccount[entry.AccountID] = perAccount[entry.AccountID].Add(entry.Amount)
			}
			held[goal.ID] = perAccount
		}
		return nil
	})
	if err != nil {
		return Plan{}, err
	}

	ranked := rankGoals(goals)
	donors := withCompletedDonors(ranked, goals)

	for i, goal := range ranked {
		need := goal.Remaining()
		if need.Cents <= 0 {
			continue
		}

		// Unallocated funds first, accounts in id order for determinism.
		for _, account := range accounts {
			if need.Cents <= 0 {
				break
			}
			take := minMoney(need, free[account.ID])
			if take.Cents <= 0 {
				continue
			}
			plan.Moves = append(plan.Moves, Move{
				AccountID: account.ID, ToGoalID: goal.ID, Amount: take,
			})
			free[account.ID] = free[account.ID].Sub(take)
			need = need.Sub(take)
		}

		// Then funds parked on strictly lower-ranked goals, worst
		// first. Completed goals sit past the active ranking, so their
		// surplus is tapped before any active goal gives anything up.
		for j := len(donors) - 1; j > i && need.Cents > 0; j-- {
			donor := donors[j]
			for _, account := range accounts {
				if need.Cents <= 0 {
					break
				}
				take := minMoney(need, held[donor.ID][account.ID])
				if take.Cents <= 0 {
					continue
				}
				plan.Moves = append(plan.Moves, Move{
					AccountID: account.ID, FromGoalID: donor.ID, ToGoalID: goal.ID, Amount: take,
				})
				held[donor.ID][account.ID] = held[donor.ID][account.ID].Sub(take)
				held[goal.ID][account.ID] = held[goal.ID][account.ID].Add(take)
				need = need.Sub(take)
			}
		}
	}

	return plan, nil
}

// Commit replays the moves through the engine in order, halting at the
// first failure. Earlier moves stay applied; the result reports each
// move's fate so the caller can see the partial application.
func (r *Rebalancer) Commit(ctx context.Context, coupleID, actingUser, planID string, moves []Move) (CommitResult, error) {
	result := CommitResult{PlanID: planID}

	meta := map[string]string{}
	if planID != "" {
		meta[core.MetaRebalanceID] = planID
	}

	for _, move := range moves {
		var (
			res *engine.Result
			err error
		)
		if move.FromGoalID == "" {
			res, err = r.engine.Allocate(ctx, engine.AllocateRequest{
				CoupleID:   coupleID,
				AccountID:  move.AccountID,
				GoalID:     move.ToGoalID,
				Amount:     move.Amount,
				ActingUser: actingUser,
				Metadata:   meta,
			})
		} else {
			res, err = r.engine.Reallocate(ctx, engine.ReallocateRequest{
				CoupleID:   coupleID,
				AccountID:  move.AccountID,
				FromGoalID: move.FromGoalID,
				ToGoalID:   move.ToGoalID,
				Amount:     move.Amount,
				ActingUser: actingUser,
				Metadata:   meta,
			})
		}

		if err != nil {
			result.Results = append(result.Results, MoveResult{Move: move, Error: err.Error()})
			result.Halted = true
			r.logger.WarnContext(ctx, "rebalance commit halted",
				"plan_id", planID, "applied", len(result.Results)-1, "error", err)
			break
		}
		result.Results = append(result.Results, MoveResult{
			Move: move, Applied: true, EventID: res.EventIDs[0],
		})
	}

	return result, nil
}

/// rankGoals orders active goals by urgency: higher priority first (lower
// number wins), then nearer deadline with undated goals last, then id.
func rankGoals(goals []core.Goal) []core.Goal {
	var active []core.Goal
	for _, g := range goals {
		if g.Status == core.GoalActive {
			active = append(active, g)
		}
	}
	sortByUrgency(active)
	return active
}

// withCompletedDonors extends the active ranking with completed goals so
// the donor scan can reclaim funds a goal no longer needs. Completed goals
// never receive, so they only ever appear past the recipient index.
func withCompletedDonors(ranked, goals []core.Goal) []core.Goal {
	donors := append([]core.Goal(nil), ranked...)
	var completed []core.Goal
	for _, g := range goals {
		if g.Status == core.GoalCompleted {
			completed = append(completed, g)
		}
	}
	sortByUrgency(completed)
	return append(donors, completed...)
}

func sortByUrgency(goals []core.Goal) {
	sort.Slice(goals, func(i, j int) bool {
		a, b := goals[i], goals[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		switch {
		case a.Deadline == nil && b.Deadline == nil:
		case a.Deadline == nil:
			return false
		case b.Deadline == nil:
			return true
		case !a.Deadline.Equal(*b.Deadline):
			return a.Deadline.Before(*b.Deadline)
		}
		return a.ID < b.ID
	})
}

func minMoney(a, b core.Money) core.Money {
	if a.LessThan(b) {
		return a
	}
	return b
}
