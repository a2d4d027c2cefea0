package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
	"github.com/Ruzakiff/WealthTogether/internal/store"
	"github.com/Ruzakiff/WealthTogether/internal/store/memory"
)

const (
	testCouple = "couple-1"
	testUser   = "user-a"
)

func testEngine(t *testing.T) (*Engine, *memory.Memory) {
	t.Helper()
	st := memory.New()
	logger := applog.New(applog.Config{
		Component: "test",
		Handler:   slog.NewTextHandler(io.Discard, nil),
	})
	return New(st, Config{ConflictRetries: 3}, logger, nil), st
}

func seedAccount(t *testing.T, eng *Engine, id string, balanceCents int64) {
	t.Helper()
	ctx := context.Background()
	err := eng.Store().PutAccount(ctx, core.Account{
		ID:        id,
		UserID:    testUser,
		CoupleID:  testCouple,
		Name:      "checking",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if balanceCents > 0 {
		_, err = eng.RecordExternalMovement(ctx, MovementRequest{
			CoupleID:   testCouple,
			AccountID:  id,
			Kind:       core.EventDeposit,
			Amount:     core.Cents(balanceCents),
			ActingUser: testUser,
		})
		if err != nil {
			t.Fatalf("seed deposit: %v", err)
		}
	}
}

func seedGoal(t *testing.T, eng *Engine, id string, targetCents int64) {
	t.Helper()
	err := eng.Store().PutGoal(context.Background(), core.Goal{
		ID:           id,
		CoupleID:     testCouple,
		Name:         "goal " + id,
		TargetAmount: core.Cents(targetCents),
		Priority:     1,
		Status:       core.GoalActive,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed goal: %v", err)
	}
}

func TestAllocate(t *testing.T) {
	ctx := context.Background()

	t.Run("earmarks unallocated funds", func(t *testing.T) {
		eng, _ := testEngine(t)
		seedAccount(t, eng, "acct-1", 100_000)
		seedGoal(t, eng, "goal-1", 500_000)

		res, err := eng.Allocate(ctx, AllocateRequest{
			CoupleID: testCouple, AccountID: "acct-1", GoalID: "goal-1",
			Amount: core.Cents(40_000), ActingUser: testUser,
		})
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if res.GoalAllocation != core.Cents(40_000) {
			t.Errorf("goal allocation = %d, want 40000", res.GoalAllocation.Cents)
		}
		if len(res.EventIDs) != 1 {
			t.Errorf("event count = %d, want 1", len(res.EventIDs))
		}

		entry, err := eng.Store().GetAllocation(ctx, "acct-1", "goal-1")
		if err != nil {
			t.Fatalf("get allocation: %v", err)
		}
		if entry.Amount != core.Cents(40_000) {
			t.Errorf("entry amount = %d, want 40000", entry.Amount.Cents)
		}

		// A second allocation to the same goal merges into one entry.
		if _, err := eng.Allocate(ctx, AllocateRequest{
			CoupleID: testCouple, AccountID: "acct-1", GoalID: "goal-1",
			Amount: core.Cents(20_000), ActingUser: testUser,
		}); err != nil {
			t.Fatalf("second allocate: %v", err)
		}
		entry, _ = eng.Store().GetAllocation(ctx, "acct-1", "goal-1")
		if entry.Amount != core.Cents(60_000) {
			t.Errorf("merged entry = %d, want 60000", entry.Amount.Cents)
		}
	})

	t.Run("rejects amounts beyond the unallocated balance", func(t *testing.T) {
		eng, _ := testEngine(t)
		seedAccount(t, eng, "acct-1", 100_000)
		seedGoal(t, eng, "goal-1", 500_000)
		seedGoal(t, eng, "goal-2", 500_000)

		if _, err := eng.Allocate(ctx, AllocateRequest{
			CoupleID: testCouple, AccountID: "acct-1", GoalID: "goal-1",
			Amount: core.Cents(40_000), ActingUser: testUser,
		}); err != nil {
			t.Fatalf("allocate: %v", err)
		}

		// 60_000 remains unallocated; 70_000 must fail even though the
		// account balance alone could cover it.
		_, err := eng.Allocate(ctx, AllocateRequest{
			CoupleID: testCouple, AccountID: "acct-1", GoalID: "goal-2",
			Amount: core.Cents(70_000), ActingUser: testUser,
		})
		if !errors.Is(err, core.ErrInsufficientFunds) {
			t.Fatalf("error = %v, want ErrInsufficientFunds", err)
		}

		// The failed call left no trace.
		if _, err := eng.Store().GetAllocation(ctx, "acct-1", "goal-2"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("allocation for goal-2 = %v, want ErrNotFound", err)
		}
	})

	t.Run("rejects inactive goals", func(t *testing.T) {
		eng, _ := testEngine(t)
		seedAccount(t, eng, "acct-1", 100_000)
		seedGoal(t, eng, "goal-1", 500_000)
		goal, _ := eng.Store().GetGoal(ctx, "goal-1")
		goal.Status = core.GoalArchived
		if err := eng.Store().PutGoal(ctx, goal); err != nil {
			t.Fatal(err)
		}

		_, err := eng.Allocate(ctx, AllocateRequest{
			CoupleID: testCouple, AccountID: "acct-1", GoalID: "goal-1",
			Amount: core.Cents(10_000), ActingUser: testUser,
		})
		if !errors.Is(err, core.ErrGoalNotActive) {
			t.Fatalf("error = %v, want ErrGoalNotActive", err)
		}
	})

	t.Run("rejects unknown accounts", func(t *testing.T) {
		eng, _ := testEngine(t)
		seedGoal(t, eng, "goal-1", 500_000)
		_, err := eng.Allocate(ctx, AllocateRequest{
			CoupleID: testCouple, AccountID: "missing", GoalID: "goal-1",
			Amount: core.Cents(10_000), ActingUser: testUser,
		})
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestAllocateIdempotency(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)
	seedAccount(t, eng, "acct-1", 100_000)
	seedGoal(t, eng, "goal-1", 500_000)

	req := AllocateRequest{
		Token:    "tok-1",
		CoupleID: testCouple, AccountID: "acct-1", GoalID: "goal-1",
		Amount: core.Cents(40_000), ActingUser: testUser,
	}
	first, err := eng.Allocate(ctx, req)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.Replayed {
		t.Error("first call marked as replayed")
	}

	second, err := eng.Allocate(ctx, req)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !second.Replayed {
		t.Error("retry not marked as replayed")
	}
	if len(second.EventIDs) != len(first.EventIDs) || second.EventIDs[0] != first.EventIDs[0] {
		t.Errorf("retry event ids = %v, want %v", second.EventIDs, first.EventIDs)
	}

	// The retry must not have allocated again.
	entry, _ := eng.Store().GetAllocation(ctx, "acct-1", "goal-1")
	if entry.Amount != core.Cents(40_000) {
		t.Errorf("entry after retry = %d, want 40000", entry.Amount.Cents)
	}
	events, _ := eng.Store().ListEvents(ctx, store.EventFilter{CoupleID: testCouple, Kinds: []core.EventKind{core.EventAllocation}})
	if len(events) != 1 {
		t.Errorf("allocation events = %d, want 1", len(events))
	}
}

func TestConcurrentAllocationsNeverOversubscribe(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)
	seedAccount(t, eng, "acct-1", 100_000)
	seedGoal(t, eng, "goal-1", 10_000_000)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded int

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := eng.Allocate(ctx, AllocateRequest{
				CoupleID: testCouple, AccountID: "acct-1", GoalID: "goal-1",
				Amount: core.Cents(10_000), ActingUser: testUser,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, core.ErrInsufficientFunds) {
				t.Errorf("worker %d: unexpected error %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	// Exactly ten 10_000 slices fit in 100_000.
	if succeeded != 10 {
		t.Errorf("succeeded = %d, want 10", succeeded)
	}
	entry, _ := eng.Store().GetAllocation(ctx, "acct-1", "goal-1")
	if entry.Amount != core.Cents(100_000) {
		t.Errorf("total allocated = %d, want 100000", entry.Amount.Cents)
	}

	report, err := eng.Reconcile(ctx, testCouple)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Consistent() {
		t.Errorf("state inconsistent after concurrent writes: %+v", report.Discrepancies)
	}
}

func TestReallocate(t *testing.T) {
	ctx := context.Background()

	t.Run("moves an earmark between goals", func(t *testing.T) {
		eng, _ := testEngine(t)
		seedAccount(t, eng, "acct-1", 100_000)
		seedGoal(t, eng, "goal-1", 500_000)
		seedGoal(t, eng, "goal-2", 500_000)

		mustAllocate(t, eng, "acct-1", "goal-1", 60_000)

		res, err := eng.Reallocate(ctx, ReallocateRequest{
			CoupleID: testCouple, AccountID: "acct-1",
			FromGoalID: "goal-1", ToGoalID: "goal-2",
			Amount: core.Cents(25_000), ActingUser: testUser,
		})
		if err != nil {
			t.Fatalf("reallocate: %v", err)
		}
		if len(res.EventIDs) != 2 {
			t.Fatalf("event count = %d, want a debit/credit pair", len(res.EventIDs))
		}

		from, _ := eng.Store().GetAllocation(ctx, "acct-1", "goal-1")
		to, _ := eng.Store().GetAllocation(ctx, "acct-1", "goal-2")
		if from.Amount != core.Cents(35_000) || to.Amount != core.Cents(25_000) {
			t.Errorf("entries = %d/%d, want 35000/25000", from.Amount.Cents, to.Amount.Cents)
		}

		// Both legs share a pair id and sum to zero.
		events, _ := eng.Store().ListEvents(ctx, store.EventFilter{
			CoupleID: testCouple, Kinds: []core.EventKind{core.EventReallocation},
		})
		if len(events) != 2 {
			t.Fatalf("reallocation events = %d, want 2", len(events))
		}
		if events[0].Metadata[core.MetaPairID] == "" ||
			events[0].Metadata[core.MetaPairID] != events[1].Metadata[core.MetaPairID] {
			t.Error("pair legs do not share a pair id")
		}
		if sum := events[0].Amount.Add(events[1].Amount); !sum.IsZero() {
			t.Errorf("pair sums to %d, want 0", sum.Cents)
		}
	})

	t.Run("rejects moving more than the source earmark", func(t *testing.T) {
		eng, _ := testEngine(t)
		seedAccount(t, eng, "acct-1", 100_000)
		seedGoal(t, eng, "goal-1", 500_000)
		seedGoal(t, eng, "goal-2", 500_000)
		mustAllocate(t, eng, "acct-1", "goal-1", 20_000)

		_, err := eng.Reallocate(ctx, ReallocateRequest{
			CoupleID: testCouple, AccountID: "acct-1",
			FromGoalID: "goal-1", ToGoalID: "goal-2",
			Amount: core.Cents(30_000), ActingUser: testUser,
		})
		if !errors.Is(err, core.ErrInsufficientFunds) {
			t.Fatalf("error = %v, want ErrInsufficientFunds", err)
		}
	})

	t.Run("rejects an inactive destination", func(t *testing.T) {
		eng, _ := testEngine(t)
		seedAccount(t, eng, "acct-1", 100_000)
		seedGoal(t, eng, "goal-1", 500_000)
		seedGoal(t, eng, "goal-2", 500_000)
		mustAllocate(t, eng, "acct-1", "goal-1", 20_000)

		goal, _ := eng.Store().GetGoal(ctx, "goal-2")
		goal.Status = core.GoalArchived
		if err := eng.Store().PutGoal(ctx, goal); err != nil {
			t.Fatal(err)
		}

		_, err := eng.Reallocate(ctx, ReallocateRequest{
			CoupleID: testCouple, AccountID: "acct-1",
			FromGoalID: "goal-1", ToGoalID: "goal-2",
			Amount: core.Cents(10_000), ActingUser: testUser,
		})
		if !errors.Is(err, core.ErrGoalNotActive) {
			t.Fatalf("error = %v, want ErrGoalNotActive", err)
		}
	})
}

func TestGoalCompletion(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)
	seedAccount(t, eng, "acct-1", 100_000)
	seedGoal(t, eng, "goal-1", 50_000)

	res, err := eng.Allocate(ctx, AllocateRequest{
		CoupleID: testCouple, AccountID: "acct-1", GoalID: "goal-1",
		Amount: core.Cents(50_000), ActingUser: testUser,
	})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !res.GoalCompleted {
		t.Error("reaching the target did not complete the goal")
	}
	if len(res.EventIDs) != 2 {
		t.Fatalf("event count = %d, want allocation plus milestone", len(res.EventIDs))
	}

	goal, _ := eng.Store().GetGoal(ctx, "goal-1")
	if goal.Status != core.GoalCompleted {
		t.Errorf("goal status = %s, want completed", goal.Status)
	}

	milestones, _ := eng.Store().ListEvents(ctx, store.EventFilter{
		CoupleID: testCouple, Kinds: []core.EventKind{core.EventSystem},
	})
	if len(milestones) != 1 || milestones[0].Metadata[core.MetaAction] != "goal_milestone" {
		t.Fatalf("milestone events = %+v, want one goal_milestone", milestones)
	}

	// Reversing the allocation drops below target and reactivates the goal.
	if _, err := eng.Reverse(ctx, res.EventIDs[0], testCouple, testUser, ""); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	goal, _ = eng.Store().GetGoal(ctx, "goal-1")
	if goal.Status != core.GoalActive {
		t.Errorf("goal status after reversal = %s, want active", goal.Status)
	}
}

func TestWithdrawalRespectsEarmarks(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)
	seedAccount(t, eng, "acct-1", 100_000)
	seedGoal(t, eng, "goal-1", 500_000)
	mustAllocate(t, eng, "acct-1", "goal-1", 80_000)

	// Only 20_000 is free; a 30_000 withdrawal would eat into earmarks.
	_, err := eng.RecordExternalMovement(ctx, MovementRequest{
		CoupleID: testCouple, AccountID: "acct-1",
		Kind: core.EventWithdrawal, Amount: core.Cents(30_000), ActingUser: testUser,
	})
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}

	res, err := eng.RecordExternalMovement(ctx, MovementRequest{
		CoupleID: testCouple, AccountID: "acct-1",
		Kind: core.EventWithdrawal, Amount: core.Cents(20_000), ActingUser: testUser,
	})
	if err != nil {
		t.Fatalf("withdrawal: %v", err)
	}
	if res.AccountBalance != core.Cents(80_000) {
		t.Errorf("balance = %d, want 80000", res.AccountBalance.Cents)
	}
}

func TestReverse(t *testing.T) {
	ctx := context.Background()

	t.Run("deposit reversal is blocked while funds are earmarked", func(t *testing.T) {
		eng, _ := testEngine(t)
		seedAccount(t, eng, "acct-1", 0)
		dep, err := eng.RecordExternalMovement(ctx, MovementRequest{
			CoupleID: testCouple, AccountID: "acct-1",
			Kind: core.EventDeposit, Amount: core.Cents(50_000), ActingUser: testUser,
		})
		if err != nil {
			t.Fatal(err)
		}
		seedGoal(t, eng, "goal-1", 500_000)
		mustAllocate(t, eng, "acct-1", "goal-1", 40_000)

		_, err = eng.Reverse(ctx, dep.EventIDs[0], testCouple, testUser, "")
		if !errors.Is(err, core.ErrNotReversible) {
			t.Fatalf("error = %v, want ErrNotReversible", err)
		}
	})

	t.Run("reversing a reallocation unwinds both legs", func(t *testing.T) {
		eng, _ := testEngine(t)
		seedAccount(t, eng, "acct-1", 100_000)
		seedGoal(t, eng, "goal-1", 500_000)
		seedGoal(t, eng, "goal-2", 500_000)
		mustAllocate(t, eng, "acct-1", "goal-1", 60_000)

		realloc, err := eng.Reallocate(ctx, ReallocateRequest{
			CoupleID: testCouple, AccountID: "acct-1",
			FromGoalID: "goal-1", ToGoalID: "goal-2",
			Amount: core.Cents(25_000), ActingUser: testUser,
		})
		if err != nil {
			t.Fatal(err)
		}

		res, err := eng.Reverse(ctx, realloc.EventIDs[0], testCouple, testUser, "")
		if err != nil {
			t.Fatalf("reverse: %v", err)
		}
		if len(res.EventIDs) != 2 {
			t.Fatalf("reversal events = %d, want 2", len(res.EventIDs))
		}

		from, _ := eng.Store().GetAllocation(ctx, "acct-1", "goal-1")
		to, _ := eng.Store().GetAllocation(ctx, "acct-1", "goal-2")
		if from.Amount != core.Cents(60_000) || !to.Amount.IsZero() {
			t.Errorf("entries = %d/%d, want 60000/0", from.Amount.Cents, to.Amount.Cents)
		}
	})

	t.Run("an event can only be reversed once", func(t *testing.T) {
		eng, _ := testEngine(t)
		seedAccount(t, eng, "acct-1", 100_000)
		seedGoal(t, eng, "goal-1", 500_000)
		alloc, err := eng.Allocate(ctx, AllocateRequest{
			CoupleID: testCouple, AccountID: "acct-1", GoalID: "goal-1",
			Amount: core.Cents(40_000), ActingUser: testUser,
		})
		if err != nil {
			t.Fatal(err)
		}

		if _, err := eng.Reverse(ctx, alloc.EventIDs[0], testCouple, testUser, ""); err != nil {
			t.Fatalf("first reverse: %v", err)
		}
		_, err = eng.Reverse(ctx, alloc.EventIDs[0], testCouple, testUser, "")
		if !errors.Is(err, core.ErrNotReversible) {
			t.Fatalf("second reverse error = %v, want ErrNotReversible", err)
		}
	})

	t.Run("system and reversal events are not reversible", func(t *testing.T) {
		eng, _ := testEngine(t)
		seedAccount(t, eng, "acct-1", 100_000)
		seedGoal(t, eng, "goal-1", 500_000)
		alloc, err := eng.Allocate(ctx, AllocateRequest{
			CoupleID: testCouple, AccountID: "acct-1", GoalID: "goal-1",
			Amount: core.Cents(40_000), ActingUser: testUser,
		})
		if err != nil {
			t.Fatal(err)
		}
		rev, err := eng.Reverse(ctx, alloc.EventIDs[0], testCouple, testUser, "")
		if err != nil {
			t.Fatal(err)
		}

		_, err = eng.Reverse(ctx, rev.EventIDs[0], testCouple, testUser, "")
		if !errors.Is(err, core.ErrNotReversible) {
			t.Fatalf("reversing a reversal: error = %v, want ErrNotReversible", err)
		}
	})
}

func TestReplayRoundTrip(t *testing.T) {
	ctx := context.Background()
	eng, _ := testEngine(t)
	seedAccount(t, eng, "acct-1", 200_000)
	seedAccount(t, eng, "acct-2", 50_000)
	seedGoal(t, eng, "goal-1", 500_000)
	seedGoal(t, eng, "goal-2", 300_000)

	mustAllocate(t, eng, "acct-1", "goal-1", 120_000)
	mustAllocate(t, eng, "acct-2", "goal-2", 30_000)

	if _, err := eng.Reallocate(ctx, ReallocateRequest{
		CoupleID: testCouple, AccountID: "acct-1",
		FromGoalID: "goal-1", ToGoalID: "goal-2",
		Amount: core.Cents(45_000), ActingUser: testUser,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.RecordExternalMovement(ctx, MovementRequest{
		CoupleID: testCouple, AccountID: "acct-1",
		Kind: core.EventWithdrawal, Amount: core.Cents(50_000), ActingUser: testUser,
	}); err != nil {
		t.Fatal(err)
	}

	// Reverse one allocation so the fold exercises REVERSAL handling.
	allocs, _ := eng.Store().ListEvents(ctx, store.EventFilter{
		CoupleID: testCouple, Kinds: []core.EventKind{core.EventAllocation},
		GoalID: "goal-2",
	})
	if len(allocs) != 1 {
		t.Fatalf("goal-2 allocations = %d, want 1", len(allocs))
	}
	if _, err := eng.Reverse(ctx, allocs[0].ID, testCouple, testUser, ""); err != nil {
		t.Fatal(err)
	}

	state, err := eng.Replay(ctx, testCouple)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := state.AccountBalances["acct-1"]; got != core.Cents(150_000) {
		t.Errorf("replayed acct-1 balance = %d, want 150000", got.Cents)
	}
	if got := state.GoalAllocations["goal-1"]; got != core.Cents(75_000) {
		t.Errorf("replayed goal-1 allocation = %d, want 75000", got.Cents)
	}
	if got := state.GoalAllocations["goal-2"]; got != core.Cents(45_000) {
		t.Errorf("replayed goal-2 allocation = %d, want 45000", got.Cents)
	}

	report, err := eng.Reconcile(ctx, testCouple)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Consistent() {
		t.Errorf("reconcile found discrepancies: %+v", report.Discrepancies)
	}

	// A snapshot edited behind the ledger's back is caught.
	account, _ := eng.Store().GetAccount(ctx, "acct-1")
	account.Balance = account.Balance.Add(core.Cents(1))
	if err := eng.Store().PutAccount(ctx, account); err != nil {
		t.Fatal(err)
	}
	report, err = eng.Reconcile(ctx, testCouple)
	if err != nil {
		t.Fatal(err)
	}
	if report.Consistent() {
		t.Error("reconcile missed a tampered account balance")
	}
}

func mustAllocate(t *testing.T, eng *Engine, accountID, goalID string, cents int64) {
	t.Helper()
	_, err := eng.Allocate(context.Background(), AllocateRequest{
		CoupleID:   testCouple,
		AccountID:  accountID,
		GoalID:     goalID,
		Amount:     core.Cents(cents),
		ActingUser: testUser,
	})
	if err != nil {
		t.Fatalf("allocate %d to %s: %v", cents, goalID, err)
	}
}

func TestRequestValidation(t *testing.T) {
	valid := AllocateRequest{
		CoupleID: testCouple, AccountID: "a", GoalID: "g",
		Amount: core.Cents(1), ActingUser: testUser,
	}

	cases := []struct {
		name string
		mut  func(r *AllocateRequest)
	}{
		{"missing couple", func(r *AllocateRequest) { r.CoupleID = "" }},
		{"missing user", func(r *AllocateRequest) { r.ActingUser = " " }},
		{"missing goal", func(r *AllocateRequest) { r.GoalID = "" }},
		{"zero amount", func(r *AllocateRequest) { r.Amount = core.Money{} }},
		{"negative amount", func(r *AllocateRequest) { r.Amount = core.Cents(-5) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mut(&req)
			if err := req.Validate(); !errors.Is(err, core.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}

	t.Run("same goal reallocation", func(t *testing.T) {
		req := ReallocateRequest{
			CoupleID: testCouple, AccountID: "a",
			FromGoalID: "g", ToGoalID: "g",
			Amount: core.Cents(1), ActingUser: testUser,
		}
		if err := req.Validate(); !errors.Is(err, core.ErrValidation) {
			t.Errorf("error = %v, want ErrValidation", err)
		}
	})

	t.Run("bad movement kind", func(t *testing.T) {
		req := MovementRequest{
			CoupleID: testCouple, AccountID: "a",
			Kind: core.EventAllocation, Amount: core.Cents(1), ActingUser: testUser,
		}
		if err := req.Validate(); !errors.Is(err, core.ErrValidation) {
			t.Errorf("error = %v, want ErrValidation", err)
		}
	})
}
