package rules

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/engine"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
	"github.com/Ruzakiff/WealthTogether/internal/store"
	"github.com/Ruzakiff/WealthTogether/internal/store/memory"
)

const (
	ruCouple = "couple-1"
	ruUser   = "user-a"
)

func testService(t *testing.T) (*Service, *engine.Engine) {
	t.Helper()
	st := memory.New()
	logger := applog.New(applog.Config{
		Component: "test",
		Handler:   slog.NewTextHandler(io.Discard, nil),
	})
	eng := engine.New(st, engine.Config{ConflictRetries: 3}, logger, nil)
	return NewService(st, eng, logger), eng
}

func ruSeed(t *testing.T, eng *engine.Engine) {
	t.Helper()
	ctx := context.Background()
	if err := eng.Store().PutAccount(ctx, core.Account{
		ID: "acct-1", UserID: ruUser, CoupleID: ruCouple,
		Name: "joint", CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"goal-1", "goal-2"} {
		if err := eng.Store().PutGoal(ctx, core.Goal{
			ID: id, CoupleID: ruCouple, Name: "goal " + id,
			TargetAmount: core.Cents(1_000_000), Priority: 1,
			Status: core.GoalActive, CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a valid rule and logs it", func(t *testing.T) {
		svc, eng := testService(t)
		ruSeed(t, eng)

		rule, err := svc.Create(ctx, core.AllocationRule{
			CoupleID: ruCouple, AccountID: "acct-1", GoalID: "goal-1",
			PercentBps: 2500,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if rule.ID == "" || !rule.Enabled || rule.Trigger != core.RuleTriggerDeposit {
			t.Errorf("rule = %+v", rule)
		}

		stored, err := svc.Get(ctx, rule.ID)
		if err != nil || stored.PercentBps != 2500 {
			t.Errorf("stored = %+v (%v)", stored, err)
		}

		// The audit event passes ledger validation by carrying the
		// system actor as its user.
		events, err := eng.Store().ListEvents(ctx, store.EventFilter{
			CoupleID: ruCouple, Kinds: []core.EventKind{core.EventSystem},
		})
		if err != nil {
			t.Fatal(err)
		}
		var logged bool
		for _, e := range events {
			if e.Metadata[core.MetaRuleID] == rule.ID && e.Metadata[core.MetaAction] == "rule_created" {
				logged = true
				if e.UserID != core.SystemUser {
					t.Errorf("audit user = %q, want %q", e.UserID, core.SystemUser)
				}
			}
		}
		if !logged {
			t.Error("rule_created audit event not appended")
		}
	})

	t.Run("rejects out-of-range percent", func(t *testing.T) {
		svc, eng := testService(t)
		ruSeed(t, eng)

		_, err := svc.Create(ctx, core.AllocationRule{
			CoupleID: ruCouple, AccountID: "acct-1", GoalID: "goal-1",
			PercentBps: 10001,
		})
		if !errors.Is(err, core.ErrValidation) {
			t.Fatalf("error = %v, want ErrValidation", err)
		}
	})

	t.Run("rejects unknown goal", func(t *testing.T) {
		svc, eng := testService(t)
		ruSeed(t, eng)

		_, err := svc.Create(ctx, core.AllocationRule{
			CoupleID: ruCouple, AccountID: "acct-1", GoalID: "missing",
			PercentBps: 1000,
		})
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestExecuteForDeposit(t *testing.T) {
	ctx := context.Background()

	deposit := func(t *testing.T, eng *engine.Engine, cents int64) {
		t.Helper()
		if _, err := eng.RecordExternalMovement(ctx, engine.MovementRequest{
			CoupleID: ruCouple, AccountID: "acct-1",
			Kind: core.EventDeposit, Amount: core.Cents(cents), ActingUser: ruUser,
		}); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("routes rule shares of a deposit", func(t *testing.T) {
		svc, eng := testService(t)
		ruSeed(t, eng)
		if _, err := svc.Create(ctx, core.AllocationRule{
			CoupleID: ruCouple, AccountID: "acct-1", GoalID: "goal-1", PercentBps: 2500,
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.Create(ctx, core.AllocationRule{
			CoupleID: ruCouple, AccountID: "acct-1", GoalID: "goal-2", PercentBps: 1000,
		}); err != nil {
			t.Fatal(err)
		}

		deposit(t, eng, 100_000)
		outcomes, err := svc.ExecuteForDeposit(ctx, ruCouple, "acct-1", ruUser, core.Cents(100_000))
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if len(outcomes) != 2 {
			t.Fatalf("outcomes = %+v, want 2", outcomes)
		}
		for _, o := range outcomes {
			if !o.Applied {
				t.Errorf("outcome %+v not applied", o)
			}
		}

		g1, _ := eng.Store().GetAllocation(ctx, "acct-1", "goal-1")
		g2, _ := eng.Store().GetAllocation(ctx, "acct-1", "goal-2")
		if g1.Amount != core.Cents(25_000) || g2.Amount != core.Cents(10_000) {
			t.Errorf("allocations = %d/%d, want 25000/10000", g1.Amount.Cents, g2.Amount.Cents)
		}
	})

	t.Run("a failing rule does not block the others", func(t *testing.T) {
		svc, eng := testService(t)
		ruSeed(t, eng)
		if _, err := svc.Create(ctx, core.AllocationRule{
			CoupleID: ruCouple, AccountID: "acct-1", GoalID: "goal-1", PercentBps: 5000,
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.Create(ctx, core.AllocationRule{
			CoupleID: ruCouple, AccountID: "acct-1", GoalID: "goal-2", PercentBps: 5000,
		}); err != nil {
			t.Fatal(err)
		}

		// Archive the first rule's goal so its allocation fails.
		goal, _ := eng.Store().GetGoal(ctx, "goal-1")
		goal.Status = core.GoalArchived
		if err := eng.Store().PutGoal(ctx, goal); err != nil {
			t.Fatal(err)
		}

		deposit(t, eng, 100_000)
		outcomes, err := svc.ExecuteForDeposit(ctx, ruCouple, "acct-1", ruUser, core.Cents(100_000))
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if len(outcomes) != 2 {
			t.Fatalf("outcomes = %+v, want 2", outcomes)
		}

		var applied, failed int
		for _, o := range outcomes {
			if o.Applied {
				applied++
			} else if o.Error != "" {
				failed++
			}
		}
		if applied != 1 || failed != 1 {
			t.Errorf("applied/failed = %d/%d, want 1/1", applied, failed)
		}
	})

	t.Run("disabled rules are skipped", func(t *testing.T) {
		svc, eng := testService(t)
		ruSeed(t, eng)
		rule, err := svc.Create(ctx, core.AllocationRule{
			CoupleID: ruCouple, AccountID: "acct-1", GoalID: "goal-1", PercentBps: 5000,
		})
		if err != nil {
			t.Fatal(err)
		}
		off := false
		if _, err := svc.Update(ctx, rule.ID, nil, nil, &off); err != nil {
			t.Fatal(err)
		}

		deposit(t, eng, 100_000)
		outcomes, err := svc.ExecuteForDeposit(ctx, ruCouple, "acct-1", ruUser, core.Cents(100_000))
		if err != nil {
			t.Fatal(err)
		}
		if len(outcomes) != 0 {
			t.Errorf("outcomes = %+v, want none", outcomes)
		}
	})
}

func TestShareOf(t *testing.T) {
	cases := []struct {
		amount int64
		bps    int
		want   int64
	}{
		{100_000, 2500, 25_000},
		{100_000, 10000, 100_000},
		{999, 3333, 332},
		{1, 1, 0},
	}
	for _, tc := range cases {
		if got := shareOf(core.Cents(tc.amount), tc.bps); got != core.Cents(tc.want) {
			t.Errorf("shareOf(%d, %d) = %d, want %d", tc.amount, tc.bps, got.Cents, tc.want)
		}
	}
}
