package drift

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/engine"
	"github.com/Ruzakiff/WealthTogether/internal/ledger"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
	"github.com/Ruzakiff/WealthTogether/internal/store/memory"
)

const (
	dmCouple = "couple-1"
	dmUser   = "user-a"
)

type captureNotifier struct {
	flags []Flag
}

func (n *captureNotifier) NotifyDrift(_ context.Context, flag Flag) error {
	n.flags = append(n.flags, flag)
	return nil
}

func testMonitor(t *testing.T, cfg Config) (*Monitor, *engine.Engine, *captureNotifier) {
	t.Helper()
	st := memory.New()
	logger := applog.New(applog.Config{
		Component: "test",
		Handler:   slog.NewTextHandler(io.Discard, nil),
	})
	eng := engine.New(st, engine.Config{ConflictRetries: 3}, logger, nil)
	led := ledger.New(st, logger)
	notifier := &captureNotifier{}
	return NewMonitor(st, led, cfg, logger, nil, notifier), eng, notifier
}

func dmSeed(t *testing.T, eng *engine.Engine, goalID string, targetCents int64, deadline time.Time) {
	t.Helper()
	ctx := context.Background()
	if _, err := eng.Store().GetAccount(ctx, "acct-1"); err != nil {
		if err := eng.Store().PutAccount(ctx, core.Account{
			ID: "acct-1", UserID: dmUser, CoupleID: dmCouple,
			Name: "joint", CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := eng.RecordExternalMovement(ctx, engine.MovementRequest{
			CoupleID: dmCouple, AccountID: "acct-1",
			Kind: core.EventDeposit, Amount: core.Cents(10_000_000), ActingUser: dmUser,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := eng.Store().PutGoal(ctx, core.Goal{
		ID: goalID, CoupleID: dmCouple, Name: "goal " + goalID,
		TargetAmount: core.Cents(targetCents), Priority: 1,
		Deadline: &deadline, Status: core.GoalActive, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestScanCouple(t *testing.T) {
	ctx := context.Background()
	window := 30 * 24 * time.Hour

	t.Run("flags a goal funding at half the required pace", func(t *testing.T) {
		mon, eng, notifier := testMonitor(t, Config{Window: window, MinVelocityFraction: 0.5})
		// 3 windows to deadline, 300_000 to go: required 100_000 per
		// window. 40_000 contributed is below the 50_000 threshold.
		dmSeed(t, eng, "goal-1", 340_000, time.Now().Add(3*window))
		if _, err := eng.Allocate(ctx, engine.AllocateRequest{
			CoupleID: dmCouple, AccountID: "acct-1", GoalID: "goal-1",
			Amount: core.Cents(40_000), ActingUser: dmUser,
		}); err != nil {
			t.Fatal(err)
		}

		mon.now = func() time.Time { return time.Now().Add(time.Minute) }
		flags, err := mon.ScanCouple(ctx, dmCouple)
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if len(flags) != 1 || flags[0].Reason != ReasonLowVelocity {
			t.Fatalf("flags = %+v, want one low_velocity", flags)
		}
		if len(notifier.flags) != 1 {
			t.Errorf("notifications = %d, want 1", len(notifier.flags))
		}
	})

	t.Run("does not flag a goal on pace", func(t *testing.T) {
		mon, eng, _ := testMonitor(t, Config{Window: window, MinVelocityFraction: 0.5})
		dmSeed(t, eng, "goal-1", 340_000, time.Now().Add(3*window))
		if _, err := eng.Allocate(ctx, engine.AllocateRequest{
			CoupleID: dmCouple, AccountID: "acct-1", GoalID: "goal-1",
			Amount: core.Cents(120_000), ActingUser: dmUser,
		}); err != nil {
			t.Fatal(err)
		}

		mon.now = func() time.Time { return time.Now().Add(time.Minute) }
		flags, err := mon.ScanCouple(ctx, dmCouple)
		if err != nil {
			t.Fatal(err)
		}
		if len(flags) != 0 {
			t.Errorf("flags = %+v, want none", flags)
		}
	})

	t.Run("flags a stalled goal near its deadline", func(t *testing.T) {
		mon, eng, _ := testMonitor(t, Config{Window: window, MinVelocityFraction: 0.5})
		dmSeed(t, eng, "goal-1", 200_000, time.Now().Add(window/2))

		flags, err := mon.ScanCouple(ctx, dmCouple)
		if err != nil {
			t.Fatal(err)
		}
		if len(flags) != 1 || flags[0].Reason != ReasonStalled {
			t.Fatalf("flags = %+v, want one stalled", flags)
		}
	})

	t.Run("skips goals without deadlines and non-active goals", func(t *testing.T) {
		mon, eng, _ := testMonitor(t, Config{Window: window, MinVelocityFraction: 0.5})
		dmSeed(t, eng, "goal-1", 200_000, time.Now().Add(window))
		goal, _ := eng.Store().GetGoal(ctx, "goal-1")
		goal.Deadline = nil
		if err := eng.Store().PutGoal(ctx, goal); err != nil {
			t.Fatal(err)
		}

		dmSeed(t, eng, "goal-2", 200_000, time.Now().Add(window))
		goal, _ = eng.Store().GetGoal(ctx, "goal-2")
		goal.Status = core.GoalArchived
		if err := eng.Store().PutGoal(ctx, goal); err != nil {
			t.Fatal(err)
		}

		flags, err := mon.ScanCouple(ctx, dmCouple)
		if err != nil {
			t.Fatal(err)
		}
		if len(flags) != 0 {
			t.Errorf("flags = %+v, want none", flags)
		}
	})
}

func TestScanAllCouples(t *testing.T) {
	ctx := context.Background()
	window := 30 * 24 * time.Hour
	mon, eng, _ := testMonitor(t, Config{Window: window, MinVelocityFraction: 0.5, Parallel: 2})

	// Two couples, each with one stalled goal.
	for _, couple := range []string{"couple-1", "couple-2"} {
		deadline := time.Now().Add(window / 2)
		if err := eng.Store().PutGoal(ctx, core.Goal{
			ID: "goal-" + couple, CoupleID: couple, Name: "stalled",
			TargetAmount: core.Cents(100_000), Priority: 1,
			Deadline: &deadline, Status: core.GoalActive, CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	flags, err := mon.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(flags) != 2 {
		t.Fatalf("flags = %+v, want one per couple", flags)
	}
	seen := map[string]bool{}
	for _, f := range flags {
		seen[f.CoupleID] = true
	}
	if !seen["couple-1"] || !seen["couple-2"] {
		t.Errorf("flag couples = %v, want both couples", seen)
	}
}

func TestRequiredPerWindow(t *testing.T) {
	window := 30 * 24 * time.Hour
	cases := []struct {
		name      string
		remaining int64
		timeLeft  time.Duration
		want      int64
	}{
		{"three windows out", 300_000, 3 * window, 100_000},
		{"half window left needs double", 100_000, window / 2, 200_000},
		{"due now needs everything", 100_000, 0, 100_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := requiredPerWindow(core.Cents(tc.remaining), tc.timeLeft, window)
			if got != core.Cents(tc.want) {
				t.Errorf("required = %d, want %d", got.Cents, tc.want)
			}
		})
	}
}
