// Package drift scans goal histories for contribution velocity that is too
// low to meet the goal's deadline. The scan is read-only; flags are
// advisory and consumed by the notification pipeline.
package drift

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/ledger"
	applog "github.com/Ruzakiff/WealthTogether/internal/log"
	"github.com/Ruzakiff/WealthTogether/internal/store"
	"github.com/Ruzakiff/WealthTogether/pkg/metrics"
)

// Reason classifies why a goal was flagged.
type Reason string

const (
	// ReasonLowVelocity marks a goal funding slower than the configured
	// fraction of the rate its deadline demands.
	ReasonLowVelocity Reason = "low_velocity"
	// ReasonStalled marks a goal near its deadline with no contributions
	// at all in the scan window.
	ReasonStalled Reason = "stalled"
)

// Flag is one advisory drift finding.
type Flag struct {
	CoupleID     string     `json:"couple_id"`
	GoalID       string     `json:"goal_id"`
	GoalName     string     `json:"goal_name"`
	Reason       Reason     `json:"reason"`
	ObservedRate core.Money `json:"observed_rate"`
	RequiredRate core.Money `json:"required_rate"`
	Deadline     time.Time  `json:"deadline"`
	FlaggedAt    time.Time  `json:"flagged_at"`
}

// Notifier receives flags as they are found. A nil Notifier is skipped.
type Notifier interface {
	NotifyDrift(ctx context.Context, flag Flag) error
}

// Config carries the monitor's tunables.
type Config struct {
	// Window is the trailing span of history the velocity is measured
	// over.
	Window time.Duration
	// MinVelocityFraction is the share of the required rate below which a
	// goal is flagged, e.g. 0.5 flags goals funding at less than half the
	// needed pace.
	MinVelocityFraction float64
	// Parallel bounds how many couples are scanned concurrently.
	Parallel int
}

type Monitor struct {
	store    store.Store
	ledger   *ledger.Ledger
	cfg      Config
	logger   *applog.Logger
	metrics  *metrics.Collector
	notifier Notifier
	now      func() time.Time
}

func NewMonitor(st store.Store, led *ledger.Ledger, cfg Config, logger *applog.Logger, collector *metrics.Collector, notifier Notifier) *Monitor {
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	return &Monitor{
		store:    st,
		ledger:   led,
		cfg:      cfg,
		logger:   logger.WithComponent("drift"),
		metrics:  collector,
		notifier: notifier,
		now:      time.Now,
	}
}

// Scan walks every couple and returns all flags found. Couples are scanned
// concurrently up to the configured parallelism.
func (m *Monitor) Scan(ctx context.Context) ([]Flag, error) {
	coupleIDs, err := m.store.ListCoupleIDs(ctx)
	if err != nil {
		return nil, err
	}

	results := make([][]Flag, len(coupleIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Parallel)

	for i, coupleID := range coupleIDs {
		g.Go(func() error {
			flags, err := m.ScanCouple(gctx, coupleID)
			if err != nil {
				return err
			}
			results[i] = flags
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Flag
	for _, flags := range results {
		all = append(all, flags...)
	}
	return all, nil
}

// ScanCouple checks each of the couple's active, deadlined goals against
// its recent contribution history.
func (m *Monitor) ScanCouple(ctx context.Context, coupleID string) ([]Flag, error) {
	goals, err := m.store.ListGoalsByCouple(ctx, coupleID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	var flags []Flag
	for _, goal := range goals {
		flag, flagged, err := m.checkGoal(ctx, goal, now)
		if err != nil {
			return nil, err
		}
		if !flagged {
			continue
		}
		flags = append(flags, flag)
		m.metrics.GoalFlagged()
		m.logger.InfoContext(ctx, "goal drifting",
			"couple_id", coupleID, "goal_id", goal.ID, "reason", flag.Reason,
			"observed_cents", flag.ObservedRate.Cents, "required_cents", flag.RequiredRate.Cents)
		if m.notifier != nil {
			if err := m.notifier.NotifyDrift(ctx, flag); err != nil {
				m.logger.WarnContext(ctx, "drift notification failed",
					"goal_id", goal.ID, "error", err)
			}
		}
	}
	return flags, nil
}

func (m *Monitor) checkGoal(ctx context.Context, goal core.Goal, now time.Time) (Flag, bool, error) {
	// Only active goals with a future deadline have a required pace.
	if goal.Status != core.GoalActive || goal.Deadline == nil || !goal.Deadline.After(now) {
		return Flag{}, false, nil
	}
	remaining := goal.Remaining()
	if remaining.Cents <= 0 {
		return Flag{}, false, nil
	}

	contributed, err := m.ledger.GoalContributions(ctx, goal.ID, now.Add(-m.cfg.Window), now)
	if err != nil {
		return Flag{}, false, err
	}
	if contributed.IsNegative() {
		contributed = core.Money{}
	}

	timeLeft := goal.Deadline.Sub(now)
	required := requiredPerWindow(remaining, timeLeft, m.cfg.Window)

	flag := Flag{
		CoupleID:     goal.CoupleID,
		GoalID:       goal.ID,
		GoalName:     goal.Name,
		ObservedRate: contributed,
		RequiredRate: required,
		Deadline:     *goal.Deadline,
		FlaggedAt:    now,
	}

	// Nothing contributed all window with less than a window of runway
	// left is a stall regardless of the fraction.
	if contributed.IsZero() && timeLeft <= m.cfg.Window {
		flag.Reason = ReasonStalled
		return flag, true, nil
	}

	threshold := decimal.NewFromInt(required.Cents).
		Mul(decimal.NewFromFloat(m.cfg.MinVelocityFraction))
	if decimal.NewFromInt(contributed.Cents).LessThan(threshold) {
		flag.Reason = ReasonLowVelocity
		return flag, true, nil
	}
	return Flag{}, false, nil
}

// requiredPerWindow converts "remaining over timeLeft" into the amount
// needed per scan window.
func requiredPerWindow(remaining core.Money, timeLeft, window time.Duration) core.Money {
	if timeLeft <= 0 || window <= 0 {
		return remaining
	}
	rate := decimal.NewFromInt(remaining.Cents).
		Mul(decimal.NewFromFloat(window.Hours())).
		Div(decimal.NewFromFloat(timeLeft.Hours()))
	return core.Cents(rate.Ceil().IntPart())
}

// Run scans on the given interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Scan(ctx); err != nil {
				m.logger.ErrorContext(ctx, "drift scan failed", "error", err)
			}
		}
	}
}
