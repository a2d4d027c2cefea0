// Package planner derives projections and advisory plans from allocation
// state. Nothing here writes directly; commits go through the engine.
package planner

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ruzakiff/WealthTogether/internal/core"
	"github.com/Ruzakiff/WealthTogether/internal/ledger"
)

// Forecast is a projected completion timeline for one goal at a given
// contribution rate.
type Forecast struct {
	GoalID          string          `json:"goal_id"`
	Remaining       core.Money      `json:"remaining"`
	RatePerPeriod   core.Money      `json:"rate_per_period"`
	PeriodsToTarget int             `json:"periods_to_target"`
	Unreachable     bool            `json:"unreachable"`
	ProjectedDate   *time.Time      `json:"projected_date,omitempty"`
	Deadline        *time.Time      `json:"deadline,omitempty"`
	OnTrack         *bool           `json:"on_track,omitempty"`
	Status          core.GoalStatus `json:"status"`
}

// PeriodsToTarget computes ceil(remaining / rate) in whole periods. The
// second return is false when the target cannot be reached at this rate.
// A goal already at or past target needs zero periods.
func PeriodsToTarget(remaining, ratePerPeriod core.Money) (int, bool) {
	if remaining.Cents <= 0 {
		return 0, true
	}
	if ratePerPeriod.Cents <= 0 {
		return 0, false
	}
	periods := decimal.NewFromInt(remaining.Cents).
		Div(decimal.NewFromInt(ratePerPeriod.Cents)).
		Ceil()
	return int(periods.IntPart()), true
}

// Forecaster projects goal completion. The ledger is consulted only when a
// caller asks for an observed rate instead of supplying a hypothetical one.
type Forecaster struct {
	ledger *ledger.Ledger
	// PeriodLength converts periods into calendar time for projected
	// dates. Defaults to 30 days, the declared contribution cadence.
	PeriodLength time.Duration
}

func NewForecaster(led *ledger.Ledger) *Forecaster {
	return &Forecaster{ledger: led, PeriodLength: 30 * 24 * time.Hour}
}

// Project forecasts a single goal at the supplied rate. It is a pure
// computation over the arguments; calling it with different hypothetical
// rates has no side effects.
func (f *Forecaster) Project(goal core.Goal, ratePerPeriod core.Money, now time.Time) Forecast {
	forecast := Forecast{
		GoalID:        goal.ID,
		Remaining:     goal.Remaining(),
		RatePerPeriod: ratePerPeriod,
		Deadline:      goal.Deadline,
		Status:        goal.Status,
	}

	periods, reachable := PeriodsToTarget(forecast.Remaining, ratePerPeriod)
	if !reachable {
		forecast.Unreachable = true
		return forecast
	}
	forecast.PeriodsToTarget = periods

	projected := now.Add(time.Duration(periods) * f.PeriodLength)
	forecast.ProjectedDate = &projected
	if goal.Deadline != nil {
		onTrack := !projected.After(*goal.Deadline)
		forecast.OnTrack = &onTrack
	}
	return forecast
}

// ObservedRate derives a goal's contribution rate from its ledger history
// over the trailing window, normalized to the forecaster's period length.
func (f *Forecaster) ObservedRate(ctx context.Context, goal core.Goal, window time.Duration, now time.Time) (core.Money, error) {
	contributed, err := f.ledger.GoalContributions(ctx, goal.ID, now.Add(-window), now)
	if err != nil {
		return core.Money{}, err
	}
	if contributed.Cents <= 0 || window <= 0 {
		return core.Money{}, nil
	}

	rate := decimal.NewFromInt(contributed.Cents).
		Mul(decimal.NewFromFloat(f.PeriodLength.Hours())).
		Div(decimal.NewFromFloat(window.Hours()))
	return core.Cents(rate.IntPart()), nil
}

// ProjectObserved forecasts a goal using its own recent contribution
// history as the rate.
func (f *Forecaster) ProjectObserved(ctx context.Context, goal core.Goal, window time.Duration, now time.Time) (Forecast, error) {
	rate, err := f.ObservedRate(ctx, goal, window, now)
	if err != nil {
		return Forecast{}, err
	}
	return f.Project(goal, rate, now), nil
}
